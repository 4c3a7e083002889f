// Package s3 implements a backend.Driver over an S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/backend"
)

// Config holds configuration for the S3 driver.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string `mapstructure:"bucket" yaml:"bucket" validate:"required"`

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// KeyPrefix is prepended to all object keys (e.g., "nearstore/").
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// AccessKeyID and SecretAccessKey switch to static credentials.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// API is the subset of the S3 client the driver uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Driver stores files as objects keyed <prefix><tenant>/[sub/]<checksum>.
type Driver struct {
	name          string
	tier          backend.Tier
	allowDeletion bool
	client        API
	bucket        string
	keyPrefix     string
}

var _ backend.Driver = (*Driver)(nil)

// New creates a driver with an existing client.
func New(name string, tier backend.Tier, allowDeletion bool, client API, cfg Config) *Driver {
	return &Driver{
		name:          name,
		tier:          tier,
		allowDeletion: allowDeletion,
		client:        client,
		bucket:        cfg.Bucket,
		keyPrefix:     cfg.KeyPrefix,
	}
}

// NewFromConfig creates a driver by building an S3 client from cfg.
func NewFromConfig(ctx context.Context, name string, tier backend.Tier, allowDeletion bool, cfg Config) (*Driver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage %s: bucket is required", name)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return New(name, tier, allowDeletion, client, cfg), nil
}

func (d *Driver) Name() string                 { return d.name }
func (d *Driver) Tier() backend.Tier           { return d.tier }
func (d *Driver) AllowsPhysicalDeletion() bool { return d.allowDeletion }

func (d *Driver) Store(ctx context.Context, in backend.StoreInput) (string, error) {
	key, err := d.objectKey(in)
	if err != nil {
		return "", err
	}

	put := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   in.Body,
	}
	if in.Size > 0 {
		put.ContentLength = aws.Int64(in.Size)
	}
	if _, err := d.client.PutObject(ctx, put); err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}

	logger.DebugCtx(ctx, "Object stored",
		logger.KeyStorage, d.name, logger.KeyBucket, d.bucket, logger.KeyKey, key)
	return d.location(key), nil
}

func (d *Driver) Retrieve(ctx context.Context, loc string) (io.ReadCloser, error) {
	key, err := d.resolve(loc)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, loc)
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	return resp.Body, nil
}

func (d *Driver) Delete(ctx context.Context, loc string) error {
	key, err := d.resolve(loc)
	if err != nil {
		return err
	}

	_, err = d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// Healthcheck performs a HeadBucket call to check connectivity and permissions.
func (d *Driver) Healthcheck(ctx context.Context) error {
	_, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)})
	if err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	return nil
}

func (d *Driver) objectKey(in backend.StoreInput) (string, error) {
	if in.Tenant == "" || strings.Contains(in.Tenant, "/") {
		return "", fmt.Errorf("invalid tenant %q", in.Tenant)
	}
	if in.Checksum == "" || strings.Contains(in.Checksum, "/") {
		return "", fmt.Errorf("invalid checksum %q", in.Checksum)
	}

	parts := []string{in.Tenant}
	if sub := strings.Trim(in.SubDirectory, "/"); sub != "" {
		clean := path.Clean(sub)
		if clean == ".." || strings.HasPrefix(clean, "../") {
			return "", fmt.Errorf("invalid sub directory %q", in.SubDirectory)
		}
		parts = append(parts, clean)
	}
	parts = append(parts, in.Checksum)
	return d.keyPrefix + strings.Join(parts, "/"), nil
}

func (d *Driver) location(key string) string {
	return (&url.URL{Scheme: "s3", Host: d.bucket, Path: "/" + key}).String()
}

func (d *Driver) resolve(loc string) (string, error) {
	u, err := url.Parse(loc)
	if err != nil || u.Scheme != "s3" || u.Host != d.bucket {
		return "", fmt.Errorf("storage %s: unsupported location %q", d.name, loc)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("storage %s: location %q has no key", d.name, loc)
	}
	return key, nil
}

// isNotFoundError checks if an error is an S3 not found error.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}
