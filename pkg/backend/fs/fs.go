// Package fs implements a backend.Driver over a local directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/marmos91/nearstore/internal/bufpool"
	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/backend"
)

// Config configures a filesystem driver.
type Config struct {
	// Path is the root directory files are stored under.
	Path string `mapstructure:"path" yaml:"path" validate:"required"`
}

// Driver stores files under <root>/<tenant>/[sub directory/]ab/cd/ef/<checksum>.
type Driver struct {
	name          string
	tier          backend.Tier
	allowDeletion bool
	root          string
	fs            afero.Fs
}

var _ backend.Driver = (*Driver)(nil)

// New creates a driver. A nil fs uses the OS filesystem.
func New(name string, tier backend.Tier, allowDeletion bool, cfg Config, fs afero.Fs) (*Driver, error) {
	if name == "" {
		return nil, fmt.Errorf("fs storage: name is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("fs storage %s: path is required", name)
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("fs storage %s: %w", name, err)
	}

	return &Driver{
		name:          name,
		tier:          tier,
		allowDeletion: allowDeletion,
		root:          filepath.Clean(cfg.Path),
		fs:            fs,
	}, nil
}

func (d *Driver) Name() string                 { return d.name }
func (d *Driver) Tier() backend.Tier           { return d.tier }
func (d *Driver) AllowsPhysicalDeletion() bool { return d.allowDeletion }

// Store writes to a temporary file and renames it into place.
func (d *Driver) Store(ctx context.Context, in backend.StoreInput) (string, error) {
	path, err := d.path(in)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := d.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(d.fs, dir, "."+in.Checksum+".tmp-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, copyErr := bufpool.Copy(tmp, in.Body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = d.fs.Remove(tmpPath)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if in.Size > 0 && n != in.Size {
		_ = d.fs.Remove(tmpPath)
		return "", fmt.Errorf("size mismatch for %s: expected %d bytes, wrote %d", in.Checksum, in.Size, n)
	}

	if err := d.fs.Rename(tmpPath, path); err != nil {
		_ = d.fs.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename %s: %w", path, err)
	}

	logger.DebugCtx(ctx, "File stored",
		logger.KeyStorage, d.name, logger.KeyChecksum, in.Checksum, logger.KeyPath, path, logger.KeySize, n)
	return location(path), nil
}

func (d *Driver) Retrieve(ctx context.Context, loc string) (io.ReadCloser, error) {
	path, err := d.resolve(loc)
	if err != nil {
		return nil, err
	}
	f, err := d.fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, loc)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (d *Driver) Delete(ctx context.Context, loc string) error {
	path, err := d.resolve(loc)
	if err != nil {
		return err
	}
	if err := d.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// Healthcheck verifies the root directory is still there.
func (d *Driver) Healthcheck(context.Context) error {
	info, err := d.fs.Stat(d.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", d.root)
	}
	return nil
}

func (d *Driver) path(in backend.StoreInput) (string, error) {
	if in.Tenant == "" || strings.ContainsAny(in.Tenant, `/\`) || in.Tenant == ".." {
		return "", fmt.Errorf("invalid tenant %q", in.Tenant)
	}
	if in.Checksum == "" || strings.ContainsAny(in.Checksum, `/\`) || in.Checksum == ".." {
		return "", fmt.Errorf("invalid checksum %q", in.Checksum)
	}

	parts := []string{d.root, in.Tenant}
	if in.SubDirectory != "" {
		sub := filepath.Clean(filepath.FromSlash(in.SubDirectory))
		if filepath.IsAbs(sub) || sub == ".." || strings.HasPrefix(sub, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("invalid sub directory %q", in.SubDirectory)
		}
		parts = append(parts, sub)
	}
	for i := 0; i+2 < len(in.Checksum) && i < 6; i += 2 {
		parts = append(parts, in.Checksum[i:i+2])
	}
	parts = append(parts, in.Checksum)
	return filepath.Join(parts...), nil
}

// resolve maps a location back to a path and refuses anything outside root.
func (d *Driver) resolve(loc string) (string, error) {
	u, err := url.Parse(loc)
	if err != nil || u.Scheme != "file" {
		return "", fmt.Errorf("storage %s: unsupported location %q", d.name, loc)
	}
	path := filepath.Clean(filepath.FromSlash(u.Path))
	if path != d.root && !strings.HasPrefix(path, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage %s: location %q is outside %s", d.name, loc, d.root)
	}
	return path, nil
}

func location(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
