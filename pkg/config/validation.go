package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorhill/cronexpr"

	"github.com/marmos91/nearstore/pkg/requests"
)

var validate = validator.New()

// Validate checks the configuration: struct tags first, then the rules
// spanning several fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	var errs []error
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	if err := cfg.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if _, err := cronexpr.Parse(cfg.Cache.VerificationSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cache.verification_schedule %q: %w", cfg.Cache.VerificationSchedule, err))
	}
	errs = append(errs, validateIndex(&cfg.Cache.Index)...)
	errs = append(errs, validateStorages(cfg.Storages)...)
	errs = append(errs, validateTenants(cfg.Tenants)...)

	for name := range cfg.Batching {
		if _, err := requests.ParseKind(name); err != nil {
			errs = append(errs, fmt.Errorf("batching.%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

func validateIndex(cfg *IndexConfig) []error {
	switch cfg.Type {
	case "badger":
		if cfg.Badger.Path == "" && !cfg.Badger.InMemory {
			return []error{errors.New("cache.index.badger.path is required")}
		}
	case "postgres":
		if err := cfg.Postgres.Validate(); err != nil {
			return []error{fmt.Errorf("cache.index.postgres: %w", err)}
		}
	}
	return nil
}

func validateStorages(storages []StorageConfig) []error {
	var errs []error
	seen := make(map[string]bool, len(storages))
	for _, s := range storages {
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("storages: duplicate name %q", s.Name))
		}
		seen[s.Name] = true

		var err error
		switch s.Type {
		case "fs":
			err = validate.Struct(&s.FS)
		case "s3":
			err = validate.Struct(&s.S3)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("storages.%s.%s: %w", s.Name, s.Type, formatValidationError(err)))
		}
	}
	return errs
}

func validateTenants(tenants []TenantConfig) []error {
	var errs []error
	seen := make(map[string]bool, len(tenants))
	for _, t := range tenants {
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("tenants: duplicate name %q", t.Name))
		}
		seen[t.Name] = true
		if strings.ContainsAny(t.Name, `/\`) || t.Name == "." || t.Name == ".." {
			errs = append(errs, fmt.Errorf("tenants: name %q cannot be used as a directory", t.Name))
		}
	}
	return errs
}

// formatValidationError turns validator errors into one line per field.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s=%s' validation", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s' validation", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
