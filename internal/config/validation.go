package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags first and then the cross-field rules that tags
// cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Database.Driver == "postgres" {
		if cfg.Database.Host == "" ||
			cfg.Database.Port == "" ||
			cfg.Database.User == "" ||
			cfg.Database.Password == "" ||
			cfg.Database.Name == "" {
			return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
				cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Name)
		}
	}

	switch cfg.Storage.Backend {
	case "local":
		if cfg.Storage.Root == "" {
			return fmt.Errorf("storage.root is required for the local backend")
		}
	case "s3":
		if err := cfg.Storage.S3.Validate(); err != nil {
			return fmt.Errorf("storage.s3: %w", err)
		}
	}

	switch cfg.Auth.Mode {
	case "jwt":
		if len(cfg.Auth.JWTSecret) < 16 {
			return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
		}
	case "grpc":
		if cfg.Auth.GRPCAddr == "" {
			return fmt.Errorf("auth.grpc_addr is required when auth.mode is grpc")
		}
	}

	if cfg.Recycle.Retention > 0 && cfg.Recycle.CleanupInterval == 0 {
		return fmt.Errorf("recycle.cleanup_interval must be set when retention is enabled")
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return fmt.Errorf("validation error: %w", err)
}
