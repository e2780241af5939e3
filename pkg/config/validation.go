package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// The signing key has no default and cannot be generated: every restart
	// would invalidate all outstanding sessions.
	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth: secret is required (set STRATAFS_AUTH_SECRET or auth.secret)")
	}
	if len(cfg.Auth.Secret) < 32 {
		return fmt.Errorf("auth: secret must be at least 32 bytes, got %d", len(cfg.Auth.Secret))
	}

	// Refresh tokens shorter-lived than access tokens would make refresh
	// pointless.
	if cfg.Auth.RefreshTTL <= cfg.Auth.AccessTTL {
		return fmt.Errorf("auth: refresh_ttl (%s) must exceed access_ttl (%s)",
			cfg.Auth.RefreshTTL, cfg.Auth.AccessTTL)
	}

	// The s3 backend needs a bucket before the factory ever runs; failing
	// here gives a clearer error than a factory failure at wire-up time.
	if cfg.Storage.Type == "s3" {
		if bucket, _ := cfg.Storage.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("storage.s3: bucket is required")
		}
	}

	if cfg.SFTP.Enabled && cfg.SFTP.Port == 0 {
		return fmt.Errorf("sftp: port is required when sftp is enabled")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
