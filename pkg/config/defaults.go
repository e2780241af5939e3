package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled where the sections are decoded
//
// Auth.Secret deliberately has no default: a guessable signing key is worse
// than a startup failure.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyIdentityDefaults(&cfg.Identity)
	applyAuthDefaults(&cfg.Auth)
	applyAuditDefaults(&cfg.Audit)
	applySFTPDefaults(&cfg.SFTP)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets HTTP server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 1 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// Folder archives stream entire trees through a single response.
		cfg.WriteTimeout = 10 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 5 << 30 // 5GB, the S3 single-PUT ceiling
	}
	if cfg.CopyWorkers == 0 {
		cfg.CopyWorkers = 8
	}
}

// applyStorageDefaults sets object store defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "s3"
	}

	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}

	// Apply defaults for all backend types (for config file generation)
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = "us-east-1"
	}
}

// applyIdentityDefaults sets identity store defaults.
func applyIdentityDefaults(cfg *IdentityConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}

	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/var/lib/stratafs/identity"
	}
}

// applyAuthDefaults sets token defaults.
func applyAuthDefaults(cfg *AuthConfig) {
	// Secret intentionally left alone; see ApplyDefaults.
	if cfg.Issuer == "" {
		cfg.Issuer = "stratafs"
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
}

// applyAuditDefaults sets audit trail defaults.
func applyAuditDefaults(cfg *AuditConfig) {
	// Enabled defaults to false; GetDefaultConfig turns it on for generated
	// config files.

	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1024
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/var/lib/stratafs/audit"
	}

	if cfg.Geolocation.Endpoint == "" {
		cfg.Geolocation.Endpoint = "http://ip-api.com/json"
	}
}

// applySFTPDefaults sets SFTP access defaults.
func applySFTPDefaults(cfg *SFTPConfig) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			S3:     make(map[string]any),
			Memory: make(map[string]any),
		},
		Identity: IdentityConfig{
			Badger: make(map[string]any),
			Memory: make(map[string]any),
		},
		Audit: AuditConfig{
			// Recording on by default in generated configs; the zero-value
			// default stays off so a bare environment-only deployment opts in.
			Enabled: true,
			Badger:  make(map[string]any),
			Geolocation: GeolocationConfig{
				Enabled: true,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		SFTP: SFTPConfig{
			Enabled: true,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
