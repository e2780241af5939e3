package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete StrataFS configuration.
//
// This structure captures all configurable aspects of the server including:
//   - Logging configuration
//   - HTTP server settings
//   - Object storage selection and configuration (backend-specific)
//   - Identity store selection and configuration (backend-specific)
//   - Token signing parameters
//   - Audit trail configuration
//   - SFTP access parameters
//
// Configuration sources (in order of precedence):
//  1. Environment variables (STRATAFS_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Backend Configuration Pattern:
// Each store implementation defines its own option set. The Config struct
// contains type-specific sections as raw maps (e.g. storage.s3) and only the
// section matching the selected type is decoded, by the factory functions in
// this package.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains HTTP server settings
	Server ServerConfig `mapstructure:"server"`

	// Storage specifies the object store type and type-specific configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Identity specifies the identity store type and type-specific configuration
	Identity IdentityConfig `mapstructure:"identity"`

	// Auth contains token signing parameters
	Auth AuthConfig `mapstructure:"auth"`

	// Audit contains activity trail settings
	Audit AuditConfig `mapstructure:"audit"`

	// SFTP contains SFTP access parameters
	SFTP SFTPConfig `mapstructure:"sftp"`

	// Metrics controls the Prometheus registry
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: debug, info, warn, error (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server binds to (e.g. ":8080")
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`

	// ReadTimeout bounds the time spent reading a request
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"required,gt=0"`

	// WriteTimeout bounds the time spent writing a response.
	// Folder archives stream through this; keep it generous.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"required,gt=0"`

	// IdleTimeout bounds keep-alive connection idleness
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"required,gt=0"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// MaxUploadBytes caps the size of a single multipart upload
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"required,gt=0"`

	// CopyWorkers bounds the parallelism of folder copy and move operations
	CopyWorkers int `mapstructure:"copy_workers" validate:"required,gt=0"`
}

// StorageConfig specifies object store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type StorageConfig struct {
	// Type specifies which object store implementation to use
	// Valid values: s3, memory
	Type string `mapstructure:"type" validate:"required,oneof=s3 memory"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`
}

// IdentityConfig specifies identity store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type IdentityConfig struct {
	// Type specifies which identity store implementation to use
	// Valid values: badger, memory
	Type string `mapstructure:"type" validate:"required,oneof=badger memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`
}

// AuthConfig contains token signing parameters.
type AuthConfig struct {
	// Secret is the HMAC key used to sign tokens.
	// It has no default and must be provided (STRATAFS_AUTH_SECRET).
	Secret string `mapstructure:"secret"`

	// Issuer is embedded in every token's iss claim
	Issuer string `mapstructure:"issuer" validate:"required"`

	// AccessTTL bounds access token lifetime
	AccessTTL time.Duration `mapstructure:"access_ttl" validate:"required,gt=0"`

	// RefreshTTL bounds refresh token lifetime
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" validate:"required,gt=0"`
}

// AuditConfig contains activity trail settings.
type AuditConfig struct {
	// Enabled turns event recording on or off
	Enabled bool `mapstructure:"enabled"`

	// QueueSize is the capacity of the in-process event queue.
	// Events emitted while the queue is full are dropped, not blocked on.
	QueueSize int `mapstructure:"queue_size" validate:"gte=0"`

	// Badger contains configuration for the BadgerDB event sink
	Badger map[string]any `mapstructure:"badger"`

	// Geolocation enables IP geolocation enrichment of recorded events
	Geolocation GeolocationConfig `mapstructure:"geolocation"`
}

// GeolocationConfig controls IP geolocation lookups for audit events.
type GeolocationConfig struct {
	// Enabled turns geolocation enrichment on or off
	Enabled bool `mapstructure:"enabled"`

	// Endpoint is the lookup service base URL
	Endpoint string `mapstructure:"endpoint"`
}

// SFTPConfig contains SFTP access parameters.
//
// StrataFS does not run the SFTP daemon itself; it provisions credentials
// and advertises the connection coordinates configured here.
type SFTPConfig struct {
	// Enabled controls whether SFTP provisioning endpoints are active
	Enabled bool `mapstructure:"enabled"`

	// Host is the hostname clients connect to
	Host string `mapstructure:"host"`

	// Port is the SFTP port clients connect to
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	// Enabled turns the /metrics endpoint and collection on or off
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (STRATAFS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the STRATAFS_ prefix and underscores.
	// Example: STRATAFS_LOGGING_LEVEL=debug, STRATAFS_AUTH_SECRET=...
	v.SetEnvPrefix("STRATAFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about; keys that
	// exist solely as environment variables (no config file, no default in
	// viper itself) must be bound explicitly or Unmarshal never sees them.
	bindEnvKeys(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/stratafs/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvKeys registers every scalar configuration key with viper so that
// environment-only values (e.g. STRATAFS_AUTH_SECRET with no config file)
// survive Unmarshal.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"logging.level", "logging.format", "logging.output",
		"server.listen_addr", "server.read_timeout", "server.write_timeout",
		"server.idle_timeout", "server.shutdown_timeout",
		"server.max_upload_bytes", "server.copy_workers",
		"storage.type",
		"storage.s3.region", "storage.s3.bucket", "storage.s3.endpoint",
		"storage.s3.access_key_id", "storage.s3.secret_access_key",
		"storage.s3.max_retries", "storage.s3.delete_chunk_size",
		"identity.type", "identity.badger.db_path",
		"auth.secret", "auth.issuer", "auth.access_ttl", "auth.refresh_ttl",
		"audit.enabled", "audit.queue_size", "audit.badger.db_path",
		"audit.geolocation.enabled", "audit.geolocation.endpoint",
		"sftp.enabled", "sftp.host", "sftp.port",
		"metrics.enabled",
	}
	for _, key := range keys {
		// BindEnv only fails on an empty key
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is acceptable; defaults and environment apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "stratafs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "stratafs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// generate-config command).
func GetConfigDir() string {
	return getConfigDir()
}
