package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_LogLevelNormalized(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Expected default listen_addr ':8080', got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.WriteTimeout != 10*time.Minute {
		t.Errorf("Expected default write timeout 10m, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Server.CopyWorkers != 8 {
		t.Errorf("Expected default copy_workers 8, got %d", cfg.Server.CopyWorkers)
	}
	if cfg.Server.MaxUploadBytes != 5<<30 {
		t.Errorf("Expected default max_upload_bytes 5GB, got %d", cfg.Server.MaxUploadBytes)
	}
}

func TestApplyDefaults_Storage(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Storage.Type != "s3" {
		t.Errorf("Expected default storage type 's3', got %q", cfg.Storage.Type)
	}
	if cfg.Storage.S3 == nil {
		t.Fatal("Expected S3 map to be initialized")
	}
	if region, ok := cfg.Storage.S3["region"]; !ok || region != "us-east-1" {
		t.Errorf("Expected default region 'us-east-1', got %v", region)
	}
	if cfg.Storage.Memory == nil {
		t.Fatal("Expected Memory map to be initialized")
	}
}

func TestApplyDefaults_Identity(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Identity.Type != "badger" {
		t.Errorf("Expected default identity type 'badger', got %q", cfg.Identity.Type)
	}
	if path, ok := cfg.Identity.Badger["db_path"]; !ok || path != "/var/lib/stratafs/identity" {
		t.Errorf("Expected default identity db_path, got %v", path)
	}
}

func TestApplyDefaults_Auth(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	// The secret must never be defaulted
	if cfg.Auth.Secret != "" {
		t.Error("Expected auth secret to stay empty")
	}
	if cfg.Auth.Issuer != "stratafs" {
		t.Errorf("Expected default issuer 'stratafs', got %q", cfg.Auth.Issuer)
	}
	if cfg.Auth.AccessTTL != 15*time.Minute {
		t.Errorf("Expected default access_ttl 15m, got %v", cfg.Auth.AccessTTL)
	}
	if cfg.Auth.RefreshTTL != 7*24*time.Hour {
		t.Errorf("Expected default refresh_ttl 168h, got %v", cfg.Auth.RefreshTTL)
	}
}

func TestApplyDefaults_Audit(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Audit.Enabled {
		t.Error("Expected audit to default to disabled")
	}
	if cfg.Audit.QueueSize != 1024 {
		t.Errorf("Expected default queue_size 1024, got %d", cfg.Audit.QueueSize)
	}
	if cfg.Audit.Geolocation.Endpoint == "" {
		t.Error("Expected default geolocation endpoint")
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.ListenAddr = ":9000"
	cfg.Server.CopyWorkers = 2
	cfg.Auth.AccessTTL = time.Hour
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("Expected explicit listen_addr preserved, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.CopyWorkers != 2 {
		t.Errorf("Expected explicit copy_workers preserved, got %d", cfg.Server.CopyWorkers)
	}
	if cfg.Auth.AccessTTL != time.Hour {
		t.Errorf("Expected explicit access_ttl preserved, got %v", cfg.Auth.AccessTTL)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Audit.Enabled {
		t.Error("Expected generated config to enable audit")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected generated config to enable metrics")
	}
	if !cfg.SFTP.Enabled {
		t.Error("Expected generated config to enable sftp")
	}
	if cfg.SFTP.Port != 22 {
		t.Errorf("Expected default sftp port 22, got %d", cfg.SFTP.Port)
	}
}
