// generate-config writes a default stratafs config file.
package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stratafs/stratafs/pkg/config"
)

// yamlConfig mirrors config.Config with yaml tags and human-readable
// durations. The config package decodes with mapstructure, so the structs
// there carry no yaml tags; this tool owns the file representation.
type yamlConfig struct {
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Server struct {
		ListenAddr      string `yaml:"listen_addr"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		IdleTimeout     string `yaml:"idle_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
		CopyWorkers     int    `yaml:"copy_workers"`
	} `yaml:"server"`
	Storage struct {
		Type string         `yaml:"type"`
		S3   map[string]any `yaml:"s3"`
	} `yaml:"storage"`
	Identity struct {
		Type   string         `yaml:"type"`
		Badger map[string]any `yaml:"badger"`
	} `yaml:"identity"`
	Auth struct {
		Secret     string `yaml:"secret"`
		Issuer     string `yaml:"issuer"`
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
	} `yaml:"auth"`
	Audit struct {
		Enabled     bool           `yaml:"enabled"`
		QueueSize   int            `yaml:"queue_size"`
		Badger      map[string]any `yaml:"badger"`
		Geolocation struct {
			Enabled  bool   `yaml:"enabled"`
			Endpoint string `yaml:"endpoint"`
		} `yaml:"geolocation"`
	} `yaml:"audit"`
	SFTP struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"sftp"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

func main() {
	cfg := config.GetDefaultConfig()

	var out yamlConfig
	out.Logging.Level = cfg.Logging.Level
	out.Logging.Format = cfg.Logging.Format
	out.Logging.Output = cfg.Logging.Output

	out.Server.ListenAddr = cfg.Server.ListenAddr
	out.Server.ReadTimeout = cfg.Server.ReadTimeout.String()
	out.Server.WriteTimeout = cfg.Server.WriteTimeout.String()
	out.Server.IdleTimeout = cfg.Server.IdleTimeout.String()
	out.Server.ShutdownTimeout = cfg.Server.ShutdownTimeout.String()
	out.Server.MaxUploadBytes = cfg.Server.MaxUploadBytes
	out.Server.CopyWorkers = cfg.Server.CopyWorkers

	out.Storage.Type = cfg.Storage.Type
	out.Storage.S3 = map[string]any{
		"region": cfg.Storage.S3["region"],
		"bucket": "your-bucket-name",
	}

	out.Identity.Type = cfg.Identity.Type
	out.Identity.Badger = cfg.Identity.Badger

	// Left empty on purpose: the server refuses to start without a secret,
	// and a generated default would end up shared across installs.
	out.Auth.Secret = ""
	out.Auth.Issuer = cfg.Auth.Issuer
	out.Auth.AccessTTL = cfg.Auth.AccessTTL.String()
	out.Auth.RefreshTTL = cfg.Auth.RefreshTTL.String()

	out.Audit.Enabled = cfg.Audit.Enabled
	out.Audit.QueueSize = cfg.Audit.QueueSize
	out.Audit.Badger = cfg.Audit.Badger
	out.Audit.Geolocation.Enabled = cfg.Audit.Geolocation.Enabled
	out.Audit.Geolocation.Endpoint = cfg.Audit.Geolocation.Endpoint

	out.SFTP.Enabled = cfg.SFTP.Enabled
	out.SFTP.Host = cfg.SFTP.Host
	out.SFTP.Port = cfg.SFTP.Port

	out.Metrics.Enabled = cfg.Metrics.Enabled

	data, err := yaml.Marshal(&out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling config: %v\n", err)
		os.Exit(1)
	}

	header := []byte("# stratafs configuration\n# Every key can be overridden with a STRATAFS_ environment variable,\n# e.g. STRATAFS_AUTH_SECRET or STRATAFS_STORAGE_S3_BUCKET.\n\n")

	outputFile := "config.yaml"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if err := os.WriteFile(outputFile, append(header, data...), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Default config written to %s\n", outputFile)
}
