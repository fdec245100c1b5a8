// Package config loads and validates the server's configuration:
// logging, the NFSv3 listener, the backend selection, and the shares
// exported through the MOUNT service.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (NFSD3_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the complete server configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Shares  []ShareConfig `mapstructure:"shares" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format is the requested log output format: text or json. It is
	// validated but not applied; internal/logger always writes plain text.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output is the requested log destination: stdout, stderr, or a file
	// path. It is validated but not applied; internal/logger always
	// writes to stdout.
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains the NFSv3 listener's settings.
type ServerConfig struct {
	// Addr is the "host:port" the NFSv3 service listens on.
	Addr string `mapstructure:"addr" validate:"required"`

	// MountAddr is the "host:port" the companion MOUNT service listens on.
	MountAddr string `mapstructure:"mount_addr" validate:"required"`

	// RegisterPortmap advertises both services with a local rpcbind at startup.
	RegisterPortmap bool `mapstructure:"register_portmap"`

	// CaseSensitive controls PATHCONF's reported case sensitivity.
	CaseSensitive bool `mapstructure:"case_sensitive"`

	// MetricsAddr, when non-empty, serves Prometheus metrics at /metrics.
	// Only its port is used (9090 if none can be parsed); the metrics
	// server listens on all interfaces.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// BackendConfig selects and configures the filesystem back end the
// request processor dispatches procedure calls against.
type BackendConfig struct {
	// Type selects the backend implementation: memory, badger, or s3.
	Type string `mapstructure:"type" validate:"required,oneof=memory badger s3"`

	// Badger is used when Type == "badger".
	Badger BadgerConfig `mapstructure:"badger"`

	// S3 is used when Type == "s3".
	S3 S3Config `mapstructure:"s3"`
}

// BadgerConfig configures the persistent BadgerDB-backed backend.
type BadgerConfig struct {
	// Dir is the on-disk directory BadgerDB stores its files under.
	Dir string `mapstructure:"dir"`
}

// S3Config configures the S3-backed content backend.
type S3Config struct {
	// Bucket is the S3 bucket regular file content is stored in.
	Bucket string `mapstructure:"bucket"`

	// Region is the AWS region the bucket lives in.
	Region string `mapstructure:"region"`

	// Endpoint overrides the default AWS endpoint, for S3-compatible stores.
	Endpoint string `mapstructure:"endpoint"`

	// KeyPrefix is prepended to every object key.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ShareConfig defines one export the MOUNT service hands out a root
// file handle for.
type ShareConfig struct {
	// Path is the export path clients pass to MNT, e.g. "/export".
	Path string `mapstructure:"path" validate:"required,startswith=/"`
}

// Load reads configuration from file, environment, and defaults, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NFSD3")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(configDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("config: read config file: %w", err)
	}
	return nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nfsd3")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "nfsd3")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
