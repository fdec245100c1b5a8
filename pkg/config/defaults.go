package config

import "strings"

// ApplyDefaults fills in unspecified fields with sensible defaults after
// a Config is loaded from file and environment.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyBackendDefaults(&cfg.Backend)

	if len(cfg.Shares) == 0 {
		cfg.Shares = []ShareConfig{{Path: "/export"}}
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Addr == "" {
		cfg.Addr = ":2049"
	}
	if cfg.MountAddr == "" {
		cfg.MountAddr = ":20048"
	}
}

func applyBackendDefaults(cfg *BackendConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Type == "badger" && cfg.Badger.Dir == "" {
		cfg.Badger.Dir = "./nfsd3-data"
	}
	if cfg.Type == "s3" && cfg.S3.KeyPrefix == "" {
		cfg.S3.KeyPrefix = "nfsd3/content/"
	}
}
