package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced with defaults; explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyShardDefaults(&cfg.Shard)
	applyStorageDefaults(&cfg.Storage)
	applyBlockCacheDefaults(&cfg.BlockCache)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":9990"
	}
}

func applyShardDefaults(cfg *ShardConfig) {
	if len(cfg.StorageClasses) == 0 {
		cfg.StorageClasses = []string{"HDD", "FLASH"}
	}
	if cfg.MinMTU == 0 {
		cfg.MinMTU = 1024
	}
	if cfg.MaxMTU == 0 {
		cfg.MaxMTU = 65536
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Path == "" {
		cfg.Path = "/var/lib/shardd/data"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
}

func applyBlockCacheDefaults(cfg *BlockCacheConfig) {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config with all default values applied,
// useful for generating sample configuration files.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{Badger: make(map[string]any)},
	}
	ApplyDefaults(cfg)
	return cfg
}
