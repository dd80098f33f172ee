// Package config loads shardd's configuration the way the teacher's
// pkg/config does: viper for layered sources (env > file > defaults),
// mapstructure tags driving the unmarshal, go-playground/validator for
// declarative field validation plus a custom-rules pass for anything a
// struct tag can't express.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shardfs/shard/pkg/shardid"
)

// Config is the complete shardd configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (SHARDD_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains process-wide settings.
	Server ServerConfig `mapstructure:"server"`

	// Shard identifies this process's shard and its placement policy.
	Shard ShardConfig `mapstructure:"shard"`

	// Storage configures the embedded key-value engine backing shard state.
	Storage StorageConfig `mapstructure:"storage"`

	// BlockCache configures how block service directory info is refreshed.
	BlockCache BlockCacheConfig `mapstructure:"block_cache"`

	// Metrics configures the Prometheus exposition endpoint.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for in-flight requests to
	// drain during a graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// ListenAddress is a required setting, but shardd starts no
	// wire-protocol listener and nothing outside this package reads it.
	ListenAddress string `mapstructure:"listen_address" validate:"required"`
}

// ShardConfig identifies this process's shard and bounds its placement
// decisions.
type ShardConfig struct {
	// Id is this process's shard number.
	Id shardid.ShardId `mapstructure:"id"`

	// StorageClasses lists the storage classes span placement may draw
	// block services from, in preference order.
	StorageClasses []string `mapstructure:"storage_classes" validate:"required,min=1,dive,required"`

	// MinMTU and MaxMTU are validated (MaxMTU > MinMTU) but not read by
	// readpath or preparepath, which clamp a client's MTU with pkg/wire's
	// fixed MinMTU/MaxMTU instead.
	MinMTU uint32 `mapstructure:"min_mtu" validate:"required,gt=0"`
	MaxMTU uint32 `mapstructure:"max_mtu" validate:"required,gtfield=MinMTU"`
}

// StorageConfig configures the embedded key-value engine.
type StorageConfig struct {
	// Path is the directory badger stores its files under.
	Path string `mapstructure:"path" validate:"required"`

	// Badger carries engine-specific tuning knobs (e.g. value_log_file_size,
	// num_compactors) passed through to badger.Options by name.
	Badger map[string]any `mapstructure:"badger"`
}

// BlockCacheConfig configures the periodic refresh of block service
// directory info from the registry.
type BlockCacheConfig struct {
	// RegistryAddress is where the block service registry is reached.
	RegistryAddress string `mapstructure:"registry_address" validate:"required"`

	// RefreshInterval is how often the cache polls the registry for
	// updated addresses, flags and failure domains.
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"required,gt=0"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	// ListenAddress is the address /metrics is served on. Empty disables it.
	ListenAddress string `mapstructure:"listen_address"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
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

// setupViper configures viper with environment variable and config file
// search settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SHARDD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists; a missing file
// is not an error, since defaults may be sufficient.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME/shardd,
// falling back to ~/.config/shardd, falling back to the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "shardd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "shardd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
