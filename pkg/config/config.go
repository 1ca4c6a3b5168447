// Package config loads and validates the sacctsync tool configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (SACCTSYNC_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full tool configuration.
type Config struct {
	// Cluster restricts roster rows to one cluster. Empty accepts all.
	Cluster string `mapstructure:"cluster" yaml:"cluster,omitempty"`

	// MinUID is the threshold below which users are ignored entirely.
	MinUID int `mapstructure:"min_uid" validate:"gte=0" yaml:"min_uid"`

	// GraceWindow is how long after creation a user keeps the NEWUSER
	// defaults tier.
	GraceWindow time.Duration `mapstructure:"grace_window" validate:"required,gt=0" yaml:"grace_window"`

	// SkipLocked excludes users with a locked password.
	SkipLocked bool `mapstructure:"skip_locked" yaml:"skip_locked"`

	// RequireHome excludes users whose home directory does not exist.
	RequireHome bool `mapstructure:"require_home" yaml:"require_home"`

	// EnforcePrimaryGroup requires the account implied by a user's primary
	// group to exist, and keeps the default account pointed at it.
	EnforcePrimaryGroup bool `mapstructure:"enforce_primary_group" yaml:"enforce_primary_group"`

	// NologinShells lists shells that mark a user as non-interactive.
	NologinShells []string `mapstructure:"nologin_shells" yaml:"nologin_shells"`

	// Inputs names the files holding the pre-parsed listing inputs.
	Inputs InputsConfig `mapstructure:"inputs" yaml:"inputs"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls the run-metrics textfile.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// InputsConfig names the seven listing inputs of a run. Policy is the only
// one that must be present; the others default to empty listings when
// unset, which is useful for partial dry runs.
type InputsConfig struct {
	// Passwd holds identity rows (name:pw:uid:gid:gecos:home:shell).
	Passwd string `mapstructure:"passwd" yaml:"passwd,omitempty"`

	// Group holds group rows (name:ignored:gid:members).
	Group string `mapstructure:"group" yaml:"group,omitempty"`

	// Aliases holds group-to-account alias rows.
	Aliases string `mapstructure:"aliases" yaml:"aliases,omitempty"`

	// Associations holds the pipe-delimited current association listing.
	Associations string `mapstructure:"associations" yaml:"associations,omitempty"`

	// Roster holds user|defaultAccount|account|cluster rows.
	Roster string `mapstructure:"roster" yaml:"roster,omitempty"`

	// Transactions holds user|timestamp recent-creation rows.
	Transactions string `mapstructure:"transactions" yaml:"transactions,omitempty"`

	// Policy holds the layered scope:factor:value configuration (required).
	Policy string `mapstructure:"policy" validate:"required" yaml:"policy"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level (DEBUG, INFO, WARN, ERROR).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format selects text or json output.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig controls the node-exporter textfile written after a run.
type MetricsConfig struct {
	// Enabled turns metrics collection on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Textfile is where the Prometheus textfile is written.
	// Required when Enabled.
	Textfile string `mapstructure:"textfile" validate:"required_if=Enabled true" yaml:"textfile,omitempty"`
}

// Load reads configuration from file, environment, and defaults.
// A missing config file is not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration, turning a missing explicit config file into
// a user-friendly error with setup instructions.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Initialize one first:\n"+
				"  sacctsync init\n\n"+
				"Or point at a custom file:\n"+
				"  sacctsync <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration as YAML, creating parent directories
// as needed.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SACCTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook lets config files spell durations as "30s" or "720h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/sacctsync, falling back to
// ~/.config/sacctsync.
func getConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "sacctsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "sacctsync")
	}
	return filepath.Join(home, ".config", "sacctsync")
}

// GetDefaultConfigPath returns the default config file location.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
