package config

import "time"

// Default values applied for unset fields.
const (
	DefaultMinUID      = 1000
	DefaultGraceWindow = 30 * 24 * time.Hour
	DefaultLogLevel    = "INFO"
	DefaultLogFormat   = "text"
	DefaultLogOutput   = "stderr"
)

// DefaultNologinShells are the shells that mark a user as non-interactive.
var DefaultNologinShells = []string{
	"/sbin/nologin",
	"/usr/sbin/nologin",
	"/bin/nologin",
	"/bin/false",
}

// ApplyDefaults fills in defaults for any zero-valued field. Boolean knobs
// keep whatever the file said; their defaults only matter for
// GetDefaultConfig.
func ApplyDefaults(cfg *Config) {
	if cfg.MinUID == 0 {
		cfg.MinUID = DefaultMinUID
	}
	if cfg.GraceWindow == 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	if cfg.NologinShells == nil {
		cfg.NologinShells = append([]string(nil), DefaultNologinShells...)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = DefaultLogOutput
	}
}

// GetDefaultConfig returns the configuration used when no config file
// exists: conservative eligibility checks on, metrics off.
func GetDefaultConfig() *Config {
	return &Config{
		MinUID:              DefaultMinUID,
		GraceWindow:         DefaultGraceWindow,
		SkipLocked:          true,
		RequireHome:         true,
		EnforcePrimaryGroup: true,
		NologinShells:       append([]string(nil), DefaultNologinShells...),
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Output: DefaultLogOutput,
		},
	}
}
