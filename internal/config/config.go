// Package config loads server configuration from flags, environment, and an
// optional YAML file via viper, grounded on the pack's viper+yaml.v3 config
// idiom.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables the serve command wires up.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	SessionTTL            time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
	ControllerRequestTTL  time.Duration `mapstructure:"controller_request_ttl" yaml:"controller_request_ttl"`

	ChatLimit  int           `mapstructure:"chat_limit" yaml:"chat_limit"`
	ChatWindow time.Duration `mapstructure:"chat_window" yaml:"chat_window"`

	DriftThreshold float64       `mapstructure:"drift_threshold" yaml:"drift_threshold"`
	DriftWindow    time.Duration `mapstructure:"drift_window" yaml:"drift_window"`

	BaseTickInterval      time.Duration `mapstructure:"base_tick_interval" yaml:"base_tick_interval"`
	HighDriftTickInterval time.Duration `mapstructure:"high_drift_tick_interval" yaml:"high_drift_tick_interval"`

	SampleLibraryDir string `mapstructure:"sample_library_dir" yaml:"sample_library_dir"`
	UploadBaseDir    string `mapstructure:"upload_base_dir" yaml:"upload_base_dir"`

	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`

	AuditDBPath string `mapstructure:"audit_db_path" yaml:"audit_db_path"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Defaults returns the built-in configuration matching spec.md's named
// constants (session.TTL, session.ChatLimit, etc.).
func Defaults() Config {
	return Config{
		ListenAddr:            ":8080",
		SessionTTL:            time.Hour,
		ControllerRequestTTL:  5 * time.Minute,
		ChatLimit:             5,
		ChatWindow:            3000 * time.Millisecond,
		DriftThreshold:        0.08,
		DriftWindow:           10 * time.Second,
		BaseTickInterval:      150 * time.Millisecond,
		HighDriftTickInterval: 60 * time.Millisecond,
		SampleLibraryDir:      "",
		UploadBaseDir:         "",
		MetricsAddr:           ":9090",
		AuditDBPath:           "",
		LogLevel:              "info",
	}
}

// Load reads defaults, then an optional YAML file at path (if it exists),
// then SYNCD_-prefixed environment overrides, via viper.
func Load(path string) (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetEnvPrefix("syncd")
	v.AutomaticEnv()

	defaultsMap := map[string]any{
		"listen_addr":              cfg.ListenAddr,
		"session_ttl":              cfg.SessionTTL,
		"controller_request_ttl":   cfg.ControllerRequestTTL,
		"chat_limit":               cfg.ChatLimit,
		"chat_window":              cfg.ChatWindow,
		"drift_threshold":          cfg.DriftThreshold,
		"drift_window":             cfg.DriftWindow,
		"base_tick_interval":       cfg.BaseTickInterval,
		"high_drift_tick_interval": cfg.HighDriftTickInterval,
		"sample_library_dir":       cfg.SampleLibraryDir,
		"upload_base_dir":          cfg.UploadBaseDir,
		"metrics_addr":             cfg.MetricsAddr,
		"audit_db_path":            cfg.AuditDBPath,
		"log_level":                cfg.LogLevel,
	}
	for k, val := range defaultsMap {
		v.SetDefault(k, val)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the built-in defaults to path as YAML, for the
// `syncd config-init` bootstrap command.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
