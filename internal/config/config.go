package config

import (
	"fmt"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the root application configuration, populated from config.yaml,
// VOXPILOT_* environment variables, and CLI flags (in ascending precedence).
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Planner PlannerConfig `mapstructure:"planner" yaml:"planner"`
}

// LoggerConfig mirrors the knobs of the observability package.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File output, rotated by lumberjack. Empty LogFile disables it.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig selects and tunes the underlying browser. A non-empty
// RemoteURL switches session provisioning from a locally launched Chrome to a
// remote managed browser; this is a configuration-time policy, not a
// per-request choice.
type BrowserConfig struct {
	RemoteURL         string        `mapstructure:"remote_url" yaml:"remote_url"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// EngineConfig tunes intent execution.
type EngineConfig struct {
	DefaultStepTimeout time.Duration `mapstructure:"default_step_timeout" yaml:"default_step_timeout"`
}

// ServerConfig tunes the HTTP surface and on-disk layout.
type ServerConfig struct {
	Addr          string        `mapstructure:"addr" yaml:"addr"`
	ArtifactsDir  string        `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	UploadsDir    string        `mapstructure:"uploads_dir" yaml:"uploads_dir"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
	MaxUploadMB   int64         `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}

// PlannerConfig configures the LLM plan generator.
type PlannerConfig struct {
	Provider          string  `mapstructure:"provider" yaml:"provider"`
	Model             string  `mapstructure:"model" yaml:"model"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// ProviderGemini is the only planner provider currently wired.
const ProviderGemini = "gemini"

// SetDefaults registers every default on the given viper instance. Called
// before unmarshal so that a missing config file still yields a runnable
// configuration.
func SetDefaults(v *viper.Viper) {
	// Every key gets a default, even the zero-valued ones: viper only
	// surfaces VOXPILOT_* environment overrides for keys it knows about.
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "voxpilot")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 14)
	v.SetDefault("logger.compress", false)

	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.navigation_timeout", 30*time.Second)

	v.SetDefault("engine.default_step_timeout", 15*time.Second)

	v.SetDefault("server.addr", ":8787")
	v.SetDefault("server.artifacts_dir", "artifacts")
	v.SetDefault("server.uploads_dir", "uploads")
	v.SetDefault("server.shutdown_grace", 15*time.Second)
	v.SetDefault("server.max_upload_mb", 32)

	v.SetDefault("planner.provider", ProviderGemini)
	v.SetDefault("planner.model", "gemini-2.0-flash")
	v.SetDefault("planner.api_key", "")
	v.SetDefault("planner.temperature", 0.2)
	v.SetDefault("planner.requests_per_minute", 30)
}

// Load reads configuration from the given file (or the default search path
// when empty), layers environment variables on top, and validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.GetViper()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.voxpilot")
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("VOXPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars carry the day.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the rest of the process cannot run with.
func (c *Config) Validate() error {
	if c.Engine.DefaultStepTimeout <= 0 {
		return fmt.Errorf("engine.default_step_timeout must be positive, got %s", c.Engine.DefaultStepTimeout)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be positive, got %s", c.Browser.NavigationTimeout)
	}
	if c.Server.ArtifactsDir == "" {
		return fmt.Errorf("server.artifacts_dir must not be empty")
	}
	if c.Server.UploadsDir == "" {
		return fmt.Errorf("server.uploads_dir must not be empty")
	}
	if c.Planner.Provider != "" && c.Planner.Provider != ProviderGemini {
		return fmt.Errorf("unknown planner provider %q", c.Planner.Provider)
	}
	return nil
}
