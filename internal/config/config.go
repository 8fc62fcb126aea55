package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for entice.
type Config struct {
	General   GeneralConfig   `json:"general" yaml:"general"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Templates TemplatesConfig `json:"templates" yaml:"templates"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat"`                  // "text" | "json"
	LogFile   string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional, stderr when empty
}

type TelegramConfig struct {
	Token string `json:"token" yaml:"token"`
	// UpdateInterval is the pause between two long-poll requests, in milliseconds.
	UpdateInterval int `json:"updateInterval" yaml:"updateInterval"`
	// PollTimeout is the long-poll timeout passed to getUpdates, in seconds.
	PollTimeout          int    `json:"pollTimeout" yaml:"pollTimeout"`
	StartLink            string `json:"startLink,omitempty" yaml:"startLink,omitempty"`
	MaxConcurrentUpdates int    `json:"maxConcurrentUpdates" yaml:"maxConcurrentUpdates"`
	ParseMode            string `json:"parseMode,omitempty" yaml:"parseMode,omitempty"`
}

type DatabaseConfig struct {
	URL string `json:"url" yaml:"url"`
}

type TemplatesConfig struct {
	File string `json:"file,omitempty" yaml:"file,omitempty"` // YAML map of template name -> source
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Listen   string `json:"listen" yaml:"listen"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// RefreshInterval is how often the tracked chat gauge is recomputed from the store, in seconds.
	RefreshInterval int `json:"refreshInterval" yaml:"refreshInterval"`
}

// DefaultConfigDir returns the default config directory (~/.entice).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".entice"
	}
	return filepath.Join(home, ".entice")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a JSON or YAML (by extension) config file on top of Defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		// JSON configs may carry // comments and trailing commas.
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Database.URL = ExpandPath(cfg.Database.URL)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Templates.File = ExpandPath(cfg.Templates.File)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Telegram.UpdateInterval < 0 {
		errs = append(errs, "telegram.updateInterval must be >= 0")
	}
	if cfg.Telegram.PollTimeout < 0 || cfg.Telegram.PollTimeout > 600 {
		errs = append(errs, "telegram.pollTimeout must be between 0 and 600")
	}
	if cfg.Telegram.MaxConcurrentUpdates < 1 || cfg.Telegram.MaxConcurrentUpdates > 256 {
		errs = append(errs, "telegram.maxConcurrentUpdates must be between 1 and 256")
	}
	switch cfg.Telegram.ParseMode {
	case "", "Markdown", "MarkdownV2", "HTML":
	default:
		errs = append(errs, "telegram.parseMode must be one of: Markdown, MarkdownV2, HTML")
	}

	if cfg.Database.URL == "" {
		errs = append(errs, "database.url is required")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			errs = append(errs, "metrics.listen is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
			errs = append(errs, "metrics.endpoint must start with /")
		}
		if cfg.Metrics.RefreshInterval < 1 {
			errs = append(errs, "metrics.refreshInterval must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
