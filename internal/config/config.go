// Package config provides configuration management for the news pipeline tasks.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"newsetl/pkg/utils"
)

// Configuration validation errors.
var (
	ErrMissingHome         = errors.New("storage.home_dir could not be resolved")
	ErrInvalidRoot         = errors.New("storage.root must be a relative directory name")
	ErrInvalidSourcesURL   = errors.New("newsapi.sources_url must be an absolute http(s) URL")
	ErrInvalidHeadlinesURL = errors.New("newsapi.headlines_url must be an absolute http(s) URL")
	ErrInvalidTimeout      = errors.New("newsapi.timeout_sec must be at least 1")
	ErrNoKeywords          = errors.New("newsapi.keywords must contain at least one keyword")
	ErrInvalidStateBackend = errors.New("state.backend must be one of: env, file, both")
	ErrInvalidLogLevel     = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat    = errors.New("logging.format must be 'text' or 'json'")
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey   = "NEWS_API_KEY"
	EnvHome     = "NEWSETL_HOME"
	EnvLogLevel = "NEWSETL_LOG_LEVEL"
)

// Defaults.
const (
	DefaultRoot         = "tempdata"
	DefaultSourcesURL   = "https://newsapi.org/v2/sources?language=en"
	DefaultHeadlinesURL = "https://newsapi.org/v2/top-headlines?"
	DefaultTimeoutSec   = 30
)

// Config represents the complete task configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
	State   StateConfig   `yaml:"state"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig locates the staging tree.
type StorageConfig struct {
	HomeDir string `yaml:"home_dir"`
	Root    string `yaml:"root"`
}

// NewsAPIConfig configures the news API client.
type NewsAPIConfig struct {
	SourcesURL   string   `yaml:"sources_url"`
	HeadlinesURL string   `yaml:"headlines_url"`
	APIKey       string   `yaml:"api_key"`
	UserAgent    string   `yaml:"user_agent"`
	Keywords     []string `yaml:"keywords"`
	TimeoutSec   int      `yaml:"timeout_sec"`
}

// StateConfig selects where the run variables are published.
type StateConfig struct {
	Backend string `yaml:"backend"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Storage: StorageConfig{
			HomeDir: home,
			Root:    DefaultRoot,
		},
		NewsAPI: NewsAPIConfig{
			SourcesURL:   DefaultSourcesURL,
			HeadlinesURL: DefaultHeadlinesURL,
			UserAgent:    "newsetl/1.0",
			Keywords:     []string{"Tempus Labs", "Eric Lefkofsky", "Cancer", "Immunotherapy"},
			TimeoutSec:   DefaultTimeoutSec,
		},
		State: StateConfig{
			Backend: "both",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
func LoadConfig(filepath string) (*Config, error) {
	cfg, err := readFile(filepath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Load reads .env (if present), the optional YAML file and the environment
// overrides, then validates the result once.
func Load(filepath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if filepath != "" {
		loaded, err := readFile(filepath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func readFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		c.NewsAPI.APIKey = key
	}

	if home := strings.TrimSpace(os.Getenv(EnvHome)); home != "" {
		c.Storage.HomeDir = home
	}

	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
}

// SaveConfig saves configuration to YAML file. The API key is never written.
func (c *Config) SaveConfig(filepath string) error {
	out := *c
	out.NewsAPI.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.HomeDir) == "" {
		return ErrMissingHome
	}

	root := strings.TrimSpace(c.Storage.Root)
	if root == "" || strings.HasPrefix(root, "/") || strings.Contains(root, "..") {
		return ErrInvalidRoot
	}

	urls := utils.NewHTTPHelper()

	if !urls.IsValidURL(c.NewsAPI.SourcesURL) {
		return ErrInvalidSourcesURL
	}

	if !urls.IsValidURL(c.NewsAPI.HeadlinesURL) {
		return ErrInvalidHeadlinesURL
	}

	if c.NewsAPI.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	if len(c.NewsAPI.Keywords) == 0 {
		return ErrNoKeywords
	}

	for i, kw := range c.NewsAPI.Keywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("%w: keywords[%d] is blank", ErrNoKeywords, i)
		}
	}

	switch c.State.Backend {
	case "env", "file", "both":
	default:
		return ErrInvalidStateBackend
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	return nil
}

// Timeout returns the HTTP timeout.
func (n *NewsAPIConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSec) * time.Second
}

// String returns a string representation of the config. The API key is masked.
func (c *Config) String() string {
	key := "unset"
	if c.NewsAPI.APIKey != "" {
		key = "set"
	}

	return fmt.Sprintf(
		"Config{Home: %s, Root: %s, APIKey: %s, State: %s, LogLevel: %s}",
		c.Storage.HomeDir,
		c.Storage.Root,
		key,
		c.State.Backend,
		c.Logging.Level,
	)
}
