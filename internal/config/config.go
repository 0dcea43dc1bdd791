// ABOUTME: Configuration loading and parsing for assist-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete assist-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Assistant AssistantConfig `yaml:"assistant"`
	Docs      DocsConfig      `yaml:"docs"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AssistantConfig holds remote assistant service configuration
type AssistantConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	AssistantID string `yaml:"assistant_id"`

	PollInterval time.Duration `yaml:"-"`
	RunTimeout   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	PollIntervalRaw string `yaml:"poll_interval"`
	RunTimeoutRaw   string `yaml:"run_timeout"`
}

// DocsConfig holds document source configuration.
// The document browser is disabled when BaseURL is empty.
type DocsConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// AuthConfig holds login and token configuration.
// One of Password or PasswordHash must be set; PasswordHash is a bcrypt
// hash and takes precedence when both are present.
type AuthConfig struct {
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	JWTSecret    string `yaml:"jwt_secret"`

	TokenTTL time.Duration `yaml:"-"`

	TokenTTLRaw string `yaml:"token_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding key is absent.
const (
	DefaultHTTPAddr         = ":8080"
	DefaultAssistantBaseURL = "https://api.openai.com/v1"
	DefaultPollInterval     = time.Second
	DefaultRunTimeout       = 2 * time.Minute
	DefaultTokenTTL         = 12 * time.Hour
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Assistant.BaseURL == "" {
		c.Assistant.BaseURL = DefaultAssistantBaseURL
	}
	if c.Assistant.PollInterval == 0 {
		c.Assistant.PollInterval = DefaultPollInterval
	}
	if c.Assistant.RunTimeout == 0 {
		c.Assistant.RunTimeout = DefaultRunTimeout
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Assistant.APIKey == "" {
		return fmt.Errorf("assistant.api_key is required")
	}
	if c.Assistant.AssistantID == "" {
		return fmt.Errorf("assistant.assistant_id is required")
	}
	if c.Auth.Password == "" && c.Auth.PasswordHash == "" {
		return fmt.Errorf("auth.password or auth.password_hash is required")
	}
	if c.Docs.BaseURL == "" && c.Docs.APIKey != "" {
		return fmt.Errorf("docs.api_key is set but docs.base_url is missing")
	}
	if c.Assistant.PollInterval <= 0 {
		return fmt.Errorf("assistant.poll_interval must be positive")
	}
	if c.Assistant.RunTimeout <= 0 {
		return fmt.Errorf("assistant.run_timeout must be positive")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Assistant.PollIntervalRaw != "" {
		cfg.Assistant.PollInterval, err = time.ParseDuration(cfg.Assistant.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Assistant.PollIntervalRaw, err)
		}
	}

	if cfg.Assistant.RunTimeoutRaw != "" {
		cfg.Assistant.RunTimeout, err = time.ParseDuration(cfg.Assistant.RunTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing run_timeout %q: %w", cfg.Assistant.RunTimeoutRaw, err)
		}
	}

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	return nil
}
