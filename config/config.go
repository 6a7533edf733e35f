// Package config loads the process-level settings that wire an agentrt
// deployment together: which model provider to call, the conversation
// window, which session-sync backend to use, and logging. It follows the
// same load shape used across the corpus this runtime was built alongside:
// a single YAML document, environment variable expansion before parsing,
// unknown-field rejection, defaults applied after decode, then validation.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the top-level process configuration.
	Config struct {
		Provider     ProviderConfig     `yaml:"provider"`
		Conversation ConversationConfig `yaml:"conversation"`
		Persistence  PersistenceConfig  `yaml:"persistence"`
		RateLimit    RateLimitConfig    `yaml:"rate_limit"`
		Logging      LoggingConfig      `yaml:"logging"`
	}

	// ProviderConfig selects and configures the model adapter.
	ProviderConfig struct {
		// Name selects the adapter: "anthropic" or "openai".
		Name    string `yaml:"name"`
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	}

	// ConversationConfig configures the WindowManager conversation trimmer.
	ConversationConfig struct {
		// MaxMessages is the window size passed to NewWindowManager. Zero
		// disables trimming.
		MaxMessages int `yaml:"max_messages"`
	}

	// PersistenceConfig selects and configures a session-sync backend.
	PersistenceConfig struct {
		// Backend selects the store: "", "file", "dynamodb", "redis", or
		// "mongo". Empty means no session-sync is configured.
		Backend string `yaml:"backend"`

		File     FileStoreConfig     `yaml:"file"`
		DynamoDB DynamoDBStoreConfig `yaml:"dynamodb"`
		Redis    RedisStoreConfig    `yaml:"redis"`
		Mongo    MongoStoreConfig    `yaml:"mongo"`
	}

	// FileStoreConfig configures persistence/filestore.
	FileStoreConfig struct {
		Dir string `yaml:"dir"`
	}

	// DynamoDBStoreConfig configures persistence/ddbstore.
	DynamoDBStoreConfig struct {
		Table  string `yaml:"table"`
		Region string `yaml:"region"`
	}

	// RedisStoreConfig configures persistence/redisstore.
	RedisStoreConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	}

	// MongoStoreConfig configures persistence/mongostore.
	MongoStoreConfig struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	}

	// RateLimitConfig configures the providers/ratelimit decorator. Zero
	// values mean the Limiter is not applied.
	RateLimitConfig struct {
		Enabled    bool    `yaml:"enabled"`
		InitialTPM float64 `yaml:"initial_tpm"`
		MaxTPM     float64 `yaml:"max_tpm"`
	}

	// LoggingConfig configures the telemetry Logger a deployment installs
	// as the process default.
	LoggingConfig struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
)

// Load reads, expands, and decodes the YAML configuration at path, applies
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	var extra struct{}
	if err := decoder.Decode(&extra); err != io.EOF {
		return nil, fmt.Errorf("config: %s must contain a single YAML document", path)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider.Name)) {
	case "anthropic":
		if cfg.Provider.Model == "" {
			cfg.Provider.Model = "claude-sonnet-4-20250514"
		}
	case "openai":
		if cfg.Provider.Model == "" {
			cfg.Provider.Model = "gpt-4o"
		}
	}
	if cfg.Conversation.MaxMessages < 0 {
		cfg.Conversation.MaxMessages = 0
	}
	if cfg.Persistence.Backend == "file" && cfg.Persistence.File.Dir == "" {
		cfg.Persistence.File.Dir = "./sessions"
	}
	if cfg.Persistence.Backend == "redis" {
		if cfg.Persistence.Redis.Addr == "" {
			cfg.Persistence.Redis.Addr = "127.0.0.1:6379"
		}
		if cfg.Persistence.Redis.Prefix == "" {
			cfg.Persistence.Redis.Prefix = "agentrt:"
		}
	}
	if cfg.Persistence.Backend == "mongo" && cfg.Persistence.Mongo.Database == "" {
		cfg.Persistence.Mongo.Database = "agentrt"
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.InitialTPM <= 0 {
			cfg.RateLimit.InitialTPM = 60000
		}
		if cfg.RateLimit.MaxTPM < cfg.RateLimit.InitialTPM {
			cfg.RateLimit.MaxTPM = cfg.RateLimit.InitialTPM
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// ValidationError reports every configuration problem found by Load in one
// error, rather than failing on the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	switch strings.ToLower(strings.TrimSpace(cfg.Provider.Name)) {
	case "anthropic", "openai":
		if strings.TrimSpace(cfg.Provider.APIKey) == "" {
			issues = append(issues, "provider.api_key is required")
		}
	case "":
		issues = append(issues, "provider.name is required")
	default:
		issues = append(issues, fmt.Sprintf("provider.name %q must be \"anthropic\" or \"openai\"", cfg.Provider.Name))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Persistence.Backend)) {
	case "", "file", "dynamodb", "redis", "mongo":
	default:
		issues = append(issues, fmt.Sprintf("persistence.backend %q must be \"file\", \"dynamodb\", \"redis\", or \"mongo\"", cfg.Persistence.Backend))
	}
	if strings.EqualFold(cfg.Persistence.Backend, "dynamodb") && strings.TrimSpace(cfg.Persistence.DynamoDB.Table) == "" {
		issues = append(issues, "persistence.dynamodb.table is required when persistence.backend is \"dynamodb\"")
	}
	if strings.EqualFold(cfg.Persistence.Backend, "mongo") && strings.TrimSpace(cfg.Persistence.Mongo.URI) == "" {
		issues = append(issues, "persistence.mongo.uri is required when persistence.backend is \"mongo\"")
	}

	if cfg.RateLimit.Enabled && cfg.RateLimit.InitialTPM <= 0 {
		issues = append(issues, "rate_limit.initial_tpm must be > 0 when rate_limit.enabled is true")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level %q must be \"debug\", \"info\", \"warn\", or \"error\"", cfg.Logging.Level))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format %q must be \"json\" or \"text\"", cfg.Logging.Format))
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// WindowSize returns the conversation window in messages, or 0 when
// trimming is disabled.
func (c *Config) WindowSize() int { return c.Conversation.MaxMessages }

// RateLimitBudget reports the configured rate-limit budget and whether the
// decorator should be applied at all.
func (c *Config) RateLimitBudget() (initialTPM, maxTPM float64, enabled bool) {
	return c.RateLimit.InitialTPM, c.RateLimit.MaxTPM, c.RateLimit.Enabled
}
