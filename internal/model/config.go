package model

import "time"

// Config holds the complete claimtree configuration
type Config struct {
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Audit       AuditConfig       `yaml:"audit" mapstructure:"audit"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// LLMConfig selects and configures the model provider
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	HTTPProxy   string  `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy  string  `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// CacheConfig configures the LLM response cache
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend  string        `yaml:"backend" mapstructure:"backend"` // memory, disk, layered, redis
	RedisURL string        `yaml:"redis_url" mapstructure:"redis_url"`
	Dir      string        `yaml:"dir" mapstructure:"dir"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// AuditConfig configures audit artifact persistence
type AuditConfig struct {
	Backend       string        `yaml:"backend" mapstructure:"backend"` // memory, redis, sqlite
	RedisURL      string        `yaml:"redis_url" mapstructure:"redis_url"`
	SQLitePath    string        `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	PreviewLength int           `yaml:"preview_length" mapstructure:"preview_length"` // 0 disables previews
}

// ConcurrencyConfig bounds parallel LLM calls
type ConcurrencyConfig struct {
	Workers           int     `yaml:"workers" mapstructure:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`

	// ModelRates overrides RequestsPerSecond per "provider/model" key
	ModelRates map[string]float64 `yaml:"model_rates,omitempty" mapstructure:"model_rates"`
}

// RetryConfig is the per-call retry policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff" mapstructure:"backoff"`
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

// PipelineConfig toggles optional stages
type PipelineConfig struct {
	Cruxes        bool `yaml:"cruxes" mapstructure:"cruxes"`
	SchemaVersion int  `yaml:"schema_version" mapstructure:"schema_version"`
	MinWords      int  `yaml:"min_words" mapstructure:"min_words"`
}

// OutputConfig controls where results are written
type OutputConfig struct {
	TreePath  string `yaml:"tree_path" mapstructure:"tree_path"`
	AuditPath string `yaml:"audit_path" mapstructure:"audit_path"`
	Verbose   bool   `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     60,
			Temperature: 0,
			MaxTokens:   4096,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Backend:  "memory",
			RedisURL: "redis://localhost:6379/0",
			Dir:      ".claimtree-cache",
			TTL:      24 * time.Hour,
		},
		Audit: AuditConfig{
			Backend:       "memory",
			RedisURL:      "redis://localhost:6379/0",
			SQLitePath:    "claimtree-audit.db",
			TTL:           6 * time.Hour,
			PreviewLength: 80,
		},
		Concurrency: ConcurrencyConfig{
			Workers:           8,
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Backoff:     2 * time.Second,
			CallTimeout: 90 * time.Second,
		},
		Pipeline: PipelineConfig{
			Cruxes:        false,
			SchemaVersion: 1,
			MinWords:      1,
		},
		Output: OutputConfig{
			TreePath:  "claimtree.json",
			AuditPath: "claimtree-audit.json",
		},
	}
}
