package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "NEWSFORGE_CONFIG"
	databaseDSNEnv     = "DATABASE_DSN"
	openAIAPIKeyEnv    = "OPENAI_API_KEY"
	openAIModelEnv     = "OPENAI_MODEL"
	resendAPIKeyEnv    = "RESEND_API_KEY"
	githubTokenEnv     = "GITHUB_TOKEN"
	extractorAPIKeyEnv = "EXTRACTOR_API_KEY"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig              `yaml:"logging"`
	Database   DatabaseConfig             `yaml:"database"`
	Collection CollectionConfig           `yaml:"collection"`
	Curation   CurationConfig             `yaml:"curation"`
	Delivery   DeliveryConfig             `yaml:"delivery"`
	RateLimits map[string]RateLimitConfig `yaml:"rateLimits"`
	OpenAI     OpenAIConfig               `yaml:"openai"`
	Resend     ResendConfig               `yaml:"resend"`
	GitHub     GitHubConfig               `yaml:"github"`
	HackerNews HackerNewsConfig           `yaml:"hackerNews"`
	Extractor  ExtractorConfig            `yaml:"extractor"`
	Serve      ServeConfig                `yaml:"serve"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes Postgres connection details for the profile
// store and the analytics sink. Empty DSN disables both.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// CollectionConfig bounds the content-collection stage.
type CollectionConfig struct {
	SourceTimeoutSeconds int `yaml:"sourceTimeoutSeconds"`
	MaxItemsPerSource    int `yaml:"maxItemsPerSource"`
}

// SourceTimeout returns the per-source fetch deadline.
func (c CollectionConfig) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutSeconds) * time.Second
}

// CurationConfig bounds the AI-scoring stage and declares the filtering
// thresholds. MinCompositeScore is the hard floor (closed bound); the
// quality floor defaults here but is overridable per user profile.
type CurationConfig struct {
	BatchSize              int     `yaml:"batchSize"`
	AnalysisRetries        int     `yaml:"analysisRetries"`
	AnalysisBackoffSeconds int     `yaml:"analysisBackoffSeconds"`
	MinCompositeScore      float64 `yaml:"minCompositeScore"`
	DefaultQualityFloor    float64 `yaml:"defaultQualityFloor"`
}

// AnalysisBackoff returns the base backoff between analysis retries.
func (c CurationConfig) AnalysisBackoff() time.Duration {
	return time.Duration(c.AnalysisBackoffSeconds) * time.Second
}

// DeliveryConfig bounds the sending stage.
type DeliveryConfig struct {
	MaxAttempts           int `yaml:"maxAttempts"`
	BaseBackoffSeconds    int `yaml:"baseBackoffSeconds"`
	AttemptTimeoutSeconds int `yaml:"attemptTimeoutSeconds"`
}

// BaseBackoff returns the initial retry backoff.
func (c DeliveryConfig) BaseBackoff() time.Duration {
	return time.Duration(c.BaseBackoffSeconds) * time.Second
}

// AttemptTimeout returns the per-attempt deadline.
func (c DeliveryConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutSeconds) * time.Second
}

// RateLimitConfig describes a fixed window for one provider key.
type RateLimitConfig struct {
	MaxCalls      int `yaml:"maxCalls"`
	WindowSeconds int `yaml:"windowSeconds"`
}

// Window returns the configured window duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// OpenAIConfig defines how to contact the scoring model.
type OpenAIConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// ResendConfig wires the delivery provider.
type ResendConfig struct {
	Endpoint    string `yaml:"endpoint"`
	APIKey      string `yaml:"apiKey"`
	FromAddress string `yaml:"fromAddress"`
}

// GitHubConfig wires the repository-activity source.
type GitHubConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}

// HackerNewsConfig wires the forum/posts source.
type HackerNewsConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// ExtractorConfig wires the full-text extraction service.
type ExtractorConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// ServeConfig lists the users processed by the scheduled serve mode.
type ServeConfig struct {
	Users                []string `yaml:"users"`
	TickIntervalSeconds  int      `yaml:"tickIntervalSeconds"`
	RunOnStart           bool     `yaml:"runOnStart"`
}

// TickInterval returns the scheduler tick period.
func (c ServeConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// Load reads YAML configuration (if present) and applies environment
// overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Validate checks the knobs that have hard invariants.
func (c Config) Validate() error {
	if c.Curation.MinCompositeScore < 0 || c.Curation.MinCompositeScore > 1 {
		return fmt.Errorf("curation.minCompositeScore must be within [0,1], got %v", c.Curation.MinCompositeScore)
	}
	if c.Curation.DefaultQualityFloor < 0 || c.Curation.DefaultQualityFloor > 1 {
		return fmt.Errorf("curation.defaultQualityFloor must be within [0,1], got %v", c.Curation.DefaultQualityFloor)
	}
	if c.Curation.BatchSize < 1 {
		return fmt.Errorf("curation.batchSize must be positive, got %d", c.Curation.BatchSize)
	}
	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("delivery.maxAttempts must be positive, got %d", c.Delivery.MaxAttempts)
	}
	if c.Collection.SourceTimeoutSeconds < 1 {
		return fmt.Errorf("collection.sourceTimeoutSeconds must be positive, got %d", c.Collection.SourceTimeoutSeconds)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.OpenAI.Model = v
	}
	if v := os.Getenv(resendAPIKeyEnv); v != "" {
		c.Resend.APIKey = v
	}
	if v := os.Getenv(githubTokenEnv); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv(extractorAPIKeyEnv); v != "" {
		c.Extractor.APIKey = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Collection.SourceTimeoutSeconds > 0 {
		base.Collection.SourceTimeoutSeconds = override.Collection.SourceTimeoutSeconds
	}
	if override.Collection.MaxItemsPerSource > 0 {
		base.Collection.MaxItemsPerSource = override.Collection.MaxItemsPerSource
	}

	if override.Curation.BatchSize > 0 {
		base.Curation.BatchSize = override.Curation.BatchSize
	}
	if override.Curation.AnalysisRetries > 0 {
		base.Curation.AnalysisRetries = override.Curation.AnalysisRetries
	}
	if override.Curation.AnalysisBackoffSeconds > 0 {
		base.Curation.AnalysisBackoffSeconds = override.Curation.AnalysisBackoffSeconds
	}
	if override.Curation.MinCompositeScore > 0 {
		base.Curation.MinCompositeScore = override.Curation.MinCompositeScore
	}
	if override.Curation.DefaultQualityFloor > 0 {
		base.Curation.DefaultQualityFloor = override.Curation.DefaultQualityFloor
	}

	if override.Delivery.MaxAttempts > 0 {
		base.Delivery.MaxAttempts = override.Delivery.MaxAttempts
	}
	if override.Delivery.BaseBackoffSeconds > 0 {
		base.Delivery.BaseBackoffSeconds = override.Delivery.BaseBackoffSeconds
	}
	if override.Delivery.AttemptTimeoutSeconds > 0 {
		base.Delivery.AttemptTimeoutSeconds = override.Delivery.AttemptTimeoutSeconds
	}

	for key, limit := range override.RateLimits {
		base.RateLimits[key] = limit
	}

	if override.OpenAI.Endpoint != "" {
		base.OpenAI.Endpoint = override.OpenAI.Endpoint
	}
	if override.OpenAI.Model != "" {
		base.OpenAI.Model = override.OpenAI.Model
	}
	if override.OpenAI.APIKey != "" {
		base.OpenAI.APIKey = override.OpenAI.APIKey
	}

	if override.Resend.Endpoint != "" {
		base.Resend.Endpoint = override.Resend.Endpoint
	}
	if override.Resend.APIKey != "" {
		base.Resend.APIKey = override.Resend.APIKey
	}
	if override.Resend.FromAddress != "" {
		base.Resend.FromAddress = override.Resend.FromAddress
	}

	if override.GitHub.Endpoint != "" {
		base.GitHub.Endpoint = override.GitHub.Endpoint
	}
	if override.GitHub.Token != "" {
		base.GitHub.Token = override.GitHub.Token
	}
	if override.HackerNews.Endpoint != "" {
		base.HackerNews = override.HackerNews
	}
	if override.Extractor.Endpoint != "" {
		base.Extractor.Endpoint = override.Extractor.Endpoint
	}
	if override.Extractor.APIKey != "" {
		base.Extractor.APIKey = override.Extractor.APIKey
	}

	if len(override.Serve.Users) > 0 {
		base.Serve.Users = override.Serve.Users
	}
	if override.Serve.TickIntervalSeconds > 0 {
		base.Serve.TickIntervalSeconds = override.Serve.TickIntervalSeconds
	}
	if override.Serve.RunOnStart {
		base.Serve.RunOnStart = true
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{DSN: ""},
		Collection: CollectionConfig{
			SourceTimeoutSeconds: 30,
			MaxItemsPerSource:    10,
		},
		Curation: CurationConfig{
			BatchSize:              8,
			AnalysisRetries:        2,
			AnalysisBackoffSeconds: 1,
			MinCompositeScore:      0.2,
			DefaultQualityFloor:    0.5,
		},
		Delivery: DeliveryConfig{
			MaxAttempts:           3,
			BaseBackoffSeconds:    1,
			AttemptTimeoutSeconds: 15,
		},
		RateLimits: map[string]RateLimitConfig{
			"github":     {MaxCalls: 30, WindowSeconds: 60},
			"hackernews": {MaxCalls: 60, WindowSeconds: 60},
			"extractor":  {MaxCalls: 20, WindowSeconds: 60},
			"openai":     {MaxCalls: 60, WindowSeconds: 60},
		},
		OpenAI: OpenAIConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
		},
		Resend: ResendConfig{
			Endpoint:    "https://api.resend.com/emails",
			FromAddress: "newsletter@newsforge.local",
		},
		GitHub:     GitHubConfig{Endpoint: "https://api.github.com"},
		HackerNews: HackerNewsConfig{Endpoint: "https://hn.algolia.com/api/v1"},
		Extractor:  ExtractorConfig{Endpoint: "https://api.firecrawl.dev"},
		Serve: ServeConfig{
			TickIntervalSeconds: 24 * 60 * 60,
			RunOnStart:          true,
		},
	}
}
