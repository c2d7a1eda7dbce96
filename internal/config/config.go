package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Search    SearchConfig    `yaml:"search"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	LLM       LLMConfig       `yaml:"llm"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Outreach  OutreachConfig  `yaml:"outreach"`
	Content   ContentConfig   `yaml:"content"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// GetHost returns the bind host, defaulting to 0.0.0.0.
func (s ServerConfig) GetHost() string {
	if s.Host == "" {
		return "0.0.0.0"
	}
	return s.Host
}

// SearchConfig holds web-search provider credentials. An empty APIKey
// disables the provider; the research pipeline degrades to the remaining
// sources.
type SearchConfig struct {
	APIKey         string `yaml:"api_key"`
	EngineID       string `yaml:"engine_id"`
	MaxConcurrency int    `yaml:"max_concurrency"` // default 4
}

// ScrapeConfig holds page-scrape provider settings.
type ScrapeConfig struct {
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	MaxConcurrency   int    `yaml:"max_concurrency"`    // default 2
	PerHostGapMillis int    `yaml:"per_host_gap_ms"`    // default 500
	BreakerThreshold int    `yaml:"breaker_threshold"`  // default 2
	BreakerCooldownS int    `yaml:"breaker_cooldown_s"` // default 300
}

// LLMConfig holds LLM provider settings. Provider is "openai" or "bedrock";
// absent credentials disable the LLM research source.
type LLMConfig struct {
	Provider       string `yaml:"provider"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	BedrockModelID string `yaml:"bedrock_model_id"`
	AWSRegion      string `yaml:"aws_region"`
	MaxConcurrency int    `yaml:"max_concurrency"` // default 4
}

// StorageConfig selects and parameterizes the document-store backend.
type StorageConfig struct {
	Type          string `yaml:"type"` // memory, local, postgres, dynamo
	LocalPath     string `yaml:"local_path"`
	DatabaseURL   string `yaml:"database_url"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	S3Bucket      string `yaml:"s3_bucket"` // weekly report archive, optional
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"`
}

// RedisConfig holds the optional Redis connection. When URL is empty the
// rate limiter and learning locks fall back to in-process implementations.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// PipelineConfig tunes the research/discovery pipelines.
type PipelineConfig struct {
	BatchMode          bool `yaml:"batch_mode"`           // free-tier budget mode
	BatchItemCap       int  `yaml:"batch_item_cap"`       // default 5
	ResearchTimeoutS   int  `yaml:"research_timeout_s"`   // default 90
	DiscoveryTimeoutS  int  `yaml:"discovery_timeout_s"`  // default 120
	ProspectTargetKeep int  `yaml:"prospect_target_keep"` // default 20
}

// ResearchTimeout returns the research workflow deadline.
func (p PipelineConfig) ResearchTimeout() time.Duration {
	if p.ResearchTimeoutS <= 0 {
		return 90 * time.Second
	}
	return time.Duration(p.ResearchTimeoutS) * time.Second
}

// DiscoveryTimeout returns the discovery workflow deadline.
func (p PipelineConfig) DiscoveryTimeout() time.Duration {
	if p.DiscoveryTimeoutS <= 0 {
		return 120 * time.Second
	}
	return time.Duration(p.DiscoveryTimeoutS) * time.Second
}

// OutreachConfig tunes segmentation and cadence.
type OutreachConfig struct {
	// StealthFounderRatio resolves the 5%-vs-10% planning-doc overlap;
	// canonical default 0.05.
	StealthFounderRatio float64 `yaml:"stealth_founder_ratio"`
	MinPriorityScore    float64 `yaml:"min_priority_score"`
	VariantsPerStep     int     `yaml:"variants_per_step"` // default 2
}

// ContentConfig tunes content planning. PacerMix maps pillar names to the
// target share of posts; absent or empty, the built-in 40/50/10 mix applies.
type ContentConfig struct {
	PacerMix map[string]float64 `yaml:"pacer_mix"`
}

// RealtimeConfig tunes the activity bus and webhook dispatcher.
type RealtimeConfig struct {
	BusCapacity           int `yaml:"bus_capacity"`            // default 1024
	HeartbeatSeconds      int `yaml:"heartbeat_seconds"`       // default 30
	WebhookTimeoutSeconds int `yaml:"webhook_timeout_seconds"` // default 10
	DisableAfterFailures  int `yaml:"disable_after_failures"`  // default 5
}

// SchedulerConfig tunes background loops.
type SchedulerConfig struct {
	Enabled             bool `yaml:"enabled"`
	TickIntervalSeconds int  `yaml:"tick_interval_seconds"` // default 300
}

// LoadFromEnv loads the YAML config file (when present), then .env, then
// applies environment overrides. Missing file is not an error: everything
// can come from the environment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Search.APIKey, "SEARCH_API_KEY")
	overrideString(&cfg.Search.EngineID, "SEARCH_ENGINE_ID")
	overrideString(&cfg.Scrape.APIKey, "SCRAPE_API_KEY")
	overrideString(&cfg.Scrape.BaseURL, "SCRAPE_BASE_URL")
	overrideString(&cfg.LLM.APIKey, "LLM_API_KEY")
	overrideString(&cfg.LLM.Provider, "LLM_PROVIDER")
	overrideString(&cfg.LLM.Model, "LLM_MODEL")
	overrideString(&cfg.Storage.Type, "STORAGE_TYPE")
	overrideString(&cfg.Storage.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.Storage.DynamoDBTable, "DYNAMODB_TABLE")
	overrideString(&cfg.Storage.S3Bucket, "S3_BUCKET")
	overrideString(&cfg.Storage.AWSRegion, "AWS_REGION")
	overrideString(&cfg.Redis.URL, "REDIS_URL")
	overrideString(&cfg.Server.Host, "SERVER_HOST")

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BATCH_MODE"); v != "" {
		cfg.Pipeline.BatchMode = v == "true" || v == "1"
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}
	if cfg.Search.MaxConcurrency == 0 {
		cfg.Search.MaxConcurrency = 4
	}
	if cfg.Scrape.MaxConcurrency == 0 {
		cfg.Scrape.MaxConcurrency = 2
	}
	if cfg.Scrape.PerHostGapMillis == 0 {
		cfg.Scrape.PerHostGapMillis = 500
	}
	if cfg.Scrape.BreakerThreshold == 0 {
		cfg.Scrape.BreakerThreshold = 2
	}
	if cfg.Scrape.BreakerCooldownS == 0 {
		cfg.Scrape.BreakerCooldownS = 300
	}
	if cfg.LLM.MaxConcurrency == 0 {
		cfg.LLM.MaxConcurrency = 4
	}
	if cfg.Pipeline.BatchItemCap == 0 {
		cfg.Pipeline.BatchItemCap = 5
	}
	if cfg.Pipeline.ProspectTargetKeep == 0 {
		cfg.Pipeline.ProspectTargetKeep = 20
	}
	if cfg.Outreach.StealthFounderRatio == 0 {
		cfg.Outreach.StealthFounderRatio = 0.05
	}
	if cfg.Outreach.VariantsPerStep == 0 {
		cfg.Outreach.VariantsPerStep = 2
	}
	if cfg.Realtime.BusCapacity == 0 {
		cfg.Realtime.BusCapacity = 1024
	}
	if cfg.Realtime.HeartbeatSeconds == 0 {
		cfg.Realtime.HeartbeatSeconds = 30
	}
	if cfg.Realtime.WebhookTimeoutSeconds == 0 {
		cfg.Realtime.WebhookTimeoutSeconds = 10
	}
	if cfg.Realtime.DisableAfterFailures == 0 {
		cfg.Realtime.DisableAfterFailures = 5
	}
	if cfg.Scheduler.TickIntervalSeconds == 0 {
		cfg.Scheduler.TickIntervalSeconds = 300
	}
}
