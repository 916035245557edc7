// Package config assembles runtime settings from defaults, an optional
// YAML file and environment variables, in that order of precedence
// (environment wins).
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort     string `yaml:"api_port"`
	MetricsPort string `yaml:"metrics_port"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	VespaURL                 string `yaml:"vespa_url"`
	VespaSchema              string `yaml:"vespa_schema"`
	VespaRankingProfile      string `yaml:"vespa_ranking_profile"`
	VespaSummary             string `yaml:"vespa_summary"`
	VespaChunkTopK           int    `yaml:"vespa_chunk_top_k"`
	VespaQueryTimeoutSeconds int    `yaml:"vespa_query_timeout_seconds"`

	OllamaURL            string `yaml:"ollama_url"`
	OllamaEmbedModel     string `yaml:"ollama_embed_model"`
	OllamaTimeoutSeconds int    `yaml:"ollama_timeout_seconds"`

	LLMBaseURL        string `yaml:"llm_base_url"`
	LLMModel          string `yaml:"llm_model"`
	LLMAPIKey         string `yaml:"llm_api_key"`
	LLMTimeoutSeconds int    `yaml:"llm_timeout_seconds"`

	ExpandedQueries      int `yaml:"expanded_queries"`
	HitsPerQuery         int `yaml:"hits_per_query"`
	FusedTopK            int `yaml:"fused_top_k"`
	SearchTimeoutSeconds int `yaml:"search_timeout_seconds"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	RetryMaxAttempts          int     `yaml:"retry_max_attempts"`
	RetryInitialBackoffMillis int     `yaml:"retry_initial_backoff_ms"`
	RetryMaxBackoffMillis     int     `yaml:"retry_max_backoff_ms"`
	BreakerEnabled            bool    `yaml:"breaker_enabled"`
	BreakerFailureRatio       float64 `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeoutSeconds int     `yaml:"breaker_open_timeout_seconds"`
}

func defaults() Config {
	return Config{
		APIPort:     "8080",
		MetricsPort: "9090",
		LogLevel:    "info",
		LogFormat:   "json",

		VespaURL:                 "http://localhost:8090",
		VespaSchema:              "doc",
		VespaRankingProfile:      "base-features",
		VespaSummary:             "no-chunks",
		VespaChunkTopK:           3,
		VespaQueryTimeoutSeconds: 20,

		OllamaURL:            "http://localhost:11434",
		OllamaEmbedModel:     "nomic-embed-text",
		OllamaTimeoutSeconds: 30,

		LLMBaseURL:        "http://localhost:11434/v1",
		LLMModel:          "llama3.1:8b",
		LLMTimeoutSeconds: 120,

		ExpandedQueries:      3,
		HitsPerQuery:         5,
		FusedTopK:            3,
		SearchTimeoutSeconds: 20,

		RateLimitRPS:   10,
		RateLimitBurst: 20,

		NATSSubject: "rag.answered",

		RetryMaxAttempts:          3,
		RetryInitialBackoffMillis: 100,
		RetryMaxBackoffMillis:     2000,
		BreakerEnabled:            true,
		BreakerFailureRatio:       0.5,
		BreakerOpenTimeoutSeconds: 30,
	}
}

// Load builds the configuration. When RAG_CONFIG_FILE points at a YAML
// file its values overlay the defaults before environment variables are
// applied.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("RAG_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.APIPort = envStr("API_PORT", cfg.APIPort)
	cfg.MetricsPort = envStr("METRICS_PORT", cfg.MetricsPort)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envStr("LOG_FORMAT", cfg.LogFormat)

	cfg.VespaURL = envStr("VESPA_URL", cfg.VespaURL)
	cfg.VespaSchema = envStr("VESPA_SCHEMA", cfg.VespaSchema)
	cfg.VespaRankingProfile = envStr("VESPA_RANKING_PROFILE", cfg.VespaRankingProfile)
	cfg.VespaSummary = envStr("VESPA_SUMMARY", cfg.VespaSummary)
	cfg.VespaChunkTopK = envInt("VESPA_CHUNK_TOP_K", cfg.VespaChunkTopK)
	cfg.VespaQueryTimeoutSeconds = envInt("VESPA_QUERY_TIMEOUT_SECONDS", cfg.VespaQueryTimeoutSeconds)

	cfg.OllamaURL = envStr("OLLAMA_URL", cfg.OllamaURL)
	cfg.OllamaEmbedModel = envStr("OLLAMA_EMBED_MODEL", cfg.OllamaEmbedModel)
	cfg.OllamaTimeoutSeconds = envInt("OLLAMA_TIMEOUT_SECONDS", cfg.OllamaTimeoutSeconds)

	cfg.LLMBaseURL = envStr("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMModel = envStr("LLM_MODEL", cfg.LLMModel)
	cfg.LLMAPIKey = envStr("LLM_API_KEY", cfg.LLMAPIKey)
	cfg.LLMTimeoutSeconds = envInt("LLM_TIMEOUT_SECONDS", cfg.LLMTimeoutSeconds)

	cfg.ExpandedQueries = envInt("EXPANDED_QUERIES", cfg.ExpandedQueries)
	cfg.HitsPerQuery = envInt("HITS_PER_QUERY", cfg.HitsPerQuery)
	cfg.FusedTopK = envInt("FUSED_TOP_K", cfg.FusedTopK)
	cfg.SearchTimeoutSeconds = envInt("SEARCH_TIMEOUT_SECONDS", cfg.SearchTimeoutSeconds)

	cfg.RateLimitRPS = envFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = envInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)

	cfg.NATSURL = envStr("NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = envStr("NATS_SUBJECT", cfg.NATSSubject)

	cfg.RetryMaxAttempts = envInt("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	cfg.RetryInitialBackoffMillis = envInt("RETRY_INITIAL_BACKOFF_MS", cfg.RetryInitialBackoffMillis)
	cfg.RetryMaxBackoffMillis = envInt("RETRY_MAX_BACKOFF_MS", cfg.RetryMaxBackoffMillis)
	cfg.BreakerEnabled = envBool("BREAKER_ENABLED", cfg.BreakerEnabled)
	cfg.BreakerFailureRatio = envFloat("BREAKER_FAILURE_RATIO", cfg.BreakerFailureRatio)
	cfg.BreakerOpenTimeoutSeconds = envInt("BREAKER_OPEN_TIMEOUT_SECONDS", cfg.BreakerOpenTimeoutSeconds)

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
