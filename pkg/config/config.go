// Package config holds the process-wide settings for the Vigil gateway and
// the immutable detection parameters handed to the decision engine.
// Everything can be set via environment variables, optionally overridden by a
// YAML file, and DetectionConfig can be overridden per test.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ReasoningProvider defines the backend LLM service type used for the
// reasoning call.
type ReasoningProvider string

const (
	ProviderOllama     ReasoningProvider = "ollama"     // Local Ollama server
	ProviderOpenRouter ReasoningProvider = "openrouter" // OpenRouter (default, has free tier)
	ProviderGroq       ReasoningProvider = "groq"       // Groq (high-speed inference)
	ProviderOpenAI     ReasoningProvider = "openai"     // Direct OpenAI API
	ProviderCustom     ReasoningProvider = "custom"     // Any OpenAI-compatible endpoint
)

// SimilarityBackend selects the historical-incident similarity implementation.
type SimilarityBackend string

const (
	SimilarityKeyword   SimilarityBackend = "keyword"   // Jaccard token overlap, no external deps
	SimilarityEmbedding SimilarityBackend = "embedding" // chromem-go vector search
)

// Signal names produced by the feature extractor. The weight map is keyed by
// these plus the reserved SignalSimilarIncidents slot.
const (
	SignalUserImpact        = "user_impact"
	SignalResolutionTime    = "resolution_time"
	SignalReassignmentCount = "reassignment_count"
	SignalChangeVolume      = "change_volume"
	SignalServiceHealth     = "service_health"
	SignalSimilarIncidents  = "similar_incidents"
)

// DetectionConfig is the immutable parameter set for the decision engine.
// It is constructed once and passed in; nothing reads it from ambient state,
// so tests can override any field.
type DetectionConfig struct {
	// Weights maps signal names to their share of the weighted score.
	// The weighted score renormalizes over the signals actually produced,
	// so the map may carry weight for signals no extractor populates yet
	// (the reserved similar_incidents slot).
	Weights map[string]float64

	// Threshold is the weighted-score cutoff for the provisional
	// major-incident decision (the reasoning service may override it).
	Threshold float64

	// ChangeWindow is the trailing window for change-volume scoring.
	ChangeWindow time.Duration

	// HealthWindow is the trailing window for service-health scoring.
	HealthWindow time.Duration

	// SimilarTopN caps how many historical incidents the similarity
	// collaborator is asked for.
	SimilarTopN int
}

// DefaultDetectionConfig returns the stock parameters. The weight values are
// the operational defaults; user_impact dominates, and 0.10 stays reserved
// for the similar_incidents signal.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Weights: map[string]float64{
			SignalUserImpact:        0.25,
			SignalResolutionTime:    0.20,
			SignalReassignmentCount: 0.15,
			SignalChangeVolume:      0.15,
			SignalServiceHealth:     0.15,
			SignalSimilarIncidents:  0.10,
		},
		Threshold:    0.50,
		ChangeWindow: 7 * 24 * time.Hour,
		HealthWindow: 30 * 24 * time.Hour,
		SimilarTopN:  5,
	}
}

// Validate checks the parameter set for values the engine cannot work with.
func (dc DetectionConfig) Validate() error {
	if len(dc.Weights) == 0 {
		return fmt.Errorf("detection config: empty weight map")
	}
	total := 0.0
	for name, w := range dc.Weights {
		if w < 0 {
			return fmt.Errorf("detection config: negative weight for %q", name)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("detection config: weights sum to %v", total)
	}
	if dc.Threshold <= 0 || dc.Threshold >= 1 {
		return fmt.Errorf("detection config: threshold %v outside (0,1)", dc.Threshold)
	}
	if dc.SimilarTopN <= 0 {
		return fmt.Errorf("detection config: similar_top_n must be positive")
	}
	return nil
}

// Config holds global settings for the Vigil gateway.
type Config struct {
	// === Reference data ===
	DataDir     string // Flat-file store directory (default: "data")
	PostgresDSN string // If set, reference data comes from Postgres instead

	// === Reasoning service ===
	LLMProvider    ReasoningProvider
	LLMAPIKey      string
	LLMModel       string
	LLMBaseURL     string
	LLMTimeoutMs   int
	LLMMaxRetries  int
	LLMTemperature float64

	// === Similarity collaborator ===
	Similarity   SimilarityBackend
	EmbeddingURL string // Ollama endpoint for embeddings
	LocalEmbed   bool   // Use local ONNX embeddings via hugot

	// === Serving ===
	RedisAddr     string // Empty disables result caching
	CacheTTL      time.Duration
	MaxConcurrent int // Concurrent detections served at once

	Detection DetectionConfig
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	cfg := &Config{
		DataDir:     GetEnv("VIGIL_DATA_DIR", "data"),
		PostgresDSN: GetEnv("VIGIL_POSTGRES_DSN", ""),

		LLMProvider:    detectProvider(),
		LLMAPIKey:      GetEnv("VIGIL_LLM_API_KEY", GetEnv("GROQ_API_KEY", GetEnv("OPENROUTER_API_KEY", os.Getenv("OPENAI_API_KEY")))),
		LLMModel:       GetEnv("VIGIL_LLM_MODEL", ""),
		LLMBaseURL:     GetEnv("VIGIL_LLM_BASE_URL", ""),
		LLMTimeoutMs:   GetEnvInt("VIGIL_LLM_TIMEOUT_MS", 60000),
		LLMMaxRetries:  GetEnvInt("VIGIL_LLM_MAX_RETRIES", 0),
		LLMTemperature: GetEnvFloat("VIGIL_LLM_TEMPERATURE", 0),

		Similarity:   SimilarityBackend(GetEnv("VIGIL_SIMILARITY", string(SimilarityKeyword))),
		EmbeddingURL: GetEnv("VIGIL_EMBEDDING_URL", ""),
		LocalEmbed:   GetEnvBool("VIGIL_LOCAL_EMBED", false),

		RedisAddr:     GetEnv("VIGIL_REDIS_ADDR", ""),
		CacheTTL:      time.Duration(GetEnvInt("VIGIL_CACHE_TTL_SECONDS", 300)) * time.Second,
		MaxConcurrent: clampInt(GetEnvInt("VIGIL_MAX_CONCURRENT", 32), 1, 1024),

		Detection: DefaultDetectionConfig(),
	}
	return cfg
}

// fileConfig is the YAML override schema. Windows are expressed in whole
// days and the cache TTL in seconds to keep the file format plain.
type fileConfig struct {
	DataDir     string `yaml:"data_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`

	LLMProvider   string `yaml:"llm_provider"`
	LLMAPIKey     string `yaml:"llm_api_key"`
	LLMModel      string `yaml:"llm_model"`
	LLMBaseURL    string `yaml:"llm_base_url"`
	LLMTimeoutMs  int    `yaml:"llm_timeout_ms"`
	LLMMaxRetries int    `yaml:"llm_max_retries"`

	Similarity   string `yaml:"similarity"`
	EmbeddingURL string `yaml:"embedding_url"`
	LocalEmbed   bool   `yaml:"local_embed"`

	RedisAddr       string `yaml:"redis_addr"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	MaxConcurrent   int    `yaml:"max_concurrent"`

	Detection struct {
		Weights          map[string]float64 `yaml:"weights"`
		Threshold        float64            `yaml:"threshold"`
		ChangeWindowDays int                `yaml:"change_window_days"`
		HealthWindowDays int                `yaml:"health_window_days"`
		SimilarTopN      int                `yaml:"similar_top_n"`
	} `yaml:"detection"`
}

// LoadFile applies YAML overrides from path on top of the receiver.
// Empty or zero fields in the file leave the existing setting untouched.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if file.DataDir != "" {
		c.DataDir = file.DataDir
	}
	if file.PostgresDSN != "" {
		c.PostgresDSN = file.PostgresDSN
	}
	if file.LLMProvider != "" {
		c.LLMProvider = ReasoningProvider(file.LLMProvider)
	}
	if file.LLMAPIKey != "" {
		c.LLMAPIKey = file.LLMAPIKey
	}
	if file.LLMModel != "" {
		c.LLMModel = file.LLMModel
	}
	if file.LLMBaseURL != "" {
		c.LLMBaseURL = file.LLMBaseURL
	}
	if file.LLMTimeoutMs > 0 {
		c.LLMTimeoutMs = file.LLMTimeoutMs
	}
	if file.LLMMaxRetries > 0 {
		c.LLMMaxRetries = file.LLMMaxRetries
	}
	if file.Similarity != "" {
		c.Similarity = SimilarityBackend(file.Similarity)
	}
	if file.EmbeddingURL != "" {
		c.EmbeddingURL = file.EmbeddingURL
	}
	if file.LocalEmbed {
		c.LocalEmbed = true
	}
	if file.RedisAddr != "" {
		c.RedisAddr = file.RedisAddr
	}
	if file.CacheTTLSeconds > 0 {
		c.CacheTTL = time.Duration(file.CacheTTLSeconds) * time.Second
	}
	if file.MaxConcurrent > 0 {
		c.MaxConcurrent = clampInt(file.MaxConcurrent, 1, 1024)
	}

	if len(file.Detection.Weights) > 0 {
		c.Detection.Weights = file.Detection.Weights
	}
	if file.Detection.Threshold > 0 {
		c.Detection.Threshold = file.Detection.Threshold
	}
	if file.Detection.ChangeWindowDays > 0 {
		c.Detection.ChangeWindow = time.Duration(file.Detection.ChangeWindowDays) * 24 * time.Hour
	}
	if file.Detection.HealthWindowDays > 0 {
		c.Detection.HealthWindow = time.Duration(file.Detection.HealthWindowDays) * 24 * time.Hour
	}
	if file.Detection.SimilarTopN > 0 {
		c.Detection.SimilarTopN = file.Detection.SimilarTopN
	}

	return nil
}

// Validate checks that required settings are present and coherent.
func (c *Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return err
	}
	switch c.Similarity {
	case SimilarityKeyword, SimilarityEmbedding:
	default:
		return fmt.Errorf("unknown similarity backend %q", c.Similarity)
	}
	if c.Similarity == SimilarityEmbedding && c.EmbeddingURL == "" && !c.LocalEmbed {
		return fmt.Errorf("embedding similarity selected but no embedding source configured (set VIGIL_EMBEDDING_URL or VIGIL_LOCAL_EMBED)")
	}
	return nil
}

func detectProvider() ReasoningProvider {
	if p := os.Getenv("VIGIL_LLM_PROVIDER"); p != "" {
		return ReasoningProvider(p)
	}
	if os.Getenv("GROQ_API_KEY") != "" {
		return ProviderGroq
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" || os.Getenv("VIGIL_LLM_API_KEY") != "" {
		return ProviderOpenRouter
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI
	}
	return ProviderOllama
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing.
// These are exported for use by other packages.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
