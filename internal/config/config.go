package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App      App      `mapstructure:"app"`
	Database Database `mapstructure:"database"`
	AI       AI       `mapstructure:"ai"`
	Feeds    Feeds    `mapstructure:"feeds"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Learner  Learner  `mapstructure:"learner"`
	Server   Server   `mapstructure:"server"`
}

// App holds general application configuration.
type App struct {
	Debug      bool   `mapstructure:"debug"`
	LogLevel   string `mapstructure:"log_level"`
	ConfigFile string `mapstructure:"config_file"`
}

// Database holds Postgres connection configuration.
type Database struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// AI holds provider configuration for embeddings and text generation.
type AI struct {
	Provider string       `mapstructure:"provider"` // "gemini" (default) or "ollama"
	Gemini   GeminiConfig `mapstructure:"gemini"`
	Ollama   OllamaConfig `mapstructure:"ollama"`
}

// GeminiConfig holds Google Gemini configuration.
type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	Timeout        string `mapstructure:"timeout"`
	MaxTokens      int32  `mapstructure:"max_tokens"`
}

// OllamaConfig holds local Ollama configuration.
type OllamaConfig struct {
	Host           string `mapstructure:"host"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	Timeout        string `mapstructure:"timeout"`
}

// Feeds holds feed fetching configuration.
type Feeds struct {
	Timeout         string `mapstructure:"timeout"` // Per-source fetch deadline
	MaxItemsPerFeed int    `mapstructure:"max_items_per_feed"`
	MaxConcurrent   int    `mapstructure:"max_concurrent"` // Sources fetched in parallel
	UserAgent       string `mapstructure:"user_agent"`
}

// Pipeline holds the canonical tunables table for the relevance pipeline.
// These are the code-level defaults; per-reader overrides flow through the
// settings store, which resolves against this table.
type Pipeline struct {
	EmbeddingLLMThreshold  float64 `mapstructure:"embedding_llm_threshold"`
	SerendipityMin         float64 `mapstructure:"embedding_serendipity_min"`
	SerendipityMax         float64 `mapstructure:"embedding_serendipity_max"`
	SerendipitySampleSize  int     `mapstructure:"serendipity_sample_size"`
	MaxLLMCandidates       int     `mapstructure:"max_llm_candidates"`
	BlendedPrimaryWeight   float64 `mapstructure:"blended_primary_weight"`
	BlendedSecondaryWeight float64 `mapstructure:"blended_secondary_weight"`
	SemanticDedupThreshold float64 `mapstructure:"semantic_dedup_threshold"`
	ExclusionThreshold     float64 `mapstructure:"exclusion_threshold"`
	MinRelevanceScore      float64 `mapstructure:"min_relevance_score"`
	MaxArticlesPerDigest   int     `mapstructure:"max_articles_per_digest"`
	EmbeddingDimensions    int     `mapstructure:"embedding_dimensions"`
	GenBatchSize           int     `mapstructure:"gen_batch_size"`
	MaxEmbedBatch          int     `mapstructure:"max_embed_batch"`
	MinContentLength       int     `mapstructure:"min_content_length"`
	StaleCutoffDays        int     `mapstructure:"stale_cutoff_days"`
	NewReaderWindowDays    int     `mapstructure:"new_reader_window_days"`
}

// Learner holds preference learner trigger configuration.
type Learner struct {
	MinFeedback     int `mapstructure:"min_feedback"`
	RelearnInterval int `mapstructure:"relearn_interval"`
	WindowSize      int `mapstructure:"window_size"`
	MaxSampleSize   int `mapstructure:"max_sample_size"`
}

// Server holds the HTTP API configuration.
type Server struct {
	Addr string `mapstructure:"addr"`
}

var globalConfig *Config

// Load loads the configuration from .env, config file and environment.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".curio")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values. The pipeline block is the
// single canonical defaults table; no other call site carries its own copy.
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")

	// Database defaults
	viper.SetDefault("database.url", "postgres://localhost/curio?sslmode=disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)

	// AI defaults
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.model", "gemini-2.0-flash")
	viper.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.gemini.timeout", "60s")
	viper.SetDefault("ai.gemini.max_tokens", 4096)
	viper.SetDefault("ai.ollama.host", "http://localhost:11434")
	viper.SetDefault("ai.ollama.model", "llama3.1")
	viper.SetDefault("ai.ollama.embedding_model", "nomic-embed-text")
	viper.SetDefault("ai.ollama.timeout", "120s")

	// Feeds defaults
	viper.SetDefault("feeds.timeout", "30s")
	viper.SetDefault("feeds.max_items_per_feed", 50)
	viper.SetDefault("feeds.max_concurrent", 5)
	viper.SetDefault("feeds.user_agent", "Curio/1.0")

	// Pipeline defaults. The original implementation disagreed with itself
	// on embedding_llm_threshold (0.25 at one call site, 0.35 at another);
	// 0.35 is canonical here.
	viper.SetDefault("pipeline.embedding_llm_threshold", 0.35)
	viper.SetDefault("pipeline.embedding_serendipity_min", 0.20)
	viper.SetDefault("pipeline.embedding_serendipity_max", 0.35)
	viper.SetDefault("pipeline.serendipity_sample_size", 5)
	viper.SetDefault("pipeline.max_llm_candidates", 40)
	viper.SetDefault("pipeline.blended_primary_weight", 0.7)
	viper.SetDefault("pipeline.blended_secondary_weight", 0.3)
	viper.SetDefault("pipeline.semantic_dedup_threshold", 0.85)
	viper.SetDefault("pipeline.exclusion_threshold", 0.40)
	viper.SetDefault("pipeline.min_relevance_score", 0.6)
	viper.SetDefault("pipeline.max_articles_per_digest", 10)
	viper.SetDefault("pipeline.embedding_dimensions", 512)
	viper.SetDefault("pipeline.gen_batch_size", 10)
	viper.SetDefault("pipeline.max_embed_batch", 2048)
	viper.SetDefault("pipeline.min_content_length", 80)
	viper.SetDefault("pipeline.stale_cutoff_days", 7)
	viper.SetDefault("pipeline.new_reader_window_days", 30)

	// Learner defaults
	viper.SetDefault("learner.min_feedback", 10)
	viper.SetDefault("learner.relearn_interval", 50)
	viper.SetDefault("learner.window_size", 300)
	viper.SetDefault("learner.max_sample_size", 100)

	// Server defaults
	viper.SetDefault("server.addr", ":8080")
}

// bindEnvironmentVariables sets up flexible environment variable binding.
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("database.url", []string{
		"DATABASE_URL",
		"CURIO_DATABASE_URL",
	})

	bindEnvKeys("ai.provider", []string{
		"CURIO_AI_PROVIDER",
	})

	bindEnvKeys("ai.ollama.host", []string{
		"OLLAMA_HOST",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"CURIO_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key.
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// validateConfig ensures required configuration is present and coherent.
func validateConfig(config *Config) error {
	var errors []string

	switch config.AI.Provider {
	case "gemini":
		if config.AI.Gemini.APIKey == "" {
			errors = append(errors, "Gemini API key is required. Set GEMINI_API_KEY or ai.gemini.api_key in the config file")
		}
	case "ollama":
		if config.AI.Ollama.Host == "" {
			errors = append(errors, "Ollama host is required when ai.provider is ollama")
		}
	default:
		errors = append(errors, fmt.Sprintf("Unknown AI provider: %s. Supported: gemini, ollama", config.AI.Provider))
	}

	if config.Database.URL == "" {
		errors = append(errors, "Database URL is required. Set DATABASE_URL or database.url in the config file")
	}

	durations := map[string]string{
		"ai.gemini.timeout": config.AI.Gemini.Timeout,
		"ai.ollama.timeout": config.AI.Ollama.Timeout,
		"feeds.timeout":     config.Feeds.Timeout,
	}
	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				errors = append(errors, fmt.Sprintf("invalid duration for %s: %s", key, duration))
			}
		}
	}

	p := config.Pipeline
	if p.SerendipityMin >= p.SerendipityMax {
		errors = append(errors, fmt.Sprintf("pipeline.embedding_serendipity_min (%.2f) must be below embedding_serendipity_max (%.2f)", p.SerendipityMin, p.SerendipityMax))
	}
	if p.EmbeddingDimensions <= 0 {
		errors = append(errors, "pipeline.embedding_dimensions must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// FeedTimeout returns the per-source fetch deadline as a duration.
func (f Feeds) FeedTimeout() time.Duration {
	if d, err := time.ParseDuration(f.Timeout); err == nil {
		return d
	}
	return 30 * time.Second
}

// ProviderTimeout returns the external AI call deadline for the active provider.
func (a AI) ProviderTimeout() time.Duration {
	raw := a.Gemini.Timeout
	if a.Provider == "ollama" {
		raw = a.Ollama.Timeout
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return 60 * time.Second
}

// MaxTokens returns the generation output cap for judgment calls.
func (a AI) MaxTokens() int {
	return int(a.Gemini.MaxTokens)
}

// Convenience getters for commonly used configuration values.
func GetApp() App           { return Get().App }
func GetDatabase() Database { return Get().Database }
func GetAI() AI             { return Get().AI }
func GetFeeds() Feeds       { return Get().Feeds }
func GetPipeline() Pipeline { return Get().Pipeline }
func GetLearner() Learner   { return Get().Learner }
func GetServer() Server     { return Get().Server }

func GetGeminiAPIKey() string { return Get().AI.Gemini.APIKey }
func IsDebugMode() bool       { return Get().App.Debug }

// Reset clears the global configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viper.Reset()
}
