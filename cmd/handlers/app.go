package handlers

import (
	"context"
	"fmt"

	"curio/internal/config"
	"curio/internal/embedding"
	"curio/internal/fetch"
	"curio/internal/genscore"
	"curio/internal/logger"
	"curio/internal/pipeline"
	"curio/internal/prefs"
	"curio/internal/store"
	"curio/internal/textgen"
	"curio/internal/vectorstore"
)

// app holds the fully wired application: one database handle plus every
// pipeline component built from the active configuration.
type app struct {
	cfg     *config.Config
	db      *store.DB
	vectors *vectorstore.Store
	fetcher *fetch.Fetcher
	textgen textgen.Provider
	pipe    *pipeline.Pipeline
	learner *prefs.Learner
}

// newApp connects to the database and builds the pipeline components.
// Caller must Close.
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Get()
	log := logger.Get()

	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	dims := cfg.Pipeline.EmbeddingDimensions
	capability := vectorstore.Probe(ctx, db.SQL(), dims)
	vectors := vectorstore.New(db.SQL(), capability, dims)

	embedProvider, genProvider, err := buildProviders(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	fetcher := fetch.New(db, cfg.Feeds.FeedTimeout(), cfg.Feeds.MaxItemsPerFeed, cfg.Feeds.MaxConcurrent, log)
	embedder := embedding.NewGenerator(embedProvider, vectors, cfg.Pipeline.MaxEmbedBatch, log)
	judge := genscore.New(genProvider, cfg.Pipeline.GenBatchSize, cfg.AI.MaxTokens(), log)
	learner := prefs.New(db, genProvider, prefs.Options{
		MinFeedback:  cfg.Learner.MinFeedback,
		RelearnDelta: cfg.Learner.RelearnInterval,
		Window:       cfg.Learner.WindowSize,
		MaxSample:    cfg.Learner.MaxSampleSize,
	}, log)

	return &app{
		cfg:     cfg,
		db:      db,
		vectors: vectors,
		fetcher: fetcher,
		textgen: genProvider,
		pipe:    pipeline.New(db, vectors, fetcher, embedder, judge, learner, cfg.Pipeline, log),
		learner: learner,
	}, nil
}

// buildProviders constructs the embedding and text generation backends
// for the configured AI provider.
func buildProviders(ctx context.Context, cfg *config.Config) (embedding.Provider, textgen.Provider, error) {
	dims := cfg.Pipeline.EmbeddingDimensions
	timeout := cfg.AI.ProviderTimeout()

	switch cfg.AI.Provider {
	case "gemini":
		embedProvider, err := embedding.NewGeminiProvider(ctx, cfg.AI.Gemini.APIKey, cfg.AI.Gemini.EmbeddingModel, dims)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}
		genProvider, err := textgen.NewGemini(ctx, cfg.AI.Gemini.APIKey, cfg.AI.Gemini.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create text generation provider: %w", err)
		}
		return embedding.WithTimeout(embedProvider, timeout), textgen.WithTimeout(genProvider, timeout), nil
	case "ollama":
		embedProvider := embedding.NewOllamaProvider(cfg.AI.Ollama.Host, cfg.AI.Ollama.EmbeddingModel, dims)
		genProvider := textgen.NewOllama(cfg.AI.Ollama.Host, cfg.AI.Ollama.Model)
		return embedding.WithTimeout(embedProvider, timeout), textgen.WithTimeout(genProvider, timeout), nil
	default:
		return nil, nil, fmt.Errorf("unknown AI provider: %s", cfg.AI.Provider)
	}
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		logger.Warn("failed to close database", "error", err.Error())
	}
}

// openStore connects to the database only, for commands that don't need
// the AI providers.
func openStore() (*store.DB, error) {
	return store.Open(config.Get().Database)
}
