package cli

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"documind/internal/chunker"
	"documind/internal/config"
	"documind/internal/domain"
	"documind/internal/embedding/hashing"
	embedhf "documind/internal/embedding/huggingface"
	embedollama "documind/internal/embedding/ollama"
	"documind/internal/embedding/openai"
	"documind/internal/generation/extractive"
	genhf "documind/internal/generation/huggingface"
	genollama "documind/internal/generation/ollama"
	"documind/internal/loader"
	"documind/internal/service"
	"documind/internal/summarizer"
	"documind/internal/vectorstore"
	"documind/internal/vectorstore/memory"
	"documind/internal/vectorstore/qdrant"
	"documind/internal/vectorstore/sqlite"
)

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func buildEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "huggingface", "":
		return embedhf.NewEmbedder(embedhf.Config{
			BaseURL:   cfg.BaseURL,
			APIKeyEnv: cfg.APIKeyEnv,
			Model:     cfg.Model,
			Timeout:   secs(cfg.TimeoutSecs),
		}), nil
	case "ollama":
		return embedollama.NewEmbedder(cfg.BaseURL, cfg.Model, secs(cfg.TimeoutSecs)), nil
	case "openai":
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.BaseURL,
			APIKeyEnv: cfg.APIKeyEnv,
			Model:     cfg.Model,
			Timeout:   secs(cfg.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "hashing":
		return hashing.NewEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func buildGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "huggingface", "":
		return genhf.NewGenerator(genhf.Config{
			BaseURL:   cfg.BaseURL,
			APIKeyEnv: cfg.APIKeyEnv,
			Model:     cfg.Model,
			Timeout:   secs(cfg.TimeoutSecs),
		}), nil
	case "ollama":
		return genollama.NewGenerator(cfg.BaseURL, cfg.Model, secs(cfg.TimeoutSecs)), nil
	case "extractive":
		return extractive.New(), nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}

func buildStore(cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "sqlite", "":
		store, err := sqlite.Open(cfg.IndexDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    secs(q.TimeoutSecs),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func buildSummarizer(cfg config.SummarizerConfig) (summarizer.Summarizer, error) {
	switch cfg.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Type)
	}
}

// buildService assembles the session service. Backends are only constructed
// when a command first needs them.
func buildService(cfg *config.AppConfig, log *zap.Logger) (*service.Service, error) {
	ch, err := chunker.NewWindowChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}
	sum, err := buildSummarizer(cfg.Summarizer)
	if err != nil {
		return nil, err
	}
	res := service.NewResources(
		func() (domain.Embedder, error) { return buildEmbedder(cfg.Embedder) },
		func() (domain.Generator, error) { return buildGenerator(cfg.Generator) },
		func() (vectorstore.Storage, error) { return buildStore(cfg) },
	)
	return service.New(res, service.Options{
		DataDir:             cfg.DataDir,
		TopK:                cfg.Retrieval.TopK,
		MaxNewTokens:        cfg.Generator.MaxNewTokens,
		BatchSize:           cfg.Embedder.BatchSize,
		EmbedTimeout:        secs(cfg.Embedder.TimeoutSecs),
		GenerateTimeout:     secs(cfg.Generator.TimeoutSecs),
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		Loader:              loader.New(loader.WithLogger(log)),
		Chunker:             ch,
		Summarizer:          sum,
		Logger:              log,
	})
}
