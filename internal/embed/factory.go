package embed

import (
	"context"
	"fmt"
	"log/slog"
)

// FactoryConfig selects and configures the embedding provider at startup.
// Provider is one of "ollama", "static", or "" for auto-detection.
type FactoryConfig struct {
	Provider   string
	Host       string
	Model      string
	Dimensions int
	BatchSize  int
	CacheSize  int
}

// New constructs the configured Embedder wrapped in an LRU cache.
// Auto-detection prefers Ollama when reachable and falls back to the
// static embedder so indexing always works offline.
func New(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	inner, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func newProvider(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})

	case "static":
		return NewStaticEmbedder(), nil

	case "":
		ollama, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
		if err == nil {
			return ollama, nil
		}
		slog.Info("ollama unavailable, using static embeddings",
			slog.String("error", err.Error()))
		return NewStaticEmbedder(), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
