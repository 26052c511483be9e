// Package llm provides embedding and categorization services using langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/tkohari/reviewkit/internal/config"
	"github.com/tkohari/reviewkit/internal/metrics"
)

// Prefixes expected by E5-family embedding models. Indexed documents and
// search queries must carry matching prefixes or similarity scores degrade.
const (
	passagePrefix = "passage: "
	queryPrefix   = "query: "
)

// embedCacheSize bounds the in-memory embedding cache. Classification jobs
// re-embed the same review texts often enough that this pays for itself.
const embedCacheSize = 4096

// Embedder produces vectors for index passages and search queries.
type Embedder interface {
	// EmbedPassages generates embeddings for documents being indexed.
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQueries generates embeddings for similarity search queries.
	EmbedQueries(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	Dimension() int
}

// LangchainEmbedder implements Embedder on a langchaingo embeddings client
// with an LRU cache keyed by prefixed text.
type LangchainEmbedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
	cache     *lru.Cache[string, []float32]
	metrics   *metrics.Collector
	logger    *slog.Logger
}

var _ Embedder = (*LangchainEmbedder)(nil)

// NewEmbedder creates an embedder based on configuration. The collector may
// be nil.
func NewEmbedder(cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*LangchainEmbedder, error) {
	var client embeddings.EmbedderClient

	switch cfg.EmbeddingProvider {
	case config.ProviderOllama, "":
		llm, err := ollama.New(
			ollama.WithModel(cfg.EmbeddingModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		client = llm

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		llm, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbeddingModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		client = llm

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbeddingProvider)
	}

	model, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	cache, err := lru.New[string, []float32](embedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &LangchainEmbedder{
		model:     model,
		dimension: cfg.EmbeddingDimension,
		modelName: cfg.EmbeddingModel,
		cache:     cache,
		metrics:   collector,
		logger:    logger,
	}, nil
}

// EmbedPassages generates embeddings for documents being indexed.
func (e *LangchainEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embedAll(ctx, passagePrefix, texts)
}

// EmbedQueries generates embeddings for similarity search queries.
func (e *LangchainEmbedder) EmbedQueries(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embedAll(ctx, queryPrefix, texts)
}

func (e *LangchainEmbedder) embedAll(ctx context.Context, prefix string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	var misses []string
	pending := make(map[string]struct{})
	for i, text := range texts {
		keys[i] = prefix + text
		if _, ok := e.cache.Get(keys[i]); ok {
			continue
		}
		if _, dup := pending[keys[i]]; !dup {
			pending[keys[i]] = struct{}{}
			misses = append(misses, keys[i])
		}
	}

	if len(misses) > 0 {
		e.logger.Debug("embedding batch", "model", e.modelName, "total", len(texts), "misses", len(misses))

		start := time.Now()
		vectors, err := retryWithBackoff(ctx, e.logger, "embed", func(ctx context.Context) ([][]float32, error) {
			return e.model.EmbedDocuments(ctx, misses)
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		if e.metrics != nil {
			e.metrics.RecordTiming(metrics.OpEmbedding, time.Since(start))
		}

		if len(vectors) != len(misses) {
			return nil, fmt.Errorf("count mismatch: got %d embeddings, want %d", len(vectors), len(misses))
		}
		for i, v := range vectors {
			if e.dimension == 0 {
				e.dimension = len(v)
			}
			if len(v) != e.dimension {
				return nil, fmt.Errorf("embedding %d dimension mismatch: got %d, want %d", i, len(v), e.dimension)
			}
			e.cache.Add(misses[i], v)
		}
	}

	result := make([][]float32, len(texts))
	for i := range texts {
		v, ok := e.cache.Get(keys[i])
		if !ok {
			return nil, fmt.Errorf("embedding for text %d missing from cache", i)
		}
		result[i] = v
	}
	return result, nil
}

// Model returns the embedding model name.
func (e *LangchainEmbedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *LangchainEmbedder) Dimension() int {
	return e.dimension
}
