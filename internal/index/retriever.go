package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tkohari/reviewkit/internal/metrics"
	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/vecindex"
)

// Retriever answers nearest-neighbour lookups against a loaded index pair.
// It is read-only and safe for concurrent use.
type Retriever struct {
	index    *vecindex.Index
	docs     []models.Document
	embedder interface {
		EmbedQueries(ctx context.Context, texts []string) ([][]float32, error)
	}
	metrics *metrics.Collector
}

// OpenRetriever loads the index pair referenced by rec into memory.
func (e *Engine) OpenRetriever(rec *models.IndexRecord) (*Retriever, error) {
	ix, err := vecindex.ReadFile(rec.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	docs, err := vecindex.ReadDocuments(rec.CachePath)
	if err != nil {
		return nil, fmt.Errorf("load document cache: %w", err)
	}
	if ix.Count() != len(docs) {
		return nil, fmt.Errorf("index pair mismatch: %d vectors, %d documents", ix.Count(), len(docs))
	}
	return &Retriever{
		index:    ix,
		docs:     docs,
		embedder: e.embedder,
		metrics:  e.metrics,
	}, nil
}

// Count returns the number of indexed documents.
func (r *Retriever) Count() int {
	return len(r.docs)
}

// RetrieveSimilar returns up to topK formatted neighbour lines per input
// text. Each line carries a 1-based rank, the neighbour text and its
// categories when it has any. A rank whose slot is unfilled is skipped but
// still consumes its number.
func (r *Retriever) RetrieveSimilar(ctx context.Context, texts []string, topK int) ([][]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	queries, err := r.embedder.EmbedQueries(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}

	start := time.Now()
	neighbours, err := r.index.SearchBatch(queries, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordTiming(metrics.OpIndexSearch, time.Since(start))
	}

	out := make([][]string, len(texts))
	for i, indices := range neighbours {
		lines := make([]string, 0, len(indices))
		for rank, idx := range indices {
			if idx < 0 || idx >= len(r.docs) {
				continue
			}
			lines = append(lines, formatNeighbour(rank+1, r.docs[idx]))
		}
		out[i] = lines
	}
	return out, nil
}

func formatNeighbour(rank int, doc models.Document) string {
	text := strings.TrimSpace(doc.Text)
	if len(doc.Categories) == 0 {
		return fmt.Sprintf("%d. %s", rank, text)
	}
	return fmt.Sprintf("%d. %s (categories: %s)", rank, text, strings.Join(doc.Categories, ", "))
}
