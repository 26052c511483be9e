// Package index implements the vector index lifecycle: building an index
// pair from historical reviews, extending it in place and replacing it via
// a scratch build. An index pair is the vector file plus the JSON document
// cache; the two are only ever written together.
package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tkohari/reviewkit/internal/config"
	"github.com/tkohari/reviewkit/internal/llm"
	"github.com/tkohari/reviewkit/internal/metrics"
	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/store"
	"github.com/tkohari/reviewkit/internal/vecindex"
)

// embedBatchSize is the number of documents embedded and appended per step.
// Each step is also a cancellation checkpoint and a progress update.
const embedBatchSize = 100

// ProgressFunc receives processed and total document counts as an index
// operation advances.
type ProgressFunc func(processed, total int)

// Engine runs index lifecycle operations for one deployment.
type Engine struct {
	embedder llm.Embedder
	store    store.IndexStore
	cfg      config.Config
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewEngine creates an index engine. The collector may be nil.
func NewEngine(embedder llm.Embedder, indexStore store.IndexStore, cfg config.Config, collector *metrics.Collector, logger *slog.Logger) *Engine {
	return &Engine{
		embedder: embedder,
		store:    indexStore,
		cfg:      cfg,
		metrics:  collector,
		logger:   logger,
	}
}

// Run builds, extends or replaces the index for (owner, target) from docs.
// Add mode falls back to a fresh build when no usable index pair exists.
// The returned record reflects the state persisted in the index store.
func (e *Engine) Run(ctx context.Context, jobID, owner, target string, docs []models.Document, mode models.IndexMode, progress ProgressFunc) (*models.IndexRecord, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents to index")
	}

	rec, err := e.store.Get(ctx, owner, target)
	if err != nil {
		return nil, fmt.Errorf("load index record: %w", err)
	}

	usable := rec != nil && fileExists(rec.IndexPath) && fileExists(rec.CachePath)
	if mode == models.IndexModeAdd && usable {
		return e.incrementalAdd(ctx, rec, docs, progress)
	}
	return e.replace(ctx, jobID, owner, target, rec, docs, progress)
}

// incrementalAdd loads the existing pair, appends the new documents and
// overwrites the pair in place. The prior files are snapshotted first so a
// failed write can be rolled back.
func (e *Engine) incrementalAdd(ctx context.Context, rec *models.IndexRecord, docs []models.Document, progress ProgressFunc) (*models.IndexRecord, error) {
	ix, err := vecindex.ReadFile(rec.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	existing, err := vecindex.ReadDocuments(rec.CachePath)
	if err != nil {
		return nil, fmt.Errorf("load document cache: %w", err)
	}

	if err := e.embedInto(ctx, ix, docs, progress); err != nil {
		return nil, err
	}
	all := append(existing, docs...)

	snapDir, err := os.MkdirTemp(e.cfg.DataDir, "index_snapshot_")
	if err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	defer os.RemoveAll(snapDir)

	snapIndex := filepath.Join(snapDir, "index")
	snapCache := filepath.Join(snapDir, "cache")
	if err := copyFile(rec.IndexPath, snapIndex); err != nil {
		return nil, fmt.Errorf("snapshot index: %w", err)
	}
	if err := copyFile(rec.CachePath, snapCache); err != nil {
		return nil, fmt.Errorf("snapshot cache: %w", err)
	}

	if err := writePair(ix, all, rec.IndexPath, rec.CachePath); err != nil {
		e.restorePair(snapIndex, snapCache, rec.IndexPath, rec.CachePath)
		return nil, err
	}

	rec.EmbeddingModel = e.embedder.Model()
	rec.DocumentCount = len(all)
	saved, err := e.store.Put(ctx, *rec)
	if err != nil {
		return nil, fmt.Errorf("save index record: %w", err)
	}

	e.logger.Info("index extended",
		"owner", saved.Owner,
		"target", saved.Target,
		"added", len(docs),
		"total", saved.DocumentCount)
	return &saved, nil
}

// replace builds a fresh pair in a scratch directory, snapshots and removes
// the prior pair, then copies the scratch build into the final location.
// A prior record keeps its identity and file paths.
func (e *Engine) replace(ctx context.Context, jobID, owner, target string, prior *models.IndexRecord, docs []models.Document, progress ProgressFunc) (*models.IndexRecord, error) {
	scratch, err := os.MkdirTemp(e.cfg.DataDir, "index_job_"+jobID+"_")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	ix, err := e.buildIndex(ctx, docs, progress)
	if err != nil {
		return nil, err
	}

	scratchIndex := filepath.Join(scratch, "index")
	scratchCache := filepath.Join(scratch, "cache")
	if err := writePair(ix, docs, scratchIndex, scratchCache); err != nil {
		return nil, err
	}

	rec := prior
	if rec == nil {
		rec = &models.IndexRecord{
			Owner:     owner,
			Target:    target,
			IndexPath: filepath.Join(e.cfg.IndexDir(), owner+"_"+target+".rvix"),
			CachePath: filepath.Join(e.cfg.CacheDir(), owner+"_"+target+".json"),
		}
	}

	snapIndex := filepath.Join(scratch, "prior_index")
	snapCache := filepath.Join(scratch, "prior_cache")
	hadPrior := fileExists(rec.IndexPath) || fileExists(rec.CachePath)
	if hadPrior {
		if fileExists(rec.IndexPath) {
			if err := copyFile(rec.IndexPath, snapIndex); err != nil {
				return nil, fmt.Errorf("snapshot prior index: %w", err)
			}
		}
		if fileExists(rec.CachePath) {
			if err := copyFile(rec.CachePath, snapCache); err != nil {
				return nil, fmt.Errorf("snapshot prior cache: %w", err)
			}
		}
		os.Remove(rec.IndexPath)
		os.Remove(rec.CachePath)
	}

	if err := copyFile(scratchIndex, rec.IndexPath); err != nil {
		if hadPrior {
			e.restorePair(snapIndex, snapCache, rec.IndexPath, rec.CachePath)
		}
		return nil, fmt.Errorf("install index: %w", err)
	}
	if err := copyFile(scratchCache, rec.CachePath); err != nil {
		if hadPrior {
			e.restorePair(snapIndex, snapCache, rec.IndexPath, rec.CachePath)
		}
		return nil, fmt.Errorf("install cache: %w", err)
	}

	rec.EmbeddingModel = e.embedder.Model()
	rec.DocumentCount = len(docs)
	saved, err := e.store.Put(ctx, *rec)
	if err != nil {
		return nil, fmt.Errorf("save index record: %w", err)
	}

	e.logger.Info("index replaced",
		"owner", saved.Owner,
		"target", saved.Target,
		"documents", saved.DocumentCount)
	return &saved, nil
}

// buildIndex embeds docs batch by batch into a new index. The dimension
// comes from the first returned vector.
func (e *Engine) buildIndex(ctx context.Context, docs []models.Document, progress ProgressFunc) (*vecindex.Index, error) {
	var ix *vecindex.Index

	total := len(docs)
	for start := 0; start < total; start += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+embedBatchSize, total)

		texts := make([]string, 0, end-start)
		for _, doc := range docs[start:end] {
			texts = append(texts, doc.Text)
		}
		vectors, err := e.embedder.EmbedPassages(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed documents: %w", err)
		}
		if ix == nil {
			if len(vectors) == 0 {
				return nil, fmt.Errorf("embedder returned no vectors")
			}
			ix, err = vecindex.New(len(vectors[0]))
			if err != nil {
				return nil, err
			}
		}
		if err := ix.Add(vectors); err != nil {
			return nil, err
		}

		if progress != nil {
			progress(end, total)
		}
	}
	return ix, nil
}

// embedInto appends doc vectors to an already loaded index, batch by batch
// with the same checkpoints as buildIndex.
func (e *Engine) embedInto(ctx context.Context, ix *vecindex.Index, docs []models.Document, progress ProgressFunc) error {
	total := len(docs)
	for start := 0; start < total; start += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+embedBatchSize, total)

		texts := make([]string, 0, end-start)
		for _, doc := range docs[start:end] {
			texts = append(texts, doc.Text)
		}
		vectors, err := e.embedder.EmbedPassages(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed documents: %w", err)
		}
		if err := ix.Add(vectors); err != nil {
			return err
		}

		if progress != nil {
			progress(end, total)
		}
	}
	return nil
}

// restorePair copies snapshot files back over the final paths. Restoration
// is best effort; failures are logged, not returned.
func (e *Engine) restorePair(snapIndex, snapCache, indexPath, cachePath string) {
	if fileExists(snapIndex) {
		if err := copyFile(snapIndex, indexPath); err != nil {
			e.logger.Error("failed to restore index from snapshot", "path", indexPath, "error", err)
		}
	}
	if fileExists(snapCache) {
		if err := copyFile(snapCache, cachePath); err != nil {
			e.logger.Error("failed to restore cache from snapshot", "path", cachePath, "error", err)
		}
	}
}

func writePair(ix *vecindex.Index, docs []models.Document, indexPath, cachePath string) error {
	if err := ix.WriteFile(indexPath); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := vecindex.WriteDocuments(cachePath, docs); err != nil {
		return fmt.Errorf("write document cache: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
