package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/tkohari/reviewkit/internal/classify"
	"github.com/tkohari/reviewkit/internal/llm"
	"github.com/tkohari/reviewkit/internal/loader"
	"github.com/tkohari/reviewkit/internal/models"
)

// Classification progress milestones. The span between classifyStart and
// classifyDone is filled proportionally as batches complete.
const (
	progressSourceLoaded   = 10
	progressRetrieverReady = 25
	progressClassifyStart  = 30
	progressClassifyDone   = 80
	progressDone           = 100
)

// progressInterval debounces store writes driven by engine callbacks.
var progressInterval = 500 * time.Millisecond

// transition applies upd unless the job has already reached a terminal
// state. A terminal job is returned unchanged with ok=false; the first
// terminal transition wins and later ones are silent no-ops.
func (s *Service) transition(ctx context.Context, id string, upd models.JobUpdate) (models.Job, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		s.logger.Error("job lookup failed during transition", "job_id", id, "error", err)
		return models.Job{}, false
	}
	if job.Status.IsTerminal() {
		return job, false
	}
	updated, err := s.jobs.Update(ctx, id, upd)
	if err != nil {
		s.logger.Error("job update failed", "job_id", id, "error", err)
		return job, false
	}
	return updated, true
}

// finishError records the outcome of a runner that stopped with err. A
// context cancellation writes nothing: either CancelJob already recorded the
// cancelled state, or the process is shutting down and the job stays
// processing for the startup sweep.
func (s *Service) finishError(ctx context.Context, logger *slog.Logger, id string, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		if s.cancelRequested(id) {
			logger.Info("job stopped on cancel request")
		} else {
			logger.Warn("job interrupted by shutdown")
		}
		return
	}
	msg := err.Error()
	s.transition(context.Background(), id, models.JobUpdate{
		Status: models.JobStatusFailed,
		Error:  &msg,
	})
	logger.Error("job failed", "error", err)
}

func (s *Service) setProgress(id string, pct int) {
	s.transition(context.Background(), id, models.JobUpdate{Progress: &pct})
}

// bandReporter maps engine (processed, total) progress into the [lo, hi]
// percent band with debounced writes; the final update always lands.
func (s *Service) bandReporter(id string, lo, hi int) func(processed, total int) {
	var mu sync.Mutex
	var lastWrite time.Time
	return func(processed, total int) {
		if total <= 0 {
			return
		}
		final := processed >= total
		mu.Lock()
		if !final && time.Since(lastWrite) < progressInterval {
			mu.Unlock()
			return
		}
		lastWrite = time.Now()
		mu.Unlock()

		pct := lo + (hi-lo)*processed/total
		s.transition(context.Background(), id, models.JobUpdate{
			Progress:  &pct,
			Processed: &processed,
		})
	}
}

// runIndexJob drives one index build/add/replace to a terminal state.
func (s *Service) runIndexJob(ctx context.Context, job models.Job, p IndexJobParams) {
	logger := s.logger.With("job_id", job.ID, "kind", job.Kind)

	if _, ok := s.transition(context.Background(), job.ID, models.JobUpdate{Status: models.JobStatusProcessing}); !ok {
		logger.Info("job no longer pending, skipping run")
		return
	}
	logger.Info("index job started", "industry", p.IndustryID, "mode", p.Mode, "source", p.SourcePath)

	docs, err := loader.LoadHistory(p.SourcePath, job.Target)
	if err != nil {
		s.finishError(ctx, logger, job.ID, fmt.Errorf("load source workbook: %w", err))
		return
	}
	total := len(docs)
	s.transition(context.Background(), job.ID, models.JobUpdate{Total: &total})

	rec, err := s.engine.Run(ctx, job.ID, job.Owner, job.Target, docs, p.Mode,
		s.bandReporter(job.ID, 0, progressDone))
	if err != nil {
		s.finishError(ctx, logger, job.ID, err)
		return
	}

	done := progressDone
	s.transition(context.Background(), job.ID, models.JobUpdate{
		Status:    models.JobStatusCompleted,
		Progress:  &done,
		Processed: &total,
	})
	logger.Info("index job completed", "documents_ingested", total, "index_size", rec.DocumentCount)
}

// runClassificationJob drives one classification run to a terminal state,
// exporting the result workbook on success.
func (s *Service) runClassificationJob(ctx context.Context, job models.Job, p ClassificationJobParams, industry models.Industry) {
	logger := s.logger.With("job_id", job.ID, "kind", job.Kind)

	if _, ok := s.transition(context.Background(), job.ID, models.JobUpdate{Status: models.JobStatusProcessing}); !ok {
		logger.Info("job no longer pending, skipping run")
		return
	}
	logger.Info("classification job started",
		"industry", industry.Name, "source", p.SourcePath, "use_index", p.UseIndex)

	usageBefore := s.categorizer.Usage()
	var sections []loader.SectionTime
	mark := func(name string, since time.Time) {
		sections = append(sections, loader.SectionTime{Name: name, Duration: time.Since(since)})
	}

	loadStart := time.Now()
	items, err := loader.LoadNewReviews(p.SourcePath)
	if err != nil {
		s.finishError(ctx, logger, job.ID, fmt.Errorf("load source workbook: %w", err))
		return
	}
	if len(items) == 0 {
		s.finishError(ctx, logger, job.ID, errors.New("source workbook contains no reviews"))
		return
	}
	mark("load", loadStart)

	total := len(items)
	pct := progressSourceLoaded
	s.transition(context.Background(), job.ID, models.JobUpdate{Progress: &pct, Total: &total})

	retrieverStart := time.Now()
	var retriever classify.Retriever
	if p.UseIndex {
		rec, err := s.indexes.Get(ctx, job.Owner, job.Target)
		if err != nil {
			s.finishError(ctx, logger, job.ID, fmt.Errorf("load index record: %w", err))
			return
		}
		if rec == nil {
			s.finishError(ctx, logger, job.ID,
				fmt.Errorf("no index built for industry %s", industry.Name))
			return
		}
		r, err := s.engine.OpenRetriever(rec)
		if err != nil {
			s.finishError(ctx, logger, job.ID, err)
			return
		}
		retriever = r
	}
	mark("retriever", retrieverStart)
	s.setProgress(job.ID, progressRetrieverReady)

	engine := classify.NewEngine(s.categorizer, retriever, industry.Categories, classify.Options{
		BatchSize:     s.cfg.ReviewsPerBatch,
		MaxConcurrent: s.cfg.MaxConcurrentBatches,
		MaxAttempts:   s.cfg.MaxAttempts,
	}, logger)

	s.setProgress(job.ID, progressClassifyStart)
	classifyStart := time.Now()
	results, summary, err := engine.Run(ctx, items,
		s.bandReporter(job.ID, progressClassifyStart, progressClassifyDone))
	if err != nil {
		s.finishError(ctx, logger, job.ID, err)
		return
	}
	mark("classify", classifyStart)
	s.setProgress(job.ID, progressClassifyDone)

	usage := usageDelta(usageBefore, s.categorizer.Usage())
	artifact := filepath.Join(s.cfg.ArtifactDir(), fmt.Sprintf("job_%s.xlsx", job.ID))
	err = loader.ExportResults(artifact, results, loader.RunSummary{
		EmbeddingModel:   s.cfg.EmbeddingModel,
		LLMModel:         s.cfg.LLMModel,
		AvgReviewLength:  summary.AvgReviewLength,
		APICalls:         usage.APICalls,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		Sections:         sections,
	})
	if err != nil {
		s.finishError(ctx, logger, job.ID, fmt.Errorf("export results: %w", err))
		return
	}

	done := progressDone
	s.transition(context.Background(), job.ID, models.JobUpdate{
		Status:    models.JobStatusCompleted,
		Progress:  &done,
		Processed: &total,
		Artifact:  &artifact,
	})
	logger.Info("classification job completed",
		"items", total,
		"artifact", artifact,
		"api_calls", usage.APICalls,
		"total_tokens", usage.TotalTokens,
		"failed_attempts", summary.FailedAttempts)
}

// usageDelta isolates one run's accounting from the service-lifetime
// categorizer counters.
func usageDelta(before, after llm.UsageStats) llm.UsageStats {
	return llm.UsageStats{
		APICalls:         after.APICalls - before.APICalls,
		PromptTokens:     after.PromptTokens - before.PromptTokens,
		CompletionTokens: after.CompletionTokens - before.CompletionTokens,
		TotalTokens:      after.TotalTokens - before.TotalTokens,
	}
}
