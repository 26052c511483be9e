// Package jobs coordinates asynchronous index and classification work: it
// owns the job state machine, the registry of running jobs and their cancel
// contexts, and the runner goroutines that drive the engines.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tkohari/reviewkit/internal/config"
	"github.com/tkohari/reviewkit/internal/index"
	"github.com/tkohari/reviewkit/internal/llm"
	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/store"
)

// ErrValidation marks request errors the caller can fix: bad mode, missing
// source file, cancelling a finished job. It never enters the job state
// machine.
var ErrValidation = errors.New("invalid request")

// cancelMessage is recorded on jobs cancelled through CancelJob.
const cancelMessage = "cancelled by user"

// interruptedMessage is recorded on processing jobs found at startup.
const interruptedMessage = "interrupted by server restart"

// IndexJobParams describes an index build/extend/replace request.
type IndexJobParams struct {
	Owner      string
	IndustryID string
	SourcePath string
	Mode       models.IndexMode
}

// ClassificationJobParams describes a classification request. With UseIndex
// unset the run proceeds without retrieval context.
type ClassificationJobParams struct {
	Owner      string
	IndustryID string
	SourcePath string
	UseIndex   bool
}

// handle tracks one running job. requested records that a user cancel was
// issued, which distinguishes cancellation from process shutdown.
type handle struct {
	cancel    context.CancelFunc
	requested bool
}

// Service is the job orchestrator. One instance runs per process.
type Service struct {
	jobs        store.JobStore
	indexes     store.IndexStore
	industries  store.IndustryStore
	engine      *index.Engine
	categorizer llm.Categorizer
	cfg         config.Config
	logger      *slog.Logger

	// stateMu serializes job state transitions and the active-job check at
	// creation, keeping the one-active-job invariant race-free.
	stateMu sync.Mutex

	mu      sync.Mutex
	running map[string]*handle
	wg      sync.WaitGroup
}

// NewService wires the job orchestrator.
func NewService(jobStore store.JobStore, indexStore store.IndexStore, industryStore store.IndustryStore, engine *index.Engine, categorizer llm.Categorizer, cfg config.Config, logger *slog.Logger) *Service {
	return &Service{
		jobs:        jobStore,
		indexes:     indexStore,
		industries:  industryStore,
		engine:      engine,
		categorizer: categorizer,
		cfg:         cfg,
		logger:      logger,
		running:     make(map[string]*handle),
	}
}

// Recover marks jobs left processing by an earlier process as failed. Called
// once before the service accepts work.
func (s *Service) Recover(ctx context.Context) error {
	n, err := s.jobs.MarkInterrupted(ctx, interruptedMessage)
	if err != nil {
		return fmt.Errorf("sweep interrupted jobs: %w", err)
	}
	if n > 0 {
		s.logger.Warn("marked interrupted jobs as failed", "count", n)
	}
	return nil
}

// SubmitIndexJob validates the request, creates a pending job and starts the
// index runner. The job is returned immediately; progress is observable
// through GetJobStatus or the notifier.
func (s *Service) SubmitIndexJob(ctx context.Context, p IndexJobParams) (models.Job, error) {
	if _, ok := models.ParseIndexMode(string(p.Mode)); !ok {
		return models.Job{}, fmt.Errorf("mode must be %q or %q: %w",
			models.IndexModeAdd, models.IndexModeReplace, ErrValidation)
	}
	industry, err := s.resolveIndustry(ctx, p.Owner, p.IndustryID)
	if err != nil {
		return models.Job{}, err
	}
	if err := checkSource(p.SourcePath); err != nil {
		return models.Job{}, err
	}

	job, err := s.createJob(ctx, p.Owner, models.JobKindIndexBuild, industry.ID)
	if err != nil {
		return models.Job{}, err
	}

	s.start(job, func(runCtx context.Context) {
		s.runIndexJob(runCtx, job, p)
	})
	return job, nil
}

// SubmitClassificationJob validates the request, creates a pending job and
// starts the classification runner.
func (s *Service) SubmitClassificationJob(ctx context.Context, p ClassificationJobParams) (models.Job, error) {
	industry, err := s.resolveIndustry(ctx, p.Owner, p.IndustryID)
	if err != nil {
		return models.Job{}, err
	}
	if err := checkSource(p.SourcePath); err != nil {
		return models.Job{}, err
	}

	job, err := s.createJob(ctx, p.Owner, models.JobKindClassification, industry.ID)
	if err != nil {
		return models.Job{}, err
	}

	s.start(job, func(runCtx context.Context) {
		s.runClassificationJob(runCtx, job, p, industry)
	})
	return job, nil
}

// GetJobStatus returns the current job record.
func (s *Service) GetJobStatus(ctx context.Context, id string) (models.Job, error) {
	return s.jobs.Get(ctx, id)
}

// ListJobs returns jobs, newest first, optionally filtered by owner.
func (s *Service) ListJobs(ctx context.Context, owner string) ([]models.Job, error) {
	return s.jobs.List(ctx, owner)
}

// CancelJob transitions an active job to cancelled and interrupts its runner
// if one is executing. Cancelling a terminal job is a validation error.
func (s *Service) CancelJob(ctx context.Context, id string) (models.Job, error) {
	s.stateMu.Lock()
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		s.stateMu.Unlock()
		return models.Job{}, err
	}
	if job.Status.IsTerminal() {
		s.stateMu.Unlock()
		return job, fmt.Errorf("job %s already %s: %w", id, job.Status, ErrValidation)
	}
	msg := cancelMessage
	job, err = s.jobs.Update(ctx, id, models.JobUpdate{
		Status: models.JobStatusCancelled,
		Error:  &msg,
	})
	s.stateMu.Unlock()
	if err != nil {
		return models.Job{}, err
	}

	s.mu.Lock()
	if h, ok := s.running[id]; ok {
		h.requested = true
		h.cancel()
	}
	s.mu.Unlock()

	s.logger.Info("job cancelled", "job_id", id)
	return job, nil
}

// Shutdown waits for running jobs until ctx expires. Jobs still running when
// the process exits stay processing and are swept to failed on next start.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateIndustry registers a classification target with its category
// vocabulary.
func (s *Service) CreateIndustry(ctx context.Context, owner, name string, categories []string) (models.Industry, error) {
	if name == "" {
		return models.Industry{}, fmt.Errorf("industry name required: %w", ErrValidation)
	}
	if len(categories) == 0 {
		return models.Industry{}, fmt.Errorf("at least one category required: %w", ErrValidation)
	}
	return s.industries.Create(ctx, models.Industry{
		Name:       name,
		Owner:      owner,
		Categories: categories,
	})
}

// GetIndustry returns one industry by id.
func (s *Service) GetIndustry(ctx context.Context, id string) (models.Industry, error) {
	return s.industries.Get(ctx, id)
}

// ListIndustries returns industries, optionally filtered by owner.
func (s *Service) ListIndustries(ctx context.Context, owner string) ([]models.Industry, error) {
	return s.industries.List(ctx, owner)
}

// GetIndexRecord returns the index record for (owner, industry), or nil when
// no index has been built.
func (s *Service) GetIndexRecord(ctx context.Context, owner, industryID string) (*models.IndexRecord, error) {
	return s.indexes.Get(ctx, owner, industryID)
}

// resolveIndustry loads the industry and checks ownership. A foreign
// industry reads as not found.
func (s *Service) resolveIndustry(ctx context.Context, owner, id string) (models.Industry, error) {
	if owner == "" {
		return models.Industry{}, fmt.Errorf("owner required: %w", ErrValidation)
	}
	industry, err := s.industries.Get(ctx, id)
	if err != nil {
		return models.Industry{}, err
	}
	if industry.Owner != owner {
		return models.Industry{}, fmt.Errorf("industry %s: %w", id, store.ErrNotFound)
	}
	return industry, nil
}

// createJob enforces the one-active-job invariant and persists the pending
// job. The check and the insert run under stateMu so a concurrent duplicate
// cannot slip between them.
func (s *Service) createJob(ctx context.Context, owner string, kind models.JobKind, target string) (models.Job, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	active, err := s.jobs.ActiveJob(ctx, owner, kind)
	if err != nil {
		return models.Job{}, fmt.Errorf("check active jobs: %w", err)
	}
	if active != nil {
		return models.Job{}, fmt.Errorf("job %s is still %s for this owner and kind: %w",
			active.ID, active.Status, store.ErrConflict)
	}

	now := time.Now().UTC()
	job := models.Job{
		ID:        uuid.NewString()[:8],
		Kind:      kind,
		Owner:     owner,
		Target:    target,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return models.Job{}, fmt.Errorf("create job: %w", err)
	}
	s.logger.Info("job created", "job_id", job.ID, "kind", kind, "owner", owner, "target", target)
	return job, nil
}

// start registers a handle and launches the runner on a background-derived
// context, so the job outlives the submitting request.
func (s *Service) start(job models.Job, run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.running[job.ID] = &handle{cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer s.unregister(job.ID)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("job runner panicked", "job_id", job.ID, "panic", r)
				msg := fmt.Sprintf("panic: %v", r)
				s.transition(context.Background(), job.ID, models.JobUpdate{
					Status: models.JobStatusFailed,
					Error:  &msg,
				})
			}
		}()
		run(ctx)
	}()
}

func (s *Service) unregister(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

// cancelRequested reports whether CancelJob fired for a still-registered job.
func (s *Service) cancelRequested(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.running[id]
	return ok && h.requested
}

func checkSource(path string) error {
	if path == "" {
		return fmt.Errorf("source path required: %w", ErrValidation)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("source file %s not accessible: %w", path, ErrValidation)
	}
	if info.IsDir() {
		return fmt.Errorf("source path %s is a directory: %w", path, ErrValidation)
	}
	return nil
}
