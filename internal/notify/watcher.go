// Package notify turns the polled job store into a stream of status change
// events for WebSocket clients and the CLI watch command.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/store"
)

// defaultInterval is the poll period against the job store.
const defaultInterval = 2 * time.Second

// Event is one observed job change. Err is set when watching itself failed,
// most commonly because the job does not exist; it is always the last event
// before the channel closes and is distinct from a job that finished with
// status failed.
type Event struct {
	JobID         string           `json:"job_id"`
	Status        models.JobStatus `json:"status"`
	Progress      int              `json:"progress"`
	Error         *string          `json:"error,omitempty"`
	DocumentCount *int             `json:"document_count,omitempty"`

	Err error `json:"-"`
}

// Watcher polls jobs and reports their changes.
type Watcher struct {
	jobs     store.JobStore
	interval time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher polling at interval; zero means the default
// of 2s.
func NewWatcher(jobs store.JobStore, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Watcher{jobs: jobs, interval: interval, logger: logger}
}

// Watch streams changes for one job. The current state is emitted
// immediately; afterwards an event fires only when status or progress
// changed since the last observation. The channel closes when the job
// reaches a terminal state, the job cannot be read, or ctx ends.
func (w *Watcher) Watch(ctx context.Context, jobID string) <-chan Event {
	ch := make(chan Event, 1)
	go w.poll(ctx, jobID, ch)
	return ch
}

func (w *Watcher) poll(ctx context.Context, jobID string, ch chan<- Event) {
	defer close(ch)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	first := true
	var lastStatus models.JobStatus
	lastProgress := -1

	for {
		job, err := w.jobs.Get(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("job watch ended", "job_id", jobID, "error", err)
			select {
			case ch <- Event{JobID: jobID, Err: err}:
			case <-ctx.Done():
			}
			return
		}

		if first || job.Status != lastStatus || job.Progress != lastProgress {
			first = false
			lastStatus = job.Status
			lastProgress = job.Progress
			select {
			case ch <- eventFromJob(job):
			case <-ctx.Done():
				return
			}
			if job.Status.IsTerminal() {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func eventFromJob(job models.Job) Event {
	ev := Event{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Error:    job.Error,
	}
	if job.Kind == models.JobKindIndexBuild && job.Status == models.JobStatusCompleted {
		count := job.Total
		ev.DocumentCount = &count
	}
	return ev
}
