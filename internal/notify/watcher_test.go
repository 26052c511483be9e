package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/store"
	"github.com/tkohari/reviewkit/internal/store/memory"
)

func newWatchEnv(t *testing.T) (*Watcher, *memory.JobStore) {
	t.Helper()
	jobs := memory.NewJobStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWatcher(jobs, 5*time.Millisecond, logger), jobs
}

func seedJob(t *testing.T, jobs *memory.JobStore, job models.Job) {
	t.Helper()
	require.NoError(t, jobs.Create(context.Background(), job))
}

// recvEvent waits for the next event with a deadline.
func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func awaitClosed(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected channel to close")
	case <-time.After(2 * time.Second):
		t.Fatal("channel never closed")
	}
}

func TestWatchEmitsInitialStateThenChanges(t *testing.T) {
	w, jobs := newWatchEnv(t)
	seedJob(t, jobs, models.Job{ID: "j1", Kind: models.JobKindClassification, Status: models.JobStatusPending})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := w.Watch(ctx, "j1")

	ev := recvEvent(t, ch)
	assert.Equal(t, "j1", ev.JobID)
	assert.Equal(t, models.JobStatusPending, ev.Status)

	_, err := jobs.Update(context.Background(), "j1", models.JobUpdate{Status: models.JobStatusProcessing})
	require.NoError(t, err)
	ev = recvEvent(t, ch)
	assert.Equal(t, models.JobStatusProcessing, ev.Status)

	progress := 42
	_, err = jobs.Update(context.Background(), "j1", models.JobUpdate{Progress: &progress})
	require.NoError(t, err)
	ev = recvEvent(t, ch)
	assert.Equal(t, 42, ev.Progress)
}

func TestWatchSuppressesUnchangedPolls(t *testing.T) {
	w, jobs := newWatchEnv(t)
	seedJob(t, jobs, models.Job{ID: "j1", Status: models.JobStatusProcessing})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := w.Watch(ctx, "j1")

	recvEvent(t, ch)

	// Several poll periods with no change produce no further events
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for unchanged job: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchClosesOnTerminalStatus(t *testing.T) {
	w, jobs := newWatchEnv(t)
	msg := "boom"
	seedJob(t, jobs, models.Job{ID: "j1", Status: models.JobStatusProcessing})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := w.Watch(ctx, "j1")
	recvEvent(t, ch)

	_, err := jobs.Update(context.Background(), "j1", models.JobUpdate{
		Status: models.JobStatusFailed,
		Error:  &msg,
	})
	require.NoError(t, err)

	ev := recvEvent(t, ch)
	assert.Equal(t, models.JobStatusFailed, ev.Status)
	require.NotNil(t, ev.Error)
	assert.Equal(t, "boom", *ev.Error)
	assert.NoError(t, ev.Err)

	awaitClosed(t, ch)
}

func TestWatchReportsDocumentCountOnIndexCompletion(t *testing.T) {
	w, jobs := newWatchEnv(t)
	seedJob(t, jobs, models.Job{
		ID:     "j1",
		Kind:   models.JobKindIndexBuild,
		Status: models.JobStatusCompleted,
		Total:  120,
	})

	ch := w.Watch(context.Background(), "j1")
	ev := recvEvent(t, ch)
	require.NotNil(t, ev.DocumentCount)
	assert.Equal(t, 120, *ev.DocumentCount)
	awaitClosed(t, ch)
}

func TestWatchMissingJobEmitsError(t *testing.T) {
	w, _ := newWatchEnv(t)

	ch := w.Watch(context.Background(), "ghost")
	ev := recvEvent(t, ch)
	require.ErrorIs(t, ev.Err, store.ErrNotFound)
	awaitClosed(t, ch)
}

func TestWatchStopsOnContextCancel(t *testing.T) {
	w, jobs := newWatchEnv(t)
	seedJob(t, jobs, models.Job{ID: "j1", Status: models.JobStatusProcessing})

	ctx, cancel := context.WithCancel(context.Background())
	ch := w.Watch(ctx, "j1")
	recvEvent(t, ch)

	cancel()
	awaitClosed(t, ch)
}
