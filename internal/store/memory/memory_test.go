package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/store"
)

func testJob(id, owner string, kind models.JobKind, status models.JobStatus) models.Job {
	now := time.Now().UTC()
	return models.Job{
		ID:        id,
		Kind:      kind,
		Owner:     owner,
		Target:    "ind1",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestJobStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	job := testJob("j1", "alice", models.JobKindIndexBuild, models.JobStatusPending)
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Owner != "alice" || got.Status != models.JobStatusPending {
		t.Errorf("Get returned %+v", got)
	}

	if err := s.Create(ctx, job); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate Create = %v, want ErrConflict", err)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestJobStoreUpdatePartialFields(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	if err := s.Create(ctx, testJob("j1", "alice", models.JobKindClassification, models.JobStatusPending)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	progress := 40
	updated, err := s.Update(ctx, "j1", models.JobUpdate{
		Status:   models.JobStatusProcessing,
		Progress: &progress,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != models.JobStatusProcessing || updated.Progress != 40 {
		t.Errorf("Update returned %+v", updated)
	}

	// A later update without progress must keep the previous value
	errMsg := "boom"
	updated, err = s.Update(ctx, "j1", models.JobUpdate{
		Status: models.JobStatusFailed,
		Error:  &errMsg,
	})
	if err != nil {
		t.Fatalf("second Update failed: %v", err)
	}
	if updated.Progress != 40 {
		t.Errorf("progress clobbered: got %d, want 40", updated.Progress)
	}
	if updated.Error == nil || *updated.Error != "boom" {
		t.Errorf("error not recorded: %+v", updated)
	}
}

func TestJobStoreActiveJob(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	if err := s.Create(ctx, testJob("j1", "alice", models.JobKindIndexBuild, models.JobStatusProcessing)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, testJob("j2", "alice", models.JobKindClassification, models.JobStatusCompleted)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	active, err := s.ActiveJob(ctx, "alice", models.JobKindIndexBuild)
	if err != nil {
		t.Fatalf("ActiveJob failed: %v", err)
	}
	if active == nil || active.ID != "j1" {
		t.Errorf("ActiveJob = %+v, want j1", active)
	}

	// Completed jobs do not count as active
	active, err = s.ActiveJob(ctx, "alice", models.JobKindClassification)
	if err != nil {
		t.Fatalf("ActiveJob failed: %v", err)
	}
	if active != nil {
		t.Errorf("ActiveJob for completed kind = %+v, want nil", active)
	}

	// Other owners are unaffected
	active, err = s.ActiveJob(ctx, "bob", models.JobKindIndexBuild)
	if err != nil {
		t.Fatalf("ActiveJob failed: %v", err)
	}
	if active != nil {
		t.Errorf("ActiveJob for other owner = %+v, want nil", active)
	}
}

func TestJobStoreMarkInterrupted(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	if err := s.Create(ctx, testJob("j1", "alice", models.JobKindIndexBuild, models.JobStatusProcessing)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, testJob("j2", "bob", models.JobKindClassification, models.JobStatusProcessing)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, testJob("j3", "carol", models.JobKindIndexBuild, models.JobStatusPending)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	count, err := s.MarkInterrupted(ctx, "interrupted by server restart")
	if err != nil {
		t.Fatalf("MarkInterrupted failed: %v", err)
	}
	if count != 2 {
		t.Errorf("swept %d jobs, want 2", count)
	}

	j1, _ := s.Get(ctx, "j1")
	if j1.Status != models.JobStatusFailed || j1.Error == nil || *j1.Error != "interrupted by server restart" {
		t.Errorf("j1 after sweep: %+v", j1)
	}

	// Pending jobs survive the sweep untouched
	j3, _ := s.Get(ctx, "j3")
	if j3.Status != models.JobStatusPending {
		t.Errorf("j3 status = %s, want pending", j3.Status)
	}
}

func TestIndexStoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := NewIndexStore()

	got, err := s.Get(ctx, "alice", "ind1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Get on empty store = %+v, want nil", got)
	}

	rec, err := s.Put(ctx, models.IndexRecord{
		Owner:          "alice",
		Target:         "ind1",
		IndexPath:      "/data/indexes/ind1.idx",
		CachePath:      "/data/caches/ind1.json",
		EmbeddingModel: "all-minilm:l6-v2",
		DocumentCount:  50,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if rec.ID == "" {
		t.Error("Put should assign an ID")
	}

	// Second Put updates in place, keeping id and created_at
	rec2, err := s.Put(ctx, models.IndexRecord{
		Owner:          "alice",
		Target:         "ind1",
		IndexPath:      "/data/indexes/ind1.idx",
		CachePath:      "/data/caches/ind1.json",
		EmbeddingModel: "all-minilm:l6-v2",
		DocumentCount:  60,
	})
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if rec2.ID != rec.ID {
		t.Errorf("Put changed record id: %s -> %s", rec.ID, rec2.ID)
	}
	if rec2.DocumentCount != 60 {
		t.Errorf("DocumentCount = %d, want 60", rec2.DocumentCount)
	}

	if err := s.Delete(ctx, "alice", "ind1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "alice", "ind1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestIndustryStoreCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewIndustryStore()

	ind, err := s.Create(ctx, models.Industry{
		Name:       "restaurants",
		Owner:      "alice",
		Categories: []string{"food", "service", "price"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if ind.ID == "" {
		t.Error("Create should assign an ID")
	}

	if _, err := s.Create(ctx, models.Industry{Name: "restaurants", Owner: "alice"}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate Create = %v, want ErrConflict", err)
	}

	// Same name under a different owner is allowed
	if _, err := s.Create(ctx, models.Industry{Name: "restaurants", Owner: "bob"}); err != nil {
		t.Errorf("Create for other owner failed: %v", err)
	}

	got, err := s.Get(ctx, ind.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Categories) != 3 {
		t.Errorf("categories = %v", got.Categories)
	}
}
