// Package surreal provides integration tests for the SurrealDB stores.
package surreal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tkohari/reviewkit/internal/db"
	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/store"
)

var testClient *db.Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testClient, err = db.NewClient(ctx, db.Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testClient.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testClient.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func TestJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(testClient, nil)

	job := models.Job{
		ID:     newShortID(),
		Kind:   models.JobKindIndexBuild,
		Owner:  "alice",
		Target: "ind1",
		Status: models.JobStatusPending,
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Kind != models.JobKindIndexBuild || got.Status != models.JobStatusPending {
		t.Errorf("Get returned %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should be set by the schema default")
	}

	progress := 55
	processed := 11
	updated, err := s.Update(ctx, job.ID, models.JobUpdate{
		Status:    models.JobStatusProcessing,
		Progress:  &progress,
		Processed: &processed,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != models.JobStatusProcessing || updated.Progress != 55 || updated.Processed != 11 {
		t.Errorf("Update returned %+v", updated)
	}

	active, err := s.ActiveJob(ctx, "alice", models.JobKindIndexBuild)
	if err != nil {
		t.Fatalf("ActiveJob failed: %v", err)
	}
	if active == nil || active.ID != job.ID {
		t.Errorf("ActiveJob = %+v, want %s", active, job.ID)
	}

	if _, err := s.Update(ctx, job.ID, models.JobUpdate{Status: models.JobStatusCompleted}); err != nil {
		t.Fatalf("terminal Update failed: %v", err)
	}
	active, err = s.ActiveJob(ctx, "alice", models.JobKindIndexBuild)
	if err != nil {
		t.Fatalf("ActiveJob failed: %v", err)
	}
	if active != nil {
		t.Errorf("ActiveJob after completion = %+v, want nil", active)
	}
}

func TestJobStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(testClient, nil)

	if _, err := s.Get(ctx, "no-such-job"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if _, err := s.Update(ctx, "no-such-job", models.JobUpdate{Status: models.JobStatusFailed}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestJobStoreMarkInterrupted(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(testClient, nil)

	stuck := models.Job{
		ID:     newShortID(),
		Kind:   models.JobKindClassification,
		Owner:  "sweep-owner",
		Target: "ind1",
		Status: models.JobStatusProcessing,
	}
	if err := s.Create(ctx, stuck); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	count, err := s.MarkInterrupted(ctx, "interrupted by server restart")
	if err != nil {
		t.Fatalf("MarkInterrupted failed: %v", err)
	}
	if count < 1 {
		t.Errorf("swept %d jobs, want at least 1", count)
	}

	got, err := s.Get(ctx, stuck.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.JobStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Error == nil || *got.Error != "interrupted by server restart" {
		t.Errorf("error = %v", got.Error)
	}
}

func TestIndexStoreUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewIndexStore(testClient, nil)

	got, err := s.Get(ctx, "alice", "idx-target")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Fatalf("Get before Put = %+v, want nil", got)
	}

	rec, err := s.Put(ctx, models.IndexRecord{
		Owner:          "alice",
		Target:         "idx-target",
		IndexPath:      "/data/indexes/idx-target.idx",
		CachePath:      "/data/caches/idx-target.json",
		EmbeddingModel: "all-minilm:l6-v2",
		DocumentCount:  50,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec2, err := s.Put(ctx, models.IndexRecord{
		Owner:          "alice",
		Target:         "idx-target",
		IndexPath:      rec.IndexPath,
		CachePath:      rec.CachePath,
		EmbeddingModel: rec.EmbeddingModel,
		DocumentCount:  60,
	})
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if rec2.ID != rec.ID {
		t.Errorf("Put created a new record: %s -> %s", rec.ID, rec2.ID)
	}
	if rec2.DocumentCount != 60 {
		t.Errorf("DocumentCount = %d, want 60", rec2.DocumentCount)
	}

	if err := s.Delete(ctx, "alice", "idx-target"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	got, err = s.Get(ctx, "alice", "idx-target")
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if got != nil {
		t.Errorf("record survived delete: %+v", got)
	}
}

func TestIndustryStoreCreateAndList(t *testing.T) {
	ctx := context.Background()
	s := NewIndustryStore(testClient, nil)

	ind, err := s.Create(ctx, models.Industry{
		Name:       "hotels",
		Owner:      "carol",
		Categories: []string{"cleanliness", "staff", "location"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.Get(ctx, ind.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "hotels" || len(got.Categories) != 3 {
		t.Errorf("Get returned %+v", got)
	}

	// The unique owner+name index rejects duplicates
	dup := models.Industry{Name: "hotels", Owner: "carol", Categories: []string{"other"}}
	if _, err := s.Create(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate Create = %v, want ErrConflict", err)
	}

	list, err := s.List(ctx, "carol")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List returned %d industries, want 1", len(list))
	}
}
