// Package memory provides in-memory store implementations. They back unit
// tests and single-process runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/store"
)

// JobStore is a concurrency-safe in-memory JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
}

// Compile-time check that JobStore implements store.JobStore.
var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]models.Job)}
}

func (s *JobStore) Create(ctx context.Context, job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s: %w", job.ID, store.ErrConflict)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	return job, nil
}

func (s *JobStore) List(ctx context.Context, owner string) ([]models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if owner == "" || job.Owner == owner {
			out = append(out, job)
		}
	}
	// Newest first for stable listings
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *JobStore) Update(ctx context.Context, id string, upd models.JobUpdate) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	if upd.Status != "" {
		job.Status = upd.Status
	}
	if upd.Progress != nil {
		job.Progress = *upd.Progress
	}
	if upd.Error != nil {
		job.Error = upd.Error
	}
	if upd.Processed != nil {
		job.Processed = *upd.Processed
	}
	if upd.Total != nil {
		job.Total = *upd.Total
	}
	if upd.Artifact != nil {
		job.Artifact = upd.Artifact
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

func (s *JobStore) ActiveJob(ctx context.Context, owner string, kind models.JobKind) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.Owner == owner && job.Kind == kind && job.Status.IsActive() {
			j := job
			return &j, nil
		}
	}
	return nil, nil
}

func (s *JobStore) MarkInterrupted(ctx context.Context, msg string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, job := range s.jobs {
		if job.Status == models.JobStatusProcessing {
			job.Status = models.JobStatusFailed
			errMsg := msg
			job.Error = &errMsg
			job.UpdatedAt = time.Now().UTC()
			s.jobs[id] = job
			count++
		}
	}
	return count, nil
}

// IndexStore is a concurrency-safe in-memory IndexStore.
type IndexStore struct {
	mu      sync.RWMutex
	records map[string]models.IndexRecord
}

var _ store.IndexStore = (*IndexStore)(nil)

// NewIndexStore creates an empty in-memory index store.
func NewIndexStore() *IndexStore {
	return &IndexStore{records: make(map[string]models.IndexRecord)}
}

func indexKey(owner, target string) string {
	return owner + "/" + target
}

func (s *IndexStore) Get(ctx context.Context, owner, target string) (*models.IndexRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[indexKey(owner, target)]
	if !ok {
		return nil, nil
	}
	r := rec
	return &r, nil
}

func (s *IndexStore) Put(ctx context.Context, rec models.IndexRecord) (models.IndexRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := indexKey(rec.Owner, rec.Target)
	now := time.Now().UTC()
	if existing, ok := s.records[key]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		if rec.ID == "" {
			rec.ID = uuid.New().String()[:8]
		}
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[key] = rec
	return rec, nil
}

func (s *IndexStore) Delete(ctx context.Context, owner, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := indexKey(owner, target)
	if _, ok := s.records[key]; !ok {
		return fmt.Errorf("index %s: %w", key, store.ErrNotFound)
	}
	delete(s.records, key)
	return nil
}

// IndustryStore is a concurrency-safe in-memory IndustryStore.
type IndustryStore struct {
	mu         sync.RWMutex
	industries map[string]models.Industry
}

var _ store.IndustryStore = (*IndustryStore)(nil)

// NewIndustryStore creates an empty in-memory industry store.
func NewIndustryStore() *IndustryStore {
	return &IndustryStore{industries: make(map[string]models.Industry)}
}

func (s *IndustryStore) Create(ctx context.Context, ind models.Industry) (models.Industry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.industries {
		if existing.Owner == ind.Owner && existing.Name == ind.Name {
			return models.Industry{}, fmt.Errorf("industry %q: %w", ind.Name, store.ErrConflict)
		}
	}
	if ind.ID == "" {
		ind.ID = uuid.New().String()[:8]
	}
	now := time.Now().UTC()
	ind.CreatedAt = now
	ind.UpdatedAt = now
	s.industries[ind.ID] = ind
	return ind, nil
}

func (s *IndustryStore) Get(ctx context.Context, id string) (models.Industry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ind, ok := s.industries[id]
	if !ok {
		return models.Industry{}, fmt.Errorf("industry %s: %w", id, store.ErrNotFound)
	}
	return ind, nil
}

func (s *IndustryStore) List(ctx context.Context, owner string) ([]models.Industry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Industry, 0, len(s.industries))
	for _, ind := range s.industries {
		if owner == "" || ind.Owner == owner {
			out = append(out, ind)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
