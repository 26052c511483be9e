// Package surreal implements the store interfaces on SurrealDB.
package surreal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/tkohari/reviewkit/internal/db"
	"github.com/tkohari/reviewkit/internal/metrics"
	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/store"
)

// newShortID returns an 8-char record id, enough entropy for per-owner data.
func newShortID() string {
	return uuid.New().String()[:8]
}

// timedQuery runs one SurrealQL query and records its wall time. The
// collector may be nil.
func timedQuery[T any](ctx context.Context, client *db.Client, collector *metrics.Collector, sql string, vars map[string]any) (*[]surrealdb.QueryResult[T], error) {
	start := time.Now()
	results, err := surrealdb.Query[T](ctx, client.DB(), sql, vars)
	if collector != nil {
		collector.RecordTiming(metrics.OpDBQuery, time.Since(start))
	}
	return results, err
}

// jobRecord is the database representation of models.Job.
type jobRecord struct {
	ID        surrealmodels.RecordID `json:"id"`
	Kind      string                 `json:"kind"`
	Owner     string                 `json:"owner"`
	Target    string                 `json:"target"`
	Status    string                 `json:"status"`
	Progress  int                    `json:"progress"`
	Error     *string                `json:"error,omitempty"`
	Processed int                    `json:"processed"`
	Total     int                    `json:"total"`
	Artifact  *string                `json:"artifact,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func (r jobRecord) toModel() models.Job {
	return models.Job{
		ID:        models.MustRecordIDString(r.ID),
		Kind:      models.JobKind(r.Kind),
		Owner:     r.Owner,
		Target:    r.Target,
		Status:    models.JobStatus(r.Status),
		Progress:  r.Progress,
		Error:     r.Error,
		Processed: r.Processed,
		Total:     r.Total,
		Artifact:  r.Artifact,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// JobStore persists jobs in the job table.
type JobStore struct {
	client  *db.Client
	metrics *metrics.Collector
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates a SurrealDB-backed job store. The collector may be nil.
func NewJobStore(client *db.Client, collector *metrics.Collector) *JobStore {
	return &JobStore{client: client, metrics: collector}
}

func (s *JobStore) Create(ctx context.Context, job models.Job) error {
	_, err := timedQuery[[]jobRecord](ctx, s.client, s.metrics, `
		CREATE type::record("job", $id) SET
			kind = $kind,
			owner = $owner,
			target = $target,
			status = $status,
			progress = $progress,
			processed = $processed,
			total = $total
	`, map[string]any{
		"id":        job.ID,
		"kind":      string(job.Kind),
		"owner":     job.Owner,
		"target":    job.Target,
		"status":    string(job.Status),
		"progress":  job.Progress,
		"processed": job.Processed,
		"total":     job.Total,
	})
	if err != nil {
		err = db.WrapQueryError(err)
		if errors.Is(err, db.ErrAlreadyExists) {
			return fmt.Errorf("job %s: %w", job.ID, store.ErrConflict)
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (models.Job, error) {
	results, err := timedQuery[[]jobRecord](ctx, s.client, s.metrics, `
		SELECT * FROM type::record("job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", db.WrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.Job{}, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	return (*results)[0].Result[0].toModel(), nil
}

func (s *JobStore) List(ctx context.Context, owner string) ([]models.Job, error) {
	ownerClause := ""
	vars := map[string]any{}
	if owner != "" {
		ownerClause = "WHERE owner = $owner"
		vars["owner"] = owner
	}
	sql := fmt.Sprintf(`SELECT * FROM job %s ORDER BY created_at DESC`, ownerClause)

	results, err := timedQuery[[]jobRecord](ctx, s.client, s.metrics, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", db.WrapQueryError(err))
	}
	jobs := []models.Job{}
	if results != nil && len(*results) > 0 {
		for _, rec := range (*results)[0].Result {
			jobs = append(jobs, rec.toModel())
		}
	}
	return jobs, nil
}

func (s *JobStore) Update(ctx context.Context, id string, upd models.JobUpdate) (models.Job, error) {
	// Build the SET clause from the fields actually present
	set := "updated_at = time::now()"
	vars := map[string]any{"id": id}
	if upd.Status != "" {
		set += ", status = $status"
		vars["status"] = string(upd.Status)
	}
	if upd.Progress != nil {
		set += ", progress = $progress"
		vars["progress"] = *upd.Progress
	}
	if upd.Error != nil {
		set += ", error = $error"
		vars["error"] = *upd.Error
	}
	if upd.Processed != nil {
		set += ", processed = $processed"
		vars["processed"] = *upd.Processed
	}
	if upd.Total != nil {
		set += ", total = $total"
		vars["total"] = *upd.Total
	}
	if upd.Artifact != nil {
		set += ", artifact = $artifact"
		vars["artifact"] = *upd.Artifact
	}

	sql := fmt.Sprintf(`UPDATE type::record("job", $id) SET %s RETURN AFTER`, set)
	results, err := timedQuery[[]jobRecord](ctx, s.client, s.metrics, sql, vars)
	if err != nil {
		return models.Job{}, fmt.Errorf("update job: %w", db.WrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.Job{}, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	return (*results)[0].Result[0].toModel(), nil
}

func (s *JobStore) ActiveJob(ctx context.Context, owner string, kind models.JobKind) (*models.Job, error) {
	results, err := timedQuery[[]jobRecord](ctx, s.client, s.metrics, `
		SELECT * FROM job
		WHERE owner = $owner AND kind = $kind AND status IN ["pending", "processing"]
		LIMIT 1
	`, map[string]any{"owner": owner, "kind": string(kind)})
	if err != nil {
		return nil, fmt.Errorf("active job: %w", db.WrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	job := (*results)[0].Result[0].toModel()
	return &job, nil
}

func (s *JobStore) MarkInterrupted(ctx context.Context, msg string) (int, error) {
	results, err := timedQuery[[]jobRecord](ctx, s.client, s.metrics, `
		UPDATE job SET
			status = "failed",
			error = $msg,
			updated_at = time::now()
		WHERE status = "processing"
		RETURN AFTER
	`, map[string]any{"msg": msg})
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", db.WrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// indexRecord is the database representation of models.IndexRecord.
type indexRecord struct {
	ID             surrealmodels.RecordID `json:"id"`
	Owner          string                 `json:"owner"`
	Target         string                 `json:"target"`
	IndexPath      string                 `json:"index_path"`
	CachePath      string                 `json:"cache_path"`
	EmbeddingModel string                 `json:"embedding_model"`
	DocumentCount  int                    `json:"document_count"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func (r indexRecord) toModel() models.IndexRecord {
	return models.IndexRecord{
		ID:             models.MustRecordIDString(r.ID),
		Owner:          r.Owner,
		Target:         r.Target,
		IndexPath:      r.IndexPath,
		CachePath:      r.CachePath,
		EmbeddingModel: r.EmbeddingModel,
		DocumentCount:  r.DocumentCount,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// IndexStore persists index metadata in the index_meta table.
type IndexStore struct {
	client  *db.Client
	metrics *metrics.Collector
}

var _ store.IndexStore = (*IndexStore)(nil)

// NewIndexStore creates a SurrealDB-backed index store. The collector may be
// nil.
func NewIndexStore(client *db.Client, collector *metrics.Collector) *IndexStore {
	return &IndexStore{client: client, metrics: collector}
}

func (s *IndexStore) Get(ctx context.Context, owner, target string) (*models.IndexRecord, error) {
	results, err := timedQuery[[]indexRecord](ctx, s.client, s.metrics, `
		SELECT * FROM index_meta WHERE owner = $owner AND target = $target LIMIT 1
	`, map[string]any{"owner": owner, "target": target})
	if err != nil {
		return nil, fmt.Errorf("get index record: %w", db.WrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	rec := (*results)[0].Result[0].toModel()
	return &rec, nil
}

func (s *IndexStore) Put(ctx context.Context, rec models.IndexRecord) (models.IndexRecord, error) {
	existing, err := s.Get(ctx, rec.Owner, rec.Target)
	if err != nil {
		return models.IndexRecord{}, err
	}

	vars := map[string]any{
		"owner":           rec.Owner,
		"target":          rec.Target,
		"index_path":      rec.IndexPath,
		"cache_path":      rec.CachePath,
		"embedding_model": rec.EmbeddingModel,
		"document_count":  rec.DocumentCount,
	}

	var sql string
	if existing != nil {
		// Update the record in place to keep its id stable
		sql = `
			UPDATE type::record("index_meta", $id) SET
				index_path = $index_path,
				cache_path = $cache_path,
				embedding_model = $embedding_model,
				document_count = $document_count,
				updated_at = time::now()
			RETURN AFTER
		`
		vars["id"] = existing.ID
	} else {
		sql = `
			CREATE type::record("index_meta", $id) SET
				owner = $owner,
				target = $target,
				index_path = $index_path,
				cache_path = $cache_path,
				embedding_model = $embedding_model,
				document_count = $document_count
		`
		if rec.ID == "" {
			rec.ID = newShortID()
		}
		vars["id"] = rec.ID
	}

	results, err := timedQuery[[]indexRecord](ctx, s.client, s.metrics, sql, vars)
	if err != nil {
		return models.IndexRecord{}, fmt.Errorf("put index record: %w", db.WrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.IndexRecord{}, fmt.Errorf("put index record: empty result")
	}
	return (*results)[0].Result[0].toModel(), nil
}

func (s *IndexStore) Delete(ctx context.Context, owner, target string) error {
	_, err := timedQuery[any](ctx, s.client, s.metrics, `
		DELETE index_meta WHERE owner = $owner AND target = $target
	`, map[string]any{"owner": owner, "target": target})
	if err != nil {
		return fmt.Errorf("delete index record: %w", db.WrapQueryError(err))
	}
	return nil
}

// industryRecord is the database representation of models.Industry.
type industryRecord struct {
	ID         surrealmodels.RecordID `json:"id"`
	Name       string                 `json:"name"`
	Owner      string                 `json:"owner"`
	Categories []string               `json:"categories"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func (r industryRecord) toModel() models.Industry {
	return models.Industry{
		ID:         models.MustRecordIDString(r.ID),
		Name:       r.Name,
		Owner:      r.Owner,
		Categories: r.Categories,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// IndustryStore persists industries in the industry table.
type IndustryStore struct {
	client  *db.Client
	metrics *metrics.Collector
}

var _ store.IndustryStore = (*IndustryStore)(nil)

// NewIndustryStore creates a SurrealDB-backed industry store. The collector
// may be nil.
func NewIndustryStore(client *db.Client, collector *metrics.Collector) *IndustryStore {
	return &IndustryStore{client: client, metrics: collector}
}

func (s *IndustryStore) Create(ctx context.Context, ind models.Industry) (models.Industry, error) {
	if ind.ID == "" {
		ind.ID = newShortID()
	}
	results, err := timedQuery[[]industryRecord](ctx, s.client, s.metrics, `
		CREATE type::record("industry", $id) SET
			name = $name,
			owner = $owner,
			categories = $categories
	`, map[string]any{
		"id":         ind.ID,
		"name":       ind.Name,
		"owner":      ind.Owner,
		"categories": ind.Categories,
	})
	if err != nil {
		err = db.WrapQueryError(err)
		if errors.Is(err, db.ErrAlreadyExists) {
			return models.Industry{}, fmt.Errorf("industry %q: %w", ind.Name, store.ErrConflict)
		}
		return models.Industry{}, fmt.Errorf("create industry: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.Industry{}, fmt.Errorf("create industry: empty result")
	}
	return (*results)[0].Result[0].toModel(), nil
}

func (s *IndustryStore) Get(ctx context.Context, id string) (models.Industry, error) {
	results, err := timedQuery[[]industryRecord](ctx, s.client, s.metrics, `
		SELECT * FROM type::record("industry", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return models.Industry{}, fmt.Errorf("get industry: %w", db.WrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.Industry{}, fmt.Errorf("industry %s: %w", id, store.ErrNotFound)
	}
	return (*results)[0].Result[0].toModel(), nil
}

func (s *IndustryStore) List(ctx context.Context, owner string) ([]models.Industry, error) {
	ownerClause := ""
	vars := map[string]any{}
	if owner != "" {
		ownerClause = "WHERE owner = $owner"
		vars["owner"] = owner
	}
	sql := fmt.Sprintf(`SELECT * FROM industry %s ORDER BY name`, ownerClause)

	results, err := timedQuery[[]industryRecord](ctx, s.client, s.metrics, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list industries: %w", db.WrapQueryError(err))
	}
	industries := []models.Industry{}
	if results != nil && len(*results) > 0 {
		for _, rec := range (*results)[0].Result {
			industries = append(industries, rec.toModel())
		}
	}
	return industries, nil
}
