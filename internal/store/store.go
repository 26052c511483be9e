// Package store defines the persistence interfaces consumed by the job,
// index and classification subsystems. Implementations live in the memory
// and surreal subpackages.
package store

import (
	"context"
	"errors"

	"github.com/tkohari/reviewkit/internal/models"
)

// Sentinel errors shared by all store implementations.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation, e.g. a second active job
	// for the same (owner, kind) or a duplicate industry name.
	ErrConflict = errors.New("conflict")
)

// JobStore persists jobs. The one-active-job invariant is checked through
// ActiveJob at creation time; stores do not enforce it themselves.
type JobStore interface {
	Create(ctx context.Context, job models.Job) error
	Get(ctx context.Context, id string) (models.Job, error)
	List(ctx context.Context, owner string) ([]models.Job, error)
	// Update applies the non-nil fields of upd and refreshes updated_at.
	Update(ctx context.Context, id string, upd models.JobUpdate) (models.Job, error)
	// ActiveJob returns the pending or processing job for (owner, kind),
	// or nil when none exists.
	ActiveJob(ctx context.Context, owner string, kind models.JobKind) (*models.Job, error)
	// MarkInterrupted forces every processing job to failed with the given
	// error message and returns how many jobs were swept.
	MarkInterrupted(ctx context.Context, msg string) (int, error)
}

// IndexStore persists index metadata keyed by (owner, target).
type IndexStore interface {
	// Get returns nil without error when no record exists; absence selects
	// the build path rather than signalling a failure.
	Get(ctx context.Context, owner, target string) (*models.IndexRecord, error)
	// Put inserts or updates the record for (owner, target).
	Put(ctx context.Context, rec models.IndexRecord) (models.IndexRecord, error)
	Delete(ctx context.Context, owner, target string) error
}

// IndustryStore persists classification targets and their category
// vocabulary.
type IndustryStore interface {
	Create(ctx context.Context, ind models.Industry) (models.Industry, error)
	Get(ctx context.Context, id string) (models.Industry, error)
	List(ctx context.Context, owner string) ([]models.Industry, error)
}
