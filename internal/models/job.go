// Package models defines data structures for the reviewkit classification service.
package models

import "time"

// JobKind identifies which engine a job drives.
type JobKind string

const (
	JobKindIndexBuild     JobKind = "index-build"
	JobKindClassification JobKind = "classification"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether a job in this status can never change again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the status counts against the one-active-job
// invariant for an (owner, kind) pair.
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// IndexMode selects how an index job treats a pre-existing index.
type IndexMode string

const (
	// IndexModeAdd appends new documents to the existing index.
	IndexModeAdd IndexMode = "add"
	// IndexModeReplace rebuilds the index from scratch and swaps it in.
	IndexModeReplace IndexMode = "replace"
)

// ParseIndexMode validates a mode string from an external caller.
func ParseIndexMode(s string) (IndexMode, bool) {
	switch IndexMode(s) {
	case IndexModeAdd:
		return IndexModeAdd, true
	case IndexModeReplace:
		return IndexModeReplace, true
	}
	return "", false
}

// Job is the persisted record of one asynchronous unit of work.
type Job struct {
	ID        string    `json:"id"`
	Kind      JobKind   `json:"kind"`
	Owner     string    `json:"owner"`
	Target    string    `json:"target"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Error     *string   `json:"error,omitempty"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	// Artifact is set on completed classification jobs and points at the
	// exported result workbook.
	Artifact  *string   `json:"artifact,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobUpdate carries the mutable fields of a status transition. Nil fields
// are left untouched by the store.
type JobUpdate struct {
	Status    JobStatus
	Progress  *int
	Error     *string
	Processed *int
	Total     *int
	Artifact  *string
}
