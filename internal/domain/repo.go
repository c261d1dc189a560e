package domain

import (
	"fmt"
	"time"
)

// JobStatus is the processing state of a repository record.
type JobStatus string

// JobStatus constants.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether a run has finished in this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// RepoKey identifies a repository record.
type RepoKey struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// String returns "owner/name".
func (k RepoKey) String() string {
	return fmt.Sprintf("%s/%s", k.Owner, k.Name)
}

// RepositoryRecord is the persisted processing state of one repository.
// A completed record always carries a digest and LastProcessedAt; a failed
// record always carries ErrorMessage. A failed refresh keeps the previous digest.
type RepositoryRecord struct {
	Owner           string     `json:"owner"             db:"owner"`
	Name            string     `json:"name"              db:"name"`
	CanonicalURL    string     `json:"url"               db:"url"`
	Digest          *Digest    `json:"digest,omitempty"  db:"digest"`
	Status          JobStatus  `json:"status"            db:"status"`
	LastProcessedAt *time.Time `json:"last_processed_at" db:"last_processed_at"`
	ErrorMessage    string     `json:"error,omitempty"   db:"error_message"`
	CreatedAt       time.Time  `json:"created_at"        db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"        db:"updated_at"`
}

// Key returns the record's identity.
func (r *RepositoryRecord) Key() RepoKey {
	return RepoKey{Owner: r.Owner, Name: r.Name}
}

// FreshAt reports whether the record holds a completed digest younger than window at now.
func (r *RepositoryRecord) FreshAt(now time.Time, window time.Duration) bool {
	if r.Status != JobStatusCompleted || r.LastProcessedAt == nil || r.Digest == nil {
		return false
	}
	return now.Sub(*r.LastProcessedAt) < window
}

// StatusView is the status-query projection of a record.
type StatusView struct {
	Status          JobStatus  `json:"status"`
	LastProcessedAt *time.Time `json:"lastProcessedAt"`
	ErrorMessage    string     `json:"error,omitempty"`
}

// View projects the record for status queries.
func (r *RepositoryRecord) View() StatusView {
	return StatusView{
		Status:          r.Status,
		LastProcessedAt: r.LastProcessedAt,
		ErrorMessage:    r.ErrorMessage,
	}
}
