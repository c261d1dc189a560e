package port

import (
	"context"

	"github.com/arturoeanton/gitsum/internal/domain"
)

// JobStore persists repository records keyed by (owner, name).
type JobStore interface {
	// Get returns the record, or nil and no error if the key is unknown.
	Get(ctx context.Context, owner, name string) (*domain.RepositoryRecord, error)

	// UpsertPending creates the record (pending) if absent or, if it is
	// completed or failed, resets it for a new run, clearing the error and
	// keeping the previous digest. In both cases the record leaves the call in
	// processing and claimed is true. A record already pending or processing is
	// returned unchanged with claimed false. The transition is atomic with
	// respect to concurrent callers: at most one caller claims a run.
	UpsertPending(ctx context.Context, owner, name, url string) (rec *domain.RepositoryRecord, claimed bool, err error)

	// Complete stores the digest, marks the record completed and stamps LastProcessedAt.
	Complete(ctx context.Context, owner, name string, digest *domain.Digest) error

	// Fail marks the record failed with message, leaving the digest untouched.
	Fail(ctx context.Context, owner, name, message string) error

	// FailInterrupted marks every pending or processing record failed with
	// message and returns how many were changed. Only safe when no run is in
	// flight, i.e. at process start on a single node.
	FailInterrupted(ctx context.Context, message string) (int, error)
}

// ChatStore persists chat sessions keyed by (userID, repositoryURL).
type ChatStore interface {
	// GetSession returns the session, or nil and no error if none exists.
	GetSession(ctx context.Context, userID, repositoryURL string) (*domain.ChatSession, error)

	// AppendMessages appends msgs to the session in one transaction,
	// creating the session if it does not exist yet.
	AppendMessages(ctx context.Context, userID, repositoryURL string, msgs ...domain.ChatMessage) error

	// ClearSession empties the session's messages. Returns ErrNotFound if no session exists.
	ClearSession(ctx context.Context, userID, repositoryURL string) error
}
