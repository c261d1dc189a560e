package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/port"
)

// Compile-time interface satisfaction check.
var _ port.JobStore = (*JobRepo)(nil)

const repositoryColumns = `owner, name, url, digest, status, last_processed_at, error_message, created_at, updated_at`

// JobRepo is the SQL implementation of port.JobStore.
type JobRepo struct {
	db  *DB
	now func() time.Time
}

// NewJobRepo creates a JobRepo backed by db.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db, now: time.Now}
}

// Get returns the record for (owner, name), or nil, nil if it does not exist.
func (r *JobRepo) Get(ctx context.Context, owner, name string) (*domain.RepositoryRecord, error) {
	query := r.db.rebind(`SELECT ` + repositoryColumns + ` FROM repositories WHERE owner = ? AND name = ?`)

	rec, err := scanRecord(r.db.Reader.QueryRowContext(ctx, query, owner, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get repository "+owner+"/"+name, err)
	}
	return rec, nil
}

// UpsertPending claims a processing run for (owner, name). See port.JobStore.
func (r *JobRepo) UpsertPending(ctx context.Context, owner, name, url string) (*domain.RepositoryRecord, bool, error) {
	op := "claim repository " + owner + "/" + name
	now := r.db.timeArg(r.now())

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, persistErr(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	// A new key is inserted and claimed in the same transaction, so no other
	// caller ever observes it as pending.
	res, err := tx.ExecContext(ctx, r.db.rebind(`
		INSERT INTO repositories (owner, name, url, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', ?, ?)
		ON CONFLICT (owner, name) DO NOTHING`),
		owner, name, url, domain.JobStatusProcessing, now, now,
	)
	if err != nil {
		return nil, false, persistErr(op, err)
	}
	claimed, err := affected(res)
	if err != nil {
		return nil, false, persistErr(op, err)
	}

	if !claimed {
		res, err = tx.ExecContext(ctx, r.db.rebind(`
			UPDATE repositories
			SET status = ?, error_message = '', url = ?, updated_at = ?
			WHERE owner = ? AND name = ? AND status IN (?, ?)`),
			domain.JobStatusProcessing, url, now,
			owner, name, domain.JobStatusCompleted, domain.JobStatusFailed,
		)
		if err != nil {
			return nil, false, persistErr(op, err)
		}
		if claimed, err = affected(res); err != nil {
			return nil, false, persistErr(op, err)
		}
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		r.db.rebind(`SELECT `+repositoryColumns+` FROM repositories WHERE owner = ? AND name = ?`),
		owner, name,
	))
	if err != nil {
		return nil, false, persistErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, persistErr(op, err)
	}
	return rec, claimed, nil
}

// Complete stores digest and marks the record completed.
func (r *JobRepo) Complete(ctx context.Context, owner, name string, digest *domain.Digest) error {
	op := "complete repository " + owner + "/" + name
	if digest == nil {
		digest = &domain.Digest{}
	}
	payload, err := json.Marshal(digest)
	if err != nil {
		return fmt.Errorf("%s: marshal digest: %w", op, err)
	}

	now := r.db.timeArg(r.now())
	res, err := r.db.Writer.ExecContext(ctx, r.db.rebind(`
		UPDATE repositories
		SET status = ?, digest = ?, last_processed_at = ?, error_message = '', updated_at = ?
		WHERE owner = ? AND name = ?`),
		domain.JobStatusCompleted, string(payload), now, now, owner, name,
	)
	return r.checkUpdate(op, res, err)
}

// Fail marks the record failed with message. The previous digest is kept.
func (r *JobRepo) Fail(ctx context.Context, owner, name, message string) error {
	op := "fail repository " + owner + "/" + name
	if message == "" {
		message = "processing failed"
	}

	res, err := r.db.Writer.ExecContext(ctx, r.db.rebind(`
		UPDATE repositories
		SET status = ?, error_message = ?, updated_at = ?
		WHERE owner = ? AND name = ?`),
		domain.JobStatusFailed, message, r.db.timeArg(r.now()), owner, name,
	)
	return r.checkUpdate(op, res, err)
}

// FailInterrupted fails every record left pending or processing by a previous process.
func (r *JobRepo) FailInterrupted(ctx context.Context, message string) (int, error) {
	res, err := r.db.Writer.ExecContext(ctx, r.db.rebind(`
		UPDATE repositories
		SET status = ?, error_message = ?, updated_at = ?
		WHERE status IN (?, ?)`),
		domain.JobStatusFailed, message, r.db.timeArg(r.now()),
		domain.JobStatusPending, domain.JobStatusProcessing,
	)
	if err != nil {
		return 0, persistErr("fail interrupted runs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistErr("fail interrupted runs", err)
	}
	return int(n), nil
}

func (r *JobRepo) checkUpdate(op string, res sql.Result, err error) error {
	if err != nil {
		return persistErr(op, err)
	}
	ok, err := affected(res)
	if err != nil {
		return persistErr(op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, port.ErrNotFound)
	}
	return nil
}

func scanRecord(s scanner) (*domain.RepositoryRecord, error) {
	var (
		rec                  domain.RepositoryRecord
		digest               sql.NullString
		status               string
		lastProcessed        any
		createdAt, updatedAt any
	)

	err := s.Scan(
		&rec.Owner, &rec.Name, &rec.CanonicalURL, &digest, &status,
		&lastProcessed, &rec.ErrorMessage, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = domain.JobStatus(status)
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}

	if digest.Valid && digest.String != "" {
		var d domain.Digest
		if err := json.Unmarshal([]byte(digest.String), &d); err != nil {
			return nil, fmt.Errorf("decode digest: %w", err)
		}
		rec.Digest = &d
	}

	if lastProcessed != nil {
		t, err := parseTime(lastProcessed)
		if err != nil {
			return nil, fmt.Errorf("parse last_processed_at: %w", err)
		}
		rec.LastProcessedAt = &t
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &rec, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n > 0, nil
}

// persistErr tags a database failure as port.ErrPersistence while keeping the cause.
func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, port.ErrPersistence, err)
}
