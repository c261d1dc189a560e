package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/port"
)

// Compile-time interface satisfaction check.
var _ port.ChatStore = (*ChatRepo)(nil)

// ChatRepo is the SQL implementation of port.ChatStore.
type ChatRepo struct {
	db  *DB
	now func() time.Time
}

// NewChatRepo creates a ChatRepo backed by db.
func NewChatRepo(db *DB) *ChatRepo {
	return &ChatRepo{db: db, now: time.Now}
}

// GetSession returns the session with its messages in insertion order, or nil, nil if none exists.
func (r *ChatRepo) GetSession(ctx context.Context, userID, repositoryURL string) (*domain.ChatSession, error) {
	op := "get chat session"

	var (
		id                   int64
		createdAt, updatedAt any
	)
	err := r.db.Reader.QueryRowContext(ctx,
		r.db.rebind(`SELECT id, created_at, updated_at FROM chat_sessions WHERE user_id = ? AND repository_url = ?`),
		userID, repositoryURL,
	).Scan(&id, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr(op, err)
	}

	session := &domain.ChatSession{UserID: userID, RepositoryURL: repositoryURL}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, persistErr(op, err)
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, persistErr(op, err)
	}

	rows, err := r.db.Reader.QueryContext(ctx,
		r.db.rebind(`SELECT role, content, created_at FROM chat_messages WHERE session_id = ? ORDER BY id`),
		id,
	)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg  domain.ChatMessage
			role string
			ts   any
		)
		if err := rows.Scan(&role, &msg.Content, &ts); err != nil {
			return nil, persistErr(op, fmt.Errorf("scan message: %w", err))
		}
		msg.Role = domain.Role(role)
		if msg.Timestamp, err = parseTime(ts); err != nil {
			return nil, persistErr(op, err)
		}
		session.Messages = append(session.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, fmt.Errorf("iterate messages: %w", err))
	}

	return session, nil
}

// AppendMessages appends msgs to the session in a single transaction, creating it if needed.
func (r *ChatRepo) AppendMessages(ctx context.Context, userID, repositoryURL string, msgs ...domain.ChatMessage) error {
	op := "append chat messages"
	now := r.now()

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return persistErr(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, r.db.rebind(`
		INSERT INTO chat_sessions (user_id, repository_url, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, repository_url) DO UPDATE SET updated_at = excluded.updated_at`),
		userID, repositoryURL, r.db.timeArg(now), r.db.timeArg(now),
	)
	if err != nil {
		return persistErr(op, err)
	}

	id, err := r.sessionID(ctx, tx, userID, repositoryURL)
	if err != nil {
		return persistErr(op, err)
	}

	insert := r.db.rebind(`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`)
	for _, m := range msgs {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = now
		}
		if _, err := tx.ExecContext(ctx, insert, id, string(m.Role), m.Content, r.db.timeArg(ts)); err != nil {
			return persistErr(op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr(op, err)
	}
	return nil
}

// ClearSession deletes every message of the session. The session itself is kept.
func (r *ChatRepo) ClearSession(ctx context.Context, userID, repositoryURL string) error {
	op := "clear chat session"

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return persistErr(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	id, err := r.sessionID(ctx, tx, userID, repositoryURL)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, port.ErrNotFound)
	}
	if err != nil {
		return persistErr(op, err)
	}

	if _, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM chat_messages WHERE session_id = ?`), id); err != nil {
		return persistErr(op, err)
	}
	if _, err := tx.ExecContext(ctx,
		r.db.rebind(`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`),
		r.db.timeArg(r.now()), id,
	); err != nil {
		return persistErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return persistErr(op, err)
	}
	return nil
}

func (r *ChatRepo) sessionID(ctx context.Context, tx *sql.Tx, userID, repositoryURL string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		r.db.rebind(`SELECT id FROM chat_sessions WHERE user_id = ? AND repository_url = ?`),
		userID, repositoryURL,
	).Scan(&id)
	return id, err
}
