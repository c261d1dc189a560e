package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/port"
)

func TestChatRepo_SQLite(t *testing.T) {
	runChatRepoSuite(t, setupTestDB)
}

func TestChatRepo_Postgres(t *testing.T) {
	runChatRepoSuite(t, setupPostgresDB)
}

func turn(q, a string, at time.Time) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleUser, Content: q, Timestamp: at},
		{Role: domain.RoleAssistant, Content: a, Timestamp: at.Add(time.Second)},
	}
}

func runChatRepoSuite(t *testing.T, setup func(*testing.T) *DB) {
	t.Run("GetAbsent", func(t *testing.T) {
		repo := NewChatRepo(setup(t))

		s, err := repo.GetSession(context.Background(), "u1", widgetsURL)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("AppendPreservesOrder", func(t *testing.T) {
		ctx := context.Background()
		repo := NewChatRepo(setup(t))
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, repo.AppendMessages(ctx, "u1", widgetsURL, turn("q1", "a1", at)...))
		require.NoError(t, repo.AppendMessages(ctx, "u1", widgetsURL, turn("q2", "a2", at.Add(time.Minute))...))

		s, err := repo.GetSession(ctx, "u1", widgetsURL)
		require.NoError(t, err)
		require.NotNil(t, s)
		require.Len(t, s.Messages, 4)

		var contents []string
		for _, m := range s.Messages {
			contents = append(contents, m.Content)
		}
		assert.Equal(t, []string{"q1", "a1", "q2", "a2"}, contents)
		assert.Equal(t, domain.RoleUser, s.Messages[2].Role)
		assert.Equal(t, domain.RoleAssistant, s.Messages[3].Role)
		assert.True(t, at.Equal(s.Messages[0].Timestamp))
	})

	t.Run("SessionsAreIsolated", func(t *testing.T) {
		ctx := context.Background()
		repo := NewChatRepo(setup(t))
		now := time.Now().UTC()

		require.NoError(t, repo.AppendMessages(ctx, "u1", widgetsURL, turn("mine", "ok", now)...))
		require.NoError(t, repo.AppendMessages(ctx, "u2", widgetsURL, turn("theirs", "ok", now)...))
		require.NoError(t, repo.AppendMessages(ctx, "u1", "https://github.com/acme/gadgets", turn("other repo", "ok", now)...))

		s, err := repo.GetSession(ctx, "u1", widgetsURL)
		require.NoError(t, err)
		require.Len(t, s.Messages, 2)
		assert.Equal(t, "mine", s.Messages[0].Content)
	})

	t.Run("Clear", func(t *testing.T) {
		ctx := context.Background()
		repo := NewChatRepo(setup(t))

		assert.ErrorIs(t, repo.ClearSession(ctx, "u1", widgetsURL), port.ErrNotFound)

		require.NoError(t, repo.AppendMessages(ctx, "u1", widgetsURL, turn("q", "a", time.Now())...))
		require.NoError(t, repo.ClearSession(ctx, "u1", widgetsURL))

		s, err := repo.GetSession(ctx, "u1", widgetsURL)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Empty(t, s.Messages)

		require.NoError(t, repo.ClearSession(ctx, "u1", widgetsURL), "clearing an empty session succeeds")
	})
}
