package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/port"
)

const widgetsURL = "https://github.com/acme/widgets"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestJobRepo_SQLite(t *testing.T) {
	runJobRepoSuite(t, setupTestDB)
}

func TestJobRepo_Postgres(t *testing.T) {
	runJobRepoSuite(t, setupPostgresDB)
}

func runJobRepoSuite(t *testing.T, setup func(*testing.T) *DB) {
	t.Run("GetAbsent", func(t *testing.T) {
		repo := NewJobRepo(setup(t))

		rec, err := repo.Get(context.Background(), "acme", "widgets")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("Lifecycle", func(t *testing.T) {
		ctx := context.Background()
		repo := NewJobRepo(setup(t))
		start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		repo.now = fixedClock(start)

		rec, claimed, err := repo.UpsertPending(ctx, "acme", "widgets", widgetsURL)
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Equal(t, domain.JobStatusProcessing, rec.Status)
		assert.Equal(t, widgetsURL, rec.CanonicalURL)
		assert.Nil(t, rec.Digest)
		assert.Nil(t, rec.LastProcessedAt)

		rec, claimed, err = repo.UpsertPending(ctx, "acme", "widgets", widgetsURL)
		require.NoError(t, err)
		assert.False(t, claimed, "a processing record must not be claimed twice")
		assert.Equal(t, domain.JobStatusProcessing, rec.Status)

		done := start.Add(time.Minute)
		repo.now = fixedClock(done)
		digest := &domain.Digest{
			Summary:         "widgets",
			Languages:       map[string]float64{"Go": 100},
			DependencyNames: []string{"fiber"},
			FileTree:        domain.FileTree{"cmd": nil},
			KeyFiles:        []domain.KeyFile{{Path: "go.mod", Content: "module w", Importance: domain.ImportanceHigh}},
		}
		require.NoError(t, repo.Complete(ctx, "acme", "widgets", digest))

		rec, err = repo.Get(ctx, "acme", "widgets")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, domain.JobStatusCompleted, rec.Status)
		assert.Equal(t, digest, rec.Digest)
		require.NotNil(t, rec.LastProcessedAt)
		assert.True(t, done.Equal(*rec.LastProcessedAt))
		assert.True(t, start.Equal(rec.CreatedAt))

		rec, claimed, err = repo.UpsertPending(ctx, "acme", "widgets", widgetsURL)
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Equal(t, domain.JobStatusProcessing, rec.Status)
		assert.Equal(t, digest, rec.Digest, "refresh keeps the previous digest")

		require.NoError(t, repo.Fail(ctx, "acme", "widgets", "ExternalToolFailure: clone failed"))
		rec, err = repo.Get(ctx, "acme", "widgets")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, rec.Status)
		assert.Equal(t, "ExternalToolFailure: clone failed", rec.ErrorMessage)
		assert.Equal(t, digest, rec.Digest, "a failed refresh keeps the previous digest")
		assert.True(t, done.Equal(*rec.LastProcessedAt))

		rec, claimed, err = repo.UpsertPending(ctx, "acme", "widgets", widgetsURL)
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Empty(t, rec.ErrorMessage, "retry clears the previous error")
	})

	t.Run("UpdateAbsent", func(t *testing.T) {
		ctx := context.Background()
		repo := NewJobRepo(setup(t))

		assert.ErrorIs(t, repo.Complete(ctx, "nobody", "nothing", &domain.Digest{}), port.ErrNotFound)
		assert.ErrorIs(t, repo.Fail(ctx, "nobody", "nothing", "boom"), port.ErrNotFound)
	})

	t.Run("FailInterrupted", func(t *testing.T) {
		ctx := context.Background()
		repo := NewJobRepo(setup(t))

		_, _, err := repo.UpsertPending(ctx, "acme", "stuck", "https://github.com/acme/stuck")
		require.NoError(t, err)
		_, _, err = repo.UpsertPending(ctx, "acme", "done", "https://github.com/acme/done")
		require.NoError(t, err)
		require.NoError(t, repo.Complete(ctx, "acme", "done", &domain.Digest{Summary: "d"}))

		n, err := repo.FailInterrupted(ctx, "Internal: interrupted by restart")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		rec, err := repo.Get(ctx, "acme", "stuck")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, rec.Status)
		assert.Equal(t, "Internal: interrupted by restart", rec.ErrorMessage)

		rec, err = repo.Get(ctx, "acme", "done")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, rec.Status)
	})

	t.Run("ConcurrentClaimsAreSingleFlight", func(t *testing.T) {
		repo := NewJobRepo(setup(t))

		const callers = 16
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claims  int
			callErr error
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, claimed, err := repo.UpsertPending(context.Background(), "acme", "widgets", widgetsURL)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					callErr = err
				}
				if claimed {
					claims++
				}
			}()
		}
		wg.Wait()

		require.NoError(t, callErr)
		assert.Equal(t, 1, claims)
	})
}
