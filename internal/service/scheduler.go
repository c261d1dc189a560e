package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/arturoeanton/gitsum/internal/digest"
	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/port"
)

// Scheduler defaults.
const (
	DefaultFreshnessWindow   = 24 * time.Hour
	DefaultToolTimeout       = 10 * time.Minute
	DefaultMaxConcurrentRuns = 4
)

// SchedulerConfig tunes the cache policy and run limits.
type SchedulerConfig struct {
	FreshnessWindow   time.Duration
	ToolTimeout       time.Duration
	MaxConcurrentRuns int
}

// ProcessResult is returned by RequestProcessing. Digest is only set on a cache hit.
type ProcessResult struct {
	Cached          bool             `json:"cached"`
	Status          domain.JobStatus `json:"status"`
	LastProcessedAt *time.Time       `json:"lastProcessedAt,omitempty"`
	Digest          *domain.Digest   `json:"data,omitempty"`
}

// Scheduler drives the repository processing state machine. Runs are detached
// from the requesting call and report their outcome only through the JobStore.
type Scheduler struct {
	store      port.JobStore
	vcs        port.VCSProvider
	analyzer   port.Analyzer
	workspaces port.WorkspaceProvider
	compressor *digest.Compressor

	freshness   time.Duration
	toolTimeout time.Duration
	runs        *semaphore.Weighted
	wg          sync.WaitGroup
	now         func() time.Time
}

// NewScheduler creates a scheduler. Zero config values select the defaults.
func NewScheduler(
	store port.JobStore,
	vcs port.VCSProvider,
	analyzer port.Analyzer,
	workspaces port.WorkspaceProvider,
	compressor *digest.Compressor,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}
	if compressor == nil {
		compressor = digest.NewCompressor(digest.DefaultTreeDepth)
	}
	return &Scheduler{
		store:       store,
		vcs:         vcs,
		analyzer:    analyzer,
		workspaces:  workspaces,
		compressor:  compressor,
		freshness:   cfg.FreshnessWindow,
		toolTimeout: cfg.ToolTimeout,
		runs:        semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns)),
		now:         time.Now,
	}
}

// ProcessURL parses a repository URL and requests processing of its canonical form.
func (s *Scheduler) ProcessURL(ctx context.Context, rawURL string) (*ProcessResult, error) {
	key, canonical, err := domain.ParseRepoURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", port.ErrValidation, err)
	}
	return s.RequestProcessing(ctx, key.Owner, key.Name, canonical)
}

// RequestProcessing serves a fresh completed digest from the store or starts a
// background run. A record already pending or processing is reported as is and
// no second run is started.
func (s *Scheduler) RequestProcessing(ctx context.Context, owner, name, url string) (*ProcessResult, error) {
	if err := domain.ValidateKey(domain.RepoKey{Owner: owner, Name: name}); err != nil {
		return nil, fmt.Errorf("%w: %w", port.ErrValidation, err)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: repository url is empty", port.ErrValidation)
	}

	rec, err := s.store.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("request processing: %w", err)
	}
	if rec != nil && rec.FreshAt(s.now(), s.freshness) {
		slog.Debug("serving cached digest", "owner", owner, "name", name)
		return &ProcessResult{
			Cached:          true,
			Status:          rec.Status,
			LastProcessedAt: rec.LastProcessedAt,
			Digest:          rec.Digest,
		}, nil
	}

	rec, claimed, err := s.store.UpsertPending(ctx, owner, name, url)
	if err != nil {
		return nil, fmt.Errorf("request processing: %w", err)
	}
	result := &ProcessResult{Status: rec.Status, LastProcessedAt: rec.LastProcessedAt}
	if !claimed {
		slog.Info("run already in flight", "owner", owner, "name", name, "status", rec.Status)
		return result, nil
	}

	runID := uuid.NewString()
	slog.Info("repository run accepted", "run_id", runID, "owner", owner, "name", name, "url", url)

	s.wg.Add(1)
	go s.run(runID, owner, name, url)

	return result, nil
}

// GetStatus returns the status projection of a record.
func (s *Scheduler) GetStatus(ctx context.Context, owner, name string) (domain.StatusView, error) {
	rec, err := s.lookup(ctx, owner, name)
	if err != nil {
		return domain.StatusView{}, err
	}
	return rec.View(), nil
}

// Digest returns the completed digest of a record.
func (s *Scheduler) Digest(ctx context.Context, owner, name string) (*domain.Digest, error) {
	rec, err := s.lookup(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	switch {
	case rec.Status == domain.JobStatusCompleted && rec.Digest != nil:
		return rec.Digest, nil
	case rec.Status == domain.JobStatusFailed:
		return nil, fmt.Errorf("%s/%s: %w: last run failed: %s", owner, name, port.ErrRepositoryNotReady, rec.ErrorMessage)
	default:
		return nil, fmt.Errorf("%s/%s is %s: %w", owner, name, rec.Status, port.ErrRepositoryNotReady)
	}
}

// RecoverInterrupted fails records a previous process left pending or
// processing, so they can be retried. Call it once at startup, before any
// request is accepted.
func (s *Scheduler) RecoverInterrupted(ctx context.Context) (int, error) {
	n, err := s.store.FailInterrupted(ctx, "Internal: run interrupted by a restart")
	if err != nil {
		return 0, fmt.Errorf("recover interrupted runs: %w", err)
	}
	if n > 0 {
		slog.Warn("failed interrupted runs", "count", n)
	}
	return n, nil
}

// Wait blocks until every accepted run has finished or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) lookup(ctx context.Context, owner, name string) (*domain.RepositoryRecord, error) {
	if err := domain.ValidateKey(domain.RepoKey{Owner: owner, Name: name}); err != nil {
		return nil, fmt.Errorf("%w: %w", port.ErrValidation, err)
	}
	rec, err := s.store.Get(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("repository %s/%s: %w", owner, name, port.ErrNotFound)
	}
	return rec, nil
}

// run executes one claimed job and records its terminal state. It is not
// cancellable; the only way out is completed or failed, panics included.
func (s *Scheduler) run(runID, owner, name, url string) {
	defer s.wg.Done()

	ctx := context.Background()
	log := slog.With("run_id", runID, "owner", owner, "name", name)
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, log, owner, name, fmt.Errorf("run panicked: %v", r))
		}
	}()

	if err := s.runs.Acquire(ctx, 1); err != nil {
		s.fail(ctx, log, owner, name, err)
		return
	}
	defer s.runs.Release(1)

	start := s.now()
	log.Info("repository run started")

	d, err := s.execute(ctx, log, owner, name, url)
	if err != nil {
		s.fail(ctx, log, owner, name, err)
		return
	}

	if err := s.store.Complete(ctx, owner, name, d); err != nil {
		s.fail(ctx, log, owner, name, err)
		return
	}

	log.Info("repository run complete", "duration", s.now().Sub(start).String())
}

// execute runs clone, analysis and compression inside a workspace that is
// released on every exit path.
func (s *Scheduler) execute(ctx context.Context, log *slog.Logger, owner, name, url string) (*domain.Digest, error) {
	ws, err := s.workspaces.Acquire(ctx, owner+"-"+name)
	if err != nil {
		return nil, fmt.Errorf("acquire workspace: %w", err)
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil {
			log.Warn("workspace release failed", "path", ws.Path(), "error", rerr)
		}
	}()
	src := filepath.Join(ws.Path(), "src")

	cloneCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	defer cancel()
	log.Info("cloning repository", "url", url)
	if err := s.vcs.ShallowClone(cloneCtx, url, src); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	analyzeCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	defer cancel()
	log.Info("analyzing repository")
	report, err := s.analyzer.Analyze(analyzeCtx, src)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	return s.compressor.Compress(report), nil
}

func (s *Scheduler) fail(ctx context.Context, log *slog.Logger, owner, name string, cause error) {
	kind := port.Kind(cause)
	log.Error("repository run failed", "kind", kind, "error", cause)

	msg := fmt.Sprintf("%s: %v", kind, cause)
	if err := s.store.Fail(ctx, owner, name, msg); err != nil {
		log.Error("record run failure", "error", errors.Join(cause, err))
	}
}
