package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/port"
)

// memJobStore is an in-memory port.JobStore with the same claim semantics as the SQL store.
type memJobStore struct {
	mu      sync.Mutex
	records map[domain.RepoKey]*domain.RepositoryRecord
	now     func() time.Time
	failErr error

	completePanic bool
}

func newMemJobStore() *memJobStore {
	return &memJobStore{records: map[domain.RepoKey]*domain.RepositoryRecord{}, now: time.Now}
}

func (m *memJobStore) Get(_ context.Context, owner, name string) (*domain.RepositoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[domain.RepoKey{Owner: owner, Name: name}]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memJobStore) UpsertPending(_ context.Context, owner, name, url string) (*domain.RepositoryRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.RepoKey{Owner: owner, Name: name}
	rec, ok := m.records[key]
	claimed := false
	switch {
	case !ok:
		rec = &domain.RepositoryRecord{Owner: owner, Name: name, CanonicalURL: url, Status: domain.JobStatusPending, CreatedAt: m.now()}
		m.records[key] = rec
		rec.Status = domain.JobStatusProcessing
		claimed = true
	case rec.Status.Terminal():
		rec.Status = domain.JobStatusProcessing
		rec.ErrorMessage = ""
		claimed = true
	}
	cp := *rec
	return &cp, claimed, nil
}

func (m *memJobStore) Complete(_ context.Context, owner, name string, d *domain.Digest) error {
	if m.completePanic {
		panic("store exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[domain.RepoKey{Owner: owner, Name: name}]
	if !ok {
		return port.ErrNotFound
	}
	now := m.now()
	rec.Digest, rec.Status, rec.LastProcessedAt, rec.ErrorMessage = d, domain.JobStatusCompleted, &now, ""
	return nil
}

func (m *memJobStore) Fail(_ context.Context, owner, name, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	rec, ok := m.records[domain.RepoKey{Owner: owner, Name: name}]
	if !ok {
		return port.ErrNotFound
	}
	rec.Status, rec.ErrorMessage = domain.JobStatusFailed, msg
	return nil
}

func (m *memJobStore) FailInterrupted(_ context.Context, msg string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if !rec.Status.Terminal() {
			rec.Status, rec.ErrorMessage = domain.JobStatusFailed, msg
			n++
		}
	}
	return n, nil
}

func (m *memJobStore) put(rec domain.RepositoryRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key()] = &rec
}

// memChatStore is an in-memory port.ChatStore.
type memChatStore struct {
	mu        sync.Mutex
	sessions  map[string]*domain.ChatSession
	appendErr error
}

func newMemChatStore() *memChatStore {
	return &memChatStore{sessions: map[string]*domain.ChatSession{}}
}

func chatKey(userID, url string) string { return userID + "|" + url }

func (m *memChatStore) GetSession(_ context.Context, userID, url string) (*domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatKey(userID, url)]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.Messages = append([]domain.ChatMessage(nil), s.Messages...)
	return &cp, nil
}

func (m *memChatStore) AppendMessages(_ context.Context, userID, url string, msgs ...domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	s, ok := m.sessions[chatKey(userID, url)]
	if !ok {
		s = &domain.ChatSession{UserID: userID, RepositoryURL: url}
		m.sessions[chatKey(userID, url)] = s
	}
	s.Messages = append(s.Messages, msgs...)
	return nil
}

func (m *memChatStore) ClearSession(_ context.Context, userID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatKey(userID, url)]
	if !ok {
		return port.ErrNotFound
	}
	s.Messages = nil
	return nil
}

// fakeVCS creates dest with a marker file, optionally blocking until released.
type fakeVCS struct {
	calls   atomic.Int32
	gate    chan struct{}
	err     error
	waitCtx bool
}

func (f *fakeVCS) ShallowClone(ctx context.Context, url, dest string) error {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.waitCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, "README.md"), []byte(url), 0o644)
}

// fakeAnalyzer returns report for any directory that exists.
type fakeAnalyzer struct {
	calls  atomic.Int32
	report domain.RawReport
	err    error
	panic  bool
}

func (f *fakeAnalyzer) Analyze(_ context.Context, dir string) (domain.RawReport, error) {
	f.calls.Add(1)
	if f.panic {
		panic("analyzer exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrExternalTool, err)
	}
	return f.report, nil
}

// fakeModel records prompts and answers with reply or err.
type fakeModel struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) string
	err     error
	block   bool
}

func (f *fakeModel) ModelName() string { return "fake" }

func (f *fakeModel) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	if f.reply != nil {
		return f.reply(prompt), nil
	}
	return "ok", nil
}

func (f *fakeModel) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

var errBoom = errors.New("boom")

func sampleReport() domain.RawReport {
	return domain.RawReport{
		"summary":      "A widget service.",
		"languages":    map[string]any{"Go": 100.0},
		"dependencies": map[string]any{"github.com/gofiber/fiber/v3": "v3.1.0"},
		"fileStructure": map[string]any{
			"cmd": map[string]any{"server": map[string]any{"main.go": "file"}},
		},
		"documentation": map[string]any{"readme": "# Widgets"},
	}
}
