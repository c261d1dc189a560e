package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/gitsum/internal/digest"
	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/port"
	"github.com/arturoeanton/gitsum/internal/prompt"
)

type chatFixture struct {
	jobs  *memJobStore
	chats *memChatStore
	model *fakeModel
	svc   *ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := &chatFixture{jobs: newMemJobStore(), chats: newMemChatStore(), model: &fakeModel{}}
	f.svc = NewChatService(f.jobs, f.chats, f.model, prompt.NewBuilder(10, 0, ""), time.Second)
	return f
}

func (f *chatFixture) completed() {
	now := time.Now()
	f.jobs.put(domain.RepositoryRecord{
		Owner: "acme", Name: "widgets", CanonicalURL: widgetsURL,
		Status: domain.JobStatusCompleted, LastProcessedAt: &now,
		Digest: digest.Compress(sampleReport()),
	})
}

func TestSend_AppendsTurn(t *testing.T) {
	f := newChatFixture(t)
	f.completed()
	f.model.reply = func(string) string { return "It is written in Go." }
	ctx := context.Background()

	reply, err := f.svc.Send(ctx, "user1", widgetsURL+".git", "  what language is this?  ")
	require.NoError(t, err)
	assert.Equal(t, "It is written in Go.", reply)

	p := f.model.lastPrompt()
	assert.Contains(t, p, "Languages:\nGo: 100%")
	assert.Contains(t, p, "User: what language is this?")
	assert.NotContains(t, p, "Previous Conversation:", "the current message is not folded into history")

	history, err := f.svc.History(ctx, "user1", widgetsURL)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, "what language is this?", history[0].Content)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
	assert.Equal(t, "It is written in Go.", history[1].Content)
}

func TestSend_UsesLastTenMessages(t *testing.T) {
	f := newChatFixture(t)
	f.completed()
	ctx := context.Background()

	var prior []domain.ChatMessage
	for i := 0; i < 15; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		prior = append(prior, domain.ChatMessage{Role: role, Content: fmt.Sprintf("old-%02d", i)})
	}
	require.NoError(t, f.chats.AppendMessages(ctx, "user1", widgetsURL, prior...))

	_, err := f.svc.Send(ctx, "user1", widgetsURL, "next")
	require.NoError(t, err)

	p := f.model.lastPrompt()
	for i := 0; i < 5; i++ {
		assert.NotContains(t, p, fmt.Sprintf("old-%02d", i))
	}
	assert.Less(t, strings.Index(p, "old-05"), strings.Index(p, "old-14"))
	assert.Less(t, strings.Index(p, "old-14"), strings.Index(p, "User: next"))
}

func TestSend_RepositoryNotReady(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "user1", widgetsURL, "hi")
	assert.ErrorIs(t, err, port.ErrRepositoryNotReady)

	for _, status := range []domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing, domain.JobStatusFailed} {
		f.jobs.put(domain.RepositoryRecord{Owner: "acme", Name: "widgets", Status: status, Digest: &domain.Digest{Summary: "old"}})
		_, err := f.svc.Send(ctx, "user1", widgetsURL, "hi")
		assert.ErrorIs(t, err, port.ErrRepositoryNotReady, string(status))
	}
	assert.Empty(t, f.model.prompts)
}

func TestSend_ModelFailureLeavesSessionUntouched(t *testing.T) {
	f := newChatFixture(t)
	f.completed()
	f.model.err = errBoom
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "user1", widgetsURL, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrModelUnavailable)
	assert.Equal(t, "ModelUnavailable", port.Kind(err))

	history, err := f.svc.History(ctx, "user1", widgetsURL)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSend_ModelTimeout(t *testing.T) {
	f := newChatFixture(t)
	f.completed()
	f.model.block = true
	f.svc.timeout = 20 * time.Millisecond

	_, err := f.svc.Send(context.Background(), "user1", widgetsURL, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrModelUnavailable)
	assert.ErrorIs(t, err, port.ErrTimeout)
}

func TestSend_PersistenceFailure(t *testing.T) {
	f := newChatFixture(t)
	f.completed()
	f.chats.appendErr = errBoom

	_, err := f.svc.Send(context.Background(), "user1", widgetsURL, "hi")
	assert.ErrorIs(t, err, port.ErrPersistence)
}

func TestSend_Validation(t *testing.T) {
	f := newChatFixture(t)
	f.completed()
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "user1", widgetsURL, " \n ")
	assert.ErrorIs(t, err, port.ErrValidation)
	_, err = f.svc.Send(ctx, "", widgetsURL, "hi")
	assert.ErrorIs(t, err, port.ErrValidation)
	_, err = f.svc.Send(ctx, "user1", "https://github.com/acme", "hi")
	assert.ErrorIs(t, err, port.ErrValidation)
	assert.Empty(t, f.model.prompts)
}

func TestHistoryAndClear(t *testing.T) {
	f := newChatFixture(t)
	f.completed()
	ctx := context.Background()

	history, err := f.svc.History(ctx, "user1", widgetsURL)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	assert.ErrorIs(t, f.svc.Clear(ctx, "user1", widgetsURL), port.ErrNotFound)

	_, err = f.svc.Send(ctx, "user1", widgetsURL, "hi")
	require.NoError(t, err)
	require.NoError(t, f.svc.Clear(ctx, "user1", "git@github.com:acme/widgets.git"))

	history, err = f.svc.History(ctx, "user1", widgetsURL)
	require.NoError(t, err)
	assert.Empty(t, history)
}
