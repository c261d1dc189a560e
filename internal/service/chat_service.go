package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/port"
	"github.com/arturoeanton/gitsum/internal/prompt"
)

// DefaultModelTimeout bounds a single model call.
const DefaultModelTimeout = 2 * time.Minute

// ChatService answers questions about processed repositories, keeping one
// message history per (user, repository).
type ChatService struct {
	jobs    port.JobStore
	chats   port.ChatStore
	model   port.ModelProvider
	builder *prompt.Builder
	timeout time.Duration
	now     func() time.Time
}

// NewChatService creates a chat service. A zero timeout selects DefaultModelTimeout.
func NewChatService(jobs port.JobStore, chats port.ChatStore, model port.ModelProvider, builder *prompt.Builder, modelTimeout time.Duration) *ChatService {
	if builder == nil {
		builder = prompt.NewBuilder(prompt.DefaultHistoryLimit, 0, "")
	}
	if modelTimeout <= 0 {
		modelTimeout = DefaultModelTimeout
	}
	return &ChatService{
		jobs:    jobs,
		chats:   chats,
		model:   model,
		builder: builder,
		timeout: modelTimeout,
		now:     time.Now,
	}
}

// Send asks the model about the repository and records the turn. The session
// is only written once the model has replied, so a failed call leaves no half turn.
func (s *ChatService) Send(ctx context.Context, userID, repositoryURL, message string) (string, error) {
	key, canonical, err := s.resolve(userID, repositoryURL)
	if err != nil {
		return "", err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("%w: message is empty", port.ErrValidation)
	}

	rec, err := s.jobs.Get(ctx, key.Owner, key.Name)
	if err != nil {
		return "", fmt.Errorf("chat send: %w", err)
	}
	if rec == nil {
		return "", fmt.Errorf("%s has not been processed: %w", key, port.ErrRepositoryNotReady)
	}
	if rec.Status != domain.JobStatusCompleted || rec.Digest == nil {
		return "", fmt.Errorf("%s is %s: %w", key, rec.Status, port.ErrRepositoryNotReady)
	}

	session, err := s.chats.GetSession(ctx, userID, canonical)
	if err != nil {
		return "", fmt.Errorf("chat send: %w", err)
	}
	var history []domain.ChatMessage
	if session != nil {
		history = session.Messages
	}

	userMsg := domain.ChatMessage{Role: domain.RoleUser, Content: message, Timestamp: s.now()}

	systemPrompt, err := s.builder.Build(rec.Digest, history, message)
	if err != nil {
		return "", fmt.Errorf("%w: %w", port.ErrValidation, err)
	}

	mctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	slog.Info("chat request", "user_id", userID, "repo", key.String(), "model", s.model.ModelName(), "history", len(history))
	reply, err := s.model.Generate(mctx, systemPrompt)
	if err != nil {
		if errors.Is(mctx.Err(), context.DeadlineExceeded) && !errors.Is(err, port.ErrTimeout) {
			err = fmt.Errorf("%w: %w", port.ErrTimeout, err)
		}
		if !errors.Is(err, port.ErrModelUnavailable) {
			err = fmt.Errorf("%w: %w", port.ErrModelUnavailable, err)
		}
		slog.Error("model call failed", "user_id", userID, "repo", key.String(), "error", err)
		return "", err
	}

	assistantMsg := domain.ChatMessage{Role: domain.RoleAssistant, Content: reply, Timestamp: s.now()}
	if err := s.chats.AppendMessages(ctx, userID, canonical, userMsg, assistantMsg); err != nil {
		if !errors.Is(err, port.ErrPersistence) {
			err = fmt.Errorf("%w: %w", port.ErrPersistence, err)
		}
		return "", fmt.Errorf("save chat turn: %w", err)
	}

	return reply, nil
}

// History returns the session messages oldest first, or an empty list if the user never chatted.
func (s *ChatService) History(ctx context.Context, userID, repositoryURL string) ([]domain.ChatMessage, error) {
	_, canonical, err := s.resolve(userID, repositoryURL)
	if err != nil {
		return nil, err
	}

	session, err := s.chats.GetSession(ctx, userID, canonical)
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	if session == nil || session.Messages == nil {
		return []domain.ChatMessage{}, nil
	}
	return session.Messages, nil
}

// Clear empties the session. Returns port.ErrNotFound if there is none.
func (s *ChatService) Clear(ctx context.Context, userID, repositoryURL string) error {
	_, canonical, err := s.resolve(userID, repositoryURL)
	if err != nil {
		return err
	}
	if err := s.chats.ClearSession(ctx, userID, canonical); err != nil {
		return fmt.Errorf("clear chat history: %w", err)
	}
	slog.Info("chat history cleared", "user_id", userID, "repository_url", canonical)
	return nil
}

func (s *ChatService) resolve(userID, repositoryURL string) (domain.RepoKey, string, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.RepoKey{}, "", fmt.Errorf("%w: user id is empty", port.ErrValidation)
	}
	key, canonical, err := domain.ParseRepoURL(repositoryURL)
	if err != nil {
		return domain.RepoKey{}, "", fmt.Errorf("%w: %w", port.ErrValidation, err)
	}
	return key, canonical, nil
}
