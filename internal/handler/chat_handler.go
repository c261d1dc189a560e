package handler

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/middleware"
)

// ChatService is the chat surface used by the HTTP and MCP layers.
type ChatService interface {
	Send(ctx context.Context, userID, repositoryURL, message string) (string, error)
	History(ctx context.Context, userID, repositoryURL string) ([]domain.ChatMessage, error)
	Clear(ctx context.Context, userID, repositoryURL string) error
}

// ChatHandler handles per-repository chat.
type ChatHandler struct {
	chat ChatService
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Register sets up chat routes.
func (h *ChatHandler) Register(router fiber.Router) {
	chat := router.Group("/chat")
	chat.Post("/send", h.Send)
	chat.Get("/history", h.History)
	chat.Delete("/history", h.Clear)
}

// Send asks a question about a processed repository.
func (h *ChatHandler) Send(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var body struct {
		RepositoryURL string `json:"repositoryUrl"`
		Message       string `json:"message"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	reply, err := h.chat.Send(c.Context(), uc.UserID, body.RepositoryURL, body.Message)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"message": reply})
}

// History returns the caller's messages for ?repositoryUrl=.
func (h *ChatHandler) History(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	msgs, err := h.chat.History(c.Context(), uc.UserID, c.Query("repositoryUrl"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// Clear empties the caller's session for ?repositoryUrl=.
func (h *ChatHandler) Clear(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	if err := h.chat.Clear(c.Context(), uc.UserID, c.Query("repositoryUrl")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"cleared": true})
}
