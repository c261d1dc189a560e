package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/port"
	"github.com/arturoeanton/gitsum/internal/service"
)

// RepositoryService is the scheduler surface used by the HTTP and MCP layers.
type RepositoryService interface {
	ProcessURL(ctx context.Context, rawURL string) (*service.ProcessResult, error)
	GetStatus(ctx context.Context, owner, name string) (domain.StatusView, error)
	Digest(ctx context.Context, owner, name string) (*domain.Digest, error)
}

// RepoHandler handles repository processing and digest retrieval.
type RepoHandler struct {
	repos RepositoryService
}

// NewRepoHandler creates a new repo handler.
func NewRepoHandler(repos RepositoryService) *RepoHandler {
	return &RepoHandler{repos: repos}
}

// Register sets up repository routes.
func (h *RepoHandler) Register(router fiber.Router) {
	repo := router.Group("/repository")
	repo.Post("/process", h.Process)
	repo.Get("/:owner/:name", h.GetDigest)
}

// Process starts (or serves from cache) processing of a repository URL.
func (h *RepoHandler) Process(c fiber.Ctx) error {
	var body struct {
		RepoURL string `json:"repoUrl"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	res, err := h.repos.ProcessURL(c.Context(), body.RepoURL)
	if err != nil {
		return respondError(c, err)
	}

	if res.Cached {
		return c.JSON(res)
	}
	return c.Status(fiber.StatusAccepted).JSON(res)
}

// GetDigest returns the completed digest. While a run is pending or in
// flight it answers 202 with the current status.
func (h *RepoHandler) GetDigest(c fiber.Ctx) error {
	owner, name := c.Params("owner"), c.Params("name")

	d, err := h.repos.Digest(c.Context(), owner, name)
	if errors.Is(err, port.ErrRepositoryNotReady) {
		st, serr := h.repos.GetStatus(c.Context(), owner, name)
		if serr == nil && !st.Status.Terminal() {
			return c.Status(fiber.StatusAccepted).JSON(st)
		}
	}
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"owner": owner,
		"name":  name,
		"data":  d,
	})
}
