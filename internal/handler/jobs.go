package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/gitsum/internal/domain"
)

// Stream defaults.
const (
	DefaultPollInterval      = time.Second
	DefaultStreamTimeout     = 15 * time.Minute
	DefaultKeepaliveInterval = 15 * time.Second
)

const sseKeepalive = ": keepalive\n\n"

// StatusHandler serves repository status queries, including an SSE stream
// that polls the job store until the record reaches a terminal status.
type StatusHandler struct {
	repos             RepositoryService
	pollInterval      time.Duration
	streamTimeout     time.Duration
	keepaliveInterval time.Duration
}

// NewStatusHandler creates a new status handler. Zero durations select the defaults.
func NewStatusHandler(repos RepositoryService, pollInterval, streamTimeout time.Duration) *StatusHandler {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if streamTimeout <= 0 {
		streamTimeout = DefaultStreamTimeout
	}
	return &StatusHandler{
		repos:             repos,
		pollInterval:      pollInterval,
		streamTimeout:     streamTimeout,
		keepaliveInterval: DefaultKeepaliveInterval,
	}
}

// Register sets up status routes.
func (h *StatusHandler) Register(router fiber.Router) {
	status := router.Group("/repository/status")
	status.Get("/:owner/:name", h.GetStatus)
	status.Get("/:owner/:name/stream", h.StreamSSE)
}

// GetStatus returns {status, lastProcessedAt, error} for a repository.
func (h *StatusHandler) GetStatus(c fiber.Ctx) error {
	st, err := h.repos.GetStatus(c.Context(), c.Params("owner"), c.Params("name"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(st)
}

// StreamSSE streams status changes via Server-Sent Events. The final event
// is named after the terminal status.
func (h *StatusHandler) StreamSSE(c fiber.Ctx) error {
	owner, name := c.Params("owner"), c.Params("name")

	st, err := h.repos.GetStatus(c.Context(), owner, name)
	if err != nil {
		return respondError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	// If already terminal, just return the final status
	if st.Status.Terminal() {
		return c.SendString(sseEvent(st))
	}

	return c.SendStreamWriter(func(w *bufio.Writer) {
		h.stream(w, owner, name, st)
	})
}

// stream writes status changes until a terminal status, the stream timeout or
// a failed flush. Keepalive comments make a vanished client show up as a
// failed flush even while the status is unchanged.
func (h *StatusHandler) stream(w *bufio.Writer, owner, name string, st domain.StatusView) {
	ctx, cancel := context.WithTimeout(context.Background(), h.streamTimeout)
	defer cancel()

	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()
	keepalive := time.NewTicker(h.keepaliveInterval)
	defer keepalive.Stop()

	send := func(chunk string) bool {
		if _, err := w.WriteString(chunk); err != nil {
			return false
		}
		return w.Flush() == nil
	}

	last := st
	if !send(sseEvent(st)) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			slog.Warn("SSE timeout", "owner", owner, "name", name)
			return
		case <-keepalive.C:
			if !send(sseKeepalive) {
				slog.Debug("SSE client gone", "owner", owner, "name", name)
				return
			}
		case <-poll.C:
			cur, err := h.repos.GetStatus(ctx, owner, name)
			if err != nil {
				slog.Error("SSE status poll failed", "owner", owner, "name", name, "error", err)
				return
			}
			if cur.Status == last.Status && cur.ErrorMessage == last.ErrorMessage {
				continue
			}
			last = cur
			if !send(sseEvent(cur)) || cur.Status.Terminal() {
				return
			}
		}
	}
}

func sseEvent(st domain.StatusView) string {
	event := "status"
	if st.Status.Terminal() {
		event = string(st.Status)
	}
	data, _ := json.Marshal(st)
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, string(data))
}
