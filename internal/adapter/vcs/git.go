package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/arturoeanton/gitsum/internal/port"
)

// maxStderr bounds how much diagnostic output is carried into an error message.
const maxStderr = 2000

// waitDelay bounds how long a killed clone may keep its output pipes open.
const waitDelay = 2 * time.Second

// GitProvider implements port.VCSProvider using the git CLI.
type GitProvider struct {
	binary string
}

// NewGitProvider creates a new Git VCS provider. An empty binary means "git" on PATH.
func NewGitProvider(binary string) *GitProvider {
	if binary == "" {
		binary = "git"
	}
	return &GitProvider{binary: binary}
}

// ShallowClone clones the default branch of url at depth 1 into dest.
func (g *GitProvider) ShallowClone(ctx context.Context, url string, dest string) error {
	cmd := exec.CommandContext(ctx, g.binary, "clone", "--depth", "1", "--single-branch", "--quiet", "--", url, dest)
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("git clone %s: %w", url, port.ErrTimeout)
		}
		return fmt.Errorf("git clone %s: %w: %s", url, port.ErrExternalTool, diagnostic(stderr.String(), err))
	}
	return nil
}

// diagnostic picks the most useful text describing a failed command.
func diagnostic(stderr string, err error) string {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return err.Error()
	}
	return truncate(msg, maxStderr)
}

// truncate shortens a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
