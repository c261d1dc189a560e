package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/arturoeanton/gitsum/internal/port"
)

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// TempDirProvider implements port.WorkspaceProvider with fresh directories under a base path.
type TempDirProvider struct {
	basePath string
}

// NewTempDirProvider creates a provider rooted at basePath. An empty basePath uses os.TempDir().
func NewTempDirProvider(basePath string) *TempDirProvider {
	if basePath == "" {
		basePath = os.TempDir()
	}
	return &TempDirProvider{basePath: basePath}
}

// Acquire creates a new empty directory named after label.
func (p *TempDirProvider) Acquire(ctx context.Context, label string) (port.Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace base %s: %w", p.basePath, err)
	}
	dir, err := os.MkdirTemp(p.basePath, "gitsum-"+unsafeLabel.ReplaceAllString(label, "_")+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &tempDir{path: dir}, nil
}

type tempDir struct {
	path string
}

func (d *tempDir) Path() string { return d.path }

func (d *tempDir) Release() error {
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("remove workspace %s: %w", filepath.Base(d.path), err)
	}
	return nil
}
