package port

import (
	"context"

	"github.com/arturoeanton/gitsum/internal/domain"
)

// Analyzer runs the external repository-analysis tool against a local checkout
// and returns its structured report. A report that is not a mapping is an error;
// cosmetic problems inside the mapping are left to the compressor.
type Analyzer interface {
	Analyze(ctx context.Context, dir string) (domain.RawReport, error)
}

// Workspace is a disposable directory owned by exactly one run.
type Workspace interface {
	// Path is the absolute directory path.
	Path() string

	// Release removes the directory and everything under it.
	Release() error
}

// WorkspaceProvider hands out fresh, empty workspaces.
type WorkspaceProvider interface {
	Acquire(ctx context.Context, label string) (Workspace, error)
}
