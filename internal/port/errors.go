package port

import (
	"context"
	"errors"
)

// Sentinel errors forming the failure taxonomy of the pipeline.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrRepositoryNotReady = errors.New("repository not ready")
	ErrExternalTool       = errors.New("external tool failure")
	ErrTimeout            = errors.New("timeout")
	ErrModelUnavailable   = errors.New("model unavailable")
	ErrPersistence        = errors.New("persistence failure")
)

// Kind returns the taxonomy name for err, or "Internal" if it is unclassified.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrRepositoryNotReady):
		return "RepositoryNotReady"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, ErrExternalTool):
		return "ExternalToolFailure"
	case errors.Is(err, ErrModelUnavailable):
		return "ModelUnavailable"
	case errors.Is(err, ErrPersistence):
		return "PersistenceFailure"
	default:
		return "Internal"
	}
}
