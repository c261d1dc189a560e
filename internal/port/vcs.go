package port

import "context"

// VCSProvider abstracts source-control fetches.
type VCSProvider interface {
	// ShallowClone clones url at depth 1 into dest, which must not exist or be empty.
	ShallowClone(ctx context.Context, url string, dest string) error
}
