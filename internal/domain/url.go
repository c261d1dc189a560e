package domain

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidRepoURL is returned by ParseRepoURL for unusable input.
var ErrInvalidRepoURL = errors.New("invalid repository url")

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ParseRepoURL extracts the (owner, name) key and canonical https URL from a
// repository URL. Both https://host/owner/name(.git) and git@host:owner/name(.git)
// forms are accepted, and input without a scheme is read as https. Owner and
// name are the last two path segments.
func ParseRepoURL(raw string) (RepoKey, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RepoKey{}, "", fmt.Errorf("%w: empty", ErrInvalidRepoURL)
	}

	var host, path string
	if strings.HasPrefix(raw, "git@") {
		rest := strings.TrimPrefix(raw, "git@")
		h, p, ok := strings.Cut(rest, ":")
		if !ok {
			return RepoKey{}, "", fmt.Errorf("%w: %q", ErrInvalidRepoURL, raw)
		}
		host, path = h, p
	} else {
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return RepoKey{}, "", fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
		}
		switch u.Scheme {
		case "http", "https", "ssh", "git":
		default:
			return RepoKey{}, "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRepoURL, u.Scheme)
		}
		host, path = u.Host, u.Path
	}

	if host == "" {
		return RepoKey{}, "", fmt.Errorf("%w: missing host", ErrInvalidRepoURL)
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	segments := strings.Split(path, "/")
	if len(segments) < 2 {
		return RepoKey{}, "", fmt.Errorf("%w: expected owner/name in %q", ErrInvalidRepoURL, raw)
	}

	key := RepoKey{
		Owner: segments[len(segments)-2],
		Name:  segments[len(segments)-1],
	}
	if err := ValidateKey(key); err != nil {
		return RepoKey{}, "", err
	}

	canonical := fmt.Sprintf("https://%s/%s", strings.ToLower(host), strings.Join(segments, "/"))
	return key, canonical, nil
}

// ValidateKey checks owner and name are non-empty path-safe segments.
func ValidateKey(key RepoKey) error {
	if !segmentPattern.MatchString(key.Owner) || key.Owner == "." || key.Owner == ".." {
		return fmt.Errorf("%w: bad owner %q", ErrInvalidRepoURL, key.Owner)
	}
	if !segmentPattern.MatchString(key.Name) || key.Name == "." || key.Name == ".." {
		return fmt.Errorf("%w: bad name %q", ErrInvalidRepoURL, key.Name)
	}
	return nil
}
