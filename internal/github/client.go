package gh

import (
	"context"
	"errors"
)

// BranchInfo describes a branch of a GitHub-hosted artifact repository.
type BranchInfo struct {
	Owner         string
	Repo          string
	Branch        string
	Exists        bool
	SHA           string
	Protected     bool
	DefaultBranch string
}

// Inspector exposes the read-only GitHub lookups used to inspect artifact branches.
type Inspector interface {
	Branch(ctx context.Context, owner, repo, branch string) (BranchInfo, error)
}

// Factory builds concrete inspectors (e.g., REST-backed).
type Factory interface {
	New(ctx context.Context, token string) (Inspector, error)
}

// ErrRepositoryNotFound indicates the repository does not exist or the token cannot see it.
var ErrRepositoryNotFound = errors.New("github: repository not found")

// retryableError marks an error that may succeed if the operation is retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsRetryable reports whether the supplied error resulted from a retryable GitHub
// API failure (for example, a transient network problem or rate-limited request).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var target *retryableError
	return errors.As(err, &target)
}
