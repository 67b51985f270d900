package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies fatal reconciliation failures.
type Kind string

const (
	KindWorkspace      Kind = "workspace"
	KindInitialization Kind = "initialization"
	KindBranchSetup    Kind = "branch setup"
	KindCommit         Kind = "commit"
	KindPublish        Kind = "publish"
)

// Error is returned for every fatal condition of the pull and push protocols.
// Command holds the git command line that triggered it, when there was one.
type Error struct {
	Kind    Kind
	Message string
	Command string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	if e.Command != "" {
		fmt.Fprintf(&b, " (%s)", e.Command)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	if !errors.As(err, &target) {
		return false
	}
	return target.Kind == kind
}

func commandLine(command string, args []string) string {
	return strings.TrimSpace("git " + command + " " + strings.Join(args, " "))
}
