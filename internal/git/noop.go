package git

import (
	"context"
)

// NewNoopRunner returns a Runner that performs no actual git operations.
// Every command reports success without side effects, which drives the
// reconciliation engine down its happy path for dry runs.
func NewNoopRunner() Runner {
	return noopRunner{}
}

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, dir, command string, args []string, onLine LineFunc) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}
	return Result{Success: true}, nil
}

// WithEnv returns the runner itself; no process ever sees the environment.
func (n noopRunner) WithEnv(...string) Runner {
	return n
}
