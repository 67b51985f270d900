package git

import "context"

// Result reports how a git invocation finished.
type Result struct {
	Success  bool
	ExitCode int
}

// LineFunc receives each line git writes to stdout or stderr, in order.
type LineFunc func(line string)

// Runner executes a git subcommand inside a working directory and blocks until
// it exits. A non-zero exit is reported through Result; the error return is
// reserved for failures to run git at all (missing binary, cancelled context).
// Output is handed to onLine for logging only.
type Runner interface {
	Run(ctx context.Context, dir, command string, args []string, onLine LineFunc) (Result, error)
}

// EnvRunner is a Runner that can derive a Runner passing extra environment
// variables to every git invocation, e.g. per-session credentials.
type EnvRunner interface {
	Runner
	WithEnv(env ...string) Runner
}
