package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// ShellRunner shells out to the system git binary.
type ShellRunner struct {
	// Git is the git binary to execute. Defaults to "git" when empty.
	Git string

	// Env is appended to the process environment of every invocation, e.g.
	// GIT_AUTHOR_NAME and GIT_COMMITTER_EMAIL for the commit identity.
	Env []string
}

// NewShellRunner returns a Runner backed by system git commands.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

// IdentityEnv returns the environment that makes git author and commit as
// name/email without touching any git config file. Empty values are skipped.
func IdentityEnv(name, email string) []string {
	var env []string
	if name = strings.TrimSpace(name); name != "" {
		env = append(env, "GIT_AUTHOR_NAME="+name, "GIT_COMMITTER_NAME="+name)
	}
	if email = strings.TrimSpace(email); email != "" {
		env = append(env, "GIT_AUTHOR_EMAIL="+email, "GIT_COMMITTER_EMAIL="+email)
	}
	return env
}

// WithEnv returns a copy of r that also passes env to every invocation.
func (r *ShellRunner) WithEnv(env ...string) Runner {
	return &ShellRunner{
		Git: r.Git,
		Env: append(append([]string(nil), r.Env...), env...),
	}
}

func (r *ShellRunner) gitBinary() string {
	if r.Git == "" {
		return "git"
	}
	return r.Git
}

// Run implements Runner.
func (r *ShellRunner) Run(ctx context.Context, dir, command string, args []string, onLine LineFunc) (Result, error) {
	argv := append([]string{command}, args...)

	cmd := exec.Command(r.gitBinary(), argv...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, r.Env...)
	setProcessGroup(cmd)

	// A single writer for both streams keeps lines in the order git wrote them.
	out := &lineWriter{emit: onLine}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, &GitError{Args: argv, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		terminateProcessGroup(cmd)
		<-done
		out.Flush()
		return Result{ExitCode: -1}, ctx.Err()
	case waitErr = <-done:
	}
	out.Flush()

	if waitErr == nil {
		return Result{Success: true}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode()}, nil
	}
	return Result{ExitCode: -1}, &GitError{Args: argv, Err: waitErr}
}

// GitError wraps failures to invoke the git binary.
type GitError struct {
	Args []string
	Err  error
}

func (e *GitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *GitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// lineWriter splits process output into lines. Progress meters rewrite the
// current line with '\r', so carriage returns end a line too.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit LineFunc
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.flushLocked()
			continue
		}
		w.buf = append(w.buf, b)
	}
	return len(p), nil
}

// Flush emits any trailing output that was not newline terminated.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

func (w *lineWriter) flushLocked() {
	if len(w.buf) == 0 {
		return
	}
	line := string(w.buf)
	w.buf = w.buf[:0]
	if w.emit != nil {
		w.emit(line)
	}
}
