// Package gittest provides a scripted git.Runner for tests.
package gittest

import (
	"context"
	"strings"
	"sync"

	"github.com/rancher/gitwagon/internal/git"
)

// Invocation is one recorded call to Run.
type Invocation struct {
	Dir     string
	Command string
	Args    []string
	Env     []string
}

// String renders the invocation the way it would be typed after "git".
func (i Invocation) String() string {
	return strings.TrimSpace(i.Command + " " + strings.Join(i.Args, " "))
}

// Recorder records every invocation and reports success unless the rendered
// invocation is listed in Exit.
type Recorder struct {
	mu    sync.Mutex
	calls []Invocation

	// Exit maps a rendered invocation ("show-ref --verify --quiet refs/heads/main")
	// to the exit code it reports. Unlisted invocations exit 0.
	Exit map[string]int

	// Output maps a rendered invocation to lines fed to the caller's LineFunc.
	Output map[string][]string

	// Hook runs for every invocation before its result is returned, e.g. to
	// create the repository marker on "init".
	Hook func(Invocation)
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Exit: map[string]int{}, Output: map[string][]string{}}
}

// Run implements git.Runner.
func (r *Recorder) Run(ctx context.Context, dir, command string, args []string, onLine git.LineFunc) (git.Result, error) {
	return r.run(ctx, Invocation{Dir: dir, Command: command, Args: append([]string(nil), args...)}, onLine)
}

// WithEnv returns a runner recording into r whose invocations carry env.
func (r *Recorder) WithEnv(env ...string) git.Runner {
	return &envRecorder{rec: r, env: append([]string(nil), env...)}
}

type envRecorder struct {
	rec *Recorder
	env []string
}

func (e *envRecorder) Run(ctx context.Context, dir, command string, args []string, onLine git.LineFunc) (git.Result, error) {
	inv := Invocation{Dir: dir, Command: command, Args: append([]string(nil), args...), Env: e.env}
	return e.rec.run(ctx, inv, onLine)
}

func (r *Recorder) run(ctx context.Context, inv Invocation, onLine git.LineFunc) (git.Result, error) {
	if err := ctx.Err(); err != nil {
		return git.Result{ExitCode: -1}, err
	}

	r.mu.Lock()
	r.calls = append(r.calls, inv)
	code := r.Exit[inv.String()]
	lines := r.Output[inv.String()]
	hook := r.Hook
	r.mu.Unlock()

	if hook != nil {
		hook(inv)
	}
	if onLine != nil {
		for _, line := range lines {
			onLine(line)
		}
	}

	return git.Result{Success: code == 0, ExitCode: code}, nil
}

// Fail makes invocation exit with code 1 from now on.
func (r *Recorder) Fail(invocation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Exit == nil {
		r.Exit = map[string]int{}
	}
	r.Exit[invocation] = 1
}

// Succeed removes any failure scripted for invocation.
func (r *Recorder) Succeed(invocation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Exit, invocation)
}

// Calls returns the rendered invocations in the order they ran.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.calls))
	for _, call := range r.calls {
		out = append(out, call.String())
	}
	return out
}

// Invocations returns a copy of the recorded invocations.
func (r *Recorder) Invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invocation(nil), r.calls...)
}

// Reset forgets recorded invocations but keeps scripted results.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
