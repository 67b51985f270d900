package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rancher/gitwagon/internal/git"
	"github.com/rancher/gitwagon/internal/remote"
)

const (
	// RemoteName is the name the remote is registered under in the workspace.
	RemoteName = "origin"

	commitMarker = "[gitwagon]"
)

// State is the repository state detected by a pull.
type State int

const (
	StateUnknown State = iota
	// StateUninitialized: no usable repository; pull initializes one before
	// setting up the branch.
	StateUninitialized
	// StateNoRemoteBranch: the remote has no such branch; pull bootstraps a headless one.
	StateNoRemoteBranch
	// StateRemoteBranchOnly: pull creates the local branch from the remote-tracking ref.
	StateRemoteBranchOnly
	// StateLocalBranchExists: pull checks out the existing local branch.
	StateLocalBranchExists
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNoRemoteBranch:
		return "no-remote-branch"
	case StateRemoteBranchOnly:
		return "remote-branch-only"
	case StateLocalBranchExists:
		return "local-branch-exists"
	default:
		return "unknown"
	}
}

// CommitPolicy selects how push commits staged changes.
type CommitPolicy int

const (
	// CommitPermissive commits with --allow-empty, so the commit step cannot
	// fail just because nothing changed.
	CommitPermissive CommitPolicy = iota
	// CommitStrict refuses empty commits; a commit with nothing staged fails
	// the push with a KindCommit error.
	CommitStrict
)

func (p CommitPolicy) String() string {
	if p == CommitStrict {
		return "strict"
	}
	return "permissive"
}

// Options tunes an Engine.
type Options struct {
	Policy CommitPolicy

	// RemoteURL is the URL registered as the remote. It defaults to the
	// identity's URL and may differ from it only by embedded credentials.
	RemoteURL string

	// Now stamps commit messages. Defaults to time.Now.
	Now func() time.Time
}

// Engine reconciles one working directory with one remote branch. All git
// commands and workspace writes of an Engine are serialized.
type Engine struct {
	mu sync.Mutex

	dir       string
	identity  remote.Identity
	remoteURL string
	runner    git.Runner
	log       *slog.Logger
	policy    CommitPolicy
	now       func() time.Time

	dirty bool
	state State
}

// New returns an Engine for the working directory dir. The directory does not
// need to exist yet.
func New(dir string, identity remote.Identity, runner git.Runner, logger *slog.Logger, opts Options) (*Engine, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, &Error{Kind: KindWorkspace, Message: "working directory is required"}
	}
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid remote identity: %w", err)
	}
	if runner == nil {
		return nil, errors.New("git runner is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := &Engine{
		dir:       dir,
		identity:  identity,
		remoteURL: opts.RemoteURL,
		runner:    runner,
		log:       logger.With("remote", identity.RemoteURL, "branch", identity.Branch),
		policy:    opts.Policy,
		now:       opts.Now,
	}
	if e.remoteURL == "" {
		e.remoteURL = identity.RemoteURL
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Dir returns the working directory.
func (e *Engine) Dir() string {
	return e.dir
}

// Identity returns the remote identity the engine reconciles with.
func (e *Engine) Identity() remote.Identity {
	return e.identity
}

// Dirty reports whether the workspace holds unpublished writes.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// State returns the state detected by the most recent pull.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pull converges the working directory onto the remote branch. It returns the
// state it detected: StateUninitialized when the repository had to be created,
// otherwise the branch state that decided between bootstrap and checkout.
func (e *Engine) Pull(ctx context.Context) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return StateUnknown, &Error{Kind: KindWorkspace, Message: "unable to create working directory", Err: err}
	}

	detected := StateUnknown
	if !e.isValidRepo(ctx) {
		detected = StateUninitialized
		if err := e.initialize(ctx); err != nil {
			return StateUnknown, err
		}
	} else if e.remoteURL != e.identity.RemoteURL {
		// Embedded credentials rotate between sessions; a warm workspace must
		// not keep using the one it was created with.
		if err := e.must(ctx, KindInitialization, "git remote failed", "remote", "set-url", RemoteName, e.remoteURL); err != nil {
			return StateUnknown, err
		}
	}

	branchState, err := e.setupBranch(ctx)
	if err != nil {
		return StateUnknown, err
	}
	if detected == StateUnknown {
		detected = branchState
	}

	// Picks up commits other writers pushed since our last fetch. The remote
	// branch may not exist yet, so failure is expected and tolerated.
	branch := e.identity.Branch
	if res, err := e.run(ctx, "pull", RemoteName, branch); err != nil {
		e.log.Warn("unable to pull latest changes, continuing with local state", "error", err)
	} else if !res.Success {
		e.log.Warn("unable to pull latest changes, continuing with local state", "exit_code", res.ExitCode)
	}

	e.state = detected
	e.log.Info("workspace reconciled", "dir", e.dir, "state", detected.String(), "branch_state", branchState.String())
	return detected, nil
}

// isValidRepo trusts the .git marker only when git itself can read the repository.
func (e *Engine) isValidRepo(ctx context.Context) bool {
	if _, err := os.Stat(filepath.Join(e.dir, ".git")); err != nil {
		return false
	}
	res, err := e.run(ctx, "status")
	return err == nil && res.Success
}

func (e *Engine) initialize(ctx context.Context) error {
	if err := e.must(ctx, KindInitialization, "git init failed", "init"); err != nil {
		return err
	}

	if res, err := e.run(ctx, "remote", "add", RemoteName, e.remoteURL); err != nil || !res.Success {
		e.log.Warn("git remote add failed, trying git remote set-url", "exit_code", res.ExitCode, "error", err)
		if err := e.must(ctx, KindInitialization, "git remote failed", "remote", "set-url", RemoteName, e.remoteURL); err != nil {
			return err
		}
	}

	return e.must(ctx, KindInitialization, "git fetch failed", "fetch", "--progress", RemoteName)
}

func (e *Engine) setupBranch(ctx context.Context) (State, error) {
	branch := e.identity.Branch

	remoteExists, err := e.refExists(ctx, "refs/remotes/"+RemoteName+"/"+branch)
	if err != nil {
		return StateUnknown, &Error{Kind: KindBranchSetup, Message: "unable to look up remote branch", Err: err}
	}
	if !remoteExists {
		return StateNoRemoteBranch, e.bootstrapHeadless(ctx)
	}

	localExists, err := e.refExists(ctx, "refs/heads/"+branch)
	if err != nil {
		return StateUnknown, &Error{Kind: KindBranchSetup, Message: "unable to look up local branch", Err: err}
	}
	if !localExists {
		return StateRemoteBranchOnly, e.must(ctx, KindBranchSetup, "unable to checkout branch",
			"checkout", "-b", branch, RemoteName+"/"+branch)
	}

	return StateLocalBranchExists, e.must(ctx, KindBranchSetup, "unable to checkout branch", "checkout", branch)
}

// bootstrapHeadless points HEAD at a branch with no commits and leaves an
// empty index and working tree, ready for the first commit.
func (e *Engine) bootstrapHeadless(ctx context.Context) error {
	branch := e.identity.Branch

	if err := e.must(ctx, KindBranchSetup, "unable to create branch", "symbolic-ref", "HEAD", "refs/heads/"+branch); err != nil {
		return err
	}

	index := filepath.Join(e.dir, ".git", "index")
	if err := os.Remove(index); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Kind: KindBranchSetup, Message: "unable to create branch: remove index", Err: err}
	}

	return e.must(ctx, KindBranchSetup, "unable to create branch", "clean", "-fdx")
}

func (e *Engine) refExists(ctx context.Context, ref string) (bool, error) {
	res, err := e.run(ctx, "show-ref", "--verify", "--quiet", ref)
	return res.Success, err
}

// Push stages, commits and publishes every write made since the last
// successful push. Without writes it issues no commands at all.
func (e *Engine) Push(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.dirty {
		e.log.Debug("workspace is clean, nothing to push")
		return nil
	}

	branch := e.identity.Branch

	if err := e.must(ctx, KindCommit, "unable to add files", "add", "--all", "."); err != nil {
		return err
	}

	message := fmt.Sprintf("%s commit to branch %s %s", commitMarker, branch, e.now().UTC().Format(time.RFC3339))
	args := []string{"-m", message}
	if e.policy == CommitPermissive {
		args = append([]string{"--allow-empty"}, args...)
	}
	if err := e.must(ctx, KindCommit, "unable to commit files", "commit", args...); err != nil {
		return err
	}

	if err := e.must(ctx, KindPublish, "unable to push files", "push", "--progress", RemoteName, branch); err != nil {
		return err
	}

	e.dirty = false
	e.log.Info("published workspace", "policy", e.policy.String())
	return nil
}

// must runs a command whose failure aborts the current protocol with kind.
func (e *Engine) must(ctx context.Context, kind Kind, message, command string, args ...string) error {
	res, err := e.run(ctx, command, args...)
	if err == nil && res.Success {
		return nil
	}
	return &Error{Kind: kind, Message: message, Command: e.redact(commandLine(command, args)), Err: err}
}

// run executes one git command. The error is only set when git could not run at all.
func (e *Engine) run(ctx context.Context, command string, args ...string) (git.Result, error) {
	res, err := e.runner.Run(ctx, e.dir, command, args, e.logLine)
	if err != nil {
		e.log.Debug("git command did not run", "command", e.redact(commandLine(command, args)), "error", err)
		return res, err
	}
	e.log.Debug("ran git command", "command", e.redact(commandLine(command, args)), "exit_code", res.ExitCode)
	return res, nil
}

func (e *Engine) logLine(line string) {
	e.log.Info("git output", "line", e.redact(line))
}

// redact hides credentials embedded in the registered remote URL.
func (e *Engine) redact(s string) string {
	if e.remoteURL == e.identity.RemoteURL {
		return s
	}
	return strings.ReplaceAll(s, e.remoteURL, e.identity.RemoteURL)
}
