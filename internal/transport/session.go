package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/rancher/gitwagon/internal/git"
	"github.com/rancher/gitwagon/internal/reconcile"
	"github.com/rancher/gitwagon/internal/remote"
	"github.com/rancher/gitwagon/internal/workspace"
)

// ErrNotExist is returned when reading an artifact the branch does not hold.
var ErrNotExist = fmt.Errorf("artifact does not exist: %w", fs.ErrNotExist)

// Options configures sessions.
type Options struct {
	Resolver *workspace.Resolver
	Runner   git.Runner
	Logger   *slog.Logger

	// SafeCheckout wipes the working directory before pulling and after pushing.
	SafeCheckout bool

	// Policy selects strict or permissive commits on close.
	Policy reconcile.CommitPolicy

	// Token authenticates HTTPS remotes when non-empty. It is handed to git
	// through the environment when Runner supports it.
	Token string

	// Now stamps commit messages. Defaults to time.Now.
	Now func() time.Time
}

// Resource describes a stored artifact.
type Resource struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// Session publishes and retrieves artifacts through one remote branch. Open
// pulls the branch, writes accumulate locally, and Close publishes them as a
// single commit.
type Session struct {
	identity remote.Identity
	opts     Options
	log      *slog.Logger

	engine    *reconcile.Engine
	dir       string
	state     reconcile.State
	published bool
}

// NewSession returns an unopened session for identity.
func NewSession(identity remote.Identity, opts Options) (*Session, error) {
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid remote identity: %w", err)
	}
	if opts.Resolver == nil {
		return nil, errors.New("workspace resolver is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("git runner is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Session{identity: identity, opts: opts, log: logger}, nil
}

// Open resolves the working directory and pulls the remote branch into it.
// Opening an already open session does nothing.
func (s *Session) Open(ctx context.Context) error {
	if s.engine != nil {
		return nil
	}

	dir, err := s.opts.Resolver.Resolve(s.identity.RemoteURL)
	if err != nil {
		return &reconcile.Error{Kind: reconcile.KindWorkspace, Message: "unable to create working directory", Err: err}
	}

	if s.opts.SafeCheckout {
		if err := workspace.Clean(dir); err != nil {
			return &reconcile.Error{Kind: reconcile.KindWorkspace, Message: "unable to clean working directory", Err: err}
		}
	}

	runner, remoteURL := s.credentials()
	engine, err := reconcile.New(dir, s.identity, runner, s.log, reconcile.Options{
		Policy:    s.opts.Policy,
		RemoteURL: remoteURL,
		Now:       s.opts.Now,
	})
	if err != nil {
		return err
	}

	s.log.Debug("opening session", "remote", s.identity.RemoteURL, "branch", s.identity.Branch, "dir", dir)

	state, err := engine.Pull(ctx)
	if err != nil {
		return fmt.Errorf("unable to pull git repository: %w", err)
	}

	s.engine = engine
	s.dir = dir
	s.state = state
	return nil
}

// credentials decides how the token reaches git. Runners that accept extra
// environment get it per invocation, which keeps it out of .git/config;
// otherwise it is embedded in the registered remote URL.
func (s *Session) credentials() (git.Runner, string) {
	env := s.identity.AuthEnv(s.opts.Token)
	if env == nil {
		return s.opts.Runner, s.identity.RemoteURL
	}
	if r, ok := s.opts.Runner.(git.EnvRunner); ok {
		return r.WithEnv(env...), s.identity.RemoteURL
	}
	return s.opts.Runner, s.identity.AuthenticatedURL(s.opts.Token)
}

// Close publishes pending writes, then wipes the working directory when safe
// checkout is enabled. A failed publish leaves the workspace untouched and the
// session open; after a successful Close the session must be opened again.
func (s *Session) Close(ctx context.Context) error {
	engine, err := s.opened()
	if err != nil {
		return err
	}

	dirty := engine.Dirty()
	if err := engine.Push(ctx); err != nil {
		return fmt.Errorf("unable to push git repository: %w", err)
	}
	s.published = s.published || dirty

	if s.opts.SafeCheckout {
		if err := workspace.Clean(engine.Dir()); err != nil {
			return &reconcile.Error{Kind: reconcile.KindWorkspace, Message: "unable to clean working directory", Err: err}
		}
	}

	s.engine = nil
	return nil
}

// Read opens the artifact at rel.
func (s *Session) Read(rel string) (io.ReadCloser, error) {
	path, err := s.path(rel)
	if err != nil {
		return nil, err
	}

	s.log.Debug("reading artifact", "path", rel)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, rel)
		}
		return nil, fmt.Errorf("could not read from file %s: %w", rel, err)
	}
	return f, nil
}

// Stat describes the artifact at rel.
func (s *Session) Stat(rel string) (Resource, error) {
	path, err := s.path(rel)
	if err != nil {
		return Resource{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Resource{}, fmt.Errorf("%w: %s", ErrNotExist, rel)
		}
		return Resource{}, fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return Resource{}, fmt.Errorf("%w: %s is a directory", ErrNotExist, rel)
	}
	return Resource{Path: rel, Size: info.Size(), LastModified: info.ModTime()}, nil
}

// Write stores the contents of r as the artifact at rel.
func (s *Session) Write(rel string, r io.Reader) error {
	engine, err := s.opened()
	if err != nil {
		return err
	}
	return engine.WriteFile(rel, r)
}

// PutFile stores the local file source as the artifact at rel.
func (s *Session) PutFile(source, rel string) error {
	engine, err := s.opened()
	if err != nil {
		return err
	}
	return engine.PutFile(source, rel)
}

// WriteDirectory stores the tree at sourceDir under rel.
func (s *Session) WriteDirectory(rel, sourceDir string) error {
	engine, err := s.opened()
	if err != nil {
		return err
	}
	return engine.PutDirectory(sourceDir, rel)
}

// Identity returns the remote identity of the session.
func (s *Session) Identity() remote.Identity {
	return s.identity
}

// Dir returns the working directory of the last Open, or "" before Open.
func (s *Session) Dir() string {
	return s.dir
}

// State returns the repository state detected by Open.
func (s *Session) State() reconcile.State {
	return s.state
}

// Published reports whether a Close of this session published a commit.
func (s *Session) Published() bool {
	return s.published
}

var errNotOpen = errors.New("session is not open")

func (s *Session) opened() (*reconcile.Engine, error) {
	if s.engine == nil {
		return nil, errNotOpen
	}
	return s.engine, nil
}

func (s *Session) path(rel string) (string, error) {
	engine, err := s.opened()
	if err != nil {
		return "", err
	}
	return engine.Path(rel)
}
