package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/rancher/gitwagon/internal/git"
	gh "github.com/rancher/gitwagon/internal/github"
	"github.com/rancher/gitwagon/internal/reconcile"
	"github.com/rancher/gitwagon/internal/remote"
	"github.com/rancher/gitwagon/internal/transport"
	"github.com/rancher/gitwagon/internal/workspace"
)

// Result summarizes one transport session.
type Result struct {
	Identity  remote.Identity
	Workspace string
	State     reconcile.State
	Published bool
}

// Runner glues configuration, the git runner and the transport together for the CLI commands.
type Runner struct {
	cfg       Config
	log       *slog.Logger
	ghFactory gh.Factory
	gitRunner git.Runner
	now       func() time.Time
}

// NewRunner constructs a Runner with the supplied configuration. Logs are written to logOut.
func NewRunner(cfg Config, logOut io.Writer) (*Runner, error) {
	logger, err := NewLogger(logOut, cfg.Level(), cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	return &Runner{
		cfg:       cfg,
		log:       logger,
		ghFactory: gh.NewRESTFactory(cfg.GitHubBaseURL, cfg.GitHubUploadURL),
		gitRunner: buildGitRunner(cfg),
		now:       time.Now,
	}, nil
}

// NewRunnerWithDeps constructs a Runner with injected dependencies for testing.
func NewRunnerWithDeps(cfg Config, log *slog.Logger, ghFactory gh.Factory, gitRunner git.Runner) *Runner {
	return &Runner{cfg: cfg, log: log, ghFactory: ghFactory, gitRunner: gitRunner, now: time.Now}
}

func buildGitRunner(cfg Config) git.Runner {
	if cfg.DryRun {
		return git.NewNoopRunner()
	}
	runner := git.NewShellRunner()
	runner.Git = cfg.Git
	runner.Env = git.IdentityEnv(cfg.GitUserName, cfg.GitUserEmail)
	return runner
}

// Put publishes the local file source as the artifact dest.
func (r *Runner) Put(ctx context.Context, connection, source, dest string) (Result, error) {
	res, err := r.withSession(ctx, connection, func(s *transport.Session) error {
		return s.PutFile(source, dest)
	})
	r.report("put", res, err)
	return res, err
}

// PutDir publishes the tree at sourceDir under dest.
func (r *Runner) PutDir(ctx context.Context, connection, sourceDir, dest string) (Result, error) {
	res, err := r.withSession(ctx, connection, func(s *transport.Session) error {
		return s.WriteDirectory(dest, sourceDir)
	})
	r.report("put-dir", res, err)
	return res, err
}

// Get copies the artifact at path to w.
func (r *Runner) Get(ctx context.Context, connection, path string, w io.Writer) (Result, error) {
	return r.withSession(ctx, connection, func(s *transport.Session) error {
		rc, err := s.Read(path)
		if err != nil {
			return err
		}
		defer rc.Close()

		if _, err := io.Copy(w, rc); err != nil {
			return fmt.Errorf("copy %s: %w", path, err)
		}
		return nil
	})
}

// Resolve returns the working directory a connection maps to, creating it if needed.
func (r *Runner) Resolve(connection string) (string, error) {
	identity, err := remote.Parse(connection)
	if err != nil {
		return "", err
	}
	return r.resolver().Resolve(identity.RemoteURL)
}

// Inspect looks up the artifact branch of a GitHub-hosted connection without touching a workspace.
func (r *Runner) Inspect(ctx context.Context, connection string) (gh.BranchInfo, error) {
	identity, err := remote.Parse(connection)
	if err != nil {
		return gh.BranchInfo{}, err
	}

	owner, repo, err := gh.ParseRepository(identity.RemoteURL)
	if err != nil {
		return gh.BranchInfo{}, err
	}

	inspector, err := r.ghFactory.New(ctx, r.cfg.Token)
	if err != nil {
		return gh.BranchInfo{}, fmt.Errorf("initialize github client: %w", err)
	}

	info, err := inspector.Branch(ctx, owner, repo, identity.Branch)
	if err != nil {
		if gh.IsRetryable(err) {
			r.log.Warn("github lookup failed with a transient error", "error", err)
		}
		return info, fmt.Errorf("inspect %s: %w", identity, err)
	}
	return info, nil
}

// withSession opens a session, runs fn and always closes the session again.
// Failures of fn and of the close are reported together.
func (r *Runner) withSession(ctx context.Context, connection string, fn func(*transport.Session) error) (Result, error) {
	identity, err := remote.Parse(connection)
	if err != nil {
		return Result{}, err
	}

	res := Result{Identity: identity}

	session, err := transport.NewSession(identity, r.sessionOptions())
	if err != nil {
		return res, err
	}

	r.log.Info("opening git session", "remote", identity.RemoteURL, "branch", identity.Branch, "dry_run", r.cfg.DryRun)
	if err := session.Open(ctx); err != nil {
		return res, err
	}
	res.Workspace = session.Dir()
	res.State = session.State()

	var errs *multierror.Error
	if err := fn(session); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := session.Close(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	res.Published = session.Published()

	if err := errs.ErrorOrNil(); err != nil {
		if len(errs.Errors) == 1 {
			return res, errs.Errors[0]
		}
		return res, err
	}
	return res, nil
}

func (r *Runner) sessionOptions() transport.Options {
	policy := reconcile.CommitPermissive
	if r.cfg.SkipEmptyCommit {
		policy = reconcile.CommitStrict
	}

	return transport.Options{
		Resolver:     r.resolver(),
		Runner:       r.gitRunner,
		Logger:       r.log,
		SafeCheckout: r.cfg.SafeCheckout,
		Policy:       policy,
		Token:        r.cfg.Token,
		Now:          r.now,
	}
}

func (r *Runner) resolver() *workspace.Resolver {
	return workspace.NewResolver(r.cfg.CacheDir)
}

func (r *Runner) report(command string, res Result, opErr error) {
	if err := r.writeStepSummary(command, res, opErr); err != nil {
		r.log.Warn("failed to write step summary", "error", err)
	}
	if opErr != nil {
		return
	}
	if err := r.writeGitHubOutputs(res); err != nil {
		r.log.Warn("failed to write action outputs", "error", err)
	}
}

// IsNotExist reports whether err means a requested artifact is absent.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
