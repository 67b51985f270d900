package remote

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultBranch is used when a connection string carries no branch segment.
const DefaultBranch = "master"

// Identity names the remote repository and branch a session publishes to.
type Identity struct {
	RemoteURL string
	Branch    string
}

func (i Identity) String() string {
	return fmt.Sprintf("%s@%s", i.Branch, i.RemoteURL)
}

var (
	// ErrInvalidConnection reports a connection string that cannot be split into scheme and remote.
	ErrInvalidConnection = errors.New("invalid connection string")

	errEmptyRemote = errors.New("remote url cannot be empty")

	disallowedBranchChars = regexp.MustCompile(`[\s~^:?*\[\\]|\.\.|@\{`)
)

// Parse reads a connection string of the form <scheme>:<branch>:<remoteUrl>.
// The branch segment is optional; without it the remainder after the scheme is
// the remote URL and the branch is DefaultBranch.
//
// A first segment followed by "//" is the remote URL's own scheme (https://...),
// and a segment holding '@' is the user@host part of an scp-style remote, so
// neither is taken as a branch.
func Parse(conn string) (Identity, error) {
	conn = strings.TrimSuffix(strings.TrimSpace(conn), "/")

	scheme, rest, ok := strings.Cut(conn, ":")
	if !ok || strings.TrimSpace(scheme) == "" {
		return Identity{}, fmt.Errorf("%w: %q has no scheme", ErrInvalidConnection, conn)
	}

	id := Identity{RemoteURL: rest, Branch: DefaultBranch}
	if segment, tail, found := strings.Cut(rest, ":"); found && isBranchSegment(segment, tail) {
		id.RemoteURL = tail
		if segment != "" {
			id.Branch = segment
		}
	}

	if err := id.Validate(); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidConnection, err)
	}

	return id, nil
}

func isBranchSegment(segment, tail string) bool {
	if strings.HasPrefix(tail, "//") {
		return false
	}
	return !strings.Contains(segment, "@")
}

// Validate checks that the identity names a remote and a usable branch.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.RemoteURL) == "" {
		return errEmptyRemote
	}
	return ValidateBranch(i.Branch)
}

// ValidateBranch rejects names git would refuse as a local branch ref.
func ValidateBranch(branch string) error {
	switch {
	case branch == "":
		return errors.New("branch cannot be empty")
	case strings.HasPrefix(branch, "-"):
		return fmt.Errorf("branch %q cannot start with '-'", branch)
	case strings.HasPrefix(branch, "/"), strings.HasSuffix(branch, "/"):
		return fmt.Errorf("branch %q cannot start or end with '/'", branch)
	case strings.HasSuffix(branch, ".lock"), strings.HasSuffix(branch, "."):
		return fmt.Errorf("branch %q has an invalid suffix", branch)
	case disallowedBranchChars.MatchString(branch):
		return fmt.Errorf("branch %q contains characters not allowed in a ref", branch)
	}
	return nil
}

// AuthEnv returns git environment variables that authenticate HTTPS requests
// to the remote's host with token, without writing it to any config file.
// It returns nil wherever AuthenticatedURL would leave the URL unchanged.
func (i Identity) AuthEnv(token string) []string {
	parsed, ok := i.tokenTarget(token)
	if !ok {
		return nil
	}

	credential := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + strings.TrimSpace(token)))
	return []string{
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=http." + parsed.Scheme + "://" + parsed.Host + "/.extraheader",
		"GIT_CONFIG_VALUE_0=AUTHORIZATION: basic " + credential,
	}
}

// AuthenticatedURL returns the remote URL with token embedded in the
// x-access-token form for HTTPS remotes. Other remotes, and remotes that
// already carry credentials, are returned unchanged.
func (i Identity) AuthenticatedURL(token string) string {
	parsed, ok := i.tokenTarget(token)
	if !ok {
		return i.RemoteURL
	}

	parsed.User = url.UserPassword("x-access-token", strings.TrimSpace(token))
	return parsed.String()
}

// tokenTarget parses the remote when token applies to it: a non-empty token
// and an HTTPS remote that carries no credentials of its own.
func (i Identity) tokenTarget(token string) (*url.URL, bool) {
	if strings.TrimSpace(token) == "" {
		return nil, false
	}
	parsed, err := url.Parse(i.RemoteURL)
	if err != nil || parsed.Scheme != "https" || parsed.Host == "" || parsed.User != nil {
		return nil, false
	}
	return parsed, true
}
