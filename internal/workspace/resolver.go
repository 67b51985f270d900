package workspace

import (
	"crypto/sha1" //nolint:gosec // names cache directories, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const dirPrefix = "gitwagon-"

// ErrUnavailable reports a working directory that cannot be created or written.
var ErrUnavailable = errors.New("workspace unavailable")

// Resolver maps remote URLs to stable working directories under BaseDir, so
// repeated sessions against the same remote reuse a warm checkout.
type Resolver struct {
	baseDir string
	digest  func() hash.Hash
}

// NewResolver returns a Resolver naming directories by the SHA-1 of the remote URL.
func NewResolver(baseDir string) *Resolver {
	return &Resolver{baseDir: baseDir, digest: sha1.New}
}

// NewEncodingResolver returns a Resolver naming directories by the
// percent-encoded remote URL. It is the fallback when no digest is wanted.
func NewEncodingResolver(baseDir string) *Resolver {
	return &Resolver{baseDir: baseDir}
}

// BaseDir returns the directory all workspaces are created under.
func (r *Resolver) BaseDir() string {
	return r.baseDir
}

// Segment returns the directory name used for remoteURL.
func (r *Resolver) Segment(remoteURL string) string {
	if r.digest == nil {
		return dirPrefix + url.QueryEscape(remoteURL)
	}
	h := r.digest()
	h.Write([]byte(remoteURL))
	return dirPrefix + hex.EncodeToString(h.Sum(nil))
}

// Resolve returns the working directory for remoteURL, creating it if needed.
// Existing contents are left untouched.
func (r *Resolver) Resolve(remoteURL string) (string, error) {
	if strings.TrimSpace(r.baseDir) == "" {
		return "", fmt.Errorf("%w: base directory is not configured", ErrUnavailable)
	}
	if remoteURL == "" {
		return "", fmt.Errorf("%w: remote url is empty", ErrUnavailable)
	}

	dir := filepath.Join(r.baseDir, r.Segment(remoteURL))
	// Workspaces hold credentials and unpublished artifacts.
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrUnavailable, dir, err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: chmod %s: %v", ErrUnavailable, dir, err)
	}
	if err := checkWritable(dir); err != nil {
		return "", err
	}

	return dir, nil
}

func checkWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrUnavailable, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrUnavailable, dir)
	}

	marker, err := os.CreateTemp(dir, ".gitwagon-writable-*")
	if err != nil {
		return fmt.Errorf("%w: %s is not writable: %v", ErrUnavailable, dir, err)
	}
	name := marker.Name()
	_ = marker.Close()
	return os.Remove(name)
}

// Clean removes everything inside dir but keeps dir itself.
func Clean(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read workspace %s: %w", dir, err)
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("clean workspace %s: %w", dir, err)
		}
	}
	return nil
}
