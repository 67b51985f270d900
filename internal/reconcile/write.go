package reconcile

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/otiai10/copy"
)

// stagingPattern names the temporary files and directories writes are
// assembled in before they are moved into place.
const stagingPattern = ".gitwagon-staging-*"

// Path resolves a workspace-relative file path. The result always stays
// inside the working directory, even for paths containing ".." or symlinks.
func (e *Engine) Path(rel string) (string, error) {
	return e.resolve(rel, false)
}

// resolve confines rel to the working directory. The directory itself is only
// accepted when allowRoot is set; repository metadata never is.
func (e *Engine) resolve(rel string, allowRoot bool) (string, error) {
	joined, err := securejoin.SecureJoin(e.dir, filepath.FromSlash(strings.TrimSpace(rel)))
	if err != nil {
		return "", fmt.Errorf("resolve artifact path %q: %w", rel, err)
	}

	inside, err := filepath.Rel(e.dir, joined)
	if err != nil {
		return "", fmt.Errorf("resolve artifact path %q: %w", rel, err)
	}
	if inside == "." {
		if allowRoot {
			return joined, nil
		}
		return "", fmt.Errorf("artifact path %q does not name a file", rel)
	}
	if strings.Split(inside, string(filepath.Separator))[0] == ".git" {
		return "", fmt.Errorf("artifact path %q points into repository metadata", rel)
	}
	return joined, nil
}

// PutFile copies the file at source into the workspace at dest.
func (e *Engine) PutFile(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open %s: %w", source, err)
	}
	defer in.Close()

	return e.WriteFile(dest, in)
}

// WriteFile stores the contents of r in the workspace at dest, creating
// parent directories as needed. The file only appears once r has been read
// completely; a failed write leaves any previous version in place.
func (e *Engine) WriteFile(dest string, r io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, err := e.Path(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", dest, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), stagingPattern)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("move %s into place: %w", dest, err)
	}
	committed = true

	e.dirty = true
	e.log.Debug("wrote artifact", "path", dest)
	return nil
}

// PutDirectory copies the tree at sourceDir into the workspace at dest; an
// empty dest or "." names the workspace root. The tree is copied into a
// staging directory first, so a failed copy leaves the workspace untouched.
// Nested .git directories and symlinks are skipped.
func (e *Engine) PutDirectory(sourceDir, dest string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", sourceDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", sourceDir)
	}

	target, err := e.resolve(dest, true)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}
	staging, err := os.MkdirTemp(e.dir, stagingPattern)
	if err != nil {
		return fmt.Errorf("stage %s: %w", sourceDir, err)
	}
	defer os.RemoveAll(staging)

	opts := copy.Options{
		OnSymlink: func(src string) copy.SymlinkAction {
			displayPath, err := filepath.Rel(sourceDir, src)
			if err != nil {
				displayPath = src
			}
			e.log.Warn("ignoring symlink", "path", displayPath)
			return copy.Skip
		},
	}
	if err := copy.Copy(sourceDir, staging, opts); err != nil {
		return fmt.Errorf("copy %s to %s: %w", sourceDir, dest, err)
	}
	if err := pruneRepositories(staging); err != nil {
		return fmt.Errorf("copy %s to %s: %w", sourceDir, dest, err)
	}
	if err := mergeTree(staging, target); err != nil {
		return fmt.Errorf("copy %s to %s: %w", sourceDir, dest, err)
	}

	e.dirty = true
	e.log.Debug("wrote directory", "path", dest)
	return nil
}

// pruneRepositories removes .git entries copied along with a tree, so a
// nested checkout never ends up as repository metadata inside the workspace.
func pruneRepositories(root string) error {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Name() == ".git" {
			found = append(found, path)
			if d.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, path := range found {
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	return nil
}

// mergeTree moves every file below staging to the same relative path below
// target, replacing files that already exist there.
func mergeTree(staging, target string) error {
	return filepath.WalkDir(staging, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(staging, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(target, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		return os.Rename(path, dst)
	})
}
