// Package source fetches a fresh working copy of the project repository.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bgdnvk/deploytool/internal/runner"
	"go.uber.org/zap"
)

// RepoName derives the repository name from the final path segment of a
// clone URL, without any trailing slash or ".git" suffix.
func RepoName(repoURL string) (string, error) {
	u := strings.TrimRight(strings.TrimSpace(repoURL), "/")
	if i := strings.LastIndexAny(u, "/:"); i >= 0 {
		u = u[i+1:]
	}
	u = strings.TrimSuffix(u, ".git")
	if u == "" || u == "." || u == ".." {
		return "", fmt.Errorf("cannot derive repository name from %q", repoURL)
	}
	return u, nil
}

// Fetcher clones repositories into a deterministic folder under WorkDir.
type Fetcher struct {
	Runner  runner.Runner
	WorkDir string
	Prefix  string
	Out     io.Writer
	Logger  *zap.Logger
}

// NewFetcher creates a Fetcher. prefix is prepended to the repository name to
// form the clone folder ("cloned-" gives "cloned-<repo>").
func NewFetcher(r runner.Runner, workDir, prefix string, out io.Writer, logger *zap.Logger) *Fetcher {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{Runner: r, WorkDir: workDir, Prefix: prefix, Out: out, Logger: logger}
}

// Dir returns the clone folder for repoName.
func (f *Fetcher) Dir(repoName string) string {
	return filepath.Join(f.WorkDir, f.Prefix+repoName)
}

// Fetch replaces any previous clone of repoURL with a fresh one and returns
// the local path plus the unsanitized repository name.
func (f *Fetcher) Fetch(ctx context.Context, repoURL string) (string, string, error) {
	name, err := RepoName(repoURL)
	if err != nil {
		return "", "", err
	}
	dir := f.Dir(name)

	if _, err := os.Lstat(dir); err == nil {
		fmt.Fprintf(f.Out, "[source] removing existing folder %s before cloning\n", dir)
		if err := RemoveTree(dir); err != nil {
			return "", "", err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", "", fmt.Errorf("failed to inspect %s: %w", dir, err)
	}

	fmt.Fprintf(f.Out, "[source] cloning %s ...\n", repoURL)
	f.Logger.Info("cloning repository", zap.String("url", repoURL), zap.String("dir", dir))
	if _, err := f.Runner.Run(ctx, runner.Command{
		Name: "git",
		Args: []string{"clone", repoURL, dir},
	}); err != nil {
		return "", "", fmt.Errorf("git clone failed: %w", err)
	}

	return dir, name, nil
}

// RemoveTree deletes path recursively, first granting owner write permission
// on every entry so read-only files (git pack files, for one) do not block it.
func RemoveTree(path string) error {
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		mode := info.Mode().Perm() | 0o200
		if d.IsDir() {
			mode |= 0o100
		}
		_ = os.Chmod(p, mode)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to prepare %s for removal: %w", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
