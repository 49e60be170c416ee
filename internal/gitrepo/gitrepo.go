// Package gitrepo detects git metadata for snapshot labelling and clones
// remote repositories into temporary checkouts.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Info describes the git state of a directory. IsGitRepo=false means the
// directory is not inside a work tree; the remaining fields are then empty.
type Info struct {
	IsGitRepo bool
	Root      string
	Name      string
	CommitSHA string
	Branch    string
	RemoteURL string
}

// DefaultCloneTimeout bounds how long a clone may take before the repository
// is treated as unavailable.
const DefaultCloneTimeout = 5 * time.Minute

// Detect retrieves git information for the given directory. If dir is empty,
// the current working directory is used. A directory outside any repository
// yields Info{IsGitRepo: false} without error.
func Detect(ctx context.Context, dir string) (*Info, error) {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return &Info{}, nil
		}
	}

	root, err := runGit(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil || root == "" {
		return &Info{}, nil
	}

	info := &Info{
		IsGitRepo: true,
		Root:      root,
		Name:      filepath.Base(root),
	}

	if sha, err := runGit(ctx, dir, "rev-parse", "HEAD"); err == nil {
		info.CommitSHA = sha
	}
	if branch, err := runGit(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil && branch != "HEAD" {
		info.Branch = branch
	}
	if remote, err := runGit(ctx, dir, "remote", "get-url", "origin"); err == nil {
		info.RemoteURL = remote
		info.Name = nameFromRemote(remote, info.Name)
	}

	return info, nil
}

// Clone checks out url into dest. The operation is bounded by timeout (or
// DefaultCloneTimeout when zero); an unreachable or slow remote surfaces as an
// error rather than hanging.
func Clone(ctx context.Context, url, dest string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultCloneTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", url, dest)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("gitrepo: clone of %s timed out after %s", url, timeout)
		}
		return fmt.Errorf("gitrepo: clone of %s failed: %v: %s", url, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// nameFromRemote derives a repository name from a remote URL, falling back to
// the given default.
func nameFromRemote(remote, fallback string) string {
	remote = strings.TrimSuffix(remote, ".git")
	remote = strings.TrimSuffix(remote, "/")
	idx := strings.LastIndexAny(remote, "/:")
	if idx < 0 || idx == len(remote)-1 {
		return fallback
	}
	return remote[idx+1:]
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stderr = nil

	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}
