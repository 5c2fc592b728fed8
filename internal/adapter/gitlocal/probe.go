// Package gitlocal implements the workspace.Probe port using os.Stat and
// local git CLI commands.
package gitlocal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/waypointhq/waypoint/internal/git"
	"github.com/waypointhq/waypoint/internal/port/workspace"
)

// Probe answers workspace questions against the local filesystem and git CLI.
type Probe struct {
	pool *git.Pool
}

var _ workspace.Probe = (*Probe)(nil)

// NewProbe creates a Probe that limits concurrent git operations via pool.
func NewProbe(pool *git.Pool) *Probe {
	return &Probe{pool: pool}
}

// DirectoryExists reports whether path exists and is a directory.
func (p *Probe) DirectoryExists(_ context.Context, path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// BranchExists reports whether branch exists in the repository at repoPath.
// Any git failure (not a repo, git missing) counts as the branch not existing.
func (p *Probe) BranchExists(ctx context.Context, repoPath, branch string) bool {
	if branch == "" {
		return false
	}
	var ok bool
	_ = p.pool.Run(ctx, func() error {
		ref := "refs/heads/" + branch
		_, err := runGit(ctx, repoPath, "show-ref", "--verify", "--quiet", ref)
		ok = err == nil
		return nil
	})
	return ok
}

// FileExists reports whether relPath exists under repoPath as a regular file.
// Paths escaping the repository root are rejected.
func (p *Probe) FileExists(_ context.Context, repoPath, relPath string) bool {
	joined := filepath.Join(repoPath, relPath)
	rel, err := filepath.Rel(repoPath, joined)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	info, err := os.Stat(joined)
	return err == nil && info.Mode().IsRegular()
}

// runGit executes a git command in the given directory.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}
