// Package git inspects worktrees so the CLI can describe a relocation
// target. The engine itself never runs git.
package git

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/grovetools/relay/command"
	"github.com/grovetools/relay/pkg/models"
)

// WorktreeInfo is one entry of `git worktree list --porcelain`.
type WorktreeInfo struct {
	Path   string
	Branch string
	Head   string
	Bare   bool
}

// Inspector runs git through an Executor.
type Inspector struct {
	exec command.Executor
}

// NewInspector returns an inspector using exec, or the real executor when
// exec is nil.
func NewInspector(exec command.Executor) *Inspector {
	if exec == nil {
		exec = &command.RealExecutor{}
	}
	return &Inspector{exec: exec}
}

func (i *Inspector) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := i.exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Root returns the top level of the worktree containing dir.
func (i *Inspector) Root(ctx context.Context, dir string) (string, error) {
	return i.output(ctx, dir, "rev-parse", "--show-toplevel")
}

// Branch returns the checked out branch, or "HEAD" when detached.
func (i *Inspector) Branch(ctx context.Context, dir string) (string, error) {
	return i.output(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// RepoPath returns the main checkout that owns the worktree containing dir.
func (i *Inspector) RepoPath(ctx context.Context, dir string) (string, error) {
	common, err := i.output(ctx, dir, "rev-parse", "--path-format=absolute", "--git-common-dir")
	if err != nil {
		return "", err
	}
	if filepath.Base(common) == ".git" {
		return filepath.Dir(common), nil
	}
	return common, nil
}

// Describe builds the worktree context for dir. A detached HEAD leaves the
// branch empty.
func (i *Inspector) Describe(ctx context.Context, dir string) (models.WorktreeContext, error) {
	root, err := i.Root(ctx, dir)
	if err != nil {
		return models.WorktreeContext{}, err
	}
	wt := models.WorktreeContext{Cwd: root}
	if branch, err := i.Branch(ctx, root); err == nil && branch != "HEAD" {
		wt.Branch = branch
	}
	if repo, err := i.RepoPath(ctx, root); err == nil {
		wt.RepoPath = repo
	}
	return wt, nil
}

// List returns the worktrees of the repository containing dir.
func (i *Inspector) List(ctx context.Context, dir string) ([]WorktreeInfo, error) {
	out, err := i.output(ctx, dir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(out), nil
}

// Find returns the worktree of the repository at dir that has branch
// checked out.
func (i *Inspector) Find(ctx context.Context, dir, branch string) (*WorktreeInfo, error) {
	if err := command.ValidateGitRef(branch); err != nil {
		return nil, err
	}
	worktrees, err := i.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	for _, wt := range worktrees {
		if wt.Branch == branch {
			return &wt, nil
		}
	}
	return nil, fmt.Errorf("no worktree has branch %s checked out", branch)
}

func parseWorktreeList(output string) []WorktreeInfo {
	var worktrees []WorktreeInfo
	var current *WorktreeInfo
	for _, line := range strings.Split(output, "\n") {
		key, value, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch key {
		case "worktree":
			if current != nil {
				worktrees = append(worktrees, *current)
			}
			current = &WorktreeInfo{Path: value}
		case "HEAD":
			if current != nil {
				current.Head = value
			}
		case "branch":
			if current != nil {
				current.Branch = strings.TrimPrefix(value, "refs/heads/")
			}
		case "bare":
			if current != nil {
				current.Bare = true
			}
		}
	}
	if current != nil {
		worktrees = append(worktrees, *current)
	}
	return worktrees
}
