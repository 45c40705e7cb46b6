package adapters

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// VCS wraps the git(1) operations the engine needs once an agent has
// finished editing a sandbox: committing, pushing, diffing, and (for the
// auto-approve fast path) discarding local state.
type VCS struct {
	Timeout time.Duration
}

// NewVCS returns a VCS with a 30s per-command timeout.
func NewVCS() *VCS {
	return &VCS{Timeout: 30 * time.Second}
}

// Commit stages everything under path and commits with message. It is
// idempotent: a clean working tree is a no-op (empty hash, nil error)
// rather than an error, so callers that may race the agent's own commit
// can call it unconditionally.
func (v *VCS) Commit(path, message string) (string, error) {
	status, err := v.run(path, "status", "--porcelain")
	if err != nil {
		return "", fmt.Errorf("%w: git status: %w", ErrVCSCommand, err)
	}
	if strings.TrimSpace(status) == "" {
		return "", nil
	}

	if _, err := v.run(path, "add", "-A"); err != nil {
		return "", fmt.Errorf("%w: git add: %w", ErrVCSCommand, err)
	}
	if _, err := v.run(path, "commit", "-m", message); err != nil {
		return "", fmt.Errorf("%w: git commit: %w", ErrVCSCommand, err)
	}

	hash, err := v.run(path, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%w: git rev-parse: %w", ErrVCSCommand, err)
	}
	return strings.TrimSpace(hash), nil
}

// Push pushes branch to origin, setting upstream on its first push.
func (v *VCS) Push(path, branch string) error {
	if _, err := v.run(path, "push", "-u", "origin", branch); err != nil {
		return fmt.Errorf("%w: git push: %w", ErrVCSCommand, err)
	}
	return nil
}

// Diff returns the working-tree diff against HEAD.
func (v *VCS) Diff(path string) (string, error) {
	out, err := v.run(path, "diff", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%w: git diff: %w", ErrVCSCommand, err)
	}
	return out, nil
}

// CurrentBranch returns the checked-out branch name.
func (v *VCS) CurrentBranch(path string) (string, error) {
	out, err := v.run(path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%w: git rev-parse --abbrev-ref: %w", ErrVCSCommand, err)
	}
	return strings.TrimSpace(out), nil
}

// ResetHard resets path to ref, discarding all local commits and
// uncommitted changes. Used by the auto-approve fast path before merging;
// callers are responsible for warning operators first, as this adapter
// performs no confirmation of its own.
func (v *VCS) ResetHard(path, ref string) error {
	if _, err := v.run(path, "reset", "--hard", ref); err != nil {
		return fmt.Errorf("%w: git reset --hard %s: %w", ErrVCSCommand, ref, err)
	}
	return nil
}

// Fetch fetches branch from remote.
func (v *VCS) Fetch(path, remote, branch string) error {
	if _, err := v.run(path, "fetch", remote, branch); err != nil {
		return fmt.Errorf("%w: git fetch: %w", ErrVCSCommand, err)
	}
	return nil
}

// Pull pulls branch from remote into the working tree at path.
func (v *VCS) Pull(path, remote, branch string) error {
	if _, err := v.run(path, "pull", remote, branch); err != nil {
		return fmt.Errorf("%w: git pull: %w", ErrVCSCommand, err)
	}
	return nil
}

// DiffRange returns the diff for an explicit revision range, preferring
// HEAD~1..HEAD for "what the last commit changed" and falling back to the
// staged-vs-HEAD diff when the range cannot resolve (first commit).
func (v *VCS) DiffRange(path, revRange string) (string, error) {
	out, err := v.run(path, "diff", revRange)
	if err == nil {
		return out, nil
	}
	staged, ferr := v.run(path, "diff", "--cached", "HEAD")
	if ferr != nil {
		return "", fmt.Errorf("%w: git diff %s: %w", ErrVCSCommand, revRange, err)
	}
	return staged, nil
}

// Status returns porcelain status output; empty means clean.
func (v *VCS) Status(path string) (string, error) {
	out, err := v.run(path, "status", "--porcelain")
	if err != nil {
		return "", fmt.Errorf("%w: git status: %w", ErrVCSCommand, err)
	}
	return out, nil
}

func (v *VCS) run(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), v.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}
