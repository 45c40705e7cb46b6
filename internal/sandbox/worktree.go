package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	recoveryBranchSuffix = "-recovery"
	worktreeDirInfix     = "-cruise-"

	// leaseDirName lives under the repository's git dir, so lease records
	// never show up in git status or get swept into an agent's commit.
	leaseDirName = "cruise-leases"

	// createAttempts bounds retries when a generated worktree path is
	// already taken on disk.
	createAttempts = 4
)

// GenerateRunID creates a short, URL-safe run identifier.
func GenerateRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func logf(log *zap.Logger, msg string, fields ...zap.Field) {
	if log != nil {
		log.Debug(msg, fields...)
	}
}

// runGit runs git in dir and returns its combined output.
func runGit(dir string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("git %s timed out after %s", args[0], timeout)
	}
	return string(out), err
}

// gitLine runs git in dir and returns its first line of stdout, trimmed.
func gitLine(dir string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("git %s timed out after %s", args[0], timeout)
		}
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

// GetCurrentBranch returns the current branch name, or ErrDetachedHEAD.
func GetCurrentBranch(repoRoot string, timeout time.Duration) (string, error) {
	branch, err := gitLine(repoRoot, timeout, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	if branch == "HEAD" {
		return "", ErrDetachedHEAD
	}
	return branch, nil
}

// EnsureAttachedBranch repairs a detached HEAD state when possible by
// pinning the current commit to a recovery branch and switching to it. If
// the recovery branch is checked out in another worktree the repair is
// skipped without error, since the caller can still work detached.
func EnsureAttachedBranch(repoRoot string, timeout time.Duration, branchPrefix string, log *zap.Logger) (branch string, healed bool, err error) {
	branch, err = GetCurrentBranch(repoRoot, timeout)
	if err == nil {
		return branch, false, nil
	}
	if err != ErrDetachedHEAD {
		return "", false, err
	}

	prefix := strings.TrimSpace(branchPrefix)
	if prefix == "" {
		prefix = "cruise/auto"
	}
	recovery := strings.TrimSuffix(prefix, "-") + recoveryBranchSuffix

	for _, step := range [][]string{
		{"branch", "-f", recovery, "HEAD"},
		{"switch", recovery},
	} {
		out, serr := runGit(repoRoot, timeout, step...)
		if serr == nil {
			continue
		}
		if strings.Contains(strings.ToLower(out), "used by worktree") {
			// Recovery branch is live elsewhere; stay detached.
			return "", false, nil
		}
		if msg := strings.TrimSpace(out); msg != "" {
			return "", false, fmt.Errorf("%w: %s", ErrDetachedSelfHealFailed, msg)
		}
		return "", false, ErrDetachedSelfHealFailed
	}

	logf(log, "healed detached HEAD", zap.String("branch", recovery))
	return recovery, true, nil
}

// GetRepoRoot returns the git repository root directory for dir.
func GetRepoRoot(dir string, timeout time.Duration) (string, error) {
	root, err := gitLine(dir, timeout, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", ErrNotGitRepo
	}
	return root, nil
}

// worktreePathFor derives the sandbox worktree location for a run: a
// sibling directory of the origin repository, tagged with the run ID.
func worktreePathFor(repoRoot, runID string) string {
	name := filepath.Base(repoRoot) + worktreeDirInfix + runID
	return filepath.Join(filepath.Dir(repoRoot), name)
}

// leaseDir resolves the repository's lease directory inside its git dir.
func leaseDir(repoRoot string, timeout time.Duration) (string, error) {
	gitDir, err := gitLine(repoRoot, timeout, "rev-parse", "--git-dir")
	if err != nil {
		return "", fmt.Errorf("resolve git dir: %w", err)
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(repoRoot, gitDir)
	}
	return filepath.Join(gitDir, leaseDirName), nil
}

// recordLease writes the worktree path a run ID owns. The lease is the
// removal authority: RemoveWorktree only deletes paths a lease (or the
// strict naming pattern) vouches for.
func recordLease(repoRoot, runID, worktreePath string, timeout time.Duration) error {
	dir, err := leaseDir(repoRoot, timeout)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create lease dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, runID), []byte(worktreePath+"\n"), 0o644)
}

// lookupLease returns the worktree path leased to runID, if any.
func lookupLease(repoRoot, runID string, timeout time.Duration) (string, bool) {
	dir, err := leaseDir(repoRoot, timeout)
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(filepath.Join(dir, runID))
	if err != nil {
		return "", false
	}
	path := strings.TrimSpace(string(data))
	return path, path != ""
}

func dropLease(repoRoot, runID string, timeout time.Duration) {
	if dir, err := leaseDir(repoRoot, timeout); err == nil {
		_ = os.Remove(filepath.Join(dir, runID))
	}
}

// CreateWorktree creates a sibling git worktree for an isolated sandbox
// and leases it to a fresh run ID. Checkouts are detached (no new branch
// is created here; callers that need a named branch check it out inside
// the worktree).
func CreateWorktree(cwd string, timeout time.Duration, log *zap.Logger) (worktreePath, runID string, err error) {
	repoRoot, err := GetRepoRoot(cwd, timeout)
	if err != nil {
		return "", "", err
	}

	head, err := gitLine(repoRoot, timeout, "rev-parse", "HEAD")
	if err != nil || head == "" {
		if err == nil {
			err = ErrResolveHEAD
		}
		return "", "", fmt.Errorf("%w: %v", ErrSandboxCreation, err)
	}

	for attempt := 1; attempt <= createAttempts; attempt++ {
		runID = GenerateRunID()
		worktreePath = worktreePathFor(repoRoot, runID)

		out, addErr := runGit(repoRoot, timeout, "worktree", "add", "--detach", worktreePath, head)
		if addErr == nil {
			if leaseErr := recordLease(repoRoot, runID, worktreePath, timeout); leaseErr != nil {
				logf(log, "could not record sandbox lease", zap.String("run_id", runID), zap.Error(leaseErr))
			}
			return worktreePath, runID, nil
		}
		if !strings.Contains(out, "already exists") {
			return "", "", fmt.Errorf("%w: worktree add: %v: %s", ErrSandboxCreation, addErr, strings.TrimSpace(out))
		}
		logf(log, "worktree path taken, generating a new run id",
			zap.String("path", worktreePath), zap.Int("attempt", attempt))
	}
	return "", "", fmt.Errorf("%w: %v", ErrSandboxCreation, ErrWorktreeCollision)
}

// MergeWorktree lands the sandbox worktree's HEAD commit back onto the
// origin repository's current branch. Additive to plain release, used
// when a caller wants to land work without going through a pull request.
func MergeWorktree(repoRoot, worktreePath, runID string, timeout time.Duration, log *zap.Logger) error {
	if err := awaitCleanTree(repoRoot, timeout, log); err != nil {
		return err
	}

	if strings.TrimSpace(worktreePath) == "" {
		if leased, ok := lookupLease(repoRoot, runID, timeout); ok {
			worktreePath = leased
		} else if strings.TrimSpace(runID) != "" {
			worktreePath = worktreePathFor(repoRoot, runID)
		} else {
			return ErrMergeSourceUnavailable
		}
	}

	source, err := gitLine(worktreePath, timeout, "rev-parse", "HEAD")
	if err != nil {
		return fmt.Errorf("resolve sandbox merge source: %w", err)
	}
	if source == "" {
		return ErrEmptyMergeSource
	}

	message := "[cruise] land sandbox work"
	if strings.TrimSpace(runID) != "" {
		message = fmt.Sprintf("[cruise] land sandbox %s", runID)
	}
	if out, mergeErr := runGit(repoRoot, timeout, "merge", "--no-ff", "-m", message, source); mergeErr != nil {
		return reportMergeFailure(repoRoot, source, out, mergeErr, timeout)
	}
	return nil
}

// awaitCleanTree probes the origin repository for uncommitted tracked
// changes, backing off between probes: an agent or a previous merge may
// still be settling.
func awaitCleanTree(repoRoot string, timeout time.Duration, log *zap.Logger) error {
	wait := 500 * time.Millisecond
	for probe := 1; ; probe++ {
		status, err := runGit(repoRoot, timeout, "status", "--porcelain", "--untracked-files=no")
		if err == nil && strings.TrimSpace(status) == "" {
			return nil
		}
		if probe == 3 {
			return ErrRepoUnclean
		}
		logf(log, "origin repo not clean yet, waiting before merge",
			zap.Int("probe", probe), zap.Duration("wait", wait))
		time.Sleep(wait)
		wait *= 2
	}
}

// reportMergeFailure turns a failed merge into an actionable error: the
// conflicting files when there are any, and always an aborted merge so
// the origin repository is left usable.
func reportMergeFailure(repoRoot, source, mergeOut string, mergeErr error, timeout time.Duration) error {
	conflicts, _ := runGit(repoRoot, timeout, "diff", "--name-only", "--diff-filter=U")
	_, _ = runGit(repoRoot, timeout, "merge", "--abort")

	short := source
	if len(short) > 10 {
		short = short[:10]
	}
	if files := strings.TrimSpace(conflicts); files != "" {
		return fmt.Errorf("sandbox merge of %s conflicts with the origin branch; conflicting files:\n%s\nmerge was aborted, resolve by merging %s manually", short, files, source)
	}
	return fmt.Errorf("sandbox merge of %s failed: %w: %s", short, mergeErr, strings.TrimSpace(mergeOut))
}

// RemoveWorktree deletes a sandbox worktree and its lease. Removal is
// refused unless the target is vouched for, either by the run's lease
// record or by matching the provider's own naming pattern, so a mangled
// path can never delete an unrelated directory. The run's scratch branch
// is deleted on a best-effort basis.
func RemoveWorktree(repoRoot, worktreePath, runID string, timeout time.Duration) error {
	target, err := canonicalPath(worktreePath)
	if err != nil {
		return fmt.Errorf("invalid worktree path: %w", err)
	}
	root, err := canonicalPath(repoRoot)
	if err != nil {
		root = repoRoot
	}

	if strings.TrimSpace(runID) == "" {
		runID = runIDFromPath(root, target)
		if runID == "" {
			return fmt.Errorf("refusing to remove %s: no run id and the path does not look like a sandbox worktree", target)
		}
	}

	authorized := false
	if leased, ok := lookupLease(root, runID, timeout); ok {
		if canonical, cerr := canonicalPath(leased); cerr == nil && canonical == target {
			authorized = true
		}
	}
	if !authorized && target == worktreePathFor(root, runID) {
		authorized = true
	}
	if !authorized {
		return fmt.Errorf("refusing to remove %s: not leased to run %s and outside the sandbox naming pattern", target, runID)
	}

	if _, rmErr := runGit(root, timeout, "worktree", "remove", target, "--force"); rmErr != nil {
		_ = os.RemoveAll(target)
	}
	_, _ = runGit(root, timeout, "worktree", "prune")
	_, _ = runGit(root, timeout, "branch", "-D", "cruise/"+runID)
	dropLease(root, runID, timeout)

	return nil
}

func canonicalPath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	return filepath.Abs(path)
}

func runIDFromPath(repoRoot, worktreePath string) string {
	prefix := filepath.Base(repoRoot) + worktreeDirInfix
	base := filepath.Base(worktreePath)
	if !strings.HasPrefix(base, prefix) {
		return ""
	}
	return strings.TrimPrefix(base, prefix)
}
