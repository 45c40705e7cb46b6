package sandbox

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	runGitT(t, dir, "init")
	runGitT(t, dir, "config", "user.email", "test@example.com")
	runGitT(t, dir, "config", "user.name", "Test")

	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("# test\n"), 0644); err != nil {
		t.Fatal(err)
	}
	runGitT(t, dir, "add", "README.md")
	runGitT(t, dir, "commit", "-m", "initial")
	return dir
}

func runGitT(t *testing.T, cwd string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = cwd
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, string(out))
	}
}

func TestGenerateRunID_UniqueAndShort(t *testing.T) {
	a := GenerateRunID()
	b := GenerateRunID()
	if a == b {
		t.Fatalf("expected distinct run ids, got %q twice", a)
	}
	if len(a) != 12 {
		t.Fatalf("expected 12-char run id, got %q (%d)", a, len(a))
	}
}

func TestGetCurrentBranch_DetachedHEAD(t *testing.T) {
	repo := initGitRepo(t)
	sha := strings.TrimSpace(runGitOutputT(t, repo, "rev-parse", "HEAD"))
	runGitT(t, repo, "checkout", sha)

	_, err := GetCurrentBranch(repo, 10*time.Second)
	if err != ErrDetachedHEAD {
		t.Fatalf("expected ErrDetachedHEAD, got %v", err)
	}
}

func runGitOutputT(t *testing.T, cwd string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git %s output failed: %v", strings.Join(args, " "), err)
	}
	return string(out)
}

func TestEnsureAttachedBranch_HealsDetachedHEAD(t *testing.T) {
	repo := initGitRepo(t)
	sha := strings.TrimSpace(runGitOutputT(t, repo, "rev-parse", "HEAD"))
	runGitT(t, repo, "checkout", sha)

	branch, healed, err := EnsureAttachedBranch(repo, 10*time.Second, "cruise/auto", nil)
	if err != nil {
		t.Fatalf("EnsureAttachedBranch: %v", err)
	}
	if !healed {
		t.Fatal("expected detached HEAD to be healed")
	}
	if branch != "cruise/auto-recovery" {
		t.Fatalf("unexpected healed branch: %q", branch)
	}
}

func TestEnsureAttachedBranch_NoopOnNamedBranch(t *testing.T) {
	repo := initGitRepo(t)

	current, err := GetCurrentBranch(repo, 10*time.Second)
	if err != nil {
		t.Fatalf("GetCurrentBranch: %v", err)
	}

	branch, healed, err := EnsureAttachedBranch(repo, 10*time.Second, "cruise/auto", nil)
	if err != nil {
		t.Fatalf("EnsureAttachedBranch: %v", err)
	}
	if healed {
		t.Fatal("expected no heal on a named branch")
	}
	if branch != current {
		t.Fatalf("expected %q unchanged, got %q", current, branch)
	}
}

func TestCreateAndRemoveWorktree(t *testing.T) {
	repo := initGitRepo(t)

	path, runID, err := CreateWorktree(repo, 10*time.Second, nil)
	if err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected worktree directory to exist: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run id")
	}

	if err := RemoveWorktree(repo, path, runID, 10*time.Second); err != nil {
		t.Fatalf("RemoveWorktree: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected worktree directory removed, stat err=%v", err)
	}
}

func TestCreateWorktree_RecordsAndDropsLease(t *testing.T) {
	repo := initGitRepo(t)

	path, runID, err := CreateWorktree(repo, 10*time.Second, nil)
	if err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}

	leased, ok := lookupLease(repo, runID, 10*time.Second)
	if !ok {
		t.Fatal("expected a lease record for the new worktree")
	}
	if leased != path {
		t.Fatalf("lease points at %q, worktree is %q", leased, path)
	}

	if err := RemoveWorktree(repo, path, runID, 10*time.Second); err != nil {
		t.Fatalf("RemoveWorktree: %v", err)
	}
	if _, ok := lookupLease(repo, runID, 10*time.Second); ok {
		t.Fatal("expected the lease to be dropped after removal")
	}
}

func TestRemoveWorktree_RefusesUnexpectedPath(t *testing.T) {
	repo := initGitRepo(t)
	rogue := t.TempDir()

	err := RemoveWorktree(repo, rogue, "deadbeef0000", 10*time.Second)
	if err == nil {
		t.Fatal("expected refusal to remove a path outside the expected pattern")
	}
}

func TestMergeWorktree_LandsChanges(t *testing.T) {
	repo := initGitRepo(t)

	path, runID, err := CreateWorktree(repo, 10*time.Second, nil)
	if err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}

	newFile := filepath.Join(path, "feature.txt")
	if err := os.WriteFile(newFile, []byte("work done"), 0644); err != nil {
		t.Fatal(err)
	}
	runGitT(t, path, "add", "feature.txt")
	runGitT(t, path, "commit", "-m", "add feature")

	if err := MergeWorktree(repo, path, runID, 10*time.Second, nil); err != nil {
		t.Fatalf("MergeWorktree: %v", err)
	}

	if _, err := os.Stat(filepath.Join(repo, "feature.txt")); err != nil {
		t.Fatalf("expected merged file in origin repo: %v", err)
	}

	_ = RemoveWorktree(repo, path, runID, 10*time.Second)
}
