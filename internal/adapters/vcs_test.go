package adapters

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initVCSRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runVCSGitT(t, dir, "init")
	runVCSGitT(t, dir, "config", "user.email", "test@example.com")
	runVCSGitT(t, dir, "config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	runVCSGitT(t, dir, "add", "-A")
	runVCSGitT(t, dir, "commit", "-m", "init")
	return dir
}

func runVCSGitT(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func TestVCS_CommitIsIdempotentOnCleanTree(t *testing.T) {
	dir := initVCSRepo(t)
	v := NewVCS()

	hash, err := v.Commit(dir, "no-op commit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != "" {
		t.Fatalf("expected empty hash on clean tree, got %q", hash)
	}
}

func TestVCS_CommitStagesAndCommits(t *testing.T) {
	dir := initVCSRepo(t)
	v := NewVCS()

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("content\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	hash, err := v.Commit(dir, "add new file")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty commit hash")
	}

	diff, err := v.Diff(dir)
	if err != nil {
		t.Fatalf("unexpected diff error: %v", err)
	}
	if diff != "" {
		t.Fatalf("expected empty diff right after commit, got %q", diff)
	}
}

func TestVCS_CurrentBranch(t *testing.T) {
	dir := initVCSRepo(t)
	v := NewVCS()
	runVCSGitT(t, dir, "checkout", "-b", "feature/x")

	branch, err := v.CurrentBranch(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if branch != "feature/x" {
		t.Fatalf("expected feature/x, got %q", branch)
	}
}

func TestVCS_ResetHardDiscardsLocalChanges(t *testing.T) {
	dir := initVCSRepo(t)
	v := NewVCS()

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("changed\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := v.ResetHard(dir, "HEAD"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "README.md"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(content) != "hello\n" {
		t.Fatalf("expected reset to discard local change, got %q", content)
	}
}

func TestVCS_PushFailsWithoutRemote(t *testing.T) {
	dir := initVCSRepo(t)
	v := NewVCS()

	if err := v.Push(dir, "main"); err == nil {
		t.Fatal("expected push to fail with no configured remote")
	}
}
