package sandbox

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Sandbox is an isolated working copy an agent runs inside.
type Sandbox interface {
	// Path is the filesystem directory the agent should be launched in.
	Path() string
	// Branch is the git branch checked out (or created) in this sandbox.
	Branch() string
	// RunID identifies the worktree for cleanup and registry bookkeeping.
	RunID() string
	// Manifest is the policy this sandbox was created with.
	Manifest() Manifest
	// Cleanup releases the sandbox's resources. Idempotent.
	Cleanup() error
}

// Provider creates and tears down Sandboxes.
type Provider interface {
	// Create provisions a new sandbox from manifest, checking out branch if
	// non-empty (an empty branch leaves the worktree in detached HEAD).
	Create(manifest Manifest, branch string) (Sandbox, error)
	// Merge merges a completed sandbox's work back into the origin
	// repository's current branch.
	Merge(s Sandbox) error
	// RepoRoot is the origin repository root this provider creates
	// worktrees alongside.
	RepoRoot() string
}

type worktreeSandbox struct {
	path     string
	branch   string
	runID    string
	manifest Manifest
	repoRoot string
	timeout  time.Duration
	log      *zap.Logger
	registry *Registry
	handle   *Handle
}

func (s *worktreeSandbox) Path() string        { return s.path }
func (s *worktreeSandbox) Branch() string      { return s.branch }
func (s *worktreeSandbox) RunID() string       { return s.runID }
func (s *worktreeSandbox) Manifest() Manifest  { return s.manifest }

func (s *worktreeSandbox) Cleanup() error {
	if s.registry != nil && s.handle != nil {
		if err := s.registry.Release(s.handle, "sandbox cleanup"); err != nil && err != ErrSandboxAlreadyReleased && s.log != nil {
			s.log.Warn("registry release failed", zap.Error(err))
		}
	}
	if err := RemoveWorktree(s.repoRoot, s.path, s.runID, s.timeout); err != nil {
		return fmt.Errorf("%w: %v", ErrSandboxCleanup, err)
	}
	return nil
}

// GitWorktreeProvider creates sandboxes as sibling git worktrees of a single
// origin repository. Creation failures trip a circuit breaker so a broken
// repo (corrupted, out of disk) fails fast for the rest of a run
// instead of retrying every spawn.
type GitWorktreeProvider struct {
	repoRoot string
	timeout  time.Duration
	log      *zap.Logger
	breaker  *gobreaker.CircuitBreaker
	registry *Registry
}

// NewGitWorktreeProvider returns a provider rooted at repoRoot. The breaker
// opens after 5 consecutive creation failures and stays open for 30s before
// allowing a single trial request through (gobreaker's half-open state).
func NewGitWorktreeProvider(repoRoot string, timeout time.Duration, log *zap.Logger) *GitWorktreeProvider {
	settings := gobreaker.Settings{
		Name:        "sandbox-worktree-create",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &GitWorktreeProvider{
		repoRoot: repoRoot,
		timeout:  timeout,
		log:      log,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		registry: NewRegistry(repoRoot),
	}
}

// Registry exposes the provider's acquire/release bookkeeping. Its Active
// list holds only the handles this process acquired and has not released;
// state left on disk by an earlier process is not loaded.
func (p *GitWorktreeProvider) Registry() *Registry { return p.registry }

func (p *GitWorktreeProvider) RepoRoot() string { return p.repoRoot }

func (p *GitWorktreeProvider) Create(manifest Manifest, branch string) (Sandbox, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		path, runID, createErr := CreateWorktree(p.repoRoot, p.timeout, p.log)
		if createErr != nil {
			return nil, createErr
		}
		if branch != "" {
			if _, switchErr := runGit(path, p.timeout, "checkout", "-b", branch); switchErr != nil {
				if _, switchErr2 := runGit(path, p.timeout, "checkout", branch); switchErr2 != nil {
					_ = RemoveWorktree(p.repoRoot, path, runID, p.timeout)
					return nil, fmt.Errorf("%w: checkout branch %q: %v", ErrSandboxCreation, branch, switchErr2)
				}
			}
		}
		sb := &worktreeSandbox{
			path:     path,
			branch:   branch,
			runID:    runID,
			manifest: manifest,
			repoRoot: p.repoRoot,
			timeout:  p.timeout,
			log:      p.log,
			registry: p.registry,
		}
		handle, regErr := p.registry.Acquire(sb)
		if regErr != nil {
			if p.log != nil {
				p.log.Warn("sandbox registry acquire failed", zap.Error(regErr))
			}
		} else {
			sb.handle = handle
		}
		return sb, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.(Sandbox), nil
}

func (p *GitWorktreeProvider) Merge(s Sandbox) error {
	ws, ok := s.(*worktreeSandbox)
	if !ok {
		return fmt.Errorf("merge: sandbox not created by GitWorktreeProvider")
	}
	return MergeWorktree(p.repoRoot, ws.path, ws.runID, p.timeout, p.log)
}
