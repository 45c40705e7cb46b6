package sandbox

import "errors"

// Sentinel errors for the sandbox package. Sentinels let callers match with
// errors.Is instead of parsing error strings.
var (
	// ErrDetachedHEAD is returned when a worktree operation requires a named
	// branch but the repository is in detached HEAD state.
	ErrDetachedHEAD = errors.New("detached HEAD: worktree requires a named branch")

	// ErrDetachedSelfHealFailed is returned when automatic recovery from a
	// detached HEAD state fails.
	ErrDetachedSelfHealFailed = errors.New("detached HEAD self-heal failed")

	// ErrNotGitRepo is returned when a command is run outside a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrResolveHEAD is returned when HEAD commit cannot be resolved.
	ErrResolveHEAD = errors.New("unable to resolve HEAD commit for worktree creation")

	// ErrWorktreeCollision is returned after repeated failed attempts to
	// create a unique worktree path.
	ErrWorktreeCollision = errors.New("could not find a free worktree path after repeated attempts")

	// ErrMergeSourceUnavailable is returned when neither worktree path nor
	// run ID is available for a merge operation.
	ErrMergeSourceUnavailable = errors.New("merge source unavailable: missing worktree path and run ID")

	// ErrRepoUnclean is returned when the origin repository still has
	// uncommitted changes after repeated retries.
	ErrRepoUnclean = errors.New("repo has uncommitted changes after retries: commit or stash before merge")

	// ErrEmptyMergeSource is returned when the worktree merge source commit
	// resolves to an empty string.
	ErrEmptyMergeSource = errors.New("worktree merge source commit is empty")

	// ErrSandboxCreation wraps failures to establish a working tree. Fatal
	// for the Watcher invocation that requested the sandbox.
	ErrSandboxCreation = errors.New("sandbox creation failed")

	// ErrSandboxCleanup wraps failures to tear down a working tree. Never
	// fatal; a leaked branch or directory is logged and tolerated.
	ErrSandboxCleanup = errors.New("sandbox cleanup failed")

	// ErrSandboxNotFound is returned when releasing or looking up a handle
	// the registry does not know about.
	ErrSandboxNotFound = errors.New("sandbox handle not found in registry")

	// ErrSandboxAlreadyReleased is returned by a second release of the same
	// handle; release is idempotent, this is informational only and is not
	// itself treated as an error by callers that ignore it.
	ErrSandboxAlreadyReleased = errors.New("sandbox already released")

	// ErrInvalidBranchName is returned when a branch name fails the safety
	// pattern used to key the on-disk registry.
	ErrInvalidBranchName = errors.New("invalid branch name for sandbox registry")

	// ErrCircuitOpen is returned when the worktree-creation circuit breaker
	// is open due to repeated recent failures.
	ErrCircuitOpen = errors.New("sandbox provider circuit open: too many recent creation failures")
)
