// Package adapters wraps the external tools the engine shells out to: git
// for version control, the gh CLI for pull-request hosting, and the bd CLI
// for issue-ledger tracking. Every adapter is a thin os/exec wrapper; none
// of them reimplement a wire protocol.
package adapters

import "errors"

var (
	// ErrVCSCommand wraps a failed git invocation.
	ErrVCSCommand = errors.New("vcs command failed")

	// ErrPRHostCommand wraps a failed gh invocation.
	ErrPRHostCommand = errors.New("pr host command failed")

	// ErrIssueLedgerCommand wraps a failed bd invocation.
	ErrIssueLedgerCommand = errors.New("issue ledger command failed")

	// ErrPRNotFound wraps a failure to find a pull request for a branch.
	// EnsurePullRequest treats it as the cue to create one; a failed
	// creation is reported as ErrPRHostCommand.
	ErrPRNotFound = errors.New("no pull request found for branch")
)
