package team

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PhaseState is the orchestrator's crash-recovery checkpoint, saved to
// <sandbox>/.cruise/phase-state.json after each completed PingPong (or
// GitHub-mode) review round. The orchestrator fills the sandbox, branch,
// phase, review domain, activity and round fields; it does not write the
// PR, backoff or pending-comment fields, and it does not resume from a
// saved checkpoint.
type PhaseState struct {
	SandboxPath         string   `json:"sandbox_path"`
	BranchName          string   `json:"branch_name"`
	PRURL               string   `json:"pr_url,omitempty"`
	PRNumber            int      `json:"pr_number,omitempty"`
	Phase               string   `json:"phase"` // "planning" | "building" | "validating"
	CurrentReviewDomain string   `json:"current_review_domain,omitempty"`
	LastActivity        string   `json:"last_activity"` // ISO 8601
	BackoffIntervalSecs int      `json:"backoff_interval_secs"`
	PendingCommentIDs   []uint64 `json:"pending_comment_ids"`
	CompletedRounds     int      `json:"completed_rounds"`
}

// CommentInfo is one PR review comment awaiting fixer action.
type CommentInfo struct {
	ID        uint64 `json:"id"`
	Body      string `json:"body"`
	Path      string `json:"path,omitempty"`
	Line      int    `json:"line,omitempty"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

// StateFilePath returns the checkpoint path inside a sandbox.
func StateFilePath(sandboxPath string) string {
	return filepath.Join(sandboxPath, ".cruise", "phase-state.json")
}

// Save writes the checkpoint, creating the .cruise directory as needed.
func (s *PhaseState) Save(sandboxPath string) error {
	path := StateFilePath(sandboxPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal phase state: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write phase state: %w", err)
	}
	return nil
}

// LoadPhaseState reads a sandbox's checkpoint. A missing file returns
// os.ErrNotExist via the wrapped error.
func LoadPhaseState(sandboxPath string) (*PhaseState, error) {
	data, err := os.ReadFile(StateFilePath(sandboxPath))
	if err != nil {
		return nil, fmt.Errorf("read phase state: %w", err)
	}
	var state PhaseState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse phase state: %w", err)
	}
	return &state, nil
}
