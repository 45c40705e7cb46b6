package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/agentops/cruise/internal/team"
)

// GHPRHost implements team.PRHost by shelling out to the gh(1) CLI.
// Machine-readable output always goes through gh's --json flags rather
// than screen-scraping the human output.
type GHPRHost struct {
	Timeout time.Duration
}

// NewGHPRHost returns a GHPRHost with a 30s per-command timeout.
func NewGHPRHost() *GHPRHost {
	return &GHPRHost{Timeout: 30 * time.Second}
}

type ghPRView struct {
	Number         int              `json:"number"`
	URL            string           `json:"url"`
	ReviewDecision string           `json:"reviewDecision"`
	Reviews        []ghReview       `json:"reviews"`
	Comments       []ghReviewComment `json:"comments"`
}

type ghReview struct {
	State string `json:"state"`
	Body  string `json:"body"`
}

type ghReviewComment struct {
	Path string `json:"path"`
	Body string `json:"body"`
}

// EnsurePullRequest returns the open PR number for branch, creating one
// with gh pr create if none exists yet.
func (h *GHPRHost) EnsurePullRequest(ctx context.Context, sandboxPath, branch, title, body string) (int, error) {
	if view, err := h.viewByBranch(ctx, sandboxPath, branch); err == nil {
		return view.Number, nil
	}

	out, err := h.run(ctx, sandboxPath, "pr", "create", "--title", title, "--body", body, "--head", branch)
	if err != nil {
		return 0, fmt.Errorf("%w: gh pr create: %w", ErrPRHostCommand, err)
	}
	return parsePRNumberFromURL(out)
}

// parsePRNumberFromURL extracts the trailing numeric PR id from a PR URL.
// A failed parse is an error, not a zero: a zero PR number would silently
// break every subsequent FetchReviewState call.
func parsePRNumberFromURL(out string) (int, error) {
	url := strings.TrimSpace(out)
	parts := strings.Split(url, "/")
	last := parts[len(parts)-1]
	number, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("%w: could not parse PR number from %q: %w", ErrPRHostCommand, url, err)
	}
	return number, nil
}

// FetchReviewState returns the current review decision for prNumber.
func (h *GHPRHost) FetchReviewState(ctx context.Context, prNumber int) (team.PRReviewState, error) {
	out, err := h.run(ctx, "", "pr", "view", fmt.Sprintf("%d", prNumber), "--json", "reviewDecision,reviews,comments")
	if err != nil {
		return team.PRReviewState{}, fmt.Errorf("%w: gh pr view: %w", ErrPRHostCommand, err)
	}

	var view ghPRView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		return team.PRReviewState{}, fmt.Errorf("%w: parsing gh pr view output: %w", ErrPRHostCommand, err)
	}

	state := team.PRReviewState{Decision: view.ReviewDecision}
	switch view.ReviewDecision {
	case "APPROVED", "CHANGES_REQUESTED":
		state.Outstanding = false
	default:
		state.Outstanding = true
	}

	for _, c := range view.Comments {
		if c.Body == "" {
			continue
		}
		state.Comments = append(state.Comments, team.Suggestion{File: c.Path, Issue: "reviewer comment", Suggestion: c.Body})
	}
	for _, r := range view.Reviews {
		if r.State == "CHANGES_REQUESTED" && r.Body != "" {
			state.Comments = append(state.Comments, team.Suggestion{Issue: "reviewer requested changes", Suggestion: r.Body})
		}
	}
	return state, nil
}

func (h *GHPRHost) viewByBranch(ctx context.Context, sandboxPath, branch string) (ghPRView, error) {
	out, err := h.run(ctx, sandboxPath, "pr", "view", branch, "--json", "number,url")
	if err != nil {
		return ghPRView{}, fmt.Errorf("%w: %w", ErrPRNotFound, err)
	}
	var view ghPRView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		return ghPRView{}, fmt.Errorf("%w: parsing gh pr view output: %w", ErrPRHostCommand, err)
	}
	return view, nil
}

// PRState is a pull request's lifecycle state as reported by the host.
type PRState struct {
	State          string `json:"state"` // OPEN | MERGED | CLOSED
	ReviewDecision string `json:"reviewDecision"`
}

// ViewPR returns prURL's lifecycle state.
func (h *GHPRHost) ViewPR(ctx context.Context, prURL string) (PRState, error) {
	out, err := h.run(ctx, "", "pr", "view", prURL, "--json", "state,reviewDecision")
	if err != nil {
		return PRState{}, fmt.Errorf("%w: gh pr view: %w", ErrPRHostCommand, err)
	}
	var state PRState
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		return PRState{}, fmt.Errorf("%w: parsing gh pr view output: %w", ErrPRHostCommand, err)
	}
	return state, nil
}

// ReviewPR submits a review verdict ("approve" or "request-changes") on
// prURL with an optional body.
func (h *GHPRHost) ReviewPR(ctx context.Context, prURL, verdict, body string) error {
	args := []string{"pr", "review", prURL, "--" + verdict}
	if body != "" {
		args = append(args, "--body", body)
	}
	if _, err := h.run(ctx, "", args...); err != nil {
		return fmt.Errorf("%w: gh pr review: %w", ErrPRHostCommand, err)
	}
	return nil
}

// MergePR merges prURL with the given strategy ("merge", "squash",
// "rebase").
func (h *GHPRHost) MergePR(ctx context.Context, prURL, strategy string) error {
	if _, err := h.run(ctx, "", "pr", "merge", prURL, "--"+strategy); err != nil {
		return fmt.Errorf("%w: gh pr merge: %w", ErrPRHostCommand, err)
	}
	return nil
}

// CommentPR posts body as a top-level comment on prNumber.
func (h *GHPRHost) CommentPR(ctx context.Context, prNumber int, body string) error {
	if _, err := h.run(ctx, "", "pr", "comment", strconv.Itoa(prNumber), "--body", body); err != nil {
		return fmt.Errorf("%w: gh pr comment: %w", ErrPRHostCommand, err)
	}
	return nil
}

// ReviewComment is one inline review comment on a PR.
type ReviewComment struct {
	ID   uint64 `json:"id"`
	Path string `json:"path"`
	Line int    `json:"line"`
	Body string `json:"body"`
}

// ListReviewComments returns prNumber's inline review comments via the
// host API, since gh pr view does not expose line-level comments.
func (h *GHPRHost) ListReviewComments(ctx context.Context, prNumber int) ([]ReviewComment, error) {
	out, err := h.run(ctx, "", "api", fmt.Sprintf("repos/{owner}/{repo}/pulls/%d/comments", prNumber))
	if err != nil {
		return nil, fmt.Errorf("%w: gh api pulls comments: %w", ErrPRHostCommand, err)
	}
	var comments []ReviewComment
	if err := json.Unmarshal([]byte(out), &comments); err != nil {
		return nil, fmt.Errorf("%w: parsing review comments: %w", ErrPRHostCommand, err)
	}
	return comments, nil
}

func (h *GHPRHost) run(ctx context.Context, dir string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "gh", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}
