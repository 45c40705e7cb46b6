package team

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/agentops/cruise/internal/runner"
)

// ReviewRequest is everything a ReviewProtocol needs to produce a verdict.
type ReviewRequest struct {
	OriginalPrompt string
	Diff           string
	SandboxPath    string
	Iteration      int
	Phase          Phase // empty in Sequential mode
}

// ReviewProtocol obtains a review verdict for one iteration, either by
// running a reviewer agent in-process (Sequential/PingPong) or by mediating
// through a hosted pull request (GitHub mode).
type ReviewProtocol interface {
	Review(ctx context.Context, req ReviewRequest) (ReviewResult, error)
}

// InProcessReview runs the reviewer CLI directly against the sandbox
// working tree and parses its stdout as a review verdict. The reviewer
// only reads, so it gets no sandbox or permission-escalation loop of its
// own.
type InProcessReview struct {
	Reviewer runner.Runner
	Model    string
	Log      *zap.Logger
}

func (r *InProcessReview) Review(ctx context.Context, req ReviewRequest) (ReviewResult, error) {
	prompt := buildReviewPrompt(req.OriginalPrompt, req.Diff, req.Phase)

	events := make(chan runner.Event, 256)
	collected := make(chan string, 1)
	go func() { collected <- collectStdout(events) }()

	_, err := r.Reviewer.Spawn(ctx, runner.SpawnConfig{
		Prompt:     prompt,
		WorkingDir: req.SandboxPath,
		Model:      r.Model,
	}, events)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("run reviewer: %w", err)
	}

	response := <-collected
	review, ok := ParseReviewResponse(response)
	if !ok {
		if r.Log != nil {
			r.Log.Warn("could not parse review response, defaulting to approved", zap.Int("iteration", req.Iteration))
		}
		return ReviewResult{Verdict: Approved, Summary: "Could not parse review response"}, nil
	}
	return review, nil
}

// PRReviewState is a snapshot of a pull request's review status as reported
// by a PRHost.
type PRReviewState struct {
	Decision    string // "APPROVED" | "CHANGES_REQUESTED" | "COMMENTED" | "PENDING"
	Comments    []Suggestion
	Outstanding bool // true while no terminal decision has been reached
}

// PRHost is the narrow interface PrMediatedReview needs from a pull-request
// host. internal/adapters provides a gh(1)-backed implementation.
type PRHost interface {
	EnsurePullRequest(ctx context.Context, sandboxPath, branch, title, body string) (prNumber int, err error)
	FetchReviewState(ctx context.Context, prNumber int) (PRReviewState, error)
}

// PrMediatedReview polls a hosted pull request for a reviewer's verdict,
// backing off exponentially between polls. Used by GitHub coordination
// mode, where review happens out-of-process: a human or a GitHub Action
// posts the review, not an agent cruise spawns directly.
type PrMediatedReview struct {
	Host        PRHost
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	PollTimeout time.Duration
	Title       string
	Log         *zap.Logger
	// Limiter bounds how many PR-mediated reviews run concurrently across
	// all Orchestrators sharing it. nil means unbounded.
	Limiter *semaphore.Weighted
}

// NewReviewerLimiter returns a semaphore sized to Config.MaxConcurrentReviewers,
// shared across every *PrMediatedReview in a process so GitHub-mode runs
// never open more than n pull-request review round trips at once.
func NewReviewerLimiter(n int) *semaphore.Weighted {
	if n <= 0 {
		n = 1
	}
	return semaphore.NewWeighted(int64(n))
}

// NewPrMediatedReview returns a PrMediatedReview with the package's default
// backoff bounds (10s initial, 5m max) and a 30-minute poll timeout.
func NewPrMediatedReview(host PRHost, limiter *semaphore.Weighted, log *zap.Logger) *PrMediatedReview {
	return &PrMediatedReview{
		Host:        host,
		Initial:     10 * time.Second,
		Max:         5 * time.Minute,
		Multiplier:  2.0,
		PollTimeout: 30 * time.Minute,
		Title:       "cruise: automated change",
		Log:         log,
		Limiter:     limiter,
	}
}

func (p *PrMediatedReview) Review(ctx context.Context, req ReviewRequest) (ReviewResult, error) {
	if p.Limiter != nil {
		if err := p.Limiter.Acquire(ctx, 1); err != nil {
			return ReviewResult{}, fmt.Errorf("acquire reviewer slot: %w", err)
		}
		defer p.Limiter.Release(1)
	}

	branch, err := runGitCmd(req.SandboxPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ReviewResult{}, fmt.Errorf("resolve branch for PR review: %w", err)
	}

	prNumber, err := p.Host.EnsurePullRequest(ctx, req.SandboxPath, strings.TrimSpace(branch), p.Title, req.OriginalPrompt)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("ensure pull request: %w", err)
	}

	multiplier := p.Multiplier
	if multiplier == 0 {
		multiplier = 2.0
	}
	backoff := NewBackoffWithMultiplier(p.Initial, p.Max, multiplier)
	deadline := time.Now().Add(p.PollTimeout)

	for {
		state, err := p.Host.FetchReviewState(ctx, prNumber)
		if err != nil {
			return ReviewResult{}, fmt.Errorf("fetch PR review state: %w", err)
		}
		if !state.Outstanding {
			return prStateToResult(state), nil
		}
		if time.Now().After(deadline) {
			return ReviewResult{Verdict: Failed, Summary: "PR review polling timed out"}, nil
		}

		if p.Log != nil {
			p.Log.Info("PR review still pending, backing off", zap.Int("pr", prNumber), zap.Duration("interval", backoff.Current()))
		}
		select {
		case <-ctx.Done():
			return ReviewResult{}, ctx.Err()
		case <-time.After(backoff.Current()):
		}
		backoff.Next()
	}
}

func prStateToResult(state PRReviewState) ReviewResult {
	verdict := Failed
	switch state.Decision {
	case "APPROVED":
		verdict = Approved
	case "CHANGES_REQUESTED":
		verdict = NeedsChanges
	}
	return ReviewResult{Verdict: verdict, Suggestions: state.Comments}
}
