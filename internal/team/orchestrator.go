package team

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentops/cruise/internal/observability"
	"github.com/agentops/cruise/internal/runner"
	"github.com/agentops/cruise/internal/sandbox"
	"github.com/agentops/cruise/internal/watcher"
)

// Primary runs the primary coding agent inside a managed sandbox,
// recovering from permission escalations. Satisfied by *watcher.Watcher.
type Primary interface {
	Run(ctx context.Context, cfg watcher.Config, req watcher.SpawnRequest) (watcher.Result, error)
}

// Orchestrator coordinates a primary agent and a review protocol through
// Sequential or PingPong review loops. The review protocol is pluggable:
// New wires InProcessReview for every mode, and a caller that wants
// PR-mediated review assigns a *PrMediatedReview to Review (see review.go).
type Orchestrator struct {
	Config          Config
	Primary         Primary
	PrimaryManifest sandbox.Manifest
	Review          ReviewProtocol
	WatcherConfig   watcher.Config
	Log             *zap.Logger
	// Obs, when set, receives invocation, commit, review, and finding
	// records for the run's audit trail.
	Obs *observability.Log
	// Host, when set, gets a pull request opened on the sandbox branch
	// after the first successful commit, so partial work is reviewable
	// even if the run later times out.
	Host PRHost
}

// New returns an Orchestrator wired to a primary watcher and a reviewer
// runner via InProcessReview. Callers that want PR-mediated review (GitHub
// mode against a real host) should set Review to a *PrMediatedReview after
// construction.
func New(cfg Config, primary Primary, reviewer runner.Runner, watcherCfg watcher.Config, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		Config:          cfg,
		Primary:         primary,
		PrimaryManifest: sandbox.DefaultManifest(),
		Review:          &InProcessReview{Reviewer: reviewer, Model: cfg.ReviewerModel, Log: log},
		WatcherConfig:   watcherCfg,
		Log:             log,
	}
}

// Run executes one spawn-team workflow over an already-provisioned
// sandbox at sandboxPath, on branch (empty leaves the sandboxes the
// primary's provider creates on a detached HEAD).
func (o *Orchestrator) Run(ctx context.Context, prompt, sandboxPath, branch string) (Result, error) {
	switch o.Config.Mode {
	case Sequential, PingPong, GitHubMode:
		// GitHub mode runs the same phase sweep as PingPong; only the
		// ReviewProtocol wired onto o.Review (in-process vs. PR-mediated)
		// differs in how a verdict is obtained each iteration.
		if o.Config.Mode == Sequential {
			return o.runSequential(ctx, prompt, sandboxPath, branch)
		}
		return o.runPingPong(ctx, prompt, sandboxPath, branch)
	default:
		return Result{}, fmt.Errorf("unknown coordination mode %q", o.Config.Mode)
	}
}

func (o *Orchestrator) runSequential(ctx context.Context, prompt, sandboxPath, branch string) (Result, error) {
	st := &runState{}
	iterations := 1

	primaryOK, detail, err := o.runPrimary(ctx, prompt, sandboxPath, branch, iterations, "", st)
	if err != nil {
		return Result{}, err
	}
	if !primaryOK {
		return Result{
			Success:    false,
			Iterations: iterations,
			Summary:    fmt.Sprintf("Primary LLM failed: %s", detail),
		}, nil
	}

	diff, err := getGitDiff(sandboxPath)
	if err != nil {
		return Result{}, err
	}

	review, err := o.runReview(ctx, ReviewRequest{OriginalPrompt: prompt, Diff: diff, SandboxPath: sandboxPath, Iteration: iterations}, st)
	if err != nil {
		return Result{}, err
	}

	reviews := []Review{{Iteration: iterations, Result: review}}
	finalVerdict := review.Verdict

	if review.Verdict == NeedsChanges {
		fixPrompt := buildFixPrompt(prompt, review.Suggestions)
		if _, _, err := o.runPrimary(ctx, fixPrompt, sandboxPath, branch, iterations, "", st); err != nil {
			return Result{}, err
		}
	}

	return o.finalize(iterations, finalVerdict, reviews, st), nil
}

func (o *Orchestrator) runPingPong(ctx context.Context, prompt, sandboxPath, branch string) (Result, error) {
	st := &runState{}
	currentPrompt := prompt
	totalPhases := len(AllPhases())
	phasesToRun := totalPhases
	if o.Config.MaxIterations < phasesToRun {
		phasesToRun = o.Config.MaxIterations
	}

	var reviews []Review
	var finalVerdict Verdict
	iterations := 0

	for i := 1; i <= phasesToRun; i++ {
		iterations = i

		phase := PhaseForIteration(i)
		primaryOK, detail, err := o.runPrimary(ctx, currentPrompt, sandboxPath, branch, i, phase, st)
		if err != nil {
			return Result{}, err
		}
		if !primaryOK {
			return Result{
				Success:    false,
				Iterations: iterations,
				Summary:    fmt.Sprintf("Primary LLM failed on iteration %d: %s", i, detail),
			}, nil
		}

		diff, err := getGitDiff(sandboxPath)
		if err != nil {
			return Result{}, err
		}

		review, err := o.runReview(ctx, ReviewRequest{OriginalPrompt: prompt, Diff: diff, SandboxPath: sandboxPath, Iteration: i, Phase: phase}, st)
		if err != nil {
			return Result{}, err
		}

		finalVerdict = review.Verdict
		reviews = append(reviews, Review{Iteration: i, Phase: phase, Result: review})
		o.checkpoint(sandboxPath, branch, i, phase)

		if review.Verdict == Approved {
			if o.Log != nil {
				o.Log.Info("reviewer approved phase, continuing sweep",
					zap.Int("iteration", i), zap.String("phase", string(phase)))
			}
			if len(review.Suggestions) > 0 {
				currentPrompt = buildFixPrompt(prompt, review.Suggestions)
			}
			continue
		}

		currentPrompt = buildFixPrompt(prompt, review.Suggestions)
		if o.Log != nil {
			o.Log.Info("reviewer requested changes, preparing fix",
				zap.Int("iteration", i), zap.String("phase", string(phase)),
				zap.Int("suggestions", len(review.Suggestions)))
		}
	}

	return o.finalize(iterations, finalVerdict, reviews, st), nil
}

func (o *Orchestrator) finalize(iterations int, finalVerdict Verdict, reviews []Review, st *runState) Result {
	success := finalVerdict == Approved

	var summary string
	switch {
	case success:
		summary = fmt.Sprintf("Spawn-team completed successfully after %d iteration(s)", iterations)
	case iterations >= o.Config.MaxIterations:
		summary = fmt.Sprintf("Spawn-team reached max iterations (%d) without approval", o.Config.MaxIterations)
	default:
		summary = "Spawn-team completed with issues"
	}

	if o.Log != nil {
		o.Log.Info("spawn-team completed", zap.Bool("success", success), zap.Int("iterations", iterations))
	}

	return Result{
		Success:          success,
		Iterations:       iterations,
		FinalVerdict:     finalVerdict,
		Reviews:          reviews,
		Summary:          summary,
		SecurityFindings: st.findings,
	}
}

// runState carries per-run bookkeeping across primary and review passes.
type runState struct {
	prEnsured bool
	findings  []observability.SecurityFinding
}

// checkpoint persists crash-recovery state into the sandbox after each
// completed review round. Failure to write it only warns: the checkpoint
// is a recovery aid, not part of the run's contract.
func (o *Orchestrator) checkpoint(sandboxPath, branch string, completedRounds int, phase Phase) {
	state := &PhaseState{
		SandboxPath:         sandboxPath,
		BranchName:          branch,
		Phase:               "building",
		CurrentReviewDomain: string(phase),
		LastActivity:        time.Now().UTC().Format(time.RFC3339),
		CompletedRounds:     completedRounds,
	}
	if err := state.Save(sandboxPath); err != nil {
		logWarn(o.Log, "failed to persist phase state", err)
	}
}

// runPrimary invokes the primary agent via the Watcher, then commits and
// pushes any resulting changes (observability commit-per-iteration). The
// pull request is opened on the first successful commit, not at the end,
// so a timed-out run still leaves reviewable work behind.
func (o *Orchestrator) runPrimary(ctx context.Context, prompt, sandboxPath, branch string, iteration int, phase Phase, st *runState) (success bool, detail string, err error) {
	agent := o.Config.PrimaryLLM
	if o.Obs != nil {
		o.Obs.InvocationStarted(agent, "primary", iteration, string(phase))
	}

	req := watcher.SpawnRequest{Prompt: prompt, Model: o.Config.PrimaryModel, Manifest: o.PrimaryManifest, Branch: branch}
	result, err := o.Primary.Run(ctx, o.WatcherConfig, req)
	if err != nil {
		if o.Obs != nil {
			o.Obs.InvocationFinished(agent, "primary", iteration, string(phase), false, err.Error())
		}
		return false, "", err
	}

	endDetail := result.Detail
	if result.TerminationReason == watcher.TerminationTimeout {
		endDetail = result.TimeoutReason.String()
	}
	if o.Obs != nil {
		o.Obs.InvocationFinished(agent, "primary", iteration, string(phase), result.Success, endDetail)
	}
	if !result.Success {
		return false, result.Detail, nil
	}

	hash, message, pushed, committed := commitAndPushChanges(sandboxPath, iteration, agent, phase, o.Log)
	if committed {
		if o.Obs != nil {
			o.Obs.CommitRecorded(agent, iteration, hash, message, pushed)
		}
		o.ensurePullRequest(ctx, sandboxPath, st)
	}
	return true, "", nil
}

// ensurePullRequest opens the run's PR if a Host is wired and none has
// been created yet. PR creation failure is non-fatal: the branch is
// already pushed, so the work survives either way.
func (o *Orchestrator) ensurePullRequest(ctx context.Context, sandboxPath string, st *runState) {
	if st.prEnsured || o.Host == nil {
		return
	}
	branch, err := runGitCmd(sandboxPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		logWarn(o.Log, "failed to resolve branch for PR creation", err)
		return
	}
	title := fmt.Sprintf("cruise: %s", strings.TrimSpace(o.Config.PrimaryLLM))
	if _, err := o.Host.EnsurePullRequest(ctx, sandboxPath, strings.TrimSpace(branch), title, "Automated change by cruise spawn-team."); err != nil {
		logWarn(o.Log, "failed to create pull request", err)
		return
	}
	st.prEnsured = true
}

// runReview obtains one review pass and records its verdict. Security-
// phase suggestions are additionally mined for security findings, which
// accumulate on the run's result.
func (o *Orchestrator) runReview(ctx context.Context, req ReviewRequest, st *runState) (ReviewResult, error) {
	if o.Obs != nil {
		o.Obs.InvocationStarted(o.Config.ReviewerLLM, "reviewer", req.Iteration, string(req.Phase))
	}
	review, err := o.Review.Review(ctx, req)
	if o.Obs != nil {
		o.Obs.InvocationFinished(o.Config.ReviewerLLM, "reviewer", req.Iteration, string(req.Phase), err == nil, "")
	}
	if err != nil {
		return ReviewResult{}, err
	}

	if o.Obs != nil {
		o.Obs.ReviewRecorded(req.Iteration, string(req.Phase), string(review.Verdict), len(review.Suggestions))
	}
	if req.Phase == PhaseSecurity {
		for _, s := range review.Suggestions {
			for _, f := range observability.ExtractSecurityFindings(s.Issue + ": " + s.Suggestion) {
				f.File = s.File
				st.findings = append(st.findings, f)
				if o.Obs != nil {
					o.Obs.FindingRecorded(req.Iteration, f)
				}
			}
		}
		for _, f := range observability.ExtractSecurityFindings(review.Summary) {
			st.findings = append(st.findings, f)
			if o.Obs != nil {
				o.Obs.FindingRecorded(req.Iteration, f)
			}
		}
	}
	return review, nil
}

func collectStdout(events chan runner.Event) string {
	var b strings.Builder
	for ev := range events {
		if ev.Kind == runner.Stdout {
			b.WriteString(ev.Line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func buildReviewPrompt(originalPrompt, diff string, phase Phase) string {
	var b strings.Builder
	b.WriteString("Review the following change.\n\nOriginal task:\n")
	b.WriteString(originalPrompt)
	b.WriteString("\n\nDiff:\n")
	b.WriteString(diff)
	if phase != "" {
		b.WriteString("\n\n")
		b.WriteString(phase.Instructions())
	}
	b.WriteString("\n\nRespond with a JSON object: {\"verdict\": \"approved\"|\"needs_changes\", \"suggestions\": [...]}")
	return b.String()
}

func buildFixPrompt(originalPrompt string, suggestions []Suggestion) string {
	if len(suggestions) == 0 {
		return originalPrompt
	}
	var b strings.Builder
	b.WriteString(originalPrompt)
	b.WriteString("\n\nAddress the following review feedback:\n")
	for _, s := range suggestions {
		if s.Line != nil {
			fmt.Fprintf(&b, "- %s:%d %s: %s\n", s.File, *s.Line, s.Issue, s.Suggestion)
		} else {
			fmt.Fprintf(&b, "- %s %s: %s\n", s.File, s.Issue, s.Suggestion)
		}
	}
	return b.String()
}

// getGitDiff captures what the primary just changed. The commit step has
// already run, so HEAD~1..HEAD is the preferred source; the staged-vs-HEAD
// fallback covers a branch whose only commit is the primary's first.
func getGitDiff(sandboxPath string) (string, error) {
	if out, err := runGitCmd(sandboxPath, "diff", "HEAD~1..HEAD"); err == nil {
		return out, nil
	}
	out, err := runGitCmd(sandboxPath, "diff", "--cached", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return out, nil
}

// commitAndPushChanges commits any pending changes in sandboxPath and
// pushes them, logging (never failing the caller) on any step's error.
// Checking `git status --porcelain` first makes this idempotent: a clean
// tree (the agent made no changes, or already committed its own work)
// produces no commit rather than an error. A push failure downgrades to a
// warning; the commit record still lands with pushed=false.
func commitAndPushChanges(sandboxPath string, iteration int, llm string, phase Phase, log *zap.Logger) (hash, message string, pushed, committed bool) {
	status, err := runGitCmd(sandboxPath, "status", "--porcelain")
	if err != nil {
		logWarn(log, "failed to check git status", err)
		return "", "", false, false
	}
	if strings.TrimSpace(status) == "" {
		return "", "", false, false
	}

	if _, err := runGitCmd(sandboxPath, "add", "-A"); err != nil {
		logWarn(log, "failed to stage changes", err)
		return "", "", false, false
	}

	phaseSuffix := ""
	if phase != "" {
		phaseSuffix = " - " + string(phase)
	}
	message = fmt.Sprintf("[cruise] %s iteration %d%s", llm, iteration, phaseSuffix)

	if _, err := runGitCmd(sandboxPath, "commit", "-m", message); err != nil {
		logWarn(log, "failed to commit changes", err)
		return "", "", false, false
	}

	head, err := runGitCmd(sandboxPath, "rev-parse", "HEAD")
	if err != nil {
		logWarn(log, "failed to resolve commit hash", err)
	}
	hash = strings.TrimSpace(head)

	branch, err := runGitCmd(sandboxPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		logWarn(log, "failed to resolve branch for push", err)
		return hash, message, false, true
	}
	if _, err := runGitCmd(sandboxPath, "push", "origin", strings.TrimSpace(branch)); err != nil {
		logWarn(log, "failed to push changes", err)
		return hash, message, false, true
	}
	return hash, message, true, true
}

func runGitCmd(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), err
	}
	return string(out), nil
}

func logWarn(log *zap.Logger, msg string, err error) {
	if log != nil {
		log.Warn(msg, zap.Error(err))
	}
}
