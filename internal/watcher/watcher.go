// Package watcher supervises a single agent invocation end-to-end: it
// provisions a sandbox, streams the agent's output through the progress
// monitor and permission detector, and recovers from permission denials by
// widening the sandbox manifest and retrying, up to a configurable budget.
package watcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/agentops/cruise/internal/monitor"
	"github.com/agentops/cruise/internal/observability"
	"github.com/agentops/cruise/internal/permission"
	"github.com/agentops/cruise/internal/runner"
	"github.com/agentops/cruise/internal/sandbox"
)

// RecoveryStrategy controls how aggressively the Watcher escalates
// permissions in response to denials.
type RecoveryStrategy int

const (
	// Moderate allows up to MaxEscalations escalation rounds (each round
	// applies every fix found in one attempt) before giving up.
	// This is the default.
	Moderate RecoveryStrategy = iota
	// Aggressive ignores the escalation budget and keeps applying fixes
	// until a CannotFix error is hit.
	Aggressive
	// Interactive defers the decision to an operator callback for every
	// fix, before it is applied.
	Interactive
)

// EscalationDecision is returned by an Interactive strategy's callback.
type EscalationDecision int

const (
	DecisionApply EscalationDecision = iota
	DecisionAbort
)

// InteractiveCallback is consulted once per detected denial under
// Interactive, before that denial's fix is applied.
type InteractiveCallback func(permission.Error) EscalationDecision

// Config governs one watched invocation.
type Config struct {
	Timeout          monitor.TimeoutConfig
	RecoveryStrategy RecoveryStrategy
	MaxEscalations   int `validate:"gte=0"`
	Interactive      InteractiveCallback
}

// DefaultConfig is Moderate recovery with a budget of one escalation.
func DefaultConfig() Config {
	return Config{
		Timeout:          monitor.DefaultTimeoutConfig(),
		RecoveryStrategy: Moderate,
		MaxEscalations:   1,
	}
}

var validate = validator.New()

// SpawnRequest is the immutable part of a watched invocation: what to run
// and the baseline permissions it starts with.
type SpawnRequest struct {
	Prompt   string `validate:"required"`
	Model    string
	Manifest sandbox.Manifest
	Branch   string
}

func (c Config) validateWith(req SpawnRequest) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid watcher config: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("invalid spawn request: %w", err)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("invalid spawn request: prompt is empty")
	}
	if c.Timeout.IdleTimeout >= c.Timeout.TotalTimeout {
		return fmt.Errorf("idle_timeout (%s) must be less than total_timeout (%s)", c.Timeout.IdleTimeout, c.Timeout.TotalTimeout)
	}
	return nil
}

// TerminationReason explains why Run returned.
type TerminationReason int

const (
	TerminationSuccess TerminationReason = iota
	TerminationLLMError
	TerminationTimeout
	TerminationPermissionError
	TerminationEscalationLimitReached
)

// Result is everything the caller needs to know about a finished watch.
type Result struct {
	Success           bool
	Progress          monitor.Summary
	PermissionErrors  []permission.Error
	AppliedFixes      []permission.Fix
	TerminationReason TerminationReason
	Detail            string
	TimeoutReason      monitor.TimeoutReason
	SandboxPath       string
}

// Watcher runs one prompt to completion, recovering from permission
// escalations along the way.
type Watcher struct {
	Provider sandbox.Provider
	Runner   runner.Runner
	Detector *permission.Detector
	Log      *zap.Logger
	// Obs, when set, receives a permission record for every detected
	// denial and every fix applied.
	Obs *observability.Log
}

// New returns a Watcher wired to provider/agentRunner with a fresh
// permission detector.
func New(provider sandbox.Provider, agentRunner runner.Runner, log *zap.Logger) *Watcher {
	return &Watcher{Provider: provider, Runner: agentRunner, Detector: permission.NewDetector(), Log: log}
}

// Run executes req under cfg, escalating permissions and retrying in a
// fresh sandbox as needed, until success, a terminal failure, or the
// escalation budget is exhausted.
func (w *Watcher) Run(ctx context.Context, cfg Config, req SpawnRequest) (Result, error) {
	if err := cfg.validateWith(req); err != nil {
		return Result{}, err
	}

	manifest := req.Manifest.Clone()
	escalations := 0
	var appliedFixes []permission.Fix

	for {
		sb, err := w.Provider.Create(manifest, req.Branch)
		if err != nil {
			return Result{}, fmt.Errorf("create sandbox: %w", err)
		}

		if w.Obs != nil {
			w.Obs.CommandLine(w.Runner.Name(), "primary", escalations+1, req.Prompt, sb.Path())
		}

		outcome := w.runWithMonitoring(ctx, cfg, req, sb)
		cleanupErr := sb.Cleanup()
		if cleanupErr != nil && w.Log != nil {
			w.Log.Warn("sandbox cleanup failed", zap.Error(cleanupErr))
		}

		outcome.AppliedFixes = append(appliedFixes, outcome.AppliedFixes...)
		outcome.SandboxPath = sb.Path()

		if w.Obs != nil {
			for _, perr := range outcome.PermissionErrors {
				w.Obs.PermissionRequested(w.Runner.Name(), escalations+1, perr.Type.String(), perr.Resource)
			}
		}

		if len(outcome.PermissionErrors) == 0 {
			return outcome, nil
		}

		var blocking *permission.Error
		for i := range outcome.PermissionErrors {
			if outcome.PermissionErrors[i].Fix.Kind == permission.FixCannotFix {
				blocking = &outcome.PermissionErrors[i]
				break
			}
		}
		if blocking != nil {
			outcome.TerminationReason = TerminationPermissionError
			outcome.Detail = blocking.Fix.Reason
			return outcome, nil
		}

		if cfg.RecoveryStrategy == Moderate && escalations >= cfg.MaxEscalations {
			outcome.TerminationReason = TerminationEscalationLimitReached
			return outcome, nil
		}

		// Apply every fix from this round, then spend one unit of budget
		// for the whole round: retrying once with all of the round's
		// grants is a single escalation.
		for _, perr := range outcome.PermissionErrors {
			if cfg.RecoveryStrategy == Interactive && cfg.Interactive != nil {
				if cfg.Interactive(perr) == DecisionAbort {
					outcome.TerminationReason = TerminationPermissionError
					outcome.Detail = "operator declined escalation"
					return outcome, nil
				}
			}
			applyFix(&manifest, perr.Fix)
			appliedFixes = append(appliedFixes, perr.Fix)
			if w.Obs != nil {
				w.Obs.PermissionGranted(w.Runner.Name(), escalations+1, perr.Type.String(), perr.Fix.Value)
			}
		}
		escalations++
	}
}

// applyFix widens manifest per fix. All additive mutators dedupe via the
// manifest's own Add*/Enable*/Inject* methods, so re-applying an already
// granted fix is a no-op.
func applyFix(manifest *sandbox.Manifest, fix permission.Fix) {
	switch fix.Kind {
	case permission.FixAddReadPath:
		manifest.AddReadPath(fix.Value)
	case permission.FixAddWritePath:
		manifest.AddWritePath(fix.Value)
	case permission.FixAllowCommand:
		manifest.AllowCommand(fix.Value)
	case permission.FixEnableTool:
		manifest.EnableTool(fix.Value)
	case permission.FixInjectEnvVar:
		manifest.InjectEnvVar(fix.Value)
	case permission.FixInjectSecret:
		manifest.InjectSecret(fix.Value)
	case permission.FixCannotFix:
		// Caller is responsible for terminating; nothing to widen.
	}
}

func (w *Watcher) runWithMonitoring(ctx context.Context, cfg Config, req SpawnRequest, sb sandbox.Sandbox) Result {
	mon := monitor.New(cfg.Timeout)
	events := make(chan runner.Event, 64)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan runResult, 1)
	go func() {
		res, err := w.Runner.Spawn(runCtx, runner.SpawnConfig{
			Prompt:     req.Prompt,
			WorkingDir: sb.Path(),
			Manifest:   sb.Manifest(),
			Model:      req.Model,
		}, events)
		resultCh <- runResult{res: res, err: err}
	}()

	var detected []permission.Error
	var timeoutReason monitor.TimeoutReason
	timedOut := false

drain:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break drain
			}
			w.observe(mon, &detected, ev)
			if reason, isTimeout := mon.CheckTimeout(); isTimeout {
				timeoutReason = reason
				timedOut = true
				cancel()
			}
		case <-ctx.Done():
			break drain
		}
	}

	runOutcome := <-resultCh

	result := Result{Progress: mon.Summarize(), PermissionErrors: detected}

	if timedOut {
		result.TerminationReason = TerminationTimeout
		result.TimeoutReason = timeoutReason
		return result
	}
	if len(detected) > 0 {
		return result
	}
	if runOutcome.err != nil || !runOutcome.res.Success {
		result.TerminationReason = TerminationLLMError
		if runOutcome.err != nil {
			result.Detail = runOutcome.err.Error()
		} else {
			result.Detail = fmt.Sprintf("agent exited with code %d", runOutcome.res.ExitCode)
		}
		return result
	}

	result.Success = true
	result.TerminationReason = TerminationSuccess
	return result
}

type runResult struct {
	res runner.Result
	err error
}

func (w *Watcher) observe(mon *monitor.Monitor, detected *[]permission.Error, ev runner.Event) {
	switch ev.Kind {
	case runner.Stdout, runner.Stderr:
		mon.RecordOutput(1)
		if perr, ok := w.Detector.Analyze(ev.Line); ok {
			*detected = append(*detected, perr)
		}
	case runner.FileRead:
		mon.RecordFileRead(ev.Path)
	case runner.FileWrite:
		mon.RecordFileWrite(ev.Path)
	case runner.ToolCall:
		mon.Touch()
	}
}
