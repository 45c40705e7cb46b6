// Package team coordinates a primary coding agent and a reviewer agent
// through sequential or ping-pong review loops, and sweeps a fixed set of
// review phases (security, feasibility, granularity, dependencies, polish)
// regardless of how early a phase is approved.
package team

import "github.com/agentops/cruise/internal/observability"

// CoordinationMode selects how the primary and reviewer agents interleave.
type CoordinationMode string

const (
	// Sequential runs primary once, reviews once, fixes once if needed.
	Sequential CoordinationMode = "sequential"
	// PingPong iterates primary/review/fix across all review phases.
	PingPong CoordinationMode = "pingpong"
	// GitHubMode coordinates through pull-request reviews instead of an
	// in-process review call. Default mode.
	GitHubMode CoordinationMode = "github"
)

// Verdict is a reviewer's judgment on one review pass.
type Verdict string

const (
	Approved     Verdict = "approved"
	NeedsChanges Verdict = "needs_changes"
	Failed       Verdict = "failed"
)

// Suggestion is one reviewer comment tied to a location in the diff.
type Suggestion struct {
	File       string `json:"file"`
	Line       *int   `json:"line,omitempty"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
}

// ReviewResult is the outcome of one review pass.
type ReviewResult struct {
	Verdict     Verdict      `json:"verdict"`
	Suggestions []Suggestion `json:"suggestions"`
	Summary     string       `json:"summary"`
}

// Phase names a fixed review pass in the PingPong sweep.
type Phase string

const (
	PhaseSecurity                Phase = "Security"
	PhaseTechnicalFeasibility    Phase = "TechnicalFeasibility"
	PhaseTaskGranularity         Phase = "TaskGranularity"
	PhaseDependencyCompleteness  Phase = "DependencyCompleteness"
	PhaseGeneralPolish           Phase = "GeneralPolish"
)

// AllPhases lists the fixed five-phase review sweep, in order.
func AllPhases() []Phase {
	return []Phase{
		PhaseSecurity, PhaseTechnicalFeasibility, PhaseTaskGranularity,
		PhaseDependencyCompleteness, PhaseGeneralPolish,
	}
}

// PhaseForIteration maps a 1-based PingPong iteration to its fixed phase;
// any iteration past 4 falls through to the general polish pass.
func PhaseForIteration(iteration int) Phase {
	switch iteration {
	case 1:
		return PhaseSecurity
	case 2:
		return PhaseTechnicalFeasibility
	case 3:
		return PhaseTaskGranularity
	case 4:
		return PhaseDependencyCompleteness
	default:
		return PhaseGeneralPolish
	}
}

// Instructions returns the reviewer-facing focus text for a phase.
func (p Phase) Instructions() string {
	switch p {
	case PhaseSecurity:
		return "Focus on security issues: authentication, authorization, input validation, " +
			"secrets handling, injection vulnerabilities, and common web vulnerability classes."
	case PhaseTechnicalFeasibility:
		return "Focus on technical approach: is the architecture sound, are the chosen " +
			"libraries appropriate, are there performance or scalability concerns?"
	case PhaseTaskGranularity:
		return "Focus on task sizing: are units of work appropriately scoped for parallel " +
			"execution, should anything be split or merged?"
	case PhaseDependencyCompleteness:
		return "Focus on dependencies: are all prerequisites identified, is anything missing " +
			"that would block downstream work?"
	default:
		return "General review: look for remaining issues, code quality, documentation, " +
			"and overall polish."
	}
}

// Config configures one spawn-team run.
type Config struct {
	Mode                   CoordinationMode
	MaxIterations          int
	PrimaryLLM             string
	PrimaryModel           string
	ReviewerLLM            string
	ReviewerModel          string
	MaxEscalations         int
	MaxConcurrentReviewers int
}

// DefaultConfig returns the standard spawn-team settings.
func DefaultConfig() Config {
	return Config{
		Mode:                   GitHubMode,
		MaxIterations:          3,
		PrimaryLLM:             "claude-code",
		ReviewerLLM:            "gemini-cli",
		MaxEscalations:         5,
		MaxConcurrentReviewers: 3,
	}
}

// Review records one completed review pass for the result's audit trail.
type Review struct {
	Iteration int
	Phase     Phase // empty in Sequential mode
	Result    ReviewResult
}

// Result is the outcome of a full spawn-team run.
type Result struct {
	Success      bool
	Iterations   int
	FinalVerdict Verdict
	Reviews      []Review
	Summary      string

	// SecurityFindings is a derived view over Security-phase review
	// suggestions, surfaced in the observability report.
	SecurityFindings []observability.SecurityFinding
}
