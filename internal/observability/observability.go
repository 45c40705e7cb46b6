// Package observability collects an append-only record of everything a
// spawn-team run did: agent invocations, permission requests and grants,
// commits, review verdicts, and security findings. The in-memory log is
// the source of truth; JSONL persistence and markdown reporting are
// separate sinks over the same record stream.
package observability

import (
	"sync"
	"time"
)

// RecordKind discriminates a Record's payload.
type RecordKind string

const (
	KindInvocationStart    RecordKind = "invocation_start"
	KindInvocationEnd      RecordKind = "invocation_end"
	KindCommandLine        RecordKind = "command_line"
	KindPermissionRequest  RecordKind = "permission_requested"
	KindPermissionGrant    RecordKind = "permission_granted"
	KindCommit             RecordKind = "commit"
	KindReview             RecordKind = "review"
	KindSecurityFinding    RecordKind = "security_finding"
)

// Record is one event in a run's audit trail. Only the fields relevant to
// its Kind are populated; the zero values of the rest marshal away under
// omitempty so the JSONL stream stays readable.
type Record struct {
	Kind      RecordKind `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`

	Agent     string `json:"agent,omitempty"`
	Role      string `json:"role,omitempty"` // "primary" | "reviewer"
	Iteration int    `json:"iteration,omitempty"`
	Phase     string `json:"phase,omitempty"`

	// invocation_end
	Success bool   `json:"success,omitempty"`
	Detail  string `json:"detail,omitempty"`

	// command_line
	Command string `json:"command,omitempty"`
	WorkDir string `json:"work_dir,omitempty"`

	// permission_requested / permission_granted
	PermissionType string `json:"permission_type,omitempty"`
	Resource       string `json:"resource,omitempty"`
	Granted        bool   `json:"granted,omitempty"`

	// commit
	Hash    string `json:"hash,omitempty"`
	Message string `json:"message,omitempty"`
	Pushed  bool   `json:"pushed,omitempty"`

	// review
	Verdict         string `json:"verdict,omitempty"`
	SuggestionCount int    `json:"suggestion_count,omitempty"`

	// security_finding
	Severity       string `json:"severity,omitempty"`
	Description    string `json:"description,omitempty"`
	File           string `json:"file,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// Log is a thread-safe append-only buffer of Records. Records are never
// removed or reordered; Append serializes concurrent writers (parallel
// reviewers in GitHub mode all share one Log).
type Log struct {
	mu      sync.Mutex
	records []Record

	// Hook, if set, is called synchronously (under the append lock, so
	// keep it cheap) with every appended record. internal/metrics uses
	// this to increment Prometheus counters as events arrive.
	Hook func(Record)

	now func() time.Time
}

// NewLog returns an empty Log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append stamps r with the current time if unset and appends it.
func (l *Log) Append(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.Timestamp.IsZero() {
		if l.now == nil {
			l.now = time.Now
		}
		r.Timestamp = l.now()
	}
	l.records = append(l.records, r)
	if l.Hook != nil {
		l.Hook(r)
	}
}

// Records returns a copy of the record sequence in arrival order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records appended so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// InvocationStarted records the start bracket of one agent run.
func (l *Log) InvocationStarted(agent, role string, iteration int, phase string) {
	l.Append(Record{Kind: KindInvocationStart, Agent: agent, Role: role, Iteration: iteration, Phase: phase})
}

// InvocationFinished records the end bracket of one agent run.
func (l *Log) InvocationFinished(agent, role string, iteration int, phase string, success bool, detail string) {
	l.Append(Record{Kind: KindInvocationEnd, Agent: agent, Role: role, Iteration: iteration, Phase: phase, Success: success, Detail: detail})
}

// CommandLine records the human-readable command used for an invocation,
// with the prompt truncated so the audit trail stays skimmable.
func (l *Log) CommandLine(agent, role string, iteration int, command, workDir string) {
	l.Append(Record{Kind: KindCommandLine, Agent: agent, Role: role, Iteration: iteration, Command: truncate(command, 200), WorkDir: workDir})
}

// PermissionRequested records a detected permission denial.
func (l *Log) PermissionRequested(agent string, iteration int, permissionType, resource string) {
	l.Append(Record{Kind: KindPermissionRequest, Agent: agent, Iteration: iteration, PermissionType: permissionType, Resource: resource})
}

// PermissionGranted records a fix applied to the sandbox manifest.
func (l *Log) PermissionGranted(agent string, iteration int, permissionType, resource string) {
	l.Append(Record{Kind: KindPermissionGrant, Agent: agent, Iteration: iteration, PermissionType: permissionType, Resource: resource, Granted: true})
}

// CommitRecorded records a commit made on the sandbox branch.
func (l *Log) CommitRecorded(agent string, iteration int, hash, message string, pushed bool) {
	l.Append(Record{Kind: KindCommit, Agent: agent, Iteration: iteration, Hash: hash, Message: message, Pushed: pushed})
}

// ReviewRecorded records one review pass's verdict.
func (l *Log) ReviewRecorded(iteration int, phase, verdict string, suggestionCount int) {
	l.Append(Record{Kind: KindReview, Iteration: iteration, Phase: phase, Verdict: verdict, SuggestionCount: suggestionCount})
}

// FindingRecorded records one security finding surfaced by a review.
func (l *Log) FindingRecorded(iteration int, f SecurityFinding) {
	l.Append(Record{
		Kind: KindSecurityFinding, Iteration: iteration,
		Severity: f.Severity, Description: f.Description, File: f.File, Recommendation: f.Recommendation,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
