// Package monitor tracks activity inside a running sandbox and decides
// when a watched agent has gone idle or overrun its total budget.
package monitor

import (
	"sync"
	"time"
)

// TimeoutReason names which timeout fired.
type TimeoutReason int

const (
	// Idle means no activity was recorded for idle_timeout.
	Idle TimeoutReason = iota
	// Total means the whole invocation ran longer than total_timeout.
	Total
)

func (r TimeoutReason) String() string {
	if r == Idle {
		return "idle"
	}
	return "total"
}

// TimeoutConfig bounds how long a watched invocation may run.
type TimeoutConfig struct {
	IdleTimeout  time.Duration
	TotalTimeout time.Duration
}

// DefaultTimeoutConfig is two minutes idle, thirty minutes total.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		IdleTimeout:  120 * time.Second,
		TotalTimeout: 1800 * time.Second,
	}
}

// CommitInfo records one commit observed during the run.
type CommitInfo struct {
	Hash    string
	Message string
}

// Monitor accumulates activity for one agent invocation and answers
// whether it has timed out. Safe for concurrent use: the agent runner
// records activity from its own goroutine while a supervisor polls
// CheckTimeout from another.
type Monitor struct {
	mu sync.Mutex

	filesRead    map[string]struct{}
	filesWritten map[string]struct{}
	commits      []CommitInfo
	outputLines  int

	lastActivity time.Time
	startTime    time.Time
	timeouts     TimeoutConfig

	now func() time.Time
}

// New returns a Monitor starting its clock now, under cfg.
func New(cfg TimeoutConfig) *Monitor {
	return newWithClock(cfg, time.Now)
}

func newWithClock(cfg TimeoutConfig, now func() time.Time) *Monitor {
	n := now()
	return &Monitor{
		filesRead:    make(map[string]struct{}),
		filesWritten: make(map[string]struct{}),
		lastActivity: n,
		startTime:    n,
		timeouts:     cfg,
		now:          now,
	}
}

func (m *Monitor) touch() {
	m.lastActivity = m.now()
}

// RecordFileRead notes a file read and resets the idle clock.
func (m *Monitor) RecordFileRead(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filesRead[path] = struct{}{}
	m.touch()
}

// RecordFileWrite notes a file write and resets the idle clock.
func (m *Monitor) RecordFileWrite(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filesWritten[path] = struct{}{}
	m.touch()
}

// RecordCommit notes a commit and resets the idle clock.
func (m *Monitor) RecordCommit(c CommitInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = append(m.commits, c)
	m.touch()
}

// RecordOutput adds n output lines and resets the idle clock.
func (m *Monitor) RecordOutput(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputLines += n
	m.touch()
}

// Touch resets the idle clock without recording any specific activity
// (used for tool calls whose effect isn't a file read/write).
func (m *Monitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
}

// IdleDuration returns how long it has been since the last recorded activity.
func (m *Monitor) IdleDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.lastActivity)
}

// TotalDuration returns how long this invocation has been running.
func (m *Monitor) TotalDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.startTime)
}

// HasActivity reports whether any file, commit, or output activity has ever
// been recorded.
func (m *Monitor) HasActivity() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filesRead) > 0 || len(m.filesWritten) > 0 || len(m.commits) > 0 || m.outputLines > 0
}

// CheckTimeout returns the timeout reason that has fired, if any. Idle is
// checked before Total so an invocation that is both idle and over its
// total budget reports Idle, the more actionable of the two.
func (m *Monitor) CheckTimeout() (TimeoutReason, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idle := m.now().Sub(m.lastActivity)
	if idle >= m.timeouts.IdleTimeout {
		return Idle, true
	}
	total := m.now().Sub(m.startTime)
	if total >= m.timeouts.TotalTimeout {
		return Total, true
	}
	return 0, false
}

// Summary is a serializable snapshot of a Monitor's state.
type Summary struct {
	FilesRead    []string     `json:"files_read"`
	FilesWritten []string     `json:"files_written"`
	Commits      []CommitInfo `json:"commits"`
	OutputLines  int          `json:"output_lines"`
	IdleSeconds  float64      `json:"idle_seconds"`
	TotalSeconds float64      `json:"total_seconds"`
}

// Summarize returns a point-in-time snapshot for logging and observability.
func (m *Monitor) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Summary{
		FilesRead:    keysOf(m.filesRead),
		FilesWritten: keysOf(m.filesWritten),
		Commits:      append([]CommitInfo(nil), m.commits...),
		OutputLines:  m.outputLines,
		IdleSeconds:  m.now().Sub(m.lastActivity).Seconds(),
		TotalSeconds: m.now().Sub(m.startTime).Seconds(),
	}
}

func keysOf(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
