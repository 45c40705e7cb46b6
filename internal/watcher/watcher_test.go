package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/agentops/cruise/internal/monitor"
	"github.com/agentops/cruise/internal/runner"
	"github.com/agentops/cruise/internal/sandbox"
)

type fakeSandbox struct {
	path    string
	policy  sandbox.Manifest
	cleaned bool
}

func (f *fakeSandbox) Path() string              { return f.path }
func (f *fakeSandbox) Branch() string             { return "" }
func (f *fakeSandbox) RunID() string              { return "fake-run" }
func (f *fakeSandbox) Manifest() sandbox.Manifest { return f.policy }
func (f *fakeSandbox) Cleanup() error             { f.cleaned = true; return nil }

type fakeProvider struct {
	created []sandbox.Manifest
}

func (p *fakeProvider) Create(m sandbox.Manifest, branch string) (sandbox.Sandbox, error) {
	p.created = append(p.created, m)
	return &fakeSandbox{path: "/tmp/fake", policy: m}, nil
}
func (p *fakeProvider) Merge(s sandbox.Sandbox) error { return nil }
func (p *fakeProvider) RepoRoot() string              { return "/tmp/repo" }

// scriptedRunner replays one line sequence per call, in order; calls beyond
// the scripted set repeat the last entry.
type scriptedRunner struct {
	calls  int
	script [][]string // one []string of stdout lines per call
	result runner.Result
}

func (r *scriptedRunner) Name() string { return "fake" }

func (r *scriptedRunner) Spawn(ctx context.Context, cfg runner.SpawnConfig, events chan<- runner.Event) (runner.Result, error) {
	idx := r.calls
	if idx >= len(r.script) {
		idx = len(r.script) - 1
	}
	r.calls++
	for _, line := range r.script[idx] {
		select {
		case events <- runner.Event{Kind: runner.Stdout, Line: line}:
		case <-ctx.Done():
			return runner.Result{}, ctx.Err()
		}
	}
	close(events)
	return r.result, nil
}

func fastTimeout() monitor.TimeoutConfig {
	return monitor.TimeoutConfig{IdleTimeout: time.Hour, TotalTimeout: 2 * time.Hour}
}

func TestWatcher_SucceedsOnFirstTry(t *testing.T) {
	provider := &fakeProvider{}
	r := &scriptedRunner{script: [][]string{{"all good"}}, result: runner.Result{Success: true}}
	w := New(provider, r, nil)

	cfg := DefaultConfig()
	cfg.Timeout = fastTimeout()
	result, err := w.Run(context.Background(), cfg, SpawnRequest{Prompt: "do the thing", Manifest: sandbox.NewManifest()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.TerminationReason != TerminationSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
}

func TestWatcher_EscalatesThenSucceeds(t *testing.T) {
	provider := &fakeProvider{}
	r := &scriptedRunner{
		script: [][]string{
			{`Permission denied: /etc/config.yaml`},
			{"proceeding fine now"},
		},
		result: runner.Result{Success: true},
	}
	w := New(provider, r, nil)

	cfg := DefaultConfig()
	cfg.Timeout = fastTimeout()
	cfg.MaxEscalations = 1
	result, err := w.Run(context.Background(), cfg, SpawnRequest{Prompt: "do the thing", Manifest: sandbox.NewManifest()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected eventual success after escalation, got %+v", result)
	}
	if len(result.AppliedFixes) != 1 {
		t.Fatalf("expected one applied fix, got %v", result.AppliedFixes)
	}
	if len(provider.created) != 2 {
		t.Fatalf("expected a fresh sandbox per attempt, got %d", len(provider.created))
	}
	widened := provider.created[1]
	found := false
	for _, p := range widened.ReadablePaths {
		if p == "/etc/**" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected widened manifest to include /etc/**, got %v", widened.ReadablePaths)
	}
}

func TestWatcher_MultipleDenialsInOneRoundSpendOneEscalation(t *testing.T) {
	provider := &fakeProvider{}
	r := &scriptedRunner{
		script: [][]string{
			{`Permission denied: /etc/config.yaml`, `Cannot write to: /var/log/app.log`},
			{`Permission denied: /opt/data/seed.json`},
			{"proceeding fine now"},
		},
		result: runner.Result{Success: true},
	}
	w := New(provider, r, nil)

	cfg := DefaultConfig()
	cfg.Timeout = fastTimeout()
	cfg.MaxEscalations = 2
	result, err := w.Run(context.Background(), cfg, SpawnRequest{Prompt: "do the thing", Manifest: sandbox.NewManifest()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success: the first round's two denials cost one escalation, got %+v", result)
	}
	if len(result.AppliedFixes) != 3 {
		t.Fatalf("expected 3 applied fixes across both rounds, got %v", result.AppliedFixes)
	}
	if len(provider.created) != 3 {
		t.Fatalf("expected 3 attempts (initial + one retry per round), got %d", len(provider.created))
	}
}

func TestWatcher_EscalationLimitReached(t *testing.T) {
	provider := &fakeProvider{}
	r := &scriptedRunner{
		script: [][]string{
			{`Permission denied: /etc/config.yaml`},
			{`Cannot write to: /var/log/app.log`},
		},
		result: runner.Result{Success: true},
	}
	w := New(provider, r, nil)

	cfg := DefaultConfig()
	cfg.Timeout = fastTimeout()
	cfg.MaxEscalations = 1
	result, err := w.Run(context.Background(), cfg, SpawnRequest{Prompt: "do the thing", Manifest: sandbox.NewManifest()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TerminationReason != TerminationEscalationLimitReached {
		t.Fatalf("expected escalation limit reached, got %+v", result)
	}
}

func TestWatcher_CannotFixTerminatesImmediately(t *testing.T) {
	provider := &fakeProvider{}
	r := &scriptedRunner{
		script: [][]string{
			{"Network access denied to https://internal.example.com"},
		},
		result: runner.Result{Success: true},
	}
	w := New(provider, r, nil)

	cfg := DefaultConfig()
	cfg.Timeout = fastTimeout()
	result, err := w.Run(context.Background(), cfg, SpawnRequest{Prompt: "do the thing", Manifest: sandbox.NewManifest()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TerminationReason != TerminationPermissionError {
		t.Fatalf("expected permission error termination, got %+v", result)
	}
	if len(provider.created) != 1 {
		t.Fatalf("expected no retry after a CannotFix error, got %d attempts", len(provider.created))
	}
}

func TestWatcher_LLMFailureSurfaces(t *testing.T) {
	provider := &fakeProvider{}
	r := &scriptedRunner{script: [][]string{{"some output"}}, result: runner.Result{Success: false, ExitCode: 1}}
	w := New(provider, r, nil)

	cfg := DefaultConfig()
	cfg.Timeout = fastTimeout()
	result, err := w.Run(context.Background(), cfg, SpawnRequest{Prompt: "do the thing", Manifest: sandbox.NewManifest()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TerminationReason != TerminationLLMError {
		t.Fatalf("expected LLM error termination, got %+v", result)
	}
}

func TestWatcher_RejectsInvalidConfig(t *testing.T) {
	provider := &fakeProvider{}
	r := &scriptedRunner{script: [][]string{{"x"}}, result: runner.Result{Success: true}}
	w := New(provider, r, nil)

	cfg := DefaultConfig()
	cfg.Timeout = monitor.TimeoutConfig{IdleTimeout: time.Hour, TotalTimeout: time.Minute}
	_, err := w.Run(context.Background(), cfg, SpawnRequest{Prompt: "do the thing", Manifest: sandbox.NewManifest()})
	if err == nil {
		t.Fatal("expected validation error when idle_timeout >= total_timeout")
	}
}

func TestWatcher_RejectsEmptyPrompt(t *testing.T) {
	provider := &fakeProvider{}
	r := &scriptedRunner{script: [][]string{{"x"}}, result: runner.Result{Success: true}}
	w := New(provider, r, nil)

	cfg := DefaultConfig()
	cfg.Timeout = fastTimeout()
	_, err := w.Run(context.Background(), cfg, SpawnRequest{Prompt: "", Manifest: sandbox.NewManifest()})
	if err == nil {
		t.Fatal("expected validation error for empty prompt")
	}
}
