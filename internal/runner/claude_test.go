package runner

import (
	"testing"

	"github.com/agentops/cruise/internal/sandbox"
)

func TestClaudeRunner_BuildArgs_Basic(t *testing.T) {
	r := NewClaudeRunner(nil)
	args := r.buildArgs(SpawnConfig{Prompt: "test prompt", Manifest: sandbox.NewManifest()})

	if !contains(args, "--print") {
		t.Fatalf("expected --print in args, got %v", args)
	}
	if !contains(args, "test prompt") {
		t.Fatalf("expected prompt in args, got %v", args)
	}
}

func TestClaudeRunner_BuildArgs_IncludesModel(t *testing.T) {
	r := NewClaudeRunner(nil)
	args := r.buildArgs(SpawnConfig{Prompt: "test", Model: "haiku", Manifest: sandbox.NewManifest()})

	if !contains(args, "--model") || !contains(args, "haiku") {
		t.Fatalf("expected --model haiku in args, got %v", args)
	}
}

func TestClaudeRunner_BuildArgs_IncludesAllowedTools(t *testing.T) {
	r := NewClaudeRunner(nil)
	m := sandbox.NewManifest()
	m.EnableTool("Read")
	m.EnableTool("Write")
	args := r.buildArgs(SpawnConfig{Prompt: "test", Manifest: m})

	if !contains(args, "--allowedTools") || !contains(args, "Read,Write") {
		t.Fatalf("expected --allowedTools Read,Write in args, got %v", args)
	}
}

func TestParseClaudeLine_PlainStdout(t *testing.T) {
	ev := parseClaudeLine("just some regular output")
	if ev.Kind != Stdout {
		t.Fatalf("expected Stdout, got %v", ev.Kind)
	}
}

func TestParseClaudeLine_DetectsFileRead(t *testing.T) {
	ev := parseClaudeLine(`Read("/src/main.go")`)
	if ev.Kind != FileRead {
		t.Fatalf("expected FileRead, got %v", ev.Kind)
	}
	if ev.Path != "/src/main.go" {
		t.Fatalf("expected extracted path, got %q", ev.Path)
	}
}

func TestParseClaudeLine_DetectsFileWrite(t *testing.T) {
	ev := parseClaudeLine(`Edit("/src/new.go")`)
	if ev.Kind != FileWrite {
		t.Fatalf("expected FileWrite, got %v", ev.Kind)
	}
}

func TestParseClaudeLine_DetectsToolCall(t *testing.T) {
	ev := parseClaudeLine("Tool: Bash(go test ./...)")
	if ev.Kind != ToolCall {
		t.Fatalf("expected ToolCall, got %v", ev.Kind)
	}
	if ev.Tool != "Bash" || ev.Args != "go test ./..." {
		t.Fatalf("unexpected tool call parse: tool=%q args=%q", ev.Tool, ev.Args)
	}
}

func TestClaudeRunner_Name(t *testing.T) {
	if NewClaudeRunner(nil).Name() != "claude-code" {
		t.Fatal("unexpected runner name")
	}
}

func contains(items []string, want string) bool {
	for _, it := range items {
		if it == want {
			return true
		}
	}
	return false
}
