package runner

import (
	"testing"

	"github.com/agentops/cruise/internal/sandbox"
)

func TestGeminiRunner_BuildArgs_Basic(t *testing.T) {
	r := NewGeminiRunner(nil)
	args := r.buildArgs(SpawnConfig{Prompt: "test prompt", Manifest: sandbox.NewManifest()})

	if !contains(args, "--non-interactive") || !contains(args, "--prompt") || !contains(args, "test prompt") {
		t.Fatalf("unexpected args: %v", args)
	}
	if !contains(args, "--sandbox") || !contains(args, "strict") {
		t.Fatalf("expected strict sandbox with empty manifest, got %v", args)
	}
}

func TestGeminiRunner_BuildArgs_IncludesModel(t *testing.T) {
	r := NewGeminiRunner(nil)
	args := r.buildArgs(SpawnConfig{Prompt: "test", Model: "gemini-pro", Manifest: sandbox.NewManifest()})

	if !contains(args, "--model") || !contains(args, "gemini-pro") {
		t.Fatalf("expected model flag, got %v", args)
	}
}

func TestGeminiRunner_BuildArgs_PermissiveWithCommands(t *testing.T) {
	r := NewGeminiRunner(nil)
	m := sandbox.NewManifest()
	m.AllowCommand("npm test")
	args := r.buildArgs(SpawnConfig{Prompt: "test", Manifest: m})

	if !contains(args, "permissive") {
		t.Fatalf("expected permissive sandbox with allowed commands, got %v", args)
	}
}

func TestParseGeminiLine_PlainStdout(t *testing.T) {
	ev := parseGeminiLine("just some regular output")
	if ev.Kind != Stdout {
		t.Fatalf("expected Stdout, got %v", ev.Kind)
	}
}

func TestParseGeminiLine_DetectsFileRead(t *testing.T) {
	ev := parseGeminiLine(`reading file "/src/main.go"`)
	if ev.Kind != FileRead {
		t.Fatalf("expected FileRead, got %v", ev.Kind)
	}
}

func TestParseGeminiLine_DetectsFileWrite(t *testing.T) {
	ev := parseGeminiLine(`writing file "/src/new.go"`)
	if ev.Kind != FileWrite {
		t.Fatalf("expected FileWrite, got %v", ev.Kind)
	}
}

func TestParseGeminiLine_DetectsFunctionCall(t *testing.T) {
	ev := parseGeminiLine("function_call: execute_code(print('hello'))")
	if ev.Kind != ToolCall {
		t.Fatalf("expected ToolCall, got %v", ev.Kind)
	}
	if ev.Tool != "execute_code" || ev.Args != "print('hello')" {
		t.Fatalf("unexpected parse: tool=%q args=%q", ev.Tool, ev.Args)
	}
}

func TestGeminiRunner_Name(t *testing.T) {
	if NewGeminiRunner(nil).Name() != "gemini-cli" {
		t.Fatal("unexpected runner name")
	}
}
