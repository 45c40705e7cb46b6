package runner

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// GeminiRunner runs the Gemini CLI as the reviewer agent.
type GeminiRunner struct {
	CLIPath string
	log     *zap.Logger
}

// NewGeminiRunner returns a runner invoking the "gemini" binary on PATH.
func NewGeminiRunner(log *zap.Logger) *GeminiRunner {
	return &GeminiRunner{CLIPath: "gemini", log: log}
}

func (r *GeminiRunner) Name() string { return "gemini-cli" }

func (r *GeminiRunner) buildArgs(cfg SpawnConfig) []string {
	args := []string{"--non-interactive"}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if len(cfg.Manifest.AllowedCommands) > 0 {
		args = append(args, "--sandbox", "permissive")
	} else {
		args = append(args, "--sandbox", "strict")
	}
	args = append(args, "--prompt", cfg.Prompt)
	return args
}

func (r *GeminiRunner) Spawn(ctx context.Context, cfg SpawnConfig, events chan<- Event) (Result, error) {
	cliPath := r.CLIPath
	if cliPath == "" {
		cliPath = "gemini"
	}
	if r.log != nil {
		r.log.Info("spawning gemini cli", zap.String("working_dir", cfg.WorkingDir))
	}
	return runStreaming(ctx, cliPath, cfg.WorkingDir, r.buildArgs(cfg), parseGeminiLine, events, r.log)
}

// parseGeminiLine classifies one line of Gemini CLI's non-interactive output.
func parseGeminiLine(line string) Event {
	if strings.Contains(line, "reading") && strings.Contains(line, "file") {
		if path, ok := quotedSubstring(line, '"'); ok {
			return Event{Kind: FileRead, Line: line, Path: path}
		}
		if path, ok := quotedSubstring(line, '\''); ok {
			return Event{Kind: FileRead, Line: line, Path: path}
		}
	}
	if strings.Contains(line, "writing") && strings.Contains(line, "file") {
		if path, ok := quotedSubstring(line, '"'); ok {
			return Event{Kind: FileWrite, Line: line, Path: path}
		}
		if path, ok := quotedSubstring(line, '\''); ok {
			return Event{Kind: FileWrite, Line: line, Path: path}
		}
	}
	if strings.Contains(line, "function_call") || strings.Contains(line, "tool_use") {
		if tool, args, ok := extractFunctionCall(line); ok {
			return Event{Kind: ToolCall, Line: line, Tool: tool, Args: args}
		}
	}
	return Event{Kind: Stdout, Line: line}
}

// extractFunctionCall parses "function_call: name(args)".
func extractFunctionCall(line string) (name, args string, ok bool) {
	idx := strings.Index(line, "function_call:")
	if idx < 0 {
		return "", "", false
	}
	rest := strings.TrimSpace(line[idx+len("function_call:"):])
	paren := strings.IndexByte(rest, '(')
	if paren < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(rest[:paren])
	end := strings.LastIndexByte(rest, ')')
	if end < paren {
		end = len(rest)
	}
	return name, rest[paren+1 : end], true
}
