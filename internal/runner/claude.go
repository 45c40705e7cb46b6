package runner

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// ClaudeRunner runs the Claude Code CLI in non-interactive print mode.
type ClaudeRunner struct {
	CLIPath string
	log     *zap.Logger
}

// NewClaudeRunner returns a runner invoking the "claude" binary on PATH.
func NewClaudeRunner(log *zap.Logger) *ClaudeRunner {
	return &ClaudeRunner{CLIPath: "claude", log: log}
}

func (r *ClaudeRunner) Name() string { return "claude-code" }

func (r *ClaudeRunner) buildArgs(cfg SpawnConfig) []string {
	args := []string{"--print"}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if len(cfg.Manifest.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(cfg.Manifest.AllowedTools, ","))
	}
	args = append(args, cfg.Prompt)
	return args
}

func (r *ClaudeRunner) Spawn(ctx context.Context, cfg SpawnConfig, events chan<- Event) (Result, error) {
	cliPath := r.CLIPath
	if cliPath == "" {
		cliPath = "claude"
	}
	if r.log != nil {
		r.log.Info("spawning claude cli", zap.String("working_dir", cfg.WorkingDir))
	}
	return runStreaming(ctx, cliPath, cfg.WorkingDir, r.buildArgs(cfg), parseClaudeLine, events, r.log)
}

// parseClaudeLine classifies one line of Claude Code's print-mode output.
func parseClaudeLine(line string) Event {
	if strings.Contains(line, "Read(") || strings.Contains(line, "reading file") {
		if path, ok := extractPathColonFirst(line); ok {
			return Event{Kind: FileRead, Line: line, Path: path}
		}
	}
	if strings.Contains(line, "Write(") || strings.Contains(line, "Edit(") || strings.Contains(line, "writing file") {
		if path, ok := extractPathColonFirst(line); ok {
			return Event{Kind: FileWrite, Line: line, Path: path}
		}
	}
	if strings.Contains(line, "Tool:") || strings.Contains(line, "using tool") {
		if tool, toolArgs, ok := extractToolCall(line); ok {
			return Event{Kind: ToolCall, Line: line, Tool: tool, Args: toolArgs}
		}
	}
	return Event{Kind: Stdout, Line: line}
}

// extractPathColonFirst extracts a path from a double- or single-quoted
// substring containing a path separator.
func extractPathColonFirst(line string) (string, bool) {
	if path, ok := quotedSubstring(line, '"'); ok {
		return path, true
	}
	if path, ok := quotedSubstring(line, '\''); ok {
		return path, true
	}
	return "", false
}

func quotedSubstring(line string, quote byte) (string, bool) {
	start := strings.IndexByte(line, quote)
	if start < 0 {
		return "", false
	}
	rest := line[start+1:]
	end := strings.IndexByte(rest, quote)
	if end < 0 {
		return "", false
	}
	candidate := rest[:end]
	if strings.ContainsAny(candidate, "/\\") {
		return candidate, true
	}
	return "", false
}

// extractToolCall parses "Tool: Name(args)" or "Tool: Name".
func extractToolCall(line string) (tool, args string, ok bool) {
	idx := strings.Index(line, "Tool:")
	if idx < 0 {
		return "", "", false
	}
	rest := strings.TrimSpace(line[idx+len("Tool:"):])
	paren := strings.IndexByte(rest, '(')
	if paren < 0 {
		return rest, "", true
	}
	tool = strings.TrimSpace(rest[:paren])
	end := strings.LastIndexByte(rest, ')')
	if end < paren {
		end = len(rest)
	}
	return tool, rest[paren+1 : end], true
}
