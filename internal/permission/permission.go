// Package permission classifies denial messages emitted by a sandboxed
// agent into a structured error plus a fix the Watcher can apply and retry.
package permission

import "strings"

// ErrorType discriminates a classified permission failure.
type ErrorType int

const (
	FileReadDenied ErrorType = iota
	FileWriteDenied
	CommandBlocked
	ToolDisabled
	EnvVarMissing
	SecretMissing
	NetworkBlocked
)

// String names the error class for logs and audit records.
func (t ErrorType) String() string {
	switch t {
	case FileReadDenied:
		return "file_read"
	case FileWriteDenied:
		return "file_write"
	case CommandBlocked:
		return "command"
	case ToolDisabled:
		return "tool"
	case EnvVarMissing:
		return "env_var"
	case SecretMissing:
		return "secret"
	case NetworkBlocked:
		return "network"
	}
	return "unknown"
}

// FixKind discriminates the remediation for a classified failure.
type FixKind int

const (
	FixAddReadPath FixKind = iota
	FixAddWritePath
	FixAllowCommand
	FixEnableTool
	FixInjectEnvVar
	FixInjectSecret
	FixCannotFix
)

// Fix is the remediation for an Error. Reason is populated only for
// FixCannotFix, explaining why no automatic fix exists.
type Fix struct {
	Kind   FixKind
	Value  string // path, command, tool, env var, or secret name
	Reason string
}

// Error is a classified permission denial.
type Error struct {
	Type            ErrorType
	Resource        string // the path/command/tool/var/secret/host involved
	Fix             Fix
	OriginalMessage string
}

type matcher struct {
	errType  ErrorType
	patterns []string
	extract  func(line string) (resource string, ok bool)
	fix      func(resource string) Fix
}

// Detector analyzes raw agent output lines for permission denials. The
// matcher table is checked in order; the first class whose patterns match
// AND whose extractor succeeds wins.
type Detector struct {
	matchers []matcher
}

// NewDetector returns a Detector with the standard pattern table.
func NewDetector() *Detector {
	return &Detector{matchers: []matcher{
		{
			errType: FileReadDenied,
			patterns: []string{
				"Permission denied:", "cannot read", "EACCES",
				"read access denied", "cannot open", "No such file or directory",
			},
			extract: extractPath,
			fix: func(path string) Fix {
				return Fix{Kind: FixAddReadPath, Value: pathToPattern(path)}
			},
		},
		{
			errType: FileWriteDenied,
			patterns: []string{
				"Cannot write to:", "cannot write", "write access denied",
				"Read-only file system", "EROFS",
			},
			extract: extractPath,
			fix: func(path string) Fix {
				return Fix{Kind: FixAddWritePath, Value: pathToPattern(path)}
			},
		},
		{
			errType: CommandBlocked,
			patterns: []string{
				"Command not allowed:", "command not found",
				"Permission denied:", "not permitted",
			},
			extract: extractCommand,
			fix: func(cmd string) Fix {
				return Fix{Kind: FixAllowCommand, Value: cmd}
			},
		},
		{
			errType: ToolDisabled,
			patterns: []string{
				"Tool '", "is not enabled", "tool not available", "disabled tool",
			},
			extract: extractTool,
			fix: func(tool string) Fix {
				return Fix{Kind: FixEnableTool, Value: tool}
			},
		},
		{
			errType: EnvVarMissing,
			patterns: []string{
				"Environment variable", "not set", "undefined variable", "missing env",
			},
			extract: extractEnvVar,
			fix: func(v string) Fix {
				return Fix{Kind: FixInjectEnvVar, Value: v}
			},
		},
		{
			errType: SecretMissing,
			patterns: []string{
				"API key required", "secret not provided", "authentication required",
				"missing credential", "token required",
			},
			extract: extractSecret,
			fix: func(v string) Fix {
				return Fix{Kind: FixInjectSecret, Value: v}
			},
		},
		{
			errType: NetworkBlocked,
			patterns: []string{
				"Network access denied", "connection refused", "ENETUNREACH",
				"network unreachable", "blocked by policy",
			},
			extract: extractHost,
			fix: func(host string) Fix {
				return Fix{Kind: FixCannotFix, Reason: "Network access to " + host + " requires manual approval"}
			},
		},
	}}
}

// Analyze returns the first classification whose patterns match line and
// whose resource extraction succeeds, or false if line is not a recognized
// permission denial.
func (d *Detector) Analyze(line string) (Error, bool) {
	for _, m := range d.matchers {
		if !matchesAny(line, m.patterns) {
			continue
		}
		resource, ok := m.extract(line)
		if !ok {
			continue
		}
		return Error{
			Type:            m.errType,
			Resource:        resource,
			Fix:             m.fix(resource),
			OriginalMessage: line,
		}, true
	}
	return Error{}, false
}

func matchesAny(line string, patterns []string) bool {
	lower := strings.ToLower(line)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// extractPath tries, in order: text after the first ':' if it looks like a
// path, a single-quoted path, then a double-quoted path.
func extractPath(line string) (string, bool) {
	if idx := strings.Index(line, ":"); idx >= 0 {
		candidate := strings.TrimSpace(line[idx+1:])
		candidate = strings.Trim(candidate, `"'`)
		if strings.HasPrefix(candidate, "/") || strings.HasPrefix(candidate, "./") {
			return candidate, true
		}
	}
	if path, ok := quotedPath(line, '\''); ok {
		return path, true
	}
	if path, ok := quotedPath(line, '"'); ok {
		return path, true
	}
	return "", false
}

func quotedPath(line string, quote byte) (string, bool) {
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

// pathToPattern widens an exact path into a glob covering its directory,
// or "**" if it has no parent component.
func pathToPattern(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "**"
	}
	parent := path[:idx]
	if parent == "" {
		return "**"
	}
	return parent + "/**"
}

func extractCommand(line string) (string, bool) {
	if idx := strings.Index(line, "Command not allowed:"); idx >= 0 {
		return strings.TrimSpace(line[idx+len("Command not allowed:"):]), true
	}
	if strings.Contains(line, "command not found") {
		fields := strings.SplitN(line, ":", 2)
		if len(fields) > 0 {
			return strings.TrimSpace(fields[0]), true
		}
	}
	return "", false
}

func extractTool(line string) (string, bool) {
	start := strings.Index(line, "Tool '")
	if start < 0 {
		return "", false
	}
	rest := line[start+len("Tool '"):]
	end := strings.IndexByte(rest, '\'')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

func extractEnvVar(line string) (string, bool) {
	for _, tok := range strings.Fields(line) {
		trimmed := strings.Trim(tok, `"':.,`)
		if isEnvVarToken(trimmed) {
			return trimmed, true
		}
	}
	idx := strings.Index(line, "variable")
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimSpace(line[idx+len("variable"):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	cleaned := cleanToken(fields[0])
	if cleaned == "" {
		return "", false
	}
	return cleaned, true
}

func isEnvVarToken(tok string) bool {
	if len(tok) <= 2 || !strings.Contains(tok, "_") {
		return false
	}
	for _, r := range tok {
		if !(r >= 'A' && r <= 'Z') && r != '_' {
			return false
		}
	}
	return true
}

func cleanToken(tok string) string {
	var b strings.Builder
	for _, r := range tok {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractSecret(line string) (string, bool) {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "api key") {
		return "API_KEY", true
	}
	if strings.Contains(lower, "token required") {
		return "AUTH_TOKEN", true
	}
	for _, tok := range strings.Fields(line) {
		cleaned := cleanToken(tok)
		l := strings.ToLower(cleaned)
		if strings.Contains(l, "token") || strings.Contains(l, "key") || strings.Contains(l, "secret") {
			return strings.ToUpper(strings.ReplaceAll(cleaned, "-", "_")), true
		}
	}
	return "", false
}

// extractHost always succeeds for a matched network-denial line, defaulting
// to "unknown host" when nothing more specific is found.
func extractHost(line string) (string, bool) {
	for _, tok := range strings.Fields(line) {
		if strings.Contains(tok, "://") {
			return strings.Trim(tok, `"',.`), true
		}
	}
	for _, tok := range strings.Fields(line) {
		cleaned := strings.Trim(tok, `"',.`)
		if strings.Contains(cleaned, ".") && !strings.HasPrefix(cleaned, ".") && !strings.HasSuffix(cleaned, ".") {
			return cleaned, true
		}
	}
	return "unknown host", true
}
