// Package sandbox provides isolated, git-worktree-backed working copies for
// agent invocations, together with the declarative policy (Manifest) that
// bounds what an agent may read, write, and run inside one.
package sandbox

// TaskComplexity hints at timeout selection for a spawn; it carries no
// behavior of its own here, callers use it to pick a TimeoutConfig.
type TaskComplexity string

const (
	ComplexityLow    TaskComplexity = "low"
	ComplexityMedium TaskComplexity = "medium"
	ComplexityHigh   TaskComplexity = "high"
)

// Manifest is the sandbox-policy: what a sandboxed agent can read, write,
// run, and see. Every sequence is invariant under duplicates: Add* helpers
// enforce that, callers should not append directly.
type Manifest struct {
	ReadablePaths   []string          `json:"readable_paths,omitempty"`
	WritablePaths   []string          `json:"writable_paths,omitempty"`
	AllowedTools    []string          `json:"allowed_tools,omitempty"`
	AllowedCommands []string          `json:"allowed_commands,omitempty"`
	Environment     map[string]string `json:"environment,omitempty"`
	Secrets         []string          `json:"secrets,omitempty"`
	Complexity      TaskComplexity    `json:"complexity,omitempty"`
}

// NewManifest returns an empty manifest with medium complexity.
func NewManifest() Manifest {
	return Manifest{Complexity: ComplexityMedium}
}

// DefaultManifest returns a manifest pre-populated with the common
// development tools and commands most tasks need, reducing escalation
// churn for ordinary work.
func DefaultManifest() Manifest {
	return Manifest{
		ReadablePaths: []string{"**/*"},
		WritablePaths: []string{"**/*"},
		AllowedTools: []string{
			"Read", "Write", "Edit", "Glob", "Grep", "Bash", "LS",
		},
		AllowedCommands: []string{
			"git *", "gh *",
			"go *", "npm *", "npx *", "yarn *", "pnpm *", "make *",
			"curl *", "jq *", "grep *", "find *", "ls *", "cat *",
			"head *", "tail *", "wc *", "sort *", "uniq *",
		},
		Environment: map[string]string{},
		Secrets:     nil,
		Complexity:  ComplexityMedium,
	}
}

func appendUnique(seq []string, v string) []string {
	for _, existing := range seq {
		if existing == v {
			return seq
		}
	}
	return append(seq, v)
}

// AddReadPath appends pattern if not already present.
func (m *Manifest) AddReadPath(pattern string) { m.ReadablePaths = appendUnique(m.ReadablePaths, pattern) }

// AddWritePath appends pattern if not already present.
func (m *Manifest) AddWritePath(pattern string) { m.WritablePaths = appendUnique(m.WritablePaths, pattern) }

// AllowCommand appends cmd if not already present.
func (m *Manifest) AllowCommand(cmd string) { m.AllowedCommands = appendUnique(m.AllowedCommands, cmd) }

// EnableTool appends tool if not already present.
func (m *Manifest) EnableTool(tool string) { m.AllowedTools = appendUnique(m.AllowedTools, tool) }

// InjectSecret appends secret if not already present.
func (m *Manifest) InjectSecret(secret string) { m.Secrets = appendUnique(m.Secrets, secret) }

// InjectEnvVar sets environment[v] to a placeholder; the real value is
// resolved from an external secret source at launch time, never logged.
func (m *Manifest) InjectEnvVar(v string) {
	if m.Environment == nil {
		m.Environment = map[string]string{}
	}
	m.Environment[v] = "${" + v + "}"
}

// Clone returns a deep copy so callers can widen a manifest without
// mutating one still in use by another Watcher invocation.
func (m Manifest) Clone() Manifest {
	out := Manifest{
		ReadablePaths:   append([]string(nil), m.ReadablePaths...),
		WritablePaths:   append([]string(nil), m.WritablePaths...),
		AllowedTools:    append([]string(nil), m.AllowedTools...),
		AllowedCommands: append([]string(nil), m.AllowedCommands...),
		Secrets:         append([]string(nil), m.Secrets...),
		Complexity:      m.Complexity,
	}
	if m.Environment != nil {
		out.Environment = make(map[string]string, len(m.Environment))
		for k, v := range m.Environment {
			out.Environment[k] = v
		}
	}
	return out
}
