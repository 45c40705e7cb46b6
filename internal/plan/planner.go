package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON means the agent's output contained nothing parseable as a
// plan.
var ErrNoJSON = errors.New("no JSON found in plan output")

// ErrDependencyCycle means the plan's blocked_by edges form a cycle.
var ErrDependencyCycle = errors.New("dependency cycle")

type planJSON struct {
	Title    string     `json:"title"`
	Overview string     `json:"overview"`
	Tasks    []taskJSON `json:"tasks"`
	Risks    []string   `json:"risks"`
}

type taskJSON struct {
	ID                 string   `json:"id"`
	Subject            string   `json:"subject"`
	Description        string   `json:"description"`
	BlockedBy          []string `json:"blocked_by"`
	Component          string   `json:"component"`
	Complexity         string   `json:"complexity"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
}

// Parse extracts plan JSON from free-form agent output (possibly inside a
// markdown code fence) and converts it to a Plan.
func Parse(output string) (*Plan, error) {
	jsonStr, ok := extractJSON(output)
	if !ok {
		return nil, ErrNoJSON
	}

	var parsed planJSON
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("parse plan JSON: %w", err)
	}

	p := &Plan{Title: parsed.Title, Overview: parsed.Overview, Risks: parsed.Risks}
	for _, tj := range parsed.Tasks {
		p.Tasks = append(p.Tasks, Task{
			ID:                 tj.ID,
			Subject:            tj.Subject,
			Description:        tj.Description,
			Status:             StatusPending,
			BlockedBy:          tj.BlockedBy,
			Component:          tj.Component,
			Complexity:         parseComplexity(tj.Complexity),
			AcceptanceCriteria: tj.AcceptanceCriteria,
		})
	}
	return p, nil
}

func parseComplexity(s string) Complexity {
	switch strings.ToLower(s) {
	case "low":
		return ComplexityLow
	case "high":
		return ComplexityHigh
	default:
		return ComplexityMedium
	}
}

// extractJSON finds plan JSON in output, preferring a ```json fence over
// a bare first-{-to-last-} slice.
func extractJSON(output string) (string, bool) {
	if start := strings.Index(output, "```json"); start >= 0 {
		rest := output[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), true
		}
	}

	first := strings.Index(output, "{")
	last := strings.LastIndex(output, "}")
	if first < 0 || last < 0 || first >= last {
		return "", false
	}
	return output[first : last+1], true
}

// Validate checks a parsed plan for completeness: non-empty, titled,
// acyclic, task IDs well-formed, and every dependency known.
func Validate(p *Plan) error {
	if len(p.Tasks) == 0 {
		return errors.New("plan produced no tasks")
	}
	if strings.TrimSpace(p.Title) == "" {
		return errors.New("plan has no title")
	}

	if cycle, found := p.HasCycle(); found {
		return fmt.Errorf("%w: %s", ErrDependencyCycle, cycle)
	}

	known := make(map[string]struct{}, len(p.Tasks))
	for _, t := range p.Tasks {
		known[t.ID] = struct{}{}
	}
	for _, t := range p.Tasks {
		if !strings.HasPrefix(t.ID, "CRUISE-") {
			return fmt.Errorf("task ID %q must use CRUISE-XXX format", t.ID)
		}
		if strings.TrimSpace(t.Subject) == "" {
			return fmt.Errorf("task %s has no subject", t.ID)
		}
		for _, dep := range t.BlockedBy {
			if _, ok := known[dep]; !ok {
				return fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
			}
		}
	}
	return nil
}

// Markdown renders the plan for a human reader, including its parallel
// execution waves.
func Markdown(p *Plan) string {
	var md strings.Builder

	fmt.Fprintf(&md, "# %s\n\n", p.Title)
	md.WriteString(p.Overview)
	md.WriteString("\n\n## Tasks\n\n")
	for _, t := range p.Tasks {
		fmt.Fprintf(&md, "### %s: %s\n\n", t.ID, t.Subject)
		fmt.Fprintf(&md, "- Complexity: %s\n", t.Complexity)
		if t.Component != "" {
			fmt.Fprintf(&md, "- Component: %s\n", t.Component)
		}
		if len(t.BlockedBy) > 0 {
			fmt.Fprintf(&md, "- Blocked by: %s\n", strings.Join(t.BlockedBy, ", "))
		}
		md.WriteString("\n")
		md.WriteString(t.Description)
		md.WriteString("\n\n")
	}

	md.WriteString("## Parallel Execution Groups\n\n")
	for i, wave := range p.ExecutionWaves() {
		if len(wave) > 1 {
			fmt.Fprintf(&md, "- **Wave %d**: %s *(parallel)*\n", i+1, strings.Join(wave, ", "))
		} else {
			fmt.Fprintf(&md, "- **Wave %d**: %s\n", i+1, strings.Join(wave, ", "))
		}
	}
	md.WriteString("\n")

	if len(p.Risks) > 0 {
		md.WriteString("## Risk Areas\n\n")
		for _, risk := range p.Risks {
			fmt.Fprintf(&md, "- %s\n", risk)
		}
	}

	return md.String()
}

// PRBody renders the plan as a pull-request body: summary, the original
// prompt folded away, a task table, and the execution waves.
func PRBody(p *Plan, userPrompt string, iterations int) string {
	var body strings.Builder

	body.WriteString("## Summary\n\n")
	body.WriteString(p.Overview)
	body.WriteString("\n\n<details>\n<summary>Original Prompt</summary>\n\n")
	body.WriteString(userPrompt)
	body.WriteString("\n\n</details>\n\n")

	fmt.Fprintf(&body, "## Tasks (%d)\n\n", len(p.Tasks))
	body.WriteString("| ID | Subject | Component | Complexity | Dependencies |\n")
	body.WriteString("|----|---------|-----------|------------|---------------|\n")
	for _, t := range p.Tasks {
		component := t.Component
		if component == "" {
			component = "-"
		}
		deps := "-"
		if len(t.BlockedBy) > 0 {
			deps = strings.Join(t.BlockedBy, ", ")
		}
		fmt.Fprintf(&body, "| %s | %s | %s | %s | %s |\n", t.ID, t.Subject, component, t.Complexity, deps)
	}
	body.WriteString("\n## Parallel Execution\n\n")
	for i, wave := range p.ExecutionWaves() {
		if len(wave) > 1 {
			fmt.Fprintf(&body, "- **Wave %d**: %s *(parallel)*\n", i+1, strings.Join(wave, ", "))
		} else {
			fmt.Fprintf(&body, "- **Wave %d**: %s\n", i+1, strings.Join(wave, ", "))
		}
	}

	fmt.Fprintf(&body, "\n## Planning Stats\n\n- **Iterations**: %d\n", iterations)
	return body.String()
}
