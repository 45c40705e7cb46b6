// Package plan models dependency-aware implementation plans: tasks with
// blocked_by edges, cycle detection over the dependency graph, and
// topological execution waves for parallel dispatch.
package plan

import "strings"

// TaskStatus is a task's lifecycle state.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusBlocked    TaskStatus = "blocked"
	StatusSkipped    TaskStatus = "skipped"
)

// Complexity estimates a task's size. It is parsed and rendered with the
// plan; no timeout is derived from it.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Task is a single unit of work in a plan.
type Task struct {
	ID                 string     `json:"id"`
	Subject            string     `json:"subject"`
	Description        string     `json:"description"`
	Status             TaskStatus `json:"status"`
	BlockedBy          []string   `json:"blocked_by,omitempty"`
	Component          string     `json:"component,omitempty"`
	Complexity         Complexity `json:"complexity"`
	AcceptanceCriteria []string   `json:"acceptance_criteria,omitempty"`
	Error              string     `json:"error,omitempty"`
}

// IsReady reports whether the task can execute: pending with every
// dependency completed.
func (t Task) IsReady(completed map[string]struct{}) bool {
	if t.Status != StatusPending {
		return false
	}
	for _, dep := range t.BlockedBy {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	return true
}

// Plan is a complete dependency-aware implementation plan.
type Plan struct {
	Prompt   string   `json:"prompt"`
	Title    string   `json:"title"`
	Overview string   `json:"overview"`
	Tasks    []Task   `json:"tasks"`
	Risks    []string `json:"risks,omitempty"`

	// PlanningIterations is how many ping-pong iterations produced this
	// plan.
	PlanningIterations int `json:"planning_iterations,omitempty"`
}

// ReadyTasks returns the tasks that can execute right now.
func (p *Plan) ReadyTasks() []Task {
	completed := make(map[string]struct{})
	for _, t := range p.Tasks {
		if t.Status == StatusCompleted {
			completed[t.ID] = struct{}{}
		}
	}

	var ready []Task
	for _, t := range p.Tasks {
		if t.IsReady(completed) {
			ready = append(ready, t)
		}
	}
	return ready
}

// HasCycle detects dependency cycles with a three-color DFS. It returns
// the cycle's path ("A -> B -> A") and true when one exists.
func (p *Plan) HasCycle() (string, bool) {
	const (
		white = iota
		gray
		black
	)

	tasks := make(map[string]*Task, len(p.Tasks))
	for i := range p.Tasks {
		tasks[p.Tasks[i].ID] = &p.Tasks[i]
	}

	colors := make(map[string]int, len(tasks))

	var path []string
	var dfs func(node string) (string, bool)
	dfs = func(node string) (string, bool) {
		colors[node] = gray
		path = append(path, node)

		if task, ok := tasks[node]; ok {
			for _, dep := range task.BlockedBy {
				switch colors[dep] {
				case gray:
					path = append(path, dep)
					return strings.Join(path, " -> "), true
				case white:
					if cycle, found := dfs(dep); found {
						return cycle, true
					}
				}
			}
		}

		colors[node] = black
		path = path[:len(path)-1]
		return "", false
	}

	for id := range tasks {
		if colors[id] == white {
			path = path[:0]
			if cycle, found := dfs(id); found {
				return cycle, true
			}
		}
	}
	return "", false
}

// ExecutionWaves groups the plan's tasks into a topological layering:
// wave n holds every task whose dependencies are all satisfied by waves
// 1..n-1, so tasks within one wave can run in parallel. Returns nil for
// an empty plan; a cyclic plan yields waves only for the acyclic prefix
// (validate with HasCycle first).
func (p *Plan) ExecutionWaves() [][]string {
	var waves [][]string
	completed := make(map[string]struct{})
	remaining := make([]Task, len(p.Tasks))
	copy(remaining, p.Tasks)

	for len(remaining) > 0 {
		var ready []string
		readySet := make(map[string]struct{})
		for _, t := range remaining {
			satisfied := true
			for _, dep := range t.BlockedBy {
				if _, ok := completed[dep]; !ok {
					satisfied = false
					break
				}
			}
			if satisfied {
				ready = append(ready, t.ID)
				readySet[t.ID] = struct{}{}
			}
		}

		if len(ready) == 0 {
			// Cycle among the remaining tasks; stop rather than loop.
			break
		}

		for _, id := range ready {
			completed[id] = struct{}{}
		}
		next := remaining[:0]
		for _, t := range remaining {
			if _, ok := readySet[t.ID]; !ok {
				next = append(next, t)
			}
		}
		remaining = next

		waves = append(waves, ready)
	}

	return waves
}
