package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentops/cruise/internal/adapters"
	"github.com/agentops/cruise/internal/observability"
	"github.com/agentops/cruise/internal/plan"
	"github.com/agentops/cruise/internal/runner"
	"github.com/agentops/cruise/internal/sandbox"
)

var runFullCmd = &cobra.Command{
	Use:   "run-full <prompt>",
	Short: "Plan, approve, and execute a full workflow",
	Long: `run-full drives the complete workflow: a planning pass generates a
dependency-aware task plan, the plan is filed into the issue ledger, and
once approved each execution wave runs through the spawn-team loop.

Without --auto-approve the command stops after printing the plan.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runFullWorkflow(ctx, args[0])
	},
}

func init() {
	rootCmd.AddCommand(runFullCmd)
}

func runFullWorkflow(ctx context.Context, prompt string) error {
	s, err := buildSession()
	if err != nil {
		return err
	}
	defer s.log.Sync() //nolint:errcheck

	p, err := generatePlan(ctx, s, prompt)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	fmt.Println(plan.Markdown(p))

	if err := filePlanIssues(ctx, s, p); err != nil {
		s.log.Warn("could not file plan into issue ledger", zap.Error(err))
	}

	if !flagAutoApprove {
		fmt.Println("Plan generated. Re-run with --auto-approve to execute it.")
		return nil
	}

	return executePlan(ctx, s, p)
}

// generatePlan asks the primary agent for a dependency-aware plan and
// parses its JSON output.
func generatePlan(ctx context.Context, s *session, prompt string) (*plan.Plan, error) {
	planPrompt := buildPlanPrompt(prompt)

	events := make(chan runner.Event, 256)
	collected := make(chan string, 1)
	go func() {
		var b strings.Builder
		for ev := range events {
			if ev.Kind == runner.Stdout {
				b.WriteString(ev.Line)
				b.WriteByte('\n')
			}
		}
		collected <- b.String()
	}()

	primary := runnerFor(s.cfg.Runner, s.log)
	if _, err := primary.Spawn(ctx, runner.SpawnConfig{
		Prompt:     planPrompt,
		WorkingDir: s.provider.RepoRoot(),
		Manifest:   sandbox.DefaultManifest(),
	}, events); err != nil {
		return nil, err
	}

	p, err := plan.Parse(<-collected)
	if err != nil {
		return nil, err
	}
	p.Prompt = prompt
	if err := plan.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func buildPlanPrompt(prompt string) string {
	var b strings.Builder
	b.WriteString("Produce an implementation plan for the following task as a JSON object ")
	b.WriteString(`{"title", "overview", "tasks": [{"id", "subject", "description", "blocked_by", "component", "complexity", "acceptance_criteria"}], "risks"}. `)
	b.WriteString("Task IDs must use the CRUISE-XXX format and blocked_by must reference task IDs.\n\nTask:\n")
	b.WriteString(prompt)
	return b.String()
}

// filePlanIssues mirrors the plan into the issue ledger so execution
// progress is trackable outside the process.
func filePlanIssues(ctx context.Context, s *session, p *plan.Plan) error {
	ledger := adapters.NewIssueLedger(s.provider.RepoRoot())
	if err := ledger.Init(ctx); err != nil {
		return err
	}

	ledgerIDs := make(map[string]string, len(p.Tasks))
	for _, t := range p.Tasks {
		created, err := ledger.Create(ctx, fmt.Sprintf("%s: %s", t.ID, t.Subject), adapters.CreateOptions{
			Description: t.Description,
			Priority:    adapters.PriorityMedium,
			IssueType:   adapters.IssueTask,
		})
		if err != nil {
			return err
		}
		ledgerIDs[t.ID] = created.ID
	}

	for _, t := range p.Tasks {
		for _, dep := range t.BlockedBy {
			if err := ledger.AddDependency(ctx, ledgerIDs[t.ID], ledgerIDs[dep], adapters.DepBlocks); err != nil {
				return err
			}
		}
	}
	return ledger.Sync(ctx)
}

// executePlan runs each execution wave's tasks through the spawn-team
// loop on one shared sandbox branch.
func executePlan(ctx context.Context, s *session, p *plan.Plan) error {
	sb, err := s.provider.Create(sandbox.DefaultManifest(), "")
	if err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}
	defer func() {
		if err := sb.Cleanup(); err != nil {
			s.log.Warn("sandbox cleanup failed", zap.Error(err))
		}
	}()

	tasks := make(map[string]plan.Task, len(p.Tasks))
	for _, t := range p.Tasks {
		tasks[t.ID] = t
	}

	for i, wave := range p.ExecutionWaves() {
		s.log.Info("executing wave", zap.Int("wave", i+1), zap.Strings("tasks", wave))
		for _, id := range wave {
			t := tasks[id]
			taskPrompt := fmt.Sprintf("%s\n\nCurrent task (%s): %s\n%s", p.Prompt, t.ID, t.Subject, t.Description)

			result, err := s.orch.Run(ctx, taskPrompt, sb.Path(), sb.Branch())
			if err != nil {
				return fmt.Errorf("task %s: %w", t.ID, err)
			}
			if !result.Success && s.cfg.FailFast {
				return fmt.Errorf("task %s: %s", t.ID, result.Summary)
			}
			if !result.Success {
				s.log.Warn("task finished without approval", zap.String("task", t.ID), zap.String("summary", result.Summary))
			}
		}
	}

	if !sawCommit(s) {
		return errors.New("no execution wave produced a commit")
	}
	fmt.Println("All execution waves dispatched.")
	return nil
}

// sawCommit checks the audit trail for at least one commit, the minimal
// evidence that execution produced work worth reviewing.
func sawCommit(s *session) bool {
	for _, r := range s.obs.Records() {
		if r.Kind == observability.KindCommit {
			return true
		}
	}
	return false
}
