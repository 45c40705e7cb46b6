package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentops/cruise/internal/adapters"
	"github.com/agentops/cruise/internal/config"
	"github.com/agentops/cruise/internal/metrics"
	"github.com/agentops/cruise/internal/monitor"
	"github.com/agentops/cruise/internal/observability"
	"github.com/agentops/cruise/internal/sandbox"
	"github.com/agentops/cruise/internal/team"
	"github.com/agentops/cruise/internal/watcher"
)

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Run a single spawn-team workflow for a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWorkflow(ctx, args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// session bundles the wired-up engine for one CLI invocation.
type session struct {
	cfg      *config.Config
	log      *zap.Logger
	obs      *observability.Log
	provider *sandbox.GitWorktreeProvider
	orch     *team.Orchestrator
}

// buildSession wires config, logging, metrics, sandbox provider, agent
// runners, and the team orchestrator for the repository at cwd.
func buildSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return nil, err
	}

	obs := observability.NewLog()
	obs.Hook = metrics.New(prometheus.DefaultRegisterer).Hook()

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	repoRoot, err := sandbox.GetRepoRoot(cwd, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("cruise must run inside a git repository: %w", err)
	}

	provider := sandbox.NewGitWorktreeProvider(repoRoot, 60*time.Second, log)
	primaryRunner := runnerFor(cfg.Runner, log)
	reviewerRunner := runnerFor(cfg.ReviewerRunner, log)

	w := watcher.New(provider, primaryRunner, log)
	w.Obs = obs

	maxEscalations := cfg.MaxEscalations
	if cfg.FailFast {
		maxEscalations = 0
	}
	watcherCfg := watcher.Config{
		Timeout: monitor.TimeoutConfig{
			IdleTimeout:  time.Duration(cfg.IdleTimeoutSecs) * time.Second,
			TotalTimeout: time.Duration(cfg.TimeoutSecs) * time.Second,
		},
		RecoveryStrategy: watcher.Moderate,
		MaxEscalations:   maxEscalations,
	}

	teamCfg := team.DefaultConfig()
	teamCfg.Mode = team.CoordinationMode(cfg.TeamMode)
	teamCfg.MaxIterations = cfg.MaxIterations
	teamCfg.PrimaryLLM = primaryRunner.Name()
	teamCfg.ReviewerLLM = reviewerRunner.Name()
	teamCfg.MaxEscalations = maxEscalations
	teamCfg.MaxConcurrentReviewers = cfg.MaxConcurrentReviewers

	orch := team.New(teamCfg, w, reviewerRunner, watcherCfg, log)
	orch.Obs = obs

	if teamCfg.Mode == team.GitHubMode {
		host := adapters.NewGHPRHost()
		review := team.NewPrMediatedReview(host, team.NewReviewerLimiter(cfg.MaxConcurrentReviewers), log)
		review.Initial = time.Duration(cfg.Poll.InitialSecs) * time.Second
		review.Max = time.Duration(cfg.Poll.MaxSecs) * time.Second
		review.Multiplier = cfg.Poll.Multiplier
		orch.Review = review
		orch.Host = host
	}

	return &session{cfg: cfg, log: log, obs: obs, provider: provider, orch: orch}, nil
}

func runWorkflow(ctx context.Context, prompt string) error {
	s, err := buildSession()
	if err != nil {
		return err
	}
	defer s.log.Sync() //nolint:errcheck

	sb, err := s.provider.Create(sandbox.DefaultManifest(), "")
	if err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}
	defer func() {
		if err := sb.Cleanup(); err != nil {
			s.log.Warn("sandbox cleanup failed", zap.Error(err))
		}
	}()

	result, err := s.orch.Run(ctx, prompt, sb.Path(), sb.Branch())
	if err != nil {
		return err
	}

	persistRunLogs(s, sb)

	fmt.Println(observability.MarkdownReport(s.obs))
	if !result.Success {
		return errors.New(result.Summary)
	}
	fmt.Println(result.Summary)
	return nil
}

// persistRunLogs writes the run's audit trail, config, and manifest to a
// per-invocation log bundle. Failures only warn: the run itself already
// finished.
func persistRunLogs(s *session, sb sandbox.Sandbox) {
	logs, err := observability.OpenInvocationLogs(s.cfg.LogsDir, sb.RunID())
	if err != nil {
		s.log.Warn("could not open invocation logs", zap.Error(err))
		return
	}
	defer logs.Close()

	if err := logs.Events.WriteAll(s.obs.Records()); err != nil {
		s.log.Warn("could not persist events", zap.Error(err))
	}
	if err := logs.WriteConfig(s.cfg); err != nil {
		s.log.Warn("could not persist config", zap.Error(err))
	}
	if err := logs.WriteManifest(sb.Manifest()); err != nil {
		s.log.Warn("could not persist manifest", zap.Error(err))
	}
}
