package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentops/cruise/internal/config"
	"github.com/agentops/cruise/internal/runner"
)

var (
	// Global flags
	flagTeamMode    string
	flagRunner      string
	flagTimeout     int
	flagOrg         string
	flagAutoApprove bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cruise",
	Short: "Autonomous software-development orchestrator",
	Long: `cruise drives a structured workflow over sandboxed coding agents:
it generates an implementation plan through adversarial multi-model
review, executes the plan in isolated git worktrees, and publishes the
result as a reviewed pull request.

Commands:
  run       Run a single spawn-team workflow for a prompt
  run-full  Plan, approve, and execute a full workflow`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command; any failure prints its summary on
// stderr and exits 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagTeamMode, "team-mode", "", "Coordination mode (sequential, pingpong, github)")
	rootCmd.PersistentFlags().StringVar(&flagRunner, "runner", "", "Primary agent CLI (claude, gemini)")
	rootCmd.PersistentFlags().IntVar(&flagTimeout, "timeout", 0, "Total timeout per agent invocation, in seconds")
	rootCmd.PersistentFlags().StringVar(&flagOrg, "org", "", "Host organization (stored in config; PR creation uses the origin remote)")
	rootCmd.PersistentFlags().BoolVar(&flagAutoApprove, "auto-approve", false, "Skip the plan approval gate")
}

// loadConfig resolves configuration with CLI flags as the top of the
// precedence chain.
func loadConfig() (*config.Config, error) {
	overrides := &config.Config{
		TeamMode:    flagTeamMode,
		Runner:      flagRunner,
		TimeoutSecs: flagTimeout,
		Org:         flagOrg,
	}
	return config.Load(overrides)
}

// buildLogger returns a production logger, or a development logger when
// debug diagnostics are enabled.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runnerFor maps a configured runner name to its agent CLI.
func runnerFor(name string, log *zap.Logger) runner.Runner {
	if name == "gemini" {
		return runner.NewGeminiRunner(log)
	}
	return runner.NewClaudeRunner(log)
}
