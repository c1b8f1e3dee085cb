// Package main provides panel-seed, a load and consistency check for a running panel service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/okian/panel/internal/domain/consensus"
	"github.com/okian/panel/internal/seed"
	"github.com/okian/panel/pkg/logger"
	"github.com/spf13/cobra"
)

const defaultRunTimeout = 10 * time.Minute

var (
	cfg        = seed.DefaultConfig()
	runTimeout time.Duration
	logFormat  string
	penalty    float64
)

var rootCmd = &cobra.Command{
	Use:   "panel-seed",
	Short: "Seed a panel service and verify its consensus analysis",
	Long: "panel-seed registers reviewers and criteria, submits evaluations with controlled agreement " +
		"profiles over HTTP, then recomputes every application locally and compares the result " +
		"with what the service reports.",
	SilenceUsage: true,
	RunE:         runSeed,
}

func init() {
	cfg.Workers = runtime.NumCPU() * 2
	f := rootCmd.Flags()
	f.StringVarP(&cfg.BaseURL, "url", "u", cfg.BaseURL, "Base URL of the service")
	f.IntVarP(&cfg.Applications, "applications", "a", cfg.Applications, "Number of applications to generate")
	f.IntVarP(&cfg.Reviewers, "reviewers", "r", cfg.Reviewers, "Number of reviewers to register")
	f.IntVar(&cfg.PanelSize, "panel", cfg.PanelSize, "Reviewers assigned to each application")
	f.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "Concurrent requests")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.DurationVar(&cfg.Settle, "settle", cfg.Settle, "How long to wait for the ranking to include every application")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed for generated scores")
	f.IntVar(&cfg.ResendEvery, "resend-every", cfg.ResendEvery, "Resend every Nth submission to check idempotency (0 disables)")
	f.Float64Var(&cfg.Policy.AgreementThreshold, "agreement-threshold", cfg.Policy.AgreementThreshold, "Agreement threshold the service runs with")
	f.Float64Var(&cfg.Policy.MaxStdDev, "max-std-dev", cfg.Policy.MaxStdDev, "Maximum standard deviation the service runs with")
	f.IntVar(&cfg.Policy.MinEvaluations, "min-evaluations", cfg.Policy.MinEvaluations, "Minimum scored evaluations the service runs with")
	f.Float64Var(&penalty, "score-penalty-slope", 1, "Score agreement penalty per point of deviation")
	f.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "Overall time limit")
	f.StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log every verified application")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSeed(cmd *cobra.Command, _ []string) error {
	if err := logger.Init(logger.WithFormat(logFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.Verbose {
		_ = logger.SetLevelString("debug")
	}

	cfg.Policy.Curve = consensus.LinearPenalty{Slope: penalty}
	cfg.Logger = logger.Named("seed")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	rep, err := seed.Run(ctx, cfg)
	if err != nil {
		for _, m := range rep.Mismatches {
			fmt.Fprintf(os.Stderr, "%s:\n%s\n", m.ApplicationID, m.Diff)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d applications verified, %d submissions (%d duplicates, %d failed) in %s\n",
		rep.RunID, rep.Verified, rep.Submitted, rep.Duplicates, rep.Failed, rep.Duration.Round(time.Millisecond))
	return nil
}
