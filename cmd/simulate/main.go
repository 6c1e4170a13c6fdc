package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/shipwatch/internal/simulate"
	"github.com/okian/shipwatch/pkg/logger"
)

const (
	defaultWorkerMultiplier = 2
	defaultRunTimeout       = 10 * time.Minute
)

var (
	cfg        = simulate.DefaultConfig()
	runTimeout time.Duration
	logFormat  string

	rootCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Drive a shipwatch service with generated shipments",
		Long: `simulate generates a reproducible fleet of shipments, posts their plans
and tracking events to a running shipwatch service, waits for the alerts to
be recomputed and checks the alerts and the risk board it gets back.

The same --seed always produces the same fleet, so a failing run can be
replayed against a fixed build.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr()), logger.WithFormat(logFormat)); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			if cfg.Verbose {
				return logger.SetLevelString("debug")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()
			_, err := simulate.Run(ctx, cfg)
			return err
		},
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	cfg.Workers = runtime.NumCPU() * defaultWorkerMultiplier

	flags := rootCmd.PersistentFlags()
	flags.IntVar(&cfg.Shipments, "shipments", cfg.Shipments, "Number of shipments to generate")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Scenario seed")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	run := rootCmd.Flags()
	run.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "Base URL of the service")
	run.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of concurrent workers")
	run.Float64Var(&cfg.Rate, "rate", 0, "Requests per second, 0 for unlimited")
	run.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	run.DurationVar(&cfg.Settle, "settle", cfg.Settle, "How long to wait for recomputation to finish")
	run.IntVar(&cfg.TopN, "top", cfg.TopN, "Number of risk board rows to fetch")
	run.Uint64Var(&cfg.Retries, "retries", cfg.Retries, "Retries per request on backpressure")
	run.StringVarP(&cfg.OutputFile, "output", "o", "", "Write the generated scenarios to this file")
	run.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "Upper bound for the whole run")

	rootCmd.AddCommand(generateCmd)
}
