// cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/riskmodels/catagg/internal/ingest"
	"github.com/riskmodels/catagg/internal/lossseries"
)

var (
	minLossToInclude float64
	mfid             string
	ignoreOrdering   bool
	fullRipScale     float64
	workers          int
	logLevel         string
	configPath       string
	deterministic    bool
	includeRip       bool
	tvarProbs        []float64
)

var rootCmd = &cobra.Command{
	Use:   "catagg",
	Short: "Catastrophe-reinsurance Monte-Carlo loss aggregation engine",
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Ingest a simulation output file and report loss statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)

		cfg, err := loadRunConfig(configPath)
		if err != nil {
			return err
		}
		cfg.applyFlagOverrides(cmd.Flags())

		logrus.Infof("ingesting %s with %d workers (minLoss=%.2f, mfid=%q, ignoreOrdering=%v)",
			args[0], cfg.Workers, cfg.MinLossToInclude, cfg.Mfid, cfg.IgnoreOrdering)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		ingestor := ingest.New(ingest.Options{
			MinLossToInclude: cfg.MinLossToInclude,
			Mfid:             cfg.Mfid,
			IgnoreOrdering:   cfg.IgnoreOrdering,
			FullRipScale:     cfg.FullRipScale,
			Workers:          cfg.Workers,
			Deterministic:    cfg.DeterministicMerge,
		})

		sim, err := ingestor.Run(ctx, args[0])
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}

		mean, sd := sim.ExpectedAndSD(includeRip)
		logrus.Infof("events=%d iterations=%d expectedLoss=%.2f sd=%.2f",
			sim.CountEvents(), sim.NumIter, mean, sd)

		series := lossseries.FromSimulation(sim, includeRip)
		probs := tvarProbs
		if len(probs) == 0 {
			probs = []float64{0.01, 0.05, 0.10}
		}
		alloc := series.AllocatedTVaR(series, probs, false)
		logrus.Infof("self-allocated TVaR at probs=%v: %.6f", probs, alloc)

		return nil
	},
}

// Execute runs the root command, exiting the process with a non-zero
// status on failure. This is the one place in the module permitted to
// call os.Exit (spec §6: the engine itself never does).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().Float64Var(&minLossToInclude, "min-loss", 0, "Drop rows with loss below this threshold")
	runCmd.Flags().StringVar(&mfid, "mfid", "", "Tenant/model id disambiguating Noncat provenance")
	runCmd.Flags().BoolVar(&ignoreOrdering, "ignore-ordering", false, "Synthesize a unique iteration per row instead of trusting iterId")
	runCmd.Flags().Float64Var(&fullRipScale, "full-rip-scale", 1, "Scale factor deriving full_rip from loss when the column is absent")
	runCmd.Flags().IntVar(&workers, "workers", 12, "Number of parallel ingestion worker threads")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&configPath, "config", "", "Optional YAML config file (flags take precedence)")
	runCmd.Flags().BoolVar(&deterministic, "deterministic-merge", false, "Sort shard iteration ids before the terminal merge for bit-stable sums")
	runCmd.Flags().BoolVar(&includeRip, "include-rip", false, "Net reinstatement premium out of reported losses")
	runCmd.Flags().Float64SliceVar(&tvarProbs, "tvar-probs", nil, "Exceedance probabilities for the self-allocated TVaR report")

	rootCmd.AddCommand(runCmd)
}
