package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-der/internal/bench"
	"github.com/jamesainslie/go-der/internal/config"
	"github.com/jamesainslie/go-der/tokenizer"
)

func newSweepCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		opts                          options
		sweepMin, sweepMax, sweepStep float32
	)

	cmd := &cobra.Command{
		Use:   "sweep --input_path CORPUS",
		Short: "Score the corpus at a range of confidence thresholds",
		Long: `sweep recognizes the corpus once with no confidence cut-off, then scores
the predictions at every threshold from --sweep-min up to (not including)
--sweep-max and reports the threshold with the best F1.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup(cmd, stderr)
			if err != nil {
				return err
			}
			if sweepStep <= 0 || sweepMin >= sweepMax {
				return fmt.Errorf("invalid sweep range [%v, %v) step %v", sweepMin, sweepMax, sweepStep)
			}
			thresholds := bench.SweepThresholds(sweepMin, sweepMax, sweepStep)
			return runSweep(cmd.Context(), cfg, opts.inputPath, thresholds, stdout, logger)
		},
	}

	opts.bind(cmd, false)
	f := cmd.Flags()
	f.Float32Var(&sweepMin, "sweep-min", 0.1, "sweep minimum threshold")
	f.Float32Var(&sweepMax, "sweep-max", 1.0, "sweep maximum threshold (exclusive)")
	f.Float32Var(&sweepStep, "sweep-step", 0.1, "sweep step size")

	return cmd
}

func runSweep(ctx context.Context, cfg config.Config, inputPath string, thresholds []float32, stdout io.Writer, logger *slog.Logger) error {
	// Keep every span so each threshold can be applied afterwards.
	cfg.Model.Threshold = 0

	gold, pred, err := recognize(ctx, cfg, inputPath, logger)
	if err != nil {
		return err
	}

	conv := cfg.ParsedConvention()
	results, err := bench.Sweep(gold, pred, tokenizer.Words, thresholds, conv, cfg.EntityType)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Threshold Sweep Results (%s)\n", conv)
	fmt.Fprintln(&b, strings.Repeat("-", 44))
	fmt.Fprintf(&b, "%-10s %-10s %-10s %-10s\n", "Thresh", "Prec", "Rec", "F1")

	// Print sorted by threshold for readability
	for _, t := range thresholds {
		for _, r := range results {
			if r.Threshold == t {
				fmt.Fprintf(&b, "%-10.3f %-10.4f %-10.4f %-10.4f\n",
					r.Threshold, r.Scores.Precision, r.Scores.Recall, r.Scores.F1)
				break
			}
		}
	}

	fmt.Fprintln(&b, strings.Repeat("-", 44))
	if len(results) > 0 {
		best := results[0]
		fmt.Fprintf(&b, "Optimal: %.3f (F1: %.4f)\n", best.Threshold, best.Scores.F1)
	}

	_, err = io.WriteString(stdout, b.String())
	return err
}
