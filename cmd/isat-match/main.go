// Command isat-match runs the pair-matching driver over a candidate pair
// list, writing one .isat_match IDC file per surviving pair.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/insightpipe/isat/internal/cliio"
	"github.com/insightpipe/isat/internal/config"
	"github.com/insightpipe/isat/internal/match"
	"github.com/insightpipe/isat/internal/telemetry"
)

var (
	pairListPath string
	outputDir    string
	guided       bool
	ratioTest    float64
	verbose      bool
	quiet        bool
)

func run(cmd *cobra.Command, args []string) error {
	logger := telemetry.Noop
	switch {
	case verbose:
		logger = telemetry.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	case !quiet:
		logger = telemetry.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	}

	pairs, err := cliio.LoadPairList(pairListPath)
	if err != nil {
		return err
	}

	matchPairs := make([]match.PairSpec, len(pairs))
	for i, p := range pairs {
		matchPairs[i] = match.PairSpec{
			Image1ID: p.Image1ID, Image2ID: p.Image2ID,
			Feature1File: p.Feature1File, Feature2File: p.Feature2File,
		}
	}

	cfg := config.DefaultMatching()
	cfg.UseGuidedMatching = guided
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := match.DefaultOptions()
	if ratioTest > 0 {
		opts.RatioTest = ratioTest
	}
	opts.UseGuidedMatching = guided

	driver := match.NewDriver(cfg, opts, logger, telemetry.NewLoggingHook(logger))
	results, err := driver.Run(context.Background(), matchPairs, outputDir)
	if err != nil {
		return err
	}

	failed := 0
	for i, r := range results {
		fmt.Fprintf(os.Stderr, "PROGRESS: %.4f\n", float64(i+1)/float64(len(results)))
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("match.summary", "failed", failed, "total", len(results))
	}
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "isat-match",
		Short: "Match descriptor pairs from a candidate pair list into per-pair IDC match files",
		RunE:  run,
	}
	rootCmd.Flags().StringVarP(&pairListPath, "pairs", "p", "", "candidate pair list JSON (required)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for .isat_match files (required)")
	rootCmd.Flags().BoolVarP(&guided, "guided", "g", false, "enable geometry-guided outlier rejection")
	rootCmd.Flags().Float64VarP(&ratioTest, "ratio-test", "r", 0, "Lowe's ratio test threshold (0 = config default)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error logging")
	rootCmd.MarkFlagRequired("pairs")
	rootCmd.MarkFlagRequired("output")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
