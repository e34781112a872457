// Command isat-extract runs the feature-extraction driver over an image
// list, writing one .isat_feat IDC file per image.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/insightpipe/isat/internal/cliio"
	"github.com/insightpipe/isat/internal/config"
	"github.com/insightpipe/isat/internal/extract"
	"github.com/insightpipe/isat/internal/extract/cpuref"
	"github.com/insightpipe/isat/internal/telemetry"
)

var (
	inputPath string
	outputDir string
	verbose   bool
	quiet     bool
	quantize  bool
)

func run(cmd *cobra.Command, args []string) error {
	logger := telemetry.Noop
	switch {
	case verbose:
		logger = telemetry.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	case !quiet:
		logger = telemetry.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	}

	images, paths, err := cliio.LoadImageList(inputPath)
	if err != nil {
		return err
	}

	cfg := config.DefaultExtraction()
	cfg.Quantize = quantize
	if err := cfg.Validate(); err != nil {
		return err
	}

	specs := make([]extract.ImageSpec, len(images))
	for i, info := range images {
		specs[i] = extract.ImageSpec{Path: paths[i], CameraID: info.CameraID}
	}

	driver := extract.NewDriver(cfg, cpuref.NewExtractor(), logger, telemetry.NewLoggingHook(logger))
	results, err := driver.Run(context.Background(), specs, outputDir)
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
		logger.Warn("extract.summary", "failed", failed, "total", len(results))
	}
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "isat-extract",
		Short: "Extract SIFT-like features from an image list into IDC feature files",
		RunE:  run,
	}
	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "image list JSON (required)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for .isat_feat files (required)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error logging")
	rootCmd.Flags().BoolVar(&quantize, "quantize", true, "quantize descriptors to uint8")
	rootCmd.MarkFlagRequired("input")
	rootCmd.MarkFlagRequired("output")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
