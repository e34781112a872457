// Command isat-retrieve runs one or more pair-retrieval strategies over an
// image list and writes a candidate pair list for the matching tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/insightpipe/isat/internal/cliio"
	"github.com/insightpipe/isat/internal/codebook"
	"github.com/insightpipe/isat/internal/config"
	"github.com/insightpipe/isat/internal/idc"
	"github.com/insightpipe/isat/internal/model"
	"github.com/insightpipe/isat/internal/retrieval"
	"github.com/insightpipe/isat/internal/retrieval/vocab"
	"github.com/insightpipe/isat/internal/telemetry"
)

var (
	inputPath    string
	featureDir   string
	outputPath   string
	strategySpec string
	window       int
	codebookPath string
	pcaPath      string
	vocabPath    string
	verbose      bool
	quiet        bool
)

func featureLoader(dir string) retrieval.FeatureLoader {
	return func(featureFile string) (model.FeatureSet, error) {
		if dir == "" {
			return idc.ReadFeatureSet(featureFile)
		}
		return idc.ReadFeatureSet(dir + "/" + featureFile)
	}
}

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

	// Feature files follow isat-extract's naming, "<basename>.isat_feat",
	// and are looked up under featureDir.
	featureFiles := make([]string, len(images))
	for i, p := range paths {
		base := filepath.Base(p)
		name := base[:len(base)-len(filepath.Ext(base))] + ".isat_feat"
		images[i].FeatureFile = name
		featureFiles[i] = filepath.Join(featureDir, name)
	}

	cfg := config.DefaultRetrieval()
	if window > 0 {
		cfg.Window = window
	}
	if codebookPath != "" {
		cfg.CodebookPath = codebookPath
	}
	if pcaPath != "" {
		cfg.PCAModelPath = pcaPath
	}
	if vocabPath != "" {
		cfg.VocabPath = vocabPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps := retrieval.Dependencies{Load: featureLoader(featureDir)}
	if cfg.CodebookPath != "" {
		cb, err := codebook.LoadVLADCodebook(cfg.CodebookPath)
		if err != nil {
			return err
		}
		deps.Codebook = cb
		if cfg.PCAModelPath != "" {
			pca, err := codebook.LoadPCA(cfg.PCAModelPath)
			if err != nil {
				return err
			}
			deps.PCA = pca
		}
	}
	if cfg.VocabPath != "" {
		v, err := vocab.LoadVocabulary(cfg.VocabPath)
		if err != nil {
			return err
		}
		deps.Vocab = v
	}

	strategies, err := retrieval.ParseStrategies(strategySpec, cfg, deps)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pairs, err := retrieval.RunCombined(ctx, strategies, images, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "PROGRESS: 1.0000\n")
	logger.Info("retrieve.summary", "images", len(images), "pairs", len(pairs))

	return cliio.WritePairList(outputPath, strategySpec, pairs, images, featureFiles)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "isat-retrieve",
		Short: "Generate candidate image pairs for matching via spatial/visual retrieval",
		RunE:  run,
	}
	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "image list JSON (required)")
	rootCmd.Flags().StringVarP(&featureDir, "feature-dir", "f", "", "directory prefix for feature files referenced by vlad/vocab strategies")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output pair list JSON (required)")
	rootCmd.Flags().StringVarP(&strategySpec, "strategy", "s", "exhaustive", `retrieval strategy, "+"-joined (e.g. "gps+vlad")`)
	rootCmd.Flags().IntVarP(&window, "window", "w", 0, "sequential strategy window size (0 = config default)")
	rootCmd.Flags().StringVarP(&codebookPath, "codebook", "d", "", "VLAD codebook path (.vcbt), required by the vlad strategy")
	rootCmd.Flags().StringVar(&pcaPath, "pca", "", "optional PCA model path (.pca) applied after VLAD aggregation")
	rootCmd.Flags().StringVarP(&vocabPath, "vocab", "k", "", "bag-of-words vocabulary path (.vocab), required by the vocab strategy")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error logging")
	rootCmd.MarkFlagRequired("input")
	rootCmd.MarkFlagRequired("output")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
