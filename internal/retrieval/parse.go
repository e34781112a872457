package retrieval

import (
	"fmt"
	"strings"

	"github.com/insightpipe/isat/internal/apperrors"
	"github.com/insightpipe/isat/internal/codebook"
	"github.com/insightpipe/isat/internal/config"
	"github.com/insightpipe/isat/internal/retrieval/vocab"
)

// Dependencies bundles the external resources some strategies need:
// pre-trained codebooks and a way to load an image's descriptor array.
// Strategies that don't need a given resource simply ignore it.
type Dependencies struct {
	Load     FeatureLoader
	Codebook *codebook.VLADCodebook
	PCA      *codebook.PCAModel // optional
	Vocab    *vocab.Vocabulary
}

// ParseStrategies splits a CLI strategy spec like "gps+vlad" on "+" and
// builds one Strategy per named component, configured from cfg. Each
// strategy name is registered exactly once in this switch; unlike the
// vocabulary-tree dispatch it was grounded on, there is no duplicate
// registration path here.
func ParseStrategies(spec string, cfg config.Retrieval, deps Dependencies) ([]Strategy, error) {
	names := strings.Split(spec, "+")
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		s, err := buildStrategy(name, cfg, deps)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func buildStrategy(name string, cfg config.Retrieval, deps Dependencies) (Strategy, error) {
	switch name {
	case "exhaustive":
		return ExhaustiveStrategy{}, nil
	case "sequential":
		return SequentialStrategy{Window: cfg.Window}, nil
	case "gps":
		return GPSStrategy{
			Radius:       cfg.GPSRadius,
			MaxNeighbors: cfg.GPSMaxNeighbor,
			UseIMUFilter: cfg.UseIMUFilter,
			MaxAngle:     cfg.IMUMaxAngle,
		}, nil
	case "vlad":
		if deps.Codebook == nil {
			return nil, apperrors.New(apperrors.KindConfig, "retrieval.parse_strategies", apperrors.ErrEmptyInput)
		}
		return VLADStrategy{
			Codebook: deps.Codebook,
			PCA:      deps.PCA,
			TopK:     cfg.VLADTopK,
			Sigma:    cfg.VLADSigma,
			Load:     deps.Load,
		}, nil
	case "vocab":
		if deps.Vocab == nil {
			return nil, apperrors.New(apperrors.KindConfig, "retrieval.parse_strategies", apperrors.ErrEmptyInput)
		}
		return VocabStrategy{Vocab: deps.Vocab, TopK: cfg.VocabTopK, Load: deps.Load}, nil
	default:
		return nil, apperrors.New(apperrors.KindConfig, "retrieval.parse_strategies", fmt.Errorf("unknown retrieval strategy %q", name))
	}
}
