// Package retrieval generates candidate image-pair lists for the matching
// driver, via a set of pluggable strategies and a combiner that merges
// their output.
package retrieval

import (
	"context"

	"github.com/insightpipe/isat/internal/model"
)

// Strategy produces a scored candidate pair list from a slice of image
// records. Implementations must be pure: the same images slice always
// produces the same output.
type Strategy interface {
	// Name identifies the strategy for ImagePair.Method and log lines.
	Name() string
	Run(ctx context.Context, images []model.ImageInfo) ([]model.ImagePair, error)
}

// ExhaustiveStrategy emits every unordered pair with a uniform score.
type ExhaustiveStrategy struct{}

func (ExhaustiveStrategy) Name() string { return "exhaustive" }

// Run returns all C(N, 2) pairs, canonically ordered, score 1.0.
func (ExhaustiveStrategy) Run(_ context.Context, images []model.ImageInfo) ([]model.ImagePair, error) {
	n := len(images)
	out := make([]model.ImagePair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, model.ImagePair{
				Image1Idx: i,
				Image2Idx: j,
				Score:     1.0,
				Method:    "exhaustive",
			})
		}
	}
	return out, nil
}

// SequentialStrategy emits pairs within a sliding window, for ordered
// (e.g. video-frame) input. Score decays linearly with frame distance.
type SequentialStrategy struct {
	Window int
}

func (SequentialStrategy) Name() string { return "sequential" }

func (s SequentialStrategy) Run(_ context.Context, images []model.ImageInfo) ([]model.ImagePair, error) {
	n := len(images)
	w := s.Window
	if w <= 0 {
		w = 1
	}
	var out []model.ImagePair
	for i := 0; i < n; i++ {
		end := i + w
		if end > n {
			end = n
		}
		for j := i + 1; j < end; j++ {
			score := 1.0 - float64(j-i)/float64(w)
			out = append(out, model.ImagePair{
				Image1Idx: i,
				Image2Idx: j,
				Score:     score,
				Method:    "sequential",
			})
		}
	}
	return out, nil
}
