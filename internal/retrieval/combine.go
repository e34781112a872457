package retrieval

import (
	"sort"

	"github.com/insightpipe/isat/internal/model"
)

// Combine merges candidate pair lists from multiple strategies into one
// deduplicated, score-ranked list: canonicalize, merge on collision (scores
// always sum; the method name only gains a "+other" suffix when the new
// contribution is at least half the existing score), drop low-score pairs,
// sort, and truncate to maxPairs.
func Combine(lists [][]model.ImagePair, scoreFloor float64, maxPairs int) []model.ImagePair {
	merged := map[[2]int]model.ImagePair{}
	order := make([][2]int, 0)

	for _, list := range lists {
		for _, p := range list {
			i, j := p.Canonical()
			key := [2]int{i, j}
			p.Image1Idx, p.Image2Idx = i, j

			existing, ok := merged[key]
			if !ok {
				merged[key] = p
				order = append(order, key)
				continue
			}
			// Scores always accumulate; only the method label and
			// metadata union are gated on the new contribution being a
			// meaningful fraction of what's already there.
			meaningful := p.Score >= 0.5*existing.Score
			existing.Score += p.Score
			if meaningful {
				existing.Method = existing.Method + "+" + p.Method
				existing.SpatialDistance = firstNonNil(existing.SpatialDistance, p.SpatialDistance)
				existing.VisualSimilarity = firstNonNil(existing.VisualSimilarity, p.VisualSimilarity)
				existing.AngleDifference = firstNonNil(existing.AngleDifference, p.AngleDifference)
			}
			merged[key] = existing
		}
	}

	out := make([]model.ImagePair, 0, len(order))
	for _, key := range order {
		p := merged[key]
		if p.Score < scoreFloor {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if maxPairs > 0 && len(out) > maxPairs {
		out = out[:maxPairs]
	}
	return out
}

func firstNonNil(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}
