package cpuref

import (
	"context"
	"math"
	"testing"

	"github.com/insightpipe/isat/internal/match"
)

// descSet builds a match.DescriptorSet from hand-specified per-index
// descriptor vectors, so tests can control distances directly instead of
// working backward from raw uint8/float32 bytes.
func descSet(vectors [][]float64) match.DescriptorSet {
	return match.DescriptorSet{
		NumFeatures:  len(vectors),
		DescriptorAt: func(i int) []float64 { return vectors[i] },
	}
}

func TestRatioTestAndMutualBest(t *testing.T) {
	// A[0]'s NN is B[0] (dist 0.1), 2-NN is B[1] (dist 0.2): ratio 0.5.
	// A[1]'s NN is also B[0] (dist 0.3), so it loses mutual-best to A[0].
	a := descSet([][]float64{
		{0, 0, 0},
		{0.4, 0, 0},
		{10, 10, 10},
	})
	b := descSet([][]float64{
		{0.1, 0, 0},
		{0, 0.2, 0},
		{20, 20, 20},
	})

	opts := match.Options{
		RatioTest:       0.8,
		DistanceMax:     0.7,
		MaxMatches:      -1,
		MutualBestMatch: true,
	}

	m := NewMatcher()
	res, err := m.Match(context.Background(), a, b, opts)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Indices1) != 1 {
		t.Fatalf("expected 1 match, got %d: %+v", len(res.Indices1), res)
	}
	if res.Indices1[0] != 0 || res.Indices2[0] != 0 {
		t.Fatalf("expected match (0,0), got (%d,%d)", res.Indices1[0], res.Indices2[0])
	}
}

func TestGuidedMatchingRejectsGeometryOutliers(t *testing.T) {
	// Three correspondences: the first two are consistent with the
	// identity homography (p2 == p1); the third is a deliberate outlier
	// whose p2 is displaced far from H*p1.
	a := descSet([][]float64{{0, 0}, {1, 0}, {2, 0}})
	b := descSet([][]float64{{0, 0}, {1, 0}, {2, 0}})

	coords1 := map[int][2]float64{0: {0, 0}, 1: {10, 0}, 2: {20, 0}}
	coords2 := map[int][2]float64{0: {0, 0}, 1: {10, 0}, 2: {999, 999}} // outlier

	opts := match.Options{
		RatioTest:           1.0,
		DistanceMax:         1.0,
		MaxMatches:          -1,
		MutualBestMatch:     true,
		UseGuidedMatching:   true,
		H:                   &[3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		HomographyThreshold: 5,
	}

	m := NewMatcher()
	res, err := m.MatchGuided(context.Background(), a, b,
		func(i int) [2]float64 { return coords1[i] },
		func(i int) [2]float64 { return coords2[i] },
		opts)
	if err != nil {
		t.Fatalf("MatchGuided: %v", err)
	}
	for k := range res.Indices1 {
		if res.Indices1[k] == 2 {
			t.Fatalf("geometry outlier (index 2) should have been rejected by guided matching")
		}
	}
	if len(res.Indices1) < 2 {
		t.Fatal("expected at least the two geometry-consistent matches to survive")
	}
}

func TestEmptyFeatureSetYieldsNoMatches(t *testing.T) {
	m := NewMatcher()
	res, err := m.Match(context.Background(), descSet(nil), descSet([][]float64{{0, 0}}), match.DefaultOptions())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Indices1) != 0 {
		t.Fatalf("expected no matches on empty input, got %d", len(res.Indices1))
	}
}

func TestNearestTwoDeterministic(t *testing.T) {
	a := descSet([][]float64{{1, 1, 1}})
	b := descSet([][]float64{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}})
	nn := nearestTwo(a, b)
	if nn[0].best != 1 {
		t.Fatalf("expected nearest index 1, got %d", nn[0].best)
	}
	if math.Abs(nn[0].bestDist) > 1e-9 {
		t.Fatalf("expected zero distance to exact match, got %v", nn[0].bestDist)
	}
}
