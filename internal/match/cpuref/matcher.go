// Package cpuref implements a deterministic CPU reference matcher,
// satisfying match.Matcher without a GPU descriptor-matching backend.
package cpuref

import (
	"context"
	"math"

	"github.com/insightpipe/isat/internal/match"
)

// Matcher brute-force computes nearest/second-nearest neighbors in both
// directions, then applies Lowe's ratio test, the distance cutoff, and
// (optionally) mutual-best-match and guided-geometry filtering.
type Matcher struct{}

// NewMatcher creates a CPU reference Matcher.
func NewMatcher() *Matcher { return &Matcher{} }

// Match implements match.Matcher.
func (m *Matcher) Match(ctx context.Context, f1, f2 match.DescriptorSet, opts match.Options) (match.Result, error) {
	return m.run(ctx, f1, f2, opts)
}

// MatchGuided runs the same ratio/mutual-best pipeline as Match, then
// additionally discards any surviving correspondence whose geometric
// error against F (Sampson distance) or H (reprojection error) exceeds
// the configured threshold. coords provides the pixel location of
// descriptor i in each image, needed only for the geometric check.
func (m *Matcher) MatchGuided(ctx context.Context, f1, f2 match.DescriptorSet, coords1, coords2 func(i int) [2]float64, opts match.Options) (match.Result, error) {
	res, err := m.run(ctx, f1, f2, opts)
	if err != nil || !opts.UseGuidedMatching {
		return res, err
	}

	kept1 := res.Indices1[:0]
	kept2 := res.Indices2[:0]
	for k := range res.Indices1 {
		i1, i2 := int(res.Indices1[k]), int(res.Indices2[k])
		p1, p2 := coords1(i1), coords2(i2)

		ok := true
		if opts.F != nil {
			d := sampsonDistance(*opts.F, p1, p2)
			if d > opts.FundamentalThreshold {
				ok = false
			}
		}
		if ok && opts.H != nil {
			d := reprojectionError(*opts.H, p1, p2)
			if d > opts.HomographyThreshold {
				ok = false
			}
		}
		if ok {
			kept1 = append(kept1, res.Indices1[k])
			kept2 = append(kept2, res.Indices2[k])
		}
	}
	return match.Result{Indices1: kept1, Indices2: kept2}, nil
}

func (m *Matcher) run(_ context.Context, f1, f2 match.DescriptorSet, opts match.Options) (match.Result, error) {
	if f1.NumFeatures == 0 || f2.NumFeatures == 0 {
		return match.Result{}, nil
	}

	fwd := nearestTwo(f1, f2)
	var bwd []nnPair
	if opts.MutualBestMatch {
		bwd = nearestTwo(f2, f1)
	}

	ratio := opts.RatioTest
	if ratio <= 0 {
		ratio = 1
	}

	var idx1, idx2 []uint16
	for i, nn := range fwd {
		if nn.best < 0 {
			continue
		}
		if nn.secondDist > 0 && nn.bestDist/nn.secondDist > ratio {
			continue
		}
		if nn.bestDist > opts.DistanceMax {
			continue
		}
		if opts.MutualBestMatch {
			back := bwd[nn.best]
			if back.best != i {
				continue
			}
		}
		idx1 = append(idx1, uint16(i))
		idx2 = append(idx2, uint16(nn.best))
	}

	if opts.MaxMatches > 0 && len(idx1) > opts.MaxMatches {
		idx1 = idx1[:opts.MaxMatches]
		idx2 = idx2[:opts.MaxMatches]
	}

	return match.Result{Indices1: idx1, Indices2: idx2}, nil
}

type nnPair struct {
	best       int
	bestDist   float64
	secondDist float64
}

// nearestTwo finds, for every descriptor in a, its nearest and
// second-nearest descriptor in b by L2 distance over 128 dims.
func nearestTwo(a, b match.DescriptorSet) []nnPair {
	out := make([]nnPair, a.NumFeatures)
	for i := 0; i < a.NumFeatures; i++ {
		da := a.DescriptorAt(i)
		best := -1
		bestDist, secondDist := math.Inf(1), math.Inf(1)
		for j := 0; j < b.NumFeatures; j++ {
			d := l2(da, b.DescriptorAt(j))
			if d < bestDist {
				secondDist = bestDist
				best, bestDist = j, d
			} else if d < secondDist {
				secondDist = d
			}
		}
		out[i] = nnPair{best: best, bestDist: bestDist, secondDist: secondDist}
	}
	return out
}

func l2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// sampsonDistance computes the Sampson approximation to geometric error
// for a point correspondence under fundamental matrix F.
func sampsonDistance(f [3][3]float64, p1, p2 [2]float64) float64 {
	x1 := [3]float64{p1[0], p1[1], 1}
	x2 := [3]float64{p2[0], p2[1], 1}

	var fx1 [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			fx1[i] += f[i][j] * x1[j]
		}
	}
	var ftx2 [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ftx2[i] += f[j][i] * x2[j]
		}
	}
	var x2fx1 float64
	for i := 0; i < 3; i++ {
		x2fx1 += x2[i] * fx1[i]
	}

	denom := fx1[0]*fx1[0] + fx1[1]*fx1[1] + ftx2[0]*ftx2[0] + ftx2[1]*ftx2[1]
	if denom == 0 {
		return math.Inf(1)
	}
	return (x2fx1 * x2fx1) / denom
}

// reprojectionError computes Euclidean pixel error between p2 and H*p1.
func reprojectionError(h [3][3]float64, p1, p2 [2]float64) float64 {
	x := [3]float64{p1[0], p1[1], 1}
	var hx [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			hx[i] += h[i][j] * x[j]
		}
	}
	if hx[2] == 0 {
		return math.Inf(1)
	}
	px, py := hx[0]/hx[2], hx[1]/hx[2]
	dx, dy := px-p2[0], py-p2[1]
	return math.Sqrt(dx*dx + dy*dy)
}
