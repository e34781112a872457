// Package match implements the matching driver: a 3-stage pipeline that
// loads feature pairs, runs descriptor matching on a pinned stage, and
// writes .isat_match IDC files.
package match

import "context"

// Options controls one Match call's ratio test, distance cutoff, and
// optional mutual-best-match / guided-geometry filtering.
type Options struct {
	RatioTest       float64 // Lowe's ratio, (0,1]
	DistanceMax     float64
	MaxMatches      int // -1 = unlimited
	MutualBestMatch bool

	UseGuidedMatching    bool
	F, H                 *[3][3]float64 // fundamental / homography, row-major
	FundamentalThreshold float64        // Sampson distance
	HomographyThreshold  float64        // reprojection error
}

// DefaultOptions mirrors the matching contract's stated defaults.
func DefaultOptions() Options {
	return Options{
		RatioTest:            0.8,
		DistanceMax:          0.7,
		MaxMatches:           -1,
		MutualBestMatch:      true,
		FundamentalThreshold: 16,
		HomographyThreshold:  32,
	}
}

// Matcher matches two descriptor sets and returns index-pair correspondences.
type Matcher interface {
	Match(ctx context.Context, f1, f2 DescriptorSet, opts Options) (Result, error)
}

// DescriptorSet is the minimal view a Matcher needs: a flat descriptor
// array (either dtype) plus how many descriptors it holds.
type DescriptorSet struct {
	NumFeatures int
	DescriptorAt func(i int) []float64
}

// Result is a matcher's raw index-pair output, before pixel coordinates
// or CPU-side distances are attached by the driver.
type Result struct {
	Indices1 []uint16
	Indices2 []uint16
}
