package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/insightpipe/isat/internal/apperrors"
	"github.com/insightpipe/isat/internal/codebook"
	"github.com/insightpipe/isat/internal/model"
)

// FeatureLoader fetches a FeatureSet by feature-file path, abstracting
// over where the VLAD strategy's descriptor arrays come from (an IDC
// feature file in production, a fixture in tests).
type FeatureLoader func(featureFile string) (model.FeatureSet, error)

// VLADStrategy pairs images by visual similarity of their aggregated
// local-descriptor (VLAD) vectors.
type VLADStrategy struct {
	Codebook *codebook.VLADCodebook
	PCA      *codebook.PCAModel // optional
	TopK     int
	Sigma    float64 // score = exp(-d/Sigma); 0 defaults to 1.0
	Load     FeatureLoader
}

func (VLADStrategy) Name() string { return "vlad" }

// Run builds one VLAD vector per image, computes all-pairs L2 distance,
// and keeps the top-K nearest neighbors per image.
func (s VLADStrategy) Run(_ context.Context, images []model.ImageInfo) ([]model.ImagePair, error) {
	if s.Codebook == nil {
		return nil, apperrors.New(apperrors.KindConfig, "retrieval.vlad", apperrors.ErrEmptyInput)
	}
	sigma := s.Sigma
	if sigma <= 0 {
		sigma = 1.0
	}

	vectors := make([][]float64, len(images))
	valid := make([]bool, len(images))
	for i, img := range images {
		fs, err := s.Load(img.FeatureFile)
		if err != nil || fs.NumFeatures == 0 {
			continue
		}
		v := computeVLAD(fs, s.Codebook)
		if s.PCA != nil {
			v = s.PCA.Project(v)
			l2NormalizeF64(v)
		}
		vectors[i] = v
		valid[i] = true
	}

	seen := map[[2]int]bool{}
	var out []model.ImagePair
	for i := range images {
		if !valid[i] {
			continue
		}
		type cand struct {
			j int
			d float64
		}
		var cands []cand
		for j := range images {
			if i == j || !valid[j] {
				continue
			}
			cands = append(cands, cand{j: j, d: l2Distance(vectors[i], vectors[j])})
		}
		sort.Slice(cands, func(a, b int) bool { return cands[a].d < cands[b].d })
		k := s.TopK
		if k <= 0 || k > len(cands) {
			k = len(cands)
		}
		for _, c := range cands[:k] {
			a, b := i, c.j
			if a > b {
				a, b = b, a
			}
			key := [2]int{a, b}
			if seen[key] {
				continue
			}
			seen[key] = true

			dist := c.d
			score := math.Exp(-dist / sigma)
			out = append(out, model.ImagePair{
				Image1Idx:        a,
				Image2Idx:        b,
				Score:            score,
				Method:           "vlad",
				VisualSimilarity: &dist,
			})
		}
	}
	return out, nil
}

// computeVLAD assigns each descriptor in fs to its nearest centroid,
// accumulates residuals per cluster, intra-normalizes each cluster block,
// concatenates, and L2-normalizes the whole vector.
func computeVLAD(fs model.FeatureSet, cb *codebook.VLADCodebook) []float64 {
	dim := cb.DescriptorDim
	v := make([]float64, cb.NumClusters*dim)

	for i := 0; i < fs.NumFeatures; i++ {
		d := fs.DescriptorAt(i)
		k := nearestCentroid(d, cb)
		c := cb.Centroid(k)
		base := k * dim
		for t := 0; t < dim; t++ {
			v[base+t] += d[t] - float64(c[t])
		}
	}

	for k := 0; k < cb.NumClusters; k++ {
		base := k * dim
		l2NormalizeF64(v[base : base+dim])
	}
	l2NormalizeF64(v)
	return v
}

func nearestCentroid(d []float64, cb *codebook.VLADCodebook) int {
	best, bestDist := 0, math.Inf(1)
	for k := 0; k < cb.NumClusters; k++ {
		c := cb.Centroid(k)
		var sum float64
		for t, v := range d {
			diff := v - float64(c[t])
			sum += diff * diff
		}
		if sum < bestDist {
			bestDist = sum
			best = k
		}
	}
	return best
}

func l2NormalizeF64(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
}

func l2Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
