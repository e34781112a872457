package extract

import (
	"sort"

	"github.com/insightpipe/isat/internal/model"
)

// SpatialNMS implements the "spatial distribution" policy: partition the
// image into a regular grid with cell side ≈
// 10*nmsRadius, keep up to keepPerCell highest-response keypoints per
// cell, and (unless keepOrientation is set) dedupe by (x, y) so only one
// orientation per spatial location survives. Deterministic given identical
// input: ties break by lower original index.
//
// responses must be parallel to kps (one response score per keypoint);
// the extraction driver passes each keypoint's Scale, since GPUExtractor
// returns no separate response score.
func SpatialNMS(kps []model.Keypoint, descStride int, descs []float32, responses []float64, width, height int, radius float64, keepPerCell int, keepOrientation bool) ([]model.Keypoint, []float32) {
	if len(kps) == 0 {
		return kps, descs
	}

	cellSide := 10 * radius
	if cellSide <= 0 {
		cellSide = 1
	}
	cols := int(float64(width)/cellSide) + 1
	if cols < 1 {
		cols = 1
	}

	type entry struct {
		idx   int
		score float64
	}
	cells := map[int][]entry{}
	cellOf := func(x, y float32) int {
		cx := int(float64(x) / cellSide)
		cy := int(float64(y) / cellSide)
		return cy*cols + cx
	}

	for i, kp := range kps {
		c := cellOf(kp.X, kp.Y)
		cells[c] = append(cells[c], entry{i, responses[i]})
	}

	keep := make(map[int]bool, len(kps))
	for _, entries := range cells {
		sort.SliceStable(entries, func(a, b int) bool {
			if entries[a].score != entries[b].score {
				return entries[a].score > entries[b].score
			}
			return entries[a].idx < entries[b].idx
		})
		n := keepPerCell
		if n > len(entries) {
			n = len(entries)
		}
		for _, e := range entries[:n] {
			keep[e.idx] = true
		}
	}

	var order []int
	for i := range kps {
		if keep[i] {
			order = append(order, i)
		}
	}
	sort.Ints(order)

	if !keepOrientation {
		seen := map[[2]float32]bool{}
		deduped := order[:0:0]
		for _, i := range order {
			key := [2]float32{kps[i].X, kps[i].Y}
			if seen[key] {
				continue
			}
			seen[key] = true
			deduped = append(deduped, i)
		}
		order = deduped
	}

	outKP := make([]model.Keypoint, len(order))
	outDesc := make([]float32, 0, len(order)*descStride)
	for j, i := range order {
		outKP[j] = kps[i]
		outDesc = append(outDesc, descs[i*descStride:(i+1)*descStride]...)
	}
	return outKP, outDesc
}
