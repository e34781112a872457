// Package cpuref implements a deterministic CPU reference extractor,
// satisfying the same extract(image) -> (keypoints, descriptors) contract
// a real GPU SIFT service would. Real GPU SIFT extraction stays out of
// scope; this is what tests and GPU-less runs use instead of an actual
// OpenGL/CUDA-backed extractor.
package cpuref

import (
	"context"
	"math"
	"sort"

	"github.com/insightpipe/isat/internal/model"
)

// Extractor detects corner-like keypoints via a Harris-style response and
// builds a 128-d gradient-orientation-histogram descriptor around each,
// analogous in shape (not bit-for-bit behavior) to SIFT.
type Extractor struct {
	// MaxKeypoints caps how many of the highest-response points to keep
	// before any downstream spatial NMS runs. 0 = no cap.
	MaxKeypoints int
}

// NewExtractor creates an Extractor with default limits.
func NewExtractor() *Extractor { return &Extractor{MaxKeypoints: 4000} }

// Startup/Shutdown satisfy extract.GPUExtractor's lifecycle contract; the
// CPU reference has no external context to acquire.
func (e *Extractor) Startup() error { return nil }
func (e *Extractor) Shutdown()      {}

// Extract scans gray (w x h, row-major) for corner responses and returns
// keypoints plus their 128-d float32 descriptors, concatenated in
// keypoint order.
func (e *Extractor) Extract(_ context.Context, gray []byte, w, h int) ([]model.Keypoint, []float32, error) {
	gx, gy := sobel(gray, w, h)
	resp := harrisResponse(gx, gy, w, h)

	type cand struct {
		x, y  int
		score float64
	}
	var cands []cand
	const border = 8
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			s := resp[y*w+x]
			if s <= 0 {
				continue
			}
			if !isLocalMax(resp, w, h, x, y) {
				continue
			}
			cands = append(cands, cand{x, y, s})
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		// Deterministic tie-break by raster position.
		if cands[i].y != cands[j].y {
			return cands[i].y < cands[j].y
		}
		return cands[i].x < cands[j].x
	})

	if e.MaxKeypoints > 0 && len(cands) > e.MaxKeypoints {
		cands = cands[:e.MaxKeypoints]
	}

	kps := make([]model.Keypoint, len(cands))
	descs := make([]float32, 0, len(cands)*model.DescriptorDim)
	for i, c := range cands {
		orientation := math.Atan2(gy[c.y*w+c.x], gx[c.y*w+c.x])
		kps[i] = model.Keypoint{
			X:           float32(c.x),
			Y:           float32(c.y),
			Scale:       1.0,
			Orientation: float32(orientation),
		}
		descs = append(descs, descriptorAt(gx, gy, w, h, c.x, c.y)...)
	}

	return kps, descs, nil
}

func sobel(gray []byte, w, h int) (gx, gy []float64) {
	gx = make([]float64, w*h)
	gy = make([]float64, w*h)
	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= h {
			y = h - 1
		}
		return float64(gray[y*w+x])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx[y*w+x] = (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			gy[y*w+x] = (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
		}
	}
	return gx, gy
}

// harrisResponse computes a windowed Harris corner-response score per
// pixel from the gradient field.
func harrisResponse(gx, gy []float64, w, h int) []float64 {
	const k = 0.04
	resp := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var sxx, syy, sxy float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ix := gx[(y+dy)*w+(x+dx)]
					iy := gy[(y+dy)*w+(x+dx)]
					sxx += ix * ix
					syy += iy * iy
					sxy += ix * iy
				}
			}
			det := sxx*syy - sxy*sxy
			trace := sxx + syy
			resp[y*w+x] = det - k*trace*trace
		}
	}
	return resp
}

func isLocalMax(resp []float64, w, h, x, y int) bool {
	v := resp[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			if resp[ny*w+nx] > v {
				return false
			}
		}
	}
	return true
}

// descriptorAt builds a 128-d descriptor from a 4x4 grid of 8-bin gradient
// orientation histograms around (x, y), the same grid/bin shape as SIFT's
// descriptor even though the source signal is simpler.
func descriptorAt(gx, gy []float64, w, h, cx, cy int) []float32 {
	const (
		grid = 4
		bins = 8
		cell = 4 // pixels per grid cell side
	)
	hist := make([]float64, grid*grid*bins)

	half := grid * cell / 2
	for dy := -half; dy < half; dy++ {
		py := cy + dy
		if py < 0 || py >= h {
			continue
		}
		for dx := -half; dx < half; dx++ {
			px := cx + dx
			if px < 0 || px >= w {
				continue
			}
			mag := math.Hypot(gx[py*w+px], gy[py*w+px])
			if mag == 0 {
				continue
			}
			ang := math.Atan2(gy[py*w+px], gx[py*w+px])
			if ang < 0 {
				ang += 2 * math.Pi
			}
			bin := int(ang / (2 * math.Pi) * bins)
			if bin >= bins {
				bin = bins - 1
			}
			gxCell := (dx + half) / cell
			gyCell := (dy + half) / cell
			if gxCell >= grid {
				gxCell = grid - 1
			}
			if gyCell >= grid {
				gyCell = grid - 1
			}
			hist[(gyCell*grid+gxCell)*bins+bin] += mag
		}
	}

	out := make([]float32, len(hist))
	for i, v := range hist {
		out[i] = float32(v)
	}
	return out
}
