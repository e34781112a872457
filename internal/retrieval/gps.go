package retrieval

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/insightpipe/isat/internal/model"
)

// GPSStrategy pairs images by spatial proximity, using a 3-D k-d tree over
// GNSS positions and an optional IMU-attitude cap.
type GPSStrategy struct {
	Radius        float64
	MaxNeighbors  int
	UseIMUFilter  bool
	MaxAngle      float64 // radians
}

func (GPSStrategy) Name() string { return "gps" }

// gpsPoint is a k-d tree Comparable carrying the original image index
// alongside its 3-D position, so NearestSet results can be mapped back to
// an ImageInfo without a separate lookup by value.
type gpsPoint struct {
	coord kdtree.Point
	idx   int
}

func (p gpsPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(gpsPoint)
	return p.coord[d] - q.coord[d]
}

func (p gpsPoint) Dims() int { return len(p.coord) }

// Distance returns squared Euclidean distance, matching kdtree.Point's own
// convention; callers take the square root where an actual distance is
// needed.
func (p gpsPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(gpsPoint)
	var sum float64
	for i, v := range p.coord {
		d := v - q.coord[i]
		sum += d * d
	}
	return sum
}

// gpsPoints implements kdtree.Interface over a slice of gpsPoint.
type gpsPoints []gpsPoint

func (s gpsPoints) Len() int                  { return len(s) }
func (s gpsPoints) Index(i int) kdtree.Comparable { return s[i] }
func (s gpsPoints) Slice(start, end int) kdtree.Interface { return s[start:end] }

// Pivot partitions s along dimension d by sorting (the tree is built once
// over a modest number of images, so a full sort per level is cheap enough)
// and returns the resulting median index, satisfying kdtree.Interface's
// partition contract.
func (s gpsPoints) Pivot(d kdtree.Dim) int {
	sort.Sort(&byDim{pts: s, dim: d})
	return len(s) / 2
}

type byDim struct {
	pts gpsPoints
	dim kdtree.Dim
}

func (b *byDim) Len() int           { return len(b.pts) }
func (b *byDim) Less(i, j int) bool { return b.pts[i].coord[b.dim] < b.pts[j].coord[b.dim] }
func (b *byDim) Swap(i, j int)      { b.pts[i], b.pts[j] = b.pts[j], b.pts[i] }

// Run builds a k-d tree over every image with valid GNSS, radius-queries
// each position, optionally drops pairs whose forward-vector angular
// difference exceeds MaxAngle, and scores surviving pairs by exp(-d/R).
func (s GPSStrategy) Run(_ context.Context, images []model.ImageInfo) ([]model.ImagePair, error) {
	var pts gpsPoints
	for i, img := range images {
		if img.GNSS == nil {
			continue
		}
		pts = append(pts, gpsPoint{
			coord: kdtree.Point{img.GNSS.X, img.GNSS.Y, img.GNSS.Z},
			idx:   i,
		})
	}
	if len(pts) < 2 {
		return nil, nil
	}

	tree := kdtree.New(pts, false)
	radiusSq := s.Radius * s.Radius

	seen := map[[2]int]bool{}
	var out []model.ImagePair

	for _, p := range pts {
		keeper := kdtree.NewDistKeeper(radiusSq)
		tree.NearestSet(keeper, p)

		type cand struct {
			idx int
			d   float64
		}
		cands := make([]cand, 0, len(keeper.Heap))
		for _, cd := range keeper.Heap {
			q := cd.Comparable.(gpsPoint)
			if q.idx == p.idx {
				continue
			}
			cands = append(cands, cand{idx: q.idx, d: math.Sqrt(cd.Dist)})
		}
		sort.Slice(cands, func(i, j int) bool { return cands[i].d < cands[j].d })
		if s.MaxNeighbors > 0 && len(cands) > s.MaxNeighbors {
			cands = cands[:s.MaxNeighbors]
		}

		for _, c := range cands {
			i, j := p.idx, c.idx
			if i > j {
				i, j = j, i
			}
			key := [2]int{i, j}
			if seen[key] {
				continue
			}
			seen[key] = true

			var anglePtr *float64
			if s.UseIMUFilter && images[i].IMU != nil && images[j].IMU != nil {
				angle := angularDifference(*images[i].IMU, *images[j].IMU)
				if angle > s.MaxAngle {
					continue
				}
				anglePtr = &angle
			}

			dist := c.d
			score := math.Exp(-dist / s.Radius)
			out = append(out, model.ImagePair{
				Image1Idx:       i,
				Image2Idx:       j,
				Score:           score,
				Method:          "gps",
				SpatialDistance: &dist,
				AngleDifference: anglePtr,
			})
		}
	}
	return out, nil
}

// angularDifference returns the angle in radians between the forward
// vectors implied by two attitude fixes.
func angularDifference(a, b model.IMU) float64 {
	fa := a.ForwardVector()
	fb := b.ForwardVector()
	var dot, na, nb float64
	for i := 0; i < 3; i++ {
		dot += fa[i] * fb[i]
		na += fa[i] * fa[i]
		nb += fb[i] * fb[i]
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	cos := dot / denom
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}
