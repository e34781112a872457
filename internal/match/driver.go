package match

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/insightpipe/isat/internal/apperrors"
	"github.com/insightpipe/isat/internal/config"
	"github.com/insightpipe/isat/internal/idc"
	"github.com/insightpipe/isat/internal/match/cpuref"
	"github.com/insightpipe/isat/internal/model"
	"github.com/insightpipe/isat/internal/pipeline"
	"github.com/insightpipe/isat/internal/telemetry"
)

// PairSpec is one entry from the retrieval pair list the driver consumes.
type PairSpec struct {
	Image1ID, Image2ID         string
	Feature1File, Feature2File string
}

// Result reports one pair's outcome.
type Result struct {
	Index      int
	OutputPath string
	NumMatches int
	Err        error
}

// Driver runs the 3-stage matching pipeline: LoadFeatures -> Match
// (pinned) -> Write.
type Driver struct {
	cfg     config.Matching
	matcher *cpuref.Matcher
	opts    Options
	logger  telemetry.Logger
	hook    telemetry.StageHook
}

// NewDriver creates a Driver backed by the CPU reference matcher.
func NewDriver(cfg config.Matching, opts Options, logger telemetry.Logger, hook telemetry.StageHook) *Driver {
	if logger == nil {
		logger = telemetry.Noop
	}
	return &Driver{cfg: cfg, matcher: cpuref.NewMatcher(), opts: opts, logger: logger, hook: hook}
}

// Run matches every pair in pairs, writing one "<id1>_<id2>.isat_match"
// IDC file per pair whose match count is non-zero.
func (d *Driver) Run(ctx context.Context, pairs []PairSpec, outDir string) ([]Result, error) {
	n := len(pairs)
	tasks := make([]*model.PairTask, n)
	results := make([]Result, n)
	for i, p := range pairs {
		tasks[i] = &model.PairTask{
			Index:        i,
			Image1ID:     p.Image1ID,
			Image2ID:     p.Image2ID,
			Feature1File: p.Feature1File,
			Feature2File: p.Feature2File,
		}
		results[i] = Result{Index: i}
	}
	if n == 0 {
		return results, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInputMissing, "match.run", err)
	}

	load := pipeline.NewStage("load_features", d.cfg.LoadQueueCap, d.cfg.LoadWorkers, d.hook)
	matchStage := pipeline.NewPinnedStage("match", d.cfg.GPUQueueCap, d.hook)
	write := pipeline.NewStage("write", d.cfg.WriteQueueCap, d.cfg.WriteWorkers, d.hook)

	pipeline.Chain(load, matchStage)
	pipeline.Chain(matchStage, write)

	load.SetTaskCount(n)
	matchStage.SetTaskCount(n)
	write.SetTaskCount(n)

	load.Start(ctx, d.loadTask(tasks))
	write.Start(ctx, d.writeTask(tasks, results, outDir))

	matchDone := make(chan struct{})
	go func() {
		matchStage.Run(ctx, d.matchTask(tasks))
		close(matchDone)
	}()

	load.Wait()
	matchStage.Wait()
	write.Wait()

	load.Join()
	write.Join()
	<-matchDone

	return results, nil
}

func (d *Driver) loadTask(tasks []*model.PairTask) pipeline.TaskFunc {
	return func(_ context.Context, index int) error {
		t := tasks[index]
		f1, err := idc.ReadFeatureSet(t.Feature1File)
		if err != nil {
			t.Err = err
			return err
		}
		f2, err := idc.ReadFeatureSet(t.Feature2File)
		if err != nil {
			t.Err = err
			return err
		}
		t.Features1, t.Features2 = f1, f2
		return nil
	}
}

func (d *Driver) matchTask(tasks []*model.PairTask) pipeline.TaskFunc {
	return func(ctx context.Context, index int) error {
		t := tasks[index]
		if t.Err != nil {
			return t.Err
		}
		if t.Features1.NumFeatures == 0 || t.Features2.NumFeatures == 0 {
			return nil // DegenerateResult: no matches, not an error
		}
		if t.Features1.DescriptorType != t.Features2.DescriptorType {
			d.logger.Warn("match.dtype_mismatch", "pair", index)
			return nil
		}

		ds1 := DescriptorSet{NumFeatures: t.Features1.NumFeatures, DescriptorAt: t.Features1.DescriptorAt}
		ds2 := DescriptorSet{NumFeatures: t.Features2.NumFeatures, DescriptorAt: t.Features2.DescriptorAt}

		var raw Result
		var err error
		if d.opts.UseGuidedMatching {
			coords1 := func(i int) [2]float64 {
				kp := t.Features1.Keypoints[i]
				return [2]float64{float64(kp.X), float64(kp.Y)}
			}
			coords2 := func(i int) [2]float64 {
				kp := t.Features2.Keypoints[i]
				return [2]float64{float64(kp.X), float64(kp.Y)}
			}
			raw, err = d.matcher.MatchGuided(ctx, ds1, ds2, coords1, coords2, d.opts)
		} else {
			raw, err = d.matcher.Match(ctx, ds1, ds2, d.opts)
		}
		if err != nil {
			return nil // negative-count / matcher failure: skip pair, continue pipeline
		}

		t.Matches = buildMatchResult(raw, t.Features1, t.Features2)
		return nil
	}
}

// buildMatchResult drops out-of-range indices, attaches pixel coordinates,
// and computes CPU-side L2 distance over 128 dims in native dtype.
func buildMatchResult(raw Result, f1, f2 model.FeatureSet) model.MatchResult {
	var mr model.MatchResult
	for k := range raw.Indices1 {
		i1, i2 := int(raw.Indices1[k]), int(raw.Indices2[k])
		if i1 < 0 || i1 >= f1.NumFeatures || i2 < 0 || i2 >= f2.NumFeatures {
			continue
		}
		kp1, kp2 := f1.Keypoints[i1], f2.Keypoints[i2]
		mr.Indices1 = append(mr.Indices1, raw.Indices1[k])
		mr.Indices2 = append(mr.Indices2, raw.Indices2[k])
		mr.CoordsPixel = append(mr.CoordsPixel, [4]float32{kp1.X, kp1.Y, kp2.X, kp2.Y})
		mr.Distances = append(mr.Distances, float32(descriptorDistance(f1, f2, i1, i2)))
	}
	mr.NumMatches = len(mr.Indices1)
	return mr
}

func descriptorDistance(f1, f2 model.FeatureSet, i1, i2 int) float64 {
	if f1.DescriptorType != f2.DescriptorType {
		return 1e6 // large sentinel distance on dtype mismatch
	}
	d1, d2 := f1.DescriptorAt(i1), f2.DescriptorAt(i2)
	var sum float64
	for i := range d1 {
		d := d1[i] - d2[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (d *Driver) writeTask(tasks []*model.PairTask, results []Result, outDir string) pipeline.TaskFunc {
	return func(_ context.Context, index int) error {
		t := tasks[index]
		if t.Err != nil {
			results[index].Err = t.Err
			d.logger.Warn("match.skip", "pair", index, "error", t.Err.Error())
			return nil
		}
		if t.Matches.NumMatches == 0 {
			d.logger.Warn("match.degenerate", "pair", index)
			return nil
		}

		w := idc.NewWriter("feature_matching")
		w.SetAlgorithm("isat-match-cpuref", "1.0", nil)
		w.SetMetadataField("image1_id", t.Image1ID)
		w.SetMetadataField("image2_id", t.Image2ID)

		n := t.Matches.NumMatches
		flatIdx := idc.EncodeU16(interleave(t.Matches.Indices1, t.Matches.Indices2))
		if err := w.AddBlob("indices", "uint16", []int{n, 2}, flatIdx); err != nil {
			return apperrors.Wrap(apperrors.KindCorrupt, "match.write", err)
		}

		flatCoords := make([]float32, 0, n*4)
		for _, c := range t.Matches.CoordsPixel {
			flatCoords = append(flatCoords, c[0], c[1], c[2], c[3])
		}
		if err := w.AddBlob("coords_pixel", "float32", []int{n, 4}, idc.EncodeF32(flatCoords)); err != nil {
			return apperrors.Wrap(apperrors.KindCorrupt, "match.write", err)
		}
		if err := w.AddBlob("distances", "float32", []int{n}, idc.EncodeF32(t.Matches.Distances)); err != nil {
			return apperrors.Wrap(apperrors.KindCorrupt, "match.write", err)
		}

		outPath := filepath.Join(outDir, fmt.Sprintf("%s_%s.isat_match", t.Image1ID, t.Image2ID))
		if err := w.Write(outPath); err != nil {
			results[index].Err = apperrors.Wrap(apperrors.KindCorrupt, "match.write", err)
			return results[index].Err
		}
		results[index].OutputPath = outPath
		results[index].NumMatches = n
		return nil
	}
}

func interleave(a, b []uint16) []uint16 {
	out := make([]uint16, 0, len(a)*2)
	for i := range a {
		out = append(out, a[i], b[i])
	}
	return out
}
