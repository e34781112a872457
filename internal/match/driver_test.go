package match

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/insightpipe/isat/internal/config"
	"github.com/insightpipe/isat/internal/idc"
	"github.com/insightpipe/isat/internal/model"
)

func writeFeatureFile(t *testing.T, path string, kps []model.Keypoint, descs []float32) {
	t.Helper()
	w := idc.NewWriter("feature_extraction")
	w.SetAlgorithm("test", "1.0", nil)
	n := len(kps)
	flatKP := make([]float32, 0, n*4)
	for _, kp := range kps {
		flatKP = append(flatKP, kp.X, kp.Y, kp.Scale, kp.Orientation)
	}
	if err := w.AddBlob("keypoints", "float32", []int{n, 4}, idc.EncodeF32(flatKP)); err != nil {
		t.Fatalf("AddBlob keypoints: %v", err)
	}
	if err := w.AddBlob("descriptors", "float32", []int{n, model.DescriptorDim}, idc.EncodeF32(descs)); err != nil {
		t.Fatalf("AddBlob descriptors: %v", err)
	}
	if err := w.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func makeDescriptor(fill float32) []float32 {
	d := make([]float32, model.DescriptorDim)
	for i := range d {
		d[i] = fill
	}
	return d
}

func TestDriverEndToEndProducesMatchFile(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "a.isat_feat")
	f2 := filepath.Join(dir, "b.isat_feat")

	writeFeatureFile(t, f1,
		[]model.Keypoint{{X: 1, Y: 2}, {X: 3, Y: 4}},
		append(makeDescriptor(0), makeDescriptor(10)...))
	writeFeatureFile(t, f2,
		[]model.Keypoint{{X: 5, Y: 6}, {X: 7, Y: 8}},
		append(makeDescriptor(0.01), makeDescriptor(10.01)...))

	cfg := config.DefaultMatching()
	opts := DefaultOptions()
	opts.DistanceMax = 5.0
	d := NewDriver(cfg, opts, nil, nil)

	results, err := d.Run(context.Background(), []PairSpec{
		{Image1ID: "a", Image2ID: "b", Feature1File: f1, Feature2File: f2},
	}, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Err != nil {
		t.Fatalf("unexpected per-pair error: %v", r.Err)
	}
	if r.NumMatches != 2 {
		t.Fatalf("expected 2 matches, got %d", r.NumMatches)
	}
	if r.OutputPath == "" {
		t.Fatal("expected an output path")
	}

	reader, err := idc.Open(r.OutputPath)
	if err != nil {
		t.Fatalf("reopen output: %v", err)
	}
	if reader.Descriptor().TaskType != "feature_matching" {
		t.Fatalf("task_type = %q, want feature_matching", reader.Descriptor().TaskType)
	}
}

func TestDriverSkipsDegenerateEmptyPair(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "empty.isat_feat")
	f2 := filepath.Join(dir, "other.isat_feat")
	writeFeatureFile(t, f1, nil, nil)
	writeFeatureFile(t, f2, []model.Keypoint{{X: 1, Y: 1}}, makeDescriptor(1))

	d := NewDriver(config.DefaultMatching(), DefaultOptions(), nil, nil)
	results, err := d.Run(context.Background(), []PairSpec{
		{Image1ID: "empty", Image2ID: "other", Feature1File: f1, Feature2File: f2},
	}, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].NumMatches != 0 || results[0].OutputPath != "" {
		t.Fatalf("expected no output for a degenerate pair, got %+v", results[0])
	}
}
