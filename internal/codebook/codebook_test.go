package codebook

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestVLADCodebookRoundTrip(t *testing.T) {
	cb := &VLADCodebook{
		Version:       1,
		NumClusters:   4,
		DescriptorDim: 128,
		Centroids:     make([]float32, 4*128),
	}
	for i := range cb.Centroids {
		cb.Centroids[i] = float32(i) * 0.5
	}

	path := filepath.Join(t.TempDir(), "test.vcbt")
	if err := cb.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := LoadVLADCodebook(path)
	if err != nil {
		t.Fatalf("LoadVLADCodebook: %v", err)
	}
	if got.NumClusters != cb.NumClusters || got.DescriptorDim != cb.DescriptorDim {
		t.Fatalf("header mismatch: got %+v", got)
	}
	for i := range cb.Centroids {
		if got.Centroids[i] != cb.Centroids[i] {
			t.Fatalf("centroid %d mismatch: got %v want %v", i, got.Centroids[i], cb.Centroids[i])
		}
	}
}

func TestVLADCodebookBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.vcbt")
	if err := os.WriteFile(path, []byte{0, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 128, 0, 0, 0}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadVLADCodebook(path); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestPCAModelRoundTrip(t *testing.T) {
	comps := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})
	m := &PCAModel{
		Version:           1,
		InputDim:          4,
		NumComponents:     2,
		Mean:              []float64{0.1, 0.2, 0.3, 0.4},
		Components:        comps,
		ExplainedVariance: []float64{0.9, 0.05},
	}

	path := filepath.Join(t.TempDir(), "test.pca")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := LoadPCA(path)
	if err != nil {
		t.Fatalf("LoadPCA: %v", err)
	}
	for i := range m.Mean {
		if got.Mean[i] != m.Mean[i] {
			t.Fatalf("mean[%d] mismatch: got %v want %v", i, got.Mean[i], m.Mean[i])
		}
	}

	proj := got.Project([]float64{1.1, 1.2, 0.3, 0.4})
	if len(proj) != 2 {
		t.Fatalf("expected 2 components, got %d", len(proj))
	}
	if diff := proj[0] - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("proj[0] = %v, want ~1.0", proj[0])
	}
}
