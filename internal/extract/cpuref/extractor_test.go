package cpuref

import (
	"context"
	"testing"

	"github.com/insightpipe/isat/internal/model"
)

func checkerboard(w, h, cell int) []byte {
	gray := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x/cell)+(y/cell))%2 == 0 {
				gray[y*w+x] = 255
			}
		}
	}
	return gray
}

func TestExtractFindsCornersOnCheckerboard(t *testing.T) {
	const w, h = 64, 64
	gray := checkerboard(w, h, 8)

	e := NewExtractor()
	kps, descs, err := e.Extract(context.Background(), gray, w, h)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(kps) == 0 {
		t.Fatal("expected at least one keypoint on a checkerboard pattern")
	}
	if len(descs) != len(kps)*model.DescriptorDim {
		t.Fatalf("descriptor array length = %d, want %d", len(descs), len(kps)*model.DescriptorDim)
	}
}

func TestExtractFlatImageYieldsNoKeypoints(t *testing.T) {
	const w, h = 32, 32
	gray := make([]byte, w*h)
	for i := range gray {
		gray[i] = 128
	}

	e := NewExtractor()
	kps, _, err := e.Extract(context.Background(), gray, w, h)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(kps) != 0 {
		t.Fatalf("expected no keypoints on a flat image, got %d", len(kps))
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	const w, h = 48, 48
	gray := checkerboard(w, h, 6)

	e := NewExtractor()
	kps1, descs1, err := e.Extract(context.Background(), gray, w, h)
	if err != nil {
		t.Fatalf("Extract (1st run): %v", err)
	}
	kps2, descs2, err := e.Extract(context.Background(), gray, w, h)
	if err != nil {
		t.Fatalf("Extract (2nd run): %v", err)
	}

	if len(kps1) != len(kps2) {
		t.Fatalf("non-deterministic keypoint count: %d vs %d", len(kps1), len(kps2))
	}
	for i := range kps1 {
		if kps1[i] != kps2[i] {
			t.Fatalf("non-deterministic keypoint at index %d: %+v vs %+v", i, kps1[i], kps2[i])
		}
	}
	for i := range descs1 {
		if descs1[i] != descs2[i] {
			t.Fatalf("non-deterministic descriptor value at index %d", i)
		}
	}
}

func TestExtractRespectsMaxKeypoints(t *testing.T) {
	const w, h = 128, 128
	gray := checkerboard(w, h, 4)

	e := NewExtractor()
	e.MaxKeypoints = 5
	kps, _, err := e.Extract(context.Background(), gray, w, h)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(kps) > 5 {
		t.Fatalf("expected at most 5 keypoints, got %d", len(kps))
	}
}
