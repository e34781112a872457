package extract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/insightpipe/isat/internal/config"
	"github.com/insightpipe/isat/internal/extract/cpuref"
	"github.com/insightpipe/isat/internal/idc"
)

func writeCheckerboardPNG(t *testing.T, path string, w, h, cell int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x/cell)+(y/cell))%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			} else {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write test png: %v", err)
	}
}

func TestDriverEndToEndWritesReadableFeatureFile(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "frame0.png")
	writeCheckerboardPNG(t, imgPath, 64, 64, 8)

	cfg := config.DefaultExtraction()
	driver := NewDriver(cfg, cpuref.NewExtractor(), nil, nil)

	results, err := driver.Run(context.Background(), []ImageSpec{{Path: imgPath}}, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Err != nil {
		t.Fatalf("unexpected per-image error: %v", r.Err)
	}
	if r.OutputPath == "" {
		t.Fatal("expected a non-empty output path for a feature-rich image")
	}

	reader, err := idc.Open(r.OutputPath)
	if err != nil {
		t.Fatalf("reopen output: %v", err)
	}
	if reader.Descriptor().TaskType != "feature_extraction" {
		t.Fatalf("task_type = %q, want feature_extraction", reader.Descriptor().TaskType)
	}
	kp, err := reader.ReadBlobF32("keypoints")
	if err != nil {
		t.Fatalf("read keypoints blob: %v", err)
	}
	if len(kp) == 0 {
		t.Fatal("expected a non-empty keypoints blob")
	}
}

func TestDriverMissingImageFileIsAbsorbed(t *testing.T) {
	dir := t.TempDir()
	driver := NewDriver(config.DefaultExtraction(), cpuref.NewExtractor(), nil, nil)

	results, err := driver.Run(context.Background(), []ImageSpec{
		{Path: filepath.Join(dir, "does_not_exist.png")},
	}, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Err == nil {
		t.Fatal("expected a per-image error for a missing file")
	}
	if results[0].OutputPath != "" {
		t.Fatal("expected no output path for a failed load")
	}
}

func TestDriverEmptyImageListReturnsEmptyResults(t *testing.T) {
	driver := NewDriver(config.DefaultExtraction(), cpuref.NewExtractor(), nil, nil)
	results, err := driver.Run(context.Background(), nil, t.TempDir())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected 0 results for an empty image list, got %d", len(results))
	}
}
