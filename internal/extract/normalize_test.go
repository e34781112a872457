package extract

import (
	"math"
	"testing"

	"github.com/insightpipe/isat/internal/model"
)

func TestNormalizeL1RootUnitL1OfSquares(t *testing.T) {
	d := []float32{1, 2, 3, 4}
	NormalizeL1Root(d)
	var sumSq float64
	for _, v := range d {
		sumSq += float64(v) * float64(v)
	}
	if math.Abs(sumSq-1.0) > 1e-5 {
		t.Fatalf("expected sum of squares ~1 after RootSIFT normalization, got %v", sumSq)
	}
}

func TestNormalizeL1RootAllZero(t *testing.T) {
	d := []float32{0, 0, 0}
	NormalizeL1Root(d)
	for _, v := range d {
		if v != 0 {
			t.Fatalf("all-zero descriptor should stay zero, got %v", d)
		}
	}
}

func TestNormalizeL2UnitNorm(t *testing.T) {
	d := []float32{3, 4}
	NormalizeL2(d)
	var l2 float64
	for _, v := range d {
		l2 += float64(v) * float64(v)
	}
	l2 = math.Sqrt(l2)
	if math.Abs(l2-1.0) > 1e-5 {
		t.Fatalf("expected unit L2 norm, got %v", l2)
	}
}

func TestQuantizeClampsToByteRange(t *testing.T) {
	d := []float32{-1, 0, 0.5, 1, 2}
	out := Quantize(d, 255)
	want := []uint8{0, 0, 128, 255, 255}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("Quantize[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestApplyNormalizationQuantizeDropsFloatArray(t *testing.T) {
	fs := &model.FeatureSet{
		NumFeatures:    2,
		DescriptorsF32: make([]float32, 2*model.DescriptorDim),
	}
	for i := range fs.DescriptorsF32 {
		fs.DescriptorsF32[i] = float32(i % 5)
	}

	ApplyNormalization(fs, "l2", true, 255.0)

	if fs.DescriptorsF32 != nil {
		t.Fatal("expected float descriptor array to be dropped after quantization")
	}
	if fs.DescriptorType != model.DescriptorUint8 {
		t.Fatalf("expected descriptor type uint8, got %v", fs.DescriptorType)
	}
	if len(fs.DescriptorsU8) != 2*model.DescriptorDim {
		t.Fatalf("expected %d quantized bytes, got %d", 2*model.DescriptorDim, len(fs.DescriptorsU8))
	}
	if fs.QuantizationScale != 255.0 {
		t.Fatalf("expected recorded quantization scale 255.0, got %v", fs.QuantizationScale)
	}
}

func TestApplyNormalizationNoQuantizeKeepsFloatArray(t *testing.T) {
	fs := &model.FeatureSet{
		NumFeatures:    1,
		DescriptorsF32: make([]float32, model.DescriptorDim),
	}
	for i := range fs.DescriptorsF32 {
		fs.DescriptorsF32[i] = 1
	}
	ApplyNormalization(fs, "l1root", false, 0)
	if fs.DescriptorsU8 != nil {
		t.Fatal("expected no quantized array when quantize=false")
	}
	if fs.DescriptorsF32 == nil {
		t.Fatal("expected float descriptor array to survive when quantize=false")
	}
}
