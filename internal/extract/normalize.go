package extract

import (
	"math"

	"github.com/insightpipe/isat/internal/model"
)

// NormalizeL1Root applies RootSIFT normalization in place: d <- d/||d||_1,
// then d <- sqrt(d) element-wise.
func NormalizeL1Root(d []float32) {
	var l1 float64
	for _, v := range d {
		l1 += math.Abs(float64(v))
	}
	if l1 == 0 {
		return
	}
	for i, v := range d {
		d[i] = float32(math.Sqrt(float64(v) / l1))
	}
}

// NormalizeL2 applies plain L2 normalization in place.
func NormalizeL2(d []float32) {
	var l2 float64
	for _, v := range d {
		l2 += float64(v) * float64(v)
	}
	l2 = math.Sqrt(l2)
	if l2 == 0 {
		return
	}
	for i, v := range d {
		d[i] = float32(float64(v) / l2)
	}
}

// Quantize converts a normalized float32 descriptor to uint8 via
// u = clamp(round(d*scale), 0, 255); scale is recorded by the caller into
// descriptor_schema.quantization_scale so the matcher never has to guess.
func Quantize(d []float32, scale float64) []uint8 {
	out := make([]uint8, len(d))
	for i, v := range d {
		q := math.Round(float64(v) * scale)
		if q < 0 {
			q = 0
		} else if q > 255 {
			q = 255
		}
		out[i] = uint8(q)
	}
	return out
}

// ApplyNormalization normalizes every descriptor in fs.DescriptorsF32
// in place using the named policy ("l1root" or "l2"), then optionally
// quantizes to uint8 and drops the float array.
func ApplyNormalization(fs *model.FeatureSet, policy string, quantize bool, scale float64) {
	n := fs.NumFeatures
	for i := 0; i < n; i++ {
		d := fs.DescriptorsF32[i*model.DescriptorDim : (i+1)*model.DescriptorDim]
		if policy == "l2" {
			NormalizeL2(d)
		} else {
			NormalizeL1Root(d)
		}
	}

	if !quantize {
		return
	}

	u8 := make([]uint8, 0, n*model.DescriptorDim)
	for i := 0; i < n; i++ {
		d := fs.DescriptorsF32[i*model.DescriptorDim : (i+1)*model.DescriptorDim]
		u8 = append(u8, Quantize(d, scale)...)
	}
	fs.DescriptorsU8 = u8
	fs.DescriptorsF32 = nil
	fs.DescriptorType = model.DescriptorUint8
	fs.QuantizationScale = scale
}
