package codebook

import (
	"encoding/binary"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/insightpipe/isat/internal/apperrors"
)

// PCAMagic identifies a .pca file: "PCAM" read as LE u32.
const PCAMagic = 0x4D414350

const pcaHeaderSize = 16 // magic, version, input_dim, num_components

// PCAModel is a fitted PCA projection: center by Mean, project through
// Components, optionally consult ExplainedVariance for whitening.
type PCAModel struct {
	Version           uint32
	InputDim          int
	NumComponents     int
	Mean              []float64
	Components        *mat.Dense // NumComponents x InputDim
	ExplainedVariance []float64  // length NumComponents
}

// LoadPCA parses a .pca file.
func LoadPCA(path string) (*PCAModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInputMissing, "codebook.load_pca", err)
	}
	if len(raw) < pcaHeaderSize {
		return nil, apperrors.New(apperrors.KindCorrupt, "codebook.load_pca", apperrors.ErrTruncated)
	}
	magic := binary.LittleEndian.Uint32(raw[0:4])
	if magic != PCAMagic {
		return nil, apperrors.New(apperrors.KindCorrupt, "codebook.load_pca", apperrors.ErrBadMagic)
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	inputDim := int(binary.LittleEndian.Uint32(raw[8:12]))
	numComponents := int(binary.LittleEndian.Uint32(raw[12:16]))

	off := pcaHeaderSize
	readF64 := func() float64 {
		bits := binary.LittleEndian.Uint64(raw[off : off+8])
		off += 8
		return math.Float64frombits(bits)
	}

	want := pcaHeaderSize + 8*(inputDim+inputDim*numComponents+numComponents)
	if len(raw) < want {
		return nil, apperrors.New(apperrors.KindCorrupt, "codebook.load_pca", apperrors.ErrTruncated)
	}

	mean := make([]float64, inputDim)
	for i := range mean {
		mean[i] = readF64()
	}

	comps := make([]float64, numComponents*inputDim)
	for i := range comps {
		comps[i] = readF64()
	}

	variance := make([]float64, numComponents)
	for i := range variance {
		variance[i] = readF64()
	}

	return &PCAModel{
		Version:           version,
		InputDim:          inputDim,
		NumComponents:     numComponents,
		Mean:              mean,
		Components:        mat.NewDense(numComponents, inputDim, comps),
		ExplainedVariance: variance,
	}, nil
}

// Save writes the model to path in .pca format.
func (m *PCAModel) Save(path string) error {
	size := pcaHeaderSize + 8*(m.InputDim+m.InputDim*m.NumComponents+m.NumComponents)
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], PCAMagic)
	version := m.Version
	if version == 0 {
		version = 1
	}
	binary.LittleEndian.PutUint32(buf[4:8], version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.InputDim))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(m.NumComponents))

	off := pcaHeaderSize
	writeF64 := func(v float64) {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
		off += 8
	}
	for _, v := range m.Mean {
		writeF64(v)
	}
	r, c := m.Components.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			writeF64(m.Components.At(i, j))
		}
	}
	for _, v := range m.ExplainedVariance {
		writeF64(v)
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return apperrors.Wrap(apperrors.KindCorrupt, "codebook.save_pca", err)
	}
	return nil
}

// Project centers x by Mean and multiplies by Components^T, yielding a
// NumComponents-length vector.
func (m *PCAModel) Project(x []float64) []float64 {
	centered := mat.NewVecDense(m.InputDim, nil)
	for i := 0; i < m.InputDim; i++ {
		centered.SetVec(i, x[i]-m.Mean[i])
	}
	out := mat.NewVecDense(m.NumComponents, nil)
	out.MulVec(m.Components, centered)
	result := make([]float64, m.NumComponents)
	for i := 0; i < m.NumComponents; i++ {
		result[i] = out.AtVec(i)
	}
	return result
}
