// Package codebook reads and writes the fixed-header binary formats used
// to pre-train the VLAD strategy's k-means centroids and PCA projection,
// following the same offset-table binary idiom as the IDC container but
// without a JSON descriptor: these are small, shape-fixed files loaded
// once per retrieval run.
package codebook

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/insightpipe/isat/internal/apperrors"
)

// VLADMagic identifies a .vcbt file: "VCBT" read as LE u32.
const VLADMagic = 0x56434254

const vladHeaderSize = 16 // magic, version, num_clusters, descriptor_dim

// VLADCodebook holds pre-trained k-means centroids for the VLAD strategy.
// Centroids is row-major: centroid k's descriptor_dim floats start at
// Centroids[k*DescriptorDim].
type VLADCodebook struct {
	Version        uint32
	NumClusters    int
	DescriptorDim  int
	Centroids      []float32
}

// LoadVLADCodebook parses a .vcbt file.
func LoadVLADCodebook(path string) (*VLADCodebook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInputMissing, "codebook.load_vcbt", err)
	}
	if len(raw) < vladHeaderSize {
		return nil, apperrors.New(apperrors.KindCorrupt, "codebook.load_vcbt", apperrors.ErrTruncated)
	}
	magic := binary.LittleEndian.Uint32(raw[0:4])
	if magic != VLADMagic {
		return nil, apperrors.New(apperrors.KindCorrupt, "codebook.load_vcbt", apperrors.ErrBadMagic)
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	numClusters := int(binary.LittleEndian.Uint32(raw[8:12]))
	dim := int(binary.LittleEndian.Uint32(raw[12:16]))
	if dim != 128 {
		return nil, apperrors.New(apperrors.KindCorrupt, "codebook.load_vcbt", apperrors.ErrDtypeMismatch)
	}

	want := vladHeaderSize + numClusters*dim*4
	if len(raw) < want {
		return nil, apperrors.New(apperrors.KindCorrupt, "codebook.load_vcbt", apperrors.ErrTruncated)
	}

	centroids := make([]float32, numClusters*dim)
	for i := range centroids {
		off := vladHeaderSize + i*4
		bits := binary.LittleEndian.Uint32(raw[off : off+4])
		centroids[i] = math.Float32frombits(bits)
	}

	return &VLADCodebook{
		Version:       version,
		NumClusters:   numClusters,
		DescriptorDim: dim,
		Centroids:     centroids,
	}, nil
}

// Save writes the codebook to path in .vcbt format.
func (c *VLADCodebook) Save(path string) error {
	buf := make([]byte, vladHeaderSize+len(c.Centroids)*4)
	binary.LittleEndian.PutUint32(buf[0:4], VLADMagic)
	version := c.Version
	if version == 0 {
		version = 1
	}
	binary.LittleEndian.PutUint32(buf[4:8], version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(c.NumClusters))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(c.DescriptorDim))
	for i, v := range c.Centroids {
		off := vladHeaderSize + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return apperrors.Wrap(apperrors.KindCorrupt, "codebook.save_vcbt", err)
	}
	return nil
}

// Centroid returns a view of centroid k's descriptor-dim float32 slice.
func (c *VLADCodebook) Centroid(k int) []float32 {
	start := k * c.DescriptorDim
	return c.Centroids[start : start+c.DescriptorDim]
}
