package idc

import (
	"encoding/binary"
	"os"

	"github.com/insightpipe/isat/internal/apperrors"
)

// Writer accumulates blobs and metadata in memory, then emits them as a
// single IDC file. Grounded on the write protocol in idc_writer.h/.cpp:
// each AddBlob records offset = current payload length before appending,
// so blob descriptors always point at byte ranges already fixed by the
// time Write runs.
type Writer struct {
	desc    Descriptor
	payload []byte
}

// NewWriter creates a Writer for the given task type ("feature_extraction",
// "feature_matching", ...), defaulting to schema_version "1.0".
func NewWriter(taskType string) *Writer {
	return &Writer{
		desc: Descriptor{
			SchemaVersion: "1.0",
			TaskType:      taskType,
			Metadata:      map[string]any{},
		},
	}
}

// SetAlgorithm records which algorithm produced this file's contents.
func (w *Writer) SetAlgorithm(name, version string, params map[string]any) {
	w.desc.Algorithm = AlgorithmInfo{Name: name, Version: version, Parameters: params}
}

// SetMetadataField sets one free-form metadata key.
func (w *Writer) SetMetadataField(key string, value any) {
	if w.desc.Metadata == nil {
		w.desc.Metadata = map[string]any{}
	}
	w.desc.Metadata[key] = value
}

// SetDescriptorSchema attaches the v1.1 descriptor-schema block and bumps
// schema_version accordingly.
func (w *Writer) SetDescriptorSchema(s DescriptorSchema) {
	w.desc.DescriptorSchema = &s
	w.desc.SchemaVersion = "1.1"
}

// AddBlob appends raw bytes to the in-memory payload and records a
// {name, dtype, shape, offset, size} descriptor entry. dtype must be one
// of "uint8", "uint16", "float32"; size must be divisible by the dtype's
// width.
func (w *Writer) AddBlob(name, dtype string, shape []int, data []byte) error {
	width := dtypeWidth(dtype)
	if width == 0 {
		return apperrors.New(apperrors.KindConfig, "idc.add_blob", apperrors.ErrUnalignedBlobSize)
	}
	if len(data)%width != 0 {
		return apperrors.New(apperrors.KindCorrupt, "idc.add_blob", apperrors.ErrUnalignedBlobSize)
	}

	offset := uint64(len(w.payload))
	w.payload = append(w.payload, data...)
	w.desc.Blobs = append(w.desc.Blobs, BlobDescriptor{
		Name:   name,
		Dtype:  dtype,
		Shape:  shape,
		Offset: offset,
		Size:   uint64(len(data)),
	})
	return nil
}

// Write serializes the header, JSON descriptor, alignment padding, and
// payload to path.
func (w *Writer) Write(path string) error {
	b, err := w.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Bytes renders the full IDC file contents without touching the
// filesystem, for tests and in-memory pipelines.
func (w *Writer) Bytes() ([]byte, error) {
	jsonBytes, err := marshalDescriptor(w.desc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindCorrupt, "idc.write", err)
	}

	pad := padLen(len(jsonBytes))
	out := make([]byte, headerSize+len(jsonBytes)+pad+len(w.payload))

	binary.LittleEndian.PutUint32(out[0:4], Magic)
	binary.LittleEndian.PutUint32(out[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(out[8:16], uint64(len(jsonBytes)))
	copy(out[16:16+len(jsonBytes)], jsonBytes)
	// out[16+len(jsonBytes) : 16+len(jsonBytes)+pad] is already zero.
	copy(out[16+len(jsonBytes)+pad:], w.payload)

	return out, nil
}
