// Package idc implements the Insight Data Container: a self-describing
// binary format used for feature files (.isat_feat), match files
// (.isat_match), and cached VLAD vectors (.isat_vlad). Layout:
//
//	offset  size           field
//	0       4              magic = 0x54415349 (LE u32, "ISAT")
//	4       4              version (LE u32, currently 1)
//	8       8              json_size (LE u64)
//	16      json_size      JSON bytes (UTF-8, no trailing NUL)
//	16+js   pad            zero bytes, 0..7, so payload starts 8-aligned
//	16+js+p payload_bytes  concatenated blobs
package idc

import (
	"encoding/json"
)

// Magic identifies an IDC file: the bytes "ISAT" read as a little-endian
// uint32.
const Magic uint32 = 0x54415349

// FormatVersion is the current on-disk format revision.
const FormatVersion uint32 = 1

// Alignment is the byte boundary the payload region starts on.
const Alignment = 8

const headerSize = 16 // magic(4) + version(4) + json_size(8)

// BlobDescriptor describes one named array within the payload region.
// Offset is relative to the payload's start, not the file's start.
type BlobDescriptor struct {
	Name   string `json:"name"`
	Dtype  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
}

// AlgorithmInfo names the algorithm that produced a file's contents.
type AlgorithmInfo struct {
	Name       string         `json:"name"`
	Version    string         `json:"version"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// DescriptorSchema is the optional v1.1+ metadata block that lets a reader
// distinguish SIFT-uint8 (quantization_scale 512) from RootSIFT-float32
// without guesswork.
type DescriptorSchema struct {
	FeatureType       string  `json:"feature_type"`
	DescriptorDim     int     `json:"descriptor_dim"`
	DescriptorDtype   string  `json:"descriptor_dtype"`
	Normalization     string  `json:"normalization"`
	QuantizationScale float64 `json:"quantization_scale,omitempty"`
}

// Descriptor is the JSON root written after the 16-byte header.
type Descriptor struct {
	SchemaVersion    string            `json:"schema_version"`
	TaskType         string            `json:"task_type"`
	Algorithm        AlgorithmInfo     `json:"algorithm"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	DescriptorSchema *DescriptorSchema `json:"descriptor_schema,omitempty"`
	Blobs            []BlobDescriptor  `json:"blobs"`
}

func dtypeWidth(dtype string) int {
	switch dtype {
	case "uint8":
		return 1
	case "uint16":
		return 2
	case "float32":
		return 4
	default:
		return 0
	}
}

// padLen returns the number of zero bytes needed so that
// headerSize+jsonSize+pad is a multiple of Alignment.
func padLen(jsonSize int) int {
	return (Alignment - (headerSize+jsonSize)%Alignment) % Alignment
}

func marshalDescriptor(d Descriptor) ([]byte, error) {
	return json.Marshal(d)
}
