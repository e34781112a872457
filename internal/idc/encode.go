package idc

import (
	"encoding/binary"
	"math"
)

// EncodeF32 serializes a float32 slice to little-endian bytes for AddBlob.
func EncodeF32(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(x))
	}
	return out
}

// EncodeU16 serializes a uint16 slice to little-endian bytes for AddBlob.
func EncodeU16(v []uint16) []byte {
	out := make([]byte, len(v)*2)
	for i, x := range v {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], x)
	}
	return out
}
