package idc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/insightpipe/isat/internal/apperrors"
)

// Reader gives typed access to an IDC file's blobs, following the read
// protocol in idc_writer.h/.cpp: validate the magic, parse the JSON
// descriptor, then compute payload_offset = 16 + json_size + pad so
// ReadBlobBytes can seek relative to it.
type Reader struct {
	desc          Descriptor
	payload       []byte // payload region only, already sliced from the file
	payloadOffset int64
}

// Open reads and parses path in full. A corrupt header (bad magic,
// truncated JSON) fails the open outright rather than returning partial
// output.
func Open(path string) (*Reader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInputMissing, "idc.open", err)
	}
	return Parse(raw)
}

// Parse parses an already-loaded IDC file image.
func Parse(raw []byte) (*Reader, error) {
	if len(raw) < headerSize {
		return nil, apperrors.New(apperrors.KindCorrupt, "idc.parse", apperrors.ErrTruncated)
	}

	magic := binary.LittleEndian.Uint32(raw[0:4])
	if magic != Magic {
		return nil, apperrors.New(apperrors.KindCorrupt, "idc.parse", apperrors.ErrBadMagic)
	}
	// A version mismatch is tolerated rather than rejected; there's no
	// logger threaded through Parse, so it just proceeds and lets the
	// descriptor schema speak for itself.
	jsonSize := binary.LittleEndian.Uint64(raw[8:16])

	if uint64(len(raw)) < uint64(headerSize)+jsonSize {
		return nil, apperrors.New(apperrors.KindCorrupt, "idc.parse", apperrors.ErrTruncated)
	}
	jsonBytes := raw[headerSize : headerSize+jsonSize]

	var desc Descriptor
	if err := json.Unmarshal(jsonBytes, &desc); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCorrupt, "idc.parse", err)
	}

	pad := padLen(int(jsonSize))
	payloadOffset := int64(headerSize) + int64(jsonSize) + int64(pad)
	if payloadOffset > int64(len(raw)) {
		return nil, apperrors.New(apperrors.KindCorrupt, "idc.parse", apperrors.ErrTruncated)
	}

	return &Reader{
		desc:          desc,
		payload:       raw[payloadOffset:],
		payloadOffset: payloadOffset,
	}, nil
}

// Descriptor returns the file's parsed JSON root.
func (r *Reader) Descriptor() Descriptor { return r.desc }

// PayloadOffset returns the byte offset where the payload region begins.
func (r *Reader) PayloadOffset() int64 { return r.payloadOffset }

// findBlob looks up a blob descriptor by name. A missing name returns
// (nil, false) rather than an error; callers treat an absent blob as
// empty, not corrupt.
func (r *Reader) findBlob(name string) (*BlobDescriptor, bool) {
	for i := range r.desc.Blobs {
		if r.desc.Blobs[i].Name == name {
			return &r.desc.Blobs[i], true
		}
	}
	return nil, false
}

// ReadBlobBytes returns the raw bytes for blob name, or nil if absent.
func (r *Reader) ReadBlobBytes(name string) ([]byte, error) {
	bd, ok := r.findBlob(name)
	if !ok {
		return nil, nil
	}
	end := bd.Offset + bd.Size
	if end > uint64(len(r.payload)) {
		return nil, apperrors.New(apperrors.KindCorrupt, "idc.read_blob",
			fmt.Errorf("blob %q range [%d,%d) exceeds payload length %d", name, bd.Offset, end, len(r.payload)))
	}
	return r.payload[bd.Offset:end], nil
}

// ReadBlobU8 reads blob name as a uint8 array.
func (r *Reader) ReadBlobU8(name string) ([]uint8, error) {
	b, err := r.ReadBlobBytes(name)
	if err != nil || b == nil {
		return nil, err
	}
	out := make([]uint8, len(b))
	copy(out, b)
	return out, nil
}

// ReadBlobF32 reads blob name as a little-endian float32 array. Returns
// ErrUnalignedBlobSize if the byte length is not a multiple of 4.
func (r *Reader) ReadBlobF32(name string) ([]float32, error) {
	b, err := r.ReadBlobBytes(name)
	if err != nil || b == nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, apperrors.New(apperrors.KindCorrupt, "idc.read_blob", apperrors.ErrUnalignedBlobSize)
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// ReadBlobU16 reads blob name as a little-endian uint16 array.
func (r *Reader) ReadBlobU16(name string) ([]uint16, error) {
	b, err := r.ReadBlobBytes(name)
	if err != nil || b == nil {
		return nil, err
	}
	if len(b)%2 != 0 {
		return nil, apperrors.New(apperrors.KindCorrupt, "idc.read_blob", apperrors.ErrUnalignedBlobSize)
	}
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return out, nil
}
