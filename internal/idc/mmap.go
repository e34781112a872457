package idc

import (
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/insightpipe/isat/internal/apperrors"
)

// MappedReader is a read-only view over an IDC file's bytes via mmap,
// avoiding a full-file copy for large descriptor blobs. Grounded on
// saferwall-pe/file.go's mmap.Map(f, mmap.RDONLY, 0) pattern.
type MappedReader struct {
	*Reader
	f   *os.File
	mm  mmap.MMap
}

// OpenMapped memory-maps path read-only and parses its header/descriptor
// without copying the payload.
func OpenMapped(path string) (*MappedReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInputMissing, "idc.open_mapped", err)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, apperrors.Wrap(apperrors.KindCorrupt, "idc.open_mapped", err)
	}

	r, err := Parse(m)
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}

	return &MappedReader{Reader: r, f: f, mm: m}, nil
}

// Close unmaps the file and releases the file handle.
func (m *MappedReader) Close() error {
	if err := m.mm.Unmap(); err != nil {
		m.f.Close()
		return apperrors.Wrap(apperrors.KindCorrupt, "idc.close_mapped", err)
	}
	return m.f.Close()
}
