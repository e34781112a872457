// Package imageio decodes an input image to 8-bit grayscale pixels for the
// extraction driver's Load stage. GDAL-based decoding and EXIF parsing are
// not handled; this package covers JPEG, PNG, and WebP.
package imageio

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/webp"

	"github.com/insightpipe/isat/internal/apperrors"
)

// Gray is a decoded single-channel 8-bit image.
type Gray struct {
	Width, Height int
	Pix           []byte // row-major, one byte per pixel
}

// DetectFormat sniffs the leading bytes of data to classify its image
// format by magic number, falling back to http.DetectContentType.
func DetectFormat(data []byte) string {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return "jpeg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}):
		return "png"
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp"
	}
	ct := http.DetectContentType(data)
	switch ct {
	case "image/jpeg":
		return "jpeg"
	case "image/png":
		return "png"
	}
	return "unknown"
}

// Decode reads data, decodes it with the format-appropriate stdlib/x/image
// decoder, and converts the result to 8-bit grayscale.
func Decode(data []byte) (*Gray, error) {
	format := DetectFormat(data)

	var img image.Image
	var err error
	switch format {
	case "jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "png":
		img, err = png.Decode(bytes.NewReader(data))
	case "webp":
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		// Best-effort: try the registered stdlib decoders before failing.
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, apperrors.New(apperrors.KindCorrupt, "imageio.decode", err)
		}
		return nil, apperrors.Wrap(apperrors.KindCorrupt, "imageio.decode", err)
	}

	return toGray(img), nil
}

// toGray converts any image.Image to 8-bit grayscale using the standard
// luma weighting image.Image.At already applies via color.GrayModel.
func toGray(img image.Image) *Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &Gray{Width: w, Height: h, Pix: make([]byte, w*h)}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// RGBA() returns 16-bit-scaled channels; use the standard
			// ITU-R BT.601 luma weights, matching image/color.Gray's own
			// conversion formula.
			y8 := (299*int(r>>8) + 587*int(g>>8) + 114*int(bl>>8)) / 1000
			out.Pix[y*w+x] = byte(y8)
		}
	}
	return out
}
