// Package signature converts encoded camera snapshots into fixed-size
// grayscale face signatures that the gallery classifier can compare.
package signature

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Size is the canonical signature edge length in pixels. A signature is a
// Size x Size grid of luma values.
const Size = 100

var (
	// ErrDecode means the input was not a decodable data-URI image.
	ErrDecode = errors.New("invalid image encoding")

	// ErrNoFace means the detector found no face region.
	ErrNoFace = errors.New("no face detected")

	// ErrAmbiguousFace means the detector found more than one face region.
	// The extractor refuses to guess which one to use.
	ErrAmbiguousFace = errors.New("multiple faces detected")
)

// Signature is a fixed-size single-channel face crop. Pixels holds
// Size*Size luma values (0-255) in row-major order.
type Signature struct {
	Pixels []float32
}

// At returns the luma value at the given grid coordinates.
func (s *Signature) At(x, y int) float32 {
	return s.Pixels[y*Size+x]
}

// Vector returns the flattened pixel grid, suitable for distance search.
func (s *Signature) Vector() []float32 {
	return s.Pixels
}

// Extractor turns data-URI encoded images into signatures. It is stateless
// apart from the detector parameters, so extraction is deterministic for
// identical input bytes.
type Extractor struct {
	params DetectorParams
}

// NewExtractor creates an extractor with the default detector parameters.
func NewExtractor() *Extractor {
	return &Extractor{params: DefaultDetectorParams()}
}

// Extract decodes a data-URI image ("<mime>;base64,<payload>"), detects the
// face region and returns the canonical signature. It fails with ErrDecode,
// ErrNoFace or ErrAmbiguousFace; callers branch on the sentinel.
func (e *Extractor) Extract(dataURI string) (*Signature, error) {
	raw, err := decodeDataURI(dataURI)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	regions := DetectFaces(img, e.params)
	switch len(regions) {
	case 0:
		return nil, ErrNoFace
	case 1:
		return cropToSignature(img, regions[0]), nil
	default:
		return nil, fmt.Errorf("%w: found %d regions", ErrAmbiguousFace, len(regions))
	}
}

// decodeDataURI splits "<mime>;base64,<payload>" and decodes the payload.
func decodeDataURI(s string) ([]byte, error) {
	parts := strings.SplitN(s, ";base64,", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("%w: missing base64 payload", ErrDecode)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return raw, nil
}

// cropToSignature resamples the face region to the canonical Size x Size grid
// and converts it to single-channel luma.
func cropToSignature(img image.Image, region image.Rectangle) *Signature {
	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, region, draw.Src, nil)

	pixels := make([]float32, Size*Size)
	for y := range Size {
		for x := range Size {
			r, g, b, _ := dst.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			pixels[y*Size+x] = float32(luma)
		}
	}

	return &Signature{Pixels: pixels}
}
