package mesh

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/kwv/slamview/internal/logger"
)

// RasterBuffer is a decoded grayscale grid map. Pixels are normalized to
// 0..255, row-major, len(Pixels) == Width*Height.
type RasterBuffer struct {
	Width    int
	Height   int
	Pixels   []uint8
	MaxValue int
}

// At returns the sample at (x, y), or 0 outside the raster.
func (r *RasterBuffer) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return 0
	}
	return r.Pixels[y*r.Width+x]
}

// Image returns the raster with grey replicated to RGB at full opacity.
func (r *RasterBuffer) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i, v := range r.Pixels {
		o := i * 4
		img.Pix[o] = v
		img.Pix[o+1] = v
		img.Pix[o+2] = v
		img.Pix[o+3] = 255
	}
	return img
}

// RotateCCW90 returns a copy rotated a quarter turn counter-clockwise.
// Pixel (x, y) moves to (y, Width-1-x).
func (r *RasterBuffer) RotateCCW90() *RasterBuffer {
	out := &RasterBuffer{
		Width:    r.Height,
		Height:   r.Width,
		Pixels:   make([]uint8, len(r.Pixels)),
		MaxValue: r.MaxValue,
	}
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			nx, ny := y, r.Width-1-x
			out.Pixels[ny*out.Width+nx] = r.Pixels[y*r.Width+x]
		}
	}
	return out
}

// EncodePGM writes the raster as a binary P5 file with maxval 255.
func (r *RasterBuffer) EncodePGM() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "P5\n%d %d\n255\n", r.Width, r.Height)
	buf.Write(r.Pixels)
	return buf.Bytes()
}

// pgmHeader walks the textual part of a PGM file.
type pgmHeader struct {
	data []byte
	pos  int
}

func (h *pgmHeader) skipSpaceAndComments() {
	for h.pos < len(h.data) {
		c := h.data[h.pos]
		switch {
		case c == '#':
			for h.pos < len(h.data) && h.data[h.pos] != '\n' {
				h.pos++
			}
		case isPGMSpace(c):
			h.pos++
		default:
			return
		}
	}
}

func (h *pgmHeader) token() string {
	h.skipSpaceAndComments()
	start := h.pos
	for h.pos < len(h.data) && !isPGMSpace(h.data[h.pos]) && h.data[h.pos] != '#' {
		h.pos++
	}
	return string(h.data[start:h.pos])
}

func (h *pgmHeader) positiveInt(field string) (int, error) {
	tok := h.token()
	n, err := strconv.Atoi(tok)
	if err != nil || n <= 0 {
		return 0, &FormatError{Reason: fmt.Sprintf("invalid %s %q", field, tok)}
	}
	return n, nil
}

func isPGMSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

// DecodePGM decodes a binary (P5) grayscale raster. The header is
// "P5 width height maxval" with arbitrary whitespace and # comments, ended by
// a single whitespace byte.
func DecodePGM(data []byte) (*RasterBuffer, error) {
	h := &pgmHeader{data: data}

	if magic := h.token(); magic != "P5" {
		return nil, &FormatError{Reason: fmt.Sprintf("unexpected magic %q", magic)}
	}
	width, err := h.positiveInt("width")
	if err != nil {
		return nil, err
	}
	height, err := h.positiveInt("height")
	if err != nil {
		return nil, err
	}
	maxVal, err := h.positiveInt("maxval")
	if err != nil {
		return nil, err
	}
	if maxVal > 255 {
		return nil, &FormatError{Reason: fmt.Sprintf("maxval %d exceeds 255", maxVal)}
	}

	if h.pos >= len(data) || !isPGMSpace(data[h.pos]) {
		return nil, &FormatError{Reason: "header not terminated by whitespace"}
	}
	payload := data[h.pos+1:]

	if height > math.MaxInt/width {
		return nil, &FormatError{Reason: fmt.Sprintf("dimensions %dx%d overflow", width, height)}
	}
	expected := width * height
	if len(payload) != expected {
		return nil, &SizeMismatchError{Expected: expected, Actual: len(payload)}
	}

	pixels := make([]uint8, expected)
	for i, v := range payload {
		pixels[i] = normalizeSample(v, maxVal)
	}
	return &RasterBuffer{Width: width, Height: height, Pixels: pixels, MaxValue: maxVal}, nil
}

// normalizeSample rescales v from 0..maxVal to 0..255.
func normalizeSample(v uint8, maxVal int) uint8 {
	if maxVal == 255 {
		return v
	}
	scaled := math.Round(float64(v) * 255 / float64(maxVal))
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}

// IsPNG checks if data starts with PNG magic bytes
func IsPNG(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	// PNG magic bytes: 0x89 'P' 'N' 'G' '\r' '\n' 0x1a '\n'
	return data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G'
}

// DecodePNGRaster decodes a pre-rendered map image into a RasterBuffer using
// each pixel's luminance.
func DecodePNGRaster(data []byte) (*RasterBuffer, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding png: %w", err)
	}
	b := img.Bounds()
	r := &RasterBuffer{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Pixels:   make([]uint8, b.Dx()*b.Dy()),
		MaxValue: 255,
	}
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			r.Pixels[y*r.Width+x] = g.Y
		}
	}
	return r, nil
}

// FallbackPath returns the pre-rendered image that stands in for a raw
// raster: "maps/site.pgm" becomes "maps/site.png".
func FallbackPath(name string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + ".png"
}

// DecodeRasterAsset decodes a fetched raster. PNG payloads are decoded
// directly. A PGM that fails to decode is replaced by whatever fallback
// returns; if that fails too the result is a MapAssetError carrying both
// causes.
func DecodeRasterAsset(raw []byte, fallback func() ([]byte, error)) (*RasterBuffer, error) {
	if IsPNG(raw) {
		r, err := DecodePNGRaster(raw)
		if err != nil {
			return nil, &MapAssetError{Asset: "raster", Err: err}
		}
		return r, nil
	}

	r, decodeErr := DecodePGM(raw)
	if decodeErr == nil {
		return r, nil
	}
	if fallback == nil {
		return nil, &MapAssetError{Asset: "raster", Err: decodeErr}
	}

	logger.Sugar.Warnf("[LOADER] raster decode failed, trying pre-rendered image: %v", decodeErr)
	data, err := fallback()
	if err == nil {
		r, err = DecodePNGRaster(data)
	}
	if err != nil {
		return nil, &MapAssetError{Asset: "raster", Err: errors.Join(decodeErr, err)}
	}
	return r, nil
}
