package compressor

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// Default native quality window of the encoder, as a fraction of 1.
const (
	DefaultNativeMin = 0.01
	DefaultNativeMax = 0.98
)

// Decode turns source bytes into a pixel buffer. The EXIF orientation is
// applied to the pixels, since re-encoded output carries no EXIF.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrDecode, b.Dx(), b.Dy())
	}
	return img, nil
}

// JPEGEncoder resamples with a high-quality filter and re-encodes as JPEG.
type JPEGEncoder struct {
	Filter    imaging.ResampleFilter
	NativeMin float64
	NativeMax float64
}

// NewJPEGEncoder returns an encoder using Lanczos resampling and the 0.01–0.98 native window.
func NewJPEGEncoder() *JPEGEncoder {
	return &JPEGEncoder{
		Filter:    imaging.Lanczos,
		NativeMin: DefaultNativeMin,
		NativeMax: DefaultNativeMax,
	}
}

// FilterByName resolves a resample filter from its config name.
func FilterByName(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(name) {
	case "", "lanczos":
		return imaging.Lanczos, nil
	case "catmullrom", "catmull-rom":
		return imaging.CatmullRom, nil
	case "mitchell", "mitchellnetravali":
		return imaging.MitchellNetravali, nil
	case "linear", "bilinear":
		return imaging.Linear, nil
	case "box":
		return imaging.Box, nil
	default:
		return imaging.Lanczos, fmt.Errorf("unknown resample filter %q", name)
	}
}

// NativeQuality maps a 1..100 percent onto the encoder's clamped window and
// returns the integer quality image/jpeg expects.
func (e *JPEGEncoder) NativeQuality(percent int) int {
	lo, hi := e.NativeMin, e.NativeMax
	if lo <= 0 {
		lo = DefaultNativeMin
	}
	if hi <= 0 || hi > 1 {
		hi = DefaultNativeMax
	}
	native := math.Max(lo, math.Min(hi, float64(percent)/100))
	q := int(math.Round(native * 100))
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	return q
}

// TargetDimensions floors width and height by scale, never below 1 and never above the input.
func TargetDimensions(width, height int, scale float64) (int, int) {
	if scale >= 1 {
		return width, height
	}
	w := int(math.Floor(float64(width) * scale))
	h := int(math.Floor(float64(height) * scale))
	return max(1, min(w, width)), max(1, min(h, height))
}

// Encode implements Encoder.
func (e *JPEGEncoder) Encode(img image.Image, params EncodeParams) (*EncodedResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrEncode)
	}

	b := img.Bounds()
	w, h := TargetDimensions(b.Dx(), b.Dy(), params.Scale)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: zero-size canvas", ErrEncode)
	}

	src := img
	if w != b.Dx() || h != b.Dy() {
		filter := e.Filter
		if filter.Support == 0 && filter.Kernel == nil {
			filter = imaging.Lanczos
		}
		src = imaging.Resize(img, w, h, filter)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(e.NativeQuality(params.Quality))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: encoder produced no output", ErrEncode)
	}

	return &EncodedResult{
		Data:    buf.Bytes(),
		Size:    buf.Len(),
		Quality: params.Quality,
		Scale:   params.Scale,
		Width:   w,
		Height:  h,
	}, nil
}

// EncodeSource decodes src and performs one encode with enc.
func EncodeSource(enc Encoder, src SourceImage, params EncodeParams) (*EncodedResult, error) {
	img, err := Decode(src.Data)
	if err != nil {
		return nil, err
	}
	return enc.Encode(img, params)
}
