package compressor

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
)

// createTestImage builds a gradient with deterministic noise so JPEG output
// size responds to quality the way a photo does.
func createTestImage(width, height int) image.Image {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			n := uint8(rng.Intn(48))
			img.Set(x, y, color.RGBA{
				R: uint8((x*200)/width) + n,
				G: uint8((y*200)/height) + n/2,
				B: 96 + n,
				A: 255,
			})
		}
	}
	return img
}

// createTestJPEG encodes createTestImage at the given quality.
func createTestJPEG(t testing.TB, width, height, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, createTestImage(width, height), &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeEncoder returns results whose size is sizeFn(params) and records every call.
type fakeEncoder struct {
	sizeFn func(p EncodeParams) int
	errAt  map[int]error // keyed by quality
	calls  []EncodeParams
}

func (f *fakeEncoder) Encode(img image.Image, p EncodeParams) (*EncodedResult, error) {
	f.calls = append(f.calls, p)
	if err, ok := f.errAt[p.Quality]; ok {
		return nil, err
	}
	b := img.Bounds()
	w, h := TargetDimensions(b.Dx(), b.Dy(), p.Scale)
	size := f.sizeFn(p)
	return &EncodedResult{
		Data:    make([]byte, size),
		Size:    size,
		Quality: p.Quality,
		Scale:   p.Scale,
		Width:   w,
		Height:  h,
	}, nil
}

// newFakeEngine wires a fake encoder and a decoder that ignores the source bytes,
// so sources of any length can be used.
func newFakeEngine(enc *fakeEncoder) *Engine {
	e := NewEngine(enc, DefaultSettings(), quietLogger())
	e.decode = func([]byte) (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 200, 100)), nil
	}
	return e
}

func sourceOfSize(n int) SourceImage {
	return SourceImage{Name: "fixture.jpg", Data: make([]byte, n)}
}

// withOrientation splices an APP1 segment holding only an EXIF Orientation tag after SOI.
func withOrientation(t testing.TB, jpg []byte, orientation uint16) []byte {
	t.Helper()
	le := binary.LittleEndian

	var tiff bytes.Buffer
	tiff.WriteString("II")
	binary.Write(&tiff, le, uint16(42))
	binary.Write(&tiff, le, uint32(8))
	binary.Write(&tiff, le, uint16(1))
	binary.Write(&tiff, le, uint16(0x0112))
	binary.Write(&tiff, le, uint16(3))
	binary.Write(&tiff, le, uint32(1))
	binary.Write(&tiff, le, orientation)
	binary.Write(&tiff, le, uint16(0))
	binary.Write(&tiff, le, uint32(0))

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var out bytes.Buffer
	out.Write(jpg[:2])
	out.Write([]byte{0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpg[2:])
	return out.Bytes()
}
