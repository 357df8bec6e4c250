package compressor

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrDecode is returned when the source bytes are not a decodable image.
	ErrDecode = errors.New("decode error")
	// ErrEncode is returned when the encoder could not produce output.
	ErrEncode = errors.New("encode error")
	// ErrInvalidParams is returned for a quality outside 1..100 or a scale outside (0,1].
	ErrInvalidParams = errors.New("invalid encode parameters")
	// ErrInvalidRequest is returned when a CompressionRequest is inconsistent with its mode.
	ErrInvalidRequest = errors.New("invalid compression request")
)

// SourceImage is the raw input handed to the engine. The engine never mutates Data.
type SourceImage struct {
	Name string
	Data []byte
}

// Size returns the source length in bytes.
func (s SourceImage) Size() int {
	return len(s.Data)
}

// EncodeParams defines one encode attempt.
type EncodeParams struct {
	Quality int     // percent, 1..100
	Scale   float64 // applied to both axes, (0,1]
}

// Validate reports whether the parameters are inside their legal ranges.
func (p EncodeParams) Validate() error {
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("%w: quality %d", ErrInvalidParams, p.Quality)
	}
	if !(p.Scale > 0 && p.Scale <= 1) {
		return fmt.Errorf("%w: scale %g", ErrInvalidParams, p.Scale)
	}
	return nil
}

// EncodedResult is the output of a single encode. It is not modified after it is returned.
type EncodedResult struct {
	Data    []byte
	Size    int
	Quality int
	Scale   float64
	Width   int
	Height  int
}

// Encoder re-encodes a decoded image with the given parameters.
type Encoder interface {
	Encode(img image.Image, params EncodeParams) (*EncodedResult, error)
}

// Mode selects the direct encoder or the target-size searcher.
type Mode int

const (
	ModeQuality Mode = iota
	ModeTargetSize
)

// String returns the mode name used in config, logs and metrics.
func (m Mode) String() string {
	switch m {
	case ModeQuality:
		return "quality"
	case ModeTargetSize:
		return "target"
	default:
		return "unknown"
	}
}

// ParseMode accepts "quality" or "target" (also "target_size").
func ParseMode(s string) (Mode, error) {
	switch s {
	case "quality", "":
		return ModeQuality, nil
	case "target", "target_size":
		return ModeTargetSize, nil
	default:
		return ModeQuality, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
	}
}

// Request is one user-level compression action.
// Quality is meaningful in ModeQuality, TargetSizeKB in ModeTargetSize.
type Request struct {
	Mode         Mode
	Quality      int
	TargetSizeKB int
}

// Validate checks the request against its mode.
func (r Request) Validate() error {
	switch r.Mode {
	case ModeQuality:
		if r.Quality < 1 || r.Quality > 100 {
			return fmt.Errorf("%w: quality must be 1..100, got %d", ErrInvalidRequest, r.Quality)
		}
	case ModeTargetSize:
		if r.TargetSizeKB <= 0 {
			return fmt.Errorf("%w: target size must be positive, got %d KB", ErrInvalidRequest, r.TargetSizeKB)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidRequest, r.Mode)
	}
	return nil
}

// TargetResult describes the outcome of a target-size search.
type TargetResult struct {
	Result       *EncodedResult
	Attempts     int  // encodes performed, fallback included
	FellBack     bool // the quality-5 fallback produced Result
	CeilingBytes int
}

// Outcome is what Engine.Compress hands back for either mode.
type Outcome struct {
	Mode     Mode
	Result   *EncodedResult
	Attempts int
	FellBack bool
}

// CompressionRatio returns the percentage saved, (original-compressed)/original*100.
func CompressionRatio(originalSize, compressedSize int) float64 {
	if originalSize <= 0 {
		return 0
	}
	return float64(originalSize-compressedSize) / float64(originalSize) * 100
}
