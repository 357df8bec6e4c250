// Package validate gates uploads before they reach the compressor.
package validate

import (
	"errors"
	"fmt"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// DefaultMaxBytes is the largest accepted input.
const DefaultMaxBytes int64 = 10 << 20

var (
	ErrEmpty           = errors.New("empty file")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Checker rejects inputs that are empty, oversized or of a type outside AllowedMIME.
type Checker struct {
	MaxBytes    int64
	AllowedMIME []string
}

// NewChecker returns a Checker. Zero values select the defaults.
func NewChecker(maxBytes int64, allowed []string) *Checker {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(allowed) == 0 {
		allowed = []string{"image/jpeg"}
	}
	return &Checker{MaxBytes: maxBytes, AllowedMIME: allowed}
}

// Check validates one input by content, not by name.
func (c *Checker) Check(name string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%s: %w", name, ErrEmpty)
	}

	max := c.MaxBytes
	if max <= 0 {
		max = DefaultMaxBytes
	}
	if int64(len(data)) > max {
		return fmt.Errorf("%s: %w (%d bytes, limit %d)", name, ErrTooLarge, len(data), max)
	}

	mime, err := Sniff(data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !c.allowed(mime) {
		return fmt.Errorf("%s: %w: %s", name, ErrUnsupportedType, mime)
	}
	return nil
}

func (c *Checker) allowed(mime string) bool {
	allowed := c.AllowedMIME
	if len(allowed) == 0 {
		allowed = []string{"image/jpeg"}
	}
	for _, m := range allowed {
		if m == mime {
			return true
		}
	}
	return false
}

// Sniff returns the MIME type detected from the leading bytes.
func Sniff(data []byte) (string, error) {
	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return "", ErrUnsupportedType
	}
	return kind.MIME.Value, nil
}
