package compressor

import (
	"fmt"
	"image"
	"math"

	"github.com/sirupsen/logrus"
)

// DirectSettings tunes quality mode.
type DirectSettings struct {
	MinQuality int         `mapstructure:"min_quality"`
	MaxQuality int         `mapstructure:"max_quality"`
	RetryFloor int         `mapstructure:"retry_floor"`
	Scale      ScalePolicy `mapstructure:"scale"`
}

// SearchSettings tunes the target-size search.
type SearchSettings struct {
	MinQuality      int         `mapstructure:"min_quality"`
	MaxQuality      int         `mapstructure:"max_quality"`
	MaxAttempts     int         `mapstructure:"max_attempts"`
	SourceGuard     float64     `mapstructure:"source_guard"`
	Tolerance       float64     `mapstructure:"tolerance"`
	FallbackQuality int         `mapstructure:"fallback_quality"`
	Scale           ScalePolicy `mapstructure:"scale"`
}

// Settings groups the tunables of both procedures.
type Settings struct {
	Direct DirectSettings `mapstructure:"direct"`
	Search SearchSettings `mapstructure:"search"`
}

// DefaultSettings returns the empirically tuned constants.
func DefaultSettings() Settings {
	return Settings{
		Direct: DirectSettings{
			MinQuality: 5,
			MaxQuality: 95,
			RetryFloor: 5,
			Scale:      DirectScalePolicy(),
		},
		Search: SearchSettings{
			MinQuality:      1,
			MaxQuality:      95,
			MaxAttempts:     15,
			SourceGuard:     0.95,
			Tolerance:       0.05,
			FallbackQuality: 5,
			Scale:           SearchScalePolicy(),
		},
	}
}

// Engine runs the direct encoder and the target-size searcher on top of an Encoder.
// It keeps no state between calls.
type Engine struct {
	encoder  Encoder
	decode   func([]byte) (image.Image, error)
	settings Settings
	logger   *logrus.Logger
}

// NewEngine returns an Engine. A nil encoder selects the default JPEG encoder.
func NewEngine(encoder Encoder, settings Settings, logger *logrus.Logger) *Engine {
	if encoder == nil {
		encoder = NewJPEGEncoder()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		encoder:  encoder,
		decode:   Decode,
		settings: settings,
		logger:   logger,
	}
}

// Settings returns the engine's tunables.
func (e *Engine) Settings() Settings {
	return e.settings
}

// Compress decodes src once and runs the procedure selected by req.Mode.
func (e *Engine) Compress(src SourceImage, req Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	img, err := e.decode(src.Data)
	if err != nil {
		return nil, err
	}

	switch req.Mode {
	case ModeTargetSize:
		tr, err := e.searchTarget(img, src, req.TargetSizeKB)
		if err != nil {
			return nil, err
		}
		return &Outcome{Mode: req.Mode, Result: tr.Result, Attempts: tr.Attempts, FellBack: tr.FellBack}, nil
	default:
		res, attempts, err := e.compressAtQuality(img, src, req.Quality)
		if err != nil {
			return nil, err
		}
		return &Outcome{Mode: req.Mode, Result: res, Attempts: attempts}, nil
	}
}

// CompressAtQuality applies a single caller-chosen quality, with one corrective
// re-encode when the first attempt is not smaller than the source.
func (e *Engine) CompressAtQuality(src SourceImage, quality int) (*EncodedResult, error) {
	img, err := e.decode(src.Data)
	if err != nil {
		return nil, err
	}
	res, _, err := e.compressAtQuality(img, src, quality)
	return res, err
}

func (e *Engine) compressAtQuality(img image.Image, src SourceImage, quality int) (*EncodedResult, int, error) {
	ds := e.settings.Direct
	q := clampInt(quality, ds.MinQuality, ds.MaxQuality)
	scale := ds.Scale.ScaleFor(q)
	log := e.logger.WithFields(logrus.Fields{"image": src.Name, "mode": ModeQuality.String()})

	first, err := e.encoder.Encode(img, EncodeParams{Quality: q, Scale: scale})
	if err != nil {
		return nil, 1, fmt.Errorf("encode at quality %d: %w", q, err)
	}
	log.WithFields(logrus.Fields{"quality": q, "scale": scale, "size": first.Size}).Debug("Direct encode")

	if first.Size < src.Size() {
		return first, 1, nil
	}

	// The corrective pass reuses the first scale.
	retryQ := max(ds.RetryFloor, int(math.Round(float64(q)*0.5)))
	second, err := e.encoder.Encode(img, EncodeParams{Quality: retryQ, Scale: scale})
	if err != nil {
		log.Warnf("Corrective encode at quality %d failed, keeping first attempt: %v", retryQ, err)
		return first, 2, nil
	}
	log.WithFields(logrus.Fields{"quality": retryQ, "scale": scale, "size": second.Size}).Debug("Corrective encode")

	if second.Size < first.Size {
		return second, 2, nil
	}
	return first, 2, nil
}

func clampInt(v, lo, hi int) int {
	if lo > 0 && v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
