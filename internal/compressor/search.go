package compressor

import (
	"fmt"
	"image"
	"math"

	"github.com/sirupsen/logrus"
)

// candidate is the best-so-far of a search. The zero value means nothing found.
type candidate struct {
	found   bool
	quality int
	result  *EncodedResult
}

// offer records res unless a higher quality is already held.
func (c candidate) offer(quality int, res *EncodedResult) candidate {
	if c.found && c.quality > quality {
		return c
	}
	return candidate{found: true, quality: quality, result: res}
}

// fits reports whether the held result is within ceiling bytes.
func (c candidate) fits(ceiling float64) bool {
	return c.found && float64(c.result.Size) <= ceiling
}

// Ceiling returns min(targetKB*1024, sourceBytes*guard).
func Ceiling(targetSizeKB, sourceBytes int, guard float64) float64 {
	return math.Min(float64(targetSizeKB)*1024, float64(sourceBytes)*guard)
}

// CompressToTarget searches for the highest quality whose output fits the
// target size, falling back to a fixed low quality when nothing fits.
func (e *Engine) CompressToTarget(src SourceImage, targetSizeKB int) (*TargetResult, error) {
	if targetSizeKB <= 0 {
		return nil, fmt.Errorf("%w: target size must be positive, got %d KB", ErrInvalidRequest, targetSizeKB)
	}
	img, err := e.decode(src.Data)
	if err != nil {
		return nil, err
	}
	return e.searchTarget(img, src, targetSizeKB)
}

func (e *Engine) searchTarget(img image.Image, src SourceImage, targetSizeKB int) (*TargetResult, error) {
	s := e.settings.Search
	literal := float64(targetSizeKB) * 1024
	ceiling := Ceiling(targetSizeKB, src.Size(), s.SourceGuard)
	log := e.logger.WithFields(logrus.Fields{
		"image":   src.Name,
		"mode":    ModeTargetSize.String(),
		"target":  int(literal),
		"ceiling": int(ceiling),
	})

	lo, hi := s.MinQuality, s.MaxQuality
	best := candidate{}
	attempts := 0

	for lo <= hi && attempts < s.MaxAttempts {
		q := (lo + hi) / 2
		res, err := e.encodeTiered(img, q)
		attempts++
		if err != nil {
			return nil, fmt.Errorf("search attempt %d at quality %d: %w", attempts, q, err)
		}
		log.WithFields(logrus.Fields{"attempt": attempts, "quality": q, "scale": res.Scale, "size": res.Size}).Debug("Search step")

		if float64(res.Size) <= ceiling {
			best = best.offer(q, res)
			lo = q + 1
		} else {
			hi = q - 1
		}

		if math.Abs(float64(res.Size)-literal)/literal < s.Tolerance {
			best = candidate{found: true, quality: q, result: res}
			log.WithField("quality", q).Debug("Within tolerance of target, stopping search")
			break
		}
	}

	out := &TargetResult{Attempts: attempts, CeilingBytes: int(math.Floor(ceiling))}
	if best.fits(ceiling) {
		out.Result = best.result
		return out, nil
	}

	res, err := e.encodeTiered(img, s.FallbackQuality)
	out.Attempts++
	if err != nil {
		return nil, fmt.Errorf("fallback encode at quality %d: %w", s.FallbackQuality, err)
	}
	log.WithFields(logrus.Fields{"quality": s.FallbackQuality, "size": res.Size}).Info("Search did not converge, using fallback")
	out.Result = res
	out.FellBack = true
	return out, nil
}

func (e *Engine) encodeTiered(img image.Image, quality int) (*EncodedResult, error) {
	return e.encoder.Encode(img, EncodeParams{
		Quality: quality,
		Scale:   e.settings.Search.Scale.ScaleFor(quality),
	})
}
