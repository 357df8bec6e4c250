package compressor

// ScaleTier maps qualities below Below to Base + quality/100*Slope.
type ScaleTier struct {
	Below int     `mapstructure:"below"`
	Base  float64 `mapstructure:"base"`
	Slope float64 `mapstructure:"slope"`
}

// ScalePolicy is an ordered list of tiers. The first tier whose Below exceeds
// the quality wins; qualities past every tier are not downscaled.
type ScalePolicy []ScaleTier

// DirectScalePolicy is the two-tier policy used in quality mode (0.5..0.9 below 85).
func DirectScalePolicy() ScalePolicy {
	return ScalePolicy{
		{Below: 85, Base: 0.5, Slope: 0.4},
	}
}

// SearchScalePolicy is the three-tier policy used by the target-size searcher.
func SearchScalePolicy() ScalePolicy {
	return ScalePolicy{
		{Below: 30, Base: 0.4, Slope: 0.4},
		{Below: 60, Base: 0.6, Slope: 0.3},
		{Below: 101, Base: 0.8, Slope: 0.2},
	}
}

// ScaleFor returns the scale factor for quality, always within (0,1].
func (p ScalePolicy) ScaleFor(quality int) float64 {
	for _, t := range p {
		if quality < t.Below {
			return clampScale(t.Base + float64(quality)/100*t.Slope)
		}
	}
	return 1.0
}

func clampScale(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s <= 0 {
		return 0.01
	}
	return s
}
