package compressor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectScalePolicy(t *testing.T) {
	p := DirectScalePolicy()

	tests := []struct {
		quality int
		want    float64
	}{
		{1, 0.504},
		{5, 0.52},
		{50, 0.7},
		{84, 0.836},
		{85, 1.0},
		{90, 1.0},
		{100, 1.0},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, p.ScaleFor(tt.quality), 1e-9, "quality %d", tt.quality)
	}
}

func TestSearchScalePolicy(t *testing.T) {
	p := SearchScalePolicy()

	tests := []struct {
		quality int
		want    float64
	}{
		{1, 0.404},
		{5, 0.42},
		{29, 0.516},
		{30, 0.69},
		{59, 0.777},
		{60, 0.92},
		{95, 0.99},
		{100, 1.0},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, p.ScaleFor(tt.quality), 1e-9, "quality %d", tt.quality)
	}
}

func TestScalePolicy_NeverUpscales(t *testing.T) {
	policies := []ScalePolicy{
		DirectScalePolicy(),
		SearchScalePolicy(),
		{{Below: 101, Base: 0.9, Slope: 0.5}},
	}

	for _, p := range policies {
		for q := 1; q <= 100; q++ {
			s := p.ScaleFor(q)
			assert.Greater(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	}
}

func TestScalePolicy_Empty(t *testing.T) {
	var p ScalePolicy
	assert.Equal(t, 1.0, p.ScaleFor(10))
}
