package statistics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordResult(t *testing.T) {
	s := NewStatistics()
	s.AddImagesFound(3)

	s.RecordResult(1000, 400, 1, false)
	s.RecordResult(1000, 1000, 2, false)
	s.RecordResult(2000, 600, 7, true)
	s.IncrementImagesFailed()
	s.AddError("broken.jpg", "compress", "decode error")

	snap := s.Snapshot()
	assert.Equal(t, int64(3), snap.ImagesFound)
	assert.Equal(t, int64(3), snap.ImagesProcessed)
	assert.Equal(t, int64(2), snap.ImagesCompressed)
	assert.Equal(t, int64(1), snap.ImagesNotSmaller)
	assert.Equal(t, int64(1), snap.ImagesFailed)
	assert.Equal(t, int64(1), snap.Fallbacks)
	assert.Equal(t, int64(10), snap.EncodeAttempts)
	assert.Equal(t, int64(4000), snap.BytesIn)
	assert.Equal(t, int64(2000), snap.BytesOut)
	assert.InDelta(t, 50.0, snap.OverallRatio, 1e-9)
	assert.Len(t, snap.Errors, 1)
}

func TestOverallRatio_Empty(t *testing.T) {
	assert.Equal(t, 0.0, NewStatistics().OverallRatio())
}

func TestIncrementMode(t *testing.T) {
	s := NewStatistics()
	s.IncrementMode("quality")
	s.IncrementMode("target")
	s.IncrementMode("target")

	assert.Equal(t, int64(1), s.QualityModeRuns)
	assert.Equal(t, int64(2), s.TargetModeRuns)
}

func TestConcurrentUpdates(t *testing.T) {
	s := NewStatistics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordResult(100, 50, 1, false)
			s.AddError("x.jpg", "compress", "boom")
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, int64(50), snap.ImagesProcessed)
	assert.Len(t, snap.Errors, 50)
}

func TestSummaries(t *testing.T) {
	s := NewStatistics()
	assert.Equal(t, "No errors occurred during processing", s.GetErrorSummary())

	s.RecordResult(2048, 1024, 1, false)
	for i := 0; i < 12; i++ {
		s.AddError("bad.jpg", "decode", "not an image")
	}
	s.Finalize()

	summary := s.GetSummary()
	assert.Contains(t, summary, "Processed: 1")
	assert.Contains(t, summary, "Input: 2.0 KB")
	assert.Contains(t, summary, "Saved: 50.0%")
	assert.Contains(t, s.GetErrorSummary(), "... and 2 more errors")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 << 20, "5.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}
