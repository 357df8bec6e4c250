package statistics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains all statistics for a compression run.
type Statistics struct {
	ImagesFound      int64
	ImagesProcessed  int64
	ImagesCompressed int64
	ImagesNotSmaller int64
	ImagesFailed     int64

	QualityModeRuns int64
	TargetModeRuns  int64
	Fallbacks       int64
	EncodeAttempts  int64

	BytesIn  int64
	BytesOut int64

	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	ImagesPerSecond float64
	AverageRatio    float64

	Errors []StatError

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	Image     string    `json:"image"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy of the counters, safe to serialize.
type Snapshot struct {
	ImagesFound      int64         `json:"images_found"`
	ImagesProcessed  int64         `json:"images_processed"`
	ImagesCompressed int64         `json:"images_compressed"`
	ImagesNotSmaller int64         `json:"images_not_smaller"`
	ImagesFailed     int64         `json:"images_failed"`
	QualityModeRuns  int64         `json:"quality_mode_runs"`
	TargetModeRuns   int64         `json:"target_mode_runs"`
	Fallbacks        int64         `json:"fallbacks"`
	EncodeAttempts   int64         `json:"encode_attempts"`
	BytesIn          int64         `json:"bytes_in"`
	BytesOut         int64         `json:"bytes_out"`
	OverallRatio     float64       `json:"overall_ratio"`
	Duration         time.Duration `json:"duration"`
	Errors           []StatError   `json:"errors"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
		Errors:    make([]StatError, 0),
	}
}

// AddImagesFound increases the count of images queued by n.
func (s *Statistics) AddImagesFound(n int) {
	atomic.AddInt64(&s.ImagesFound, int64(n))
}

// IncrementImagesFailed increases the count of failed images by 1.
func (s *Statistics) IncrementImagesFailed() {
	atomic.AddInt64(&s.ImagesFailed, 1)
}

// IncrementMode counts one run of the named mode.
func (s *Statistics) IncrementMode(mode string) {
	switch mode {
	case "target":
		atomic.AddInt64(&s.TargetModeRuns, 1)
	default:
		atomic.AddInt64(&s.QualityModeRuns, 1)
	}
}

// RecordResult accounts for one successfully encoded image.
func (s *Statistics) RecordResult(originalSize, compressedSize, attempts int, fellBack bool) {
	atomic.AddInt64(&s.ImagesProcessed, 1)
	atomic.AddInt64(&s.EncodeAttempts, int64(attempts))
	atomic.AddInt64(&s.BytesIn, int64(originalSize))
	atomic.AddInt64(&s.BytesOut, int64(compressedSize))

	if compressedSize < originalSize {
		atomic.AddInt64(&s.ImagesCompressed, 1)
	} else {
		atomic.AddInt64(&s.ImagesNotSmaller, 1)
	}
	if fellBack {
		atomic.AddInt64(&s.Fallbacks, 1)
	}
}

// OverallRatio returns the percentage of input bytes saved across the run.
func (s *Statistics) OverallRatio() float64 {
	in := atomic.LoadInt64(&s.BytesIn)
	if in <= 0 {
		return 0
	}
	out := atomic.LoadInt64(&s.BytesOut)
	return float64(in-out) / float64(in) * 100
}

// Finalize calculates final statistics such as duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.ImagesProcessed)
	if s.Duration.Seconds() > 0 {
		s.ImagesPerSecond = float64(processed) / s.Duration.Seconds()
	}
	s.AverageRatio = s.OverallRatio()
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(image, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		Image:     image,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Snapshot returns a copy of the current counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	errs := make([]StatError, len(s.Errors))
	copy(errs, s.Errors)
	duration := s.Duration
	if s.EndTime.IsZero() {
		duration = time.Since(s.StartTime)
	}
	s.mutex.RUnlock()

	return Snapshot{
		ImagesFound:      atomic.LoadInt64(&s.ImagesFound),
		ImagesProcessed:  atomic.LoadInt64(&s.ImagesProcessed),
		ImagesCompressed: atomic.LoadInt64(&s.ImagesCompressed),
		ImagesNotSmaller: atomic.LoadInt64(&s.ImagesNotSmaller),
		ImagesFailed:     atomic.LoadInt64(&s.ImagesFailed),
		QualityModeRuns:  atomic.LoadInt64(&s.QualityModeRuns),
		TargetModeRuns:   atomic.LoadInt64(&s.TargetModeRuns),
		Fallbacks:        atomic.LoadInt64(&s.Fallbacks),
		EncodeAttempts:   atomic.LoadInt64(&s.EncodeAttempts),
		BytesIn:          atomic.LoadInt64(&s.BytesIn),
		BytesOut:         atomic.LoadInt64(&s.BytesOut),
		OverallRatio:     s.OverallRatio(),
		Duration:         duration,
		Errors:           errs,
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return fmt.Sprintf(`Image Compressor Statistics Summary:

Images:
		Found: %d
		Processed: %d
		Compressed: %d
		Not Smaller: %d
		Failed: %d

Modes:
		Quality: %d
		Target Size: %d
		Fallbacks: %d
		Encode Attempts: %d

Size:
		Input: %s
		Output: %s
		Saved: %.1f%%

Performance:
		Duration: %v
		Images/Second: %.2f`,
		atomic.LoadInt64(&s.ImagesFound),
		atomic.LoadInt64(&s.ImagesProcessed),
		atomic.LoadInt64(&s.ImagesCompressed),
		atomic.LoadInt64(&s.ImagesNotSmaller),
		atomic.LoadInt64(&s.ImagesFailed),
		atomic.LoadInt64(&s.QualityModeRuns),
		atomic.LoadInt64(&s.TargetModeRuns),
		atomic.LoadInt64(&s.Fallbacks),
		atomic.LoadInt64(&s.EncodeAttempts),
		FormatBytes(atomic.LoadInt64(&s.BytesIn)),
		FormatBytes(atomic.LoadInt64(&s.BytesOut)),
		s.OverallRatio(),
		s.Duration,
		s.ImagesPerSecond)
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.Image,
			err.Error)
	}
	return result
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// GetImagesFailed returns the number of images that could not be compressed.
func (s *Statistics) GetImagesFailed() int64 {
	return atomic.LoadInt64(&s.ImagesFailed)
}

// GetDuration returns the total duration of the operation.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}
