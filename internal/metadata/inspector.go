package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// ErrNotImage is returned when the header cannot be read as an image.
var ErrNotImage = errors.New("not a readable image")

// Summary describes an image file without decoding its pixels.
type Summary struct {
	Name        string     `json:"name"`
	Size        int64      `json:"size"`
	Format      string     `json:"format"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	HasEXIF     bool       `json:"has_exif"`
	Make        string     `json:"make,omitempty"`
	Model       string     `json:"model,omitempty"`
	Software    string     `json:"software,omitempty"`
	Orientation int        `json:"orientation,omitempty"`
	DateTime    *time.Time `json:"date_time,omitempty"`
	HasGPS      bool       `json:"has_gps"`
}

// CacheStats contains statistics about cache performance.
type CacheStats struct {
	Hits         int64
	Misses       int64
	HitRate      float64
	TotalQueries int64
}

// Inspector reads dimensions and EXIF tags. File results are cached by path, size and mtime.
type Inspector struct {
	logger *logrus.Logger
	cache  *sync.Map
	stats  CacheStats
	mutex  sync.RWMutex
}

// NewInspector returns a new Inspector.
func NewInspector(logger *logrus.Logger) *Inspector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Inspector{
		logger: logger,
		cache:  &sync.Map{},
	}
}

// Inspect returns the summary of a file on disk.
func (i *Inspector) Inspect(filePath string) (*Summary, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	key := cacheKey(filePath, fileInfo)
	if value, ok := i.cache.Load(key); ok {
		i.incrementCacheHits()
		s := value.(Summary)
		return &s, nil
	}
	i.incrementCacheMisses()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	summary, err := i.InspectBytes(fileInfo.Name(), data)
	if err != nil {
		return nil, err
	}
	i.cache.Store(key, *summary)
	return summary, nil
}

// InspectBytes returns the summary of an in-memory image.
func (i *Inspector) InspectBytes(name string, data []byte) (*Summary, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", name, ErrNotImage, err)
	}

	summary := &Summary{
		Name:   name,
		Size:   int64(len(data)),
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		i.logger.Debugf("No EXIF in %s: %v", name, err)
		return summary, nil
	}

	summary.HasEXIF = true
	summary.Make = stringTag(x, exif.Make)
	summary.Model = stringTag(x, exif.Model)
	summary.Software = stringTag(x, exif.Software)
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			summary.Orientation = v
		}
	}
	if tm, err := x.DateTime(); err == nil {
		summary.DateTime = &tm
	}
	if _, _, err := x.LatLong(); err == nil {
		summary.HasGPS = true
	}

	return summary, nil
}

// ClearCache removes all entries from the internal cache and resets statistics.
func (i *Inspector) ClearCache() {
	i.cache = &sync.Map{}
	i.mutex.Lock()
	i.stats = CacheStats{}
	i.mutex.Unlock()
}

// GetCacheStats returns cache statistics for this inspector.
func (i *Inspector) GetCacheStats() CacheStats {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	stats := i.stats
	if stats.TotalQueries > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalQueries)
	}
	return stats
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}

func cacheKey(filePath string, fileInfo os.FileInfo) string {
	return fmt.Sprintf("%s:%d:%d", filePath, fileInfo.Size(), fileInfo.ModTime().Unix())
}

func (i *Inspector) incrementCacheHits() {
	i.mutex.Lock()
	i.stats.Hits++
	i.stats.TotalQueries++
	i.mutex.Unlock()
}

func (i *Inspector) incrementCacheMisses() {
	i.mutex.Lock()
	i.stats.Misses++
	i.stats.TotalQueries++
	i.mutex.Unlock()
}
