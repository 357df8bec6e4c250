package metadata

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func createTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 100, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}))
	return buf.Bytes()
}

// withEXIF splices an APP1 segment carrying Make and Orientation after SOI.
func withEXIF(t *testing.T, jpg []byte, camera string, orientation uint16) []byte {
	t.Helper()
	le := binary.LittleEndian

	value := append([]byte(camera), 0)
	const entries = 2
	dataOffset := uint32(8 + 2 + entries*12 + 4)

	var tiff bytes.Buffer
	tiff.WriteString("II")
	binary.Write(&tiff, le, uint16(42))
	binary.Write(&tiff, le, uint32(8))
	binary.Write(&tiff, le, uint16(entries))
	// Make, ASCII
	binary.Write(&tiff, le, uint16(0x010F))
	binary.Write(&tiff, le, uint16(2))
	binary.Write(&tiff, le, uint32(len(value)))
	binary.Write(&tiff, le, dataOffset)
	// Orientation, SHORT
	binary.Write(&tiff, le, uint16(0x0112))
	binary.Write(&tiff, le, uint16(3))
	binary.Write(&tiff, le, uint32(1))
	binary.Write(&tiff, le, orientation)
	binary.Write(&tiff, le, uint16(0))
	binary.Write(&tiff, le, uint32(0))
	tiff.Write(value)

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var out bytes.Buffer
	out.Write(jpg[:2])
	out.Write([]byte{0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpg[2:])
	return out.Bytes()
}

func TestInspectBytes_NoEXIF(t *testing.T) {
	i := NewInspector(quietLogger())

	s, err := i.InspectBytes("plain.jpg", createTestJPEG(t, 64, 48))
	require.NoError(t, err)

	assert.Equal(t, "jpeg", s.Format)
	assert.Equal(t, 64, s.Width)
	assert.Equal(t, 48, s.Height)
	assert.False(t, s.HasEXIF)
	assert.False(t, s.HasGPS)
}

func TestInspectBytes_WithEXIF(t *testing.T) {
	i := NewInspector(quietLogger())
	data := withEXIF(t, createTestJPEG(t, 32, 32), "Canon", 6)

	s, err := i.InspectBytes("camera.jpg", data)
	require.NoError(t, err)

	assert.True(t, s.HasEXIF)
	assert.Equal(t, "Canon", s.Make)
	assert.Equal(t, 6, s.Orientation)
	assert.Equal(t, 32, s.Width)
	assert.Nil(t, s.DateTime)
}

func TestInspectBytes_NotImage(t *testing.T) {
	i := NewInspector(quietLogger())
	_, err := i.InspectBytes("notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestInspect_Cache(t *testing.T) {
	i := NewInspector(quietLogger())
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, createTestJPEG(t, 20, 10), 0644))

	first, err := i.Inspect(path)
	require.NoError(t, err)
	second, err := i.Inspect(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "photo.jpg", first.Name)

	stats := i.GetCacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)

	i.ClearCache()
	assert.Equal(t, int64(0), i.GetCacheStats().TotalQueries)
}

func TestInspect_MissingFile(t *testing.T) {
	_, err := NewInspector(quietLogger()).Inspect(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestSelectTags(t *testing.T) {
	fields := map[string]interface{}{
		"SourceFile":  "/tmp/a.jpg",
		"Make":        "NIKON",
		"ISO":         float64(200),
		"GPSLatitude": "37 deg 46' 29.64\" N",
		"GPSPosition": "37.7749, -122.4194",
		"Orientation": "Rotate 90 CW",
		"ImageWidth":  float64(4000),
		"Copyright":   "Jane Doe",
	}

	tags := SelectTags(fields)
	assert.Equal(t, map[string]string{
		"Make":        "NIKON",
		"ISO":         "200",
		"GPSLatitude": "37 deg 46' 29.64\" N",
		"GPSPosition": "37.7749, -122.4194",
		"Copyright":   "Jane Doe",
	}, tags)
}

func TestExiftoolCopier_Copy(t *testing.T) {
	c, err := NewExiftoolCopier(quietLogger())
	if err != nil {
		t.Skipf("exiftool not available: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	dst := filepath.Join(dir, "dst.jpg")
	require.NoError(t, os.WriteFile(src, withEXIF(t, createTestJPEG(t, 16, 16), "Canon", 1), 0644))
	require.NoError(t, os.WriteFile(dst, createTestJPEG(t, 8, 8), 0644))

	n, err := c.Copy(src, dst)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	s, err := NewInspector(quietLogger()).Inspect(dst)
	require.NoError(t, err)
	assert.Equal(t, "Canon", s.Make)
}
