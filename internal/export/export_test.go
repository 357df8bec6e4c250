package export

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"image-compressor-go/internal/batch"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeCopier struct {
	calls [][2]string
	err   error
}

func (f *fakeCopier) Copy(src, dst string) (int, error) {
	f.calls = append(f.calls, [2]string{src, dst})
	return 3, f.err
}

func TestFileName(t *testing.T) {
	tests := []struct {
		original string
		prefix   string
		ext      string
		want     string
	}{
		{"photo.jpg", DefaultPrefix, "jpeg", "compressed_photo.jpeg"},
		{"holiday.final.JPG", DefaultPrefix, "jpeg", "compressed_holiday.final.jpeg"},
		{"/tmp/in/cat.jpeg", DefaultPrefix, ".jpeg", "compressed_cat.jpeg"},
		{"noext", "small_", "jpg", "small_noext.jpg"},
		{"photo.jpg", "", "", "photo.jpeg"},
		{".jpg", DefaultPrefix, "jpeg", "compressed_image.jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.original, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.original, tt.prefix, tt.ext))
		})
	}
}

func TestWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := &Writer{Dir: dir, Prefix: DefaultPrefix, Extension: "jpeg", Logger: quietLogger()}

	path, err := w.Write("", batch.ItemResult{Name: "a.jpg", Data: []byte("jpegdata")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "compressed_a.jpeg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpegdata", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	second, err := w.Write("", batch.ItemResult{Name: "a.jpg", Data: []byte("again")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "compressed_a_1.jpeg"), second)

	w.Overwrite = true
	third, err := w.Write("", batch.ItemResult{Name: "a.jpg", Data: []byte("over")})
	require.NoError(t, err)
	assert.Equal(t, path, third)
}

func TestWriter_WritesIntoDir(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "photos", "2024")
	outDir := filepath.Join(root, "out")
	w := &Writer{Dir: outDir, Prefix: DefaultPrefix, Logger: quietLogger()}

	path, err := w.Write(filepath.Join(srcDir, "b.jpg"), batch.ItemResult{Name: filepath.Join(srcDir, "b.jpg"), Data: []byte("b")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "compressed_b.jpeg"), path)
	assert.NoDirExists(t, srcDir)
}

func TestWriter_RejectsFailedResult(t *testing.T) {
	w := &Writer{Dir: t.TempDir(), Logger: quietLogger()}

	_, err := w.Write("", batch.ItemResult{Name: "x.jpg", Err: errors.New("decode error")})
	assert.Error(t, err)

	_, err = w.Write("", batch.ItemResult{Name: "x.jpg"})
	assert.Error(t, err)
}

func TestWriter_PreserveMetadata(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	require.NoError(t, os.WriteFile(src, []byte("source"), 0644))

	copier := &fakeCopier{}
	w := &Writer{Dir: filepath.Join(dir, "out"), Prefix: DefaultPrefix, PreserveMetadata: true, Copier: copier, Logger: quietLogger()}

	path, err := w.Write(src, batch.ItemResult{Name: "src.jpg", Data: []byte("small")})
	require.NoError(t, err)
	require.Len(t, copier.calls, 1)
	assert.Equal(t, [2]string{src, path}, copier.calls[0])

	// Copy failures only warn.
	copier.err = errors.New("exiftool exploded")
	_, err = w.Write(src, batch.ItemResult{Name: "src.jpg", Data: []byte("small")})
	assert.NoError(t, err)

	// Sources that are not on disk are skipped.
	_, err = w.Write(filepath.Join(dir, "uploaded.jpg"), batch.ItemResult{Name: "uploaded.jpg", Data: []byte("x")})
	require.NoError(t, err)
	assert.Len(t, copier.calls, 2)
}
