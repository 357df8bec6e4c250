package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"image-compressor-go/internal/batch"
	"image-compressor-go/internal/logger"

	"github.com/sirupsen/logrus"
)

// DefaultPrefix is prepended to exported file names.
const DefaultPrefix = "compressed_"

// Copier carries metadata from a source file onto a written output.
type Copier interface {
	Copy(src, dst string) (int, error)
}

// FileName derives the output name: the original without its last
// extension, prefixed, with ext appended.
func FileName(original, prefix, ext string) string {
	base := filepath.Base(original)
	if base == "." || base == string(filepath.Separator) {
		base = "image"
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "image"
	}

	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "jpeg"
	}
	return prefix + stem + "." + ext
}

// Writer stores compressed results on disk.
type Writer struct {
	Dir              string
	Prefix           string
	Extension        string
	Overwrite        bool
	PreserveMetadata bool
	Copier           Copier
	Logger           *logrus.Logger
}

// Write stores res inside Dir, creating it if needed, and returns the
// written path. A failed or empty result writes nothing.
func (w *Writer) Write(sourcePath string, res batch.ItemResult) (string, error) {
	if res.Err != nil {
		return "", fmt.Errorf("nothing to write for %s: %w", res.Name, res.Err)
	}
	if len(res.Data) == 0 {
		return "", fmt.Errorf("nothing to write for %s: empty result", res.Name)
	}

	log := w.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	dir := w.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create directory %s: %w", dir, err)
	}

	name := res.Name
	if name == "" {
		name = sourcePath
	}
	target := filepath.Join(dir, FileName(name, w.Prefix, w.Extension))
	if !w.Overwrite {
		target = uniquePath(target)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, res.Data, 0644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("could not write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("could not move %s to %s: %w", tmp, target, err)
	}

	if w.PreserveMetadata && w.Copier != nil && sourcePath != "" {
		if _, err := os.Stat(sourcePath); err == nil {
			entry := logger.WithImage(log, res.Name)
			if n, err := w.Copier.Copy(sourcePath, target); err != nil {
				entry.Warnf("Could not copy metadata to %s: %v", target, err)
			} else {
				entry.Debugf("Copied %d metadata tags to %s", n, target)
			}
		}
	}

	log.Debugf("Wrote %s (%d bytes)", target, len(res.Data))
	return target, nil
}

// uniquePath returns path, or path with a counter added when it already exists.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	counter := 1
	for {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, counter, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		counter++
	}
}
