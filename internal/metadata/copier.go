package metadata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/barasher/go-exiftool"
	"github.com/sirupsen/logrus"
)

// copiedTags are carried from the source onto the compressed output.
// Every tag starting with "GPS" is carried as well. Orientation is left out:
// the pixels are already rotated upright when decoded.
var copiedTags = []string{
	"Make",
	"Model",
	"LensModel",
	"DateTimeOriginal",
	"CreateDate",
	"ModifyDate",
	"OffsetTimeOriginal",
	"Artist",
	"Copyright",
	"ImageDescription",
	"ExposureTime",
	"FNumber",
	"ISO",
	"FocalLength",
}

// ExiftoolCopier copies a whitelist of tags between files through a running exiftool process.
type ExiftoolCopier struct {
	et     *exiftool.Exiftool
	logger *logrus.Logger
}

// NewExiftoolCopier starts exiftool. It fails when the binary is not installed.
func NewExiftoolCopier(logger *logrus.Logger) (*ExiftoolCopier, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("failed to start exiftool: %w", err)
	}
	return &ExiftoolCopier{et: et, logger: logger}, nil
}

// Copy writes the whitelisted tags of src onto dst and returns how many were set.
func (c *ExiftoolCopier) Copy(src, dst string) (int, error) {
	infos := c.et.ExtractMetadata(src, dst)
	if len(infos) != 2 {
		return 0, fmt.Errorf("exiftool returned %d results for 2 files", len(infos))
	}
	if infos[0].Err != nil {
		return 0, fmt.Errorf("read metadata of %s: %w", src, infos[0].Err)
	}
	if infos[1].Err != nil {
		return 0, fmt.Errorf("read metadata of %s: %w", dst, infos[1].Err)
	}

	tags := SelectTags(infos[0].Fields)
	if len(tags) == 0 {
		c.logger.Debugf("No metadata to copy from %s", src)
		return 0, nil
	}

	out := exiftool.EmptyFileMetadata()
	out.File = dst
	for _, k := range sortedKeys(tags) {
		out.SetString(k, tags[k])
	}

	batch := []exiftool.FileMetadata{out}
	c.et.WriteMetadata(batch)
	if batch[0].Err != nil {
		return 0, fmt.Errorf("write metadata to %s: %w", dst, batch[0].Err)
	}

	c.logger.WithFields(logrus.Fields{
		"source": src,
		"output": dst,
		"tags":   len(tags),
	}).Debug("Copied metadata")
	return len(tags), nil
}

// Close stops the exiftool process.
func (c *ExiftoolCopier) Close() error {
	return c.et.Close()
}

// SelectTags picks the whitelisted and GPS tags from an exiftool field map.
func SelectTags(fields map[string]interface{}) map[string]string {
	selected := make(map[string]string)
	for _, name := range copiedTags {
		if v, ok := fields[name]; ok && v != nil {
			selected[name] = fmt.Sprint(v)
		}
	}
	for name, v := range fields {
		if strings.HasPrefix(name, "GPS") && v != nil {
			selected[name] = fmt.Sprint(v)
		}
	}
	return selected
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
