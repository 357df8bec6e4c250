package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultExtensions are picked up when walking a directory.
var DefaultExtensions = []string{".jpg", ".jpeg"}

// Discover expands directories into the image files they contain.
// Explicit file arguments are kept as given, whatever their extension.
func Discover(paths []string, extensions []string, log *logrus.Logger) ([]string, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warnf("Error accessing path %s: %v", path, err)
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if slices.Contains(extensions, strings.ToLower(filepath.Ext(path))) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		log.Debugf("Found %d images in %s", len(found), root)
		files = append(files, found...)
	}
	return files, nil
}
