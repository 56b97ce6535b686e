package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-faceblur/images"
)

// ImageFile represents an image file found in an input directory.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Base is the file name without its extension.
	Base string
	// Ext is the extension as it appears in the file name, including the dot.
	Ext string
	// Format is the image format implied by the extension.
	Format images.ImageFormat
}

// LoadDirectoryImageFiles lists the image files directly inside a directory.
//
// Sub-directories are not descended into and files whose extension is not a
// supported image format are skipped. Files are returned in lexical order of
// their names so runs over the same directory are reproducible.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: The image files found, possibly empty.
// - error: Error if the directory can't be read.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read input directory %s", dir)
	}

	files := make([]ImageFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		format, ok := images.FormatFromPath(name)
		if !ok {
			continue
		}

		ext := filepath.Ext(name)
		files = append(files, ImageFile{
			Path:   filepath.Join(dir, name),
			Base:   strings.TrimSuffix(name, ext),
			Ext:    ext,
			Format: format,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}
