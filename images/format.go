package images

import (
	"path/filepath"
	"strings"
)

// ImageFormat represents supported image formats
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatBMP  ImageFormat = "bmp"
	FormatGIF  ImageFormat = "gif"
	FormatTIFF ImageFormat = "tiff"
	FormatWebP ImageFormat = "webp"
)

// extensions maps lower-case file extensions to their format.
var extensions = map[string]ImageFormat{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".bmp":  FormatBMP,
	".gif":  FormatGIF,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".webp": FormatWebP,
}

// FormatFromPath returns the format implied by the extension of path.
//
// Arguments:
//   - path: A file name or path. The extension is matched case-insensitively.
//
// Returns:
//   - ImageFormat: The detected format.
//   - bool: False if the extension is not a supported image format.
func FormatFromPath(path string) (ImageFormat, bool) {
	f, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// Writable reports whether images can be encoded in this format.
// WebP is decode-only.
func (f ImageFormat) Writable() bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatBMP, FormatGIF, FormatTIFF:
		return true
	}
	return false
}
