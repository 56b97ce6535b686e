package images

import (
	"crypto/md5"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	// Register the WebP decoder; imaging already registers bmp and tiff.
	_ "golang.org/x/image/webp"
)

// Load decodes the image at path, applying any EXIF orientation so faces are
// detected upright.
//
// Arguments:
//   - path: The image file to read.
//
// Returns:
//   - *image.RGBA: The decoded image with its bounds starting at (0,0).
//   - error: An error if the file can't be opened or decoded.
func Load(path string) (*image.RGBA, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load image %s", path)
	}
	return ToRGBA(img), nil
}

// Save encodes img to path. The encoder is chosen from the file extension.
func Save(img image.Image, path string) error {
	f, ok := FormatFromPath(path)
	if !ok || !f.Writable() {
		return errors.Errorf("unsupported output format for %s", path)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(95)); err != nil {
		return errors.Wrapf(err, "failed to save image %s", path)
	}
	return nil
}

// ToRGBA returns src as an *image.RGBA whose bounds start at the origin.
// If src already is such an image it is returned directly, otherwise a copy is made.
func ToRGBA(src image.Image) *image.RGBA {
	if r, ok := src.(*image.RGBA); ok && r.Rect.Min == (image.Point{}) {
		return r
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, src, b.Min, draw.Src)
	return dst
}

// Checksum generates a deterministic checksum of the pixels of img.
//
// Returns:
//   - A hex-encoded MD5 checksum string, or "empty" for an image without pixels.
//
// @example
// before := Checksum(img)
// blurrer.Blur(img, box)
// changed := Checksum(img) != before
func Checksum(img *image.RGBA) string {
	if img == nil || img.Rect.Empty() {
		return "empty"
	}

	hash := md5.New()
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		off := img.PixOffset(img.Rect.Min.X, y)
		hash.Write(img.Pix[off : off+img.Rect.Dx()*4])
	}
	return fmt.Sprintf("%x", hash.Sum(nil))
}
