// Package blur - Region blurring of detected faces.
package blur

import (
	"image"
	"image/draw"
	"strings"

	bildblur "github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-faceblur/images"
	"github.com/nvr-ai/go-faceblur/images/kernels"
)

// ErrMalformedBox is returned for boxes with X2 < X1 or Y2 < Y1.
var ErrMalformedBox = errors.New("malformed box")

// Method selects the blur implementation.
type Method string

const (
	// MethodKernel is the stacked box blur from images/kernels.
	MethodKernel Method = "kernel"
	// MethodGaussian is bild's convolution Gaussian.
	MethodGaussian Method = "gaussian"
	// MethodImaging is imaging.Blur, parameterized by sigma.
	MethodImaging Method = "imaging"
)

// ParseMethod returns the Method named by s. The empty string selects MethodKernel.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodKernel, nil
	case MethodKernel, MethodGaussian, MethodImaging:
		return m, nil
	default:
		return "", errors.Errorf("unknown blur method %q", s)
	}
}

// Blurrer obscures one box of an image in place.
type Blurrer interface {
	// Blur blurs the part of box that lies inside img and returns that part.
	// Pixels outside the returned rectangle are never modified.
	Blur(img *image.RGBA, box images.Rect) (image.Rectangle, error)
}

// Options configures New.
type Options struct {
	Method Method `yaml:"method"`
	// Radius is the kernel radius for the kernel and gaussian methods.
	Radius int `yaml:"radius"`
	// Sigma is the standard deviation for the imaging method.
	Sigma float64 `yaml:"sigma"`
	// Parallel splits kernel passes across goroutines.
	Parallel bool `yaml:"parallel"`
}

// DefaultOptions returns a 23x23 kernel blur.
func DefaultOptions() Options {
	return Options{
		Method: MethodKernel,
		Radius: 11,
		Sigma:  30,
	}
}

// New builds the Blurrer selected by opts.Method.
//
// Arguments:
//   - opts: The blur method and its strength.
//
// Returns:
//   - Blurrer: The configured blurrer.
//   - error: An error if the method is unknown or the strength is not positive.
func New(opts Options) (Blurrer, error) {
	method, err := ParseMethod(string(opts.Method))
	if err != nil {
		return nil, err
	}

	switch method {
	case MethodImaging:
		if opts.Sigma <= 0 {
			return nil, errors.Errorf("blur sigma must be positive, got %v", opts.Sigma)
		}
		return &ImagingBlurrer{Sigma: opts.Sigma}, nil
	case MethodGaussian:
		if opts.Radius <= 0 {
			return nil, errors.Errorf("blur radius must be positive, got %d", opts.Radius)
		}
		return &GaussianBlurrer{Radius: float64(opts.Radius)}, nil
	default:
		if opts.Radius <= 0 {
			return nil, errors.Errorf("blur radius must be positive, got %d", opts.Radius)
		}
		return &KernelBlurrer{Options: kernels.Options{
			Radius:   opts.Radius,
			Parallel: opts.Parallel,
			Pool:     &kernels.Pool{},
		}}, nil
	}
}

// region validates box and clamps it to the bounds of img.
func region(img *image.RGBA, box images.Rect) (image.Rectangle, error) {
	if box.Malformed() {
		return image.Rectangle{}, errors.Wrapf(ErrMalformedBox, "box %s", box)
	}
	return box.Clamp(img.Rect), nil
}

// KernelBlurrer blurs with the pure Go stacked box blur.
type KernelBlurrer struct {
	Options kernels.Options
}

func (b *KernelBlurrer) Blur(img *image.RGBA, box images.Rect) (image.Rectangle, error) {
	r, err := region(img, box)
	if err != nil || r.Empty() {
		return r, err
	}
	return kernels.BlurRegion(img, r, b.Options), nil
}

// GaussianBlurrer blurs with bild's Gaussian convolution.
type GaussianBlurrer struct {
	Radius float64
}

func (b *GaussianBlurrer) Blur(img *image.RGBA, box images.Rect) (image.Rectangle, error) {
	r, err := region(img, box)
	if err != nil || r.Empty() {
		return r, err
	}
	paste(img, r, bildblur.Gaussian(crop(img, r), b.Radius))
	return r, nil
}

// ImagingBlurrer blurs with imaging.Blur.
type ImagingBlurrer struct {
	Sigma float64
}

func (b *ImagingBlurrer) Blur(img *image.RGBA, box images.Rect) (image.Rectangle, error) {
	r, err := region(img, box)
	if err != nil || r.Empty() {
		return r, err
	}
	paste(img, r, imaging.Blur(imaging.Crop(img, r), b.Sigma))
	return r, nil
}

// crop copies r out of img into a new image anchored at the origin, so the
// blur samples only pixels inside the box.
func crop(img *image.RGBA, r image.Rectangle) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Rect, img, r.Min, draw.Src)
	return out
}

// paste writes src over r in img.
func paste(img *image.RGBA, r image.Rectangle, src image.Image) {
	draw.Draw(img, r, src, src.Bounds().Min, draw.Src)
}
