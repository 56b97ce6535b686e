package kernels

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(img *image.RGBA, c color.RGBA) {
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		for x := img.Rect.Min.X; x < img.Rect.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func TestBlurOperationsRadiusZeroReturnsCopy(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 20, 18, 27)) // non-zero Min
	fill(img, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	out := BoxBlur(img, Options{Radius: 0, Edge: EdgeClamp})
	require.Equal(t, img.Bounds(), out.Bounds())
	assert.Equal(t, img.Pix, out.Pix)

	out.SetRGBA(10, 20, color.RGBA{})
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, img.RGBAAt(10, 20), "copy must not alias the source")
}

func TestBlurOperationsBoundsMinNotZero(t *testing.T) {
	img := image.NewRGBA(image.Rect(5, 7, 9, 12))
	img.SetRGBA(5, 7, color.RGBA{255, 0, 0, 255})

	out := BoxBlur(img, Options{Radius: 1})
	require.Equal(t, img.Rect, out.Rect)
	assert.NotEqual(t, color.RGBA{}, out.RGBAAt(5, 7), "top-left should pick up the red pixel")
	assert.NotEqual(t, color.RGBA{}, out.RGBAAt(6, 8), "neighbour should pick up the red pixel")
	assert.Equal(t, color.RGBA{}, out.RGBAAt(8, 11), "far corner is outside the window")
}

func TestBlurOperationsUniformImageUnchanged(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	fill(img, color.RGBA{R: 90, G: 140, B: 200, A: 255})

	for _, edge := range []EdgeMode{EdgeClamp, EdgeMirror, EdgeWrap} {
		out := GaussianBlur(img, Options{Radius: 4, Edge: edge})
		assert.Equal(t, img.Pix, out.Pix, "edge mode %d", edge)
	}
}

func TestBlurOperationsEdgeModes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.SetRGBA(0, 0, color.RGBA{0, 0, 0, 255})
	img.SetRGBA(1, 0, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(2, 0, color.RGBA{0, 0, 0, 255})

	// Window of 3 around x=0: clamp samples [0,0,1], mirror [0,0,1], wrap [2,0,1].
	outClamp := BoxBlur(img, Options{Radius: 1, Edge: EdgeClamp})
	outMirror := BoxBlur(img, Options{Radius: 1, Edge: EdgeMirror})
	outWrap := BoxBlur(img, Options{Radius: 1, Edge: EdgeWrap})

	assert.Equal(t, uint8(85), outClamp.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(85), outMirror.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(85), outWrap.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(85), outClamp.RGBAAt(1, 0).R)
}

func TestGaussianBlurParallelMatchesSerial(t *testing.T) {
	img := genRGBA(300, 200, true)

	serial := GaussianBlur(img, Options{Radius: 5})
	parallel := GaussianBlur(img, Options{Radius: 5, Parallel: true, Pool: &Pool{}})
	assert.Equal(t, serial.Pix, parallel.Pix)
}

func TestBlurRegionTouchesOnlyRegion(t *testing.T) {
	img := genRGBA(64, 48, false)
	orig := image.NewRGBA(img.Rect)
	copy(orig.Pix, img.Pix)

	region := image.Rect(10, 12, 30, 40)
	got := BlurRegion(img, region, Options{Radius: 3})
	require.Equal(t, region, got)

	changed := 0
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			inside := image.Pt(x, y).In(region)
			if !inside {
				require.Equal(t, orig.RGBAAt(x, y), img.RGBAAt(x, y), "pixel (%d,%d) outside the region changed", x, y)
			} else if orig.RGBAAt(x, y) != img.RGBAAt(x, y) {
				changed++
			}
		}
	}
	assert.Greater(t, changed, region.Dx()*region.Dy()/2, "most pixels of a noisy region should change")
}

func TestBlurRegionClipsToBounds(t *testing.T) {
	img := genRGBA(20, 20, false)

	got := BlurRegion(img, image.Rect(15, -5, 40, 8), Options{Radius: 2})
	assert.Equal(t, image.Rect(15, 0, 20, 8), got)

	got = BlurRegion(img, image.Rect(25, 25, 40, 40), Options{Radius: 2})
	assert.True(t, got.Empty())
}

func TestBlurRegionDeterministic(t *testing.T) {
	a := genRGBA(40, 40, false)
	b := genRGBA(40, 40, false)
	opt := Options{Radius: 6}

	BlurRegion(a, image.Rect(5, 5, 35, 30), opt)
	BlurRegion(b, image.Rect(5, 5, 35, 30), opt)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestMapCoord(t *testing.T) {
	assert.Equal(t, 0, mapCoord(-3, 5, EdgeClamp))
	assert.Equal(t, 4, mapCoord(9, 5, EdgeClamp))
	assert.Equal(t, 1, mapCoord(-2, 5, EdgeMirror))
	assert.Equal(t, 3, mapCoord(6, 5, EdgeMirror))
	assert.Equal(t, 4, mapCoord(-1, 5, EdgeWrap))
	assert.Equal(t, 0, mapCoord(5, 5, EdgeWrap))
	assert.Equal(t, 0, mapCoord(-7, 1, EdgeMirror))
}
