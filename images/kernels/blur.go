package kernels

import (
	"image"
	"image/draw"
	"sync"
)

// EdgeMode defines how sampling behaves outside the blurred area.
// - Clamp: repeats edge pixels.
// - Mirror: reflects coordinates.
// - Wrap: tiles the image.
type EdgeMode int

const (
	EdgeClamp EdgeMode = iota
	EdgeMirror
	EdgeWrap
)

// DefaultPasses is the number of box passes GaussianBlur runs when Options.Passes is zero.
// Three passes of a box filter are within a few percent of a true Gaussian.
const DefaultPasses = 3

// Options configures the blur call.
type Options struct {
	Radius   int      // Blur radius (window size = 2*Radius + 1). Must be >= 0.
	Passes   int      // Box passes for GaussianBlur. Zero means DefaultPasses.
	Edge     EdgeMode // Edge sampling mode.
	Pool     *Pool    // Optional buffer pool for intermediate/dst reuse.
	Parallel bool     // Enable row/column parallelism (good for large regions).
}

// Pool lets callers reuse large buffers to reduce GC pressure across images.
type Pool struct {
	rgba sync.Pool // *image.RGBA
}

func (p *Pool) GetRGBA(bounds image.Rectangle) *image.RGBA {
	if p == nil {
		return image.NewRGBA(bounds)
	}
	if v := p.rgba.Get(); v != nil {
		img := v.(*image.RGBA)
		if img.Rect == bounds {
			return img
		}
	}
	return image.NewRGBA(bounds)
}

func (p *Pool) PutRGBA(img *image.RGBA) {
	if p == nil || img == nil {
		return
	}
	// The next writer fully overwrites, so the buffer is not cleared.
	p.rgba.Put(img)
}

// BoxBlur applies a single separable box blur to an image.
//
// Each pass keeps a sliding window per row/col, so the cost is O(W*H)
// independent of Radius. src is never modified.
//
// Arguments:
//   - src: The image to blur. Its bounds may start anywhere.
//   - opt: The blur options. Passes is ignored.
//
// Returns:
//   - *image.RGBA: A new image with the same bounds as src.
func BoxBlur(src image.Image, opt Options) *image.RGBA {
	if opt.Radius <= 0 {
		return copyRGBA(src)
	}

	rgbaSrc := toRGBA(src)
	b := rgbaSrc.Rect

	tmp := opt.Pool.GetRGBA(b)
	dst := opt.Pool.GetRGBA(b)

	boxBlurHorizRGBA(rgbaSrc, tmp, opt.Radius, opt.Edge, opt.Parallel)
	boxBlurVertRGBA(tmp, dst, opt.Radius, opt.Edge, opt.Parallel)

	opt.Pool.PutRGBA(tmp)
	return dst
}

// GaussianBlur approximates a Gaussian blur by running Options.Passes box blurs
// of the same radius back to back. src is never modified.
//
// Returns a new *image.RGBA with the same bounds as src.
//
// @example
// out := GaussianBlur(face, Options{Radius: 11})
func GaussianBlur(src image.Image, opt Options) *image.RGBA {
	passes := opt.Passes
	if passes <= 0 {
		passes = DefaultPasses
	}
	if opt.Radius <= 0 {
		return copyRGBA(src)
	}

	cur := toRGBA(src)
	for i := 0; i < passes; i++ {
		next := BoxBlur(cur, opt)
		if i > 0 {
			opt.Pool.PutRGBA(cur)
		}
		cur = next
	}
	return cur
}

// BlurRegion blurs the pixels of dst inside region in place.
//
// The region is clipped to the image bounds and only pixels inside it are read
// or written, so everything outside is left untouched.
//
// Arguments:
//   - dst: The image to modify.
//   - region: The area to blur.
//   - opt: The blur options.
//
// Returns:
//   - image.Rectangle: The clipped region that was blurred. Empty if nothing changed.
func BlurRegion(dst *image.RGBA, region image.Rectangle, opt Options) image.Rectangle {
	r := region.Intersect(dst.Rect)
	if r.Empty() || opt.Radius <= 0 {
		return r
	}

	sub := dst.SubImage(r).(*image.RGBA)
	blurred := GaussianBlur(sub, opt)

	n := r.Dx() * 4
	for y := r.Min.Y; y < r.Max.Y; y++ {
		srcOff := blurred.PixOffset(r.Min.X, y)
		dstOff := dst.PixOffset(r.Min.X, y)
		copy(dst.Pix[dstOff:dstOff+n], blurred.Pix[srcOff:srcOff+n])
	}
	opt.Pool.PutRGBA(blurred)
	return r
}

// toRGBA returns a *image.RGBA view/copy of src.
// If src already is *image.RGBA, it returns it directly.
func toRGBA(src image.Image) *image.RGBA {
	if r, ok := src.(*image.RGBA); ok {
		return r
	}
	return copyRGBA(src)
}

// copyRGBA copies src into a new *image.RGBA with the same bounds.
func copyRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

// boxBlurHorizRGBA applies horizontal blur into dst using a sliding window.
// Both images must share the same bounds. Offsets are relative to Rect.Min
// since Pix[0] always holds the pixel at Rect.Min.
func boxBlurHorizRGBA(src, dst *image.RGBA, r int, edge EdgeMode, parallel bool) {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	if w == 0 || h == 0 {
		return
	}

	window := uint32(2*r + 1)
	half := window / 2
	rowTask := func(y int) {
		srcRowStart := y * src.Stride
		dstRowStart := y * dst.Stride

		load := func(xRel int) (r, g, b, a uint32) {
			off := srcRowStart + mapCoord(xRel, w, edge)*4
			p := src.Pix[off : off+4 : off+4]
			return uint32(p[0]), uint32(p[1]), uint32(p[2]), uint32(p[3])
		}

		var sumR, sumG, sumB, sumA uint32
		for dx := -r; dx <= r; dx++ {
			r8, g8, b8, a8 := load(dx)
			sumR += r8
			sumG += g8
			sumB += b8
			sumA += a8
		}

		for x := 0; x < w; x++ {
			dstOff := dstRowStart + x*4
			dst.Pix[dstOff+0] = uint8((sumR + half) / window)
			dst.Pix[dstOff+1] = uint8((sumG + half) / window)
			dst.Pix[dstOff+2] = uint8((sumB + half) / window)
			dst.Pix[dstOff+3] = uint8((sumA + half) / window)

			// new = old - left + right; uint32 wrap-around cancels out.
			lr, lg, lb, la := load(x - r)
			rr, rg, rb, ra := load(x + r + 1)
			sumR += rr - lr
			sumG += rg - lg
			sumB += rb - lb
			sumA += ra - la
		}
	}

	runChunks(h, parallel, rowTask)
}

// boxBlurVertRGBA mirrors the horizontal pass but along columns.
func boxBlurVertRGBA(src, dst *image.RGBA, r int, edge EdgeMode, parallel bool) {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	if w == 0 || h == 0 {
		return
	}

	window := uint32(2*r + 1)
	half := window / 2
	colTask := func(x int) {
		load := func(yRel int) (r, g, b, a uint32) {
			off := mapCoord(yRel, h, edge)*src.Stride + x*4
			p := src.Pix[off : off+4 : off+4]
			return uint32(p[0]), uint32(p[1]), uint32(p[2]), uint32(p[3])
		}

		var sumR, sumG, sumB, sumA uint32
		for dy := -r; dy <= r; dy++ {
			r8, g8, b8, a8 := load(dy)
			sumR += r8
			sumG += g8
			sumB += b8
			sumA += a8
		}

		for y := 0; y < h; y++ {
			dstOff := y*dst.Stride + x*4
			dst.Pix[dstOff+0] = uint8((sumR + half) / window)
			dst.Pix[dstOff+1] = uint8((sumG + half) / window)
			dst.Pix[dstOff+2] = uint8((sumB + half) / window)
			dst.Pix[dstOff+3] = uint8((sumA + half) / window)

			lr, lg, lb, la := load(y - r)
			rr, rg, rb, ra := load(y + r + 1)
			sumR += rr - lr
			sumG += rg - lg
			sumB += rb - lb
			sumA += ra - la
		}
	}

	runChunks(w, parallel, colTask)
}

// runChunks calls task for every index in [0, n), splitting the range across
// goroutines when parallel is set.
func runChunks(n int, parallel bool, task func(i int)) {
	if !parallel || n < 4 {
		for i := 0; i < n; i++ {
			task(i)
		}
		return
	}

	chunk := chooseChunk(n)
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				task(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// mapCoord maps an index i to [0, n) according to edge mode.
// For Clamp: clamp to [0, n-1].
// For Mirror: reflect indices ... -2,-1,0,1,2, ... -> 1,0,0,1,2, ...
// For Wrap: modulo wrap to [0, n).
func mapCoord(i, n int, mode EdgeMode) int {
	switch mode {
	case EdgeMirror:
		if n == 1 {
			return 0
		}
		for i < 0 || i >= n {
			if i < 0 {
				i = -i - 1
			} else {
				i = 2*n - i - 1
			}
		}
		return i
	case EdgeWrap:
		i %= n
		if i < 0 {
			i += n
		}
		return i
	default:
		if i < 0 {
			return 0
		}
		if i >= n {
			return n - 1
		}
		return i
	}
}

// chooseChunk picks a work chunk size that balances overhead and cache locality.
func chooseChunk(n int) int {
	switch {
	case n >= 2048:
		return 128
	case n >= 512:
		return 64
	default:
		return 32
	}
}
