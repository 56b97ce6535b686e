// Package images - Geometry, loading and saving helpers for the face blurring pipeline.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Rect is a lightweight bounding box in pixel units.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// FromXYWH builds a Rect from a top-left corner and a size as produced by detectors.
//
// Every component is rounded to the nearest pixel, halves to even, and clamped at zero, so a box
// that starts left of or above the image begins at the edge and a negative size
// becomes an empty box.
//
// Arguments:
//   - x, y: The top-left corner in pixels.
//   - w, h: The width and height in pixels.
//
// Returns:
//   - Rect: The corner-form box.
//
// @example
// r := FromXYWH(-3.4, 10.6, 20, 20) // Rect{X1: 0, Y1: 11, X2: 20, Y2: 31}
func FromXYWH(x, y, w, h float32) Rect {
	x1 := int(math32.Max(0, math32.RoundToEven(x)))
	y1 := int(math32.Max(0, math32.RoundToEven(y)))
	wi := int(math32.Max(0, math32.RoundToEven(w)))
	hi := int(math32.Max(0, math32.RoundToEven(h)))
	return Rect{X1: x1, Y1: y1, X2: x1 + wi, Y2: y1 + hi}
}

// FromCenter builds a Rect from a center-form box expressed in pixels.
//
// The corner is computed as center minus half the size before rounding, which
// matches the conversion applied to YOLO outputs.
func FromCenter(cx, cy, w, h float32) Rect {
	return FromXYWH(cx-w/2, cy-h/2, w, h)
}

// FromRectangle converts an image.Rectangle into a Rect.
func FromRectangle(r image.Rectangle) Rect {
	return Rect{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Rectangle converts the box into an image.Rectangle.
//
// Malformed boxes (X2 < X1 or Y2 < Y1) are collapsed to an empty rectangle at
// their origin rather than being swapped.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X1+r.Width(), r.Y1+r.Height())
}

// Width returns the width of the box, clamped at zero.
func (r Rect) Width() int {
	return max(0, r.X2-r.X1)
}

// Height returns the height of the box, clamped at zero.
func (r Rect) Height() int {
	return max(0, r.Y2-r.Y1)
}

// Area returns the area of the box in pixels. Boxes with a negative extent have no area.
func (r Rect) Area() int {
	return r.Width() * r.Height()
}

// Empty reports whether the box covers no pixels.
func (r Rect) Empty() bool {
	return r.Area() == 0
}

// Malformed reports whether the box has a negative extent.
func (r Rect) Malformed() bool {
	return r.X2 < r.X1 || r.Y2 < r.Y1
}

// Clamp intersects the box with bounds.
//
// Arguments:
//   - bounds: The rectangle to clamp to, usually the image bounds.
//
// Returns:
//   - image.Rectangle: The part of the box inside bounds. Empty when they do not overlap.
func (r Rect) Clamp(bounds image.Rectangle) image.Rectangle {
	return r.Rectangle().Intersect(bounds)
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
//	IoU = Area of Intersection / Area of Union
//
// A value of 1.0 means the boxes are identical, 0.0 means they do not overlap.
// Negative extents are clamped to zero before the areas are computed, so a
// degenerate or zero-area box has an IoU of 0 with anything.
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0.
//
// @example
// rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
// rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
// iou := CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
func CalculateIoU(r, o Rect) float32 {
	areaR := r.Area()
	areaO := o.Area()
	if areaR == 0 || areaO == 0 {
		return 0.0
	}

	// The overlap can't start before both boxes have begun and ends as soon as
	// the first one ends.
	interW := min(r.X1+r.Width(), o.X1+o.Width()) - max(r.X1, o.X1)
	interH := min(r.Y1+r.Height(), o.Y1+o.Height()) - max(r.Y1, o.Y1)
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := areaR + areaO - interArea

	return float32(interArea) / float32(unionArea)
}
