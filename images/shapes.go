// Package images - Geometry utilities for detection boxes.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Rect is a bounding box in corner form: the top-left corner plus its extent.
//
// The same type carries both normalized ([0,1] relative to the frame) and pixel
// coordinates; Scale converts between the two.
type Rect struct {
	X, Y          float32
	Width, Height float32
}

// FromCenter converts a center-form box (cx, cy, w, h) into corner form.
//
// Arguments:
//   - cx, cy: The center of the box.
//   - w, h: The width and height of the box.
//
// Returns:
//   - Rect: The box with X = cx - 0.5*w and Y = cy - 0.5*h, width and height unchanged.
//
// Example:
//
// ```go
//
//	r := FromCenter(0.5, 0.5, 0.2, 0.2) // Rect{X: 0.4, Y: 0.4, Width: 0.2, Height: 0.2}
//
// ```
func FromCenter(cx, cy, w, h float32) Rect {
	return Rect{
		X:      cx - 0.5*w,
		Y:      cy - 0.5*h,
		Width:  w,
		Height: h,
	}
}

// Scale multiplies the box component-wise: X and Width by sx, Y and Height by sy.
func (r Rect) Scale(sx, sy float32) Rect {
	return Rect{
		X:      r.X * sx,
		Y:      r.Y * sy,
		Width:  r.Width * sx,
		Height: r.Height * sy,
	}
}

// Area returns the area of the box, or 0 for degenerate boxes.
func (r Rect) Area() float32 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Right is the exclusive right edge.
func (r Rect) Right() float32 { return r.X + r.Width }

// Bottom is the exclusive bottom edge.
func (r Rect) Bottom() float32 { return r.Y + r.Height }

// ToRectangle rounds the box to an integral image.Rectangle.
func (r Rect) ToRectangle() image.Rectangle {
	return image.Rect(
		int(math32.Round(r.X)),
		int(math32.Round(r.Y)),
		int(math32.Round(r.Right())),
		int(math32.Round(r.Bottom())),
	).Canon()
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f, %.2f)", r.X, r.Y, r.Width, r.Height)
}

// CalculateIoU measures the overlap of two boxes as the area of their
// intersection divided by the area of their union.
//
// The intersection starts at the larger of the two top-left corners and ends
// at the smaller of the two bottom-right corners. When its width or height is
// not positive the boxes do not overlap and the result is 0. The union uses
// inclusion-exclusion: Area(A) + Area(B) - Area(A ∩ B).
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value in [0, 1]. Degenerate boxes yield 0.
//
// Example:
//
// ```go
//
//	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
//	b := Rect{X: 5, Y: 5, Width: 10, Height: 10}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := math32.Max(r.X, o.X)
	iy1 := math32.Max(r.Y, o.Y)
	ix2 := math32.Min(r.Right(), o.Right())
	iy2 := math32.Min(r.Bottom(), o.Bottom())

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return interArea / unionArea
}
