// Package geometry converts between document space and device space.
//
// Document space is the page's native coordinate system: origin at the
// bottom-left corner, units in points (1/72 inch). Device space is the
// rendered bitmap: origin at the top-left corner, units in pixels.
package geometry

import "math"

// MinFieldSize is the smallest width or height, in points, a field may have.
const MinFieldSize = 4.0

// Point is a coordinate pair. Whether it is in document or device space
// depends on where it came from.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Rect is a rectangle in document space anchored at its bottom-left corner.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Top returns the y coordinate of the rectangle's upper edge.
func (r Rect) Top() float64 { return r.Y + r.Height }

// Right returns the x coordinate of the rectangle's right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Translate returns r moved by d.
func (r Rect) Translate(d Point) Rect {
	return Rect{X: r.X + d.X, Y: r.Y + d.Y, Width: r.Width, Height: r.Height}
}

// DeviceRect is a rectangle in device space anchored at its top-left corner.
type DeviceRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether p lies inside the rectangle. The left and top
// edges are inclusive, the right and bottom edges exclusive.
func (r DeviceRect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Viewport describes how a page is mapped onto a bitmap.
type Viewport struct {
	PageNumber  int     `json:"page_number"`
	FitScale    float64 `json:"fit_scale"`
	UserZoom    float64 `json:"user_zoom"`
	Scale       float64 `json:"render_scale"`
	PixelWidth  float64 `json:"pixel_width"`
	PixelHeight float64 `json:"pixel_height"`
}

// Valid reports whether the viewport can be used for conversions.
func (v Viewport) Valid() bool {
	return v.Scale > 0 && !math.IsInf(v.Scale, 0) && !math.IsNaN(v.Scale)
}

// ToDevice maps a document point to device pixels.
func ToDevice(p Point, v Viewport) Point {
	return Point{
		X: p.X * v.Scale,
		Y: v.PixelHeight - p.Y*v.Scale,
	}
}

// ToDocument maps a device pixel to document points. It is the exact
// inverse of ToDevice.
func ToDocument(p Point, v Viewport) Point {
	return Point{
		X: p.X / v.Scale,
		Y: (v.PixelHeight - p.Y) / v.Scale,
	}
}

// ToDeviceRect returns the device bounding box of a document rectangle.
// Document rectangles are anchored at the bottom, so the device top-left
// corner comes from the rectangle's top edge.
func ToDeviceRect(r Rect, v Viewport) DeviceRect {
	tl := ToDevice(Point{X: r.X, Y: r.Top()}, v)
	return DeviceRect{
		X:      tl.X,
		Y:      tl.Y,
		Width:  r.Width * v.Scale,
		Height: r.Height * v.Scale,
	}
}

// ToDocumentDelta converts a device-space displacement into a document-space
// displacement at the given scale. The y axis is inverted.
func ToDocumentDelta(d Point, scale float64) Point {
	return Point{X: d.X / scale, Y: -d.Y / scale}
}

// Clamp keeps a rectangle inside the page's positive quadrant and gives it a
// positive area. Upper page bounds are deliberately not enforced.
func Clamp(r Rect) Rect {
	if math.IsNaN(r.X) || r.X < 0 {
		r.X = 0
	}
	if math.IsNaN(r.Y) || r.Y < 0 {
		r.Y = 0
	}
	if math.IsNaN(r.Width) || r.Width < MinFieldSize {
		r.Width = MinFieldSize
	}
	if math.IsNaN(r.Height) || r.Height < MinFieldSize {
		r.Height = MinFieldSize
	}
	return r
}

// IsClamped reports whether r already satisfies Clamp.
func IsClamped(r Rect) bool {
	return r.X >= 0 && r.Y >= 0 && r.Width >= MinFieldSize && r.Height >= MinFieldSize
}
