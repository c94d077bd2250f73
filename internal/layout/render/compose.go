package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
)

var (
	fieldFill   = color.NRGBA{R: 0x2f, G: 0x6f, B: 0xeb, A: 0x40}
	fieldBorder = color.NRGBA{R: 0x2f, G: 0x6f, B: 0xeb, A: 0xff}
	movedFill   = color.NRGBA{R: 0xeb, G: 0x8c, B: 0x2f, A: 0x40}
	movedBorder = color.NRGBA{R: 0xeb, G: 0x8c, B: 0x2f, A: 0xff}
	labelColor  = color.NRGBA{R: 0x1a, G: 0x3d, B: 0x85, A: 0xff}
	valueColor  = color.Black
)

const textPaddingX = 2

// Overlay is a field's box in device pixels for the current frame.
type Overlay struct {
	FieldID    string              `json:"field_id"`
	Label      string              `json:"label"`
	Kind       fields.Kind         `json:"kind"`
	Box        geometry.DeviceRect `json:"box"`
	Value      string              `json:"value,omitempty"`
	Overridden bool                `json:"overridden"`
}

// Overlays projects placed fields into device space. Order is preserved, so
// the last overlay is drawn on top.
func Overlays(placed []fields.Placed, vp geometry.Viewport) []Overlay {
	out := make([]Overlay, 0, len(placed))
	for _, p := range placed {
		out = append(out, Overlay{
			FieldID:    p.Definition.ID,
			Label:      p.Definition.Label(),
			Kind:       p.Definition.Kind,
			Box:        geometry.ToDeviceRect(p.Effective, vp),
			Value:      p.Value,
			Overridden: p.Overridden,
		})
	}
	return out
}

// HitTest returns the topmost overlay containing p.
func HitTest(overlays []Overlay, p geometry.Point) (Overlay, bool) {
	for i := len(overlays) - 1; i >= 0; i-- {
		if overlays[i].Box.Contains(p) {
			return overlays[i], true
		}
	}
	return Overlay{}, false
}

// Compose draws values and, in edit mode, field boxes and labels onto a
// copy of base.
func Compose(base *image.RGBA, overlays []Overlay, editMode bool) *image.RGBA {
	out := image.NewRGBA(base.Bounds())
	draw.Draw(out, out.Bounds(), base, base.Bounds().Min, draw.Src)

	for _, o := range overlays {
		r := pixelRect(o.Box).Add(base.Bounds().Min)
		if editMode {
			fill, border := fieldFill, fieldBorder
			if o.Overridden {
				fill, border = movedFill, movedBorder
			}
			draw.Draw(out, r, image.NewUniform(fill), image.Point{}, draw.Over)
			strokeRect(out, r, border)
			drawText(out, o.Label, r.Min.X+textPaddingX, r.Min.Y-2, labelColor)
		}
		if v := displayValue(o); v != "" {
			drawText(out, v, r.Min.X+textPaddingX, baseline(r), valueColor)
		}
	}
	return out
}

func displayValue(o Overlay) string {
	if o.Value == "" {
		return ""
	}
	if o.Kind == fields.KindCheckbox {
		return "X"
	}
	return o.Value
}

func pixelRect(b geometry.DeviceRect) image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X)),
		int(math.Floor(b.Y)),
		int(math.Ceil(b.X+b.Width)),
		int(math.Ceil(b.Y+b.Height)),
	)
}

// baseline centres a line of the fixed face vertically in r.
func baseline(r image.Rectangle) int {
	m := basicfont.Face7x13.Metrics()
	textHeight := (m.Ascent + m.Descent).Ceil()
	return r.Min.Y + (r.Dy()-textHeight)/2 + m.Ascent.Ceil()
}

func drawText(dst draw.Image, s string, x, y int, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func strokeRect(dst draw.Image, r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), src, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), src, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), src, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), src, image.Point{}, draw.Over)
}
