package pdf

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/ledongthuc/pdf"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const maxPreviewPixels = 40_000_000

var (
	previewInk  = color.Gray{Y: 0x33}
	previewRule = color.Gray{Y: 0xaa}
)

// Rasterize draws a page's text runs and rectangles at one pixel per point
// and scales the result to scale pixels per point. It is a layout preview,
// not a faithful renderer: glyphs come from a fixed bitmap face.
func Rasterize(ctx context.Context, content pdf.Content, size PageSize, scale float64) (*image.RGBA, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("page has no area: %.1fx%.1f", size.Width, size.Height)
	}
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("invalid render scale %v", scale)
	}
	w, h := int(math.Ceil(size.Width)), int(math.Ceil(size.Height))
	sw, sh := int(math.Ceil(size.Width*scale)), int(math.Ceil(size.Height*scale))
	if sw*sh > maxPreviewPixels {
		return nil, fmt.Errorf("preview of %dx%d pixels exceeds limit", sw, sh)
	}

	base := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(base, base.Bounds(), image.White, image.Point{}, draw.Src)

	rule := image.NewUniform(previewRule)
	for _, r := range content.Rect {
		box := image.Rect(
			int(math.Floor(r.Min.X)), h-int(math.Ceil(r.Max.Y)),
			int(math.Ceil(r.Max.X)), h-int(math.Floor(r.Min.Y)),
		).Intersect(base.Bounds())
		outline(base, box, rule)
	}

	d := font.Drawer{Dst: base, Src: image.NewUniform(previewInk), Face: basicfont.Face7x13}
	for i, t := range content.Text {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if t.S == "" {
			continue
		}
		d.Dot = fixed.P(int(math.Round(t.X)), h-int(math.Round(t.Y)))
		d.DrawString(t.S)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sw == w && sh == h {
		return base, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, sw, sh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), base, base.Bounds(), xdraw.Src, nil)
	return dst, nil
}

func outline(dst *image.RGBA, r image.Rectangle, src image.Image) {
	if r.Empty() {
		return
	}
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), src, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), src, image.Point{}, draw.Src)
}
