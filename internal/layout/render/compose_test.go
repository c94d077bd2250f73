package render

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
)

func whitePage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}

func inkIn(img *image.RGBA, r image.Rectangle) int {
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y) != white {
				n++
			}
		}
	}
	return n
}

func TestOverlaysUseEffectivePosition(t *testing.T) {
	vp := geometry.Viewport{Scale: 0.8, PixelHeight: 633.6}
	placed := []fields.Placed{{
		Definition: fields.Definition{ID: "name", PageNumber: 1, X: 100, Y: 700, Width: 150, Height: 20, Kind: fields.KindText},
		Effective:  geometry.Rect{X: 162.5, Y: 725, Width: 150, Height: 20},
		Overridden: true,
	}}

	got := Overlays(placed, vp)
	require.Len(t, got, 1)
	assert.Equal(t, "name", got[0].Label)
	assert.InDelta(t, 130.0, got[0].Box.X, 1e-9)
	assert.InDelta(t, 633.6-745*0.8, got[0].Box.Y, 1e-9)
	assert.InDelta(t, 120.0, got[0].Box.Width, 1e-9)
	assert.InDelta(t, 16.0, got[0].Box.Height, 1e-9)
}

func TestComposeDrawsValues(t *testing.T) {
	base := whitePage(200, 100)
	overlays := []Overlay{
		{FieldID: "name", Kind: fields.KindText, Box: geometry.DeviceRect{X: 10, Y: 10, Width: 120, Height: 20}, Value: "Ada"},
		{FieldID: "ok", Kind: fields.KindCheckbox, Box: geometry.DeviceRect{X: 10, Y: 50, Width: 20, Height: 20}},
	}

	out := Compose(base, overlays, false)

	assert.Greater(t, inkIn(out, image.Rect(10, 10, 130, 30)), 0, "value text drawn")
	assert.Zero(t, inkIn(out, image.Rect(10, 50, 30, 70)), "empty checkbox draws nothing outside edit mode")
	assert.Zero(t, inkIn(base, base.Bounds()), "base bitmap is not modified")
}

func TestComposeEditModeDrawsBoxes(t *testing.T) {
	base := whitePage(200, 100)
	overlays := []Overlay{
		{FieldID: "ok", Label: "ok", Kind: fields.KindCheckbox, Box: geometry.DeviceRect{X: 10, Y: 50, Width: 20, Height: 20}},
	}

	out := Compose(base, overlays, true)
	box := image.Rect(10, 50, 30, 70)
	assert.Equal(t, box.Dx()*box.Dy(), inkIn(out, box), "box is fully tinted")
	assert.Zero(t, inkIn(out, image.Rect(100, 0, 200, 100)))
}

func TestHitTest(t *testing.T) {
	overlays := []Overlay{
		{FieldID: "under", Box: geometry.DeviceRect{X: 0, Y: 0, Width: 100, Height: 100}},
		{FieldID: "over", Box: geometry.DeviceRect{X: 50, Y: 50, Width: 10, Height: 10}},
	}

	o, ok := HitTest(overlays, geometry.Point{X: 55, Y: 55})
	require.True(t, ok)
	assert.Equal(t, "over", o.FieldID)

	o, ok = HitTest(overlays, geometry.Point{X: 60, Y: 55})
	require.True(t, ok)
	assert.Equal(t, "under", o.FieldID, "right edge is exclusive")

	_, ok = HitTest(overlays, geometry.Point{X: 100, Y: 0})
	assert.False(t, ok)
}

func TestBitmapCacheEviction(t *testing.T) {
	c := NewBitmapCache(2)
	img := whitePage(1, 1)

	c.Put(1, 1.0, img)
	c.Put(2, 1.0, img)
	_, ok := c.Get(1, 1.00000001)
	require.True(t, ok, "scales are rounded before lookup")

	c.Put(3, 1.0, img)
	assert.Equal(t, []BitmapKey{{Page: 3, Scale: 1}, {Page: 1, Scale: 1}}, c.Keys())

	_, ok = c.Get(2, 1.0)
	assert.False(t, ok)

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, 2, st.Capacity)

	assert.Equal(t, DefaultCacheSize, NewBitmapCache(0).Stats().Capacity)
}
