package pdf

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpener(t *testing.T) (*FileOpener, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "lease.pdf", twoPagePDF())
	r, err := NewResolver(dir)
	require.NoError(t, err)
	return NewFileOpener(r, DefaultMaxFileSize, nil), dir
}

func hasInk(img *image.RGBA) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			if c.R < 0xf0 || c.G < 0xf0 || c.B < 0xf0 {
				return true
			}
		}
	}
	return false
}

func TestFileOpener_Open(t *testing.T) {
	opener, _ := newTestOpener(t)

	doc, err := opener.Open(context.Background(), "lease.pdf")
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 2, doc.PageCount())

	first, err := doc.PageSize(1)
	require.NoError(t, err)
	assert.Equal(t, PageSize{Width: 612, Height: 792}, first)

	second, err := doc.PageSize(2)
	require.NoError(t, err)
	assert.Equal(t, PageSize{Width: 300, Height: 400}, second)

	_, err = doc.PageSize(3)
	assert.True(t, errors.Is(err, ErrPageOutOfRange))
}

func TestFileOpener_OpenErrors(t *testing.T) {
	opener, dir := newTestOpener(t)
	writeFile(t, dir, "broken.pdf", []byte("%PDF-1.4\nnothing here"))

	tests := []struct {
		name string
		ref  string
	}{
		{"missing", "missing.pdf"},
		{"outside directory", "../lease.pdf"},
		{"broken", "broken.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := opener.Open(context.Background(), tt.ref)
			assert.Error(t, err)
		})
	}
}

func TestDocument_RenderPage(t *testing.T) {
	opener, _ := newTestOpener(t)
	doc, err := opener.Open(context.Background(), "lease.pdf")
	require.NoError(t, err)
	defer doc.Close()

	img, err := doc.RenderPage(context.Background(), 1, 0.5)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 306, 396), img.Bounds())
	assert.True(t, hasInk(img), "expected text to be drawn")

	blank, err := doc.RenderPage(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 300, 400), blank.Bounds())
	assert.False(t, hasInk(blank))

	_, err = doc.RenderPage(context.Background(), 0, 1)
	assert.True(t, errors.Is(err, ErrPageOutOfRange))
}

func TestDocument_RenderAfterClose(t *testing.T) {
	opener, _ := newTestOpener(t)
	doc, err := opener.Open(context.Background(), "lease.pdf")
	require.NoError(t, err)

	require.NoError(t, doc.Close())
	require.NoError(t, doc.Close())

	_, err = doc.RenderPage(context.Background(), 1, 1)
	assert.True(t, errors.Is(err, ErrDocumentClosed))
}

func TestRasterize(t *testing.T) {
	content := pdf.Content{
		Text: []pdf.Text{{X: 10, Y: 80, S: "Hi"}},
		Rect: []pdf.Rect{{Min: pdf.Point{X: 5, Y: 5}, Max: pdf.Point{X: 50, Y: 20}}},
	}
	size := PageSize{Width: 100, Height: 100}

	tests := []struct {
		name    string
		scale   float64
		want    image.Rectangle
		wantErr bool
	}{
		{"native", 1, image.Rect(0, 0, 100, 100), false},
		{"double", 2, image.Rect(0, 0, 200, 200), false},
		{"fractional", 1.5, image.Rect(0, 0, 150, 150), false},
		{"zero", 0, image.Rectangle{}, true},
		{"negative", -1, image.Rectangle{}, true},
		{"huge", 1000, image.Rectangle{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Rasterize(context.Background(), content, size, tt.scale)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, img.Bounds())
			assert.True(t, hasInk(img))
		})
	}
}

func TestRasterize_DrawsRectOutline(t *testing.T) {
	content := pdf.Content{
		Rect: []pdf.Rect{{Min: pdf.Point{X: 5, Y: 5}, Max: pdf.Point{X: 50, Y: 20}}},
	}
	img, err := Rasterize(context.Background(), content, PageSize{Width: 100, Height: 100}, 1)
	require.NoError(t, err)

	// Bottom edge of the rect sits at device y = 100 - 5 - 1.
	assert.Equal(t, previewRule.Y, img.RGBAAt(20, 94).R)
	assert.Equal(t, uint8(0xff), img.RGBAAt(20, 90).R)
}

func TestRasterize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	content := pdf.Content{Text: []pdf.Text{{X: 10, Y: 10, S: "x"}}}
	_, err := Rasterize(ctx, content, PageSize{Width: 100, Height: 100}, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRasterize_EmptyPage(t *testing.T) {
	_, err := Rasterize(context.Background(), pdf.Content{}, PageSize{}, 1)
	assert.Error(t, err)
}
