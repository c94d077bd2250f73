// Package render turns a page of the active document into a preview frame:
// a rasterized base bitmap with field values and, in edit mode, field boxes
// composited on top.
//
// Only the newest render request may change what is displayed. Every request
// carries a token and its result is dropped unless the token is still
// current when rasterization finishes.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	layouterrors "github.com/a3tai/mcp-pdf-layout/internal/layout/errors"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
	"github.com/a3tai/mcp-pdf-layout/internal/logging"
)

// Rasterizer produces the base bitmap for a page at a scale. Implementations
// must honour ctx cancellation.
type Rasterizer interface {
	RenderPage(ctx context.Context, pageNumber int, scale float64) (*image.RGBA, error)
}

// FieldSource supplies the fields drawn on a page.
type FieldSource interface {
	PageFields(pageNumber int) []fields.Placed
}

// State is the renderer's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRendering
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRendering:
		return "rendering"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// RendererState is an owned snapshot of the renderer. Err is set only in
// StateFailed.
type RendererState struct {
	State State   `json:"state"`
	Token uint64  `json:"token"`
	Page  int     `json:"page"`
	Scale float64 `json:"scale"`
	Err   error   `json:"-"`
}

// Frame is a composited preview.
type Frame struct {
	Image    *image.RGBA       `json:"-"`
	Viewport geometry.Viewport `json:"viewport"`
	Overlays []Overlay         `json:"overlays"`
	EditMode bool              `json:"edit_mode"`
	Token    uint64            `json:"token"`
}

// Request tracks one call to Render.
type Request struct {
	token uint64
	done  chan struct{}
	err   error
}

// Token returns the request's token.
func (r *Request) Token() uint64 { return r.token }

// Done is closed when the request has been applied or dropped.
func (r *Request) Done() <-chan struct{} { return r.done }

// Err reports how the request ended. It is nil if the frame was applied,
// a Cancelled error if a newer request superseded it, and a
// TransientRenderFailure if the backend failed. Only valid after Done.
func (r *Request) Err() error { return r.err }

// Wait blocks until the request finishes or ctx ends.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Renderer owns the preview of one document.
type Renderer struct {
	raster Rasterizer
	fields FieldSource
	cache  *BitmapCache

	mu       sync.Mutex
	state    RendererState
	next     uint64
	cancel   context.CancelFunc
	pending  *Request
	base     *image.RGBA
	baseVP   geometry.Viewport
	viewport geometry.Viewport // zero until a render succeeds, reset on failure
	frame    *Frame
	editMode bool
}

// NewRenderer creates a renderer. cache may be nil.
func NewRenderer(raster Rasterizer, fields FieldSource, cache *BitmapCache) *Renderer {
	return &Renderer{raster: raster, fields: fields, cache: cache}
}

// Render cancels any outstanding request and starts rasterizing the page
// described by vp. The result is applied asynchronously.
func (r *Renderer) Render(ctx context.Context, vp geometry.Viewport) *Request {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		logging.Logger().Debug("render superseded", slog.Uint64("token", r.state.Token))
	}
	r.next++
	req := &Request{token: r.next, done: make(chan struct{})}
	rctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.pending = req
	r.state = RendererState{State: StateRendering, Token: req.token, Page: vp.PageNumber, Scale: vp.Scale}
	r.mu.Unlock()

	go func() {
		defer cancel()
		img, err := r.rasterize(rctx, vp)
		r.apply(req, vp, img, err)
	}()
	return req
}

// Cancel drops the outstanding request, if any. The displayed frame and the
// viewport cache are left alone.
func (r *Renderer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.State != StateRendering {
		return
	}
	r.cancel()
	r.cancel = nil
	r.pending = nil
	r.next++
	r.state.State = StateCancelled
	r.state.Token = r.next
}

func (r *Renderer) rasterize(ctx context.Context, vp geometry.Viewport) (img *image.RGBA, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rasterizer panic: %v", rec)
		}
	}()

	if !vp.Valid() || vp.PageNumber < 1 {
		return nil, layouterrors.New(layouterrors.ErrorTypeInvalidGeometry, "viewport cannot be rendered").WithPage(vp.PageNumber)
	}
	if r.cache != nil {
		if cached, ok := r.cache.Get(vp.PageNumber, vp.Scale); ok {
			return cached, nil
		}
	}
	img, err = r.raster.RenderPage(ctx, vp.PageNumber, vp.Scale)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, errors.New("rasterizer returned no image")
	}
	if r.cache != nil {
		r.cache.Put(vp.PageNumber, vp.Scale, img)
	}
	return img, nil
}

func (r *Renderer) apply(req *Request, vp geometry.Viewport, img *image.RGBA, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer close(req.done)

	log := logging.Logger().With(slog.Uint64("token", req.token), slog.Int("page", vp.PageNumber))

	if req.token != r.next {
		req.err = layouterrors.New(layouterrors.ErrorTypeCancelled, "render superseded")
		return
	}
	r.cancel = nil
	r.pending = nil

	if err != nil {
		// The caller's context went away; nothing is wrong with the backend.
		if errors.Is(err, context.Canceled) {
			r.state.State = StateCancelled
			req.err = layouterrors.Wrap(layouterrors.ErrorTypeCancelled, "render cancelled", err)
			return
		}
		failure := layouterrors.Wrap(layouterrors.ErrorTypeTransientRender, "page render failed", err).WithPage(vp.PageNumber)
		r.state.State = StateFailed
		r.state.Err = failure
		r.viewport = geometry.Viewport{}
		req.err = failure
		log.Warn("render failed", slog.String("error", err.Error()))
		return
	}

	r.base = img
	r.baseVP = vp
	r.viewport = vp
	r.state = RendererState{State: StateIdle, Token: req.token, Page: vp.PageNumber, Scale: vp.Scale}
	r.composeLocked(req.token)
	log.Debug("render applied", slog.Float64("scale", vp.Scale))
}

// Pending returns the request still rasterizing, if any.
func (r *Renderer) Pending() (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending, r.pending != nil
}

// Repaint recomposites the overlay layer onto the cached base bitmap
// without rasterizing. It is what drags and edit-mode toggles use.
func (r *Renderer) Repaint() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.base == nil {
		return layouterrors.ErrPreviewUnavailable
	}
	r.composeLocked(r.state.Token)
	return nil
}

func (r *Renderer) composeLocked(token uint64) {
	overlays := Overlays(r.fields.PageFields(r.baseVP.PageNumber), r.baseVP)
	r.frame = &Frame{
		Image:    Compose(r.base, overlays, r.editMode),
		Viewport: r.baseVP,
		Overlays: overlays,
		EditMode: r.editMode,
		Token:    token,
	}
}

// SetEditMode changes whether field boxes are drawn. Call Repaint to see it.
func (r *Renderer) SetEditMode(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.editMode = on
}

// EditMode reports whether field boxes are drawn.
func (r *Renderer) EditMode() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.editMode
}

// Frame returns the last composited frame. After a failed render this is
// still the last good frame.
func (r *Renderer) Frame() (*Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame, r.frame != nil
}

// ViewportCache returns the viewport of the last successful render. It is
// invalid after a failed render until the next success.
func (r *Renderer) ViewportCache() (geometry.Viewport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewport, r.viewport.Valid()
}

// Overlays returns the current device boxes for the displayed page, using
// effective positions.
func (r *Renderer) Overlays() []Overlay {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.viewport.Valid() {
		return nil
	}
	return Overlays(r.fields.PageFields(r.viewport.PageNumber), r.viewport)
}

// FieldAt hit-tests a device point against the displayed page.
func (r *Renderer) FieldAt(p geometry.Point) (Overlay, bool) {
	return HitTest(r.Overlays(), p)
}

// Status returns a copy of the renderer state.
func (r *Renderer) Status() RendererState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reset forgets the displayed frame and cached bitmaps, e.g. after the
// document was replaced.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.pending = nil
	r.next++
	r.state = RendererState{State: StateIdle, Token: r.next}
	r.base = nil
	r.frame = nil
	r.viewport = geometry.Viewport{}
	if r.cache != nil {
		r.cache.Purge()
	}
}
