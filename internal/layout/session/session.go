// Package session wires the layout components into one editing session over
// a template and its document. Every public operation runs under the session
// mutex; rendering happens asynchronously through the scheduler.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/a3tai/mcp-pdf-layout/internal/layout/assign"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/drag"
	layouterrors "github.com/a3tai/mcp-pdf-layout/internal/layout/errors"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/render"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/schedule"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/viewport"
	"github.com/a3tai/mcp-pdf-layout/internal/logging"
	"github.com/a3tai/mcp-pdf-layout/internal/pdf"
)

// DefaultContainer is the display area assumed until the host reports one.
var DefaultContainer = viewport.Size{Width: 1024, Height: 768}

// Saver persists a saved layout.
type Saver func(ctx context.Context, tpl *fields.Template) error

// Config tunes a session.
type Config struct {
	Viewport     viewport.Config
	Schedule     schedule.Config
	Container    viewport.Size
	CacheSize    int
	CommitPolicy fields.CommitPolicy
}

// Options are the collaborators of a session. Only Template is required. A
// nil Document leaves the session usable for edits with preview and
// generation disabled; BackendErr records why.
type Options struct {
	Template   *fields.Template
	Document   pdf.Document
	BackendErr error
	Generator  pdf.Generator
	Saver      Saver
	Clock      clockwork.Clock
	Config     Config
}

// Status is a snapshot of the session for the host.
type Status struct {
	ID          string                `json:"id"`
	TemplateID  string                `json:"template_id"`
	Document    string                `json:"document"`
	Page        int                   `json:"page"`
	PageCount   int                   `json:"page_count"`
	Zoom        float64               `json:"zoom"`
	EditMode    bool                  `json:"edit_mode"`
	Preview     bool                  `json:"preview_available"`
	BackendErr  string                `json:"backend_error,omitempty"`
	Render      *render.RendererState `json:"render,omitempty"`
	RenderErr   string                `json:"render_error,omitempty"`
	Dragging    string                `json:"dragging,omitempty"`
	Suspended   bool                  `json:"suspended"`
	Fields      int                   `json:"fields"`
	Overrides   int                   `json:"overrides"`
	Completed   int                   `json:"completed"`
	LastSavedAs string                `json:"last_saved_as,omitempty"`
}

// Session is one user's editing session over a template.
type Session struct {
	id         string
	tpl        *fields.Template
	doc        pdf.Document
	backendErr error
	gen        pdf.Generator
	saver      Saver
	policy     fields.CommitPolicy

	store    *fields.Store
	assign   *assign.Mapper
	scaler   *viewport.Scaler
	drag     *drag.Controller
	renderer *render.Renderer
	sched    *schedule.Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	page      int
	container viewport.Size
	editMode  bool
	saved     *fields.Template
	closed    bool
}

// New creates a session and, when a document is available, schedules the
// first render.
func New(opts Options) (*Session, error) {
	if opts.Template == nil {
		return nil, fmt.Errorf("session: template is required")
	}
	store, err := fields.NewStore(opts.Template.Fields)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	cfg := opts.Config
	if cfg.Container.Width <= 0 || cfg.Container.Height <= 0 {
		cfg.Container = DefaultContainer
	}
	if cfg.Viewport == (viewport.Config{}) {
		cfg.Viewport = viewport.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         uuid.NewString(),
		tpl:        opts.Template,
		doc:        opts.Document,
		backendErr: opts.BackendErr,
		gen:        opts.Generator,
		saver:      opts.Saver,
		policy:     cfg.CommitPolicy,
		store:      store,
		assign:     assign.NewMapper(store),
		scaler:     viewport.NewScaler(cfg.Viewport),
		drag:       drag.NewController(store),
		ctx:        ctx,
		cancel:     cancel,
		page:       1,
		container:  cfg.Container,
	}
	if s.doc == nil && s.backendErr == nil {
		s.backendErr = errors.New("no document backend")
	}
	if s.doc != nil {
		if s.doc.PageCount() < 1 {
			cancel()
			return nil, layouterrors.New(layouterrors.ErrorTypeInvalidPage, "document has no pages")
		}
		s.renderer = render.NewRenderer(s.doc, store, render.NewBitmapCache(cfg.CacheSize))
	}

	s.sched = schedule.New(opts.Clock, cfg.Schedule, schedule.Callbacks{
		Structural: s.renderCurrent,
		Content:    s.renderCurrent,
		Overlay:    s.repaint,
	})

	log := logging.Logger().With(slog.String("session", s.id))
	if s.renderer != nil {
		s.sched.RequestStructural()
		log.Info("layout session opened",
			slog.String("template", s.tpl.ID),
			slog.Int("pages", s.doc.PageCount()),
			slog.Int("fields", store.Len()))
	} else {
		log.Warn("layout session opened without preview",
			slog.String("template", s.tpl.ID),
			slog.String("error", s.backendErr.Error()))
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Template returns the template the session was opened on.
func (s *Session) Template() *fields.Template { return s.tpl }

// Store exposes the field store.
func (s *Session) Store() *fields.Store { return s.store }

func (s *Session) previewAvailable() bool { return s.renderer != nil }

func (s *Session) pageCountLocked() int {
	if s.doc != nil {
		return s.doc.PageCount()
	}
	if n := s.store.Pages(); n > 0 {
		return n
	}
	return 1
}

func (s *Session) checkOpenLocked() error {
	if s.closed {
		return layouterrors.New(layouterrors.ErrorTypeBackendUnavailable, "session is closed")
	}
	return nil
}

// viewportLocked computes the viewport for the current page.
func (s *Session) viewportLocked() (geometry.Viewport, error) {
	if !s.previewAvailable() {
		return geometry.Viewport{}, layouterrors.Wrap(layouterrors.ErrorTypeBackendUnavailable, "preview unavailable", s.backendErr)
	}
	size, err := s.doc.PageSize(s.page)
	if err != nil {
		return geometry.Viewport{}, layouterrors.Wrap(layouterrors.ErrorTypeInvalidPage, "page size", err).WithPage(s.page)
	}
	return s.scaler.Viewport(s.page, viewport.Size{Width: size.Width, Height: size.Height}, s.container), nil
}

// Viewport returns the viewport for the current page and zoom.
func (s *Session) Viewport() (geometry.Viewport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewportLocked()
}

// renderCurrent is the scheduler's structural and content callback.
func (s *Session) renderCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.previewAvailable() {
		return
	}
	vp, err := s.viewportLocked()
	if err != nil {
		logging.Logger().Warn("render skipped", slog.String("session", s.id), slog.String("error", err.Error()))
		return
	}
	s.renderer.Render(s.ctx, vp)
}

// repaint is the scheduler's overlay callback.
func (s *Session) repaint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.previewAvailable() {
		return
	}
	if err := s.renderer.Repaint(); err != nil && !errors.Is(err, layouterrors.ErrPreviewUnavailable) {
		logging.Logger().Warn("repaint failed", slog.String("session", s.id), slog.String("error", err.Error()))
	}
}

// Preview renders the current page immediately, bypassing the scheduler, and
// waits for the frame.
func (s *Session) Preview(ctx context.Context) (*render.Frame, error) {
	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	vp, err := s.viewportLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	req := s.renderer.Render(s.ctx, vp)
	s.mu.Unlock()

	for {
		err := req.Wait(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, layouterrors.ErrCancelled) || ctx.Err() != nil {
			return nil, err
		}
		// Superseded by a newer render of the current view; its frame
		// answers this call too.
		next, ok := s.renderer.Pending()
		if !ok {
			break
		}
		req = next
	}
	frame, ok := s.renderer.Frame()
	if !ok {
		return nil, layouterrors.ErrPreviewUnavailable
	}
	return frame, nil
}

// Frame returns the most recent composed frame.
func (s *Session) Frame() (*render.Frame, bool) {
	if !s.previewAvailable() {
		return nil, false
	}
	return s.renderer.Frame()
}

// SetPage switches to pageNumber. An active drag is cancelled first.
func (s *Session) SetPage(pageNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	if pageNumber < 1 || pageNumber > s.pageCountLocked() {
		return layouterrors.New(layouterrors.ErrorTypeInvalidPage, "page out of range").WithPage(pageNumber)
	}
	if pageNumber == s.page {
		return nil
	}
	s.cancelDragLocked()
	s.page = pageNumber
	s.sched.RequestStructural()
	return nil
}

// Page returns the current page number.
func (s *Session) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// SetZoom sets the user zoom and returns the value applied.
func (s *Session) SetZoom(z float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := s.scaler.SetZoom(z)
	s.sched.RequestStructural()
	return applied
}

// ZoomIn steps the zoom up.
func (s *Session) ZoomIn() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := s.scaler.ZoomIn()
	s.sched.RequestStructural()
	return applied
}

// ZoomOut steps the zoom down.
func (s *Session) ZoomOut() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := s.scaler.ZoomOut()
	s.sched.RequestStructural()
	return applied
}

// SetContainerSize records the display area in pixels.
func (s *Session) SetContainerSize(width, height float64) error {
	if width <= 0 || height <= 0 {
		return layouterrors.New(layouterrors.ErrorTypeInvalidGeometry, "container size must be positive").
			WithContext(fmt.Sprintf("%.0fx%.0f", width, height))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.container = viewport.Size{Width: width, Height: height}
	s.sched.RequestStructural()
	return nil
}

// SetEditMode toggles the field boxes and labels in the preview.
func (s *Session) SetEditMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editMode = on
	if s.previewAvailable() {
		s.renderer.SetEditMode(on)
		s.sched.RequestOverlay()
	}
}

// dragViewportLocked returns the viewport of the displayed frame. Drags are
// only possible once a frame of the current page exists.
func (s *Session) dragViewportLocked() (geometry.Viewport, error) {
	if !s.previewAvailable() {
		return geometry.Viewport{}, layouterrors.Wrap(layouterrors.ErrorTypePreviewUnavailable, "no preview backend", s.backendErr)
	}
	vp, ok := s.renderer.ViewportCache()
	if !ok || vp.PageNumber != s.page {
		return geometry.Viewport{}, layouterrors.New(layouterrors.ErrorTypePreviewUnavailable, "no rendered frame for the current page").WithPage(s.page)
	}
	return vp, nil
}

// BeginDrag starts moving the topmost field under pointer. It returns the
// field id, or "" when the pointer is not over a field.
func (s *Session) BeginDrag(pointer geometry.Point) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return "", err
	}
	vp, err := s.dragViewportLocked()
	if err != nil {
		return "", err
	}
	hit, ok := s.renderer.FieldAt(pointer)
	if !ok {
		return "", nil
	}
	if err := s.beginLocked(hit.FieldID, drag.ModeMove, drag.HandleTopRight, pointer, vp); err != nil {
		return "", err
	}
	return hit.FieldID, nil
}

// resizeGrab is how far outside a field's device box, in pixels, a resize
// may start. Handles sit on the box edge.
const resizeGrab = 6.0

// BeginResize starts resizing fieldID from handle. The field must be on the
// displayed page and pointer must be on or near its box.
func (s *Session) BeginResize(fieldID string, handle drag.Handle, pointer geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	vp, err := s.dragViewportLocked()
	if err != nil {
		return err
	}
	def, ok := s.store.Definition(fieldID)
	if !ok {
		return layouterrors.New(layouterrors.ErrorTypeUnknownField, "unknown field").WithField(fieldID)
	}
	if def.PageNumber != vp.PageNumber {
		return layouterrors.New(layouterrors.ErrorTypeInvalidPage, "field is not on the displayed page").
			WithField(fieldID).WithPage(def.PageNumber)
	}
	if !s.nearFieldLocked(fieldID, pointer) {
		return layouterrors.New(layouterrors.ErrorTypeInvalidGeometry, "pointer is not on the field").WithField(fieldID)
	}
	return s.beginLocked(fieldID, drag.ModeResize, handle, pointer, vp)
}

func (s *Session) nearFieldLocked(fieldID string, p geometry.Point) bool {
	for _, o := range s.renderer.Overlays() {
		if o.FieldID != fieldID {
			continue
		}
		grown := geometry.DeviceRect{
			X:      o.Box.X - resizeGrab,
			Y:      o.Box.Y - resizeGrab,
			Width:  o.Box.Width + 2*resizeGrab,
			Height: o.Box.Height + 2*resizeGrab,
		}
		return grown.Contains(p)
	}
	return false
}

func (s *Session) beginLocked(fieldID string, mode drag.Mode, handle drag.Handle, pointer geometry.Point, vp geometry.Viewport) error {
	ended, err := s.drag.Begin(fieldID, mode, handle, pointer, vp)
	if err != nil {
		return err
	}
	if ended != "" {
		logging.Logger().Debug("previous drag force-ended", slog.String("session", s.id), slog.String("field", ended))
	}
	s.sched.Suspend()
	return nil
}

// UpdateDrag moves the active drag to pointer.
func (s *Session) UpdateDrag(pointer geometry.Point) (fields.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.drag.Update(pointer)
	if err != nil {
		return fields.Override{}, err
	}
	s.sched.RequestOverlay()
	return o, nil
}

// EndDrag finishes the active drag at pointer.
func (s *Session) EndDrag(pointer geometry.Point) (fields.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.drag.End(pointer)
	if err != nil {
		return fields.Override{}, err
	}
	s.sched.RequestOverlay()
	s.sched.Resume()
	return o, nil
}

// CancelDrag abandons the active drag, keeping the last override. It
// reports whether a drag was active.
func (s *Session) CancelDrag() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelDragLocked()
}

func (s *Session) cancelDragLocked() bool {
	_, ok := s.drag.Cancel()
	if !ok {
		return false
	}
	s.sched.RequestOverlay()
	s.sched.Resume()
	return true
}

// SetFieldValue records a value and schedules a debounced render.
func (s *Session) SetFieldValue(fieldID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SetValue(fieldID, value); err != nil {
		return err
	}
	s.sched.RequestContent()
	return nil
}

// Assign gives fieldID to assigneeID.
func (s *Session) Assign(fieldID, assigneeID string) error {
	return s.assign.Assign(fieldID, assigneeID)
}

// Unassign removes fieldID's assignee.
func (s *Session) Unassign(fieldID string) {
	s.assign.Unassign(fieldID)
}

// Assignee returns fieldID's assignee.
func (s *Session) Assignee(fieldID string) (string, bool) {
	return s.assign.Assignee(fieldID)
}

// Progress returns per-assignee progress sorted by assignee.
func (s *Session) Progress() []assign.Progress {
	return s.assign.Summary()
}

// AssigneeProgress returns one assignee's progress.
func (s *Session) AssigneeProgress(assigneeID string) assign.Progress {
	return s.assign.CountAssigned(assigneeID)
}

// Unassigned lists fields without an assignee.
func (s *Session) Unassigned() []string {
	return s.assign.Unassigned()
}

// ClearOverrides discards every override.
func (s *Session) ClearOverrides() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.ClearOverrides()
	s.sched.RequestOverlay()
}

// PageFields returns the fields of the current page with effective geometry.
func (s *Session) PageFields() []fields.Placed {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	return s.store.PageFields(page)
}

// SaveLayout folds the overrides into a copy of the template and hands it to
// the saver. The session's own definitions are unchanged.
func (s *Session) SaveLayout(ctx context.Context) (*fields.Template, error) {
	var saved *fields.Template
	commit := func(ctx context.Context, overrides map[string]geometry.Rect) error {
		saved = s.tpl.WithOverrides(overrides)
		if s.saver == nil {
			return nil
		}
		return s.saver(ctx, saved)
	}
	if err := s.store.CommitOverrides(ctx, commit, s.policy); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.saved = saved
	if s.policy == fields.ClearOverrides {
		s.sched.RequestOverlay()
	}
	s.mu.Unlock()

	logging.Logger().Info("layout saved",
		slog.String("session", s.id),
		slog.String("template", saved.ID),
		slog.Int("fields", len(saved.Fields)))
	return saved, nil
}

// Generate produces a filled document from the current values and
// overrides.
func (s *Session) Generate(ctx context.Context, outputName string) (*pdf.GenerateResult, error) {
	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.doc == nil || s.gen == nil {
		s.mu.Unlock()
		return nil, layouterrors.Wrap(layouterrors.ErrorTypeBackendUnavailable, "generation unavailable", s.backendErr)
	}
	s.mu.Unlock()

	req := pdf.GenerateRequest{
		TemplateID: s.tpl.ID,
		Document:   s.tpl.Document,
		Fields:     s.store.Definitions(),
		Values:     s.store.Values(),
		Overrides:  s.store.Overrides(),
		OutputName: outputName,
	}
	res, err := s.gen.Generate(ctx, req)
	if err != nil {
		return nil, layouterrors.Wrap(layouterrors.ErrorTypeBackendUnavailable, "generate", err)
	}
	logging.Logger().Info("document generated",
		slog.String("session", s.id),
		slog.String("output", res.OutputRef),
		slog.Int("stamped", res.Stamped))
	return res, nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:         s.id,
		TemplateID: s.tpl.ID,
		Document:   s.tpl.Document,
		Page:       s.page,
		PageCount:  s.pageCountLocked(),
		Zoom:       s.scaler.Zoom(),
		EditMode:   s.editMode,
		Preview:    s.previewAvailable(),
		Suspended:  s.sched.Suspended(),
		Fields:     s.store.Len(),
		Overrides:  len(s.store.Overrides()),
	}
	if s.backendErr != nil && !st.Preview {
		st.BackendErr = s.backendErr.Error()
	}
	if st.Preview {
		rs := s.renderer.Status()
		st.Render = &rs
		if rs.Err != nil {
			st.RenderErr = rs.Err.Error()
		}
	}
	if ds, ok := s.drag.Active(); ok {
		st.Dragging = ds.FieldID
	}
	for _, id := range s.store.IDs() {
		if s.store.Completed(id) {
			st.Completed++
		}
	}
	if s.saved != nil {
		st.LastSavedAs = s.saved.ID
	}
	return st
}

// Close stops the scheduler, cancels outstanding renders and closes the
// document.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.sched.Stop()
	s.cancel()
	if s.renderer != nil {
		s.renderer.Cancel()
		s.renderer.Reset()
	}
	if s.doc != nil {
		return s.doc.Close()
	}
	return nil
}
