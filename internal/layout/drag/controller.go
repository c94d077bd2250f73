package drag

import (
	"sync"

	layouterrors "github.com/a3tai/mcp-pdf-layout/internal/layout/errors"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
)

// State is the controller state.
type State int

const (
	StateIdle State = iota
	StateDragging
)

func (s State) String() string {
	if s == StateDragging {
		return "dragging"
	}
	return "idle"
}

// Controller owns the single active drag and writes its results into the
// field store as overrides.
type Controller struct {
	mu      sync.Mutex
	store   *fields.Store
	session Session
}

// NewController creates an idle controller.
func NewController(store *fields.Store) *Controller {
	return &Controller{store: store}
}

// Begin starts a drag on fieldID. vp must be the viewport of the frame the
// pointer position refers to. If another drag is active it is force-ended
// first and its field id is returned as ended; its last override stays.
func (c *Controller) Begin(fieldID string, mode Mode, handle Handle, pointer geometry.Point, vp geometry.Viewport) (ended string, err error) {
	if !vp.Valid() {
		return "", layouterrors.New(layouterrors.ErrorTypePreviewUnavailable, "no rendered frame to drag against")
	}
	start, ok := c.store.EffectivePosition(fieldID)
	if !ok {
		return "", layouterrors.New(layouterrors.ErrorTypeUnknownField, "cannot drag unknown field").
			WithContext(fieldID).WithField(fieldID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Active {
		ended = c.session.FieldID
		c.session, _, _ = Reduce(c.session, PointerEvent{Kind: EventCancel})
	}

	c.session = Session{
		FieldID:      fieldID,
		Mode:         mode,
		Handle:       handle,
		PointerStart: pointer,
		FieldStart:   start,
		Scale:        vp.Scale,
		PixelHeight:  vp.PixelHeight,
		Active:       true,
	}
	return ended, nil
}

// Update moves the pointer and stores the resulting override. It never
// blocks on anything but the store.
func (c *Controller) Update(pointer geometry.Point) (fields.Override, error) {
	return c.step(PointerEvent{Kind: EventMove, Position: pointer})
}

// End finishes the drag at pointer. The override stays in the store until
// the session saves or clears it.
func (c *Controller) End(pointer geometry.Point) (fields.Override, error) {
	return c.step(PointerEvent{Kind: EventUp, Position: pointer})
}

// Cancel ends the drag without a final pointer position, e.g. when the
// pointer leaves the document. It reports the field that was being dragged.
func (c *Controller) Cancel() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Active {
		return "", false
	}
	id := c.session.FieldID
	c.session, _, _ = Reduce(c.session, PointerEvent{Kind: EventCancel})
	return id, true
}

// Active returns the current session if a drag is in progress.
func (c *Controller) Active() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.session.Active
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Active {
		return StateDragging
	}
	return StateIdle
}

func (c *Controller) step(ev PointerEvent) (fields.Override, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, o, ok := Reduce(c.session, ev)
	if !ok {
		return fields.Override{}, layouterrors.ErrNoActiveDrag
	}
	stored, err := c.store.SetOverride(o.FieldID, o.Rect)
	if err != nil {
		c.session, _, _ = Reduce(c.session, PointerEvent{Kind: EventCancel})
		return fields.Override{}, err
	}
	c.session = next
	o.Rect = stored
	return o, nil
}
