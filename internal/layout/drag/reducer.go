// Package drag implements the pointer state machine that moves and resizes
// fields.
//
// All drag math is a pure function of the session captured at pointer-down
// and the current pointer position. Positions are never derived from the
// previous move, so a long drag cannot accumulate rounding error.
package drag

import (
	"math"

	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
)

// Mode says what a drag changes.
type Mode int

const (
	ModeMove Mode = iota
	ModeResize
)

func (m Mode) String() string {
	if m == ModeResize {
		return "resize"
	}
	return "move"
}

// Handle is the corner grabbed during a resize. The opposite corner stays
// anchored.
type Handle int

const (
	// HandleTopRight anchors the bottom-left corner, so only width and
	// height change.
	HandleTopRight Handle = iota
	HandleBottomRight
	HandleTopLeft
	HandleBottomLeft
)

// ParseHandle maps a handle name to a Handle. Unknown names give the
// default top-right handle.
func ParseHandle(name string) Handle {
	switch name {
	case "bottom-right", "br":
		return HandleBottomRight
	case "top-left", "tl":
		return HandleTopLeft
	case "bottom-left", "bl":
		return HandleBottomLeft
	default:
		return HandleTopRight
	}
}

func (h Handle) String() string {
	switch h {
	case HandleBottomRight:
		return "bottom-right"
	case HandleTopLeft:
		return "top-left"
	case HandleBottomLeft:
		return "bottom-left"
	default:
		return "top-right"
	}
}

func (h Handle) movesLeft() bool   { return h == HandleTopLeft || h == HandleBottomLeft }
func (h Handle) movesBottom() bool { return h == HandleBottomRight || h == HandleBottomLeft }

// EventKind is the kind of pointer event fed to Reduce.
type EventKind int

const (
	EventMove EventKind = iota
	EventUp
	EventCancel
)

// PointerEvent is a pointer position in device pixels.
type PointerEvent struct {
	Kind     EventKind
	Position geometry.Point
}

// Session is the state captured at pointer-down. Scale and PixelHeight come
// from the viewport of the frame the user was looking at and are never
// refreshed mid-gesture.
type Session struct {
	FieldID      string         `json:"field_id"`
	Mode         Mode           `json:"mode"`
	Handle       Handle         `json:"handle"`
	PointerStart geometry.Point `json:"pointer_start"`
	FieldStart   geometry.Rect  `json:"field_start"`
	Scale        float64        `json:"scale"`
	PixelHeight  float64        `json:"pixel_height"`
	Active       bool           `json:"active"`
}

// Reduce advances a drag session by one pointer event. It returns the next
// session and, when ok is true, the override the event produces. Up ends the
// session with a final override; Cancel ends it without one, leaving the last
// override written in place.
func Reduce(s Session, ev PointerEvent) (Session, fields.Override, bool) {
	if !s.Active {
		return s, fields.Override{}, false
	}

	switch ev.Kind {
	case EventCancel:
		s.Active = false
		return s, fields.Override{}, false
	case EventUp:
		s.Active = false
	}

	return s, fields.Override{FieldID: s.FieldID, Rect: Apply(s, ev.Position)}, true
}

// Apply computes the field geometry for a pointer position.
func Apply(s Session, pointer geometry.Point) geometry.Rect {
	if s.Scale <= 0 {
		return s.FieldStart
	}
	delta := geometry.ToDocumentDelta(pointer.Sub(s.PointerStart), s.Scale)
	if s.Mode == ModeResize {
		return resize(s.FieldStart, delta, s.Handle)
	}
	// A move never changes the size.
	moved := s.FieldStart.Translate(delta)
	moved.X = math.Max(0, moved.X)
	moved.Y = math.Max(0, moved.Y)
	return moved
}

func resize(r geometry.Rect, d geometry.Point, h Handle) geometry.Rect {
	left, bottom, right, top := r.X, r.Y, r.Right(), r.Top()

	if h.movesLeft() {
		left += d.X
		if right-left < geometry.MinFieldSize {
			left = right - geometry.MinFieldSize
		}
		if left < 0 {
			left = 0
		}
	} else {
		right += d.X
		if right-left < geometry.MinFieldSize {
			right = left + geometry.MinFieldSize
		}
	}

	if h.movesBottom() {
		bottom += d.Y
		if top-bottom < geometry.MinFieldSize {
			bottom = top - geometry.MinFieldSize
		}
		if bottom < 0 {
			bottom = 0
		}
	} else {
		top += d.Y
		if top-bottom < geometry.MinFieldSize {
			top = bottom + geometry.MinFieldSize
		}
	}

	return geometry.Clamp(geometry.Rect{X: left, Y: bottom, Width: right - left, Height: top - bottom})
}
