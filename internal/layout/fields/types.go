// Package fields holds field definitions, per-session geometry overrides, and
// user-entered values for one layout session.
package fields

import (
	"fmt"
	"strings"

	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
)

// Kind is the data type a field collects.
type Kind string

const (
	KindText      Kind = "text"
	KindNumber    Kind = "number"
	KindDate      Kind = "date"
	KindCheckbox  Kind = "checkbox"
	KindSignature Kind = "signature"
	KindInitials  Kind = "initials"
	KindDropdown  Kind = "dropdown"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindNumber, KindDate, KindCheckbox, KindSignature, KindInitials, KindDropdown:
		return true
	default:
		return false
	}
}

// Definition is a persisted field. Geometry is in document points with y
// measured from the page bottom.
type Definition struct {
	ID          string  `json:"id" yaml:"id"`
	PageNumber  int     `json:"page" yaml:"page"`
	X           float64 `json:"x" yaml:"x"`
	Y           float64 `json:"y" yaml:"y"`
	Width       float64 `json:"width" yaml:"width"`
	Height      float64 `json:"height" yaml:"height"`
	Kind        Kind    `json:"kind" yaml:"kind"`
	DisplayName string  `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Required    bool    `json:"required,omitempty" yaml:"required,omitempty"`
}

// Rect returns the persisted geometry.
func (d Definition) Rect() geometry.Rect {
	return geometry.Rect{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height}
}

// Label returns the text shown for the field in layout mode.
func (d Definition) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.ID
}

// Validate checks that a definition can be placed on a page.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("field id cannot be empty")
	}
	if d.PageNumber < 1 {
		return fmt.Errorf("field %s: page number must be 1 or greater, got %d", d.ID, d.PageNumber)
	}
	if d.X < 0 || d.Y < 0 {
		return fmt.Errorf("field %s: position must not be negative", d.ID)
	}
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("field %s: width and height must be positive", d.ID)
	}
	if d.Width < geometry.MinFieldSize || d.Height < geometry.MinFieldSize {
		return fmt.Errorf("field %s: %gx%g is below the minimum field size of %g points",
			d.ID, d.Width, d.Height, geometry.MinFieldSize)
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("field %s: unknown kind %q", d.ID, d.Kind)
	}
	return nil
}

// Override is a session-scoped replacement for a field's geometry.
type Override struct {
	FieldID string        `json:"field_id"`
	Rect    geometry.Rect `json:"rect"`
}

// Placed is a field together with the geometry used to draw and hit-test it.
type Placed struct {
	Definition Definition    `json:"definition"`
	Effective  geometry.Rect `json:"effective"`
	Overridden bool          `json:"overridden"`
	Value      string        `json:"value,omitempty"`
}

// CommitPolicy tells CommitOverrides what to do with overrides after the
// backend accepted them.
type CommitPolicy int

const (
	// KeepOverrides leaves overrides in place so the preview keeps matching
	// what was just generated.
	KeepOverrides CommitPolicy = iota
	// ClearOverrides drops them, reverting the session to persisted geometry.
	ClearOverrides
)
