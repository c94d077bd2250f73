package fields

import (
	"context"
	"fmt"
	"strings"
	"sync"

	layouterrors "github.com/a3tai/mcp-pdf-layout/internal/layout/errors"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
)

// Committer persists an override map, typically as part of a save-layout or
// generate-document request.
type Committer func(ctx context.Context, overrides map[string]geometry.Rect) error

// Store is the source of truth for field geometry, overrides and values
// within one session. Definitions are never modified after construction.
type Store struct {
	mu        sync.RWMutex
	order     []string
	defs      map[string]Definition
	overrides map[string]geometry.Rect
	values    map[string]string
}

// NewStore creates a store from field definitions. Definitions keep the
// order they were given in.
func NewStore(defs []Definition) (*Store, error) {
	s := &Store{
		order:     make([]string, 0, len(defs)),
		defs:      make(map[string]Definition, len(defs)),
		overrides: make(map[string]geometry.Rect),
		values:    make(map[string]string),
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := s.defs[d.ID]; exists {
			return nil, fmt.Errorf("duplicate field id %q", d.ID)
		}
		s.defs[d.ID] = d
		s.order = append(s.order, d.ID)
	}
	return s, nil
}

// Len returns the number of fields.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Definition returns the persisted definition for id.
func (s *Store) Definition(id string) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.defs[id]
	return d, ok
}

// Definitions returns all definitions in order.
func (s *Store) Definitions() []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Definition, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.defs[id])
	}
	return out
}

// IDs returns all field ids in order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// EffectivePosition returns the override for id if one is set, else the
// persisted geometry.
func (s *Store) EffectivePosition(id string) (geometry.Rect, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effectiveLocked(id)
}

func (s *Store) effectiveLocked(id string) (geometry.Rect, bool) {
	if r, ok := s.overrides[id]; ok {
		return r, true
	}
	d, ok := s.defs[id]
	if !ok {
		return geometry.Rect{}, false
	}
	return d.Rect(), true
}

// SetOverride clamps rect and stores it as the override for id, replacing
// any earlier one. It returns the geometry actually stored.
func (s *Store) SetOverride(id string, rect geometry.Rect) (geometry.Rect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return geometry.Rect{}, unknownField(id)
	}
	clamped := geometry.Clamp(rect)
	s.overrides[id] = clamped
	return clamped, nil
}

// ClearOverride drops the override for id, if any.
func (s *Store) ClearOverride(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, id)
}

// ClearOverrides reverts every field to its persisted geometry.
func (s *Store) ClearOverrides() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = make(map[string]geometry.Rect)
}

// HasOverride reports whether id currently has an override.
func (s *Store) HasOverride(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.overrides[id]
	return ok
}

// Overrides returns a copy of the override map.
func (s *Store) Overrides() map[string]geometry.Rect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]geometry.Rect, len(s.overrides))
	for id, r := range s.overrides {
		out[id] = r
	}
	return out
}

// CommitOverrides hands the full override map to commit. On success the
// policy decides whether overrides stay in the session. The store itself has
// no opinion.
func (s *Store) CommitOverrides(ctx context.Context, commit Committer, policy CommitPolicy) error {
	snapshot := s.Overrides()
	if err := commit(ctx, snapshot); err != nil {
		return fmt.Errorf("commit overrides: %w", err)
	}
	if policy == ClearOverrides {
		s.mu.Lock()
		for id, r := range snapshot {
			// Edits made while the commit was in flight stay.
			if cur, ok := s.overrides[id]; ok && cur == r {
				delete(s.overrides, id)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// SetValue records the user-entered value for id.
func (s *Store) SetValue(id, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return unknownField(id)
	}
	if value == "" {
		delete(s.values, id)
		return nil
	}
	s.values[id] = value
	return nil
}

// Value returns the value entered for id.
func (s *Store) Value(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[id]
}

// Values returns a copy of all entered values.
func (s *Store) Values() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for id, v := range s.values {
		out[id] = v
	}
	return out
}

// Completed reports whether id has a non-blank value.
func (s *Store) Completed(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.TrimSpace(s.values[id]) != ""
}

// PageFields returns the fields on a page with their effective geometry.
func (s *Store) PageFields(pageNumber int) []Placed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Placed
	for _, id := range s.order {
		d := s.defs[id]
		if d.PageNumber != pageNumber {
			continue
		}
		r, _ := s.effectiveLocked(id)
		_, overridden := s.overrides[id]
		out = append(out, Placed{
			Definition: d,
			Effective:  r,
			Overridden: overridden,
			Value:      s.values[id],
		})
	}
	return out
}

// Pages returns the highest page number any field is placed on.
func (s *Store) Pages() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	maxPage := 0
	for _, d := range s.defs {
		if d.PageNumber > maxPage {
			maxPage = d.PageNumber
		}
	}
	return maxPage
}

func unknownField(id string) error {
	return layouterrors.New(layouterrors.ErrorTypeUnknownField, "unknown field").WithContext(id).WithField(id)
}
