// Package assign maps fields to the party responsible for filling them and
// aggregates per-party progress.
package assign

import (
	"sort"
	"sync"

	layouterrors "github.com/a3tai/mcp-pdf-layout/internal/layout/errors"
)

// FieldSource is the subset of the field store the mapper reads.
type FieldSource interface {
	IDs() []string
	Completed(id string) bool
}

// Progress summarises one assignee's share of the active document.
type Progress struct {
	Assignee  string `json:"assignee"`
	Assigned  int    `json:"assigned"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// Mapper holds at most one assignee per field.
type Mapper struct {
	mu       sync.RWMutex
	fields   FieldSource
	assignee map[string]string
}

// NewMapper creates a mapper over the fields of the active document.
func NewMapper(fields FieldSource) *Mapper {
	return &Mapper{
		fields:   fields,
		assignee: make(map[string]string),
	}
}

// Assign gives fieldID to assigneeID. A previous assignee is replaced
// without complaint.
func (m *Mapper) Assign(fieldID, assigneeID string) error {
	if !m.known(fieldID) {
		return layouterrors.New(layouterrors.ErrorTypeUnknownField, "cannot assign unknown field").
			WithContext(fieldID).WithField(fieldID)
	}
	if assigneeID == "" {
		m.Unassign(fieldID)
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignee[fieldID] = assigneeID
	return nil
}

// Unassign removes any assignee from fieldID.
func (m *Mapper) Unassign(fieldID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignee, fieldID)
}

// Assignee returns who fieldID is assigned to.
func (m *Mapper) Assignee(fieldID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignee[fieldID]
	return a, ok
}

// CountAssigned returns how many of the document's fields belong to
// assigneeID, how many of those are complete, and the document total.
func (m *Mapper) CountAssigned(assigneeID string) Progress {
	ids := m.fields.IDs()
	p := Progress{Assignee: assigneeID, Total: len(ids)}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range ids {
		if m.assignee[id] != assigneeID {
			continue
		}
		p.Assigned++
		if m.fields.Completed(id) {
			p.Completed++
		}
	}
	return p
}

// Summary returns progress for every assignee, sorted by assignee id.
func (m *Mapper) Summary() []Progress {
	m.mu.RLock()
	seen := make(map[string]struct{})
	for _, a := range m.assignee {
		seen[a] = struct{}{}
	}
	m.mu.RUnlock()

	names := make([]string, 0, len(seen))
	for a := range seen {
		names = append(names, a)
	}
	sort.Strings(names)

	out := make([]Progress, 0, len(names))
	for _, a := range names {
		out = append(out, m.CountAssigned(a))
	}
	return out
}

// Unassigned returns the ids of fields nobody is responsible for, in field
// order.
func (m *Mapper) Unassigned() []string {
	ids := m.fields.IDs()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, id := range ids {
		if _, ok := m.assignee[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Assignments returns a copy of the field-to-assignee map.
func (m *Mapper) Assignments() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.assignee))
	for f, a := range m.assignee {
		out[f] = a
	}
	return out
}

func (m *Mapper) known(fieldID string) bool {
	for _, id := range m.fields.IDs() {
		if id == fieldID {
			return true
		}
	}
	return false
}
