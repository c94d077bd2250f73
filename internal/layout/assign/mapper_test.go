package assign

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	layouterrors "github.com/a3tai/mcp-pdf-layout/internal/layout/errors"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
)

func newMapper(t *testing.T) (*Mapper, *fields.Store) {
	t.Helper()
	store, err := fields.NewStore([]fields.Definition{
		{ID: "name", PageNumber: 1, X: 100, Y: 700, Width: 150, Height: 20, Kind: fields.KindText},
		{ID: "date", PageNumber: 1, X: 300, Y: 700, Width: 80, Height: 20, Kind: fields.KindDate},
		{ID: "sig", PageNumber: 2, X: 72, Y: 72, Width: 200, Height: 40, Kind: fields.KindSignature},
	})
	require.NoError(t, err)
	return NewMapper(store), store
}

func TestReassignmentLastWriteWins(t *testing.T) {
	m, _ := newMapper(t)

	require.NoError(t, m.Assign("sig", "A"))
	require.NoError(t, m.Assign("sig", "B"))

	assert.Equal(t, 0, m.CountAssigned("A").Assigned)
	assert.Equal(t, 1, m.CountAssigned("B").Assigned)

	who, ok := m.Assignee("sig")
	assert.True(t, ok)
	assert.Equal(t, "B", who)
}

func TestCountAssigned(t *testing.T) {
	m, store := newMapper(t)
	require.NoError(t, m.Assign("name", "tenant"))
	require.NoError(t, m.Assign("sig", "tenant"))
	require.NoError(t, m.Assign("date", "landlord"))
	require.NoError(t, store.SetValue("name", "Ada"))

	p := m.CountAssigned("tenant")
	assert.Equal(t, Progress{Assignee: "tenant", Assigned: 2, Completed: 1, Total: 3}, p)

	assert.Equal(t, Progress{Assignee: "nobody", Total: 3}, m.CountAssigned("nobody"))
}

func TestUnassign(t *testing.T) {
	m, _ := newMapper(t)
	require.NoError(t, m.Assign("name", "tenant"))
	require.NoError(t, m.Assign("date", "tenant"))

	m.Unassign("name")
	require.NoError(t, m.Assign("date", ""))

	assert.Equal(t, 0, m.CountAssigned("tenant").Assigned)
	assert.Equal(t, []string{"name", "date", "sig"}, m.Unassigned())
	assert.Empty(t, m.Assignments())
}

func TestAssignUnknownField(t *testing.T) {
	m, _ := newMapper(t)

	err := m.Assign("ghost", "A")
	require.Error(t, err)
	assert.True(t, errors.Is(err, layouterrors.ErrUnknownField))
}

func TestSummary(t *testing.T) {
	m, _ := newMapper(t)
	require.NoError(t, m.Assign("sig", "tenant"))
	require.NoError(t, m.Assign("name", "landlord"))
	require.NoError(t, m.Assign("date", "landlord"))

	summary := m.Summary()
	require.Len(t, summary, 2)
	assert.Equal(t, "landlord", summary[0].Assignee)
	assert.Equal(t, 2, summary[0].Assigned)
	assert.Equal(t, "tenant", summary[1].Assignee)
	assert.Equal(t, 1, summary[1].Assigned)
}
