package fields

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	layouterrors "github.com/a3tai/mcp-pdf-layout/internal/layout/errors"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
)

func testDefinitions() []Definition {
	return []Definition{
		{ID: "name", PageNumber: 1, X: 100, Y: 700, Width: 150, Height: 20, Kind: KindText, DisplayName: "Full name", Required: true},
		{ID: "date", PageNumber: 1, X: 300, Y: 700, Width: 80, Height: 20, Kind: KindDate},
		{ID: "sig", PageNumber: 2, X: 72, Y: 72, Width: 200, Height: 40, Kind: KindSignature},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(testDefinitions())
	require.NoError(t, err)
	return s
}

func TestNewStore_Validation(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
		msg  string
	}{
		{"duplicate id", []Definition{testDefinitions()[0], testDefinitions()[0]}, "duplicate field id"},
		{"empty id", []Definition{{PageNumber: 1, Width: 1, Height: 1, Kind: KindText}}, "id cannot be empty"},
		{"page zero", []Definition{{ID: "a", Width: 1, Height: 1, Kind: KindText}}, "page number"},
		{"zero width", []Definition{{ID: "a", PageNumber: 1, Height: 1, Kind: KindText}}, "positive"},
		{"negative x", []Definition{{ID: "a", PageNumber: 1, X: -1, Width: 1, Height: 1, Kind: KindText}}, "negative"},
		{"bad kind", []Definition{{ID: "a", PageNumber: 1, Width: 10, Height: 10, Kind: "radio"}}, "unknown kind"},
		{"below minimum size", []Definition{{ID: "a", PageNumber: 1, X: 50, Y: 50, Width: 3, Height: 2, Kind: KindCheckbox}}, "minimum field size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore(tt.defs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestEffectivePosition(t *testing.T) {
	s := newTestStore(t)

	r, ok := s.EffectivePosition("name")
	require.True(t, ok)
	assert.Equal(t, geometry.Rect{X: 100, Y: 700, Width: 150, Height: 20}, r)

	_, err := s.SetOverride("name", geometry.Rect{X: 162.5, Y: 725, Width: 150, Height: 20})
	require.NoError(t, err)

	r, _ = s.EffectivePosition("name")
	assert.Equal(t, geometry.Rect{X: 162.5, Y: 725, Width: 150, Height: 20}, r)

	def, _ := s.Definition("name")
	assert.Equal(t, 100.0, def.X, "definitions are never mutated by overrides")

	_, ok = s.EffectivePosition("missing")
	assert.False(t, ok)
}

func TestSetOverride_LastWriteWinsAndClamps(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SetOverride("date", geometry.Rect{X: 10, Y: 10, Width: 80, Height: 20})
	require.NoError(t, err)
	stored, err := s.SetOverride("date", geometry.Rect{X: -20, Y: 5, Width: 0, Height: 20})
	require.NoError(t, err)

	assert.Equal(t, geometry.Rect{X: 0, Y: 5, Width: geometry.MinFieldSize, Height: 20}, stored)
	assert.Len(t, s.Overrides(), 1)
	assert.Equal(t, stored, s.Overrides()["date"])
}

func TestSetOverride_UnknownField(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SetOverride("nope", geometry.Rect{Width: 10, Height: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, layouterrors.ErrUnknownField))
	assert.Empty(t, s.Overrides())
}

func TestClearOverrides(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.SetOverride("name", geometry.Rect{X: 1, Y: 1, Width: 10, Height: 10})
	_, _ = s.SetOverride("sig", geometry.Rect{X: 1, Y: 1, Width: 10, Height: 10})

	s.ClearOverride("sig")
	assert.False(t, s.HasOverride("sig"))
	assert.True(t, s.HasOverride("name"))

	s.ClearOverrides()
	r, _ := s.EffectivePosition("name")
	assert.Equal(t, testDefinitions()[0].Rect(), r)
}

func TestCommitOverrides(t *testing.T) {
	moved := geometry.Rect{X: 1, Y: 2, Width: 30, Height: 40}

	t.Run("keep", func(t *testing.T) {
		s := newTestStore(t)
		_, _ = s.SetOverride("name", moved)

		var got map[string]geometry.Rect
		err := s.CommitOverrides(context.Background(), func(_ context.Context, o map[string]geometry.Rect) error {
			got = o
			return nil
		}, KeepOverrides)

		require.NoError(t, err)
		assert.Equal(t, map[string]geometry.Rect{"name": moved}, got)
		assert.True(t, s.HasOverride("name"))
	})

	t.Run("clear", func(t *testing.T) {
		s := newTestStore(t)
		_, _ = s.SetOverride("name", moved)

		err := s.CommitOverrides(context.Background(), func(context.Context, map[string]geometry.Rect) error {
			return nil
		}, ClearOverrides)

		require.NoError(t, err)
		assert.False(t, s.HasOverride("name"))
	})

	t.Run("failure keeps overrides", func(t *testing.T) {
		s := newTestStore(t)
		_, _ = s.SetOverride("name", moved)

		err := s.CommitOverrides(context.Background(), func(context.Context, map[string]geometry.Rect) error {
			return errors.New("storage offline")
		}, ClearOverrides)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage offline")
		assert.True(t, s.HasOverride("name"))
	})
}

func TestValues(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetValue("name", "Ada Lovelace"))
	require.NoError(t, s.SetValue("date", "   "))
	assert.Error(t, s.SetValue("missing", "x"))

	assert.Equal(t, "Ada Lovelace", s.Value("name"))
	assert.True(t, s.Completed("name"))
	assert.False(t, s.Completed("date"), "blank values do not complete a field")

	require.NoError(t, s.SetValue("name", ""))
	assert.False(t, s.Completed("name"))
	assert.Len(t, s.Values(), 1)
}

func TestPageFields(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.SetOverride("date", geometry.Rect{X: 310, Y: 690, Width: 80, Height: 20})
	_ = s.SetValue("name", "Ada")

	page1 := s.PageFields(1)
	require.Len(t, page1, 2)
	assert.Equal(t, "name", page1[0].Definition.ID)
	assert.False(t, page1[0].Overridden)
	assert.Equal(t, "Ada", page1[0].Value)
	assert.True(t, page1[1].Overridden)
	assert.Equal(t, 310.0, page1[1].Effective.X)

	assert.Len(t, s.PageFields(2), 1)
	assert.Empty(t, s.PageFields(3))
	assert.Equal(t, 2, s.Pages())
	assert.Equal(t, []string{"name", "date", "sig"}, s.IDs())
}

func TestDefinitionLabel(t *testing.T) {
	defs := testDefinitions()
	assert.Equal(t, "Full name", defs[0].Label())
	assert.Equal(t, "date", defs[1].Label())
	assert.True(t, strings.HasPrefix(string(KindSignature), "sig"))
}
