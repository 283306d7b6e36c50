package smiley

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/forum/internal/logger"
)

func TestSnapshotOrdersLongestFirst(t *testing.T) {
	t.Parallel()

	snap, err := NewSnapshot([]Smiley{
		{Code: ":)", Path: "smile.gif"},
		{Code: ":))", Path: "laugh.gif"},
		{Code: ":D", Path: "grin.gif"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{":))", ":)", ":D"}, snap.Codes())

	got, ok := snap.MatchAt("x :)) y", 2, nil)
	require.True(t, ok)
	assert.Equal(t, ":))", got.Code)

	got, ok = snap.MatchAt("x :) y", 2, nil)
	require.True(t, ok)
	assert.Equal(t, ":)", got.Code)

	_, ok = snap.MatchAt("x :( y", 2, nil)
	assert.False(t, ok)

	// ":))" is rejected by the delimiter check, so the shorter code wins.
	text := "x :))z"
	got, ok = snap.MatchAt(text, 2, func(end int) bool { return end == 4 })
	require.True(t, ok)
	assert.Equal(t, ":)", got.Code)
}

func TestSnapshotRejectsInvalidCodes(t *testing.T) {
	t.Parallel()

	_, err := NewSnapshot([]Smiley{{Code: "  "}})
	assert.ErrorIs(t, err, ErrEmptyCode)

	_, err = NewSnapshot([]Smiley{{Code: ": )"}})
	assert.Error(t, err)

	_, err = NewSnapshot([]Smiley{{Code: ":)"}, {Code: ":)"}})
	assert.Error(t, err)
}

func TestSortOrderColumns(t *testing.T) {
	t.Parallel()

	s := Smiley{SortOrder: 3007}
	assert.Equal(t, 3, s.Column())
	assert.Equal(t, 7, s.Row())
}

func TestMapReloadKeepsPreviousOnError(t *testing.T) {
	t.Parallel()

	calls := 0
	src := SourceFunc(func(context.Context) ([]Smiley, error) {
		calls++
		if calls == 1 {
			return []Smiley{{Code: ":)"}}, nil
		}
		return nil, errors.New("db down")
	})
	m := NewMap(logger.Discard(), src)
	assert.Equal(t, 0, m.Snapshot().Len())

	require.NoError(t, m.Reload(context.Background()))
	first := m.Snapshot()
	assert.Equal(t, 1, first.Len())

	require.Error(t, m.Reload(context.Background()))
	assert.Same(t, first, m.Snapshot())
}

func TestParseSeed(t *testing.T) {
	t.Parallel()

	doc := `
smileys:
  - code: ":)"
    path: /smileys/smile.gif
    thought: smiles
    sort_order: 1001
  - code: ":("
    path: /smileys/frown.gif
    sort_order: 1002
`
	items, err := ParseSeed(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "smiles", items[0].Thought)
	assert.Equal(t, 1002, items[1].SortOrder)

	_, err = ParseSeed(strings.NewReader("smileys:\n  - code: x\n    colour: red\n"))
	assert.Error(t, err)
}
