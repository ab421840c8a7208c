package track

import (
	"testing"
	"time"

	"comparetab/align"
	"comparetab/types"
	"comparetab/view"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newStack(t *testing.T) (*Stack, *view.Fake, *fakeClock) {
	t.Helper()
	host := view.NewFake(20, 20)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewStack(host, types.Main)
	s.SetClock(clock.now)
	return s, host, clock
}

func TestPushPopRoundTrip(t *testing.T) {
	s, host, clock := newStack(t)

	host.SetMarker(types.Main, 5, types.MarkerChanged)
	host.SetMarker(types.Main, 6, types.MarkerAdded)
	before := host.Markers(types.Main, 5, 2)

	undo := &UndoPayload{
		Alignment: align.Table{{Main: align.Anchor{Line: 2}, Sub: align.Anchor{Line: 2}}},
		Selection: types.NoSelection,
	}

	require.True(t, s.Push(types.ActionUser, 5, 2, undo))

	// The delete happened; markers in the range are gone.
	host.ClearMarkers(types.Main, 5, 2)
	clock.advance(5 * time.Second)

	got := s.Pop(types.ActionUndo, 5)
	require.NotNil(t, got)
	assert.Same(t, undo, got)
	assert.Equal(t, before, host.Markers(types.Main, 5, 2))
	assert.Equal(t, 0, s.Len())
}

func TestPushZeroLinesIsNoop(t *testing.T) {
	s, _, _ := newStack(t)
	assert.False(t, s.Push(types.ActionUser, 3, 0, nil))
	assert.Equal(t, 0, s.Len())
}

func TestPopEmptyStack(t *testing.T) {
	s, _, _ := newStack(t)
	assert.Nil(t, s.Pop(types.ActionUndo, 0))
}

func TestPopWrongStartLine(t *testing.T) {
	s, _, _ := newStack(t)
	require.True(t, s.Push(types.ActionUser, 5, 2, &UndoPayload{}))

	assert.Nil(t, s.Pop(types.ActionUndo, 7))
	assert.Equal(t, 1, s.Len())
}

func TestUndoOfUndoNeedsRedo(t *testing.T) {
	s, _, clock := newStack(t)

	// A delete performed BY an undo is restored by a redo.
	require.True(t, s.Push(types.ActionUndo, 2, 3, &UndoPayload{}))
	clock.advance(time.Second)

	assert.Nil(t, s.Pop(types.ActionUndo, 2))
	assert.NotNil(t, s.Pop(types.ActionRedo, 2))
}

func TestNextLineMarkerRestored(t *testing.T) {
	s, host, clock := newStack(t)

	host.SetMarker(types.Main, 5, types.MarkerRemoved)
	host.SetMarker(types.Main, 7, types.MarkerChanged)

	require.True(t, s.Push(types.ActionUser, 5, 2, &UndoPayload{}))

	// After the delete, the old line 7 became line 5 and carried its marker
	// along; the undo re-inserts the lines and the marker must move back.
	host.ClearMarkers(types.Main, 5, 3)
	host.SetMarker(types.Main, 5, types.MarkerChanged)
	clock.advance(time.Second)

	require.NotNil(t, s.Pop(types.ActionUndo, 5))

	assert.Equal(t, types.MarkerRemoved, host.Marker(types.Main, 5))
	assert.Equal(t, types.MarkerMask(0), host.Marker(types.Main, 6))
	assert.Equal(t, types.MarkerChanged, host.Marker(types.Main, 7))
}

func TestReplaceHeuristic(t *testing.T) {
	s, _, clock := newStack(t)

	// Delete at line 5 by the user...
	require.True(t, s.Push(types.ActionUser, 5, 2, &UndoPayload{}))

	// ...immediately followed by an insert at line 5 that is NOT the undo
	// restore: one logical replace split into two notifications.
	clock.advance(10 * time.Millisecond)
	assert.Nil(t, s.Pop(types.ActionUser, 5))

	// The compensating delete half of the same replace is then suppressed.
	assert.False(t, s.Push(types.ActionUndo, 5, 2, &UndoPayload{}))
	assert.Equal(t, 1, s.Len())
}

func TestReplaceHeuristicExpires(t *testing.T) {
	s, _, clock := newStack(t)

	require.True(t, s.Push(types.ActionUser, 5, 2, &UndoPayload{}))

	clock.advance(100 * time.Millisecond)
	assert.Nil(t, s.Pop(types.ActionUser, 5))

	// Past the window nothing was flagged, so a complementary push stacks up.
	assert.True(t, s.Push(types.ActionUndo, 5, 2, &UndoPayload{}))
	assert.Equal(t, 2, s.Len())
}

func TestRecompareModeClearsInsteadOfSaving(t *testing.T) {
	s, host, clock := newStack(t)
	s.PreserveMarkers = false

	host.SetMarker(types.Main, 5, types.MarkerChanged)
	require.True(t, s.Push(types.ActionUser, 5, 1, &UndoPayload{}))

	// Markers are dropped at push time and not restored on pop.
	assert.Equal(t, types.MarkerMask(0), host.Marker(types.Main, 5))
	clock.advance(time.Second)

	require.NotNil(t, s.Pop(types.ActionUndo, 5))
	assert.Equal(t, types.MarkerMask(0), host.Marker(types.Main, 5))
}

func TestInterleavedStacks(t *testing.T) {
	s, _, clock := newStack(t)

	u1 := &UndoPayload{Selection: types.Selection{First: 1, Last: 2}}
	u2 := &UndoPayload{Selection: types.Selection{First: 3, Last: 4}}

	require.True(t, s.Push(types.ActionUser, 10, 2, u1))
	clock.advance(time.Second)
	require.True(t, s.Push(types.ActionUser, 4, 3, u2))
	clock.advance(time.Second)

	// LIFO: the undo restores the most recent delete first.
	assert.Same(t, u2, s.Pop(types.ActionUndo, 4))
	assert.Same(t, u1, s.Pop(types.ActionUndo, 10))
	assert.Equal(t, 0, s.Len())
}
