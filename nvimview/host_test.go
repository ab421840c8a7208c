package nvimview

import (
	"testing"

	"github.com/neovim/go-client/nvim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comparetab/types"
)

type recordedEvent struct {
	kind   string // "before-delete" or "modified"
	view   types.Side
	a, b   int
	action types.ActionKind
}

type recorder struct {
	events []recordedEvent
}

func (r *recorder) BeforeDelete(v types.Side, startLine, endLine int, action types.ActionKind) {
	r.events = append(r.events, recordedEvent{"before-delete", v, startLine, endLine, action})
}

func (r *recorder) Modified(v types.Side, startLine, linesAdded int, action types.ActionKind) {
	r.events = append(r.events, recordedEvent{"modified", v, startLine, linesAdded, action})
}

// newCacheHost builds a host around the line cache alone, enough for
// everything that does not talk to the editor.
func newCacheHost(mainLines, subLines []string) (*Host, *recorder) {
	h := &Host{}
	for i := range h.panes {
		h.panes[i] = &pane{
			markers:     map[int]types.MarkerMask{},
			annotations: map[int]annotation{},
		}
	}
	h.panes[types.Main].buf = nvim.Buffer(1)
	h.panes[types.Sub].buf = nvim.Buffer(2)
	h.panes[types.Main].lines = append([]string(nil), mainLines...)
	h.panes[types.Sub].lines = append([]string(nil), subLines...)

	r := &recorder{}
	h.SetNotifier(r)
	return h, r
}

func TestLinesEventInsertNotifiesAndShiftsMarkers(t *testing.T) {
	h, r := newCacheHost([]string{"a", "b", "c", "d"}, nil)
	h.panes[types.Main].markers[2] = types.MarkerChanged

	// Two lines inserted before "c": [2, 2) -> {"x", "y"}.
	h.HandleLinesEvent(nvim.Buffer(1), 2, 2, []string{"x", "y"})

	assert.Equal(t, []string{"a", "b", "x", "y", "c", "d"}, h.panes[types.Main].lines)
	assert.Equal(t, types.MarkerChanged, h.panes[types.Main].markers[4])
	_, stale := h.panes[types.Main].markers[2]
	assert.False(t, stale)

	require.Len(t, r.events, 1)
	assert.Equal(t, recordedEvent{"modified", types.Main, 2, 2, types.ActionUser}, r.events[0])
}

func TestLinesEventDeleteReportsSurvivingHead(t *testing.T) {
	h, r := newCacheHost([]string{"a", "b", "c", "d", "e"}, nil)

	// [1, 4) replaced by one line: "b" survives rewritten, "c" and "d" go.
	h.HandleLinesEvent(nvim.Buffer(1), 1, 4, []string{"B"})

	assert.Equal(t, []string{"a", "B", "e"}, h.panes[types.Main].lines)

	require.Len(t, r.events, 2)
	assert.Equal(t, recordedEvent{"before-delete", types.Main, 2, 4, types.ActionUser}, r.events[0])
	assert.Equal(t, recordedEvent{"modified", types.Main, 2, -2, types.ActionUser}, r.events[1])
}

func TestLinesEventDropsEchoOfOwnEdit(t *testing.T) {
	h, r := newCacheHost([]string{"a", "b", "c"}, nil)
	h.panes[types.Main].expected = []expectedChange{
		{first: 1, last: 2, lines: []string{"B"}},
	}

	h.HandleLinesEvent(nvim.Buffer(1), 1, 2, []string{"B"})

	assert.Empty(t, r.events)
	assert.Empty(t, h.panes[types.Main].expected)
	// The cache was already rewritten when the edit was issued, so the
	// echo must not touch it.
	assert.Equal(t, []string{"a", "b", "c"}, h.panes[types.Main].lines)
}

func TestLinesEventMismatchedEchoStillApplies(t *testing.T) {
	h, r := newCacheHost([]string{"a", "b", "c"}, nil)
	h.panes[types.Main].expected = []expectedChange{
		{first: 1, last: 2, lines: []string{"B"}},
	}

	h.HandleLinesEvent(nvim.Buffer(1), 0, 1, []string{"A"})

	assert.Equal(t, []string{"A", "b", "c"}, h.panes[types.Main].lines)
	assert.Len(t, r.events, 1)
	// The queued expectation stays armed for the real echo.
	assert.Len(t, h.panes[types.Main].expected, 1)
}

func TestPendingActionClassifiesNextChangeOnly(t *testing.T) {
	h, r := newCacheHost([]string{"a", "b"}, nil)

	h.SetPendingAction(types.ActionUndo)
	h.HandleLinesEvent(nvim.Buffer(1), 0, 1, []string{"A"})
	h.HandleLinesEvent(nvim.Buffer(1), 1, 2, []string{"B"})

	require.Len(t, r.events, 2)
	assert.Equal(t, types.ActionUndo, r.events[0].action)
	assert.Equal(t, types.ActionUser, r.events[1].action)
}

func TestLinesEventForUnknownBufferIgnored(t *testing.T) {
	h, r := newCacheHost([]string{"a"}, nil)

	h.HandleLinesEvent(nvim.Buffer(9), 0, 1, []string{"x"})

	assert.Empty(t, r.events)
	assert.Equal(t, []string{"a"}, h.panes[types.Main].lines)
}

func TestShiftLineMapDropsReplacedRange(t *testing.T) {
	m := map[int]types.MarkerMask{
		1: types.MarkerAdded,
		3: types.MarkerRemoved,
		7: types.MarkerChanged,
	}

	out := shiftLineMap(m, 2, 5, -3)

	assert.Equal(t, map[int]types.MarkerMask{
		1: types.MarkerAdded,
		4: types.MarkerChanged,
	}, out)
}

func TestPositionMathRoundTrips(t *testing.T) {
	h, _ := newCacheHost([]string{"ab", "", "cdef"}, nil)

	assert.Equal(t, 0, h.LineStart(types.Main, 0))
	assert.Equal(t, 3, h.LineStart(types.Main, 1))
	assert.Equal(t, 4, h.LineStart(types.Main, 2))
	assert.Equal(t, 2, h.LineEnd(types.Main, 0))
	assert.Equal(t, 8, h.LineEnd(types.Main, 2))
	assert.Equal(t, 9, h.TextLength(types.Main))

	assert.Equal(t, 0, h.LineFromPosition(types.Main, 2))
	assert.Equal(t, 1, h.LineFromPosition(types.Main, 3))
	assert.Equal(t, 2, h.LineFromPosition(types.Main, 8))
	// Past the end clamps to the last line.
	assert.Equal(t, 2, h.LineFromPosition(types.Main, 100))

	assert.Equal(t, "b\n\ncd", h.TextRange(types.Main, 1, 6))
}

func TestVisibleLineMathCountsFiller(t *testing.T) {
	h, _ := newCacheHost([]string{"a", "b", "c", "d"}, nil)
	h.panes[types.Main].annotations[1] = annotation{height: 3}

	assert.Equal(t, 1, h.VisibleFromDocLine(types.Main, 1))
	assert.Equal(t, 5, h.VisibleFromDocLine(types.Main, 2))
	assert.Equal(t, 6, h.VisibleFromDocLine(types.Main, 3))

	assert.Equal(t, 1, h.DocLineFromVisible(types.Main, 1))
	// Rows 2-4 are filler under line 1 and resolve to it.
	assert.Equal(t, 1, h.DocLineFromVisible(types.Main, 4))
	assert.Equal(t, 2, h.DocLineFromVisible(types.Main, 5))
	// Past the end clamps to the last line.
	assert.Equal(t, 3, h.DocLineFromVisible(types.Main, 50))
}

func TestMarkedLineScans(t *testing.T) {
	h, _ := newCacheHost([]string{"a", "b", "c", "d", "e"}, nil)
	h.panes[types.Main].markers[1] = types.MarkerAdded
	h.panes[types.Main].markers[3] = types.MarkerChanged

	assert.Equal(t, 1, h.NextMarkedLine(types.Main, 0, types.MarkerMaskLine))
	assert.Equal(t, 3, h.NextMarkedLine(types.Main, 2, types.MarkerMaskLine))
	assert.Equal(t, types.NoLine, h.NextMarkedLine(types.Main, 2, types.MarkerAdded))

	assert.Equal(t, 3, h.PrevMarkedLine(types.Main, 4, types.MarkerMaskLine))
	assert.Equal(t, 1, h.PrevMarkedLine(types.Main, 2, types.MarkerMaskLine))
	assert.Equal(t, types.NoLine, h.PrevMarkedLine(types.Main, 0, types.MarkerChanged))
}

func TestZoomCacheTracksEditorReports(t *testing.T) {
	h, _ := newCacheHost([]string{"a"}, []string{"b"})

	h.NoteZoom(types.Main, 14)
	assert.Equal(t, 14, h.Zoom(types.Main))
	assert.Zero(t, h.Zoom(types.Sub))

	h.NoteZoom(types.Main, 16)
	assert.Equal(t, 16, h.Zoom(types.Main))

	// An unknown size only updates the cache; nothing is written to the
	// editor, so there is no font to compound on repeated calls.
	h.SetZoom(types.Sub, 0)
	assert.Zero(t, h.Zoom(types.Sub))
}
