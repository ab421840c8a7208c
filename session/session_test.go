package session

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comparetab/settings"
	"comparetab/types"
	"comparetab/view"
)

// loop queues scheduled callbacks instead of running them, so tests stay
// deterministic and single-goroutine.
type loop struct {
	mu  sync.Mutex
	fns []func()
}

func (l *loop) run(fn func()) {
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
}

func newTestSession(mainLines, subLines []string, st settings.Settings) (*Session, *view.Fake) {
	f := view.NewFake(len(mainLines), len(subLines))
	f.SetLines(types.Main, mainLines)
	f.SetLines(types.Sub, subLines)

	return New(f, st, (&loop{}).run), f
}

func numbered(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "line " + strconv.Itoa(i)
	}
	return lines
}

func start(t *testing.T, s *Session, opt types.CompareOptions) *Pair {
	t.Helper()

	tag := s.StartCompare(FileSpec{BuffID: 1, Path: "left.txt"}, FileSpec{BuffID: 2, Path: "right.txt"}, opt)
	require.Equal(t, types.CompareMismatch, tag)
	require.NotNil(t, s.Active())

	return s.Active()
}

func TestStartCompareRegistersMismatchedPair(t *testing.T) {
	main := []string{"a", "b", "c"}
	sub := []string{"a", "x", "c"}

	s, f := newTestSession(main, sub, settings.Default())

	p := start(t, s, types.CompareOptions{})

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 1, p.Counts.Changed)
	assert.NotZero(t, f.Marker(types.Main, 1)&types.MarkerChanged)
	assert.NotZero(t, f.Marker(types.Sub, 1)&types.MarkerChanged)
	assert.True(t, p.Table.Monotonic())
}

func TestStartCompareOnMatchingDocsRegistersNothing(t *testing.T) {
	lines := numbered(5)

	s, _ := newTestSession(lines, lines, settings.Default())

	tag := s.StartCompare(FileSpec{BuffID: 1}, FileSpec{BuffID: 2}, types.CompareOptions{})

	assert.Equal(t, types.CompareMatch, tag)
	assert.Nil(t, s.Active())
}

func TestStatusHookPublishesCountsAndClears(t *testing.T) {
	main := []string{"a", "b", "c"}
	sub := []string{"a", "x", "c"}

	s, _ := newTestSession(main, sub, settings.Default())

	var counts []types.DiffCounts
	var stales []bool
	s.Status = func(c types.DiffCounts, stale bool) {
		counts = append(counts, c)
		stales = append(stales, stale)
	}

	start(t, s, types.CompareOptions{})

	require.NotEmpty(t, counts)
	assert.Equal(t, 1, counts[len(counts)-1].Changed)
	assert.False(t, stales[len(stales)-1])

	s.ClosePair(1)

	assert.Equal(t, types.DiffCounts{}, counts[len(counts)-1])
}

func TestStartCompareAgainstLoadsSubDocument(t *testing.T) {
	main := []string{"a", "b", "c"}

	s, f := newTestSession(main, []string{"stale"}, settings.Default())

	tag := s.StartCompareAgainst(
		FileSpec{BuffID: 1, Path: "file.txt"},
		FileSpec{BuffID: 2, Path: "file.txt", Temp: TempLastSaved},
		"a\nx\nc\n",
		types.CompareOptions{},
	)

	require.Equal(t, types.CompareMismatch, tag)
	assert.Equal(t, []string{"a", "x", "c"}, f.Lines(types.Sub))

	p := s.Active()
	require.NotNil(t, p)
	assert.Equal(t, TempLastSaved, p.File(types.Sub).Temp)
	assert.Equal(t, TempNone, p.File(types.Main).Temp)
}

func TestGoToFirstDiffAfterCompare(t *testing.T) {
	main := numbered(50)
	main[10] = "changed"

	s, f := newTestSession(main, numbered(50), settings.Default())

	start(t, s, types.CompareOptions{})
	s.alignTick()

	assert.Equal(t, 10, f.CaretLine(types.Main))
	assert.False(t, s.aligner.Busy())
}

func TestInlineEditMarksPairDirty(t *testing.T) {
	main := numbered(20)
	main[10] = "changed"

	s, _ := newTestSession(main, numbered(20), settings.Default())

	p := start(t, s, types.CompareOptions{})

	s.OnModified(types.Main, 5, 0, types.ActionUser)

	assert.True(t, p.CompareDirty)
	assert.True(t, p.ManuallyChanged)
}

func TestGuardDropsEchoedNotifications(t *testing.T) {
	main := numbered(20)
	main[10] = "changed"

	s, _ := newTestSession(main, numbered(20), settings.Default())

	p := start(t, s, types.CompareOptions{})

	release := s.hold()
	s.OnModified(types.Main, 5, 0, types.ActionUser)
	release()

	assert.False(t, p.CompareDirty)
}

func TestInsertShiftsAlignment(t *testing.T) {
	main := numbered(50)
	main[10] = "changed"

	s, f := newTestSession(main, numbered(50), settings.Default())

	p := start(t, s, types.CompareOptions{})

	f.InsertText(types.Main, f.LineStart(types.Main, 3), "new one\nnew two\n")
	s.OnModified(types.Main, 3, 2, types.ActionUser)

	assert.Equal(t, 2, p.Table.MappedLine(types.Main, 2))
	assert.Equal(t, 10, p.Table.MappedLine(types.Main, 12))
	assert.True(t, p.Table.Monotonic())
}

func TestDeleteUndoRestoresMarkersAndAlignment(t *testing.T) {
	main := numbered(20)
	main[10] = "changed"

	s, f := newTestSession(main, numbered(20), settings.Default())

	p := start(t, s, types.CompareOptions{})
	tableLen := len(p.Table)

	deleted := f.TextRange(types.Main, f.LineStart(types.Main, 8), f.LineStart(types.Main, 13))

	s.OnBeforeDelete(types.Main, 8, 13, types.ActionUser)
	f.DeleteRange(types.Main, f.LineStart(types.Main, 8), len(deleted))
	s.OnModified(types.Main, 8, -5, types.ActionUser)

	assert.True(t, p.CompareDirty)
	assert.Less(t, len(p.Table), tableLen)

	// Make the marker restore observable.
	f.ClearMarkers(types.Main, 0, 20)

	f.InsertText(types.Main, f.LineStart(types.Main, 8), deleted)
	s.OnModified(types.Main, 8, 5, types.ActionUndo)

	assert.NotZero(t, f.Marker(types.Main, 10)&types.MarkerChanged)
	assert.Equal(t, tableLen, len(p.Table))
	assert.Equal(t, 10, p.Table.MappedLine(types.Main, 10))
}

func TestEqualizeUndoRestoresCopiedSectionMarks(t *testing.T) {
	main := []string{"a", "b", "c", "d"}
	sub := []string{"a", "x", "y", "c", "d"}

	s, f := newTestSession(main, sub, settings.Default())

	p := start(t, s, types.CompareOptions{})

	// The host would emit these notifications while an equalize replaces
	// sub lines 1-2 with main line 1.
	p.inEqualize++
	s.copiedSectionMarks = f.Markers(types.Main, 1, 1)
	subBlock := f.TextRange(types.Sub, f.LineStart(types.Sub, 1), f.LineStart(types.Sub, 3))

	s.OnBeforeDelete(types.Sub, 1, 3, types.ActionUser)
	f.DeleteRange(types.Sub, f.LineStart(types.Sub, 1), len(subBlock))
	s.OnModified(types.Sub, 1, -2, types.ActionUser)

	f.InsertText(types.Sub, f.LineStart(types.Sub, 1), "b\n")
	s.OnModified(types.Sub, 1, 1, types.ActionUser)
	p.inEqualize--

	assert.True(t, p.CompareDirty)
	assert.False(t, p.ManuallyChanged)

	// Wipe the source-side marker so the undo restore is observable.
	f.ClearMarkers(types.Main, 1, 1)

	// The user undoes the equalize: the replace halves arrive as one
	// suppressed delete plus the restoring insert.
	s.OnBeforeDelete(types.Sub, 1, 2, types.ActionUndo)
	f.DeleteRange(types.Sub, f.LineStart(types.Sub, 1), 2)
	s.OnModified(types.Sub, 1, -1, types.ActionUndo)

	f.InsertText(types.Sub, f.LineStart(types.Sub, 1), subBlock)
	s.OnModified(types.Sub, 1, 2, types.ActionUndo)

	assert.NotZero(t, f.Marker(types.Main, 1)&types.MarkerChanged)
	assert.NotZero(t, f.Marker(types.Sub, 1)&types.MarkerChanged)
	assert.NotZero(t, f.Marker(types.Sub, 2)&types.MarkerAdded)
}

func TestRecompareOnChangeSchedulesReDiff(t *testing.T) {
	st := settings.Default()
	st.RecompareOnChange = true

	main := numbered(20)
	main[10] = "changed"

	s, f := newTestSession(main, numbered(20), st)

	p := start(t, s, types.CompareOptions{})

	s.OnModified(types.Main, 5, 1, types.ActionUser)
	assert.Equal(t, recompareDelayLines, p.autoUpdate)
	assert.True(t, s.updateQ.Pending())

	s.OnModified(types.Main, 5, 0, types.ActionUser)
	assert.Equal(t, recompareDelayInline, p.autoUpdate)

	lines := f.Lines(types.Main)
	lines[5] = "edited"
	f.SetLines(types.Main, lines)

	s.recompareTick()

	assert.False(t, p.CompareDirty)
	assert.Zero(t, p.autoUpdate)
	assert.NotZero(t, f.Marker(types.Main, 5)&types.MarkerChanged)
}

func TestRecompareClosesPairWhenDocsMatchAgain(t *testing.T) {
	st := settings.Default()
	st.PromptToCloseOnMatch = true

	main := numbered(20)
	main[10] = "changed"

	s, f := newTestSession(main, numbered(20), st)

	start(t, s, types.CompareOptions{})

	lines := f.Lines(types.Main)
	lines[10] = "line 10"
	f.SetLines(types.Main, lines)

	s.Recompare()

	assert.Nil(t, s.Active())
	assert.Zero(t, f.Marker(types.Main, 10))
}

func TestSelectionCompareAdjustsOnInsertAbove(t *testing.T) {
	main := numbered(20)
	main[6] = "changed"

	opt := types.CompareOptions{
		SelectionCompare: true,
		Selections: [2]types.Selection{
			{First: 5, Last: 8},
			{First: 5, Last: 8},
		},
	}

	s, f := newTestSession(main, numbered(20), settings.Default())

	p := start(t, s, opt)

	f.InsertText(types.Main, f.LineStart(types.Main, 1), "new a\nnew b\nnew c\n")
	s.OnModified(types.Main, 1, 3, types.ActionUser)

	assert.Equal(t, types.Selection{First: 8, Last: 11}, p.Options.Selections[types.Main])
	assert.Equal(t, types.Selection{First: 5, Last: 8}, p.Options.Selections[types.Sub])
	assert.False(t, p.CompareDirty)
	assert.True(t, s.forceRealign)
}

func TestSelectionCompareTeardownWhenSelectionCollapses(t *testing.T) {
	main := numbered(10)
	main[3] = "changed"

	opt := types.CompareOptions{
		SelectionCompare: true,
		Selections: [2]types.Selection{
			{First: 2, Last: 4},
			{First: 2, Last: 4},
		},
	}

	s, f := newTestSession(main, numbered(10), settings.Default())

	start(t, s, opt)

	deleted := f.TextRange(types.Main, f.LineStart(types.Main, 1), f.LineStart(types.Main, 7))
	s.OnBeforeDelete(types.Main, 1, 7, types.ActionUser)
	f.DeleteRange(types.Main, f.LineStart(types.Main, 1), len(deleted))
	s.OnModified(types.Main, 1, -6, types.ActionUser)

	assert.Nil(t, s.Active())
}

func TestViewportChangePinsAndMirrors(t *testing.T) {
	st := settings.Default()
	st.GoToFirstDiff = false

	main := numbered(50)
	main[10] = "changed"

	s, f := newTestSession(main, numbered(50), st)

	start(t, s, types.CompareOptions{})

	f.SetFirstVisibleLine(types.Main, 10)
	s.OnViewportChanged(types.Main)

	assert.Equal(t, 10, f.FirstVisibleLine(types.Sub))
	assert.True(t, s.aligner.Busy())

	s.alignTick()

	assert.False(t, s.aligner.Busy())
}

func TestZoomMirrorsToOtherView(t *testing.T) {
	main := numbered(10)
	main[3] = "changed"

	s, f := newTestSession(main, numbered(10), settings.Default())

	start(t, s, types.CompareOptions{})

	f.SetZoom(types.Main, 2)
	s.OnZoom(types.Main)

	assert.Equal(t, 2, f.Zoom(types.Sub))
}

func TestJumpArrowMarksBlankAdjacentLine(t *testing.T) {
	main := numbered(10)
	main[3] = "changed"

	s, f := newTestSession(main, numbered(10), settings.Default())

	start(t, s, types.CompareOptions{})

	// Filler below sub line 4: lines 4 and 5 neighbor it.
	f.SetAnnotation(types.Sub, 4, 2, "")

	s.markBlankAdjacent(types.Location{View: int(types.Sub), Line: 5}, true)
	assert.Equal(t, types.MarkerArrowDown, f.Marker(types.Sub, 5))

	// The next jump replaces the previous arrow.
	s.markBlankAdjacent(types.Location{View: int(types.Sub), Line: 4}, false)
	assert.Zero(t, f.Marker(types.Sub, 5))
	assert.Equal(t, types.MarkerArrowUp, f.Marker(types.Sub, 4))

	s.expireArrowMark()
	assert.Zero(t, f.Marker(types.Sub, 4))
}

func TestJumpArrowResolvesBlinkInPlaceToCaretLine(t *testing.T) {
	main := numbered(10)
	main[3] = "changed"

	s, f := newTestSession(main, numbered(10), settings.Default())

	start(t, s, types.CompareOptions{})

	f.SetAnnotation(types.Sub, 4, 1, "")
	f.SetEmptySelection(types.Sub, f.LineStart(types.Sub, 5))

	s.markBlankAdjacent(types.Location{View: int(types.Sub), Line: types.NoLine}, true)
	assert.Equal(t, types.MarkerArrowDown, f.Marker(types.Sub, 5))
}

func TestJumpArrowSkipsMarkedAndNonAdjacentLines(t *testing.T) {
	main := numbered(10)
	main[3] = "changed"

	s, f := newTestSession(main, numbered(10), settings.Default())

	start(t, s, types.CompareOptions{})

	// FirstDiff lands on the changed line itself; it carries a diff marker,
	// so no arrow appears.
	loc := s.FirstDiff()
	assert.Equal(t, 3, loc.Line)
	assert.False(t, s.arrowOn)

	// An unmarked line with no neighboring filler gets none either.
	s.markBlankAdjacent(types.Location{View: int(types.Sub), Line: 7}, true)
	assert.False(t, s.arrowOn)
	assert.Zero(t, f.Marker(types.Sub, 7))
}

func TestBufferActivationSwitchesActivePair(t *testing.T) {
	main := numbered(10)
	main[3] = "changed"

	s, _ := newTestSession(main, numbered(10), settings.Default())

	p := start(t, s, types.CompareOptions{})

	s.OnBufferActivated(99)
	assert.Nil(t, s.Active())

	s.OnBufferActivated(2)
	assert.Equal(t, p, s.Active())
}

func TestRepeatCompareReplacesPairOnSameBuffers(t *testing.T) {
	main := numbered(10)
	main[3] = "changed"

	s, _ := newTestSession(main, numbered(10), settings.Default())

	first := start(t, s, types.CompareOptions{})
	second := start(t, s, types.CompareOptions{})

	assert.NotSame(t, first, second)
	assert.Len(t, s.pairs, 1)

	s.OnBufferActivated(1)
	assert.Same(t, second, s.Active())

	s.ClosePair(1)
	assert.Empty(t, s.pairs)
	assert.Nil(t, s.Active())
}

func TestSavedDocumentIsSnapshotted(t *testing.T) {
	main := numbered(3)
	main[1] = "changed"

	s, f := newTestSession(main, numbered(3), settings.Default())

	start(t, s, types.CompareOptions{})

	s.OnSaved(types.Main)

	text, ok, err := s.Snapshots().Get("left.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.TextRange(types.Main, 0, f.TextLength(types.Main)), text)
}

func TestNextDiffSequenceWithWrapAround(t *testing.T) {
	st := settings.Default()
	st.GoToFirstDiff = false
	st.WrapAround = true

	main := numbered(50)
	main[10] = "first change"
	main[40] = "second change"

	s, f := newTestSession(main, numbered(50), st)

	start(t, s, types.CompareOptions{})

	s.NextDiff()
	assert.Equal(t, 10, f.CaretLine(types.Main))

	s.NextDiff()
	assert.Equal(t, 40, f.CaretLine(types.Main))

	s.NextDiff()
	assert.Equal(t, 10, f.CaretLine(types.Main))
	assert.Equal(t, 1, f.Flashes)
}

func TestMarginClickSelectsBlock(t *testing.T) {
	base := numbered(18)
	main := append(append(append([]string{}, base[:5]...), "extra one", "extra two"), base[5:]...)

	s, f := newTestSession(main, base, settings.Default())

	start(t, s, types.CompareOptions{})

	s.OnMarginClicked(types.Main, 5, false)

	selStart, selEnd := f.Selection(types.Main)
	assert.Equal(t, f.LineStart(types.Main, 5), selStart)
	assert.Equal(t, f.LineStart(types.Main, 7), selEnd)
	assert.False(t, s.tempSelOn)
}

func TestMarginClickCtrlEqualizesBlock(t *testing.T) {
	main := []string{"a", "b", "c", "d"}
	sub := []string{"a", "x", "y", "c", "d"}

	s, f := newTestSession(main, sub, settings.Default())

	p := start(t, s, types.CompareOptions{})

	s.OnMarginClicked(types.Sub, 1, true)

	assert.Equal(t, []string{"a", "b", "c", "d"}, f.Lines(types.Sub))
	assert.Equal(t, []types.MarkerMask{types.MarkerChanged}, s.copiedSectionMarks)
	assert.Zero(t, p.inEqualize)
}
