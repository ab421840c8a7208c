package viewsync

import (
	"testing"

	"comparetab/align"
	"comparetab/nav"
	"comparetab/types"
	"comparetab/view"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncScrollMirrorsBiasView(t *testing.T) {
	f := view.NewFake(100, 100)
	f.SetFirstVisibleLine(types.Main, 10)
	f.ScrollOps = nil

	SyncViews(f, nil, false, types.Main)

	assert.Equal(t, 10, f.FirstVisibleLine(types.Sub))
	assert.Equal(t, []view.ScrollOp{{View: types.Sub, Visible: 10}}, f.ScrollOps)
}

func TestSyncScrollIsIdempotent(t *testing.T) {
	f := view.NewFake(100, 100)
	f.SetFirstVisibleLine(types.Main, 10)

	SyncViews(f, nil, false, types.Main)
	ops := len(f.ScrollOps)

	SyncViews(f, nil, false, types.Main)

	assert.Equal(t, ops, len(f.ScrollOps), "second sync must issue no scroll")
}

func TestSyncScrollClampsToOtherDocEnd(t *testing.T) {
	f := view.NewFake(100, 20)
	f.SetFirstVisibleLine(types.Main, 50)
	f.ScrollOps = nil

	SyncViews(f, nil, false, types.Main)

	assert.Equal(t, 19, f.FirstVisibleLine(types.Sub))
}

func TestSyncScrollPastOwnEndDragsOther(t *testing.T) {
	f := view.NewFake(30, 100)
	f.SetFirstVisibleLine(types.Main, 29)

	SyncViews(f, nil, false, types.Main)

	assert.Equal(t, 29, f.FirstVisibleLine(types.Sub))
}

func TestSyncCaretFollowsFocusedView(t *testing.T) {
	f := view.NewFake(100, 100)
	f.SetEmptySelection(types.Main, f.LineStart(types.Main, 7))
	f.CaretOps = nil

	SyncViews(f, nil, true, types.Main)

	assert.Equal(t, 7, f.CaretLine(types.Sub))
}

func TestSyncCaretKeepsOtherViewSelection(t *testing.T) {
	f := view.NewFake(100, 100)
	f.SetEmptySelection(types.Main, f.LineStart(types.Main, 7))
	f.SetSelection(types.Sub, f.LineStart(types.Sub, 2), f.LineStart(types.Sub, 4))
	f.CaretOps = nil

	SyncViews(f, nil, true, types.Main)

	assert.Empty(t, f.CaretOps, "caret sync must not destroy a selection")
}

func TestAlignDiffsLevelsAnchorsAndSettles(t *testing.T) {
	f := view.NewFake(50, 50)
	tab := align.Table{{
		Main: align.Anchor{Line: 10},
		Sub:  align.Anchor{Line: 8},
	}}

	require.True(t, IsAlignmentNeeded(f, tab, types.Main))

	AlignDiffs(f, tab, types.CompareOptions{})

	assert.Equal(t, 2, f.Annotation(types.Sub, 7), "two filler rows above sub line 8")
	assert.Equal(t, f.VisibleFromDocLine(types.Main, 10), f.VisibleFromDocLine(types.Sub, 8))
	assert.False(t, IsAlignmentNeeded(f, tab, types.Main))
}

func TestAlignDiffsReplacesStaleFiller(t *testing.T) {
	f := view.NewFake(50, 50)
	f.SetAnnotation(types.Sub, 7, 5, "")

	tab := align.Table{{
		Main: align.Anchor{Line: 10},
		Sub:  align.Anchor{Line: 8},
	}}

	AlignDiffs(f, tab, types.CompareOptions{})

	assert.Equal(t, 2, f.Annotation(types.Sub, 7))
}

func TestAlignDiffsCompensatesSkippedLineZero(t *testing.T) {
	f := view.NewFake(50, 50)
	tab := align.Table{
		{Main: align.Anchor{Line: 0}, Sub: align.Anchor{Line: 3}},
		{Main: align.Anchor{Line: 10}, Sub: align.Anchor{Line: 13}},
	}

	AlignDiffs(f, tab, types.CompareOptions{})

	// The unalignable line-0 anchor is made up for at the next anchor,
	// with an extra marker row on both sides.
	assert.Equal(t, 4, f.Annotation(types.Main, 9))
	assert.Equal(t, 1, f.Annotation(types.Sub, 12))
}

func TestAlignDiffsFramesComparedSelections(t *testing.T) {
	f := view.NewFake(50, 50)

	opt := types.CompareOptions{SelectionCompare: true}
	opt.Selections[types.Main] = types.Selection{First: 10, Last: 20}
	opt.Selections[types.Sub] = types.Selection{First: 5, Last: 15}

	AlignDiffs(f, nil, opt)

	assert.Equal(t, 1, f.Annotation(types.Main, 9), "start frame above main selection")
	assert.Equal(t, 1, f.Annotation(types.Sub, 4), "start frame above sub selection")
	assert.Equal(t, 1, f.Annotation(types.Main, 20), "end frame below main selection")
	assert.Equal(t, 1, f.Annotation(types.Sub, 15), "end frame below sub selection")
}

func TestSavedLocationRestoreAfterGeometryChange(t *testing.T) {
	f := view.NewFake(100, 100)
	f.SetEmptySelection(types.Main, f.LineStart(types.Main, 30))
	f.SetFirstVisibleLine(types.Main, 25)

	loc := SaveLocation(f, types.Main)

	// Filler inserted above shifts the caret line by three visual rows.
	f.SetAnnotation(types.Main, 10, 3, "")

	assert.True(t, loc.Restore(f))
	assert.Equal(t, 28, f.FirstVisibleLine(types.Main), "caret keeps its offset from the viewport top")
}

func TestAlignerGoToFirstAfterFreshCompare(t *testing.T) {
	f := view.NewFake(100, 100)
	f.SetMarker(types.Main, 10, types.MarkerChanged)
	f.SetMarker(types.Sub, 10, types.MarkerChanged)

	tab := align.Table{{
		Main: align.Anchor{Line: 10, Mask: types.MarkerChanged},
		Sub:  align.Anchor{Line: 10, Mask: types.MarkerChanged},
	}}

	a := NewAligner(f)
	a.RequestGoToFirst()

	opt := nav.Options{FollowCaret: true}

	retry, done := a.Run(tab, types.CompareOptions{}, opt, false)

	assert.False(t, retry)
	assert.True(t, done)
	assert.Equal(t, 10, f.CaretLine(types.Main), "caret lands on the first diff")

	// The request is consumed; the next pass is idle.
	retry, done = a.Run(tab, types.CompareOptions{}, opt, false)
	assert.False(t, retry)
	assert.False(t, done)
}

func TestAlignerRetriesOnceThenSettles(t *testing.T) {
	f := view.NewFake(50, 50)
	tab := align.Table{{
		Main: align.Anchor{Line: 10},
		Sub:  align.Anchor{Line: 8},
	}}

	a := NewAligner(f)

	retry, done := a.Run(tab, types.CompareOptions{}, nav.Options{}, true)
	assert.True(t, retry, "first forced pass schedules a retry")
	assert.False(t, done)

	retry, done = a.Run(tab, types.CompareOptions{}, nav.Options{}, false)
	assert.False(t, retry, "views are level, no further pass")
	assert.True(t, done)
}

func TestAlignerRetryCapStopsOscillation(t *testing.T) {
	f := view.NewFake(50, 50)
	tab := align.Table{{
		Main: align.Anchor{Line: 10},
		Sub:  align.Anchor{Line: 8},
	}}

	a := NewAligner(f)

	retry, done := a.Run(tab, types.CompareOptions{}, nav.Options{}, true)
	assert.True(t, retry)
	assert.False(t, done)

	// A second forced pass trips the cap instead of retrying forever.
	retry, done = a.Run(tab, types.CompareOptions{}, nav.Options{}, true)
	assert.False(t, retry)
	assert.True(t, done)
}

func TestAlignerIdleWithoutDrift(t *testing.T) {
	f := view.NewFake(50, 50)
	tab := align.Table{{
		Main: align.Anchor{Line: 10},
		Sub:  align.Anchor{Line: 10},
	}}

	a := NewAligner(f)

	retry, done := a.Run(tab, types.CompareOptions{}, nav.Options{}, false)

	assert.False(t, retry)
	assert.False(t, done)
}
