// Package viewsync keeps the two compared views visually locked together:
// it mirrors scrolling and caret movement through the alignment table and
// maintains the blank filler annotations that level both documents.
//
// The functions here issue host commands directly; callers are expected to
// suppress change-notification feedback around them.
package viewsync

import (
	"comparetab/align"
	"comparetab/logger"
	"comparetab/nav"
	"comparetab/types"
	"comparetab/view"
)

// SyncViews mirrors the bias view's viewport onto the other view and, when
// followCaret is set and the bias view is focused, places the other view's
// caret on the visually matching line unless a selection would be destroyed.
func SyncViews(h view.Host, tab align.Table, followCaret bool, bias types.Side) {
	other := bias.Other()

	firstVisible := h.FirstVisibleLine(bias)
	otherFirstVisible := h.FirstVisibleLine(other)

	firstLine := h.DocLineFromVisible(bias, firstVisible)

	otherLine := types.NoLine

	if firstLine < h.LineCount(bias)-1 {
		if firstVisible != otherFirstVisible {
			logger.Debug("syncing to %v view, visible doc line: %d", bias, firstLine+1)

			otherLastVisible := h.VisibleFromDocLine(other, h.LineCount(other)-1)

			if firstVisible > otherLastVisible {
				otherLine = otherLastVisible
			} else {
				otherLine = firstVisible
			}
		}
	} else if firstVisible > otherFirstVisible {
		// Bias view is scrolled past its own content; drag the other view
		// along so trailing filler stays level.
		otherLine = firstVisible
	}

	if otherLine >= 0 {
		h.SetFirstVisibleLine(other, otherLine)
	}

	if followCaret && bias == h.FocusedView() {
		otherCaret := nav.MatchingLine(h, tab, bias, h.CaretLine(bias))

		if otherCaret != h.CaretLine(other) && !h.HasSelection(other) {
			var pos int
			if view.IsLineAnnotated(h, other, otherCaret) && view.IsLineWrapped(h, other, otherCaret) {
				pos = h.LineEnd(other, otherCaret)
			} else {
				pos = h.LineStart(other, otherCaret)
			}

			h.SetEmptySelection(other, pos)
		}
	}
}

// IsAlignmentNeeded reports whether any anchor around the given view's
// viewport has drifted out of visual alignment (equal change masks but
// different visible positions). Line-0 anchors are skipped because filler
// cannot be rendered above the first line.
func IsAlignmentNeeded(h view.Host, tab align.Table, v types.Side) bool {
	firstLine := view.FirstLine(h, v)
	lastLine := view.LastLine(h, v)

	i := tab.IndexFirstAtOrAfter(v, firstLine)

	if i >= len(tab) {
		return false
	}

	// Start one anchor earlier - its filler may span into the viewport.
	if i > 0 {
		i--
	}

	for i < len(tab) && (tab[i].Main.Line == 0 || tab[i].Sub.Line == 0) {
		i++
	}

	for ; i < len(tab); i++ {
		if tab[i].Main.Mask == tab[i].Sub.Mask &&
			h.VisibleFromDocLine(types.Main, tab[i].Main.Line) !=
				h.VisibleFromDocLine(types.Sub, tab[i].Sub.Line) {
			return true
		}

		if tab[i].Anchor(v).Line > lastLine {
			break
		}
	}

	return false
}

const lineZeroAlignNote = "Lines above cannot be properly aligned.\n" +
	"If you want to see them aligned,\n" +
	"please manually insert one empty line\n" +
	"in the beginning of each file and re-compare."

const (
	selStartNote = "--- Selection Compare Block Start ---"
	selEndNote   = "--- Selection Compare Block End ---"
)

// addBlank renders height blank rows above line by annotating the line
// before it.
func addBlank(h view.Host, v types.Side, line, height int, note string) {
	if line < 1 || height < 1 {
		return
	}
	h.SetAnnotation(v, line-1, height, note)
}

// AlignDiffs walks the alignment table and re-levels both views with blank
// filler so every anchor pair shares a visible position. Anchors on line 0
// cannot be aligned directly; the deficit is compensated at the next anchor
// with an explanatory note.
func AlignDiffs(h view.Host, tab align.Table, opt types.CompareOptions) {
	lineZeroSkipped := false

	mainEnd := h.LineCount(types.Main) - 1
	subEnd := h.LineCount(types.Sub) - 1

	for i := 0; i < len(tab) && tab[i].Main.Line <= mainEnd && tab[i].Sub.Line <= subEnd; i++ {
		if tab[i].Main.Line > 0 && h.Annotation(types.Main, tab[i].Main.Line-1) > 0 {
			h.ClearAnnotation(types.Main, tab[i].Main.Line-1)
		}
		if tab[i].Sub.Line > 0 && h.Annotation(types.Sub, tab[i].Sub.Line-1) > 0 {
			h.ClearAnnotation(types.Sub, tab[i].Sub.Line-1)
		}

		mismatchLen := h.VisibleFromDocLine(types.Main, tab[i].Main.Line) -
			h.VisibleFromDocLine(types.Sub, tab[i].Sub.Line)

		if mismatchLen != 0 && (tab[i].Main.Line == 0 || tab[i].Sub.Line == 0) {
			lineZeroSkipped = true
			continue
		}

		if mismatchLen > 0 {
			if i+1 < len(tab) && tab[i].Sub.Line == tab[i+1].Sub.Line {
				continue
			}

			if lineZeroSkipped {
				addBlank(h, types.Main, tab[i].Main.Line, 1, lineZeroAlignNote)
				addBlank(h, types.Sub, tab[i].Sub.Line, mismatchLen+1, lineZeroAlignNote)

				lineZeroSkipped = false
			} else {
				addBlank(h, types.Sub, tab[i].Sub.Line, mismatchLen, "")
			}
		} else if mismatchLen < 0 {
			if i+1 < len(tab) && tab[i].Main.Line == tab[i+1].Main.Line {
				continue
			}

			if lineZeroSkipped {
				addBlank(h, types.Main, tab[i].Main.Line, -mismatchLen+1, lineZeroAlignNote)
				addBlank(h, types.Sub, tab[i].Sub.Line, 1, lineZeroAlignNote)

				lineZeroSkipped = false
			} else {
				addBlank(h, types.Main, tab[i].Main.Line, -mismatchLen, "")
			}
		}
	}

	// Frame compared selections so their bounds stay obvious.
	if opt.SelectionCompare {
		selMain := opt.Selections[types.Main]
		selSub := opt.Selections[types.Sub]

		if selMain.First > 0 && selSub.First > 0 {
			mainAnn := h.Annotation(types.Main, selMain.First-1)
			subAnn := h.Annotation(types.Sub, selSub.First-1)

			if mainAnn == 0 || subAnn == 0 {
				mainAnn++
				subAnn++
			}

			addBlank(h, types.Main, selMain.First, mainAnn, selStartNote)
			addBlank(h, types.Sub, selSub.First, subAnn, selStartNote)
		}

		mainAnn := h.Annotation(types.Main, selMain.Last)
		subAnn := h.Annotation(types.Sub, selSub.Last)

		if mainAnn == 0 || subAnn == 0 {
			mainAnn++
			subAnn++
		}

		addBlank(h, types.Main, selMain.Last+1, mainAnn, selEndNote)
		addBlank(h, types.Sub, selSub.Last+1, subAnn, selEndNote)
	}
}
