// Package nav computes where "next/previous/first/last difference" lands.
// It is stateless: every query gets the host, the current alignment table
// and the caller's starting lines, and returns a types.Location.
package nav

import (
	"comparetab/align"
	"comparetab/logger"
	"comparetab/types"
	"comparetab/view"
)

// Options are the navigation-relevant parts of the pair's compare options
// and the user settings.
type Options struct {
	// FindUnique targets lines unique to one side; a diff found in only one
	// view is then jumped to directly instead of being mapped across.
	FindUnique bool
	// FollowCaret scans from the caret and moves it on landing; otherwise
	// the viewport edge is the reference.
	FollowCaret bool
}

// MatchingLine maps a document line of one view to the other view's line at
// the same visual position. Filler keeps aligned content visually level, so
// the alignment anchor is preferred and the visual row is the fallback for
// lines that are not exact anchors.
func MatchingLine(h view.Host, tab align.Table, v types.Side, line int) int {
	if mapped := tab.MappedLine(v, line); mapped >= 0 {
		return mapped
	}
	return h.DocLineFromVisible(v.Other(), h.VisibleFromDocLine(v, line))
}

// isVisibleAdjacentAnnotation reports whether the filler adjacent to line in
// the scan direction has its rows inside the viewport.
func isVisibleAdjacentAnnotation(h view.Host, v types.Side, line int, down bool) bool {
	if !view.IsAdjacentAnnotation(h, v, line, down) {
		return false
	}

	var row int
	if down {
		row = h.VisibleFromDocLine(v, line) - 1
	} else {
		row = h.VisibleFromDocLine(v, line) + h.WrapCount(v, line)
	}

	first := h.FirstVisibleLine(v)
	return row >= first && row < first+h.LinesOnScreen(v)
}

// nextUnmarkedLine returns the first line at or after from carrying none of
// mask, or the line count if marks extend to the end of the document.
func nextUnmarkedLine(h view.Host, v types.Side, from int, mask types.MarkerMask) int {
	count := h.LineCount(v)
	l := from
	if l < 0 {
		l = 0
	}
	for ; l < count && h.Marker(v, l)&mask != 0; l++ {
	}
	return l
}

// prevUnmarkedLine returns the first line at or before from carrying none of
// mask, or types.NoLine if marks extend to the start of the document.
func prevUnmarkedLine(h view.Host, v types.Side, from int, mask types.MarkerMask) int {
	l := from
	if l >= h.LineCount(v) {
		l = h.LineCount(v) - 1
	}
	for ; l >= 0 && h.Marker(v, l)&mask != 0; l-- {
	}
	return l
}

// JumpToNextChange finds the next difference from the given per-view start
// lines and issues the scroll/caret commands to land on it. Corner queries
// (both start lines negative, or corner forced by the caller) go to the very
// first or last diff. It returns types.NoLocation when no diff remains, and
// (view, NoLine) when a corner query resolved to the position the caret is
// already at (blink in place).
func JumpToNextChange(h view.Host, tab align.Table, opt Options,
	mainStart, subStart int, down, goToCorner, doNotBlink bool) types.Location {

	v := h.FocusedView()
	otherView := v.Other()

	if !opt.FindUnique && !goToCorner {
		edgeLine := edge(h, v, down)
		currentLine := edgeLine
		if opt.FollowCaret {
			currentLine = h.CaretLine(v)
		}

		// The bias line may sit on a screen edge right next to an invisible
		// blank diff; land on it rather than skipping past.
		if !view.IsLineMarked(h, v, currentLine, types.MarkerMaskLine) &&
			view.IsAdjacentAnnotation(h, v, currentLine, down) &&
			!isVisibleAdjacentAnnotation(h, v, currentLine, down) &&
			view.IsLineMarked(h, otherView, MatchingLine(h, tab, v, currentLine)+1, types.MarkerMaskLine) {
			h.CenterAt(v, currentLine)
			return types.Location{View: int(v), Line: currentLine}
		}
	}

	isCorner := mainStart < 0 && subStart < 0

	if isCorner {
		if down {
			mainStart, subStart = 0, 0
		} else {
			mainStart = h.LineCount(types.Main) - 1
			subStart = h.LineCount(types.Sub) - 1
		}
	}

	var mainNext, subNext int
	if down {
		mainNext = h.NextMarkedLine(types.Main, mainStart, types.MarkerMaskLine)
		subNext = h.NextMarkedLine(types.Sub, subStart, types.MarkerMaskLine)
	} else {
		mainNext = h.PrevMarkedLine(types.Main, mainStart, types.MarkerMaskLine)
		subNext = h.PrevMarkedLine(types.Sub, subStart, types.MarkerMaskLine)
	}

	// A hit on the start line itself means "nothing new" except when the
	// corner itself is the query.
	if mainNext == mainStart && !isCorner {
		mainNext = types.NoLine
	}
	if subNext == subStart && !isCorner {
		subNext = types.NoLine
	}

	line := mainNext
	otherLine := subNext
	if v == types.Sub {
		line, otherLine = subNext, mainNext
	}

	if line < 0 {
		if otherLine < 0 {
			return types.NoLocation
		}

		if opt.FindUnique {
			v = otherView
			line = otherLine
		} else {
			line = MatchingLine(h, tab, otherView, otherLine)
		}
	} else if otherLine >= 0 {
		visible := h.VisibleFromDocLine(v, line)
		otherVisible := h.VisibleFromDocLine(otherView, otherLine)

		// Strict inequality: a visual tie keeps the bias view.
		switchViews := otherVisible < visible
		if !down {
			switchViews = otherVisible > visible
		}

		if switchViews {
			if opt.FindUnique {
				v = otherView
				line = otherLine
			} else {
				line = MatchingLine(h, tab, otherView, otherLine)
			}
		}
	}

	if opt.FindUnique && opt.FollowCaret {
		h.Focus(v)
	}

	// Backward landings on an annotated line settle past the filler onto
	// the real content line.
	if !down && view.IsLineAnnotated(h, v, line) {
		line++
	}

	// Reaching a corner without asking for it means navigation wrapped;
	// if the caret would not actually move, blink instead of jumping.
	if !goToCorner && isCorner {
		edgeLine := edge(h, v, down)
		currentLine := edgeLine
		if opt.FollowCaret {
			currentLine = h.CaretLine(v)
		}

		dontChangeLine := (down && currentLine <= line) || (!down && currentLine >= line)

		if dontChangeLine {
			lineToBlink := line

			if !h.IsLineVisible(v, line) {
				lineToBlink = edgeLine

				if (down && edgeLine > line) || (!down && edgeLine < line) {
					dontChangeLine = false
				}
			}

			if dontChangeLine {
				h.BlinkLine(v, lineToBlink)
				return types.Location{View: int(v), Line: types.NoLine}
			}
		}
	}

	logger.Debug("jump to %v view, center doc line: %d", v, line+1)

	if !h.IsLineVisible(v, line) ||
		(!view.IsLineMarked(h, v, line, types.MarkerMaskLine) &&
			view.IsAdjacentAnnotation(h, v, line, down) &&
			!isVisibleAdjacentAnnotation(h, v, line, down)) {
		h.CenterAt(v, line)
		doNotBlink = true
	}

	if opt.FollowCaret && line != h.CaretLine(v) {
		var pos int
		if down && view.IsLineAnnotated(h, v, line) && view.IsLineWrapped(h, v, line) &&
			!view.IsLineMarked(h, v, line, types.MarkerMaskLine) {
			pos = h.LineEnd(v, line)
		} else {
			pos = h.LineStart(v, line)
		}

		h.SetEmptySelection(v, pos)

		doNotBlink = true
		return types.Location{View: int(v), Line: types.NoLine}
	}

	if !doNotBlink {
		h.BlinkLine(v, line)
	}

	return types.Location{View: int(v), Line: line}
}

// JumpToFirstChange goes to the first difference of the whole document.
// The sentinel start lines make it a corner query so a diff on line 0 is
// still accepted.
func JumpToFirstChange(h view.Host, tab align.Table, opt Options, goToCorner, doNotBlink bool) types.Location {
	return JumpToNextChange(h, tab, opt, types.NoLine, types.NoLine, true, goToCorner, doNotBlink)
}

// JumpToLastChange goes to the last difference of the whole document.
func JumpToLastChange(h view.Host, tab align.Table, opt Options, goToCorner, doNotBlink bool) types.Location {
	return JumpToNextChange(h, tab, opt, types.NoLine, types.NoLine, false, goToCorner, doNotBlink)
}

// JumpToChange is the next/previous entry point: it scans locally from the
// caret or viewport edge and falls back to the corner result when the local
// scan is exhausted: it wraps around (with window flash feedback) when
// wrapAround is set, and pins to the last/first diff otherwise.
func JumpToChange(h view.Host, tab align.Table, opt Options, down, wrapAround bool) types.Location {
	var loc types.Location

	mainStart, subStart := 0, 0

	currentView := h.FocusedView()
	otherView := currentView.Other()

	currentLine := &mainStart
	otherLine := &subStart
	if currentView == types.Sub {
		currentLine, otherLine = &subStart, &mainStart
	}

	if down {
		if opt.FollowCaret {
			*currentLine = h.CaretLine(currentView)
		} else {
			*currentLine = view.LastLine(h, currentView)
		}

		if opt.FollowCaret && view.IsLineMarked(h, currentView, *currentLine, types.MarkerMaskLine) &&
			*currentLine > view.LastLine(h, currentView) {
			// Current line is marked but scrolled out - bring it into view.
			h.CenterAt(currentView, *currentLine)
			loc = types.Location{View: int(currentView), Line: *currentLine}
		} else {
			notAnnotated := !view.IsLineAnnotated(h, currentView, *currentLine)

			if !notAnnotated && isVisibleAdjacentAnnotation(h, currentView, *currentLine, down) {
				*currentLine++
			}

			if opt.FollowCaret {
				*otherLine = MatchingLine(h, tab, currentView, *currentLine)
			} else {
				*otherLine = view.LastLine(h, otherView)
			}

			if notAnnotated && view.IsLineAnnotated(h, otherView, *otherLine) {
				*otherLine++
			}

			loc = JumpToNextChange(h, tab, opt,
				nextUnmarkedLine(h, types.Main, mainStart, types.MarkerMaskLine),
				nextUnmarkedLine(h, types.Sub, subStart, types.MarkerMaskLine),
				down, false, false)
		}
	} else {
		if opt.FollowCaret {
			*currentLine = h.CaretLine(currentView)
		} else {
			*currentLine = view.FirstLine(h, currentView)
		}

		if opt.FollowCaret && view.IsLineMarked(h, currentView, *currentLine, types.MarkerMaskLine) &&
			*currentLine < view.FirstLine(h, currentView) {
			h.CenterAt(currentView, *currentLine)
			loc = types.Location{View: int(currentView), Line: *currentLine}
		} else {
			if isVisibleAdjacentAnnotation(h, currentView, *currentLine, down) {
				*currentLine--
			}

			if opt.FollowCaret {
				*otherLine = MatchingLine(h, tab, currentView, *currentLine)
			} else {
				*otherLine = view.FirstLine(h, otherView)
			}

			loc = JumpToNextChange(h, tab, opt,
				prevUnmarkedLine(h, types.Main, mainStart, types.MarkerMaskLine),
				prevUnmarkedLine(h, types.Sub, subStart, types.MarkerMaskLine),
				down, false, false)
		}
	}

	if loc.IsNone() {
		if wrapAround {
			if down {
				loc = JumpToFirstChange(h, tab, opt, true, true)
			} else {
				loc = JumpToLastChange(h, tab, opt, true, true)
			}

			h.FlashFrame()
		} else {
			if down {
				loc = JumpToLastChange(h, tab, opt, false, false)
			} else {
				loc = JumpToFirstChange(h, tab, opt, false, false)
			}
		}
	}

	return loc
}

// edge returns the viewport edge line in the scan direction.
func edge(h view.Host, v types.Side, down bool) int {
	if down {
		return view.LastLine(h, v)
	}
	return view.FirstLine(h, v)
}
