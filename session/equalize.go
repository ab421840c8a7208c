package session

import (
	"comparetab/logger"
	"comparetab/nav"
	"comparetab/types"
	"comparetab/view"
)

// OnMarginClicked handles a click in the diff margin of a compared view.
// A plain click selects the clicked diff block and temporarily selects its
// counterpart in the other view; a ctrl-click equalizes the block: the
// counterpart's text replaces it, so the two sides read the same afterwards.
func (s *Session) OnMarginClicked(v types.Side, line int, ctrl bool) {
	p := s.active
	if p == nil || s.locked() {
		return
	}

	if line < 0 || line >= s.host.LineCount(v) {
		return
	}

	first, last := s.markedBlock(v, line)
	if first < 0 && !view.IsLineAnnotated(s.host, v, line) {
		// Clicking the filler row above a block targets the block below it.
		first, last = s.markedBlock(v, line+1)
		if first >= 0 {
			line++
		}
	}

	if p.Options.FindUniqueMode {
		if ctrl {
			return
		}

		defer s.hold()()

		if first >= 0 {
			s.selectLines(v, first, last)
		} else {
			s.host.ClearSelection(v)
		}
		s.expireTempSelect()

		return
	}

	oFirst, oLast := s.counterpartBlock(p, v, line, first, last)

	if !ctrl {
		defer s.hold()()

		if first >= 0 {
			s.selectLines(v, first, last)
		} else {
			s.host.ClearSelection(v)
		}

		s.expireTempSelect()

		if oFirst >= 0 {
			other := v.Other()
			s.selectLines(other, oFirst, oLast)
			s.tempSelView = other
			s.tempSelOn = true
			s.tempSelQ.Post(tempSelectExpiry)
		}

		return
	}

	if first < 0 && oFirst < 0 {
		return
	}

	s.equalize(p, v, line, first, last, oFirst, oLast)
}

// markedBlock returns the contiguous run of diff-marked lines containing
// line, or (NoLine, NoLine) when line carries no diff marker.
func (s *Session) markedBlock(v types.Side, line int) (first, last int) {
	h := s.host

	if line < 0 || line >= h.LineCount(v) || !view.IsLineMarked(h, v, line, types.MarkerMaskLine) {
		return types.NoLine, types.NoLine
	}

	first, last = line, line
	for first > 0 && view.IsLineMarked(h, v, first-1, types.MarkerMaskLine) {
		first--
	}
	for last+1 < h.LineCount(v) && view.IsLineMarked(h, v, last+1, types.MarkerMaskLine) {
		last++
	}

	return first, last
}

// counterpartBlock locates the other view's diff block standing level with
// the clicked block, or level with the filler under line when the clicked
// spot shows only filler. Returns (NoLine, NoLine) when the other side has
// no marked lines there.
func (s *Session) counterpartBlock(p *Pair, v types.Side, line, first, last int) (int, int) {
	h := s.host
	other := v.Other()

	var oFirst, oLast int

	if first < 0 {
		oFirst = nav.MatchingLine(h, p.Table, v, line) + 1

		if line+1 < h.LineCount(v) {
			oLast = nav.MatchingLine(h, p.Table, v, line+1) - 1
		} else {
			oLast = h.LineCount(other) - 1
		}
	} else {
		oFirst = nav.MatchingLine(h, p.Table, v, first)
		oLast = nav.MatchingLine(h, p.Table, v, last)
	}

	if oFirst < 0 {
		oFirst = 0
	}
	if oLast >= h.LineCount(other) {
		oLast = h.LineCount(other) - 1
	}

	for oFirst <= oLast && !view.IsLineMarked(h, other, oFirst, types.MarkerMaskLine) {
		oFirst++
	}
	for oLast >= oFirst && !view.IsLineMarked(h, other, oLast, types.MarkerMaskLine) {
		oLast--
	}

	if oFirst > oLast {
		return types.NoLine, types.NoLine
	}

	return oFirst, oLast
}

func (s *Session) selectLines(v types.Side, first, last int) {
	s.host.SetSelection(v, s.host.LineStart(v, first), s.host.LineStart(v, last+1))
}

// equalize replaces the clicked block [first, last] of view v with the other
// view's block [oFirst, oLast]. A missing clicked block means the other
// block is inserted under line; a missing counterpart means the clicked
// block is simply deleted. The host edits run outside the notification
// guard: the delete and insert must flow through OnBeforeDelete/OnModified
// so the deleted-section tracker records them, with inEqualize telling those
// handlers the edit is a copy, not a manual change.
func (s *Session) equalize(p *Pair, v types.Side, line, first, last, oFirst, oLast int) {
	h := s.host
	other := v.Other()

	logger.Debug("equalize: %v view lines %d-%d from %v lines %d-%d",
		v, first+1, last+1, other, oFirst+1, oLast+1)

	p.inEqualize++
	defer func() { p.inEqualize-- }()

	func() {
		defer s.hold()()
		h.ClearSelection(v)
		s.expireTempSelect()
	}()

	if oFirst >= 0 {
		n := oLast - oFirst + 1

		if !s.settings.RecompareOnChange {
			// The source block's markers travel with the copy; the delete's
			// undo payload carries them so undo repaints the source side.
			s.copiedSectionMarks = h.Markers(other, oFirst, n)

			for l := oFirst; l <= oLast; l++ {
				h.ClearAnnotation(other, l)
			}
		} else {
			h.ClearMarkers(other, oFirst, n)
		}
	}

	insertPos := -1

	if first >= 0 {
		if oFirst >= 0 && first > 0 {
			h.ClearAnnotation(v, first-1)
		}

		startPos := h.LineStart(v, first)
		endPos := h.LineStart(v, last+1)

		lastMarked := endPos == h.TextLength(v)

		h.DeleteRange(v, startPos, endPos-startPos)

		if lastMarked {
			// The line the tail collapsed onto keeps a stale marker.
			h.ClearMarkers(v, h.LineFromPosition(v, startPos), 1)
		}

		insertPos = startPos
	}

	if oFirst >= 0 {
		oStartPos := h.LineStart(other, oFirst)
		oEndPos := h.LineStart(other, oLast+1)

		copyTillEnd := false
		lastLine := h.LineCount(v) - 1

		if insertPos < 0 {
			if line < lastLine {
				insertPos = h.LineStart(v, line+1)
			} else {
				insertPos = h.LineEnd(v, line)

				if oFirst > 0 {
					oStartPos = h.LineEnd(other, oFirst-1)
				}
				copyTillEnd = true
			}

			h.ClearAnnotation(v, line)
		} else if h.LineFromPosition(v, insertPos) >= lastLine {
			copyTillEnd = true
		}

		if copyTillEnd {
			oEndPos = h.LineEnd(other, h.LineCount(other)-1)
		}

		text := h.TextRange(other, oStartPos, oEndPos)

		if oFirst > 0 {
			h.ClearAnnotation(other, oFirst-1)
		}

		h.InsertText(v, insertPos, text)
	}

	s.alignQ.Post(alignDelay)
}
