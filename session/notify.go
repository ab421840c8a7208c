package session

import (
	"comparetab/logger"
	"comparetab/track"
	"comparetab/types"
)

// OnBeforeDelete is called before a delete lands in a compared view.
// [startLine, endLine) is the affected document-line range; single-line
// changes are ignored here and handled by OnModified alone.
func (s *Session) OnBeforeDelete(v types.Side, startLine, endLine int, action types.ActionKind) {
	p := s.active
	if p == nil || s.locked() {
		return
	}

	if endLine <= startLine {
		return
	}

	logger.Debug("before delete: %v view, lines %d-%d", v, startLine+1, endLine)

	var undo *track.UndoPayload

	if p.Options.SelectionCompare {
		undo = &track.UndoPayload{Selection: p.Options.Selections[v]}
	}

	if !s.settings.RecompareOnChange {
		if undo == nil {
			undo = &track.UndoPayload{Selection: types.NoSelection}
		}

		undo.Alignment = p.Table.Clone()

		if p.inEqualize > 0 && len(s.copiedSectionMarks) > 0 {
			undo.OtherViewMarks = s.copiedSectionMarks
			s.copiedSectionMarks = nil
		}
	}

	s.notReverting = p.File(v).Deleted.Push(action, startLine, endLine-startLine, undo)
}

// OnModified is called after text was inserted into or deleted from a
// compared view. linesAdded is the signed line-count delta, zero for an
// in-line change; startLine is the first affected document line.
func (s *Session) OnModified(v types.Side, startLine, linesAdded int, action types.ActionKind) {
	p := s.active
	if p == nil || s.locked() {
		return
	}

	var undo *track.UndoPayload
	selectionsAdjusted := false

	if linesAdded > 0 {
		logger.Debug("insert: %v view, lines %d-%d", v, startLine+1, startLine+linesAdded)

		s.notReverting = true

		undo = p.File(v).Deleted.Pop(action, startLine)

		if undo != nil {
			if p.Options.SelectionCompare && undo.Selection.First < undo.Selection.Last &&
				p.Options.Selections[v] != undo.Selection {
				p.Options.Selections[v] = undo.Selection
				selectionsAdjusted = true
			}

			if !s.settings.RecompareOnChange {
				p.Table = undo.Alignment

				if len(undo.OtherViewMarks) > 0 {
					if mapped := p.Table.MappedLine(v, startLine); mapped >= 0 {
						s.host.SetMarkers(v.Other(), mapped, undo.OtherViewMarks)
					}
				}
			}
		}
	}

	s.alignQ.Cancel()
	s.updateQ.Cancel()

	if linesAdded == 0 {
		s.notReverting = true
	}

	updateStatus := false

	// An edit that was not the restore of a tracked delete leaves the
	// painted markers out of date.
	if !s.settings.RecompareOnChange && s.notReverting && undo == nil {
		if !p.CompareDirty || (p.inEqualize == 0 && !p.ManuallyChanged) {
			if !p.Options.SelectionCompare {
				p.setCompareDirty()
				updateStatus = true
			} else {
				sel := p.Options.Selections[v]

				if startLine >= sel.First && startLine <= sel.Last {
					p.setCompareDirty()
					updateStatus = true
				}

				// A delete reports the post-delete line; re-check against
				// where the removed range originated.
				if !updateStatus && linesAdded < 0 {
					if tail := startLine + linesAdded + 1; tail >= sel.First && tail <= sel.Last {
						p.setCompareDirty()
						updateStatus = true
					}
				}
			}
		}
	}

	if p.Options.SelectionCompare && linesAdded != 0 && undo == nil && !selectionsAdjusted {
		endLine := startLine + abs(linesAdded) - 1
		effStart := startLine

		sel := &p.Options.Selections[v]

		if sel.First > effStart {
			if linesAdded > 0 {
				sel.First += linesAdded
			} else if sel.First > endLine {
				sel.First += linesAdded
			} else {
				sel.First -= sel.First - effStart
			}

			selectionsAdjusted = true
		}

		// When an equalize replaces the diff right at the selection end, the
		// insert half of the replace must grow the selection to keep the
		// copied lines inside the compared range.
		if p.inEqualize > 0 && sel.Last == effStart-1 && linesAdded > 0 {
			effStart--
		}

		if sel.Last >= effStart {
			if linesAdded > 0 {
				sel.Last += linesAdded
			} else if sel.Last >= endLine {
				sel.Last += linesAdded
			} else {
				sel.Last -= sel.Last - effStart + 1
			}

			selectionsAdjusted = true
		}

		if p.inEqualize == 0 && sel.Last < sel.First {
			logger.Info("pair %s: compared selection destroyed by edit", p.ID)
			s.closePair(p)
			return
		}
	}

	if s.settings.RecompareOnChange {
		if linesAdded != 0 {
			p.autoUpdate = recompareDelayLines
		} else {
			p.autoUpdate = recompareDelayInline
		}

		s.updateQ.Post(p.autoUpdate)

		return
	}

	if linesAdded != 0 {
		if undo == nil && (!p.Options.SelectionCompare || selectionsAdjusted) {
			p.Table.Adjust(v, startLine, linesAdded)
		}

		if selectionsAdjusted {
			s.host.ClearAllAnnotations(types.Main)
			s.host.ClearAllAnnotations(types.Sub)

			s.forceRealign = true
		}
	}

	if updateStatus {
		s.logStatus(p)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// OnPaint schedules the delayed alignment pass after a repaint of a compared
// view, unless an auto-recompare is already queued.
func (s *Session) OnPaint() {
	if s.active == nil || s.locked() || s.updateQ.Pending() {
		return
	}

	s.alignQ.Post(alignDelay)
}

// OnViewportChanged handles a scroll or caret move in a compared view: it
// re-pins the aligner's location and mirrors the viewport. Dropped while an
// alignment cycle is in flight so the pin is not overwritten mid-restore.
func (s *Session) OnViewportChanged(v types.Side) {
	p := s.active
	if p == nil || s.locked() || s.aligner.Busy() || s.updateQ.Pending() {
		return
	}

	defer s.hold()()

	s.aligner.NoteViewportChange(p.Table, s.settings.FollowingCaret, v)
}

// OnZoom mirrors a zoom change onto the other view.
func (s *Session) OnZoom(v types.Side) {
	if s.active == nil || s.locked() {
		return
	}

	defer s.hold()()

	s.host.SetZoom(v.Other(), s.host.Zoom(v))
}

// OnBufferActivated switches the active pair to the one owning buffID, or to
// none when the buffer is not compared.
func (s *Session) OnBufferActivated(buffID int) {
	if s.locked() {
		return
	}

	s.alignQ.Cancel()
	s.updateQ.Cancel()
	s.expireTempSelect()
	s.expireArrowMark()

	p := s.pairByBuffer(buffID)
	if p == s.active {
		return
	}

	s.active = p
	s.aligner.Reset()

	if p == nil {
		return
	}

	defer s.hold()()

	s.aligner.NoteViewportChange(p.Table, s.settings.FollowingCaret, s.host.FocusedView())

	s.logStatus(p)
	s.alignQ.Post(alignDelay)
}

// OnSaved snapshots the saved document so later compares against last-saved
// content have a baseline.
func (s *Session) OnSaved(v types.Side) {
	p := s.active
	if p == nil {
		return
	}

	f := p.File(v)

	text := s.host.TextRange(v, 0, s.host.TextLength(v))
	if err := s.snaps.Put(f.Path, text); err != nil {
		logger.Warn("snapshot of %s failed: %v", f.Path, err)
	}
}

// OnClosing tears down the pair owning buffID before the host discards it.
func (s *Session) OnClosing(buffID int) {
	s.ClosePair(buffID)
}
