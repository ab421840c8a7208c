// Package track records multi-line deletions so that a later undo (or redo)
// restoring those lines can also restore the markers, alignment and selection
// that existed before the delete, instead of whatever a fresh incremental
// adjustment would reconstruct.
package track

import (
	"time"

	"comparetab/align"
	"comparetab/types"
	"comparetab/view"
)

// DefaultReplaceWindow is how soon after a delete an insert at the same line
// must arrive to be treated as the second half of one atomic replace.
const DefaultReplaceWindow = 40 * time.Millisecond

// UndoPayload is captured once per delete and returned verbatim when the
// matching restore insert arrives.
type UndoPayload struct {
	// Alignment is the table snapshot taken before the delete.
	Alignment align.Table
	// Selection is the compare-selection range before the delete, or
	// types.NoSelection when the pair is not a selection compare.
	Selection types.Selection
	// OtherViewMarks holds the counterpart view's markers stashed by an
	// equalize copy, restored at the aligned line on undo.
	OtherViewMarks []types.MarkerMask
}

// section is one pending deleted-line-range record.
type section struct {
	startLine      int
	lineReplace    bool
	restoreAction  types.ActionKind
	markers        []types.MarkerMask
	nextLineMarker types.MarkerMask
	undo           *UndoPayload
}

// Stack is the per-(file, view) state machine. Push on "about to delete",
// Pop on "lines inserted"; a pop with the wrong action kind arriving inside
// the replace window poisons the top entry instead of restoring it.
type Stack struct {
	host view.Host
	view types.Side

	// PreserveMarkers is off in recompare-on-change mode: markers are then
	// simply cleared on delete since a full re-diff will repaint them.
	PreserveMarkers bool

	// ReplaceWindow is the replace-detection threshold. 40ms covers a
	// delete-then-insert issued as one replace operation.
	ReplaceWindow time.Duration

	now      func() time.Time
	lastPush time.Time
	sections []section
}

// NewStack returns a tracker bound to one view of the host.
func NewStack(host view.Host, v types.Side) *Stack {
	return &Stack{
		host:            host,
		view:            v,
		PreserveMarkers: true,
		ReplaceWindow:   DefaultReplaceWindow,
		now:             time.Now,
	}
}

// SetClock replaces the time source, for tests exercising the replace window.
func (s *Stack) SetClock(now func() time.Time) { s.now = now }

// Len returns the number of pending sections.
func (s *Stack) Len() int { return len(s.sections) }

// Clear drops all pending sections.
func (s *Stack) Clear() { s.sections = nil }

// Push records an imminent deletion of count lines starting at startLine,
// performed by action. It returns false without recording when count < 1 or
// when the delete is recognized as the revert half of an atomic line replace.
func (s *Stack) Push(action types.ActionKind, startLine, count int, undo *UndoPayload) bool {
	if count < 1 {
		return false
	}

	if n := len(s.sections); n > 0 {
		top := &s.sections[n-1]
		if top.restoreAction == action && top.lineReplace {
			return false
		}
	}

	sec := section{
		startLine:     startLine,
		restoreAction: action.Restore(),
		undo:          undo,
	}

	if s.PreserveMarkers {
		sec.markers = s.host.Markers(s.view, startLine, count)

		// The line after the deleted range becomes line startLine once the
		// delete lands; remember its mask so a restore can put it back where
		// it belongs.
		if startLine+count < s.host.LineCount(s.view) {
			sec.nextLineMarker = s.host.Marker(s.view, startLine+count) & types.MarkerMaskLine
		}
	} else {
		s.host.ClearMarkers(s.view, startLine, count)
	}

	s.sections = append(s.sections, sec)
	s.lastPush = s.now()

	return true
}

// Pop matches an insert at startLine performed by action against the top of
// the stack. On a full match it restores the saved markers and returns the
// undo payload given to the corresponding Push; otherwise it returns nil.
// An action-kind mismatch inside the replace window flags the top section as
// a line replace so the follow-up delete notification is suppressed.
func (s *Stack) Pop(action types.ActionKind, startLine int) *UndoPayload {
	n := len(s.sections)
	if n == 0 {
		return nil
	}

	top := &s.sections[n-1]

	if top.startLine != startLine {
		return nil
	}

	if top.restoreAction != action {
		if s.now().Sub(s.lastPush) < s.ReplaceWindow {
			top.lineReplace = true
		}
		return nil
	}

	if len(top.markers) > 0 {
		s.host.SetMarkers(s.view, top.startLine, top.markers)

		if top.nextLineMarker != 0 {
			next := startLine + len(top.markers)
			s.host.ClearMarkers(s.view, next, 1)
			s.host.SetMarker(s.view, next, top.nextLineMarker)
		}
	}

	undo := top.undo
	s.sections = s.sections[:n-1]

	return undo
}
