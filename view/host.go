// Package view declares the text-view capability the compare core consumes.
// The host editor implements it (nvimview does, over RPC); tests use Fake.
// All lines are 0-indexed document lines unless a method says "visible";
// positions are byte offsets into the view's buffer.
package view

import (
	"comparetab/types"
)

// Host is the abstract two-pane text view. Every method addresses one of the
// two panes by side. Implementations are event-loop-bound and not safe for
// concurrent use, matching the single-threaded model of the core.
type Host interface {
	// Focus
	FocusedView() types.Side
	Focus(view types.Side)

	// Line and position queries
	LineCount(view types.Side) int
	LineStart(view types.Side, line int) int
	LineEnd(view types.Side, line int) int
	LineFromPosition(view types.Side, pos int) int
	TextLength(view types.Side) int
	TextRange(view types.Side, startPos, endPos int) string

	// Markers
	Marker(view types.Side, line int) types.MarkerMask
	Markers(view types.Side, startLine, count int) []types.MarkerMask
	SetMarker(view types.Side, line int, mask types.MarkerMask)
	SetMarkers(view types.Side, startLine int, masks []types.MarkerMask)
	ClearMarkers(view types.Side, startLine, count int)
	// NextMarkedLine / PrevMarkedLine scan from fromLine inclusive and
	// return types.NoLine when nothing in that direction carries mask.
	NextMarkedLine(view types.Side, fromLine int, mask types.MarkerMask) int
	PrevMarkedLine(view types.Side, fromLine int, mask types.MarkerMask) int

	// Annotations (rendered blank filler below a line; height in lines)
	Annotation(view types.Side, line int) int
	SetAnnotation(view types.Side, line, height int, note string)
	ClearAnnotation(view types.Side, line int)
	ClearAllAnnotations(view types.Side)

	// Visible-line conversions and scrolling
	VisibleFromDocLine(view types.Side, line int) int
	DocLineFromVisible(view types.Side, visible int) int
	FirstVisibleLine(view types.Side) int
	SetFirstVisibleLine(view types.Side, visible int)
	LinesOnScreen(view types.Side) int
	IsLineVisible(view types.Side, line int) bool
	CenterAt(view types.Side, line int)

	// Caret and selection
	CaretLine(view types.Side) int
	SetEmptySelection(view types.Side, pos int)
	Selection(view types.Side) (startPos, endPos int)
	SetSelection(view types.Side, startPos, endPos int)
	ClearSelection(view types.Side)
	HasSelection(view types.Side) bool

	// Word wrap
	WrapCount(view types.Side, line int) int

	// Text mutation; only ever called under the notifications guard.
	InsertText(view types.Side, pos int, text string)
	DeleteRange(view types.Side, startPos, length int)

	// Zoom (opaque host units)
	Zoom(view types.Side) int
	SetZoom(view types.Side, zoom int)

	// Transient feedback
	BlinkLine(view types.Side, line int)
	FlashFrame()
}

// FirstLine returns the document line at the top of the visible area.
func FirstLine(h Host, view types.Side) int {
	return h.DocLineFromVisible(view, h.FirstVisibleLine(view))
}

// LastLine returns the document line at the bottom of the visible area.
func LastLine(h Host, view types.Side) int {
	return h.DocLineFromVisible(view, h.FirstVisibleLine(view)+h.LinesOnScreen(view)-1)
}

// IsLineMarked reports whether the line carries any marker from mask.
func IsLineMarked(h Host, view types.Side, line int, mask types.MarkerMask) bool {
	return h.Marker(view, line)&mask != 0
}

// IsLineAnnotated reports whether the line has filler rendered below it.
func IsLineAnnotated(h Host, view types.Side, line int) bool {
	return h.Annotation(view, line) > 0
}

// IsAdjacentAnnotation reports whether the filler neighboring line in the
// scan direction exists: below the previous line when scanning down, below
// the line itself when scanning up.
func IsAdjacentAnnotation(h Host, view types.Side, line int, down bool) bool {
	if down {
		return line > 0 && IsLineAnnotated(h, view, line-1)
	}
	return IsLineAnnotated(h, view, line)
}

// IsLineWrapped reports whether the line occupies more than one visual row.
func IsLineWrapped(h Host, view types.Side, line int) bool {
	return h.WrapCount(view, line) > 1
}
