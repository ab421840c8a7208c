package view

import (
	"strings"

	"comparetab/types"
)

// Fake is an in-memory Host used by tests across the module. It models two
// buffers with markers and filler annotations and a simplified visual-line
// geometry (no folding; word wrap only where a test sets a wrap count).
// It records the scroll/caret/blink commands it receives so tests can assert
// on command traffic, not just final state.
type Fake struct {
	panes   [2]fakePane
	focused types.Side

	// Recorded command traffic
	ScrollOps []ScrollOp
	CaretOps  []CaretOp
	BlinkOps  []BlinkOp
	Flashes   int
}

type ScrollOp struct {
	View    types.Side
	Visible int
}

type CaretOp struct {
	View types.Side
	Pos  int
}

type BlinkOp struct {
	View types.Side
	Line int
}

type fakePane struct {
	lines         []string
	markers       map[int]types.MarkerMask
	annotations   map[int]int
	wrapCounts    map[int]int
	firstVisible  int
	linesOnScreen int
	caretPos      int
	selStart      int
	selEnd        int
	zoom          int
}

// NewFake returns a Fake with both panes holding the given line counts of
// empty text and 25 lines on screen.
func NewFake(mainLines, subLines int) *Fake {
	f := &Fake{}
	f.panes[types.Main] = newFakePane(mainLines)
	f.panes[types.Sub] = newFakePane(subLines)
	return f
}

func newFakePane(lineCount int) fakePane {
	return fakePane{
		lines:         make([]string, lineCount),
		markers:       map[int]types.MarkerMask{},
		annotations:   map[int]int{},
		wrapCounts:    map[int]int{},
		linesOnScreen: 25,
	}
}

// SetLines replaces a pane's content.
func (f *Fake) SetLines(view types.Side, lines []string) {
	f.panes[view].lines = append([]string(nil), lines...)
}

// Lines returns a pane's content.
func (f *Fake) Lines(view types.Side) []string {
	return append([]string(nil), f.panes[view].lines...)
}

// SetLinesOnScreen overrides the viewport height of one pane.
func (f *Fake) SetLinesOnScreen(view types.Side, n int) {
	f.panes[view].linesOnScreen = n
}

// SetWrapCount marks a line as occupying n visual rows.
func (f *Fake) SetWrapCount(view types.Side, line, n int) {
	f.panes[view].wrapCounts[line] = n
}

func (f *Fake) FocusedView() types.Side { return f.focused }

func (f *Fake) Focus(view types.Side) { f.focused = view }

func (f *Fake) LineCount(view types.Side) int { return len(f.panes[view].lines) }

func (f *Fake) LineStart(view types.Side, line int) int {
	p := &f.panes[view]
	if line < 0 {
		return 0
	}
	pos := 0
	for i := 0; i < line && i < len(p.lines); i++ {
		pos += len(p.lines[i]) + 1
	}
	return pos
}

func (f *Fake) LineEnd(view types.Side, line int) int {
	p := &f.panes[view]
	if line < 0 || line >= len(p.lines) {
		return f.TextLength(view)
	}
	return f.LineStart(view, line) + len(p.lines[line])
}

func (f *Fake) LineFromPosition(view types.Side, pos int) int {
	p := &f.panes[view]
	at := 0
	for i, l := range p.lines {
		at += len(l) + 1
		if pos < at {
			return i
		}
	}
	if len(p.lines) == 0 {
		return 0
	}
	return len(p.lines) - 1
}

func (f *Fake) TextLength(view types.Side) int {
	n := 0
	for _, l := range f.panes[view].lines {
		n += len(l) + 1
	}
	return n
}

func (f *Fake) text(view types.Side) string {
	return strings.Join(f.panes[view].lines, "\n") + "\n"
}

func (f *Fake) TextRange(view types.Side, startPos, endPos int) string {
	t := f.text(view)
	if startPos < 0 {
		startPos = 0
	}
	if endPos > len(t) {
		endPos = len(t)
	}
	if startPos >= endPos {
		return ""
	}
	return t[startPos:endPos]
}

func (f *Fake) Marker(view types.Side, line int) types.MarkerMask {
	return f.panes[view].markers[line]
}

func (f *Fake) Markers(view types.Side, startLine, count int) []types.MarkerMask {
	out := make([]types.MarkerMask, count)
	for i := 0; i < count; i++ {
		out[i] = f.panes[view].markers[startLine+i]
	}
	return out
}

func (f *Fake) SetMarker(view types.Side, line int, mask types.MarkerMask) {
	if mask == 0 {
		delete(f.panes[view].markers, line)
		return
	}
	f.panes[view].markers[line] = mask
}

func (f *Fake) SetMarkers(view types.Side, startLine int, masks []types.MarkerMask) {
	for i, m := range masks {
		f.SetMarker(view, startLine+i, m)
	}
}

func (f *Fake) ClearMarkers(view types.Side, startLine, count int) {
	for i := 0; i < count; i++ {
		delete(f.panes[view].markers, startLine+i)
	}
}

func (f *Fake) NextMarkedLine(view types.Side, fromLine int, mask types.MarkerMask) int {
	p := &f.panes[view]
	if fromLine < 0 {
		fromLine = 0
	}
	for l := fromLine; l < len(p.lines); l++ {
		if p.markers[l]&mask != 0 {
			return l
		}
	}
	return types.NoLine
}

func (f *Fake) PrevMarkedLine(view types.Side, fromLine int, mask types.MarkerMask) int {
	p := &f.panes[view]
	if fromLine >= len(p.lines) {
		fromLine = len(p.lines) - 1
	}
	for l := fromLine; l >= 0; l-- {
		if p.markers[l]&mask != 0 {
			return l
		}
	}
	return types.NoLine
}

func (f *Fake) Annotation(view types.Side, line int) int {
	return f.panes[view].annotations[line]
}

func (f *Fake) SetAnnotation(view types.Side, line, height int, note string) {
	if height <= 0 {
		delete(f.panes[view].annotations, line)
		return
	}
	f.panes[view].annotations[line] = height
}

func (f *Fake) ClearAnnotation(view types.Side, line int) {
	delete(f.panes[view].annotations, line)
}

func (f *Fake) ClearAllAnnotations(view types.Side) {
	f.panes[view].annotations = map[int]int{}
}

// rowsOf returns the visual rows one document line occupies.
func (p *fakePane) rowsOf(line int) int {
	rows := 1
	if w, ok := p.wrapCounts[line]; ok && w > 1 {
		rows = w
	}
	return rows + p.annotations[line]
}

func (f *Fake) VisibleFromDocLine(view types.Side, line int) int {
	p := &f.panes[view]
	vis := 0
	for l := 0; l < line && l < len(p.lines); l++ {
		vis += p.rowsOf(l)
	}
	return vis
}

func (f *Fake) DocLineFromVisible(view types.Side, visible int) int {
	p := &f.panes[view]
	vis := 0
	for l := 0; l < len(p.lines); l++ {
		vis += p.rowsOf(l)
		if visible < vis {
			return l
		}
	}
	if len(p.lines) == 0 {
		return 0
	}
	return len(p.lines) - 1
}

func (f *Fake) FirstVisibleLine(view types.Side) int {
	return f.panes[view].firstVisible
}

func (f *Fake) SetFirstVisibleLine(view types.Side, visible int) {
	if visible < 0 {
		visible = 0
	}
	f.panes[view].firstVisible = visible
	f.ScrollOps = append(f.ScrollOps, ScrollOp{View: view, Visible: visible})
}

func (f *Fake) LinesOnScreen(view types.Side) int {
	return f.panes[view].linesOnScreen
}

func (f *Fake) IsLineVisible(view types.Side, line int) bool {
	p := &f.panes[view]
	vis := f.VisibleFromDocLine(view, line)
	return vis >= p.firstVisible && vis < p.firstVisible+p.linesOnScreen
}

func (f *Fake) CenterAt(view types.Side, line int) {
	p := &f.panes[view]
	target := f.VisibleFromDocLine(view, line) - p.linesOnScreen/2
	if target < 0 {
		target = 0
	}
	f.SetFirstVisibleLine(view, target)
}

func (f *Fake) CaretLine(view types.Side) int {
	return f.LineFromPosition(view, f.panes[view].caretPos)
}

func (f *Fake) SetEmptySelection(view types.Side, pos int) {
	p := &f.panes[view]
	p.caretPos = pos
	p.selStart, p.selEnd = pos, pos
	f.CaretOps = append(f.CaretOps, CaretOp{View: view, Pos: pos})
}

func (f *Fake) Selection(view types.Side) (int, int) {
	p := &f.panes[view]
	return p.selStart, p.selEnd
}

func (f *Fake) SetSelection(view types.Side, startPos, endPos int) {
	p := &f.panes[view]
	p.selStart, p.selEnd = startPos, endPos
	p.caretPos = endPos
}

func (f *Fake) ClearSelection(view types.Side) {
	p := &f.panes[view]
	p.selStart, p.selEnd = p.caretPos, p.caretPos
}

func (f *Fake) HasSelection(view types.Side) bool {
	p := &f.panes[view]
	return p.selEnd > p.selStart
}

func (f *Fake) WrapCount(view types.Side, line int) int {
	if w, ok := f.panes[view].wrapCounts[line]; ok {
		return w
	}
	return 1
}

func (f *Fake) InsertText(view types.Side, pos int, text string) {
	t := f.text(view)
	if pos < 0 {
		pos = 0
	}
	if pos > len(t) {
		pos = len(t)
	}
	f.setText(view, t[:pos]+text+t[pos:])
}

func (f *Fake) DeleteRange(view types.Side, startPos, length int) {
	t := f.text(view)
	end := startPos + length
	if startPos < 0 {
		startPos = 0
	}
	if end > len(t) {
		end = len(t)
	}
	if startPos >= end {
		return
	}
	f.setText(view, t[:startPos]+t[end:])
}

func (f *Fake) setText(view types.Side, text string) {
	text = strings.TrimSuffix(text, "\n")
	f.panes[view].lines = strings.Split(text, "\n")
}

func (f *Fake) Zoom(view types.Side) int { return f.panes[view].zoom }

func (f *Fake) SetZoom(view types.Side, zoom int) { f.panes[view].zoom = zoom }

func (f *Fake) BlinkLine(view types.Side, line int) {
	f.BlinkOps = append(f.BlinkOps, BlinkOp{View: view, Line: line})
}

func (f *Fake) FlashFrame() { f.Flashes++ }
