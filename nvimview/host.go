// Package nvimview implements view.Host over two Neovim windows through the
// msgpack-RPC client. Document text, markers and filler heights are cached
// on this side; buffer-lines events keep the cache true and are translated
// into the edit notifications the session consumes.
package nvimview

import (
	"strings"

	"github.com/neovim/go-client/nvim"

	"comparetab/logger"
	"comparetab/types"
)

// Notifier receives the edit notifications derived from buffer changes.
// The session implements it.
type Notifier interface {
	BeforeDelete(v types.Side, startLine, endLine int, action types.ActionKind)
	Modified(v types.Side, startLine, linesAdded int, action types.ActionKind)
}

type annotation struct {
	height int
	note   string
}

// expectedChange is a buffer edit this side initiated; the echoed
// lines event for it has already been handled and is dropped.
type expectedChange struct {
	first, last int
	lines       []string
}

type pane struct {
	buf nvim.Buffer
	win nvim.Window

	lines       []string
	markers     map[int]types.MarkerMask
	annotations map[int]annotation
	zoom        int

	expected []expectedChange
}

// Host is the Neovim-backed two-pane view. Like the rest of the core it is
// event-loop-bound: all calls must come from the goroutine owning the
// session.
type Host struct {
	client *nvim.Nvim

	nsMarks  int
	nsFiller int
	nsBlink  int

	panes    [2]*pane
	notifier Notifier

	// pendingAction classifies the next buffer change; the Lua side flips it
	// to undo/redo right before replaying history.
	pendingAction types.ActionKind
}

// New creates a host over an attached Neovim client. The namespaces for
// markers, filler and blink highlights are created up front.
func New(client *nvim.Nvim) (*Host, error) {
	h := &Host{client: client}

	var err error
	if h.nsMarks, err = client.CreateNamespace("comparetab_marks"); err != nil {
		return nil, err
	}
	if h.nsFiller, err = client.CreateNamespace("comparetab_filler"); err != nil {
		return nil, err
	}
	if h.nsBlink, err = client.CreateNamespace("comparetab_blink"); err != nil {
		return nil, err
	}

	for i := range h.panes {
		h.panes[i] = &pane{
			markers:     map[int]types.MarkerMask{},
			annotations: map[int]annotation{},
		}
	}

	return h, nil
}

// SetNotifier installs the receiver of derived edit notifications.
func (h *Host) SetNotifier(n Notifier) { h.notifier = n }

// SetPendingAction classifies the next buffer change as user, undo or redo.
func (h *Host) SetPendingAction(a types.ActionKind) { h.pendingAction = a }

// Bind attaches one side to a buffer and window and loads its text.
func (h *Host) Bind(v types.Side, buf nvim.Buffer, win nvim.Window) error {
	p := h.panes[v]
	p.buf = buf
	p.win = win
	p.markers = map[int]types.MarkerMask{}
	p.annotations = map[int]annotation{}
	p.expected = nil

	raw, err := h.client.BufferLines(buf, 0, -1, false)
	if err != nil {
		return err
	}

	p.lines = make([]string, len(raw))
	for i, l := range raw {
		p.lines[i] = string(l)
	}

	if _, err := h.client.AttachBuffer(buf, true, map[string]interface{}{}); err != nil {
		return err
	}

	// Compared windows rely on one doc line per visual row.
	return h.client.ExecLua(`
		local win = ...
		vim.wo[win].wrap = false
	`, nil, int(win))
}

// SideOf maps a buffer back to the side showing it, or -1.
func (h *Host) SideOf(buf nvim.Buffer) types.Side {
	for i, p := range h.panes {
		if p.buf == buf {
			return types.Side(i)
		}
	}
	return types.Side(-1)
}

// HandleLinesEvent ingests one nvim_buf_lines_event: [first, last) of the
// old text was replaced by newLines. Echoes of this side's own edits are
// dropped; everything else updates the cache and produces notifications.
func (h *Host) HandleLinesEvent(buf nvim.Buffer, first, last int, newLines []string) {
	v := h.SideOf(buf)
	if v < 0 {
		return
	}

	p := h.panes[v]

	if last < 0 || last > len(p.lines) {
		last = len(p.lines)
	}

	if len(p.expected) > 0 {
		e := p.expected[0]
		if e.first == first && e.last == last && equalLines(e.lines, newLines) {
			p.expected = p.expected[1:]
			return
		}
	}

	action := h.pendingAction
	h.pendingAction = types.ActionUser

	h.applyChange(v, first, last, newLines, action, true)
}

// applyChange rewrites [first, last) with newLines, shifting markers and
// filler, and (when notify is set) reports the change as the session expects
// it: the before-delete range first, then the signed line delta.
func (h *Host) applyChange(v types.Side, first, last int, newLines []string, action types.ActionKind, notify bool) {
	p := h.panes[v]

	removed := last - first
	added := len(newLines)
	delta := added - removed

	if notify && h.notifier != nil && delta < 0 {
		// The head lines of the range survive as the replacement; only the
		// tail [first+added, last) disappears.
		h.notifier.BeforeDelete(v, first+added, last, action)
	}

	rebuilt := make([]string, 0, len(p.lines)+delta)
	rebuilt = append(rebuilt, p.lines[:first]...)
	rebuilt = append(rebuilt, newLines...)
	rebuilt = append(rebuilt, p.lines[last:]...)
	p.lines = rebuilt

	if delta != 0 {
		p.markers = shiftLineMap(p.markers, first, last, delta)
		p.annotations = shiftLineMap(p.annotations, first, last, delta)
	}

	if notify && h.notifier != nil {
		if delta < 0 {
			h.notifier.Modified(v, first+added, delta, action)
		} else {
			h.notifier.Modified(v, first, delta, action)
		}
	}
}

// shiftLineMap drops entries inside the replaced range and shifts the ones
// after it, mirroring how extmarks travel with the text.
func shiftLineMap[T any](m map[int]T, first, last, delta int) map[int]T {
	out := make(map[int]T, len(m))
	for line, val := range m {
		switch {
		case line < first:
			out[line] = val
		case line < last:
			// replaced
		default:
			out[line+delta] = val
		}
	}
	return out
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- Focus ---

func (h *Host) FocusedView() types.Side {
	win, err := h.client.CurrentWindow()
	if err != nil {
		logger.Error("current window: %v", err)
		return types.Main
	}
	if win == h.panes[types.Sub].win {
		return types.Sub
	}
	return types.Main
}

func (h *Host) Focus(v types.Side) {
	if err := h.client.SetCurrentWindow(h.panes[v].win); err != nil {
		logger.Error("focus %v view: %v", v, err)
	}
}

// --- Line and position queries (served from the cache) ---

func (h *Host) LineCount(v types.Side) int { return len(h.panes[v].lines) }

func (h *Host) LineStart(v types.Side, line int) int {
	p := h.panes[v]
	if line < 0 {
		return 0
	}
	pos := 0
	for i := 0; i < line && i < len(p.lines); i++ {
		pos += len(p.lines[i]) + 1
	}
	return pos
}

func (h *Host) LineEnd(v types.Side, line int) int {
	p := h.panes[v]
	if line < 0 || line >= len(p.lines) {
		return h.TextLength(v)
	}
	return h.LineStart(v, line) + len(p.lines[line])
}

func (h *Host) LineFromPosition(v types.Side, pos int) int {
	p := h.panes[v]
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

func (h *Host) TextLength(v types.Side) int {
	n := 0
	for _, l := range h.panes[v].lines {
		n += len(l) + 1
	}
	return n
}

func (h *Host) text(v types.Side) string {
	return strings.Join(h.panes[v].lines, "\n") + "\n"
}

func (h *Host) TextRange(v types.Side, startPos, endPos int) string {
	t := h.text(v)
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

// --- Markers ---

var markerSigns = []struct {
	mask types.MarkerMask
	sign string
	hl   string
}{
	{types.MarkerAdded, "+", "ComparetabAdded"},
	{types.MarkerRemoved, "-", "ComparetabRemoved"},
	{types.MarkerChanged, "~", "ComparetabChanged"},
	{types.MarkerMoved, ">", "ComparetabMoved"},
	{types.MarkerArrowDown, "v", "ComparetabArrow"},
	{types.MarkerArrowUp, "^", "ComparetabArrow"},
}

func (h *Host) Marker(v types.Side, line int) types.MarkerMask {
	return h.panes[v].markers[line]
}

func (h *Host) Markers(v types.Side, startLine, count int) []types.MarkerMask {
	out := make([]types.MarkerMask, count)
	for i := 0; i < count; i++ {
		out[i] = h.panes[v].markers[startLine+i]
	}
	return out
}

func (h *Host) SetMarker(v types.Side, line int, mask types.MarkerMask) {
	p := h.panes[v]

	if mask == 0 {
		delete(p.markers, line)
	} else {
		p.markers[line] = mask
	}

	h.renderMarker(v, line, mask)
}

func (h *Host) SetMarkers(v types.Side, startLine int, masks []types.MarkerMask) {
	for i, m := range masks {
		h.SetMarker(v, startLine+i, m)
	}
}

func (h *Host) ClearMarkers(v types.Side, startLine, count int) {
	p := h.panes[v]
	for i := 0; i < count; i++ {
		delete(p.markers, startLine+i)
	}

	if err := h.client.ClearBufferNamespace(p.buf, h.nsMarks, startLine, startLine+count); err != nil {
		logger.Error("clear markers %v view: %v", v, err)
	}
}

func (h *Host) renderMarker(v types.Side, line int, mask types.MarkerMask) {
	p := h.panes[v]

	if err := h.client.ClearBufferNamespace(p.buf, h.nsMarks, line, line+1); err != nil {
		logger.Error("clear marker %v view line %d: %v", v, line, err)
		return
	}
	if mask == 0 || line >= len(p.lines) {
		return
	}

	sign, hl := "?", "ComparetabChanged"
	for _, s := range markerSigns {
		if mask&s.mask != 0 {
			sign, hl = s.sign, s.hl
			break
		}
	}

	_, err := h.client.SetBufferExtmark(p.buf, h.nsMarks, line, 0, map[string]interface{}{
		"sign_text":     sign,
		"sign_hl_group": hl,
		"line_hl_group": hl,
	})
	if err != nil {
		logger.Error("render marker %v view line %d: %v", v, line, err)
	}
}

func (h *Host) NextMarkedLine(v types.Side, fromLine int, mask types.MarkerMask) int {
	p := h.panes[v]
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

func (h *Host) PrevMarkedLine(v types.Side, fromLine int, mask types.MarkerMask) int {
	p := h.panes[v]
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

// --- Annotations (virt_lines filler below a line) ---

func (h *Host) Annotation(v types.Side, line int) int {
	return h.panes[v].annotations[line].height
}

func (h *Host) SetAnnotation(v types.Side, line, height int, note string) {
	p := h.panes[v]

	if height <= 0 {
		h.ClearAnnotation(v, line)
		return
	}

	p.annotations[line] = annotation{height: height, note: note}
	h.renderAnnotation(v, line)
}

func (h *Host) ClearAnnotation(v types.Side, line int) {
	p := h.panes[v]

	if _, ok := p.annotations[line]; !ok {
		return
	}
	delete(p.annotations, line)

	if err := h.client.ClearBufferNamespace(p.buf, h.nsFiller, line, line+1); err != nil {
		logger.Error("clear filler %v view line %d: %v", v, line, err)
	}
}

func (h *Host) ClearAllAnnotations(v types.Side) {
	p := h.panes[v]
	p.annotations = map[int]annotation{}

	if err := h.client.ClearBufferNamespace(p.buf, h.nsFiller, 0, -1); err != nil {
		logger.Error("clear filler %v view: %v", v, err)
	}
}

func (h *Host) renderAnnotation(v types.Side, line int) {
	p := h.panes[v]
	ann := p.annotations[line]
	if ann.height < 1 || line >= len(p.lines) {
		return
	}

	virt := make([][]interface{}, ann.height)
	for i := range virt {
		text := ""
		if i == 0 {
			text = ann.note
		}
		virt[i] = []interface{}{[]interface{}{text, "ComparetabFiller"}}
	}

	if err := h.client.ClearBufferNamespace(p.buf, h.nsFiller, line, line+1); err != nil {
		logger.Error("clear filler %v view line %d: %v", v, line, err)
		return
	}

	_, err := h.client.SetBufferExtmark(p.buf, h.nsFiller, line, 0, map[string]interface{}{
		"virt_lines": virt,
	})
	if err != nil {
		logger.Error("render filler %v view line %d: %v", v, line, err)
	}
}

// --- Visible-line conversions and scrolling ---
//
// Wrap is forced off on compared windows, so a document line occupies one
// visual row plus its filler height.

func (h *Host) rowsOf(v types.Side, line int) int {
	return 1 + h.panes[v].annotations[line].height
}

func (h *Host) VisibleFromDocLine(v types.Side, line int) int {
	p := h.panes[v]
	vis := 0
	for l := 0; l < line && l < len(p.lines); l++ {
		vis += h.rowsOf(v, l)
	}
	return vis
}

func (h *Host) DocLineFromVisible(v types.Side, visible int) int {
	p := h.panes[v]
	vis := 0
	for l := 0; l < len(p.lines); l++ {
		vis += h.rowsOf(v, l)
		if visible < vis {
			return l
		}
	}
	if len(p.lines) == 0 {
		return 0
	}
	return len(p.lines) - 1
}

func (h *Host) FirstVisibleLine(v types.Side) int {
	var topline int
	err := h.client.ExecLua(`
		local win = ...
		return vim.api.nvim_win_call(win, function() return vim.fn.line('w0') end)
	`, &topline, int(h.panes[v].win))
	if err != nil {
		logger.Error("w0 of %v view: %v", v, err)
		return 0
	}
	return h.VisibleFromDocLine(v, topline-1)
}

func (h *Host) SetFirstVisibleLine(v types.Side, visible int) {
	if visible < 0 {
		visible = 0
	}
	topline := h.DocLineFromVisible(v, visible) + 1

	err := h.client.ExecLua(`
		local win, topline = ...
		vim.api.nvim_win_call(win, function()
			vim.fn.winrestview({ topline = topline })
		end)
	`, nil, int(h.panes[v].win), topline)
	if err != nil {
		logger.Error("scroll %v view: %v", v, err)
	}
}

func (h *Host) LinesOnScreen(v types.Side) int {
	height, err := h.client.WindowHeight(h.panes[v].win)
	if err != nil {
		logger.Error("height of %v view: %v", v, err)
		return 0
	}
	return height
}

func (h *Host) IsLineVisible(v types.Side, line int) bool {
	vis := h.VisibleFromDocLine(v, line)
	first := h.FirstVisibleLine(v)
	return vis >= first && vis < first+h.LinesOnScreen(v)
}

func (h *Host) CenterAt(v types.Side, line int) {
	h.SetFirstVisibleLine(v, h.VisibleFromDocLine(v, line)-h.LinesOnScreen(v)/2)
}

// --- Caret and selection ---

func (h *Host) CaretLine(v types.Side) int {
	cursor, err := h.client.WindowCursor(h.panes[v].win)
	if err != nil {
		logger.Error("cursor of %v view: %v", v, err)
		return 0
	}
	return cursor[0] - 1
}

func (h *Host) posToLineCol(v types.Side, pos int) (line, col int) {
	line = h.LineFromPosition(v, pos)
	return line, pos - h.LineStart(v, line)
}

func (h *Host) SetEmptySelection(v types.Side, pos int) {
	line, col := h.posToLineCol(v, pos)

	err := h.client.ExecLua(`
		local win, line, col = ...
		vim.api.nvim_win_call(win, function()
			if vim.fn.mode():match('[vV]') then
				vim.cmd('normal! \27')
			end
			vim.api.nvim_win_set_cursor(win, { line, col })
		end)
	`, nil, int(h.panes[v].win), line+1, col)
	if err != nil {
		logger.Error("set caret %v view: %v", v, err)
	}
}

func (h *Host) Selection(v types.Side) (int, int) {
	var bounds [4]int
	err := h.client.ExecLua(`
		local win = ...
		return vim.api.nvim_win_call(win, function()
			if not vim.fn.mode():match('[vV]') then
				local p = vim.fn.getpos('.')
				return { p[2], p[3] - 1, p[2], p[3] - 1 }
			end
			local s = vim.fn.getpos('v')
			local e = vim.fn.getpos('.')
			return { s[2], s[3] - 1, e[2], e[3] - 1 }
		end)
	`, &bounds, int(h.panes[v].win))
	if err != nil {
		logger.Error("selection of %v view: %v", v, err)
		return 0, 0
	}

	start := h.LineStart(v, bounds[0]-1) + bounds[1]
	end := h.LineStart(v, bounds[2]-1) + bounds[3]
	if end < start {
		start, end = end, start
	}
	return start, end
}

func (h *Host) SetSelection(v types.Side, startPos, endPos int) {
	sl, sc := h.posToLineCol(v, startPos)
	el, ec := h.posToLineCol(v, endPos)

	err := h.client.ExecLua(`
		local win, sl, sc, el, ec = ...
		vim.api.nvim_win_call(win, function()
			vim.api.nvim_win_set_cursor(win, { sl, sc })
			vim.cmd('normal! v')
			vim.api.nvim_win_set_cursor(win, { el, ec })
		end)
	`, nil, int(h.panes[v].win), sl+1, sc, el+1, ec)
	if err != nil {
		logger.Error("set selection %v view: %v", v, err)
	}
}

func (h *Host) ClearSelection(v types.Side) {
	err := h.client.ExecLua(`
		local win = ...
		vim.api.nvim_win_call(win, function()
			if vim.fn.mode():match('[vV]') then
				vim.cmd('normal! \27')
			end
		end)
	`, nil, int(h.panes[v].win))
	if err != nil {
		logger.Error("clear selection %v view: %v", v, err)
	}
}

func (h *Host) HasSelection(v types.Side) bool {
	start, end := h.Selection(v)
	return end > start
}

// --- Word wrap ---

// WrapCount is always 1: wrap is disabled on compared windows in Bind.
func (h *Host) WrapCount(types.Side, int) int { return 1 }

// --- Text mutation ---

func (h *Host) InsertText(v types.Side, pos int, text string) {
	line, col := h.posToLineCol(v, pos)
	p := h.panes[v]

	current := ""
	if line < len(p.lines) {
		current = p.lines[line]
	}
	if col > len(current) {
		col = len(current)
	}

	newLines := strings.Split(current[:col]+text+current[col:], "\n")

	h.replaceLines(v, line, min(line+1, len(p.lines)), newLines)
}

func (h *Host) DeleteRange(v types.Side, startPos, length int) {
	if length <= 0 {
		return
	}

	startLine, startCol := h.posToLineCol(v, startPos)
	endLine, endCol := h.posToLineCol(v, startPos+length)
	p := h.panes[v]

	// A range ending on the final newline reads as one past the last line.
	if endLine < len(p.lines) && endCol > len(p.lines[endLine]) {
		endLine++
		endCol = 0
	}

	if startCol == 0 && endCol == 0 {
		// Whole-line delete.
		h.replaceLines(v, startLine, endLine, nil)
		return
	}

	head := ""
	if startLine < len(p.lines) {
		head = p.lines[startLine][:startCol]
	}
	tail := ""
	if endLine < len(p.lines) {
		tail = p.lines[endLine][endCol:]
	}

	h.replaceLines(v, startLine, min(endLine+1, len(p.lines)), []string{head + tail})
}

// replaceLines performs one [first, last) -> newLines edit: it notifies,
// updates the cache, pushes the change to Neovim and remembers it so the
// echoed lines event is dropped.
func (h *Host) replaceLines(v types.Side, first, last int, newLines []string) {
	p := h.panes[v]

	h.applyChange(v, first, last, newLines, types.ActionUser, true)

	p.expected = append(p.expected, expectedChange{first: first, last: last, lines: newLines})

	raw := make([][]byte, len(newLines))
	for i, l := range newLines {
		raw[i] = []byte(l)
	}

	if err := h.client.SetBufferLines(p.buf, first, last, false, raw); err != nil {
		logger.Error("edit %v view lines %d-%d: %v", v, first+1, last, err)
	}
}

// --- Zoom ---
//
// Neovim has no per-window zoom; the GUI font size is the closest analog
// and only takes effect in GUIs. The editor reports its current size
// through the zoom notification, NoteZoom records it, and SetZoom mirrors
// the absolute size to the other side.

// NoteZoom records the font size the editor reported for the view.
func (h *Host) NoteZoom(v types.Side, zoom int) { h.panes[v].zoom = zoom }

func (h *Host) Zoom(v types.Side) int { return h.panes[v].zoom }

// SetZoom applies zoom as the absolute guifont height. Zero and below mean
// the size is unknown; only the cache is updated then.
func (h *Host) SetZoom(v types.Side, zoom int) {
	h.panes[v].zoom = zoom

	if zoom <= 0 {
		return
	}

	err := h.client.ExecLua(`
		local size = ...
		local ok, name = pcall(function()
			return vim.o.guifont:match('^(.*:h)%d+$')
		end)
		if ok and name then
			vim.o.guifont = name .. tostring(size)
		end
	`, nil, zoom)
	if err != nil {
		logger.Error("zoom %v view: %v", v, err)
	}
}

// SetStatus publishes the status line text; the Lua side renders
// vim.g.comparetab_status in its statusline component.
func (h *Host) SetStatus(text string) {
	err := h.client.ExecLua(`
		vim.g.comparetab_status = ...
		vim.cmd('redrawstatus')
	`, nil, text)
	if err != nil {
		logger.Error("status update: %v", err)
	}
}

// --- Transient feedback ---

func (h *Host) BlinkLine(v types.Side, line int) {
	p := h.panes[v]

	err := h.client.ExecLua(`
		local buf, ns, line = ...
		local id = vim.api.nvim_buf_set_extmark(buf, ns, line, 0, {
			line_hl_group = 'Visual',
		})
		vim.defer_fn(function()
			pcall(vim.api.nvim_buf_del_extmark, buf, ns, id)
		end, 400)
	`, nil, int(p.buf), h.nsBlink, line)
	if err != nil {
		logger.Error("blink %v view line %d: %v", v, line, err)
	}
}

func (h *Host) FlashFrame() {
	err := h.client.ExecLua(`
		local saved = vim.o.winhighlight
		for _, win in ipairs(vim.api.nvim_list_wins()) do
			vim.wo[win].winhighlight = 'Normal:Visual'
		end
		vim.defer_fn(function()
			for _, win in ipairs(vim.api.nvim_list_wins()) do
				pcall(function() vim.wo[win].winhighlight = saved end)
			end
		end, 120)
	`, nil)
	if err != nil {
		logger.Error("flash frame: %v", err)
	}
}
