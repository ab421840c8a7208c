// Package compare runs one comparison of the two loaded documents: it feeds
// the (optionally filtered) text through a line-level diff, applies change
// markers to both views and produces the alignment table and the per-category
// totals for the status line.
package compare

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"comparetab/align"
	"comparetab/logger"
	"comparetab/types"
	"comparetab/view"
)

// Result is the outcome of one comparison run.
type Result struct {
	Tag    types.CompareTag
	Table  align.Table
	Counts types.DiffCounts
}

// side holds one view's compared lines after option filtering, with the
// document line behind every compared line.
type side struct {
	lines []string
	doc   []int
}

// blockKind classifies one run of diff output.
type blockKind int

const (
	blockEqual blockKind = iota
	blockChanged
	blockDeleted
	blockInserted
)

type block struct {
	kind blockKind

	mainStart, mainLen int // compared-line indexes into the main side
	subStart, subLen   int

	moved bool
}

// Run compares the documents currently loaded in the host. Markers on both
// views are replaced; annotations are left for the alignment pass.
func Run(h view.Host, opt types.CompareOptions) Result {
	defer logger.Trace("compare run")()

	main := prepare(h, types.Main, opt)
	sub := prepare(h, types.Sub, opt)

	h.ClearMarkers(types.Main, 0, h.LineCount(types.Main))
	h.ClearMarkers(types.Sub, 0, h.LineCount(types.Sub))

	blocks := diffBlocks(main, sub)

	if opt.DetectMoves {
		detectMoves(main, sub, blocks)
	}

	res := Result{Tag: types.CompareMatch}

	for _, b := range blocks {
		switch b.kind {
		case blockEqual:
			for i := 0; i < b.mainLen; i++ {
				res.Table = append(res.Table, align.Entry{
					Main: align.Anchor{Line: main.doc[b.mainStart+i]},
					Sub:  align.Anchor{Line: sub.doc[b.subStart+i]},
				})
			}
			res.Counts.Matched += b.mainLen

		case blockChanged:
			res.Tag = types.CompareMismatch

			res.Table = append(res.Table, align.Entry{
				Main: align.Anchor{Line: main.doc[b.mainStart], Mask: types.MarkerChanged},
				Sub:  align.Anchor{Line: sub.doc[b.subStart], Mask: types.MarkerChanged},
			})

			paired := b.mainLen
			if b.subLen < paired {
				paired = b.subLen
			}

			for i := 0; i < paired; i++ {
				h.SetMarker(types.Main, main.doc[b.mainStart+i], types.MarkerChanged)
				h.SetMarker(types.Sub, sub.doc[b.subStart+i], types.MarkerChanged)
			}
			for i := paired; i < b.mainLen; i++ {
				h.SetMarker(types.Main, main.doc[b.mainStart+i], types.MarkerRemoved)
			}
			for i := paired; i < b.subLen; i++ {
				h.SetMarker(types.Sub, sub.doc[b.subStart+i], types.MarkerAdded)
			}

			res.Counts.Changed += paired
			res.Counts.Removed += b.mainLen - paired
			res.Counts.Added += b.subLen - paired

		case blockDeleted:
			res.Tag = types.CompareMismatch

			mask := types.MarkerRemoved
			if b.moved {
				mask = types.MarkerMoved
				res.Counts.Moved += b.mainLen
			} else {
				res.Counts.Removed += b.mainLen
			}

			for i := 0; i < b.mainLen; i++ {
				h.SetMarker(types.Main, main.doc[b.mainStart+i], mask)
			}

		case blockInserted:
			res.Tag = types.CompareMismatch

			mask := types.MarkerAdded
			if b.moved {
				mask = types.MarkerMoved
				res.Counts.Moved += b.subLen
			} else {
				res.Counts.Added += b.subLen
			}

			for i := 0; i < b.subLen; i++ {
				h.SetMarker(types.Sub, sub.doc[b.subStart+i], mask)
			}
		}
	}

	return res
}

// prepare extracts one view's compared lines, applying the selection range
// and the ignore options.
func prepare(h view.Host, v types.Side, opt types.CompareOptions) side {
	all := docLines(h, v)

	first, last := 0, len(all)-1
	if opt.SelectionCompare && !opt.Selections[v].None() {
		first = opt.Selections[v].First
		last = opt.Selections[v].Last

		if first < 0 {
			first = 0
		}
		if last > len(all)-1 {
			last = len(all) - 1
		}
	}

	var s side
	for l := first; l <= last && l < len(all); l++ {
		norm := normalize(all[l], opt)

		if opt.IgnoreEmptyLines && norm == "" {
			continue
		}

		s.lines = append(s.lines, norm)
		s.doc = append(s.doc, l)
	}

	return s
}

func docLines(h view.Host, v types.Side) []string {
	lines := strings.Split(h.TextRange(v, 0, h.TextLength(v)), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// normalize maps a document line to its compared form.
func normalize(line string, opt types.CompareOptions) string {
	if opt.IgnoreLineNumbers {
		line = stripLineNumber(line)
	}

	if opt.IgnoreSpaces {
		line = strings.Map(func(r rune) rune {
			if r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, line)
	}

	if opt.IgnoreCase {
		line = strings.ToLower(line)
	}

	return line
}

// stripLineNumber drops a leading line-number token: optional indentation,
// digits and one trailing separator.
func stripLineNumber(line string) string {
	rest := strings.TrimLeft(line, " \t")

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}

	if i == 0 {
		return line
	}

	rest = rest[i:]
	if len(rest) > 0 && (rest[0] == ':' || rest[0] == '.' || rest[0] == ')') {
		rest = rest[1:]
	}

	return strings.TrimLeft(rest, " \t")
}

// diffBlocks runs the line-level diff and folds its output into blocks,
// merging a delete directly followed by an insert into a changed block.
func diffBlocks(main, sub side) []*block {
	dmp := diffmatchpatch.New()

	chars1, chars2, lineArray := dmp.DiffLinesToChars(joinLines(main.lines), joinLines(sub.lines))
	diffs := dmp.DiffMain(chars1, chars2, false)
	lineDiffs := dmp.DiffCharsToLines(diffs, lineArray)

	var blocks []*block

	mainAt, subAt := 0, 0

	for i := 0; i < len(lineDiffs); i++ {
		n := lineCount(lineDiffs[i].Text)
		if n == 0 {
			continue
		}

		switch lineDiffs[i].Type {
		case diffmatchpatch.DiffEqual:
			blocks = append(blocks, &block{
				kind:      blockEqual,
				mainStart: mainAt, mainLen: n,
				subStart: subAt, subLen: n,
			})
			mainAt += n
			subAt += n

		case diffmatchpatch.DiffDelete:
			b := &block{kind: blockDeleted, mainStart: mainAt, mainLen: n}
			mainAt += n

			if i+1 < len(lineDiffs) && lineDiffs[i+1].Type == diffmatchpatch.DiffInsert {
				m := lineCount(lineDiffs[i+1].Text)

				b.kind = blockChanged
				b.subStart, b.subLen = subAt, m

				subAt += m
				i++
			}

			blocks = append(blocks, b)

		case diffmatchpatch.DiffInsert:
			blocks = append(blocks, &block{kind: blockInserted, subStart: subAt, subLen: n})
			subAt += n
		}
	}

	return blocks
}

// detectMoves pairs deleted blocks with textually identical inserted blocks
// and flags both as moved. Each block pairs at most once.
func detectMoves(main, sub side, blocks []*block) {
	inserted := map[string][]*block{}

	for _, b := range blocks {
		if b.kind == blockInserted {
			key := strings.Join(sub.lines[b.subStart:b.subStart+b.subLen], "\n")
			inserted[key] = append(inserted[key], b)
		}
	}

	for _, b := range blocks {
		if b.kind != blockDeleted {
			continue
		}

		key := strings.Join(main.lines[b.mainStart:b.mainStart+b.mainLen], "\n")

		if free := inserted[key]; len(free) > 0 {
			free[0].moved = true
			inserted[key] = free[1:]

			b.moved = true
		}
	}
}

// joinLines joins with a trailing newline so the diff treats the last line
// like every other one.
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// lineCount counts full lines in a chunk of line-mode diff output; every
// line, including the last, carries its newline.
func lineCount(text string) int {
	return strings.Count(text, "\n")
}
