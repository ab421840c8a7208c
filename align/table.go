// Package align holds the live correspondence between the lines of the two
// compared views. The table is produced once by the compare collaborator and
// afterwards only shifted and pruned in response to edits; it is never
// recomputed here.
package align

import (
	"comparetab/types"
)

// Anchor is one side of an alignment entry: a document line plus the diff
// classification mask the collaborator assigned to it. A zero mask means the
// line matched its counterpart.
type Anchor struct {
	Line int
	Mask types.MarkerMask
}

// Entry declares that Main.Line of the main view corresponds to Sub.Line of
// the sub view. A table is valid iff both line sequences are non-decreasing.
type Entry struct {
	Main Anchor
	Sub  Anchor
}

// Anchor returns the entry's anchor for the given side.
func (e *Entry) Anchor(side types.Side) *Anchor {
	if side == types.Main {
		return &e.Main
	}
	return &e.Sub
}

// Table is an ordered sequence of entries, insertion order = line order.
type Table []Entry

// Clone returns an independent copy, used for the undo snapshots the
// deleted-section tracker captures before a delete lands.
func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	c := make(Table, len(t))
	copy(c, t)
	return c
}

// IndexFirstAtOrAfter returns the smallest index whose side-line is >= line,
// or len(t) if every entry lies before it. Entries with equal side-lines can
// repeat (several filler rows may map to one real line), so the halving probe
// below only narrows to some entry before the wanted cluster; the trailing
// linear scan settles on the first member.
func (t Table) IndexFirstAtOrAfter(side types.Side, line int) int {
	idx := 0

	for step := len(t) / 2; step > 0; step /= 2 {
		if t[idx+step].Anchor(side).Line < line {
			idx += step
		}
	}

	for idx < len(t) && t[idx].Anchor(side).Line < line {
		idx++
	}

	return idx
}

// MappedLine returns the corresponding line on the opposite side if line is
// an exact alignment anchor on side, and types.NoLine otherwise. Lines that
// exist only through filler have no mapping.
func (t Table) MappedLine(side types.Side, line int) int {
	if line < 0 {
		return types.NoLine
	}

	idx := t.IndexFirstAtOrAfter(side, line)
	if idx >= len(t) || t[idx].Anchor(side).Line != line {
		return types.NoLine
	}

	return t[idx].Anchor(side.Other()).Line
}

// Monotonic reports whether both line sequences are non-decreasing. The
// adjuster preserves this invariant; consumers may assert it in tests.
func (t Table) Monotonic() bool {
	for i := 1; i < len(t); i++ {
		if t[i].Main.Line < t[i-1].Main.Line || t[i].Sub.Line < t[i-1].Sub.Line {
			return false
		}
	}
	return true
}
