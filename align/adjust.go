package align

import (
	"comparetab/types"
)

// Adjust shifts the table after an edit changed the line count of one view:
// lineDelta > 0 for an insertion of that many lines at atLine, lineDelta < 0
// for a deletion starting there. Anchors inside a deleted span are removed,
// since their lines no longer exist and keeping them would leave ghost
// anchors. Every surviving anchor at or after atLine is shifted by the delta.
// The pairing of surviving anchors is untouched; the diff is not recomputed.
func (t *Table) Adjust(side types.Side, atLine, lineDelta int) {
	if lineDelta == 0 {
		return
	}

	tab := *t

	start := tab.IndexFirstAtOrAfter(side, atLine)
	if start >= len(tab) || tab[start].Anchor(side).Line < atLine {
		return
	}

	if lineDelta < 0 {
		end := start
		for end < len(tab) && tab[end].Anchor(side).Line+lineDelta < atLine {
			end++
		}

		if end > start {
			tab = append(tab[:start], tab[end:]...)
		}
	}

	for i := start; i < len(tab); i++ {
		tab[i].Anchor(side).Line += lineDelta
	}

	*t = tab
}
