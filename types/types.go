package types

// NoLine is the universal "no line" sentinel. Lines are 0-indexed document
// lines everywhere in this module; visible (post-fold, post-annotation)
// lines exist only at the view boundary.
const NoLine = -1

// ActionKind tells which undo-history bucket a host edit notification
// belongs to. The deleted-section tracker pairs a delete performed by one
// kind with an insert performed by the complementary kind.
type ActionKind int

const (
	ActionUser ActionKind = iota
	ActionUndo
	ActionRedo
)

func (a ActionKind) String() string {
	switch a {
	case ActionUser:
		return "user"
	case ActionUndo:
		return "undo"
	case ActionRedo:
		return "redo"
	default:
		return "unknown"
	}
}

// Restore returns the action kind expected to revert an edit performed with
// this kind: an undo is brought back by a redo and anything else by an undo.
func (a ActionKind) Restore() ActionKind {
	if a == ActionUndo {
		return ActionRedo
	}
	return ActionUndo
}

// Side selects one of the two compared views. The main view is index 0 and
// the sub view index 1, so a Side doubles as a view index.
type Side int

const (
	Main Side = 0
	Sub  Side = 1
)

func (s Side) String() string {
	if s == Main {
		return "MAIN"
	}
	return "SUB"
}

// Other returns the opposite side.
func (s Side) Other() Side { return 1 - s }

// MarkerMask is a per-line bitset of diff markers kept by the host view.
type MarkerMask uint32

const (
	MarkerAdded MarkerMask = 1 << iota
	MarkerRemoved
	MarkerChanged
	MarkerMoved

	// Arrow markers are navigation feedback, not diff classifications;
	// they stay out of MarkerMaskLine so diff scans skip them.
	MarkerArrowDown
	MarkerArrowUp
)

// MarkerMaskLine covers every diff classification a line can carry.
const MarkerMaskLine = MarkerAdded | MarkerRemoved | MarkerChanged | MarkerMoved

// Selection is an inclusive line range. First > Last never occurs on a
// healthy pair; the session tears the pair down if edits produce it.
type Selection struct {
	First int
	Last  int
}

// None reports whether the selection is the empty sentinel.
func (s Selection) None() bool { return s.First < 0 || s.Last < 0 }

// NoSelection is the empty selection sentinel.
var NoSelection = Selection{First: NoLine, Last: NoLine}

// CompareOptions is the classification-options record handed to the diff
// collaborator when a comparison starts.
type CompareOptions struct {
	IgnoreCase        bool
	IgnoreSpaces      bool
	IgnoreEmptyLines  bool
	IgnoreLineNumbers bool
	DetectMoves       bool

	// FindUniqueMode switches navigation and marking to lines unique to one
	// side instead of paired differences.
	FindUniqueMode bool

	// Selection-limited compare: per-view inclusive line ranges.
	SelectionCompare bool
	Selections       [2]Selection
}

// DiffCounts are the per-category totals reported for the status line.
type DiffCounts struct {
	Added   int
	Removed int
	Changed int
	Moved   int
	Matched int
}

// CompareTag is the collaborator's result classification.
type CompareTag int

const (
	CompareMatch CompareTag = iota
	CompareMismatch
)

// Location is a navigation result: a view index and a document line.
// (view, NoLine) with view >= 0 means "blink in place, no movement";
// NoLocation means "no more diffs".
type Location struct {
	View int
	Line int
}

// NoLocation is the "no more diffs" sentinel.
var NoLocation = Location{View: -1, Line: NoLine}

// IsNone reports whether the location is the "no more diffs" sentinel.
func (l Location) IsNone() bool { return l.View < 0 }
