// Package session owns the compared-pair registry and the event-loop state
// machine around it: it starts and closes comparisons, routes host
// notifications to the deleted-section trackers and the aligner, and
// schedules the delayed re-alignment and auto-recompare passes.
package session

import (
	"time"

	"github.com/google/uuid"

	"comparetab/align"
	"comparetab/compare"
	"comparetab/delay"
	"comparetab/logger"
	"comparetab/nav"
	"comparetab/settings"
	"comparetab/snapshot"
	"comparetab/track"
	"comparetab/types"
	"comparetab/view"
	"comparetab/viewsync"
)

const (
	alignDelay       = 30 * time.Millisecond
	tempSelectExpiry = 2 * time.Second
	arrowExpiry      = 2 * time.Second

	// Auto-recompare backs off longer after an in-line change because the
	// user is likely still typing on that line.
	recompareDelayLines  = 500 * time.Millisecond
	recompareDelayInline = time.Second
)

// TempSource tells what a compared view's document was produced from: the
// live buffer, the last saved content, or the version-control head.
type TempSource int

const (
	TempNone TempSource = iota
	TempLastSaved
	TempVcs
)

// FileSpec identifies a host buffer taking part in a comparison.
type FileSpec struct {
	BuffID int
	Path   string
	Temp   TempSource
}

// ComparedFile is one side of a pair: the buffer shown in that view plus its
// deleted-section tracker.
type ComparedFile struct {
	BuffID  int
	Path    string
	Side    types.Side
	Temp    TempSource
	Deleted *track.Stack
}

// Pair is one active comparison.
type Pair struct {
	ID      string
	Files   [2]*ComparedFile
	Options types.CompareOptions

	Table  align.Table
	Counts types.DiffCounts

	// CompareDirty records that an edit desynchronized the markers from the
	// documents; ManuallyChanged additionally records that the user made the
	// edit directly rather than through an equalize copy.
	CompareDirty    bool
	ManuallyChanged bool

	// inEqualize counts nested equalize operations. Their host edits must
	// still reach the notification handlers (the deleted-section tracker
	// feeds on them), so equalize does not raise the notification guard.
	inEqualize int

	// autoUpdate is the pending auto-recompare delay, zero when none.
	autoUpdate time.Duration
}

// File returns the pair's file shown in the given view.
func (p *Pair) File(v types.Side) *ComparedFile { return p.Files[v] }

func (p *Pair) setCompareDirty() {
	p.CompareDirty = true

	if p.inEqualize == 0 {
		p.ManuallyChanged = true
	}
}

func (p *Pair) hasBuffer(buffID int) bool {
	return p.Files[types.Main].BuffID == buffID || p.Files[types.Sub].BuffID == buffID
}

// Session ties the host, the settings and the active pairs together. It is
// event-loop-bound like the host: all methods must be called from the owner
// goroutine, and delayed work is marshalled back onto it through run.
type Session struct {
	host     view.Host
	settings settings.Settings
	run      func(func())

	aligner *viewsync.Aligner
	snaps   *snapshot.Store

	pairs  []*Pair
	active *Pair

	// lock counts nested self-inflicted host operations. Notifications
	// arriving while it is held are echoes of our own calls and are dropped.
	lock int

	// notReverting distinguishes a fresh user edit from the restore half of
	// a tracked delete when the dirty-flag handling runs.
	notReverting bool

	// copiedSectionMarks stashes the source block's markers during an
	// equalize copy so the delete's undo payload can carry them across.
	copiedSectionMarks []types.MarkerMask

	// forceRealign requests a full realignment on the next align tick,
	// regardless of the drift check.
	forceRealign bool

	// Status, when set, receives the pair's diff counts whenever they are
	// (re)published: after a compare, an alignment pass, or a dirtying edit.
	// Zero counts mean no pair is shown.
	Status func(counts types.DiffCounts, stale bool)

	alignQ  *delay.Queue
	updateQ *delay.Queue

	tempSelQ    *delay.Queue
	tempSelView types.Side
	tempSelOn   bool

	arrowQ    *delay.Queue
	arrowView types.Side
	arrowLine int
	arrowOn   bool
}

// New creates a session over the host. run schedules a function onto the
// goroutine owning the session; delayed queue callbacks go through it. A nil
// run executes inline, which only suits single-goroutine tests.
func New(h view.Host, st settings.Settings, run func(fn func())) *Session {
	if run == nil {
		run = func(fn func()) { fn() }
	}

	s := &Session{
		host:         h,
		settings:     st,
		run:          run,
		aligner:      viewsync.NewAligner(h),
		snaps:        snapshot.NewStore(),
		notReverting: true,
	}
	s.aligner.MaxRetries = st.MaxRealignRetries

	s.alignQ = delay.NewQueue(func() { s.run(s.alignTick) })
	s.updateQ = delay.NewQueue(func() { s.run(s.recompareTick) })
	s.tempSelQ = delay.NewQueue(func() { s.run(s.expireTempSelect) })
	s.arrowQ = delay.NewQueue(func() { s.run(s.expireArrowMark) })

	return s
}

// hold raises the notification guard for the duration of a self-inflicted
// host operation. Usage: defer s.hold()().
func (s *Session) hold() func() {
	s.lock++
	return func() { s.lock-- }
}

func (s *Session) locked() bool { return s.lock > 0 }

// Active returns the pair the views currently show, or nil.
func (s *Session) Active() *Pair { return s.active }

// Snapshots exposes the session's snapshot store.
func (s *Session) Snapshots() *snapshot.Store { return s.snaps }

// StartCompare diffs the two views and registers the resulting pair. When
// the documents fully match no pair is registered; the returned tag tells
// the caller which case it got.
func (s *Session) StartCompare(main, sub FileSpec, opt types.CompareOptions) types.CompareTag {
	// A buffer belongs to at most one pair. Comparing over a live pair
	// replaces it, so its registry entry never goes stale.
	for _, id := range [2]int{main.BuffID, sub.BuffID} {
		if p := s.pairByBuffer(id); p != nil {
			s.closePair(p)
		}
	}

	defer s.hold()()

	s.alignQ.Cancel()
	s.updateQ.Cancel()

	s.host.ClearAllAnnotations(types.Main)
	s.host.ClearAllAnnotations(types.Sub)

	res := compare.Run(s.host, opt)
	if res.Tag == types.CompareMatch {
		logger.Info("compare: %s and %s match", main.Path, sub.Path)
		return res.Tag
	}

	p := &Pair{
		ID:      uuid.NewString(),
		Options: opt,
		Table:   res.Table,
		Counts:  res.Counts,
	}

	for i, file := range [2]FileSpec{main, sub} {
		v := types.Side(i)

		deleted := track.NewStack(s.host, v)
		deleted.ReplaceWindow = time.Duration(s.settings.ReplaceDetectMillis) * time.Millisecond
		deleted.PreserveMarkers = !s.settings.RecompareOnChange

		p.Files[v] = &ComparedFile{
			BuffID:  file.BuffID,
			Path:    file.Path,
			Side:    v,
			Temp:    file.Temp,
			Deleted: deleted,
		}
	}

	s.pairs = append(s.pairs, p)
	s.active = p
	s.notReverting = true

	s.aligner.Reset()
	if s.settings.GoToFirstDiff {
		s.aligner.RequestGoToFirst()
	}

	s.logStatus(p)
	s.alignQ.Post(alignDelay)

	return res.Tag
}

// StartCompareAgainst replaces the sub view's document with content and
// compares the main view against it. Used for the last-saved and VCS-head
// sources; sub.Temp records which one.
func (s *Session) StartCompareAgainst(main, sub FileSpec, content string, opt types.CompareOptions) types.CompareTag {
	func() {
		defer s.hold()()

		if n := s.host.TextLength(types.Sub); n > 0 {
			s.host.DeleteRange(types.Sub, 0, n)
		}
		s.host.InsertText(types.Sub, 0, content)
	}()

	return s.StartCompare(main, sub, opt)
}

// Recompare re-diffs the active pair in place, keeping its identity and its
// deleted-section history so undo keeps working across the re-diff.
func (s *Session) Recompare() {
	p := s.active
	if p == nil {
		return
	}

	defer s.hold()()

	s.alignQ.Cancel()
	s.updateQ.Cancel()
	s.expireArrowMark()
	p.autoUpdate = 0

	s.host.ClearAllAnnotations(types.Main)
	s.host.ClearAllAnnotations(types.Sub)

	res := compare.Run(s.host, p.Options)
	p.Table = res.Table
	p.Counts = res.Counts
	p.CompareDirty = false
	p.ManuallyChanged = false

	if res.Tag == types.CompareMatch && s.settings.PromptToCloseOnMatch {
		logger.Info("pair %s: documents match again", p.ID)
		s.closePair(p)
		return
	}

	s.forceRealign = true

	s.logStatus(p)
	s.alignQ.Post(alignDelay)
}

// ClosePair closes the pair owning buffID, if any.
func (s *Session) ClosePair(buffID int) {
	if p := s.pairByBuffer(buffID); p != nil {
		s.closePair(p)
	}
}

func (s *Session) closePair(p *Pair) {
	defer s.hold()()

	s.alignQ.Cancel()
	s.updateQ.Cancel()
	s.expireTempSelect()
	s.expireArrowMark()

	for _, v := range [2]types.Side{types.Main, types.Sub} {
		s.host.ClearMarkers(v, 0, s.host.LineCount(v))
		s.host.ClearAllAnnotations(v)
		s.host.ClearSelection(v)
	}

	for i, q := range s.pairs {
		if q == p {
			s.pairs = append(s.pairs[:i], s.pairs[i+1:]...)
			break
		}
	}

	if s.active == p {
		s.active = nil
		s.aligner.Reset()
	}

	logger.Info("pair %s closed", p.ID)

	if s.Status != nil {
		s.Status(types.DiffCounts{}, false)
	}
}

func (s *Session) pairByBuffer(buffID int) *Pair {
	for _, p := range s.pairs {
		if p.hasBuffer(buffID) {
			return p
		}
	}
	return nil
}

func (s *Session) navOptions(p *Pair) nav.Options {
	return nav.Options{
		FindUnique:  p.Options.FindUniqueMode,
		FollowCaret: s.settings.FollowingCaret,
	}
}

// NextDiff moves to the change after the current position.
func (s *Session) NextDiff() types.Location { return s.jump(true) }

// PrevDiff moves to the change before the current position.
func (s *Session) PrevDiff() types.Location { return s.jump(false) }

func (s *Session) jump(down bool) types.Location {
	p := s.active
	if p == nil {
		return types.NoLocation
	}

	defer s.hold()()

	loc := nav.JumpToChange(s.host, p.Table, s.navOptions(p), down, s.settings.WrapAround)
	s.markBlankAdjacent(loc, down)

	return loc
}

// FirstDiff moves to the first change of the pair.
func (s *Session) FirstDiff() types.Location {
	p := s.active
	if p == nil {
		return types.NoLocation
	}

	defer s.hold()()

	loc := nav.JumpToFirstChange(s.host, p.Table, s.navOptions(p), true, false)
	s.markBlankAdjacent(loc, true)

	return loc
}

// LastDiff moves to the last change of the pair.
func (s *Session) LastDiff() types.Location {
	p := s.active
	if p == nil {
		return types.NoLocation
	}

	defer s.hold()()

	loc := nav.JumpToLastChange(s.host, p.Table, s.navOptions(p), true, false)
	s.markBlankAdjacent(loc, false)

	return loc
}

func (s *Session) logStatus(p *Pair) {
	c := p.Counts

	dirty := ""
	if p.CompareDirty {
		dirty = " (stale)"
	}

	logger.Info("pair %s: +%d -%d ~%d moved %d matched %d%s",
		p.ID, c.Added, c.Removed, c.Changed, c.Moved, c.Matched, dirty)

	if s.Status != nil {
		s.Status(c, p.CompareDirty)
	}
}

// alignTick is the delayed-alignment pass. When an auto-recompare is owed it
// yields to it instead: aligning on a stale table would fight the re-diff.
func (s *Session) alignTick() {
	p := s.active
	if p == nil {
		return
	}

	if p.autoUpdate > 0 {
		s.updateQ.Post(p.autoUpdate)
		return
	}

	defer s.hold()()

	force := s.forceRealign
	s.forceRealign = false

	retry, done := s.aligner.Run(p.Table, p.Options, s.navOptions(p), force)

	if retry {
		s.alignQ.Post(alignDelay)
	}
	if done {
		s.logStatus(p)
	}
}

func (s *Session) recompareTick() {
	if s.active == nil {
		return
	}
	s.Recompare()
}

func (s *Session) expireTempSelect() {
	if !s.tempSelOn {
		return
	}

	s.tempSelOn = false
	s.tempSelQ.Cancel()

	defer s.hold()()
	s.host.ClearSelection(s.tempSelView)
}

// markBlankAdjacent drops a short-lived directional arrow on the line a jump
// landed on when that line has no diff marker of its own but sits next to
// blank filler. The arrow expires on its own after a couple of seconds; any
// previous arrow is cleared first.
func (s *Session) markBlankAdjacent(loc types.Location, down bool) {
	s.expireArrowMark()

	if loc.IsNone() {
		return
	}

	v := types.Side(loc.View)

	line := loc.Line
	if line < 0 && s.settings.FollowingCaret {
		line = s.host.CaretLine(v)
	}

	if line < 0 || view.IsLineMarked(s.host, v, line, types.MarkerMaskLine) ||
		!view.IsAdjacentAnnotation(s.host, v, line, down) {
		return
	}

	mask := types.MarkerArrowUp
	if down {
		mask = types.MarkerArrowDown
	}

	defer s.hold()()
	s.host.SetMarker(v, line, mask)

	s.arrowView, s.arrowLine, s.arrowOn = v, line, true
	s.arrowQ.Post(arrowExpiry)
}

func (s *Session) expireArrowMark() {
	if !s.arrowOn {
		return
	}

	s.arrowOn = false
	s.arrowQ.Cancel()

	defer s.hold()()
	s.host.SetMarker(s.arrowView, s.arrowLine, 0)
}
