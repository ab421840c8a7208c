package viewsync

import (
	"comparetab/align"
	"comparetab/logger"
	"comparetab/nav"
	"comparetab/types"
	"comparetab/view"
)

// SavedLocation pins a view's caret line together with its offset from the
// viewport top, so the position can be re-established after filler
// annotations change the visual geometry.
type SavedLocation struct {
	View types.Side

	caretLine int
	offset    int
}

// SaveLocation captures the current location of a view.
func SaveLocation(h view.Host, v types.Side) *SavedLocation {
	caret := h.CaretLine(v)
	return &SavedLocation{
		View:      v,
		caretLine: caret,
		offset:    h.FirstVisibleLine(v) - h.VisibleFromDocLine(v, caret),
	}
}

// Restore scrolls the view so the caret line regains its saved viewport
// offset. It reports whether the viewport landed exactly where requested
// (the host may clamp).
func (l *SavedLocation) Restore(h view.Host) bool {
	target := h.VisibleFromDocLine(l.View, l.caretLine) + l.offset
	if target < 0 {
		target = 0
	}

	h.SetFirstVisibleLine(l.View, target)

	return h.FirstVisibleLine(l.View) == target
}

// Aligner drives delayed re-alignment passes. Realigning changes the visual
// geometry, which itself can look like fresh misalignment, so consecutive
// passes are capped before the pinned location is force-restored.
type Aligner struct {
	host view.Host

	// MaxRetries bounds consecutive realign passes before the run is
	// declared settled.
	MaxRetries int

	stored      *SavedLocation
	goToFirst   bool
	consecutive int
}

func NewAligner(h view.Host) *Aligner {
	return &Aligner{host: h, MaxRetries: 1}
}

// RequestGoToFirst makes the next Run jump to the first difference once the
// views are aligned. Used right after a fresh compare.
func (a *Aligner) RequestGoToFirst() { a.goToFirst = true }

// NoteViewportChange re-pins the location to the given view and mirrors its
// viewport; called on every scroll or caret update of a compared view.
func (a *Aligner) NoteViewportChange(tab align.Table, followCaret bool, v types.Side) {
	a.stored = SaveLocation(a.host, v)
	SyncViews(a.host, tab, followCaret, v)
}

// Busy reports whether a pinned location or a first-diff jump is waiting for
// the next Run. Viewport notifications must not re-pin while one is pending.
func (a *Aligner) Busy() bool { return a.stored != nil || a.goToFirst }

// Reset drops any pinned location and pending first-diff jump.
func (a *Aligner) Reset() {
	a.stored = nil
	a.goToFirst = false
	a.consecutive = 0
}

// Run performs one alignment pass. forceRealign skips the drift check.
// retry asks the caller to schedule another pass shortly (geometry such as
// the line-number margin may have shifted under the filler); done signals
// that a settled pass finished and pair status can be refreshed.
func (a *Aligner) Run(tab align.Table, opt types.CompareOptions, navOpt nav.Options, forceRealign bool) (retry, done bool) {
	if len(tab) == 0 {
		return false, false
	}

	h := a.host

	realign := a.goToFirst || forceRealign

	if !realign {
		v := h.FocusedView()
		if a.stored != nil {
			v = a.stored.View
		}

		realign = IsAlignmentNeeded(h, tab, v)
	}

	if realign {
		logger.Debug("aligning diffs")

		if a.stored == nil && !a.goToFirst {
			a.stored = SaveLocation(h, h.FocusedView())
		}

		AlignDiffs(h, tab, opt)
	}

	if a.goToFirst {
		logger.Debug("go to first diff")

		a.goToFirst = false

		if loc := nav.JumpToFirstChange(h, tab, navOpt, true, true); loc.View >= 0 {
			SyncViews(h, tab, navOpt.FollowCaret, types.Side(loc.View))
		}

		return false, true
	}

	if a.stored != nil {
		if !realign {
			a.consecutive = 0
		} else {
			a.consecutive++
			if a.consecutive > a.MaxRetries {
				a.consecutive = 0
			} else if a.stored.Restore(h) {
				SyncViews(h, tab, navOpt.FollowCaret, a.stored.View)
			}
		}

		if a.consecutive > 0 {
			return true, false
		}

		if realign {
			a.stored.Restore(h)
		}

		SyncViews(h, tab, navOpt.FollowCaret, a.stored.View)

		a.stored = nil

		return false, true
	}

	if opt.FindUniqueMode {
		SyncViews(h, tab, navOpt.FollowCaret, h.FocusedView())
	}

	return false, false
}
