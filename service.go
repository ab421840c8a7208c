package main

import (
	"context"
	"fmt"

	"github.com/neovim/go-client/nvim"

	"comparetab/logger"
	"comparetab/nvimview"
	"comparetab/session"
	"comparetab/settings"
	"comparetab/snapshot"
	"comparetab/types"
)

// service owns one editor connection: the Neovim-backed view host, the
// compare session and the event loop both feed on. Every RPC handler posts
// onto the loop, so the session only ever runs on one goroutine.
type service struct {
	nv   *nvim.Nvim
	host *nvimview.Host
	sess *session.Session

	loop chan func()
	quit chan struct{}
}

func newService(n *nvim.Nvim, st settings.Settings) (*service, error) {
	host, err := nvimview.New(n)
	if err != nil {
		return nil, err
	}

	s := &service{
		nv:   n,
		host: host,
		loop: make(chan func(), 256),
		quit: make(chan struct{}),
	}

	s.sess = session.New(host, st, s.post)
	host.SetNotifier(sessionNotifier{s.sess})
	s.sess.Status = s.publishStatus

	if err := s.registerHandlers(st); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *service) post(fn func()) {
	select {
	case s.loop <- fn:
	case <-s.quit:
	}
}

func (s *service) run() {
	for {
		select {
		case fn := <-s.loop:
			fn()
		case <-s.quit:
			return
		}
	}
}

func (s *service) stop() {
	close(s.quit)
}

// publishStatus renders the diff counts into the editor's status line.
func (s *service) publishStatus(c types.DiffCounts, stale bool) {
	if c == (types.DiffCounts{}) {
		s.host.SetStatus("")
		return
	}

	text := fmt.Sprintf("+%d -%d ~%d", c.Added, c.Removed, c.Changed)
	if c.Moved > 0 {
		text += fmt.Sprintf(" >%d", c.Moved)
	}
	if stale {
		text += " (stale)"
	}
	s.host.SetStatus(text)
}

// sessionNotifier forwards the host's derived edit notifications. It is only
// invoked from HandleLinesEvent and the host's own mutations, both of which
// already run on the service loop.
type sessionNotifier struct {
	sess *session.Session
}

func (n sessionNotifier) BeforeDelete(v types.Side, startLine, endLine int, action types.ActionKind) {
	n.sess.OnBeforeDelete(v, startLine, endLine, action)
}

func (n sessionNotifier) Modified(v types.Side, startLine, linesAdded int, action types.ActionKind) {
	n.sess.OnModified(v, startLine, linesAdded, action)
}

func (s *service) registerHandlers(st settings.Settings) error {
	handlers := map[string]interface{}{
		"comparetab_compare": func(mainBuf, mainWin, subBuf, subWin int, mainPath, subPath string,
			selection [4]int) {
			s.post(func() { s.compare(mainBuf, mainWin, subBuf, subWin, mainPath, subPath, selection, st) })
		},
		"comparetab_compare_saved": func(mainBuf, mainWin, subBuf, subWin int, path string) {
			s.post(func() {
				s.compareAgainst(mainBuf, mainWin, subBuf, subWin, path, session.TempLastSaved, st)
			})
		},
		"comparetab_compare_git": func(mainBuf, mainWin, subBuf, subWin int, path string) {
			s.post(func() {
				s.compareAgainst(mainBuf, mainWin, subBuf, subWin, path, session.TempVcs, st)
			})
		},
		"comparetab_close": func(buf int) {
			s.post(func() { s.sess.ClosePair(buf) })
		},
		"comparetab_next": func() {
			s.post(func() { s.sess.NextDiff() })
		},
		"comparetab_prev": func() {
			s.post(func() { s.sess.PrevDiff() })
		},
		"comparetab_first": func() {
			s.post(func() { s.sess.FirstDiff() })
		},
		"comparetab_last": func() {
			s.post(func() { s.sess.LastDiff() })
		},
		"comparetab_margin_click": func(buf, line int, ctrl bool) {
			s.post(func() {
				if v := s.host.SideOf(nvim.Buffer(buf)); v >= 0 {
					s.sess.OnMarginClicked(v, line, ctrl)
				}
			})
		},
		"comparetab_viewport": func(buf int) {
			s.post(func() {
				if v := s.host.SideOf(nvim.Buffer(buf)); v >= 0 {
					s.sess.OnPaint()
					s.sess.OnViewportChanged(v)
				}
			})
		},
		"comparetab_zoom": func(buf, zoom int) {
			s.post(func() {
				if v := s.host.SideOf(nvim.Buffer(buf)); v >= 0 {
					s.host.NoteZoom(v, zoom)
					s.sess.OnZoom(v)
				}
			})
		},
		"comparetab_saved": func(buf int) {
			s.post(func() {
				if v := s.host.SideOf(nvim.Buffer(buf)); v >= 0 {
					s.sess.OnSaved(v)
				}
			})
		},
		"comparetab_activated": func(buf int) {
			s.post(func() { s.sess.OnBufferActivated(buf) })
		},
		"comparetab_closing": func(buf int) {
			s.post(func() { s.sess.OnClosing(buf) })
		},
		"comparetab_undo": func() {
			s.post(func() { s.host.SetPendingAction(types.ActionUndo) })
		},
		"comparetab_redo": func() {
			s.post(func() { s.host.SetPendingAction(types.ActionRedo) })
		},
	}

	for name, fn := range handlers {
		if err := s.nv.RegisterHandler(name, fn); err != nil {
			return err
		}
	}

	if err := s.nv.RegisterHandler("nvim_buf_lines_event",
		func(_ *nvim.Nvim, buf nvim.Buffer, changedtick int64, first, last int64, linedata [][]byte, more bool) {
			lines := make([]string, len(linedata))
			for i, l := range linedata {
				lines[i] = string(l)
			}
			s.post(func() { s.host.HandleLinesEvent(buf, int(first), int(last), lines) })
		}); err != nil {
		return err
	}

	return s.nv.RegisterHandler("nvim_buf_detach_event", func(_ *nvim.Nvim, buf nvim.Buffer) {
		s.post(func() { logger.Debug("buffer %d detached", int(buf)) })
	})
}

// compareAgainst diffs the live main buffer against a historical version of
// the same file, loaded into the sub view's scratch buffer.
func (s *service) compareAgainst(mainBuf, mainWin, subBuf, subWin int, path string,
	src session.TempSource, st settings.Settings) {
	content, err := s.tempContent(path, src)
	if err != nil {
		logger.Error("temp source for %s: %v", path, err)
		return
	}

	if err := s.host.Bind(types.Main, nvim.Buffer(mainBuf), nvim.Window(mainWin)); err != nil {
		logger.Error("bind main view: %v", err)
		return
	}
	if err := s.host.Bind(types.Sub, nvim.Buffer(subBuf), nvim.Window(subWin)); err != nil {
		logger.Error("bind sub view: %v", err)
		return
	}

	tag := s.sess.StartCompareAgainst(
		session.FileSpec{BuffID: mainBuf, Path: path},
		session.FileSpec{BuffID: subBuf, Path: path, Temp: src},
		content,
		compareOptions(st),
	)

	if tag == types.CompareMatch {
		logger.Info("%s is unchanged", path)
	}
}

// tempContent resolves the document to compare against: the session's saved
// snapshot (falling back to disk) or the committed version.
func (s *service) tempContent(path string, src session.TempSource) (string, error) {
	if src == session.TempVcs {
		return snapshot.GitHead(context.Background(), path)
	}

	if text, ok, err := s.sess.Snapshots().Get(path); err == nil && ok {
		return text, nil
	}
	return snapshot.LastSaved(path)
}

func compareOptions(st settings.Settings) types.CompareOptions {
	return types.CompareOptions{
		IgnoreCase:        st.IgnoreCase,
		IgnoreSpaces:      st.IgnoreSpaces,
		IgnoreEmptyLines:  st.IgnoreEmptyLines,
		IgnoreLineNumbers: st.IgnoreLineNumbers,
		DetectMoves:       st.DetectMoves,
	}
}

func (s *service) compare(mainBuf, mainWin, subBuf, subWin int, mainPath, subPath string,
	selection [4]int, st settings.Settings) {
	if err := s.host.Bind(types.Main, nvim.Buffer(mainBuf), nvim.Window(mainWin)); err != nil {
		logger.Error("bind main view: %v", err)
		return
	}
	if err := s.host.Bind(types.Sub, nvim.Buffer(subBuf), nvim.Window(subWin)); err != nil {
		logger.Error("bind sub view: %v", err)
		return
	}

	opt := compareOptions(st)

	if selection[0] >= 0 && selection[1] >= 0 && selection[2] >= 0 && selection[3] >= 0 {
		opt.SelectionCompare = true
		opt.Selections = [2]types.Selection{
			{First: selection[0], Last: selection[1]},
			{First: selection[2], Last: selection[3]},
		}
	}

	tag := s.sess.StartCompare(
		session.FileSpec{BuffID: mainBuf, Path: mainPath},
		session.FileSpec{BuffID: subBuf, Path: subPath},
		opt,
	)

	if tag == types.CompareMatch {
		logger.Info("%s and %s match", mainPath, subPath)
	}
}
