package tracker

import (
	"time"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
)

type Key struct {
	Kind     ci.Kind
	Resource int64
}

// State is everything the exporter remembers between cycles: the poll window,
// one Watchlist per resource and the project to group bindings. It has a
// single writer (the poll loop) and is not safe for concurrent use.
type State struct {
	lastEnd    time.Time
	started    bool
	watchlists map[Key]Watchlist
	groups     map[int64]int64
}

func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

func (s *State) Reset() {
	s.lastEnd = time.Time{}
	s.started = false
	s.watchlists = make(map[Key]Watchlist)
	s.groups = make(map[int64]int64)
}

// NextWindow returns [lastEnd, now) and remembers now. The very first window
// is empty so nothing finished before start-up is reported.
func (s *State) NextWindow(now time.Time) Window {
	start := now
	if s.started {
		start = s.lastEnd
	}
	s.lastEnd = now
	s.started = true
	return Window{Start: start, End: now}
}

func (s *State) Watchlist(k Key) Watchlist {
	w, ok := s.watchlists[k]
	if !ok {
		w = Watchlist{}
		s.watchlists[k] = w
	}
	return w.Clone()
}

// Commit replaces the Watchlists of every staged resource at once.
func (s *State) Commit(staged map[Key]Watchlist) {
	for k, w := range staged {
		s.watchlists[k] = w
	}
}

// BindGroups records project to group ownership. A project keeps the first
// group it was bound to.
func (s *State) BindGroups(m map[int64]int64) int {
	added := 0
	for project, group := range m {
		if _, ok := s.groups[project]; ok {
			continue
		}
		s.groups[project] = group
		added++
	}
	return added
}

func (s *State) GroupOf(projectID int64) (int64, bool) {
	g, ok := s.groups[projectID]
	return g, ok
}

func (s *State) Outstanding(kind ci.Kind) int {
	n := 0
	for k, w := range s.watchlists {
		if k.Kind == kind {
			n += len(w)
		}
	}
	return n
}
