package tracker

import "time"

// Window is the interval a cycle reports finished items for. An item is due
// when Start < finished_at <= End.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Empty() bool { return !w.End.After(w.Start) }

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }
