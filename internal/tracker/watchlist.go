package tracker

import (
	"sort"
	"time"
)

type Entry struct {
	ID    int64
	Since time.Time
}

// Watchlist holds the ids of one resource still unfinished at the end of the
// last committed scan. Entries are strictly descending by ID.
type Watchlist []Entry

func NewWatchlist(since time.Time, ids ...int64) Watchlist {
	w := make(Watchlist, 0, len(ids))
	for _, id := range ids {
		w = append(w, Entry{ID: id, Since: since})
	}
	return w.normalize()
}

func (w Watchlist) IDs() []int64 {
	out := make([]int64, len(w))
	for i, e := range w {
		out[i] = e.ID
	}
	return out
}

func (w Watchlist) Contains(id int64) bool {
	i := sort.Search(len(w), func(i int) bool { return w[i].ID <= id })
	return i < len(w) && w[i].ID == id
}

func (w Watchlist) Clone() Watchlist {
	if w == nil {
		return nil
	}
	out := make(Watchlist, len(w))
	copy(out, w)
	return out
}

// normalize sorts descending and drops duplicate ids, keeping the oldest Since.
func (w Watchlist) normalize() Watchlist {
	sort.SliceStable(w, func(i, j int) bool { return w[i].ID > w[j].ID })
	out := w[:0]
	for _, e := range w {
		if n := len(out); n > 0 && out[n-1].ID == e.ID {
			if e.Since.Before(out[n-1].Since) {
				out[n-1].Since = e.Since
			}
			continue
		}
		out = append(out, e)
	}
	return out
}

// apply builds (w - remove) ∪ carry. Entries added before cutoff are evicted
// when cutoff is non-zero; their ids are returned separately.
func (w Watchlist) apply(remove map[int64]struct{}, carry []int64, now, cutoff time.Time) (Watchlist, []int64) {
	next := make(Watchlist, 0, len(w)+len(carry))
	var evicted []int64
	for _, e := range w {
		if _, ok := remove[e.ID]; ok {
			continue
		}
		if !cutoff.IsZero() && e.Since.Before(cutoff) {
			evicted = append(evicted, e.ID)
			continue
		}
		next = append(next, e)
	}
	for _, id := range carry {
		next = append(next, Entry{ID: id, Since: now})
	}
	return next.normalize(), evicted
}
