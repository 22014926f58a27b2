package tracker

import (
	"testing"
	"time"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"github.com/stretchr/testify/require"
)

func TestState_NextWindow(t *testing.T) {
	s := NewState()

	first := s.NextWindow(t0)
	require.Equal(t, Window{Start: t0, End: t0}, first)
	require.True(t, first.Empty())

	second := s.NextWindow(t0.Add(30 * time.Second))
	require.Equal(t, t0, second.Start)
	require.Equal(t, t0.Add(30*time.Second), second.End)

	third := s.NextWindow(t0.Add(time.Minute))
	require.Equal(t, second.End, third.Start)
}

func TestState_WatchlistCommit(t *testing.T) {
	s := NewState()
	k := Key{Kind: ci.KindJob, Resource: 7}

	w := s.Watchlist(k)
	require.Empty(t, w)

	s.Commit(map[Key]Watchlist{k: NewWatchlist(t0, 3, 9, 5)})
	require.Equal(t, []int64{9, 5, 3}, s.Watchlist(k).IDs())
	require.Equal(t, 3, s.Outstanding(ci.KindJob))
	require.Zero(t, s.Outstanding(ci.KindPipeline))

	// callers get a copy
	got := s.Watchlist(k)
	got[0].ID = 1000
	require.Equal(t, int64(9), s.Watchlist(k)[0].ID)

	other := Key{Kind: ci.KindPipeline, Resource: 7}
	require.Empty(t, s.Watchlist(other))
}

func TestState_BindGroupsFirstWins(t *testing.T) {
	s := NewState()
	require.Equal(t, 2, s.BindGroups(map[int64]int64{1: 10, 2: 20}))
	require.Equal(t, 1, s.BindGroups(map[int64]int64{1: 11, 3: 30}))

	g, ok := s.GroupOf(1)
	require.True(t, ok)
	require.Equal(t, int64(10), g)

	_, ok = s.GroupOf(4)
	require.False(t, ok)
}

func TestState_Reset(t *testing.T) {
	s := NewState()
	s.NextWindow(t0)
	s.Commit(map[Key]Watchlist{{Kind: ci.KindPipeline, Resource: 1}: NewWatchlist(t0, 1)})
	s.BindGroups(map[int64]int64{1: 10})

	s.Reset()

	require.Zero(t, s.Outstanding(ci.KindPipeline))
	_, ok := s.GroupOf(1)
	require.False(t, ok)
	require.True(t, s.NextWindow(t0.Add(time.Hour)).Empty())
}
