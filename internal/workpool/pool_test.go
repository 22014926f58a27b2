package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_RunsTasks(t *testing.T) {
	p := New(nil, 2)
	p.Start(context.Background())
	defer func() { _ = p.Close() }()

	err := p.Do(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)

	boom := errors.New("boom")
	err = p.Do(context.Background(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := New(nil, 2)
	p.Start(context.Background())
	defer func() { _ = p.Close() }()

	var cur, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func(context.Context) error {
				n := atomic.AddInt32(&cur, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&cur, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPool_CallerContext(t *testing.T) {
	p := New(nil, 1)
	p.Start(context.Background())
	defer func() { _ = p.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Do(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_Closed(t *testing.T) {
	p := New(nil, 1)
	p.Start(context.Background())
	require.NoError(t, p.Close())

	err := p.Do(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}

func TestPool_DoBeforeStart(t *testing.T) {
	p := New(nil, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	called := false
	err := p.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrNotStarted)
	require.False(t, called)
	require.NoError(t, ctx.Err())
}
