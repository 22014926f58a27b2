package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type noWait struct{}

func (noWait) Next(int) time.Duration { return 0 }

type permanentErr struct{}

func (permanentErr) Error() string   { return "no way" }
func (permanentErr) Permanent() bool { return true }

func TestExpoJitter_Doubles(t *testing.T) {
	b := ExpoJitter{Base: time.Second, Max: 3 * time.Second}
	require.Equal(t, time.Second, b.Next(0))
	require.Equal(t, 2*time.Second, b.Next(1))
	require.Equal(t, 3*time.Second, b.Next(2))
	require.Equal(t, time.Second, b.Next(-1))
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, Policy{Name: "t_success", Attempts: 3, Backoff: noWait{}})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls, exhausted := 0, 0
	p := Policy{Name: "t_exhaust", Attempts: 3, Backoff: noWait{}, OnExhaust: func(error) { exhausted++ }}
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	}, p)
	require.EqualError(t, err, "down")
	require.Equal(t, 3, calls)
	require.Equal(t, 1, exhausted)
}

func TestFetchPolicy_StopsOnPermanent(t *testing.T) {
	p := FetchPolicy("t_permanent", 5, time.Millisecond, nil)
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return permanentErr{}
	}, p)
	require.Error(t, err)
	require.True(t, IsPermanent(err))
	require.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Name: "t_cancel", Attempts: 5, Backoff: ExpoJitter{Base: time.Hour}}
	err := Do(ctx, func(context.Context) error {
		cancel()
		return errors.New("fail")
	}, p)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchPolicy_RetriesInnerDeadline(t *testing.T) {
	p := FetchPolicy("t_inner_deadline", 3, time.Millisecond, nil)
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			reqCtx, cancel := context.WithTimeout(ctx, time.Nanosecond)
			defer cancel()
			<-reqCtx.Done()
			return fmt.Errorf("GET runners/1/jobs: %w", reqCtx.Err())
		}
		return nil
	}, p)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestDo_StopsWhenOperationDeadlinePasses(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	calls := 0
	err := Do(ctx, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	}, FetchPolicy("t_outer_deadline", 5, time.Millisecond, nil))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, calls)
}
