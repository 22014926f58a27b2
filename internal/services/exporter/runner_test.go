package exporter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NordCoder/Pipewatch/internal/repository/gitlab"
	"github.com/stretchr/testify/require"
)

func TestRunner_HealthFollowsSuccess(t *testing.T) {
	f := newFixture(t)
	r := New(nil, f.uc, time.Minute)

	require.ErrorIs(t, r.Healthy(context.Background()), ErrStale)
	require.NoError(t, r.tick(context.Background()))
	require.NoError(t, r.Healthy(context.Background()))

	r.lastSuccess.Store(time.Now().Add(-4 * time.Minute).UnixNano())
	require.ErrorIs(t, r.Healthy(context.Background()), ErrStale)
}

func TestRunner_StopsOnFatalError(t *testing.T) {
	f := newFixture(t)
	f.uc.Tokens = staticTokens{err: gitlab.ErrNoUsableToken}
	r := New(nil, f.uc, time.Hour)

	err := r.Run(context.Background())
	require.ErrorIs(t, err, gitlab.ErrNoUsableToken)
}

func TestRunner_KeepsPollingWhenTokenCheckFails(t *testing.T) {
	f := newFixture(t)
	f.uc.Tokens = staticTokens{err: errors.New("gitlab: check tokens: EOF")}
	r := New(nil, f.uc, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, r.LastSuccess().IsZero())
	require.ErrorIs(t, r.Healthy(context.Background()), ErrStale)
}

func TestRunner_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	r := New(nil, f.uc, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.Run(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.False(t, r.LastSuccess().IsZero())
}
