package gitlab

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"github.com/NordCoder/Pipewatch/internal/obs/retry"
	"github.com/NordCoder/Pipewatch/internal/workpool"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	return newTestClientTimeout(t, h, time.Second)
}

func newTestClientTimeout(t *testing.T, h http.Handler, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	pool := workpool.New(nil, 2)
	pool.Start(context.Background())
	t.Cleanup(func() { _ = pool.Close() })

	c, err := New(Config{BaseURL: srv.URL + "/api/v4", RequestTimeout: timeout}, srv.Client(), pool, nil)
	require.NoError(t, err)
	return c.WithToken("secret")
}

func TestClient_ProjectPipelinesQueryAndAuth(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v4/projects/7/pipelines", r.URL.Path)
		require.Equal(t, "100", r.URL.Query().Get("per_page"))
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "id", r.URL.Query().Get("order_by"))
		require.Equal(t, "secret", r.Header.Get("PRIVATE-TOKEN"))
		_, _ = w.Write([]byte(`[{"id":12,"status":"success","ref":"main","source":"push"},{"id":11,"status":"running","ref":"dev","source":"web"}]`))
	}))

	got, err := c.ProjectPipelines(context.Background(), 7, 2)
	require.NoError(t, err)
	require.Equal(t, []ci.PipelineSummary{
		{ID: 12, Status: "success", Ref: "main", Source: "push"},
		{ID: 11, Status: "running", Ref: "dev", Source: "web"},
	}, got)
}

func TestClient_EmptyPageIsNotAnError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	got, err := c.RunnerJobs(context.Background(), 3, 9)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestClient_SkipsMalformedElements(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":5,"name":"build","status":"success","finished_at":"2026-03-03T12:00:30Z","duration":12.5,
			 "pipeline":{"id":70,"source":"push"},"project":{"id":7,"path_with_namespace":"acme/api"}},
			{"id":"not-a-number"},
			{"id":4,"name":"test","status":"running","finished_at":null,"duration":null}
		]`))
	}))

	jobs, err := c.RunnerJobs(context.Background(), 3, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, int64(5), jobs[0].ID)
	require.Equal(t, "acme/api", jobs[0].Project.PathWithNamespace)
	require.Equal(t, "push", jobs[0].Pipeline.Source)
	require.InDelta(t, 12.5, *jobs[0].Duration, 1e-9)
	require.Nil(t, jobs[1].FinishedAt)
	require.Nil(t, jobs[1].Duration)
}

func TestClient_PipelineDetail(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/projects/7/pipelines/70":
			_, _ = w.Write([]byte(`{"id":70,"project_id":7,"status":"failed","source":"push","ref":"main",
				"finished_at":"2026-03-03T12:00:30Z","duration":61,"queued_duration":1.5}`))
		case "/api/v4/projects/7/pipelines/71":
			_, _ = w.Write([]byte(`{"id":`))
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	p, err := c.Pipeline(ctx, 7, 70)
	require.NoError(t, err)
	require.Equal(t, "failed", p.Status)
	require.Equal(t, time.Date(2026, time.March, 3, 12, 0, 30, 0, time.UTC), p.FinishedAt.UTC())
	require.InDelta(t, 1.5, ci.OrZero(p.QueuedDuration), 1e-9)

	_, err = c.Pipeline(ctx, 7, 71)
	require.ErrorIs(t, err, ci.ErrMalformed)

	_, err = c.Pipeline(ctx, 7, 72)
	require.ErrorIs(t, err, ci.ErrNotFound)
}

func TestClient_StatusErrors(t *testing.T) {
	var code atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(code.Load()))
	}))
	ctx := context.Background()

	code.Store(http.StatusUnauthorized)
	_, err := c.GroupProjects(ctx, 1, 1)
	require.ErrorIs(t, err, ErrUnauthorized)

	code.Store(http.StatusTooManyRequests)
	_, err = c.Subgroups(ctx, 1, 1)
	require.ErrorIs(t, err, ErrRateLimited)

	code.Store(http.StatusBadGateway)
	_, err = c.GroupRunners(ctx, 1, 1)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadGateway, se.Code)
	require.False(t, retry.IsPermanent(err))
}

func TestClient_SlowRequestIsRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClientTimeout(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(300 * time.Millisecond):
			}
			return
		}
		_, _ = w.Write([]byte(`[{"id":5,"name":"build","status":"running"}]`))
	}), 50*time.Millisecond)

	var jobs []ci.Job
	attempts := 0
	err := retry.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		var err error
		jobs, err = c.RunnerJobs(ctx, 1, 1)
		return err
	}, retry.FetchPolicy("runner_jobs", 3, 10*time.Millisecond, nil))

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Len(t, jobs, 1)
}

func TestNewTransport_VerifiesTLSByDefault(t *testing.T) {
	require.False(t, newTransport(Config{}).TLSClientConfig.InsecureSkipVerify)
	require.True(t, newTransport(Config{InsecureSkipVerify: true}).TLSClientConfig.InsecureSkipVerify)
}
