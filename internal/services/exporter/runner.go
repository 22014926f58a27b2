package exporter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	mCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exporter_cycles_total", Help: "Poll cycles run",
	})
	mCycleErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exporter_cycle_errors_total", Help: "Poll cycles with at least one failed operation",
	})
	mEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exporter_records_emitted_total", Help: "Records handed to the sinks",
	}, []string{"kind"})
	mCycleDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "exporter_cycle_duration_seconds", Help: "Poll cycle duration",
		Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
	mWatchlist = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "exporter_watchlist_size", Help: "Outstanding unfinished items being tracked",
	}, []string{"kind"})
)

var ErrStale = errors.New("no successful cycle recently")

type Runner struct {
	Log      *zap.Logger
	UC       *Usecase
	Interval time.Duration

	lastSuccess atomic.Int64
}

func New(log *zap.Logger, uc *Usecase, interval time.Duration) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Log: log, UC: uc, Interval: interval}
}

func (r *Runner) tick(ctx context.Context) error {
	start := time.Now()
	defer func() { mCycleDur.Observe(time.Since(start).Seconds()) }()

	mCycles.Inc()
	stats, err := r.UC.Cycle(ctx)
	if err != nil {
		mCycleErr.Inc()
		return err
	}
	mEmitted.WithLabelValues(string(ci.KindPipeline)).Add(float64(stats.Pipelines))
	mEmitted.WithLabelValues(string(ci.KindJob)).Add(float64(stats.Jobs))
	mWatchlist.WithLabelValues(string(ci.KindPipeline)).Set(float64(r.UC.State.Outstanding(ci.KindPipeline)))
	mWatchlist.WithLabelValues(string(ci.KindJob)).Set(float64(r.UC.State.Outstanding(ci.KindJob)))

	if !stats.OK() {
		mCycleErr.Inc()
		r.Log.Warn("cycle finished with failures",
			zap.Strings("failed", stats.Failed),
			zap.Int("pipelines", stats.Pipelines), zap.Int("jobs", stats.Jobs))
		return nil
	}
	r.lastSuccess.Store(time.Now().UnixNano())
	r.Log.Debug("cycle done",
		zap.Time("window_start", stats.Window.Start),
		zap.Time("window_end", stats.Window.End),
		zap.Int("projects", stats.Projects), zap.Int("runners", stats.Runners),
		zap.Int("pipelines", stats.Pipelines), zap.Int("jobs", stats.Jobs),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Run polls every Interval until ctx is done or a cycle fails in a way the
// exporter cannot recover from. Cycles never overlap.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		if err := r.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.Log.Error("cycle aborted", zap.Error(err))
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) LastSuccess() time.Time {
	ns := r.lastSuccess.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Healthy reports an error unless a cycle succeeded within three intervals.
func (r *Runner) Healthy(context.Context) error {
	last := r.LastSuccess()
	if last.IsZero() {
		return fmt.Errorf("%w: none yet", ErrStale)
	}
	if age := time.Since(last); age > 3*r.Interval {
		return fmt.Errorf("%w: last %s ago", ErrStale, age.Truncate(time.Second))
	}
	return nil
}
