package workpool

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrClosed     = errors.New("workpool: closed")
	ErrNotStarted = errors.New("workpool: not started")
)

var (
	mBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workpool_busy_workers", Help: "Workers currently running a task.",
	})
	mTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workpool_tasks_total", Help: "Tasks run by the pool.",
	}, []string{"result"})
)

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Pool runs blocking calls on a fixed set of worker goroutines.
type Pool struct {
	log   *zap.Logger
	size  int
	tasks chan task

	mu     sync.Mutex
	g      *errgroup.Group
	cancel context.CancelFunc
	done   chan struct{}
}

func New(log *zap.Logger, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		log:   log.With(zap.String("component", "workpool")),
		size:  size,
		tasks: make(chan task),
		done:  make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.g != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			p.worker(gctx)
			return nil
		})
	}
	p.g = g
	go func() {
		<-gctx.Done()
		close(p.done)
	}()
	p.log.Info("workpool started", zap.Int("workers", p.size))
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.tasks:
			mBusy.Inc()
			err := t.fn(t.ctx)
			mBusy.Dec()
			if err != nil {
				mTasks.WithLabelValues("error").Inc()
			} else {
				mTasks.WithLabelValues("ok").Inc()
			}
			t.done <- err
		}
	}
}

// Do hands fn to a worker and waits for it. The caller stops waiting when its
// own ctx is done; fn observes the same ctx. Do fails fast with ErrNotStarted
// until Start has run.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	started := p.g != nil
	p.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	g, cancel := p.g, p.cancel
	p.mu.Unlock()
	if g == nil {
		return nil
	}
	cancel()
	return g.Wait()
}
