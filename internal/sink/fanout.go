package sink

import (
	"context"
	"fmt"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"github.com/NordCoder/Pipewatch/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var mSinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "exporter_sink_errors_total",
	Help: "Records batches an optional sink failed to accept.",
}, []string{"sink"})

// Named is a sink with a name for logs and metrics.
type Named interface {
	ci.Sink
	Name() string
}

// Fanout hands every batch to the primary sink and then to the optional ones.
// Only a primary failure is returned.
type Fanout struct {
	log      *zap.Logger
	primary  Named
	optional []Named
}

var _ ci.Sink = (*Fanout)(nil)

func NewFanout(log *zap.Logger, primary Named, optional ...Named) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fanout{log: log, primary: primary, optional: optional}
}

func (f *Fanout) Emit(ctx context.Context, kind ci.Kind, records []ci.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := f.primary.Emit(ctx, kind, records); err != nil {
		return fmt.Errorf("%s: %w", f.primary.Name(), err)
	}
	for _, s := range f.optional {
		if err := s.Emit(ctx, kind, records); err != nil {
			mSinkErrors.WithLabelValues(s.Name()).Inc()
			obs.WithTrace(ctx, f.log).Warn("sink emit failed",
				zap.String("sink", s.Name()), zap.String("kind", kind.String()),
				zap.Int("records", len(records)), zap.Error(err))
		}
	}
	return nil
}

func (f *Fanout) Names() []string {
	out := []string{f.primary.Name()}
	for _, s := range f.optional {
		out = append(out, s.Name())
	}
	return out
}
