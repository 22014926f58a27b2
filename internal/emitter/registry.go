package emitter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

var (
	PipelineLabels = []string{"group_id", "path_with_namespace", "pipeline_id", "source", "ref", "status"}
	JobLabels      = []string{
		"group_id", "runner_description", "job_id", "job_name",
		"path_with_namespace", "source", "pipeline_id", "ref", "status",
	}
)

type family struct {
	duration *prometheus.GaugeVec
	queued   *prometheus.GaugeVec
	executed *prometheus.CounterVec
}

func newFamily(kind ci.Kind, labels []string) *family {
	return &family{
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: fmt.Sprintf("gitlab_%s_duration_seconds", kind),
			Help: fmt.Sprintf("Duration of GitLab %s in seconds", kind),
		}, labels),
		queued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: fmt.Sprintf("gitlab_%s_queued_duration_seconds", kind),
			Help: fmt.Sprintf("Queued duration of GitLab %s in seconds", kind),
		}, labels),
		executed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("gitlab_%s_executed_counts_total", kind),
			Help: fmt.Sprintf("Executed counts of GitLab %s", kind),
		}, labels),
	}
}

func (f *family) collectors() []prometheus.Collector {
	return []prometheus.Collector{f.duration, f.queued, f.executed}
}

func (f *family) reset() {
	f.duration.Reset()
	f.queued.Reset()
	f.executed.Reset()
}

// Registry holds the CI series between two scrapes. Every Gather empties it,
// so a sample is served to exactly one scrape.
type Registry struct {
	mu       sync.Mutex
	reg      *prometheus.Registry
	families map[ci.Kind]*family
}

var _ ci.Sink = (*Registry)(nil)
var _ prometheus.Gatherer = (*Registry)(nil)

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		families: map[ci.Kind]*family{
			ci.KindPipeline: newFamily(ci.KindPipeline, PipelineLabels),
			ci.KindJob:      newFamily(ci.KindJob, JobLabels),
		},
	}
	for _, f := range r.families {
		r.reg.MustRegister(f.collectors()...)
	}
	return r
}

func (r *Registry) Name() string { return "prometheus" }

func (r *Registry) Emit(_ context.Context, kind ci.Kind, records []ci.Record) error {
	f, ok := r.families[kind]
	if !ok {
		return fmt.Errorf("unknown record kind %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		values := LabelValues(rec)
		f.duration.WithLabelValues(values...).Set(rec.Duration)
		f.queued.WithLabelValues(values...).Set(rec.QueuedDuration)
		f.executed.WithLabelValues(values...).Inc()
	}
	return nil
}

// Gather reads and clears the registry in one step.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mfs, err := r.reg.Gather()
	for _, f := range r.families {
		f.reset()
	}
	return mfs, err
}

// Handler serves the CI series followed by the extra gatherers, which are
// read but never cleared.
func (r *Registry) Handler(extra ...prometheus.Gatherer) http.Handler {
	gs := append(prometheus.Gatherers{r}, extra...)
	return promhttp.HandlerFor(gs, promhttp.HandlerOpts{
		ErrorHandling:      promhttp.ContinueOnError,
		DisableCompression: true,
	})
}

func LabelValues(rec ci.Record) []string {
	pipelineID := strconv.FormatInt(rec.PipelineID, 10)
	switch rec.Kind {
	case ci.KindJob:
		return []string{
			rec.GroupID, rec.RunnerDescription, strconv.FormatInt(rec.ID, 10), rec.JobName,
			rec.PathWithNamespace, rec.Source, pipelineID, rec.Ref, rec.Status,
		}
	default:
		return []string{rec.GroupID, rec.PathWithNamespace, pipelineID, rec.Source, rec.Ref, rec.Status}
	}
}
