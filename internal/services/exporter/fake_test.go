package exporter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"github.com/NordCoder/Pipewatch/internal/obs/retry"
)

var t0 = time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := t0.Add(d)
	return &t
}

func sec(v float64) *float64 { return &v }

func page[T any](all []T, n int) []T {
	from := (n - 1) * ci.PageSize
	if from >= len(all) {
		return nil
	}
	to := from + ci.PageSize
	if to > len(all) {
		to = len(all)
	}
	return all[from:to]
}

// platform is an in-memory GitLab: one root group, newest items first.
type platform struct {
	mu        sync.Mutex
	projects  map[int64][]ci.Project
	subgroups map[int64][]ci.Group
	pipelines map[int64][]ci.Pipeline
	runners   map[int64][]ci.Runner
	jobs      map[int64][]ci.Job

	// detailFailures makes that many Pipeline calls fail before answering.
	detailFailures int
	detailCalls    int
}

func newPlatform() *platform {
	return &platform{
		projects:  map[int64][]ci.Project{},
		subgroups: map[int64][]ci.Group{},
		pipelines: map[int64][]ci.Pipeline{},
		runners:   map[int64][]ci.Runner{},
		jobs:      map[int64][]ci.Job{},
	}
}

func (p *platform) ProjectPipelines(_ context.Context, projectID int64, n int) ([]ci.PipelineSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ci.PipelineSummary
	for _, pl := range page(p.pipelines[projectID], n) {
		out = append(out, ci.PipelineSummary{ID: pl.ID, Status: pl.Status, Ref: pl.Ref, Source: pl.Source})
	}
	return out, nil
}

func (p *platform) Pipeline(_ context.Context, projectID, pipelineID int64) (*ci.Pipeline, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detailCalls++
	if p.detailFailures > 0 {
		p.detailFailures--
		return nil, errors.New("502 bad gateway")
	}
	for _, pl := range p.pipelines[projectID] {
		if pl.ID == pipelineID {
			cp := pl
			return &cp, nil
		}
	}
	return nil, ci.ErrNotFound
}

func (p *platform) RunnerJobs(_ context.Context, runnerID int64, n int) ([]ci.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return page(p.jobs[runnerID], n), nil
}

func (p *platform) GroupRunners(_ context.Context, groupID int64, n int) ([]ci.Runner, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return page(p.runners[groupID], n), nil
}

func (p *platform) GroupProjects(_ context.Context, groupID int64, n int) ([]ci.Project, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return page(p.projects[groupID], n), nil
}

func (p *platform) Subgroups(_ context.Context, groupID int64, n int) ([]ci.Group, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return page(p.subgroups[groupID], n), nil
}

func (p *platform) setPipelines(projectID int64, pls ...ci.Pipeline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pipelines[projectID] = pls
}

func (p *platform) setJobs(runnerID int64, jobs ...ci.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs[runnerID] = jobs
}

type staticTokens struct {
	src ci.Source
	err error
}

func (s staticTokens) Select(context.Context) (ci.Source, error) { return s.src, s.err }

type memorySink struct {
	mu      sync.Mutex
	batches map[ci.Kind][][]ci.Record
}

func (m *memorySink) Emit(_ context.Context, kind ci.Kind, records []ci.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batches == nil {
		m.batches = map[ci.Kind][][]ci.Record{}
	}
	m.batches[kind] = append(m.batches[kind], records)
	return nil
}

func (m *memorySink) last(kind ci.Kind) []ci.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.batches[kind]
	if len(b) == 0 {
		return nil
	}
	return b[len(b)-1]
}

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

func fastPolicy(name string) retry.Policy {
	return retry.FetchPolicy(name, 3, time.Millisecond, nil)
}

func ids(recs []ci.Record) []int64 {
	out := make([]int64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}
