package repo

import (
	"context"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"github.com/NordCoder/Pipewatch/internal/repository/gitlab"
	"github.com/NordCoder/Pipewatch/internal/tracker"
)

// Tokens adapts the GitLab token selector to a plain ci.Source.
type Tokens struct{ T *gitlab.Tokens }

func (t Tokens) Select(ctx context.Context) (ci.Source, error) {
	c, err := t.T.Select(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type pipelineSource interface {
	ProjectPipelines(ctx context.Context, projectID int64, page int) ([]ci.PipelineSummary, error)
	Pipeline(ctx context.Context, projectID, pipelineID int64) (*ci.Pipeline, error)
}

// Pipelines pages one project's pipelines. Listing only carries summaries,
// so every item is resolved through the detail endpoint on demand.
type Pipelines struct {
	Src     pipelineSource
	Project ci.Project
}

var (
	_ tracker.Pager    = Pipelines{}
	_ tracker.Resolver = Pipelines{}
)

func (p Pipelines) Page(ctx context.Context, page int) ([]ci.Item, error) {
	sums, err := p.Src.ProjectPipelines(ctx, p.Project.ID, page)
	if err != nil {
		return nil, err
	}
	items := make([]ci.Item, 0, len(sums))
	for _, s := range sums {
		items = append(items, ci.Item{ID: s.ID})
	}
	return items, nil
}

func (p Pipelines) Resolve(ctx context.Context, it ci.Item) (ci.Item, error) {
	d, err := p.Src.Pipeline(ctx, p.Project.ID, it.ID)
	if err != nil {
		return ci.Item{}, err
	}
	if d.ID != it.ID {
		return ci.Item{}, ci.ErrMalformed
	}
	return ci.Item{ID: d.ID, FinishedAt: d.FinishedAt, Record: ci.PipelineRecord(d, p.Project)}, nil
}

type jobSource interface {
	RunnerJobs(ctx context.Context, runnerID int64, page int) ([]ci.Job, error)
}

// Jobs pages the jobs a runner picked up. The group label comes from the
// project binding established by discovery.
type Jobs struct {
	Src     jobSource
	Runner  ci.Runner
	GroupOf func(projectID int64) (int64, bool)
}

var _ tracker.Pager = Jobs{}

func (j Jobs) Page(ctx context.Context, page int) ([]ci.Item, error) {
	jobs, err := j.Src.RunnerJobs(ctx, j.Runner.ID, page)
	if err != nil {
		return nil, err
	}
	items := make([]ci.Item, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		group := ""
		if j.GroupOf != nil {
			group = ci.GroupLabel(j.GroupOf(job.Project.ID))
		}
		items = append(items, ci.Item{
			ID:         job.ID,
			FinishedAt: job.FinishedAt,
			Record:     ci.JobRecord(job, j.Runner, group),
		})
	}
	return items, nil
}
