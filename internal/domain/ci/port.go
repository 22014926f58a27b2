package ci

import (
	"context"
	"time"
)

// Source is the remote platform. Listing methods return an empty slice once
// history is exhausted; they never use an error for that.
type Source interface {
	ProjectPipelines(ctx context.Context, projectID int64, page int) ([]PipelineSummary, error)
	Pipeline(ctx context.Context, projectID, pipelineID int64) (*Pipeline, error)
	RunnerJobs(ctx context.Context, runnerID int64, page int) ([]Job, error)
	GroupRunners(ctx context.Context, groupID int64, page int) ([]Runner, error)
	GroupProjects(ctx context.Context, groupID int64, page int) ([]Project, error)
	Subgroups(ctx context.Context, groupID int64, page int) ([]Group, error)
}

// Sink receives the records of one kind produced by a cycle.
type Sink interface {
	Emit(ctx context.Context, kind Kind, records []Record) error
}

type Clock interface {
	Now() time.Time
}
