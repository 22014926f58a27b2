package ci

import (
	"errors"
	"strconv"
	"time"
)

// PageSize is the fixed listing page size used against the platform.
const PageSize = 100

var (
	ErrNotFound  = errors.New("not found")
	ErrMalformed = errors.New("malformed record")
)

type Kind string

const (
	KindPipeline Kind = "pipeline"
	KindJob      Kind = "job"
)

func (k Kind) String() string { return string(k) }

type Group struct {
	ID       int64  `json:"id"`
	FullPath string `json:"full_path"`
}

type Project struct {
	ID                int64  `json:"id"`
	PathWithNamespace string `json:"path_with_namespace"`
	GroupID           int64  `json:"-"`
}

type Runner struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
}

type PipelineSummary struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Ref    string `json:"ref"`
	Source string `json:"source"`
}

type Pipeline struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"project_id"`
	Status         string     `json:"status"`
	Source         string     `json:"source"`
	Ref            string     `json:"ref"`
	FinishedAt     *time.Time `json:"finished_at"`
	Duration       *float64   `json:"duration"`
	QueuedDuration *float64   `json:"queued_duration"`
}

type JobPipeline struct {
	ID     int64  `json:"id"`
	Source string `json:"source"`
}

type JobProject struct {
	ID                int64  `json:"id"`
	PathWithNamespace string `json:"path_with_namespace"`
}

type Job struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Status         string      `json:"status"`
	Ref            string      `json:"ref"`
	FinishedAt     *time.Time  `json:"finished_at"`
	Duration       *float64    `json:"duration"`
	QueuedDuration *float64    `json:"queued_duration"`
	Pipeline       JobPipeline `json:"pipeline"`
	Project        JobProject  `json:"project"`
}

// Record is the snapshot of one item handed to the sinks.
// Duration and QueuedDuration are seconds, zero when the platform reported null.
type Record struct {
	Kind              Kind
	ID                int64
	GroupID           string
	PathWithNamespace string
	PipelineID        int64
	Source            string
	Ref               string
	Status            string
	RunnerDescription string
	JobName           string
	Duration          float64
	QueuedDuration    float64
	FinishedAt        *time.Time
}

func (r Record) Finished() bool { return r.FinishedAt != nil }

// Item is what the tracker walks: an id, its completion time and the record
// to emit if it turns out to be reportable.
type Item struct {
	ID         int64
	FinishedAt *time.Time
	Record     Record
}

func GroupLabel(id int64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func OrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func PipelineRecord(p *Pipeline, project Project) Record {
	return Record{
		Kind:              KindPipeline,
		ID:                p.ID,
		GroupID:           GroupLabel(project.GroupID, project.GroupID != 0),
		PathWithNamespace: project.PathWithNamespace,
		PipelineID:        p.ID,
		Source:            p.Source,
		Ref:               p.Ref,
		Status:            p.Status,
		Duration:          OrZero(p.Duration),
		QueuedDuration:    OrZero(p.QueuedDuration),
		FinishedAt:        p.FinishedAt,
	}
}

func JobRecord(j *Job, runner Runner, groupID string) Record {
	return Record{
		Kind:              KindJob,
		ID:                j.ID,
		GroupID:           groupID,
		PathWithNamespace: j.Project.PathWithNamespace,
		PipelineID:        j.Pipeline.ID,
		Source:            j.Pipeline.Source,
		Ref:               j.Ref,
		Status:            j.Status,
		RunnerDescription: runner.Description,
		JobName:           j.Name,
		Duration:          OrZero(j.Duration),
		QueuedDuration:    OrZero(j.QueuedDuration),
		FinishedAt:        j.FinishedAt,
	}
}
