package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"google.golang.org/protobuf/types/known/structpb"
)

// RecordEvents publishes every emitted record to the records topic.
type RecordEvents struct {
	p publisher
}

type publisher interface {
	PublishProto(ctx context.Context, msgs ...Message) error
}

var _ ci.Sink = (*RecordEvents)(nil)

func NewRecordEvents(p *Producer) *RecordEvents { return &RecordEvents{p: p} }

func (e *RecordEvents) Name() string { return "kafka" }

func (e *RecordEvents) Emit(ctx context.Context, kind ci.Kind, records []ci.Record) error {
	msgs := make([]Message, 0, len(records))
	for _, rec := range records {
		v, err := RecordStruct(rec)
		if err != nil {
			return fmt.Errorf("encode %s %d: %w", kind, rec.ID, err)
		}
		msgs = append(msgs, Message{Key: RecordKey(rec), Value: v})
	}
	return e.p.PublishProto(ctx, msgs...)
}

// RecordKey keeps all updates of one item on one partition.
func RecordKey(rec ci.Record) []byte {
	return []byte(fmt.Sprintf("%s:%d", rec.Kind, rec.ID))
}

// RecordStruct builds the message payload. Ids are decimal strings since
// structpb numbers are float64.
func RecordStruct(rec ci.Record) (*structpb.Struct, error) {
	fields := map[string]any{
		"kind":                string(rec.Kind),
		"id":                  strconv.FormatInt(rec.ID, 10),
		"group_id":            rec.GroupID,
		"path_with_namespace": rec.PathWithNamespace,
		"pipeline_id":         strconv.FormatInt(rec.PipelineID, 10),
		"source":              rec.Source,
		"ref":                 rec.Ref,
		"status":              rec.Status,
		"duration_seconds":    rec.Duration,
		"queued_seconds":      rec.QueuedDuration,
		"finished_at":         nil,
	}
	if rec.Kind == ci.KindJob {
		fields["runner_description"] = rec.RunnerDescription
		fields["job_name"] = rec.JobName
	}
	if rec.FinishedAt != nil {
		fields["finished_at"] = rec.FinishedAt.UTC().Format(time.RFC3339)
	}
	return structpb.NewStruct(fields)
}
