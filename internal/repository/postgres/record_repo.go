package postgres

import (
	"context"
	"fmt"

	"github.com/NordCoder/Pipewatch/internal/domain/ci"
	"github.com/jackc/pgx/v5"
)

const qRecordUpsert = `
INSERT INTO ci_records (
    kind, id, group_id, path_with_namespace, pipeline_id, source, ref, status,
    runner_description, job_name, duration_seconds, queued_seconds, finished_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (kind, id) DO UPDATE SET
    group_id            = EXCLUDED.group_id,
    path_with_namespace = EXCLUDED.path_with_namespace,
    status              = EXCLUDED.status,
    duration_seconds    = EXCLUDED.duration_seconds,
    queued_seconds      = EXCLUDED.queued_seconds,
    finished_at         = EXCLUDED.finished_at,
    updated_at          = now();
`

// RecordRepo archives emitted records. Rows are keyed by kind and id, so a
// record seen again while still running is updated in place.
type RecordRepo struct {
	db *DB
	tx Transactor
}

var _ ci.Sink = (*RecordRepo)(nil)

func NewRecordRepo(db *DB, tx Transactor) *RecordRepo { return &RecordRepo{db: db, tx: tx} }

func (r *RecordRepo) Name() string { return "archive" }

// Emit upserts the whole batch in one transaction.
func (r *RecordRepo) Emit(ctx context.Context, kind ci.Kind, records []ci.Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		b := &pgx.Batch{}
		for _, rec := range records {
			b.Queue(qRecordUpsert,
				string(kind), rec.ID, rec.GroupID, rec.PathWithNamespace, rec.PipelineID,
				rec.Source, rec.Ref, rec.Status, rec.RunnerDescription, rec.JobName,
				rec.Duration, rec.QueuedDuration, rec.FinishedAt,
			)
		}
		br := r.db.execQueryer(ctx).SendBatch(ctx, b)
		for i := range records {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("upsert %s %d: %w", kind, records[i].ID, classify(err))
			}
		}
		return br.Close()
	})
}

// Count returns the number of archived records of kind.
func (r *RecordRepo) Count(ctx context.Context, kind ci.Kind) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n int64
	err := r.db.execQueryer(ctx).QueryRow(ctx, `SELECT count(*) FROM ci_records WHERE kind = $1`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
