package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// AttemptEventRepository writes the proctoring audit log.
type AttemptEventRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptEventRepository(pool *pgxpool.Pool) *AttemptEventRepository {
	return &AttemptEventRepository{pool: pool}
}

// InsertBatch bulk-loads events with COPY.
func (r *AttemptEventRepository) InsertBatch(ctx context.Context, batch []model.AttemptEvent) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, evt := range batch {
		payload, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			evt.AttemptID, evt.ExamID, evt.StudentID, string(evt.Type), payload, evt.OccurredAt,
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_events"},
		[]string{"attempt_id", "exam_id", "student_id", "event_type", "payload", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (r *AttemptEventRepository) Insert(ctx context.Context, evt model.AttemptEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_events (attempt_id, exam_id, student_id, event_type, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		evt.AttemptID, evt.ExamID, evt.StudentID, string(evt.Type), payload, evt.OccurredAt,
	)
	return err
}
