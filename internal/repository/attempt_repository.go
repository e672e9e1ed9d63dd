package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

const pgUniqueViolation = "23505"

// AttemptRepository is the PostgreSQL AttemptStore. Per-attempt serialization
// uses SELECT ... FOR UPDATE on the exam_attempts row.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

var _ AttemptStore = (*AttemptRepository)(nil)

const attemptColumns = `id, exam_id, student_id, status, start_time, end_time,
	obtained_marks, total_score, percentage, tab_switch_count, end_reason,
	ip_address, user_agent, created_at, updated_at`

func scanAttempt(row pgx.Row) (*model.ExamAttempt, error) {
	var (
		a         model.ExamAttempt
		endReason *string
	)
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.StartTime, &a.EndTime,
		&a.ObtainedMarks, &a.TotalScore, &a.Percentage, &a.TabSwitchCount, &endReason,
		&a.IPAddress, &a.UserAgent, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if endReason != nil {
		r := model.SubmitReason(*endReason)
		a.EndReason = &r
	}
	return &a, nil
}

func collectAttempts(rows pgx.Rows) ([]model.ExamAttempt, error) {
	defer rows.Close()
	var attempts []model.ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// GetAttempt retrieves an attempt by id.
func (r *AttemptRepository) GetAttempt(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// FindOpenAttempt prefers the live attempt over a registered one.
func (r *AttemptRepository) FindOpenAttempt(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1 AND student_id = $2
		   AND status IN ('NOT_STARTED', 'IN_PROGRESS')
		 ORDER BY (status = 'IN_PROGRESS') DESC, created_at DESC
		 LIMIT 1`, examID, studentID))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// CountStartedAttempts counts attempts that have been started at least once.
func (r *AttemptRepository) CountStartedAttempts(ctx context.Context, examID uuid.UUID, studentID int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts
		 WHERE exam_id = $1 AND student_id = $2 AND status <> 'NOT_STARTED'`,
		examID, studentID,
	).Scan(&n)
	return n, err
}

// CreateStartedAttempt inserts (or promotes a registered row to) an
// IN_PROGRESS attempt and bulk-loads its answer records in one transaction.
func (r *AttemptRepository) CreateStartedAttempt(ctx context.Context, a *model.ExamAttempt, answers []model.AnswerRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`INSERT INTO exam_attempts
		   (id, exam_id, student_id, status, start_time, ip_address, user_agent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (id) DO UPDATE
		   SET status = EXCLUDED.status,
		       start_time = EXCLUDED.start_time,
		       ip_address = EXCLUDED.ip_address,
		       user_agent = EXCLUDED.user_agent,
		       updated_at = EXCLUDED.updated_at
		 WHERE exam_attempts.status = 'NOT_STARTED'`,
		a.ID, a.ExamID, a.StudentID, a.Status, a.StartTime, a.IPAddress, a.UserAgent, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// The registered row was started by someone else meanwhile.
		return ErrConflict
	}

	if len(answers) > 0 {
		rows := make([][]interface{}, 0, len(answers))
		for _, rec := range answers {
			rows = append(rows, []interface{}{
				rec.AttemptID, rec.QuestionID, rec.Position, rec.IsFlagged,
				rec.MarksObtained, rec.TimeSpentSeconds, rec.UpdatedAt,
			})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"answer_records"},
			[]string{"attempt_id", "question_id", "position", "is_flagged", "marks_obtained", "time_spent_seconds", "updated_at"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy answer records: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListAnswers retrieves an attempt's answer records in display order.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.AnswerRecord, error) {
	return listAnswers(ctx, r.pool, attemptID)
}

// ListInProgress returns every live attempt, oldest start first. The timeout
// watchdog relies on this to recover deadlines after a restart.
func (r *AttemptRepository) ListInProgress(ctx context.Context) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE status = 'IN_PROGRESS'
		 ORDER BY start_time ASC`)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// ListByExam returns all attempts for an exam, newest first.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1
		 ORDER BY created_at DESC`, examID)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// WithAttemptLock runs fn inside a transaction holding the attempt row lock.
func (r *AttemptRepository) WithAttemptLock(ctx context.Context, attemptID uuid.UUID, fn func(ctx context.Context, tx AttemptTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	a, err := scanAttempt(tx.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1 FOR UPDATE`, attemptID))
	if err != nil {
		return notFound(err)
	}

	if err := fn(ctx, &pgAttemptTx{tx: tx, attempt: a}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const answerColumns = `attempt_id, question_id, position, answer_text, is_flagged, is_correct,
	marks_obtained, time_spent_seconds, answered_at, updated_at`

func scanAnswer(row pgx.Row) (*model.AnswerRecord, error) {
	var rec model.AnswerRecord
	err := row.Scan(&rec.AttemptID, &rec.QuestionID, &rec.Position, &rec.AnswerText, &rec.IsFlagged,
		&rec.IsCorrect, &rec.MarksObtained, &rec.TimeSpentSeconds, &rec.AnsweredAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func listAnswers(ctx context.Context, q querier, attemptID uuid.UUID) ([]model.AnswerRecord, error) {
	rows, err := q.Query(ctx,
		`SELECT `+answerColumns+`
		 FROM answer_records
		 WHERE attempt_id = $1
		 ORDER BY position ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.AnswerRecord
	for rows.Next() {
		rec, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *rec)
	}
	return answers, rows.Err()
}

type pgAttemptTx struct {
	tx      pgx.Tx
	attempt *model.ExamAttempt
}

func (t *pgAttemptTx) Attempt() *model.ExamAttempt { return t.attempt }

func (t *pgAttemptTx) GetAnswer(ctx context.Context, questionID uuid.UUID) (*model.AnswerRecord, error) {
	rec, err := scanAnswer(t.tx.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM answer_records WHERE attempt_id = $1 AND question_id = $2`,
		t.attempt.ID, questionID))
	if err != nil {
		return nil, notFound(err)
	}
	return rec, nil
}

func (t *pgAttemptTx) ListAnswers(ctx context.Context) ([]model.AnswerRecord, error) {
	return listAnswers(ctx, t.tx, t.attempt.ID)
}

// UpsertAnswer writes the record; position is kept from the first insert.
func (t *pgAttemptTx) UpsertAnswer(ctx context.Context, rec *model.AnswerRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO answer_records
		   (attempt_id, question_id, position, answer_text, is_flagged, is_correct,
		    marks_obtained, time_spent_seconds, answered_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		   SET answer_text = EXCLUDED.answer_text,
		       is_flagged = EXCLUDED.is_flagged,
		       is_correct = EXCLUDED.is_correct,
		       marks_obtained = EXCLUDED.marks_obtained,
		       time_spent_seconds = EXCLUDED.time_spent_seconds,
		       answered_at = EXCLUDED.answered_at,
		       updated_at = EXCLUDED.updated_at`,
		t.attempt.ID, rec.QuestionID, rec.Position, rec.AnswerText, rec.IsFlagged, rec.IsCorrect,
		rec.MarksObtained, rec.TimeSpentSeconds, rec.AnsweredAt, rec.UpdatedAt,
	)
	return err
}

func (t *pgAttemptTx) SumMarks(ctx context.Context) (float64, error) {
	var sum float64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(marks_obtained), 0) FROM answer_records WHERE attempt_id = $1`,
		t.attempt.ID,
	).Scan(&sum)
	return sum, err
}

func (t *pgAttemptTx) UpdateAttempt(ctx context.Context, a *model.ExamAttempt) error {
	var endReason *string
	if a.EndReason != nil {
		s := string(*a.EndReason)
		endReason = &s
	}
	_, err := t.tx.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $2, start_time = $3, end_time = $4, obtained_marks = $5,
		     total_score = $6, percentage = $7, tab_switch_count = $8,
		     end_reason = $9, updated_at = $10
		 WHERE id = $1`,
		a.ID, a.Status, a.StartTime, a.EndTime, a.ObtainedMarks,
		a.TotalScore, a.Percentage, a.TabSwitchCount, endReason, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	t.attempt = a
	return nil
}
