package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// Store errors shared by every backend.
var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a concurrent writer already created the record,
	// e.g. a second IN_PROGRESS attempt for the same student and exam.
	ErrConflict = errors.New("conflicting record")
)

// ExamReader is the read-only view of the authoring store.
type ExamReader interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	// ListQuestions returns questions ordered by order_num.
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	GetQuestion(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error)
}

// AttemptStore is the authoritative store for attempts and answer records.
type AttemptStore interface {
	GetAttempt(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	// FindOpenAttempt returns the student's IN_PROGRESS attempt for the exam,
	// or else their newest NOT_STARTED one.
	FindOpenAttempt(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamAttempt, error)
	// CountStartedAttempts counts attempts that left NOT_STARTED.
	CountStartedAttempts(ctx context.Context, examID uuid.UUID, studentID int) (int, error)
	// CreateStartedAttempt persists an attempt already moved to IN_PROGRESS
	// together with its answer records, atomically. A registered NOT_STARTED
	// row with the same id is updated in place. Returns ErrConflict when
	// another IN_PROGRESS attempt exists for the pair.
	CreateStartedAttempt(ctx context.Context, a *model.ExamAttempt, answers []model.AnswerRecord) error
	// ListAnswers returns answer records ordered by position.
	ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.AnswerRecord, error)
	ListInProgress(ctx context.Context) ([]model.ExamAttempt, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error)
	// WithAttemptLock runs fn while holding the attempt's exclusive lock.
	// Writes made through tx commit only if fn returns nil.
	WithAttemptLock(ctx context.Context, attemptID uuid.UUID, fn func(ctx context.Context, tx AttemptTx) error) error
}

// AttemptTx is the unit of work for a single locked attempt.
type AttemptTx interface {
	// Attempt is the locked snapshot. Mutate it, then call UpdateAttempt.
	Attempt() *model.ExamAttempt
	GetAnswer(ctx context.Context, questionID uuid.UUID) (*model.AnswerRecord, error)
	ListAnswers(ctx context.Context) ([]model.AnswerRecord, error)
	UpsertAnswer(ctx context.Context, rec *model.AnswerRecord) error
	// SumMarks totals marks_obtained over the attempt's answer records.
	SumMarks(ctx context.Context) (float64, error)
	UpdateAttempt(ctx context.Context, a *model.ExamAttempt) error
}
