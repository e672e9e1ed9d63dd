package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func startedAttempt(examID uuid.UUID, studentID int) *model.ExamAttempt {
	start := t0
	return &model.ExamAttempt{
		ID:        uuid.New(),
		ExamID:    examID,
		StudentID: studentID,
		Status:    model.AttemptStatusInProgress,
		StartTime: &start,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

func records(a *model.ExamAttempt, n int) []model.AnswerRecord {
	recs := make([]model.AnswerRecord, n)
	for i := range recs {
		recs[i] = model.AnswerRecord{AttemptID: a.ID, QuestionID: uuid.New(), Position: i + 1}
	}
	return recs
}

func TestExamReader(t *testing.T) {
	s := New()
	exam := model.Exam{ID: uuid.New(), Title: "Fisika", DurationMinutes: 45}
	q1 := model.Question{ID: uuid.New(), OrderNum: 2}
	q2 := model.Question{ID: uuid.New(), OrderNum: 1}
	s.PutExam(exam, []model.Question{q1, q2})

	qs, err := s.ListQuestions(context.Background(), exam.ID)
	if err != nil || len(qs) != 2 || qs[0].ID != q2.ID || qs[1].ExamID != exam.ID {
		t.Fatalf("ListQuestions = %+v, %v", qs, err)
	}
	if _, err := s.GetQuestion(context.Background(), exam.ID, q1.ID); err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if _, err := s.GetQuestion(context.Background(), uuid.New(), q1.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("question of other exam: %v", err)
	}
	if _, err := s.GetExam(context.Background(), uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing exam: %v", err)
	}
}

func TestCreateStartedAttemptConflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	examID := uuid.New()

	first := startedAttempt(examID, 1)
	if err := s.CreateStartedAttempt(ctx, first, records(first, 3)); err != nil {
		t.Fatal(err)
	}
	second := startedAttempt(examID, 1)
	if err := s.CreateStartedAttempt(ctx, second, nil); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("second in-progress attempt: err = %v", err)
	}
	other := startedAttempt(examID, 2)
	if err := s.CreateStartedAttempt(ctx, other, nil); err != nil {
		t.Fatalf("other student: %v", err)
	}

	open, err := s.FindOpenAttempt(ctx, examID, 1)
	if err != nil || open.ID != first.ID {
		t.Fatalf("FindOpenAttempt = %v, %v", open, err)
	}
	n, _ := s.CountStartedAttempts(ctx, examID, 1)
	if n != 1 {
		t.Fatalf("CountStartedAttempts = %d", n)
	}
	answers, _ := s.ListAnswers(ctx, first.ID)
	if len(answers) != 3 || answers[0].Position != 1 || answers[2].Position != 3 {
		t.Fatalf("answers = %+v", answers)
	}
}

func TestWithAttemptLockRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := startedAttempt(uuid.New(), 1)
	recs := records(a, 1)
	_ = s.CreateStartedAttempt(ctx, a, recs)

	boom := errors.New("boom")
	err := s.WithAttemptLock(ctx, a.ID, func(ctx context.Context, tx repository.AttemptTx) error {
		text := "x"
		_ = tx.UpsertAnswer(ctx, &model.AnswerRecord{QuestionID: recs[0].QuestionID, AnswerText: &text, MarksObtained: 5})
		cur := tx.Attempt()
		cur.TabSwitchCount = 9
		_ = tx.UpdateAttempt(ctx, cur)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	got, _ := s.GetAttempt(ctx, a.ID)
	answers, _ := s.ListAnswers(ctx, a.ID)
	if got.TabSwitchCount != 0 || answers[0].AnswerText != nil {
		t.Fatalf("failed transaction leaked writes: attempt=%+v answer=%+v", got, answers[0])
	}

	if err := s.WithAttemptLock(ctx, uuid.New(), func(context.Context, repository.AttemptTx) error { return nil }); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown attempt: %v", err)
	}
}

func TestWithAttemptLockSerializesAggregate(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := startedAttempt(uuid.New(), 1)
	recs := records(a, 40)
	_ = s.CreateStartedAttempt(ctx, a, recs)

	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func(qID uuid.UUID) {
			defer wg.Done()
			err := s.WithAttemptLock(ctx, a.ID, func(ctx context.Context, tx repository.AttemptTx) error {
				if err := tx.UpsertAnswer(ctx, &model.AnswerRecord{QuestionID: qID, MarksObtained: 1}); err != nil {
					return err
				}
				sum, err := tx.SumMarks(ctx)
				if err != nil {
					return err
				}
				cur := tx.Attempt()
				cur.ObtainedMarks = sum
				return tx.UpdateAttempt(ctx, cur)
			})
			if err != nil {
				t.Error(err)
			}
		}(rec.QuestionID)
	}
	wg.Wait()

	got, _ := s.GetAttempt(ctx, a.ID)
	if got.ObtainedMarks != 40 {
		t.Fatalf("ObtainedMarks = %v, want 40", got.ObtainedMarks)
	}
	answers, _ := s.ListAnswers(ctx, a.ID)
	for i, rec := range answers {
		if rec.Position != i+1 {
			t.Fatalf("position of %d changed to %d", i+1, rec.Position)
		}
	}
}

func TestListInProgressAndByExam(t *testing.T) {
	ctx := context.Background()
	s := New()
	examID := uuid.New()

	late := startedAttempt(examID, 1)
	late.StartTime = ptr(t0.Add(time.Minute))
	early := startedAttempt(examID, 2)
	_ = s.CreateStartedAttempt(ctx, late, nil)
	_ = s.CreateStartedAttempt(ctx, early, nil)
	s.PutAttempt(&model.ExamAttempt{ID: uuid.New(), ExamID: examID, StudentID: 3, Status: model.AttemptStatusNotStarted, CreatedAt: t0})

	live, _ := s.ListInProgress(ctx)
	if len(live) != 2 || live[0].ID != early.ID {
		t.Fatalf("ListInProgress = %+v", live)
	}
	all, _ := s.ListByExam(ctx, examID)
	if len(all) != 3 {
		t.Fatalf("ListByExam returned %d", len(all))
	}
}

func ptr[T any](v T) *T { return &v }
