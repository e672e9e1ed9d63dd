package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/repository/memory"
)

type countingReader struct {
	repository.ExamReader
	examCalls     int
	questionCalls int
}

func (c *countingReader) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	c.examCalls++
	return c.ExamReader.GetExam(ctx, id)
}

func (c *countingReader) ListQuestions(ctx context.Context, id uuid.UUID) ([]model.Question, error) {
	c.questionCalls++
	return c.ExamReader.ListQuestions(ctx, id)
}

func TestCachedExamReader(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memory.New()
	exam := model.Exam{ID: uuid.New(), Title: "Kimia", DurationMinutes: 60, TotalMarks: 10}
	q := model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeFillBlank, CorrectAnswer: "H2O", Marks: 10}
	store.PutExam(exam, []model.Question{q})

	src := &countingReader{ExamReader: store}
	r := repository.NewCachedExamReader(src, rdb, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		got, err := r.GetExam(ctx, exam.ID)
		if err != nil || got.Title != "Kimia" {
			t.Fatalf("GetExam = %+v, %v", got, err)
		}
		gq, err := r.GetQuestion(ctx, exam.ID, q.ID)
		if err != nil || gq.CorrectAnswer != "H2O" {
			t.Fatalf("GetQuestion = %+v, %v", gq, err)
		}
	}
	if src.examCalls != 1 || src.questionCalls != 1 {
		t.Fatalf("source hit exam=%d questions=%d times, want 1 each", src.examCalls, src.questionCalls)
	}

	if _, err := r.GetQuestion(ctx, exam.ID, uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown question: %v", err)
	}

	if err := r.Forget(ctx, exam.ID); err != nil {
		t.Fatal(err)
	}
	_, _ = r.GetExam(ctx, exam.ID)
	if src.examCalls != 2 {
		t.Fatalf("after Forget examCalls = %d, want 2", src.examCalls)
	}

	mr.FastForward(2 * time.Minute)
	_, _ = r.ListQuestions(ctx, exam.ID)
	if src.questionCalls != 3 {
		t.Fatalf("after ttl questionCalls = %d, want 3", src.questionCalls)
	}
}

func TestCachedExamReaderFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	store := memory.New()
	exam := model.Exam{ID: uuid.New(), Title: "Biologi", DurationMinutes: 30}
	store.PutExam(exam, nil)

	r := repository.NewCachedExamReader(store, rdb, time.Minute, zerolog.Nop())
	got, err := r.GetExam(context.Background(), exam.ID)
	if err != nil || got.Title != "Biologi" {
		t.Fatalf("GetExam = %+v, %v", got, err)
	}
	if _, err := r.GetExam(context.Background(), uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing exam: %v", err)
	}
}
