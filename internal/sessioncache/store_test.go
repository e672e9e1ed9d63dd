package sessioncache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func sampleView(id uuid.UUID) *model.SessionView {
	start := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	expires := start.Add(30 * time.Minute)
	answer := "Paris"
	return &model.SessionView{
		AttemptID:       id,
		ExamID:          uuid.New(),
		ExamTitle:       "Geografi",
		Status:          model.AttemptStatusInProgress,
		DurationMinutes: 30,
		StartTime:       &start,
		ExpiresAt:       &expires,
		Questions: []model.SessionQuestion{
			{QuestionID: uuid.New(), Position: 1, QuestionType: model.QuestionTypeMultipleChoice, AnswerText: &answer, Answered: true},
		},
		Progress: model.SessionProgress{Answered: 1, Total: 1},
	}
}

// storeContract runs the behaviour shared by every Store.
func storeContract(t *testing.T, s Store, expire func(time.Duration)) {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()

	if _, err := s.Get(ctx, id); !errors.Is(err, ErrMiss) {
		t.Fatalf("empty get: err = %v", err)
	}

	view := sampleView(id)
	if err := s.Put(ctx, id, view, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ExamTitle != view.ExamTitle || len(got.Questions) != 1 || *got.Questions[0].AnswerText != "Paris" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// Overwrite semantics.
	view.Progress.Flagged = 1
	if err := s.Put(ctx, id, view, time.Minute); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(ctx, id); got == nil || got.Progress.Flagged != 1 {
		t.Fatalf("overwrite not visible: %+v", got)
	}

	if err := s.Invalidate(ctx, id); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrMiss) {
		t.Fatalf("get after invalidate: err = %v", err)
	}
	if err := s.Invalidate(ctx, id); err != nil {
		t.Fatalf("double invalidate: %v", err)
	}

	if err := s.Put(ctx, id, view, time.Minute); err != nil {
		t.Fatal(err)
	}
	expire(61 * time.Second)
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrMiss) {
		t.Fatalf("get after ttl: err = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	storeContract(t, NewMemoryStore(c), func(d time.Duration) { c.Advance(d) })
}

func TestMemoryStoreNoExpiry(t *testing.T) {
	c := clock.NewFake(time.Now())
	s := NewMemoryStore(c)
	id := uuid.New()
	_ = s.Put(context.Background(), id, sampleView(id), 0)
	c.Advance(24 * time.Hour)
	if _, err := s.Get(context.Background(), id); err != nil {
		t.Fatalf("entry without ttl expired: %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore(clock.System())
	id := uuid.New()
	_ = s.Put(context.Background(), id, sampleView(id), time.Minute)

	first, _ := s.Get(context.Background(), id)
	first.Questions[0].IsFlagged = true

	second, _ := s.Get(context.Background(), id)
	if second.Questions[0].IsFlagged {
		t.Fatal("mutating a returned view leaked into the cache")
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	storeContract(t, NewRedisStore(rdb), mr.FastForward)
}

func TestRedisStoreCorruptEntryIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	id := uuid.New()
	key := config.CacheKey.AttemptSessionKey(id)
	if err := mr.Set(key, "{not json"); err != nil {
		t.Fatal(err)
	}

	if _, err := NewRedisStore(rdb).Get(context.Background(), id); !errors.Is(err, ErrMiss) {
		t.Fatalf("err = %v, want ErrMiss", err)
	}
	if mr.Exists(key) {
		t.Error("corrupt entry should be deleted")
	}
}

func TestRedisStoreBackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	_, err := NewRedisStore(rdb).Get(context.Background(), uuid.New())
	if err == nil || errors.Is(err, ErrMiss) {
		t.Fatalf("want transport error, got %v", err)
	}
}
