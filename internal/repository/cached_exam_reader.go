package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// CachedExamReader puts a Redis read-through cache in front of another
// ExamReader. Exam definitions are read on every answer save, so caching them
// keeps the hot path off the authoring tables. Redis failures fall back to
// the source.
type CachedExamReader struct {
	src ExamReader
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

func NewCachedExamReader(src ExamReader, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedExamReader {
	return &CachedExamReader{
		src: src,
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "exam_cache").Logger(),
	}
}

var _ ExamReader = (*CachedExamReader)(nil)

func (r *CachedExamReader) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamDefinitionKey(examID)
	var exam model.Exam
	if r.load(ctx, key, &exam) {
		return &exam, nil
	}

	e, err := r.src.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, e)
	return e, nil
}

func (r *CachedExamReader) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	key := config.CacheKey.ExamQuestionsKey(examID)
	var questions []model.Question
	if r.load(ctx, key, &questions) {
		return questions, nil
	}

	qs, err := r.src.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, qs)
	return qs, nil
}

func (r *CachedExamReader) GetQuestion(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	qs, err := r.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	for i := range qs {
		if qs[i].ID == questionID {
			return &qs[i], nil
		}
	}
	return nil, ErrNotFound
}

// Forget drops cached data for an exam, e.g. after authoring changes.
func (r *CachedExamReader) Forget(ctx context.Context, examID uuid.UUID) error {
	return r.rdb.Del(ctx,
		config.CacheKey.ExamDefinitionKey(examID),
		config.CacheKey.ExamQuestionsKey(examID),
	).Err()
}

func (r *CachedExamReader) load(ctx context.Context, key string, dst interface{}) bool {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Str("key", key).Msg("Exam cache read failed, using database")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Discarding malformed exam cache entry")
		return false
	}
	return true
}

func (r *CachedExamReader) store(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Exam cache write failed")
	}
}
