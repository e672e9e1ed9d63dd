package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/model"
)

const PollTimeout = 1 * time.Second // Must be >= 1s to satisfy Redis

// EventSink persists proctoring events.
type EventSink interface {
	InsertBatch(ctx context.Context, batch []model.AttemptEvent) error
	Insert(ctx context.Context, evt model.AttemptEvent) error
}

// ProctoringWorker drains the tab-switch queue into attempt_events in
// batches. Rows that cannot be written go back to the queue.
type ProctoringWorker struct {
	sink         EventSink
	rdb          *redis.Client
	queue        string
	batchSize    int
	batchTimeout time.Duration
	retryPause   time.Duration
	log          zerolog.Logger
}

func NewProctoringWorker(sink EventSink, rdb *redis.Client, batchSize int, batchTimeout time.Duration, log zerolog.Logger) *ProctoringWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if batchTimeout <= 0 {
		batchTimeout = 2 * time.Second
	}
	return &ProctoringWorker{
		sink:         sink,
		rdb:          rdb,
		queue:        config.WorkerKey.PersistTabSwitchQueue,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		retryPause:   2 * time.Second,
		log:          log.With().Str("component", "proctoring_worker").Logger(),
	}
}

func (w *ProctoringWorker) Start(ctx context.Context) {
	w.log.Info().Int("batch_size", w.batchSize).Msg("ProctoringWorker started")

	buffer := make([]model.AttemptEvent, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// Blocks for PollTimeout; returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, w.queue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var evt model.AttemptEvent
		if err := json.Unmarshal([]byte(result[1]), &evt); err != nil {
			// Malformed payloads can never succeed; drop them.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed event")
			continue
		}
		buffer = append(buffer, evt)
	}
}

// flushSafe tries a bulk insert, then row-by-row, then requeues.
func (w *ProctoringWorker) flushSafe(ctx context.Context, batch []model.AttemptEvent) {
	if len(batch) == 0 {
		return
	}
	err := w.sink.InsertBatch(ctx, batch)
	if err == nil {
		metrics.ProctorEventsPersisted.Add(float64(len(batch)))
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var requeue []model.AttemptEvent
	for _, evt := range batch {
		if err := w.sink.Insert(ctx, evt); err != nil {
			w.log.Error().Err(err).Str("attempt_id", evt.AttemptID.String()).Msg("Insert failed, requeueing")
			requeue = append(requeue, evt)
			continue
		}
		metrics.ProctorEventsPersisted.Inc()
	}
	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *ProctoringWorker) requeue(ctx context.Context, items []model.AttemptEvent) {
	pipe := w.rdb.Pipeline()
	for _, evt := range items {
		data, _ := json.Marshal(evt)
		pipe.RPush(ctx, w.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue proctoring events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed events back to Redis")
	// Avoid thrashing while the database is down.
	sleepCtx(ctx, w.retryPause)
}

func (w *ProctoringWorker) shutdown(buffer []model.AttemptEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(shutdownCtx, buffer)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
