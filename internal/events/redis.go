package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// MonitorPublisher broadcasts events on the exam's Redis monitor channel,
// where proctor dashboards subscribe.
type MonitorPublisher struct {
	rdb *redis.Client
}

func NewMonitorPublisher(rdb *redis.Client) *MonitorPublisher {
	return &MonitorPublisher{rdb: rdb}
}

func (p *MonitorPublisher) Publish(ctx context.Context, evt model.AttemptEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(evt.ExamID), payload).Err(); err != nil {
		return fmt.Errorf("publish monitor event: %w", err)
	}
	return nil
}

// QueuePublisher appends selected event types to a Redis list consumed by a
// persistence worker.
type QueuePublisher struct {
	rdb   *redis.Client
	queue string
	types map[model.AttemptEventType]bool
}

func NewQueuePublisher(rdb *redis.Client, queue string, types ...model.AttemptEventType) *QueuePublisher {
	set := make(map[model.AttemptEventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return &QueuePublisher{rdb: rdb, queue: queue, types: set}
}

// NewTabSwitchQueue queues tab switches for the proctoring worker.
func NewTabSwitchQueue(rdb *redis.Client) *QueuePublisher {
	return NewQueuePublisher(rdb, config.WorkerKey.PersistTabSwitchQueue, model.EventAttemptTabSwitched)
}

func (p *QueuePublisher) Publish(ctx context.Context, evt model.AttemptEvent) error {
	if !p.types[evt.Type] {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := p.rdb.RPush(ctx, p.queue, payload).Err(); err != nil {
		return fmt.Errorf("queue %s: %w", evt.Type, err)
	}
	return nil
}
