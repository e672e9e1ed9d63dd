package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
)

// MonitorFeed streams the raw JSON events of one exam to a proctor
// dashboard. The returned channel closes when ctx is done.
type MonitorFeed interface {
	Subscribe(ctx context.Context, examID uuid.UUID) (<-chan []byte, error)
}

// RedisFeed reads the exam's monitor channel filled by MonitorPublisher.
type RedisFeed struct {
	rdb *redis.Client
}

func NewRedisFeed(rdb *redis.Client) *RedisFeed {
	return &RedisFeed{rdb: rdb}
}

func (f *RedisFeed) Subscribe(ctx context.Context, examID uuid.UUID) (<-chan []byte, error) {
	pubsub := f.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID))
	// Wait for the subscription confirmation so no event slips in between.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe monitor channel: %w", err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// WatermillFeed filters a watermill topic down to one exam. It serves
// single-node setups running on the in-process pub/sub.
type WatermillFeed struct {
	sub   message.Subscriber
	topic string
}

func NewWatermillFeed(sub message.Subscriber, topic string) *WatermillFeed {
	return &WatermillFeed{sub: sub, topic: topic}
}

func (f *WatermillFeed) Subscribe(ctx context.Context, examID uuid.UUID) (<-chan []byte, error) {
	msgs, err := f.sub.Subscribe(ctx, f.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", f.topic, err)
	}

	want := examID.String()
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			msg.Ack()
			if msg.Metadata.Get(MetadataExamID) != want {
				continue
			}
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
