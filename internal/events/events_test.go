package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func completedEvent() model.AttemptEvent {
	reason := model.SubmitReasonTimeout
	return model.AttemptEvent{
		Type:          model.EventAttemptCompleted,
		AttemptID:     uuid.New(),
		ExamID:        uuid.New(),
		StudentID:     42,
		Status:        model.AttemptStatusCompleted,
		Reason:        &reason,
		ObtainedMarks: 8,
		Percentage:    80,
		OccurredAt:    time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
}

func TestWatermillPublisherInProcess(t *testing.T) {
	pubsub := NewInProcessPubSub(zerolog.Nop())
	t.Cleanup(func() { _ = pubsub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := pubsub.Subscribe(ctx, "cbt.attempt.events")
	if err != nil {
		t.Fatal(err)
	}

	evt := completedEvent()
	if err := NewWatermillPublisher(pubsub, "cbt.attempt.events").Publish(ctx, evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		if got := msg.Metadata.Get(MetadataEventType); got != string(model.EventAttemptCompleted) {
			t.Errorf("event_type = %q", got)
		}
		if got := msg.Metadata.Get(MetadataAttemptID); got != evt.AttemptID.String() {
			t.Errorf("attempt_id = %q", got)
		}
		var decoded model.AttemptEvent
		if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
			t.Fatal(err)
		}
		if decoded.Percentage != 80 || *decoded.Reason != model.SubmitReasonTimeout {
			t.Errorf("decoded = %+v", decoded)
		}
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestMonitorPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	evt := completedEvent()
	sub := rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(evt.ExamID))
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := NewMonitorPublisher(rdb).Publish(ctx, evt); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-sub.Channel():
		var decoded model.AttemptEvent
		if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
			t.Fatal(err)
		}
		if decoded.AttemptID != evt.AttemptID {
			t.Errorf("attempt id = %s", decoded.AttemptID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("monitor message not delivered")
	}
}

func TestTabSwitchQueueFiltersTypes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := NewTabSwitchQueue(rdb)
	ctx := context.Background()

	if err := q.Publish(ctx, completedEvent()); err != nil {
		t.Fatal(err)
	}
	tab := completedEvent()
	tab.Type = model.EventAttemptTabSwitched
	tab.TabSwitchCount = 3
	if err := q.Publish(ctx, tab); err != nil {
		t.Fatal(err)
	}

	items, err := mr.List(config.WorkerKey.PersistTabSwitchQueue)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("queue has %d items, want 1", len(items))
	}
	var decoded model.AttemptEvent
	_ = json.Unmarshal([]byte(items[0]), &decoded)
	if decoded.TabSwitchCount != 3 {
		t.Errorf("decoded = %+v", decoded)
	}
}

type failing struct{ err error }

func (f failing) Publish(context.Context, model.AttemptEvent) error { return f.err }

type recording struct{ got []model.AttemptEvent }

func (r *recording) Publish(_ context.Context, evt model.AttemptEvent) error {
	r.got = append(r.got, evt)
	return nil
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	boom := errors.New("broker down")
	rec := &recording{}
	err := Fanout{failing{boom}, rec, Nop{}}.Publish(context.Background(), completedEvent())

	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped broker error", err)
	}
	if len(rec.got) != 1 {
		t.Fatalf("later publishers skipped: %d", len(rec.got))
	}
}

func TestRedisFeedDeliversExamEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	evt := completedEvent()
	feed, err := NewRedisFeed(rdb).Subscribe(ctx, evt.ExamID)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewMonitorPublisher(rdb).Publish(ctx, evt); err != nil {
		t.Fatal(err)
	}

	select {
	case raw := <-feed:
		var decoded model.AttemptEvent
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatal(err)
		}
		if decoded.AttemptID != evt.AttemptID {
			t.Errorf("attempt id = %s", decoded.AttemptID)
		}
	case <-ctx.Done():
		t.Fatal("feed delivered nothing")
	}
}

func TestWatermillFeedFiltersByExam(t *testing.T) {
	pubsub := NewInProcessPubSub(zerolog.Nop())
	t.Cleanup(func() { _ = pubsub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	evt := completedEvent()
	feed, err := NewWatermillFeed(pubsub, "cbt.attempt.events").Subscribe(ctx, evt.ExamID)
	if err != nil {
		t.Fatal(err)
	}

	pub := NewWatermillPublisher(pubsub, "cbt.attempt.events")
	other := completedEvent()
	if err := pub.Publish(ctx, other); err != nil {
		t.Fatal(err)
	}
	if err := pub.Publish(ctx, evt); err != nil {
		t.Fatal(err)
	}

	select {
	case raw := <-feed:
		var decoded model.AttemptEvent
		_ = json.Unmarshal(raw, &decoded)
		if decoded.ExamID != evt.ExamID {
			t.Fatalf("received event of exam %s", decoded.ExamID)
		}
	case <-ctx.Done():
		t.Fatal("feed delivered nothing")
	}
}
