package mq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestKafkaMessageHeadersSurviveTransport(t *testing.T) {
	msg := NewMessage([]byte(`{"id":"s1"}`))
	msg.SetHeader("event", "submission.recorded")
	msg.RetryCount = 2
	msg.Expiration = 30 * time.Second

	got := fromKafkaMessage(toKafkaMessage("submissions", msg))
	if got.ID != msg.ID {
		t.Fatalf("expected id %q, got %q", msg.ID, got.ID)
	}
	if v, _ := got.GetHeader("event"); v != "submission.recorded" {
		t.Fatalf("expected custom header, got %q", v)
	}
	if got.RetryCount != 2 || got.Expiration != 30*time.Second {
		t.Fatalf("unexpected retry metadata: %+v", got)
	}
	if _, ok := got.GetHeader(headerID); ok {
		t.Fatalf("transport headers should not leak into user headers")
	}
}

func TestDeliverRetriesThenDeadLetters(t *testing.T) {
	var calls int32
	handler := func(ctx context.Context, m *Message) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("still failing")
	}
	opts := SubscribeOptions{MaxRetries: 2, RetryDelay: time.Millisecond}
	opts.SetDefaults()

	dead := deliver(context.Background(), handler, &Message{ID: "m1"}, opts)
	if !dead {
		t.Fatalf("expected message to be dead-lettered")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDeliverDropsExpired(t *testing.T) {
	called := false
	handler := func(ctx context.Context, m *Message) error {
		called = true
		return nil
	}
	m := &Message{ID: "old", Timestamp: time.Now().Add(-time.Hour), Expiration: time.Minute}
	if deliver(context.Background(), handler, m, SubscribeOptions{MaxRetries: 1, RetryDelay: time.Millisecond}) {
		t.Fatalf("expired message should not be dead-lettered")
	}
	if called {
		t.Fatalf("expired message should not reach the handler")
	}
}

func TestMemoryQueueBuffersUntilStart(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	var received []string
	err := q.Subscribe(ctx, "events", func(ctx context.Context, m *Message) error {
		received = append(received, string(m.Body))
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := q.Publish(ctx, "events", NewMessage([]byte("a"))); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(received) != 0 {
		t.Fatalf("expected no delivery before start")
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := q.Publish(ctx, "events", NewMessage([]byte("b"))); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(received) != 2 || received[0] != "a" || received[1] != "b" {
		t.Fatalf("unexpected deliveries %v", received)
	}

	_ = q.Close()
	if err := q.Publish(ctx, "events", NewMessage([]byte("c"))); err == nil {
		t.Fatalf("expected publish after close to fail")
	}
}
