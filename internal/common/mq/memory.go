package mq

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue is an in-process MessageQueue for single-node deployments and tests.
// Publish hands the message to every subscription of the topic synchronously
// when consumers are started, and buffers it otherwise.
type MemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]memorySubscription
	pending  map[string][]*Message
	started  bool
	closed   bool
}

type memorySubscription struct {
	ctx     context.Context
	handler HandlerFunc
	opts    SubscribeOptions
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		handlers: make(map[string][]memorySubscription),
		pending:  make(map[string][]*Message),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("message queue is closed")
	}
	if !q.started {
		q.pending[topic] = append(q.pending[topic], message)
		q.mu.Unlock()
		return nil
	}
	subs := append([]memorySubscription(nil), q.handlers[topic]...)
	q.mu.Unlock()

	q.dispatch(topic, message, subs)
	return nil
}

func (q *MemoryQueue) dispatch(topic string, message *Message, subs []memorySubscription) {
	for _, sub := range subs {
		copied := *message
		if deliver(sub.ctx, sub.handler, &copied, sub.opts) && sub.opts.DeadLetterTopic != "" && sub.opts.DeadLetterTopic != topic {
			_ = q.Publish(sub.ctx, sub.opts.DeadLetterTopic, &copied)
		}
	}
}

func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if ctx == nil {
		ctx = context.Background()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("message queue is closed")
	}
	q.handlers[topic] = append(q.handlers[topic], memorySubscription{ctx: ctx, handler: handler, opts: options})
	return nil
}

// Start flushes messages published before consumers were running.
func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("message queue is closed")
	}
	q.started = true
	pending := q.pending
	q.pending = make(map[string][]*Message)
	q.mu.Unlock()

	for topic, messages := range pending {
		q.mu.Lock()
		subs := append([]memorySubscription(nil), q.handlers[topic]...)
		q.mu.Unlock()
		for _, m := range messages {
			q.dispatch(topic, m, subs)
		}
	}
	return nil
}

func (q *MemoryQueue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.started = false
	return nil
}

func (q *MemoryQueue) Ping(ctx context.Context) error {
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
