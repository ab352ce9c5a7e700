package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig defines configuration for the NATS implementation.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	Timeout       time.Duration `yaml:"timeout"`
	ReconnectWait time.Duration `yaml:"reconnectWait"`
	MaxReconnects int           `yaml:"maxReconnects"`
}

// NATSQueue implements MessageQueue on core NATS subjects with queue groups.
// Delivery is at-most-once; handlers retry in process before dead-lettering.
type NATSQueue struct {
	conn *nats.Conn

	mu            sync.Mutex
	subscriptions []*natsSubscription
	started       bool
	closed        bool
}

type natsSubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	baseCtx context.Context

	sub    *nats.Subscription
	msgCh  chan *nats.Msg
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNATSQueue connects to the NATS server.
func NewNATSQueue(cfg NATSConfig) (*NATSQueue, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 60
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
	if err != nil {
		return nil, err
	}
	return &NATSQueue{conn: conn}, nil
}

// Publish publishes message on the subject named by topic.
func (q *NATSQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(topic)
	msg.Data = message.Body
	for key, value := range encodeHeaders(message) {
		msg.Header.Set(key, value)
	}
	return q.conn.PublishMsg(msg)
}

// Subscribe registers a queue-group subscription for topic.
func (q *NATSQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
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
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = "codepractice-" + topic
	}

	sub := &natsSubscription{
		topic:   topic,
		handler: handler,
		opts:    options,
		baseCtx: ctx,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("message queue is closed")
	}
	q.subscriptions = append(q.subscriptions, sub)
	if q.started {
		return q.startSubscription(sub)
	}
	return nil
}

func (q *NATSQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("message queue is closed")
	}
	if q.started {
		return nil
	}
	for _, sub := range q.subscriptions {
		if err := q.startSubscription(sub); err != nil {
			return err
		}
	}
	q.started = true
	return nil
}

func (q *NATSQueue) startSubscription(sub *natsSubscription) error {
	if sub.baseCtx == nil {
		sub.baseCtx = context.Background()
	}
	sub.ctx, sub.cancel = context.WithCancel(sub.baseCtx)
	sub.msgCh = make(chan *nats.Msg, sub.opts.Concurrency)

	natsSub, err := q.conn.QueueSubscribe(sub.topic, sub.opts.ConsumerGroup, func(msg *nats.Msg) {
		select {
		case sub.msgCh <- msg:
		case <-sub.ctx.Done():
		}
	})
	if err != nil {
		sub.cancel()
		return err
	}
	sub.sub = natsSub

	for i := 0; i < sub.opts.Concurrency; i++ {
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			for {
				select {
				case <-sub.ctx.Done():
					return
				case msg := <-sub.msgCh:
					q.handleMessage(sub, msg)
				}
			}
		}()
	}
	return nil
}

func (q *NATSQueue) handleMessage(sub *natsSubscription, msg *nats.Msg) {
	headers := make(map[string]string, len(msg.Header))
	for key := range msg.Header {
		headers[key] = msg.Header.Get(key)
	}
	m := decodeHeaders(msg.Data, headers, time.Now())
	if deliver(sub.ctx, sub.handler, m, sub.opts) && sub.opts.DeadLetterTopic != "" {
		_ = q.Publish(sub.ctx, sub.opts.DeadLetterTopic, m)
	}
}

func (q *NATSQueue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, sub := range q.subscriptions {
		if sub.sub != nil {
			_ = sub.sub.Unsubscribe()
			sub.sub = nil
		}
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	for _, sub := range q.subscriptions {
		sub.wg.Wait()
	}
	q.started = false
	return nil
}

func (q *NATSQueue) Ping(ctx context.Context) error {
	return q.conn.FlushWithContext(ctx)
}

func (q *NATSQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	_ = q.Stop()
	q.conn.Close()
	return nil
}
