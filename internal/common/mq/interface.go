package mq

import (
	"context"
	"time"
)

// MessageQueue is the producer/consumer abstraction over Kafka and NATS.
type MessageQueue interface {
	Producer
	Consumer

	// Ping verifies the message queue connection is alive
	Ping(ctx context.Context) error

	// Close stops consumers and releases the connection
	Close() error
}

// Producer publishes messages.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer registers handlers and runs them once started.
type Consumer interface {
	// Subscribe registers handler for topic. Subscriptions made after Start
	// begin consuming immediately.
	Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error

	Start() error

	// Stop cancels consumers and waits for in-flight handlers.
	Stop() error
}

// HandlerFunc processes one message. A non-nil error triggers a retry.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions defines options for subscribing to a topic
type SubscribeOptions struct {
	// ConsumerGroup is the Kafka group id or NATS queue group.
	ConsumerGroup string `yaml:"consumerGroup"`

	// Concurrency sets the number of concurrent workers. Default: 1
	Concurrency int `yaml:"concurrency"`

	// MaxRetries for failed messages. Default: 3
	MaxRetries int `yaml:"maxRetries"`

	// RetryDelay between attempts. Default: 1 second
	RetryDelay time.Duration `yaml:"retryDelay"`

	// DeadLetterTopic receives messages that exhausted their retries.
	DeadLetterTopic string `yaml:"deadLetterTopic"`

	// MessageTTL drops messages older than this without handling them.
	MessageTTL time.Duration `yaml:"messageTTL"`
}

// SetDefaults sets default values for subscribe options
func (o *SubscribeOptions) SetDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = time.Second
	}
}
