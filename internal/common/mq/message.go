package mq

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	headerID         = "x-message-id"
	headerTimestamp  = "x-message-ts"
	headerRetryCount = "x-message-retry"
	headerMaxRetries = "x-message-max-retries"
	headerExpiration = "x-message-expiration-ms"
)

// Message represents a message in the queue
type Message struct {
	ID         string            `json:"id"`
	Body       []byte            `json:"body"`
	Headers    map[string]string `json:"headers"`
	Timestamp  time.Time         `json:"timestamp"`
	RetryCount int               `json:"retry_count"`
	MaxRetries int               `json:"max_retries"`
	Expiration time.Duration     `json:"expiration"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(body []byte) *Message {
	return &Message{
		ID:         uuid.NewString(),
		Body:       body,
		Headers:    make(map[string]string),
		Timestamp:  time.Now(),
		MaxRetries: 3,
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// GetHeader retrieves a header value
func (m *Message) GetHeader(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}

func (m *Message) expired(now time.Time) bool {
	return m.Expiration > 0 && !m.Timestamp.IsZero() && now.Sub(m.Timestamp) > m.Expiration
}

// encodeHeaders flattens the message metadata into transport headers.
func encodeHeaders(message *Message) map[string]string {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	out := make(map[string]string, len(message.Headers)+5)
	for k, v := range message.Headers {
		out[k] = v
	}
	if message.ID != "" {
		out[headerID] = message.ID
	}
	out[headerTimestamp] = message.Timestamp.Format(time.RFC3339Nano)
	if message.RetryCount != 0 {
		out[headerRetryCount] = strconv.Itoa(message.RetryCount)
	}
	if message.MaxRetries != 0 {
		out[headerMaxRetries] = strconv.Itoa(message.MaxRetries)
	}
	if message.Expiration > 0 {
		out[headerExpiration] = strconv.FormatInt(message.Expiration.Milliseconds(), 10)
	}
	return out
}

// decodeHeaders rebuilds a Message from transport headers.
func decodeHeaders(body []byte, headers map[string]string, fallbackTime time.Time) *Message {
	m := &Message{
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: fallbackTime,
	}
	for k, v := range headers {
		switch k {
		case headerID:
			m.ID = v
		case headerTimestamp:
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				m.Timestamp = ts
			}
		case headerRetryCount:
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				m.RetryCount = n
			}
		case headerMaxRetries:
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				m.MaxRetries = n
			}
		case headerExpiration:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				m.Expiration = time.Duration(n) * time.Millisecond
			}
		default:
			m.Headers[k] = v
		}
	}
	return m
}

// deliver runs handler with retries. It returns true when the message should
// be dead-lettered.
func deliver(ctx context.Context, handler HandlerFunc, m *Message, opts SubscribeOptions) bool {
	if m.MaxRetries == 0 {
		m.MaxRetries = opts.MaxRetries
	}
	if m.Expiration == 0 && opts.MessageTTL > 0 {
		m.Expiration = opts.MessageTTL
	}
	if m.expired(time.Now()) {
		return false
	}
	for {
		if err := handler(ctx, m); err == nil {
			return false
		}
		m.RetryCount++
		if m.RetryCount > m.MaxRetries {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(opts.RetryDelay):
		}
	}
}
