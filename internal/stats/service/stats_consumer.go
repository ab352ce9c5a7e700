package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codepractice/internal/common/cache"
	"codepractice/internal/common/mq"
	submodel "codepractice/internal/submission/model"
	"codepractice/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	statsEventKeyPrefix  = "stats:event:"
	statsUserKeyPrefix   = "stats:user:"
	statsSolvedKeyPrefix = "stats:solved:"
	totalField           = "total"
	statusFieldPrefix    = "status:"

	defaultEventTTL      = 7 * 24 * time.Hour
	defaultConsumerGroup = "practice-stats"
)

// StatsConsumer projects submission.recorded events into per-user counters.
type StatsConsumer struct {
	mqClient mq.Consumer
	cache    cache.Cache
	eventTTL time.Duration
}

// NewStatsConsumer creates a consumer. eventTTL bounds how long processed
// event ids are remembered; zero uses a week.
func NewStatsConsumer(mqClient mq.Consumer, cacheClient cache.Cache, eventTTL time.Duration) *StatsConsumer {
	if eventTTL <= 0 {
		eventTTL = defaultEventTTL
	}
	return &StatsConsumer{mqClient: mqClient, cache: cacheClient, eventTTL: eventTTL}
}

// Subscribe registers the handler on topic. The caller starts the queue.
func (c *StatsConsumer) Subscribe(ctx context.Context, topic string, opts *mq.SubscribeOptions) error {
	if c == nil || c.mqClient == nil {
		return errors.New("message queue is nil")
	}
	if topic == "" {
		topic = submodel.TopicSubmissionRecorded
	}
	options := mq.SubscribeOptions{}
	if opts != nil {
		options = *opts
	}
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = defaultConsumerGroup
	}
	return c.mqClient.Subscribe(ctx, topic, c.HandleMessage, &options)
}

// HandleMessage applies one event. Malformed events are dropped; storage
// failures are returned so the queue retries them.
func (c *StatsConsumer) HandleMessage(ctx context.Context, message *mq.Message) error {
	var event submodel.RecordedEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Warn(ctx, "parse submission event failed", zap.Error(err))
		return nil
	}
	if event.EventID == "" {
		event.EventID = message.ID
	}
	if event.EventID == "" || event.UserID == "" || event.ProblemID == "" {
		logger.Warn(ctx, "submission event missing ids", zap.String("message_id", message.ID))
		return nil
	}

	marker := statsEventKeyPrefix + event.EventID
	first, err := c.cache.SetNX(ctx, marker, event.SubmissionID, c.eventTTL)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	if !first {
		logger.Debug(ctx, "skip duplicate submission event", zap.String("event_id", event.EventID))
		return nil
	}
	if err := c.apply(ctx, event); err != nil {
		_ = c.cache.Del(context.WithoutCancel(ctx), marker)
		return err
	}
	return nil
}

// apply updates the counters in one transaction, so a failed event leaves
// nothing behind for its retry to double count.
func (c *StatsConsumer) apply(ctx context.Context, event submodel.RecordedEvent) error {
	userKey := statsUserKeyPrefix + event.UserID
	status := event.Status
	if status == "" {
		status = submodel.StatusAttempted
	}
	err := c.cache.Pipeline(ctx, func(pipe cache.Pipeliner) error {
		if err := pipe.HIncrBy(userKey, totalField, 1); err != nil {
			return err
		}
		if err := pipe.HIncrBy(userKey, statusFieldPrefix+string(status), 1); err != nil {
			return err
		}
		if status == submodel.StatusSolved {
			return pipe.SAdd(statsSolvedKeyPrefix+event.UserID, event.ProblemID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update stats failed: %w", err)
	}
	return nil
}
