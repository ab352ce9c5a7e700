package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"codepractice/internal/common/cache"
	"codepractice/internal/common/mq"
	submodel "codepractice/internal/submission/model"
	pkgerrors "codepractice/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func eventMessage(t *testing.T, ev submodel.RecordedEvent) *mq.Message {
	t.Helper()
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	m := mq.NewMessage(body)
	m.ID = ev.EventID
	return m
}

func TestStatsConsumer_ProjectsEvents(t *testing.T) {
	c := newTestCache(t)
	queue := mq.NewMemoryQueue()
	consumer := NewStatsConsumer(queue, c, 0)
	if err := consumer.Subscribe(context.Background(), "", nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := queue.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	events := []submodel.RecordedEvent{
		{EventID: "e1", SubmissionID: "s1", UserID: "u-1", ProblemID: "two-sum", Status: submodel.StatusFailed},
		{EventID: "e2", SubmissionID: "s2", UserID: "u-1", ProblemID: "two-sum", Status: submodel.StatusSolved},
		{EventID: "e3", SubmissionID: "s3", UserID: "u-1", ProblemID: "add", Status: submodel.StatusSolved},
		{EventID: "e4", SubmissionID: "s4", UserID: "u-1", ProblemID: "two-sum", Status: submodel.StatusSolved},
		{EventID: "e5", SubmissionID: "s5", UserID: "u-2", ProblemID: "add", Status: submodel.StatusAttempted},
	}
	for _, ev := range events {
		if err := queue.Publish(context.Background(), submodel.TopicSubmissionRecorded, eventMessage(t, ev)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	// Redelivery of an applied event is ignored.
	if err := queue.Publish(context.Background(), submodel.TopicSubmissionRecorded, eventMessage(t, events[1])); err != nil {
		t.Fatalf("publish: %v", err)
	}

	stats, err := NewStatsService(c).Get(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.TotalSubmissions != 4 {
		t.Fatalf("expected 4 submissions, got %d", stats.TotalSubmissions)
	}
	if stats.StatusCounts["solved"] != 3 || stats.StatusCounts["failed"] != 1 || stats.StatusCounts["attempted"] != 0 {
		t.Fatalf("unexpected counts %+v", stats.StatusCounts)
	}
	if len(stats.SolvedProblems) != 2 || stats.SolvedProblems[0] != "add" || stats.SolvedProblems[1] != "two-sum" {
		t.Fatalf("unexpected solved problems %v", stats.SolvedProblems)
	}
}

func TestStatsConsumer_DropsMalformed(t *testing.T) {
	c := newTestCache(t)
	consumer := NewStatsConsumer(mq.NewMemoryQueue(), c, time.Hour)

	if err := consumer.HandleMessage(context.Background(), mq.NewMessage([]byte("{"))); err != nil {
		t.Fatalf("malformed event should be dropped, got %v", err)
	}
	missing := eventMessage(t, submodel.RecordedEvent{EventID: "e1", ProblemID: "add"})
	if err := consumer.HandleMessage(context.Background(), missing); err != nil {
		t.Fatalf("event without user should be dropped, got %v", err)
	}
	stats, err := NewStatsService(c).Get(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.TotalSubmissions != 0 || len(stats.SolvedProblems) != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
}

// failingStatusCache fails while queuing the per-status counter, after the
// total has already been queued.
type failingStatusCache struct {
	cache.Cache
	fail bool
}

func (f *failingStatusCache) Pipeline(ctx context.Context, fn func(pipe cache.Pipeliner) error) error {
	return f.Cache.Pipeline(ctx, func(pipe cache.Pipeliner) error {
		return fn(&failingStatusPipe{Pipeliner: pipe, fail: f.fail})
	})
}

type failingStatusPipe struct {
	cache.Pipeliner
	fail bool
}

func (p *failingStatusPipe) HIncrBy(key, field string, incr int64) error {
	if p.fail && field != totalField {
		return errors.New("redis unavailable")
	}
	return p.Pipeliner.HIncrBy(key, field, incr)
}

func TestStatsConsumer_RetryAfterFailure(t *testing.T) {
	c := &failingStatusCache{Cache: newTestCache(t), fail: true}
	consumer := NewStatsConsumer(mq.NewMemoryQueue(), c, time.Hour)
	msg := eventMessage(t, submodel.RecordedEvent{EventID: "e1", UserID: "u-1", ProblemID: "add", Status: submodel.StatusSolved})

	if err := consumer.HandleMessage(context.Background(), msg); err == nil {
		t.Fatalf("expected error while cache fails")
	}
	stats, err := NewStatsService(c).Get(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.TotalSubmissions != 0 {
		t.Fatalf("failed event left partial counts %+v", stats)
	}

	c.fail = false
	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	stats, err = NewStatsService(c).Get(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.TotalSubmissions != 1 || stats.StatusCounts["solved"] != 1 || len(stats.SolvedProblems) != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStatsService_RequiresIdentity(t *testing.T) {
	if _, err := NewStatsService(newTestCache(t)).Get(context.Background(), " "); !pkgerrors.Is(err, pkgerrors.IdentityMissing) {
		t.Fatalf("expected IdentityMissing, got %v", err)
	}
}
