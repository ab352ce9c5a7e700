package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"codepractice/internal/common/cache"
	"codepractice/internal/common/mq"
	"codepractice/internal/common/storage"
	evalmodel "codepractice/internal/evaluator/model"
	"codepractice/internal/submission/model"
	"codepractice/internal/submission/repository"
	pkgerrors "codepractice/pkg/errors"
	"codepractice/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix = "submission:idempotency:"
	rateUserKeyPrefix    = "submission:rate:user:"
	rateIPKeyPrefix      = "submission:rate:ip:"
	defaultArchivePrefix = "submissions"
	defaultListLimit     = 20
	processingMarker     = "processing"
	transcriptObjectName = "transcript.json.zst"
)

// Evaluator runs the code of a submission.
type Evaluator interface {
	Evaluate(ctx context.Context, req evalmodel.ExecutionRequest) (*evalmodel.ExecutionResult, error)
}

// RateLimitConfig holds throttling configuration.
type RateLimitConfig struct {
	UserMax int           `yaml:"userMax"`
	IPMax   int           `yaml:"ipMax"`
	Window  time.Duration `yaml:"window"`
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	MQ      time.Duration `yaml:"mq"`
	Storage time.Duration `yaml:"storage"`
}

// Config holds recorder dependencies and settings. Storage and MQ are
// optional; without them archiving and events are skipped.
type Config struct {
	Repo      repository.SubmissionRepository
	Evaluator Evaluator
	Cache     cache.Cache
	Storage   storage.ObjectStorage
	MQ        mq.Producer

	ArchiveBucket  string
	ArchivePrefix  string
	Topic          string
	MaxCodeBytes   int
	IdempotencyTTL time.Duration
	RateLimit      RateLimitConfig
	Timeouts       TimeoutConfig
}

// Recorder evaluates submissions and persists the outcome.
type Recorder struct {
	repo      repository.SubmissionRepository
	evaluator Evaluator
	cache     cache.Cache
	storage   storage.ObjectStorage
	mq        mq.Producer
	encoder   *zstd.Encoder

	archiveBucket  string
	archivePrefix  string
	topic          string
	maxCodeBytes   int
	idempotencyTTL time.Duration
	rateLimit      RateLimitConfig
	timeouts       TimeoutConfig
}

// SubmitInput describes a submission request. UserID is the verified caller.
type SubmitInput struct {
	UserID         string
	ProblemID      string
	Code           string
	Language       string
	IdempotencyKey string
	ClientIP       string
}

// NewRecorder creates a new Recorder.
func NewRecorder(cfg Config) (*Recorder, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Storage != nil && cfg.ArchiveBucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = defaultArchivePrefix
	}
	if cfg.Topic == "" {
		cfg.Topic = model.TopicSubmissionRecorded
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 10 * time.Minute
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Recorder{
		repo:           cfg.Repo,
		evaluator:      cfg.Evaluator,
		cache:          cfg.Cache,
		storage:        cfg.Storage,
		mq:             cfg.MQ,
		encoder:        encoder,
		archiveBucket:  cfg.ArchiveBucket,
		archivePrefix:  cfg.ArchivePrefix,
		topic:          cfg.Topic,
		maxCodeBytes:   cfg.MaxCodeBytes,
		idempotencyTTL: cfg.IdempotencyTTL,
		rateLimit:      cfg.RateLimit,
		timeouts:       cfg.Timeouts,
	}, nil
}

// Submit evaluates the code and records one submission. A replayed
// idempotency key returns the submission recorded the first time, with
// replayed set.
func (s *Recorder) Submit(ctx context.Context, input SubmitInput) (sub *model.Submission, replayed bool, err error) {
	if err := s.validateInput(input); err != nil {
		return nil, false, err
	}
	if err := s.checkRateLimit(ctx, input.UserID, input.ClientIP); err != nil {
		return nil, false, err
	}

	idemKey := s.idempotencyKey(input.UserID, input.IdempotencyKey)
	acquired, existingID, err := s.acquireIdempotency(ctx, idemKey)
	if err != nil {
		return nil, false, err
	}
	if !acquired && existingID != "" {
		existing, err := s.getByID(ctx, existingID)
		if err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}
	defer func() {
		if err != nil {
			s.releaseIdempotency(ctx, idemKey, acquired)
		}
	}()

	res, err := s.evaluator.Evaluate(ctx, evalmodel.ExecutionRequest{
		Code:      input.Code,
		Language:  input.Language,
		ProblemID: input.ProblemID,
	})
	if err != nil {
		return nil, false, err
	}

	submission := &model.Submission{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		ProblemID:     strings.TrimSpace(input.ProblemID),
		Code:          input.Code,
		Language:      strings.ToLower(strings.TrimSpace(input.Language)),
		Status:        model.DeriveStatus(res),
		ExecutionTime: res.ExecutionTime,
		MemoryUsed:    res.MemoryUsed,
		TestResults:   res.TestResults,
		Logs:          res.Output,
		Error:         res.Error,
		CreatedAt:     time.Now().UTC(),
	}
	submission.SourceKey = s.archive(ctx, submission, res)

	if err := s.createSubmission(ctx, submission); err != nil {
		return nil, false, err
	}
	s.publishRecorded(ctx, submission)
	s.finalizeIdempotency(ctx, idemKey, submission.ID, acquired)

	logger.Info(ctx, "submission recorded",
		zap.String("submission_id", submission.ID),
		zap.String("problem_id", submission.ProblemID),
		zap.String("status", string(submission.Status)),
	)
	return submission, false, nil
}

// List returns the caller's submissions for a problem, newest first.
func (s *Recorder) List(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.IdentityMissing)
	}
	if strings.TrimSpace(problemID) == "" {
		return nil, pkgerrors.ValidationError("problemId", "required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > repository.MaxListLimit {
		limit = repository.MaxListLimit
	}
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	list, err := s.repo.ListByUserProblem(ctxDB, userID, strings.TrimSpace(problemID), limit)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list submissions failed")
	}
	return list, nil
}

// Transcript returns the archived evaluation result of one of the caller's
// submissions.
func (s *Recorder) Transcript(ctx context.Context, userID, submissionID string) (*evalmodel.ExecutionResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.IdentityMissing)
	}
	sub, err := s.getByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.SubmissionNotFound)
	}
	if s.storage == nil || sub.SourceKey == "" {
		return nil, pkgerrors.New(pkgerrors.NotFound).WithMessage("transcript is not archived")
	}

	ctxStorage, cancel := withTimeout(ctx, s.timeouts.Storage)
	defer cancel()
	reader, err := s.storage.GetObject(ctxStorage, s.archiveBucket, transcriptKey(sub.SourceKey))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.StorageError, "read transcript failed")
	}
	defer reader.Close()
	decoder, err := zstd.NewReader(reader)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.StorageError, "open transcript failed")
	}
	defer decoder.Close()
	var res evalmodel.ExecutionResult
	if err := json.NewDecoder(decoder).Decode(&res); err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.StorageError, "decode transcript failed")
	}
	return &res, nil
}

// Close releases the transcript encoder.
func (s *Recorder) Close() error {
	return s.encoder.Close()
}

func (s *Recorder) validateInput(input SubmitInput) error {
	if strings.TrimSpace(input.UserID) == "" {
		return pkgerrors.New(pkgerrors.IdentityMissing)
	}
	if strings.TrimSpace(input.ProblemID) == "" {
		return pkgerrors.ValidationError("problemId", "required")
	}
	if strings.TrimSpace(input.Language) == "" {
		return pkgerrors.ValidationError("language", "required")
	}
	if strings.TrimSpace(input.Code) == "" {
		return pkgerrors.ValidationError("code", "required")
	}
	if s.maxCodeBytes > 0 && len(input.Code) > s.maxCodeBytes {
		return pkgerrors.New(pkgerrors.CodeTooLarge).WithDetail("maxBytes", s.maxCodeBytes)
	}
	return nil
}

func (s *Recorder) getByID(ctx context.Context, submissionID string) (*model.Submission, error) {
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	sub, err := s.repo.GetByID(ctxDB, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, pkgerrors.New(pkgerrors.SubmissionNotFound)
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "get submission failed")
	}
	return sub, nil
}

func (s *Recorder) idempotencyKey(userID, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return idempotencyKeyPrefix + userID + ":" + key
}

func (s *Recorder) acquireIdempotency(ctx context.Context, cacheKey string) (bool, string, error) {
	if cacheKey == "" {
		return true, "", nil
	}
	ctxCache, cancel := withTimeout(ctx, s.timeouts.Cache)
	defer cancel()

	existing, err := s.cache.Get(ctxCache, cacheKey)
	if err != nil {
		return false, "", pkgerrors.Wrapf(err, pkgerrors.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}
	ok, err := s.cache.SetNX(ctxCache, cacheKey, processingMarker, s.idempotencyTTL)
	if err != nil {
		return false, "", pkgerrors.Wrapf(err, pkgerrors.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, "", nil
	}
	existing, err = s.cache.Get(ctxCache, cacheKey)
	if err != nil {
		return false, "", pkgerrors.Wrapf(err, pkgerrors.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}
	return false, "", pkgerrors.New(pkgerrors.SubmissionInProgress)
}

func (s *Recorder) finalizeIdempotency(ctx context.Context, cacheKey, submissionID string, acquired bool) {
	if !acquired || cacheKey == "" {
		return
	}
	ctxCache, cancel := withTimeout(ctx, s.timeouts.Cache)
	defer cancel()
	if err := s.cache.Set(ctxCache, cacheKey, submissionID, s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *Recorder) releaseIdempotency(ctx context.Context, cacheKey string, acquired bool) {
	if !acquired || cacheKey == "" {
		return
	}
	ctxCache, cancel := withTimeout(context.WithoutCancel(ctx), s.timeouts.Cache)
	defer cancel()
	if err := s.cache.Del(ctxCache, cacheKey); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

func (s *Recorder) checkRateLimit(ctx context.Context, userID, clientIP string) error {
	if s.rateLimit.Window <= 0 || (s.rateLimit.UserMax <= 0 && s.rateLimit.IPMax <= 0) {
		return nil
	}
	ctxCache, cancel := withTimeout(ctx, s.timeouts.Cache)
	defer cancel()

	if s.rateLimit.UserMax > 0 && userID != "" {
		if err := s.checkRateCounter(ctxCache, rateUserKeyPrefix+userID, s.rateLimit.UserMax); err != nil {
			return err
		}
	}
	if s.rateLimit.IPMax > 0 && clientIP != "" {
		if err := s.checkRateCounter(ctxCache, rateIPKeyPrefix+clientIP, s.rateLimit.IPMax); err != nil {
			return err
		}
	}
	return nil
}

func (s *Recorder) checkRateCounter(ctx context.Context, key string, max int) error {
	count, err := s.cache.Incr(ctx, key)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	if count == 1 {
		_ = s.cache.Expire(ctx, key, s.rateLimit.Window)
	}
	if int(count) > max {
		return pkgerrors.New(pkgerrors.SubmitTooFrequently)
	}
	return nil
}

// archive stores the source and the compressed result. It returns the
// source key, or "" when nothing could be stored.
func (s *Recorder) archive(ctx context.Context, sub *model.Submission, res *evalmodel.ExecutionResult) string {
	if s.storage == nil {
		return ""
	}
	ctxStorage, cancel := withTimeout(ctx, s.timeouts.Storage)
	defer cancel()

	sourceKey := fmt.Sprintf("%s/%s/%s/%s/source.%s", s.archivePrefix, sub.UserID, sub.ProblemID, sub.ID, sub.Language)
	err := s.storage.PutObject(ctxStorage, s.archiveBucket, sourceKey,
		strings.NewReader(sub.Code), int64(len(sub.Code)),
		storage.PutOptions{
			ContentType: "text/plain; charset=utf-8",
			Metadata:    map[string]string{"submission-id": sub.ID, "language": sub.Language},
		})
	if err != nil {
		logger.Warn(ctx, "archive source failed", zap.String("submission_id", sub.ID), zap.Error(err))
		return ""
	}

	payload, err := json.Marshal(res)
	if err != nil {
		logger.Warn(ctx, "encode transcript failed", zap.String("submission_id", sub.ID), zap.Error(err))
		return sourceKey
	}
	compressed := s.encoder.EncodeAll(payload, make([]byte, 0, len(payload)/4))
	err = s.storage.PutObject(ctxStorage, s.archiveBucket, transcriptKey(sourceKey),
		bytes.NewReader(compressed), int64(len(compressed)),
		storage.PutOptions{ContentType: "application/json", ContentEncoding: "zstd"})
	if err != nil {
		logger.Warn(ctx, "archive transcript failed", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	return sourceKey
}

func transcriptKey(sourceKey string) string {
	dir := sourceKey
	if i := strings.LastIndex(sourceKey, "/"); i >= 0 {
		dir = sourceKey[:i]
	}
	return dir + "/" + transcriptObjectName
}

func (s *Recorder) createSubmission(ctx context.Context, submission *model.Submission) error {
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	if err := s.repo.Create(ctxDB, nil, submission); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

func (s *Recorder) publishRecorded(ctx context.Context, sub *model.Submission) {
	if s.mq == nil {
		return
	}
	event := model.RecordedEvent{
		EventID:       uuid.NewString(),
		SubmissionID:  sub.ID,
		UserID:        sub.UserID,
		ProblemID:     sub.ProblemID,
		Language:      sub.Language,
		Status:        sub.Status,
		ExecutionTime: sub.ExecutionTime,
		MemoryUsed:    sub.MemoryUsed,
		CreatedAt:     sub.CreatedAt,
	}
	body, err := json.Marshal(event)
	if err != nil {
		logger.Warn(ctx, "encode submission event failed", zap.Error(err))
		return
	}
	message := mq.NewMessage(body)
	message.ID = event.EventID
	message.SetHeader("user-id", sub.UserID)

	ctxMQ, cancel := withTimeout(ctx, s.timeouts.MQ)
	defer cancel()
	if err := s.mq.Publish(ctxMQ, s.topic, message); err != nil {
		logger.Warn(ctx, "publish submission event failed",
			zap.String("submission_id", sub.ID),
			zap.String("topic", s.topic),
			zap.Error(err),
		)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
