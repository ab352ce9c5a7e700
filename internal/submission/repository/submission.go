package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codepractice/internal/common/cache"
	"codepractice/internal/common/db"
	evalmodel "codepractice/internal/evaluator/model"
	"codepractice/internal/submission/model"
)

const (
	defaultSubmissionCacheTTL      = 10 * time.Minute
	defaultSubmissionCacheEmptyTTL = time.Minute
	submissionListKeyPrefix        = "submission:list:"

	// MaxListLimit is the longest history returned and cached per user and problem.
	MaxListLimit = 100
)

var (
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrSubmissionDuplicate = errors.New("submission already exists")
)

// SubmissionRepository persists submissions. Submissions are only inserted.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error)
	ListByUserProblem(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error)
}

// SQLSubmissionRepository implements SubmissionRepository with MySQL or Postgres.
type SQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) SubmissionRepository {
	return NewSubmissionRepositoryWithTTL(database, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a submission repository with custom TTL.
func NewSubmissionRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) SubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &SQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const submissionColumns = "id, user_id, problem_id, language, code, status, execution_time, memory_used, test_results, logs, error, source_key, created_at"

type submissionRow struct {
	ID            string         `db:"id"`
	UserID        string         `db:"user_id"`
	ProblemID     string         `db:"problem_id"`
	Language      string         `db:"language"`
	Code          string         `db:"code"`
	Status        string         `db:"status"`
	ExecutionTime int64          `db:"execution_time"`
	MemoryUsed    int64          `db:"memory_used"`
	TestResults   sql.NullString `db:"test_results"`
	Logs          sql.NullString `db:"logs"`
	Error         sql.NullString `db:"error"`
	SourceKey     sql.NullString `db:"source_key"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r submissionRow) toModel() (model.Submission, error) {
	s := model.Submission{
		ID:            r.ID,
		UserID:        r.UserID,
		ProblemID:     r.ProblemID,
		Language:      r.Language,
		Code:          r.Code,
		Status:        model.Status(r.Status),
		ExecutionTime: r.ExecutionTime,
		MemoryUsed:    r.MemoryUsed,
		TestResults:   []evalmodel.TestResult{},
		Logs:          []string{},
		Error:         r.Error.String,
		SourceKey:     r.SourceKey.String,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.TestResults.Valid && r.TestResults.String != "" {
		if err := json.Unmarshal([]byte(r.TestResults.String), &s.TestResults); err != nil {
			return model.Submission{}, fmt.Errorf("decode test results of %s: %w", r.ID, err)
		}
	}
	if r.Logs.Valid && r.Logs.String != "" {
		if err := json.Unmarshal([]byte(r.Logs.String), &s.Logs); err != nil {
			return model.Submission{}, fmt.Errorf("decode logs of %s: %w", r.ID, err)
		}
	}
	return s, nil
}

// Create inserts a submission in one statement and drops the cached history
// of its user and problem.
func (r *SQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}
	if submission.UserID == "" {
		return errors.New("user id is required")
	}
	if submission.ProblemID == "" {
		return errors.New("problem id is required")
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now().UTC()
	}
	results, err := json.Marshal(submission.TestResults)
	if err != nil {
		return fmt.Errorf("encode test results: %w", err)
	}
	logs, err := json.Marshal(submission.Logs)
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}

	query := `
		INSERT INTO submissions
		(` + submissionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.ID,
		submission.UserID,
		submission.ProblemID,
		submission.Language,
		submission.Code,
		string(submission.Status),
		submission.ExecutionTime,
		submission.MemoryUsed,
		string(results),
		string(logs),
		submission.Error,
		submission.SourceKey,
		submission.CreatedAt,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return ErrSubmissionDuplicate
		}
		return err
	}
	if r.cache != nil {
		_ = r.cache.Del(ctx, listKey(submission.UserID, submission.ProblemID))
	}
	return nil
}

// GetByID returns one submission or ErrSubmissionNotFound.
func (r *SQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, ErrSubmissionNotFound
	}
	var row submissionRow
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ?"
	if err := db.GetQuerier(r.db, tx).Get(ctx, &row, query, submissionID); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	s, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByUserProblem returns up to limit submissions, newest first.
func (r *SQLSubmissionRepository) ListByUserProblem(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	var (
		list []model.Submission
		err  error
	)
	if r.cache != nil {
		list, err = cache.GetWithCached[[]model.Submission](
			ctx,
			r.cache,
			listKey(userID, problemID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(list []model.Submission) bool { return len(list) == 0 },
			marshalList,
			unmarshalList,
			func(ctx context.Context) ([]model.Submission, error) {
				return r.listFromDB(ctx, userID, problemID, MaxListLimit)
			},
		)
	} else {
		list, err = r.listFromDB(ctx, userID, problemID, limit)
	}
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Submission{}
	}
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *SQLSubmissionRepository) listFromDB(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error) {
	var rows []submissionRow
	query := "SELECT " + submissionColumns + ` FROM submissions
		WHERE user_id = ? AND problem_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	if err := r.db.Select(ctx, &rows, query, userID, problemID, limit); err != nil {
		return nil, err
	}
	list := make([]model.Submission, 0, len(rows))
	for _, row := range rows {
		s, err := row.toModel()
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, nil
}

func listKey(userID, problemID string) string {
	return submissionListKeyPrefix + userID + ":" + problemID
}

func marshalList(list []model.Submission) string {
	data, err := json.Marshal(list)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalList(data string) ([]model.Submission, error) {
	if data == "" {
		return nil, nil
	}
	var list []model.Submission
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, err
	}
	return list, nil
}
