package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codepractice/internal/common/cache"
	"codepractice/internal/common/db"
	"codepractice/internal/evaluator/model"
)

const (
	defaultProblemTTL      = 30 * time.Minute
	defaultProblemEmptyTTL = 5 * time.Minute
	problemKeyPrefix       = "problem:detail:"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
)

// ProblemRepository reads problems together with their ordered test cases.
type ProblemRepository interface {
	Get(ctx context.Context, tx db.Transaction, problemID string) (*model.Problem, error)
	InvalidateCache(ctx context.Context, problemID string) error
}

type SQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewProblemRepository(database db.Database, cacheClient cache.Cache) ProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemTTL, defaultProblemEmptyTTL)
}

func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) ProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &SQLProblemRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

// Get returns the problem or ErrProblemNotFound. Reads outside a
// transaction go through the cache, including cached misses.
func (r *SQLProblemRepository) Get(ctx context.Context, tx db.Transaction, problemID string) (*model.Problem, error) {
	if problemID == "" {
		return nil, ErrProblemNotFound
	}
	if r.cache != nil && tx == nil {
		problem, err := cache.GetWithCached[*model.Problem](
			ctx,
			r.cache,
			problemKey(problemID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(p *model.Problem) bool { return p == nil },
			marshalProblem,
			unmarshalProblem,
			func(ctx context.Context) (*model.Problem, error) {
				problem, err := r.getFromDB(ctx, nil, problemID)
				if errors.Is(err, ErrProblemNotFound) {
					return nil, nil
				}
				return problem, err
			},
		)
		if err != nil {
			return nil, err
		}
		if problem == nil {
			return nil, ErrProblemNotFound
		}
		return problem, nil
	}
	return r.getFromDB(ctx, tx, problemID)
}

// InvalidateCache drops the cached copy of a problem.
func (r *SQLProblemRepository) InvalidateCache(ctx context.Context, problemID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, problemKey(problemID))
}

func (r *SQLProblemRepository) getFromDB(ctx context.Context, tx db.Transaction, problemID string) (*model.Problem, error) {
	q := db.GetQuerier(r.db, tx)

	var row problemRow
	err := q.Get(ctx, &row, `
		SELECT id, title, time_limit_ms, memory_limit_mb, compare_mode, entry_points, harnesses
		FROM problems
		WHERE id = ?`, problemID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}

	var cases []testCaseRow
	err = q.Select(ctx, &cases, `
		SELECT case_index, input, expected_output, is_hidden, arguments
		FROM test_cases
		WHERE problem_id = ?
		ORDER BY case_index ASC`, problemID)
	if err != nil {
		return nil, err
	}
	problem, err := row.toModel(cases)
	if err != nil {
		return nil, fmt.Errorf("decode problem %s: %w", problemID, err)
	}
	return problem, nil
}

func problemKey(problemID string) string {
	return problemKeyPrefix + problemID
}

func marshalProblem(p *model.Problem) string {
	if p == nil {
		return ""
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalProblem(data string) (*model.Problem, error) {
	if data == "" {
		return nil, nil
	}
	var p model.Problem
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
