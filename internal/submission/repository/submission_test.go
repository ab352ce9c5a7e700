package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"codepractice/internal/common/cache"
	"codepractice/internal/common/db"
	"codepractice/internal/common/db/dbtest"
	evalmodel "codepractice/internal/evaluator/model"
	"codepractice/internal/submission/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

func newCache(t *testing.T) cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// memoryDB keeps inserted rows and answers the list query newest first.
func memoryDB() *dbtest.FakeDB {
	var rows []submissionRow
	fake := &dbtest.FakeDB{}
	fake.ExecFunc = func(query string, args []interface{}) (db.Result, error) {
		row := submissionRow{
			ID:            args[0].(string),
			UserID:        args[1].(string),
			ProblemID:     args[2].(string),
			Language:      args[3].(string),
			Code:          args[4].(string),
			Status:        args[5].(string),
			ExecutionTime: args[6].(int64),
			MemoryUsed:    args[7].(int64),
			TestResults:   sql.NullString{String: args[8].(string), Valid: true},
			Logs:          sql.NullString{String: args[9].(string), Valid: true},
			Error:         sql.NullString{String: args[10].(string), Valid: true},
			SourceKey:     sql.NullString{String: args[11].(string), Valid: true},
			CreatedAt:     args[12].(time.Time),
		}
		for _, r := range rows {
			if r.ID == row.ID {
				return dbtest.Result{}, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'PRIMARY'"}
			}
		}
		rows = append(rows, row)
		return dbtest.Result{RowsAffectedN: 1}, nil
	}
	fake.SelectFunc = func(query string, args []interface{}) (interface{}, error) {
		var out []submissionRow
		for i := len(rows) - 1; i >= 0; i-- {
			if rows[i].UserID == args[0] && rows[i].ProblemID == args[1] {
				out = append(out, rows[i])
			}
		}
		if limit := args[2].(int); len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}
	fake.GetFunc = func(query string, args []interface{}) (interface{}, error) {
		for _, r := range rows {
			if r.ID == args[0] {
				return r, nil
			}
		}
		return nil, sql.ErrNoRows
	}
	return fake
}

func newSubmission(id string, at time.Time) *model.Submission {
	return &model.Submission{
		ID:          id,
		UserID:      "u1",
		ProblemID:   "two-sum",
		Code:        "def twoSum(a, t): pass",
		Language:    "python",
		Status:      model.StatusFailed,
		TestResults: []evalmodel.TestResult{{Passed: false, ActualOutput: "None", ExpectedOutput: "[0,1]"}},
		Logs:        []string{"Test Case 1: FAILED", "Summary: 0/1 test cases passed."},
		CreatedAt:   at,
	}
}

func TestSubmissionRepository_CreateAndList(t *testing.T) {
	fake := memoryDB()
	repo := NewSubmissionRepository(fake, newCache(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := repo.Create(ctx, nil, newSubmission("s1", base)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	list, err := repo.ListByUserProblem(ctx, "u1", "two-sum", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
	if list[0].TestResults[0].ExpectedOutput != "[0,1]" || len(list[0].Logs) != 2 {
		t.Fatalf("columns not decoded: %+v", list[0])
	}

	// A cached list is dropped when a new submission arrives.
	if err := repo.Create(ctx, nil, newSubmission("s2", base.Add(time.Minute))); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	list, err = repo.ListByUserProblem(ctx, "u1", "two-sum", 10)
	if err != nil || len(list) != 2 || list[0].ID != "s2" || list[1].ID != "s1" {
		t.Fatalf("expected newest first, got %+v err=%v", list, err)
	}

	list, err = repo.ListByUserProblem(ctx, "u1", "two-sum", 1)
	if err != nil || len(list) != 1 || list[0].ID != "s2" {
		t.Fatalf("limit not applied: %+v", list)
	}
	before := fake.CallsMatching("ORDER BY created_at DESC")
	if _, err := repo.ListByUserProblem(ctx, "u1", "two-sum", 5); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if fake.CallsMatching("ORDER BY created_at DESC") != before {
		t.Fatalf("expected list to be served from cache")
	}

	empty, err := repo.ListByUserProblem(ctx, "u2", "two-sum", 10)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v err=%v", empty, err)
	}
}

func TestSubmissionRepository_CreateDuplicate(t *testing.T) {
	repo := NewSubmissionRepository(memoryDB(), nil)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := repo.Create(ctx, nil, newSubmission("s1", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, nil, newSubmission("s1", now)); !errors.Is(err, ErrSubmissionDuplicate) {
		t.Fatalf("expected ErrSubmissionDuplicate, got %v", err)
	}
}

func TestSubmissionRepository_GetByID(t *testing.T) {
	repo := NewSubmissionRepository(memoryDB(), nil)
	ctx := context.Background()
	if err := repo.Create(ctx, nil, newSubmission("s1", time.Now())); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	got, err := repo.GetByID(ctx, nil, "s1")
	if err != nil || got.ID != "s1" || got.Status != model.StatusFailed {
		t.Fatalf("unexpected submission %+v err=%v", got, err)
	}
	if _, err := repo.GetByID(ctx, nil, "nope"); !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
}

func TestSubmissionRepository_CreateValidates(t *testing.T) {
	repo := NewSubmissionRepository(memoryDB(), nil)
	s := newSubmission("", time.Now())
	if err := repo.Create(context.Background(), nil, s); err == nil {
		t.Fatalf("expected missing id to be rejected")
	}
}
