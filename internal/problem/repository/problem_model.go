package repository

import (
	"database/sql"
	"encoding/json"

	"codepractice/internal/evaluator/model"
)

// problemRow mirrors the problems table.
type problemRow struct {
	ID            string         `db:"id"`
	Title         string         `db:"title"`
	TimeLimitMs   int64          `db:"time_limit_ms"`
	MemoryLimitMB int64          `db:"memory_limit_mb"`
	CompareMode   string         `db:"compare_mode"`
	EntryPoints   sql.NullString `db:"entry_points"`
	Harnesses     sql.NullString `db:"harnesses"`
}

// testCaseRow mirrors the test_cases table.
type testCaseRow struct {
	CaseIndex      int            `db:"case_index"`
	Input          string         `db:"input"`
	ExpectedOutput string         `db:"expected_output"`
	IsHidden       bool           `db:"is_hidden"`
	Arguments      sql.NullString `db:"arguments"`
}

func (r problemRow) toModel(cases []testCaseRow) (*model.Problem, error) {
	p := &model.Problem{
		ID:            r.ID,
		Title:         r.Title,
		TimeLimitMs:   r.TimeLimitMs,
		MemoryLimitMB: r.MemoryLimitMB,
		CompareMode:   model.CompareMode(r.CompareMode),
		TestCases:     make([]model.TestCase, 0, len(cases)),
	}
	if p.CompareMode == "" {
		p.CompareMode = model.CompareExact
	}
	if err := decodeStringMap(r.EntryPoints, &p.EntryPoints); err != nil {
		return nil, err
	}
	if err := decodeStringMap(r.Harnesses, &p.Harnesses); err != nil {
		return nil, err
	}
	for _, c := range cases {
		tc := model.TestCase{
			Input:          c.Input,
			ExpectedOutput: c.ExpectedOutput,
			IsHidden:       c.IsHidden,
		}
		if c.Arguments.Valid && c.Arguments.String != "" {
			tc.Arguments = json.RawMessage(c.Arguments.String)
		}
		p.TestCases = append(p.TestCases, tc)
	}
	return p, nil
}

func decodeStringMap(col sql.NullString, dst *map[string]string) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}
