package model

import (
	"time"

	evalmodel "codepractice/internal/evaluator/model"
)

// Status is the persisted outcome of a submission.
type Status string

const (
	StatusAttempted Status = "attempted"
	StatusSolved    Status = "solved"
	StatusFailed    Status = "failed"
)

// Submission is one recorded evaluation. It is never modified after insert.
type Submission struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"user"`
	ProblemID     string                 `json:"problem"`
	Code          string                 `json:"code"`
	Language      string                 `json:"language"`
	Status        Status                 `json:"status"`
	ExecutionTime int64                  `json:"executionTime"`
	MemoryUsed    int64                  `json:"memoryUsed"`
	TestResults   []evalmodel.TestResult `json:"testResults"`
	Logs          []string               `json:"logs"`
	Error         string                 `json:"error,omitempty"`
	SourceKey     string                 `json:"sourceKey,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// DeriveStatus maps an evaluation onto a submission status.
func DeriveStatus(res *evalmodel.ExecutionResult) Status {
	switch {
	case res == nil:
		return StatusAttempted
	case res.AllTestsPassed:
		return StatusSolved
	case len(res.TestResults) > 0, res.Error != "", res.Status == evalmodel.StatusError:
		return StatusFailed
	default:
		return StatusAttempted
	}
}
