package model

import "encoding/json"

// CompareMode selects how actual output is matched against the expected value.
type CompareMode string

const (
	CompareExact CompareMode = "exact"
	CompareJSON  CompareMode = "json"
)

// Execution status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// TestCase is one input/expected pair of a problem.
type TestCase struct {
	Input          string          `json:"input"`
	ExpectedOutput string          `json:"expectedOutput"`
	IsHidden       bool            `json:"isHidden"`
	Arguments      json.RawMessage `json:"arguments,omitempty"`
}

// Problem carries everything needed to evaluate code against it.
type Problem struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	TimeLimitMs   int64             `json:"timeLimitMs"`
	MemoryLimitMB int64             `json:"memoryLimitMb"`
	CompareMode   CompareMode       `json:"compareMode"`
	EntryPoints   map[string]string `json:"entryPoints,omitempty"`
	Harnesses     map[string]string `json:"harnesses,omitempty"`
	TestCases     []TestCase        `json:"testCases"`
}

// ExecutionRequest asks for code to be run against a problem.
type ExecutionRequest struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	ProblemID   string `json:"problemId"`
	TestCaseIDs []int  `json:"testCaseIds,omitempty"`
}

// TestResult is the outcome of one selected test case. TestCaseID is the
// position in the selected set and CaseIndex the position in the problem.
type TestResult struct {
	Passed         bool   `json:"passed"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	TestCaseID     int    `json:"testCaseId"`
	CaseIndex      int    `json:"caseIndex"`
	TimeMs         int64  `json:"timeMs"`
	MemoryKB       int64  `json:"memoryKb"`
}

// ExecutionResult is the aggregate outcome of one evaluation.
// ExecutionTime is total CPU ms; MemoryUsed is the peak in KB.
type ExecutionResult struct {
	Status         string       `json:"status"`
	Output         []string     `json:"output"`
	TestResults    []TestResult `json:"testResults"`
	ExecutionTime  int64        `json:"executionTime"`
	MemoryUsed     int64        `json:"memoryUsed"`
	AllTestsPassed bool         `json:"allTestsPassed"`
	Error          string       `json:"error,omitempty"`
}
