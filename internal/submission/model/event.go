package model

import "time"

// TopicSubmissionRecorded carries a RecordedEvent per inserted submission.
const TopicSubmissionRecorded = "submission.recorded"

// RecordedEvent announces a new submission to downstream consumers.
type RecordedEvent struct {
	EventID       string    `json:"eventId"`
	SubmissionID  string    `json:"submissionId"`
	UserID        string    `json:"userId"`
	ProblemID     string    `json:"problemId"`
	Language      string    `json:"language"`
	Status        Status    `json:"status"`
	ExecutionTime int64     `json:"executionTime"`
	MemoryUsed    int64     `json:"memoryUsed"`
	CreatedAt     time.Time `json:"createdAt"`
}
