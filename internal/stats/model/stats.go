package model

// Stats summarizes the submissions of one user.
type Stats struct {
	TotalSubmissions int64            `json:"totalSubmissions"`
	StatusCounts     map[string]int64 `json:"statusCounts"`
	SolvedProblems   []string         `json:"solvedProblems"`
}
