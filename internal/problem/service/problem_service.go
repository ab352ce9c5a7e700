package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"codepractice/internal/evaluator/model"
	"codepractice/internal/problem/repository"
	pkgerrors "codepractice/pkg/errors"
)

// ProblemService serves problems to the evaluator and the HTTP surface.
type ProblemService struct {
	repo      repository.ProblemRepository
	dbTimeout time.Duration
}

// NewProblemService creates a new ProblemService.
func NewProblemService(repo repository.ProblemRepository, dbTimeout time.Duration) *ProblemService {
	return &ProblemService{repo: repo, dbTimeout: dbTimeout}
}

// GetProblem returns a problem with all of its test cases.
func (s *ProblemService) GetProblem(ctx context.Context, problemID string) (*model.Problem, error) {
	problemID = strings.TrimSpace(problemID)
	if problemID == "" {
		return nil, pkgerrors.ValidationError("problemId", "required")
	}
	if s.dbTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.dbTimeout)
		defer cancel()
	}
	problem, err := s.repo.Get(ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.ProblemNotFound, "problem %s not found", problemID)
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load problem failed")
	}
	return problem, nil
}

// PublicView is a problem as shown to users: hidden cases keep their
// position but not their values.
type PublicView struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	TimeLimitMs   int64             `json:"timeLimitMs"`
	MemoryLimitMB int64             `json:"memoryLimitMb"`
	EntryPoints   map[string]string `json:"entryPoints,omitempty"`
	TestCases     []model.TestCase  `json:"testCases"`
}

// GetPublicView returns the user-facing view of a problem.
func (s *ProblemService) GetPublicView(ctx context.Context, problemID string) (PublicView, error) {
	problem, err := s.GetProblem(ctx, problemID)
	if err != nil {
		return PublicView{}, err
	}
	view := PublicView{
		ID:            problem.ID,
		Title:         problem.Title,
		TimeLimitMs:   problem.TimeLimitMs,
		MemoryLimitMB: problem.MemoryLimitMB,
		EntryPoints:   problem.EntryPoints,
		TestCases:     make([]model.TestCase, len(problem.TestCases)),
	}
	for i, tc := range problem.TestCases {
		if tc.IsHidden {
			view.TestCases[i] = model.TestCase{IsHidden: true}
			continue
		}
		view.TestCases[i] = tc
	}
	return view, nil
}
