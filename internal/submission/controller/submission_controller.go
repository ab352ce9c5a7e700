package controller

import (
	"context"
	"strconv"
	"strings"

	evalmodel "codepractice/internal/evaluator/model"
	"codepractice/internal/submission/model"
	"codepractice/internal/submission/service"
	pkgerrors "codepractice/pkg/errors"
	"codepractice/pkg/utils/contextkey"
	"codepractice/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Recorder is the part of the submission service the controller needs.
type Recorder interface {
	Submit(ctx context.Context, input service.SubmitInput) (*model.Submission, bool, error)
	List(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error)
	Transcript(ctx context.Context, userID, submissionID string) (*evalmodel.ExecutionResult, error)
}

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	recorder Recorder
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(recorder Recorder) *SubmissionController {
	return &SubmissionController{recorder: recorder}
}

// SubmitRequest defines submission payload.
type SubmitRequest struct {
	ProblemID string `json:"problemId"`
	Code      string `json:"code"`
	Language  string `json:"language"`
}

// Create evaluates and records a submission for the caller.
func (h *SubmissionController) Create(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	submission, replayed, err := h.recorder.Submit(c.Request.Context(), service.SubmitInput{
		UserID:         contextkey.UserIDFrom(c.Request.Context()),
		ProblemID:      req.ProblemID,
		Code:           req.Code,
		Language:       req.Language,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		if c.Request.Context().Err() != nil {
			response.Error(c, pkgerrors.Wrap(err, pkgerrors.RequestCanceled))
			return
		}
		response.Error(c, err)
		return
	}
	if replayed {
		response.Success(c, submission)
		return
	}
	response.Created(c, submission)
}

// List returns the caller's submissions for one problem.
func (h *SubmissionController) List(c *gin.Context) {
	problemID := strings.TrimSpace(c.Param("problemId"))
	if problemID == "" {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "Invalid limit")
			return
		}
		limit = n
	}
	list, err := h.recorder.List(c.Request.Context(), contextkey.UserIDFrom(c.Request.Context()), problemID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// Transcript returns the archived evaluation result of a submission.
func (h *SubmissionController) Transcript(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("submissionId"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	res, err := h.recorder.Transcript(c.Request.Context(), contextkey.UserIDFrom(c.Request.Context()), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
