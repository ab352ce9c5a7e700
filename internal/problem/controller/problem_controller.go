package controller

import (
	"strings"

	"codepractice/internal/problem/service"
	"codepractice/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProblemController handles problem HTTP endpoints.
type ProblemController struct {
	problemService *service.ProblemService
}

// NewProblemController creates a new ProblemController.
func NewProblemController(problemService *service.ProblemService) *ProblemController {
	return &ProblemController{problemService: problemService}
}

// Get returns a problem with hidden test cases masked.
func (h *ProblemController) Get(c *gin.Context) {
	problemID := strings.TrimSpace(c.Param("id"))
	if problemID == "" {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	view, err := h.problemService.GetPublicView(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}
