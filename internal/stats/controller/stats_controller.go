package controller

import (
	"context"

	"codepractice/internal/stats/model"
	"codepractice/pkg/utils/contextkey"
	"codepractice/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// StatsReader returns per-user stats.
type StatsReader interface {
	Get(ctx context.Context, userID string) (*model.Stats, error)
}

// StatsController serves the caller's profile stats.
type StatsController struct {
	stats StatsReader
}

func NewStatsController(stats StatsReader) *StatsController {
	return &StatsController{stats: stats}
}

// Get handles GET /profile/stats.
func (h *StatsController) Get(c *gin.Context) {
	stats, err := h.stats.Get(c.Request.Context(), contextkey.UserIDFrom(c.Request.Context()))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}
