package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"codepractice/internal/stats/model"
	pkgerrors "codepractice/pkg/errors"
	"codepractice/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

type fakeStats struct{}

func (fakeStats) Get(ctx context.Context, userID string) (*model.Stats, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.IdentityMissing)
	}
	return &model.Stats{
		TotalSubmissions: 2,
		StatusCounts:     map[string]int64{"solved": 1, "failed": 1},
		SolvedProblems:   []string{"add"},
	}, nil
}

func serve(userID string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), contextkey.UserID, userID))
		}
		c.Next()
	})
	r.GET("/profile/stats", NewStatsController(fakeStats{}).Get)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profile/stats", nil))
	return w
}

func TestGetStats(t *testing.T) {
	w := serve("u-1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats model.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stats.TotalSubmissions != 2 || stats.SolvedProblems[0] != "add" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	if w := serve(""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", w.Code)
	}
}
