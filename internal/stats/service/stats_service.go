package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"codepractice/internal/common/cache"
	"codepractice/internal/stats/model"
	submodel "codepractice/internal/submission/model"
	pkgerrors "codepractice/pkg/errors"
)

// StatsService reads the counters kept by StatsConsumer.
type StatsService struct {
	cache cache.Cache
}

// NewStatsService creates a StatsService.
func NewStatsService(cacheClient cache.Cache) *StatsService {
	return &StatsService{cache: cacheClient}
}

// Get returns the stats of userID. Users without submissions get zeroes.
func (s *StatsService) Get(ctx context.Context, userID string) (*model.Stats, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.IdentityMissing)
	}
	fields, err := s.cache.HGetAll(ctx, statsUserKeyPrefix+userID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.CacheError, "read stats failed")
	}
	solved, err := s.cache.SMembers(ctx, statsSolvedKeyPrefix+userID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.CacheError, "read solved problems failed")
	}

	stats := &model.Stats{
		StatusCounts: map[string]int64{
			string(submodel.StatusAttempted): 0,
			string(submodel.StatusSolved):    0,
			string(submodel.StatusFailed):    0,
		},
		SolvedProblems: solved,
	}
	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case field == totalField:
			stats.TotalSubmissions = n
		case strings.HasPrefix(field, statusFieldPrefix):
			stats.StatusCounts[strings.TrimPrefix(field, statusFieldPrefix)] = n
		}
	}
	if stats.SolvedProblems == nil {
		stats.SolvedProblems = []string{}
	}
	sort.Strings(stats.SolvedProblems)
	return stats, nil
}
