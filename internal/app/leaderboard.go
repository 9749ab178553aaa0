package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gamification-service/internal/domain"
	"gamification-service/internal/scoring"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100

	// assumedMaxScore stands in for records stored without a maxScore.
	assumedMaxScore = 100
)

// LeaderboardQuery selects how users are ranked.
type LeaderboardQuery struct {
	SortBy      domain.LeaderboardSort
	ContentType domain.ContentType // empty ranks by aggregate totals
	Limit       int
}

// Leaderboard ranks users. With a content type, points are re-estimated from
// each user's best scores on that type using the regular point formulas; this
// is a best-effort projection and does not reproduce historical points exactly.
func (s *GamificationService) Leaderboard(ctx context.Context, q LeaderboardQuery) (domain.Leaderboard, error) {
	q = s.normalizeQuery(q)
	if q.ContentType != "" && !q.ContentType.Valid() {
		return domain.Leaderboard{}, domain.ErrInvalidContentType
	}

	var (
		entries []domain.LeaderboardEntry
		err     error
	)
	if q.ContentType == "" {
		entries, err = s.aggregateRanking(ctx, q)
	} else {
		entries, err = s.contentTypeRanking(ctx, q)
	}
	if err != nil {
		return domain.Leaderboard{}, err
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return domain.Leaderboard{
		SortBy:      q.SortBy,
		ContentType: q.ContentType,
		Entries:     entries,
		GeneratedAt: s.now(),
	}, nil
}

func (s *GamificationService) normalizeQuery(q LeaderboardQuery) LeaderboardQuery {
	if q.SortBy != domain.SortByLevel {
		q.SortBy = domain.SortByPoints
	}
	if q.Limit <= 0 {
		q.Limit = s.defaultLimit
	}
	if q.Limit > MaxLeaderboardLimit {
		q.Limit = MaxLeaderboardLimit
	}
	return q
}

func (s *GamificationService) aggregateRanking(ctx context.Context, q LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	aggs, err := s.store.TopAggregates(ctx, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("load aggregates: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(aggs))
	for _, a := range aggs {
		entries = append(entries, domain.LeaderboardEntry{
			UserID: a.UserID,
			Points: a.TotalPoints,
			Level:  a.Level,
			Badges: len(a.Badges),
		})
	}
	sortEntries(entries, q.SortBy)
	return entries, nil
}

func (s *GamificationService) contentTypeRanking(ctx context.Context, q LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	records, err := s.store.ListProgressByType(ctx, q.ContentType)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	points := make(map[string]int)
	for _, r := range records {
		maxScore := r.MaxScore
		if maxScore <= 0 {
			maxScore = assumedMaxScore
		}
		points[r.UserID] += scoring.CalculatePoints(q.ContentType, r.BestScore, maxScore)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(points))
	for userID, p := range points {
		entries = append(entries, domain.LeaderboardEntry{UserID: userID, Points: p, Level: scoring.CalculateLevel(p)})
	}
	sortEntries(entries, domain.SortByPoints)
	if len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}

	// Level and badge columns reflect the user's overall aggregate.
	for i := range entries {
		agg, err := s.store.GetAggregate(ctx, entries[i].UserID)
		if errors.Is(err, domain.ErrAggregateNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load aggregate %s: %w", entries[i].UserID, err)
		}
		entries[i].Level = agg.Level
		entries[i].Badges = len(agg.Badges)
	}
	sortEntries(entries, q.SortBy)
	return entries, nil
}

func sortEntries(entries []domain.LeaderboardEntry, by domain.LeaderboardSort) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if by == domain.SortByLevel && a.Level != b.Level {
			return a.Level > b.Level
		}
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		return a.UserID < b.UserID
	})
}
