package scoring

import (
	"context"
	"time"

	"gamification-service/internal/domain"
)

// PerfectScoreThreshold is the bestScore at which a progress record counts as perfect.
const PerfectScoreThreshold = 100

// ProgressCounter answers the history questions badge rules depend on.
type ProgressCounter interface {
	CountByUserAndType(ctx context.Context, userID string, contentType domain.ContentType) (int, error)
	CountByUserWithScoreAtLeast(ctx context.Context, userID string, threshold float64) (int, error)
}

// Snapshot is the state a rule is evaluated against.
type Snapshot struct {
	TotalPoints   int
	Level         int
	QuizCount     int
	PerfectScores int
}

// Rule awards the badge Name when Earned holds.
type Rule struct {
	Name   string
	Icon   string
	Earned func(Snapshot) bool
}

// Rules is the badge catalogue, in display order.
var Rules = []Rule{
	{Name: "First Quiz", Icon: "🎯", Earned: func(s Snapshot) bool { return s.QuizCount == 1 }},
	{Name: "Perfect Score Master", Icon: "💯", Earned: func(s Snapshot) bool { return s.PerfectScores >= 5 }},
	{Name: "Level 5", Icon: "⭐", Earned: func(s Snapshot) bool { return s.Level >= 5 }},
	{Name: "Level 10", Icon: "🏆", Earned: func(s Snapshot) bool { return s.Level >= 10 }},
	{Name: "Dedicated Learner", Icon: "📚", Earned: func(s Snapshot) bool { return s.TotalPoints >= 500 }},
}

// EvaluateBadges returns every badge whose rule holds for the user's new
// totals, stamped with now. Already owned badges are returned again; callers
// de-duplicate with domain.BadgeSet.Merge.
func EvaluateBadges(ctx context.Context, userID string, totalPoints, level int, counter ProgressCounter, now time.Time) ([]domain.Badge, error) {
	quizzes, err := counter.CountByUserAndType(ctx, userID, domain.ContentQuiz)
	if err != nil {
		return nil, err
	}
	perfect, err := counter.CountByUserWithScoreAtLeast(ctx, userID, PerfectScoreThreshold)
	if err != nil {
		return nil, err
	}
	return Award(Snapshot{
		TotalPoints:   totalPoints,
		Level:         level,
		QuizCount:     quizzes,
		PerfectScores: perfect,
	}, now), nil
}

// Award applies Rules to a snapshot.
func Award(s Snapshot, now time.Time) []domain.Badge {
	var badges []domain.Badge
	for _, r := range Rules {
		if r.Earned(s) {
			badges = append(badges, domain.Badge{Name: r.Name, Icon: r.Icon, EarnedAt: now})
		}
	}
	return badges
}
