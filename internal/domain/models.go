package domain

import (
	"strings"
	"time"
)

// ContentType identifies which scoring formula applies to a piece of content.
type ContentType string

const (
	ContentQuiz      ContentType = "QUIZ"
	ContentFlashcard ContentType = "FLASHCARD"
	ContentMiniGame  ContentType = "MINI_GAME"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case ContentQuiz, ContentFlashcard, ContentMiniGame:
		return true
	}
	return false
}

// ParseContentType accepts any casing and '-' in place of '_'.
func ParseContentType(raw string) (ContentType, error) {
	t := ContentType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
	if !t.Valid() {
		return "", ErrInvalidContentType
	}
	return t, nil
}

// Content is the scorable unit a submission refers to.
type Content struct {
	ID       string      `json:"id" yaml:"id"`
	Title    string      `json:"title" yaml:"title"`
	Type     ContentType `json:"type" yaml:"type"`
	MaxScore float64     `json:"maxScore,omitempty" yaml:"maxScore"` // optional, used by leaderboard projections
}

// ScoreSubmission is the per-request scoring signal from clients.
type ScoreSubmission struct {
	ContentID string  `json:"contentId"`
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"maxScore"`
}

// ProgressRecord tracks one user's history on one piece of content.
type ProgressRecord struct {
	UserID          string      `json:"userId"`
	ContentID       string      `json:"contentId"`
	ContentType     ContentType `json:"contentType"`
	BestScore       float64     `json:"bestScore"`
	MaxScore        float64     `json:"maxScore"` // maxScore submitted alongside BestScore
	AttemptCount    int         `json:"attemptCount"`
	LastCompletedAt time.Time   `json:"lastCompletedAt"`
}

// Apply folds a new attempt into the record. BestScore never decreases.
func (p ProgressRecord) Apply(score, maxScore float64, at time.Time) ProgressRecord {
	if score > p.BestScore || p.AttemptCount == 0 {
		p.BestScore = score
		p.MaxScore = maxScore
	}
	p.AttemptCount++
	p.LastCompletedAt = at
	return p
}

// Aggregate is the per-user rollup of points, level and badges.
type Aggregate struct {
	UserID      string    `json:"userId"`
	TotalPoints int       `json:"totalPoints"`
	Level       int       `json:"level"`
	Badges      BadgeSet  `json:"badges"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewAggregate returns the state a freshly registered user starts with.
func NewAggregate(userID string, now time.Time) Aggregate {
	return Aggregate{
		UserID:    userID,
		Level:     1,
		Badges:    BadgeSet{},
		UpdatedAt: now,
	}
}

// Clone returns a copy that shares no badge storage with a.
func (a Aggregate) Clone() Aggregate {
	a.Badges = append(BadgeSet{}, a.Badges...)
	return a
}

// SubmitResult is returned by a successful score submission.
type SubmitResult struct {
	Progress     ProgressRecord `json:"progress"`
	Gamification Aggregate      `json:"gamification"`
	PointsEarned int            `json:"pointsEarned"`
	LevelUp      bool           `json:"levelUp"`
	NewBadges    []Badge        `json:"newBadges"`
}

// ScoreEvent is broadcast to subscribers after a submission commits.
type ScoreEvent struct {
	UserID       string      `json:"userId"`
	ContentID    string      `json:"contentId"`
	ContentType  ContentType `json:"contentType"`
	PointsEarned int         `json:"pointsEarned"`
	TotalPoints  int         `json:"totalPoints"`
	Level        int         `json:"level"`
	LevelUp      bool        `json:"levelUp"`
	NewBadges    []Badge     `json:"newBadges"`
	At           time.Time   `json:"at"`
}

// LeaderboardSort selects the ranking key.
type LeaderboardSort string

const (
	SortByPoints LeaderboardSort = "points"
	SortByLevel  LeaderboardSort = "level"
)

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Points int    `json:"points"`
	Level  int    `json:"level"`
	Badges int    `json:"badges"`
}

// Leaderboard captures the ordered ranking at GeneratedAt.
type Leaderboard struct {
	SortBy      LeaderboardSort    `json:"sortBy"`
	ContentType ContentType        `json:"contentType,omitempty"`
	Entries     []LeaderboardEntry `json:"entries"`
	GeneratedAt time.Time          `json:"generatedAt"`
}
