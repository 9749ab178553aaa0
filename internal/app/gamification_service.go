package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gamification-service/internal/domain"
	"gamification-service/internal/scoring"
)

// GamificationService contains the scoring use cases.
type GamificationService struct {
	store    Store
	contents ContentRepository
	catalog  ContentLister
	events   *Broadcaster
	observer Observer
	now      func() time.Time

	defaultLimit int
}

// Option customizes a GamificationService.
type Option func(*GamificationService)

// WithObserver installs an observability hook around submissions.
func WithObserver(o Observer) Option {
	return func(s *GamificationService) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithContentLister enables ListContents.
func WithContentLister(l ContentLister) Option {
	return func(s *GamificationService) {
		s.catalog = l
	}
}

// WithDefaultLeaderboardLimit sets the page size used when a query has none.
func WithDefaultLeaderboardLimit(n int) Option {
	return func(s *GamificationService) {
		if n > 0 && n <= MaxLeaderboardLimit {
			s.defaultLimit = n
		}
	}
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *GamificationService) {
		s.now = now
	}
}

func NewGamificationService(store Store, contents ContentRepository, opts ...Option) *GamificationService {
	s := &GamificationService{
		store:    store,
		contents: contents,
		events:   NewBroadcaster(),
		observer: nopObserver{},
		now:      time.Now,

		defaultLimit: DefaultLeaderboardLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProvisionUser creates the starting aggregate for a newly registered user.
func (s *GamificationService) ProvisionUser(ctx context.Context, userID string) (domain.Aggregate, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Aggregate{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidSubmission)
	}
	agg := domain.NewAggregate(userID, s.now())
	if err := s.store.CreateAggregate(ctx, agg); err != nil {
		return domain.Aggregate{}, err
	}
	return agg, nil
}

// SubmitScore records a score for content and updates the user's aggregate.
// The progress upsert and the aggregate update commit together or not at all.
func (s *GamificationService) SubmitScore(ctx context.Context, userID string, sub domain.ScoreSubmission) (domain.SubmitResult, error) {
	started := s.now()
	result, content, err := s.submit(ctx, userID, sub)
	if err != nil {
		s.observer.SubmissionFailed(ctx, userID, sub, err)
		return domain.SubmitResult{}, err
	}
	s.observer.ScoreSubmitted(ctx, userID, sub, result, s.now().Sub(started))
	s.events.Publish(domain.ScoreEvent{
		UserID:       userID,
		ContentID:    content.ID,
		ContentType:  content.Type,
		PointsEarned: result.PointsEarned,
		TotalPoints:  result.Gamification.TotalPoints,
		Level:        result.Gamification.Level,
		LevelUp:      result.LevelUp,
		NewBadges:    result.NewBadges,
		At:           result.Progress.LastCompletedAt,
	})
	return result, nil
}

func (s *GamificationService) submit(ctx context.Context, userID string, sub domain.ScoreSubmission) (domain.SubmitResult, domain.Content, error) {
	if err := validateSubmission(userID, sub); err != nil {
		return domain.SubmitResult{}, domain.Content{}, err
	}

	content, err := s.contents.GetContent(ctx, sub.ContentID)
	if err != nil {
		return domain.SubmitResult{}, domain.Content{}, err
	}
	points := scoring.CalculatePoints(content.Type, sub.Score, sub.MaxScore)

	var result domain.SubmitResult
	err = s.store.WithinUserTx(ctx, userID, func(tx UserTx) error {
		now := s.now()
		progress, err := tx.UpsertProgress(ctx, userID, content, sub.Score, sub.MaxScore, now)
		if err != nil {
			return fmt.Errorf("upsert progress: %w", err)
		}

		agg, err := tx.GetAggregate(ctx, userID)
		if err != nil {
			return err
		}
		prevLevel := agg.Level

		total := agg.TotalPoints + points
		level := scoring.CalculateLevel(total)
		earned, err := scoring.EvaluateBadges(ctx, userID, total, level, tx, now)
		if err != nil {
			return fmt.Errorf("evaluate badges: %w", err)
		}
		badges, added := agg.Badges.Merge(earned)

		updated := domain.Aggregate{
			UserID:      userID,
			TotalPoints: total,
			Level:       level,
			Badges:      badges,
			UpdatedAt:   now,
		}
		if err := tx.SaveAggregate(ctx, updated); err != nil {
			return fmt.Errorf("save aggregate: %w", err)
		}

		result = domain.SubmitResult{
			Progress:     progress,
			Gamification: updated,
			PointsEarned: points,
			LevelUp:      level > prevLevel,
			NewBadges:    added,
		}
		return nil
	})
	if err != nil {
		return domain.SubmitResult{}, domain.Content{}, err
	}
	return result, content, nil
}

// Gamification returns the user's current aggregate.
func (s *GamificationService) Gamification(ctx context.Context, userID string) (domain.Aggregate, error) {
	return s.store.GetAggregate(ctx, userID)
}

// Progress lists the user's progress records, most recently completed first.
func (s *GamificationService) Progress(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	return s.store.ListProgress(ctx, userID)
}

// ListContents returns the content catalogue, optionally filtered by type.
// Without a configured lister the catalogue is empty.
func (s *GamificationService) ListContents(ctx context.Context, contentType domain.ContentType) ([]domain.Content, error) {
	if contentType != "" && !contentType.Valid() {
		return nil, domain.ErrInvalidContentType
	}
	if s.catalog == nil {
		return []domain.Content{}, nil
	}
	contents, err := s.catalog.ListContents(ctx, contentType)
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	if contents == nil {
		contents = []domain.Content{}
	}
	return contents, nil
}

// Subscribe returns a channel that receives every committed ScoreEvent.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GamificationService) Subscribe(_ context.Context) (<-chan domain.ScoreEvent, func()) {
	return s.events.Subscribe()
}

// BadgeInfo describes one entry of the badge catalogue.
type BadgeInfo struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Badges lists every badge a user can earn.
func (s *GamificationService) Badges() []BadgeInfo {
	out := make([]BadgeInfo, 0, len(scoring.Rules))
	for _, r := range scoring.Rules {
		out = append(out, BadgeInfo{Name: r.Name, Icon: r.Icon})
	}
	return out
}

func validateSubmission(userID string, sub domain.ScoreSubmission) error {
	switch {
	case strings.TrimSpace(userID) == "":
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidSubmission)
	case strings.TrimSpace(sub.ContentID) == "":
		return fmt.Errorf("%w: content id is required", domain.ErrInvalidSubmission)
	case !finite(sub.Score) || sub.Score < 0:
		return fmt.Errorf("%w: score must be a non-negative number", domain.ErrInvalidSubmission)
	case !finite(sub.MaxScore) || sub.MaxScore <= 0:
		return fmt.Errorf("%w: maxScore must be positive", domain.ErrInvalidSubmission)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
