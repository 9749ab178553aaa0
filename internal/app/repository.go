package app

import (
	"context"
	"time"

	"gamification-service/internal/domain"
)

// ContentRepository resolves content metadata (from cache/backing store).
type ContentRepository interface {
	GetContent(ctx context.Context, contentID string) (domain.Content, error)
}

// ContentLister enumerates the content catalogue.
type ContentLister interface {
	ListContents(ctx context.Context, contentType domain.ContentType) ([]domain.Content, error)
}

// UserTx is the view of a store inside a per-user transaction. Writes made
// through it become visible only when the surrounding WithinUserTx commits.
type UserTx interface {
	// UpsertProgress creates the (user, content) record or folds a new attempt into it.
	UpsertProgress(ctx context.Context, userID string, content domain.Content, score, maxScore float64, at time.Time) (domain.ProgressRecord, error)
	CountByUserAndType(ctx context.Context, userID string, contentType domain.ContentType) (int, error)
	CountByUserWithScoreAtLeast(ctx context.Context, userID string, threshold float64) (int, error)
	GetAggregate(ctx context.Context, userID string) (domain.Aggregate, error)
	SaveAggregate(ctx context.Context, aggregate domain.Aggregate) error
}

// Store abstracts where progress records and aggregates live (in-memory, Redis, Postgres).
type Store interface {
	// WithinUserTx runs fn atomically, serialized against other transactions
	// for the same user. Any error from fn discards all writes made through tx.
	WithinUserTx(ctx context.Context, userID string, fn func(tx UserTx) error) error

	CreateAggregate(ctx context.Context, aggregate domain.Aggregate) error
	GetAggregate(ctx context.Context, userID string) (domain.Aggregate, error)
	// TopAggregates returns up to limit aggregates ordered by total points desc, user id asc.
	TopAggregates(ctx context.Context, limit int) ([]domain.Aggregate, error)
	ListProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error)
	ListProgressByType(ctx context.Context, contentType domain.ContentType) ([]domain.ProgressRecord, error)
}
