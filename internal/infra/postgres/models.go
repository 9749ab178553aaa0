package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"gamification-service/internal/domain"
)

type contentRow struct {
	bun.BaseModel `bun:"table:contents,alias:c"`

	ID          string    `bun:"id,pk"`
	Title       string    `bun:"title,notnull"`
	ContentType string    `bun:"content_type,notnull"`
	MaxScore    float64   `bun:"max_score,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type progressRow struct {
	bun.BaseModel `bun:"table:progress_records,alias:p"`

	ID              uuid.UUID `bun:"id,pk,type:uuid"`
	UserID          string    `bun:"user_id,notnull"`
	ContentID       string    `bun:"content_id,notnull"`
	ContentType     string    `bun:"content_type,notnull"`
	BestScore       float64   `bun:"best_score,notnull"`
	MaxScore        float64   `bun:"max_score,notnull"`
	AttemptCount    int       `bun:"attempt_count,notnull"`
	LastCompletedAt time.Time `bun:"last_completed_at,notnull"`
}

func (r progressRow) toDomain() domain.ProgressRecord {
	return domain.ProgressRecord{
		UserID:          r.UserID,
		ContentID:       r.ContentID,
		ContentType:     domain.ContentType(r.ContentType),
		BestScore:       r.BestScore,
		MaxScore:        r.MaxScore,
		AttemptCount:    r.AttemptCount,
		LastCompletedAt: r.LastCompletedAt,
	}
}

type aggregateRow struct {
	bun.BaseModel `bun:"table:gamification_aggregates,alias:g"`

	UserID      string          `bun:"user_id,pk"`
	TotalPoints int             `bun:"total_points,notnull"`
	Level       int             `bun:"level,notnull"`
	Badges      domain.BadgeSet `bun:"badges,type:jsonb,notnull"`
	UpdatedAt   time.Time       `bun:"updated_at,notnull"`
}

func newAggregateRow(a domain.Aggregate) aggregateRow {
	badges := a.Badges
	if badges == nil {
		badges = domain.BadgeSet{}
	}
	return aggregateRow{
		UserID:      a.UserID,
		TotalPoints: a.TotalPoints,
		Level:       a.Level,
		Badges:      badges,
		UpdatedAt:   a.UpdatedAt,
	}
}

func (r aggregateRow) toDomain() domain.Aggregate {
	badges := r.Badges
	if badges == nil {
		badges = domain.BadgeSet{}
	}
	return domain.Aggregate{
		UserID:      r.UserID,
		TotalPoints: r.TotalPoints,
		Level:       r.Level,
		Badges:      badges,
		UpdatedAt:   r.UpdatedAt,
	}
}
