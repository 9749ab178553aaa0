package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"gamification-service/internal/app"
	"gamification-service/internal/domain"
	"gamification-service/internal/logging"
)

// Store is a Postgres implementation of app.Store built on bun.
// Per-user transactions lock the user's aggregate row with SELECT ... FOR UPDATE
// before touching progress, so concurrent submissions for one user serialize
// while different users proceed in parallel.
type Store struct {
	db  *bun.DB
	log *logrus.Entry
}

func NewStore(db *bun.DB, log *logrus.Entry) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) WithinUserTx(ctx context.Context, userID string, fn func(tx app.UserTx) error) error {
	log := logging.Component(ctx, s.log, "pg_store").WithField("user_id", userID)
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ut := &userTx{tx: tx, userID: userID}

		var locked aggregateRow
		err := tx.NewSelect().Model(&locked).Where("g.user_id = ?", userID).For("UPDATE").Scan(ctx)
		switch {
		case err == nil:
			ut.locked = &locked
		case errors.Is(err, sql.ErrNoRows):
			log.Debug("no aggregate row to lock")
		default:
			return fmt.Errorf("lock aggregate: %w", err)
		}
		return fn(ut)
	})
}

func (s *Store) CreateAggregate(ctx context.Context, agg domain.Aggregate) error {
	row := newAggregateRow(agg)
	res, err := s.db.NewInsert().Model(&row).On("CONFLICT (user_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert aggregate: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAggregateExists
	}
	return nil
}

func (s *Store) GetAggregate(ctx context.Context, userID string) (domain.Aggregate, error) {
	return getAggregate(ctx, s.db, userID)
}

func (s *Store) TopAggregates(ctx context.Context, limit int) ([]domain.Aggregate, error) {
	var rows []aggregateRow
	q := s.db.NewSelect().Model(&rows).OrderExpr("g.total_points DESC, g.user_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("select aggregates: %w", err)
	}
	out := make([]domain.Aggregate, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ListProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	var rows []progressRow
	err := s.db.NewSelect().Model(&rows).
		Where("p.user_id = ?", userID).
		OrderExpr("p.last_completed_at DESC, p.content_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select progress: %w", err)
	}
	return toRecords(rows), nil
}

func (s *Store) ListProgressByType(ctx context.Context, contentType domain.ContentType) ([]domain.ProgressRecord, error) {
	var rows []progressRow
	err := s.db.NewSelect().Model(&rows).Where("p.content_type = ?", string(contentType)).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select progress by type: %w", err)
	}
	return toRecords(rows), nil
}

// UpsertContents inserts or refreshes content rows (used by the seed command).
func (s *Store) UpsertContents(ctx context.Context, contents []domain.Content) error {
	if len(contents) == 0 {
		return nil
	}
	rows := make([]contentRow, 0, len(contents))
	for _, c := range contents {
		rows = append(rows, contentRow{ID: c.ID, Title: c.Title, ContentType: string(c.Type), MaxScore: c.MaxScore})
	}
	_, err := s.db.NewInsert().Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("content_type = EXCLUDED.content_type").
		Set("max_score = EXCLUDED.max_score").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert contents: %w", err)
	}
	return nil
}

func toRecords(rows []progressRow) []domain.ProgressRecord {
	out := make([]domain.ProgressRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

func getAggregate(ctx context.Context, db bun.IDB, userID string) (domain.Aggregate, error) {
	var row aggregateRow
	err := db.NewSelect().Model(&row).Where("g.user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Aggregate{}, domain.ErrAggregateNotFound
	}
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("select aggregate: %w", err)
	}
	return row.toDomain(), nil
}

type userTx struct {
	tx     bun.Tx
	userID string
	locked *aggregateRow
}

const upsertProgressSQL = `
INSERT INTO progress_records AS p
    (id, user_id, content_id, content_type, best_score, max_score, attempt_count, last_completed_at)
VALUES (?, ?, ?, ?, ?, ?, 1, ?)
ON CONFLICT (user_id, content_id) DO UPDATE SET
    best_score = GREATEST(p.best_score, EXCLUDED.best_score),
    max_score = CASE WHEN EXCLUDED.best_score > p.best_score THEN EXCLUDED.max_score ELSE p.max_score END,
    content_type = EXCLUDED.content_type,
    attempt_count = p.attempt_count + 1,
    last_completed_at = EXCLUDED.last_completed_at
RETURNING id, user_id, content_id, content_type, best_score, max_score, attempt_count, last_completed_at`

func (t *userTx) UpsertProgress(ctx context.Context, userID string, content domain.Content, score, maxScore float64, at time.Time) (domain.ProgressRecord, error) {
	var r progressRow
	err := t.tx.QueryRowContext(ctx, upsertProgressSQL,
		uuid.New(), userID, content.ID, string(content.Type), score, maxScore, at,
	).Scan(&r.ID, &r.UserID, &r.ContentID, &r.ContentType, &r.BestScore, &r.MaxScore, &r.AttemptCount, &r.LastCompletedAt)
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	return r.toDomain(), nil
}

func (t *userTx) CountByUserAndType(ctx context.Context, userID string, contentType domain.ContentType) (int, error) {
	return t.tx.NewSelect().Model((*progressRow)(nil)).
		Where("p.user_id = ?", userID).
		Where("p.content_type = ?", string(contentType)).
		Count(ctx)
}

func (t *userTx) CountByUserWithScoreAtLeast(ctx context.Context, userID string, threshold float64) (int, error) {
	return t.tx.NewSelect().Model((*progressRow)(nil)).
		Where("p.user_id = ?", userID).
		Where("p.best_score >= ?", threshold).
		Count(ctx)
}

func (t *userTx) GetAggregate(ctx context.Context, userID string) (domain.Aggregate, error) {
	if userID != t.userID {
		return getAggregate(ctx, t.tx, userID)
	}
	if t.locked == nil {
		return domain.Aggregate{}, domain.ErrAggregateNotFound
	}
	return t.locked.toDomain().Clone(), nil
}

func (t *userTx) SaveAggregate(ctx context.Context, agg domain.Aggregate) error {
	row := newAggregateRow(agg)
	res, err := t.tx.NewUpdate().Model(&row).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAggregateNotFound
	}
	if agg.UserID == t.userID {
		t.locked = &row
	}
	return nil
}
