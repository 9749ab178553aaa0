package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gamification-service/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ContentLoader loads content metadata from Postgres.
type ContentLoader struct {
	pool *pgxpool.Pool
}

func NewContentLoader(pool *pgxpool.Pool) *ContentLoader {
	return &ContentLoader{pool: pool}
}

func (l *ContentLoader) LoadContent(ctx context.Context, contentID string) (domain.Content, error) {
	query, args, err := psql.
		Select("id", "title", "content_type", "max_score").
		From("contents").
		Where(sq.Eq{"id": contentID}).
		ToSql()
	if err != nil {
		return domain.Content{}, fmt.Errorf("build content query: %w", err)
	}

	var (
		c   domain.Content
		typ string
	)
	err = l.pool.QueryRow(ctx, query, args...).Scan(&c.ID, &c.Title, &typ, &c.MaxScore)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Content{}, fmt.Errorf("%w: %s", domain.ErrContentNotFound, contentID)
	}
	if err != nil {
		return domain.Content{}, fmt.Errorf("load content: %w", err)
	}
	c.Type = domain.ContentType(typ)
	return c, nil
}

// ListContents returns every content row, optionally restricted to one type.
func (l *ContentLoader) ListContents(ctx context.Context, contentType domain.ContentType) ([]domain.Content, error) {
	qb := psql.Select("id", "title", "content_type", "max_score").From("contents").OrderBy("id")
	if contentType != "" {
		qb = qb.Where(sq.Eq{"content_type": string(contentType)})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build contents query: %w", err)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	defer rows.Close()

	var out []domain.Content
	for rows.Next() {
		var (
			c   domain.Content
			typ string
		)
		if err := rows.Scan(&c.ID, &c.Title, &typ, &c.MaxScore); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		c.Type = domain.ContentType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}
