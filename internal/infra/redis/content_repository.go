package redis

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"gamification-service/internal/domain"
)

// ContentLoader fetches content metadata from a backing store (e.g., Postgres).
type ContentLoader interface {
	LoadContent(ctx context.Context, contentID string) (domain.Content, error)
}

// ContentRepository caches content metadata in Redis (hash per content) and
// falls back to a loader on cache miss.
// Stored as: HSET content:{contentID} title {title} type {type} maxScore {maxScore}
type ContentRepository struct {
	client *redis.Client
	loader ContentLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewContentRepository(client *redis.Client, loader ContentLoader, ttl time.Duration) *ContentRepository {
	return &ContentRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ContentRepository) GetContent(ctx context.Context, contentID string) (domain.Content, error) {
	key := r.key(contentID)
	if fields, err := r.client.HGetAll(ctx, key).Result(); err == nil && len(fields) > 0 {
		return contentFromHash(contentID, fields), nil
	}

	result, err, _ := r.sf.Do(contentID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if fields, err := r.client.HGetAll(ctx, key).Result(); err == nil && len(fields) > 0 {
			return contentFromHash(contentID, fields), nil
		}

		content, err := r.loader.LoadContent(ctx, contentID)
		if err != nil {
			return domain.Content{}, err
		}

		pipe := r.client.Pipeline()
		pipe.HSet(ctx, key,
			"title", content.Title,
			"type", string(content.Type),
			"maxScore", strconv.FormatFloat(content.MaxScore, 'f', -1, 64),
		)
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// cache fill is best effort
		_, _ = pipe.Exec(ctx)

		return content, nil
	})
	if err != nil {
		return domain.Content{}, err
	}
	return result.(domain.Content), nil
}

// Invalidate drops the cached copy of a content item.
func (r *ContentRepository) Invalidate(ctx context.Context, contentID string) error {
	return r.client.Del(ctx, r.key(contentID)).Err()
}

func (r *ContentRepository) key(contentID string) string {
	return "content:" + contentID
}

func contentFromHash(contentID string, fields map[string]string) domain.Content {
	maxScore, _ := strconv.ParseFloat(fields["maxScore"], 64)
	return domain.Content{
		ID:       contentID,
		Title:    fields["title"],
		Type:     domain.ContentType(fields["type"]),
		MaxScore: maxScore,
	}
}

func (r *ContentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
