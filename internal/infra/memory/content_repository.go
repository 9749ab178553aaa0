package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gamification-service/internal/domain"
)

// ContentLoader fetches content metadata from a backing store (e.g., Postgres).
type ContentLoader interface {
	LoadContent(ctx context.Context, contentID string) (domain.Content, error)
}

// ContentRepository caches content with TTL to avoid repeated DB hits.
type ContentRepository struct {
	loader ContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedContent
}

type cachedContent struct {
	content   domain.Content
	expiresAt time.Time
}

func NewContentRepository(loader ContentLoader, ttl time.Duration) *ContentRepository {
	return &ContentRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedContent),
	}
}

func (r *ContentRepository) GetContent(ctx context.Context, contentID string) (domain.Content, error) {
	if c, ok := r.cached(contentID, r.clock()); ok {
		return c, nil
	}

	result, err, _ := r.sf.Do(contentID, func() (interface{}, error) {
		now := r.clock()
		if c, ok := r.cached(contentID, now); ok {
			return c, nil
		}

		content, err := r.loader.LoadContent(ctx, contentID)
		if err != nil {
			return domain.Content{}, err
		}

		r.mu.Lock()
		r.cache[contentID] = cachedContent{
			content:   content,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return domain.Content{}, err
	}
	return result.(domain.Content), nil
}

func (r *ContentRepository) cached(contentID string, now time.Time) (domain.Content, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[contentID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Content{}, false
	}
	return entry.content, true
}

func (r *ContentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticContentLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticContentLoader struct {
	contents map[string]domain.Content
}

func NewStaticContentLoader(contents []domain.Content) *StaticContentLoader {
	m := make(map[string]domain.Content, len(contents))
	for _, c := range contents {
		m[c.ID] = c
	}
	return &StaticContentLoader{contents: m}
}

func (l *StaticContentLoader) LoadContent(_ context.Context, contentID string) (domain.Content, error) {
	if c, ok := l.contents[contentID]; ok {
		return c, nil
	}
	return domain.Content{}, fmt.Errorf("%w: %s", domain.ErrContentNotFound, contentID)
}

// ListContents returns the loader's contents ordered by id, optionally restricted to one type.
func (l *StaticContentLoader) ListContents(_ context.Context, contentType domain.ContentType) ([]domain.Content, error) {
	out := make([]domain.Content, 0, len(l.contents))
	for _, c := range l.contents {
		if contentType == "" || c.Type == contentType {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
