package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gamification-service/internal/domain"
	"gamification-service/internal/infra/memory"
)

func TestContentRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{ContentLoader: memory.NewStaticContentLoader(sampleContents())}
	repo := NewContentRepository(client, loader, time.Minute)

	c, err := repo.GetContent(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("content:quiz-1") {
		t.Fatalf("expected content hash in redis")
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetContent(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get cached content: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached != c {
		t.Fatalf("expected cached %+v, got %+v", c, cached)
	}

	if err := repo.Invalidate(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetContent(context.Background(), "quiz-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidation, loader calls=%d", loader.calls)
	}
}

func TestContentRepositoryMissingContent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewContentRepository(newClient(mr), memory.NewStaticContentLoader(nil), time.Minute)
	if _, err := repo.GetContent(context.Background(), "nope"); !errors.Is(err, domain.ErrContentNotFound) {
		t.Fatalf("expected content not found, got %v", err)
	}
	if mr.Exists("content:nope") {
		t.Fatalf("misses must not be cached")
	}
}

type countingLoader struct {
	memory.ContentLoader
	calls int
}

func (l *countingLoader) LoadContent(ctx context.Context, contentID string) (domain.Content, error) {
	l.calls++
	return l.ContentLoader.LoadContent(ctx, contentID)
}

func sampleContents() []domain.Content {
	return []domain.Content{
		{ID: "quiz-1", Title: "Fractions", Type: domain.ContentQuiz, MaxScore: 10},
		{ID: "quiz-2", Title: "Decimals", Type: domain.ContentQuiz, MaxScore: 10},
		{ID: "cards-1", Title: "Capitals", Type: domain.ContentFlashcard},
		{ID: "game-1", Title: "Word Hunt", Type: domain.ContentMiniGame, MaxScore: 100},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
