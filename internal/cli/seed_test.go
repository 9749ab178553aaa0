package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamification-service/internal/domain"
	"gamification-service/internal/infra/memory"
	redisstore "gamification-service/internal/infra/redis"
)

func TestReadSeedFileNormalizesTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	raw := "contents:\n  - id: c1\n    title: Cards\n    type: flashcard\n  - id: g1\n    type: mini-game\n    maxScore: 50\nusers: [alice, bob]\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	seed, err := readSeedFile(path)
	require.NoError(t, err)
	require.Len(t, seed.Contents, 2)
	assert.Equal(t, domain.ContentFlashcard, seed.Contents[0].Type)
	assert.Equal(t, domain.ContentMiniGame, seed.Contents[1].Type)
	assert.Equal(t, 50.0, seed.Contents[1].MaxScore)
	assert.Equal(t, []string{"alice", "bob"}, seed.Users)
}

func TestReadSeedFileRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contents:\n  - id: x\n    type: essay\n"), 0o600))

	_, err := readSeedFile(path)
	assert.ErrorIs(t, err, domain.ErrInvalidContentType)
}

func TestInvalidateContentsRefreshesRedisCache(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	before := []domain.Content{{ID: "c1", Title: "Capitals", Type: domain.ContentFlashcard}}
	after := []domain.Content{{ID: "c1", Title: "Capitals", Type: domain.ContentQuiz, MaxScore: 10}}

	stale := redisstore.NewContentRepository(client, memory.NewStaticContentLoader(before), time.Hour)
	c, err := stale.GetContent(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, domain.ContentFlashcard, c.Type)
	require.True(t, mr.Exists("content:c1"))

	fresh := redisstore.NewContentRepository(client, memory.NewStaticContentLoader(after), time.Hour)
	c, err = fresh.GetContent(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.ContentFlashcard, c.Type, "cache still serves the old row")

	require.NoError(t, invalidateContents(ctx, fresh, after))
	assert.False(t, mr.Exists("content:c1"))

	c, err = fresh.GetContent(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.ContentQuiz, c.Type)
	assert.Equal(t, 10.0, c.MaxScore)
}
