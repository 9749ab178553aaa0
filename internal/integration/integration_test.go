package integration

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"gamification-service/internal/app"
	"gamification-service/internal/domain"
	"gamification-service/internal/infra/postgres"
	pgmigrations "gamification-service/internal/infra/postgres/migrations"
	infraredis "gamification-service/internal/infra/redis"
)

var sampleContents = []domain.Content{
	{ID: "quiz-1", Title: "Fractions", Type: domain.ContentQuiz, MaxScore: 10},
	{ID: "quiz-2", Title: "Decimals", Type: domain.ContentQuiz, MaxScore: 10},
	{ID: "cards-1", Title: "Capitals", Type: domain.ContentFlashcard},
}

func TestSubmitScoreEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := migrateAndSeed(t, ctx, pgURL)
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	log := logrus.NewEntry(logrus.New())
	log.Logger.SetOutput(io.Discard)

	loader := postgres.NewContentLoader(pool)
	contents := infraredis.NewContentRepository(redisClient, loader, 5*time.Minute)
	service := app.NewGamificationService(postgres.NewStore(db, log), contents, app.WithContentLister(loader))

	catalog, err := service.ListContents(ctx, "")
	if err != nil {
		t.Fatalf("list contents: %v", err)
	}
	if len(catalog) != 3 || catalog[0].ID != "cards-1" {
		t.Fatalf("unexpected catalogue: %+v", catalog)
	}
	quizzes, err := service.ListContents(ctx, domain.ContentQuiz)
	if err != nil {
		t.Fatalf("list quizzes: %v", err)
	}
	if len(quizzes) != 2 || quizzes[0].ID != "quiz-1" || quizzes[1].MaxScore != 10 {
		t.Fatalf("unexpected quiz listing: %+v", quizzes)
	}

	for _, u := range []string{"u1", "u2"} {
		if _, err := service.ProvisionUser(ctx, u); err != nil {
			t.Fatalf("provision %s: %v", u, err)
		}
	}
	if _, err := service.ProvisionUser(ctx, "u1"); err == nil {
		t.Fatalf("expected duplicate provisioning to fail")
	}

	res, err := service.SubmitScore(ctx, "u2", domain.ScoreSubmission{ContentID: "quiz-1", Score: 10, MaxScore: 10})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.PointsEarned != 50 || res.Gamification.TotalPoints != 50 || res.Progress.AttemptCount != 1 {
		t.Fatalf("unexpected first result: %+v", res)
	}
	if len(res.NewBadges) != 1 || res.NewBadges[0].Name != "First Quiz" {
		t.Fatalf("expected First Quiz badge, got %+v", res.NewBadges)
	}

	res, err = service.SubmitScore(ctx, "u2", domain.ScoreSubmission{ContentID: "quiz-1", Score: 4, MaxScore: 10})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if res.Progress.BestScore != 10 || res.Progress.AttemptCount != 2 || res.Gamification.TotalPoints != 76 {
		t.Fatalf("unexpected second result: %+v", res)
	}
	if len(res.Gamification.Badges) != 1 {
		t.Fatalf("expected badge set to stay unique, got %+v", res.Gamification.Badges)
	}

	if _, err := service.SubmitScore(ctx, "u1", domain.ScoreSubmission{ContentID: "cards-1", Score: 3, MaxScore: 5}); err != nil {
		t.Fatalf("submit flashcard: %v", err)
	}

	lb, err := service.Leaderboard(ctx, app.LeaderboardQuery{})
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].UserID != "u2" || lb.Entries[1].Points != 15 {
		t.Fatalf("unexpected leaderboard: %+v", lb.Entries)
	}

	quizBoard, err := service.Leaderboard(ctx, app.LeaderboardQuery{ContentType: domain.ContentQuiz})
	if err != nil {
		t.Fatalf("quiz leaderboard: %v", err)
	}
	if len(quizBoard.Entries) != 1 || quizBoard.Entries[0].Points != 50 {
		t.Fatalf("unexpected quiz leaderboard: %+v", quizBoard.Entries)
	}

	if _, err := service.SubmitScore(ctx, "ghost", domain.ScoreSubmission{ContentID: "quiz-2", Score: 1, MaxScore: 10}); err == nil {
		t.Fatalf("expected unprovisioned user to fail")
	}
	progress, err := service.Progress(ctx, "ghost")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(progress) != 0 {
		t.Fatalf("expected failed submission to leave no progress, got %+v", progress)
	}
}

func TestConcurrentSubmissionsAreSerialized(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := migrateAndSeed(t, ctx, pgURL)
	defer db.Close()
	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	log := logrus.NewEntry(logrus.New())
	log.Logger.SetOutput(io.Discard)
	service := app.NewGamificationService(postgres.NewStore(db, log), postgresContents{postgres.NewContentLoader(pool)})
	if _, err := service.ProvisionUser(ctx, "u1"); err != nil {
		t.Fatalf("provision: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.SubmitScore(ctx, "u1", domain.ScoreSubmission{ContentID: "cards-1", Score: 2, MaxScore: 5})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	agg, err := service.Gamification(ctx, "u1")
	if err != nil {
		t.Fatalf("gamification: %v", err)
	}
	if agg.TotalPoints != n*10 {
		t.Fatalf("expected %d points, got %d", n*10, agg.TotalPoints)
	}
	progress, err := service.Progress(ctx, "u1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(progress) != 1 || progress[0].AttemptCount != n {
		t.Fatalf("expected one record with %d attempts, got %+v", n, progress)
	}
}

// postgresContents reads content straight from the database without caching.
type postgresContents struct {
	loader *postgres.ContentLoader
}

func (c postgresContents) GetContent(ctx context.Context, contentID string) (domain.Content, error) {
	return c.loader.LoadContent(ctx, contentID)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "gamification", "POSTGRES_PASSWORD": "gamification", "POSTGRES_DB": "gamification"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://gamification:gamification@%s:%s/gamification?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := postgres.NewStore(db, nil)
	if err := store.UpsertContents(ctx, sampleContents); err != nil {
		t.Fatalf("seed contents: %v", err)
	}
	return db
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
