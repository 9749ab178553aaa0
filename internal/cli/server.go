package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gamification-service/internal/app"
	"gamification-service/internal/config"
	"gamification-service/internal/domain"
	"gamification-service/internal/infra/memory"
	"gamification-service/internal/infra/postgres"
	redisstore "gamification-service/internal/infra/redis"
	"gamification-service/internal/logging"
	transport "gamification-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gamification HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func newLogger(cfg config.Config) *logrus.Entry {
	return logrus.NewEntry(logging.New(cfg.Log.Level, cfg.Log.Format)).WithField("service", "gamification")
}

// contentSource loads single content items and lists the catalogue.
type contentSource interface {
	memory.ContentLoader
	app.ContentLister
}

// backend bundles the store and content repository chosen from config.
type backend struct {
	store    app.Store
	contents app.ContentRepository
	catalog  app.ContentLister
	name     string
	closers  []func() error
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

// openBackend picks postgres when a URL is configured, then redis, then memory.
// Redis caches content in front of whichever loader is available.
func openBackend(ctx context.Context, cfg config.Config, log *logrus.Entry) (*backend, error) {
	b := &backend{name: "memory"}
	var loader contentSource = memory.NewStaticContentLoader(cfg.Contents)
	if cfg.Postgres.URL != "" {
		db, err := openBunDB(cfg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		if err := runMigrations(ctx, db, log); err != nil {
			b.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		loader = postgres.NewContentLoader(pool)
		b.store = postgres.NewStore(db, log)
		b.name = "postgres"
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			b.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.contents = redisstore.NewContentRepository(client, loader, cfg.RedisTTL())
		if b.store == nil {
			b.store = redisstore.NewStore(client, log)
			b.name = "redis"
		}
	}

	if b.contents == nil {
		b.contents = memory.NewContentRepository(loader, cfg.ContentTTL())
	}
	b.catalog = loader
	if b.store == nil {
		b.store = memory.NewStore()
	}
	return b, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	service := app.NewGamificationService(b.store, b.contents,
		app.WithObserver(app.NewLogObserver(log)),
		app.WithDefaultLeaderboardLimit(cfg.Leaderboard.DefaultLimit),
		app.WithContentLister(b.catalog),
	)
	if err := provisionUsers(ctx, service, cfg.Users, log); err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": finalPort, "backend": b.name}).Info("starting gamification service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// provisionUsers creates aggregates for configured users; existing ones are left untouched.
func provisionUsers(ctx context.Context, service *app.GamificationService, users []string, log *logrus.Entry) error {
	for _, userID := range users {
		_, err := service.ProvisionUser(ctx, userID)
		switch {
		case errors.Is(err, domain.ErrAggregateExists):
			continue
		case err != nil:
			return fmt.Errorf("provision %s: %w", userID, err)
		}
		log.WithField("user_id", userID).Info("provisioned user")
	}
	return nil
}
