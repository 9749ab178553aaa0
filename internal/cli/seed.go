package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gamification-service/internal/app"
	"gamification-service/internal/config"
	"gamification-service/internal/domain"
	"gamification-service/internal/infra/memory"
	"gamification-service/internal/infra/postgres"
	redisstore "gamification-service/internal/infra/redis"
)

type seedFile struct {
	Contents []domain.Content `yaml:"contents"`
	Users    []string         `yaml:"users"`
}

// NewSeedCmd upserts content and provisions users in postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load contents and users into postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			seed := seedFile{Contents: cfg.Contents, Users: cfg.Users}
			if file != "" {
				if seed, err = readSeedFile(file); err != nil {
					return err
				}
			}

			log := newLogger(cfg)
			db, err := openBunDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			if err := runMigrations(ctx, db, log); err != nil {
				return err
			}
			store := postgres.NewStore(db, log)
			if err := store.UpsertContents(ctx, seed.Contents); err != nil {
				return err
			}
			log.WithField("count", len(seed.Contents)).Info("contents upserted")

			if cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer client.Close()
				cache := redisstore.NewContentRepository(client, nil, cfg.RedisTTL())
				if err := invalidateContents(ctx, cache, seed.Contents); err != nil {
					return err
				}
				log.WithField("count", len(seed.Contents)).Info("content cache invalidated")
			}

			contents := memory.NewContentRepository(memory.NewStaticContentLoader(seed.Contents), time.Minute)
			service := app.NewGamificationService(store, contents)
			return provisionUsers(ctx, service, seed.Users, log)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML file with contents and users (defaults to the config's lists)")
	return cmd
}

type contentInvalidator interface {
	Invalidate(ctx context.Context, contentID string) error
}

// invalidateContents drops cached copies so the next lookup reads the seeded rows.
func invalidateContents(ctx context.Context, cache contentInvalidator, contents []domain.Content) error {
	for _, c := range contents {
		if err := cache.Invalidate(ctx, c.ID); err != nil {
			return fmt.Errorf("invalidate %s: %w", c.ID, err)
		}
	}
	return nil
}

func readSeedFile(path string) (seedFile, error) {
	var seed seedFile
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, c := range seed.Contents {
		if c.ID == "" {
			return seed, fmt.Errorf("contents[%d]: id is required", i)
		}
		t, err := domain.ParseContentType(string(c.Type))
		if err != nil {
			return seed, fmt.Errorf("contents[%d] %s: %w", i, c.ID, err)
		}
		seed.Contents[i].Type = t
	}
	return seed, nil
}
