package main

import (
	"context"
	"errors"
	"log"

	"github.com/fitstack/fitstack-enrollments/config"
	"github.com/fitstack/fitstack-enrollments/internal/adapters/postgres"
)

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.Database.URL, MaxConns: 2, MinConns: 1})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}
	log.Println("Migrations applied")
	return nil
}
