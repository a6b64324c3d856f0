// Package storage opens the durable key-value store selected by configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/tjfontaine/sidebar-gate/internal/config"
	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
	"github.com/tjfontaine/sidebar-gate/internal/storage/memory"
	"github.com/tjfontaine/sidebar-gate/internal/storage/redis"
	"github.com/tjfontaine/sidebar-gate/internal/storage/sqlite"
)

// Open returns the store for cfg.Type: sqlite, redis or memory.
func Open(ctx context.Context, cfg config.StorageConfig) (ports.KVStore, error) {
	switch cfg.Type {
	case "", "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = "sidebar-gate.db"
		}
		store, err := sqlite.New(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case "redis":
		store, err := redis.New(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return store, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
