// Package persistence is the key-value surface the Record Store saves its
// session state through.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cv-screening/internal/common/config"
	"cv-screening/internal/common/database"
	"cv-screening/internal/common/logger"
)

// ErrNotFound is returned by Get when the key holds nothing.
var ErrNotFound = errors.New("persistence: key not found")

// KV stores opaque values under string keys.
type KV interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New opens the backend selected by cfg.Persistence.Driver. The returned
// closer releases any connection the backend holds.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (KV, io.Closer, error) {
	switch cfg.Persistence.Driver {
	case config.DriverRedis:
		client := database.NewRedis(cfg.Database.Redis)
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		ttl := time.Duration(cfg.Persistence.TTL) * time.Second
		log.Info("using redis persistence", map[string]interface{}{
			"address": cfg.Database.Redis.Address,
			"ttl":     ttl.String(),
		})
		return NewRedisKV(client.Client, cfg.Persistence.KeyPrefix, ttl), client, nil

	case config.DriverPostgres:
		client, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		kv, err := NewPostgresKV(client.DB, cfg.Persistence.Table)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if err := kv.EnsureSchema(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		log.Info("using postgres persistence", map[string]interface{}{
			"host":  cfg.Database.Postgres.Host,
			"table": cfg.Persistence.Table,
		})
		return kv, client, nil

	case config.DriverMemory, "":
		log.Info("using in-memory persistence", nil)
		return NewMemoryKV(), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported persistence driver %q", cfg.Persistence.Driver)
	}
}
