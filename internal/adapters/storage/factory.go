package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/VoiceHub/internal/config"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Backend is an opened store plus whatever must be released on shutdown.
type Backend struct {
	core.Store
	closers []func() error
}

func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// Ping reports whether the backing services answer.
func (b *Backend) Ping(ctx context.Context) error {
	var errs []error
	if s, ok := b.Store.(*RedisPresenceStore); ok {
		errs = append(errs, s.Ping(ctx))
		if inner, ok := s.Store.(*SQLStore); ok {
			errs = append(errs, inner.DB().PingContext(ctx))
		}
	}
	if s, ok := b.Store.(*SQLStore); ok {
		errs = append(errs, s.DB().PingContext(ctx))
	}
	return errors.Join(errs...)
}

// NewFromConfig opens the configured store and, when redis.addr is set,
// moves presence onto Redis.
func NewFromConfig(ctx context.Context, db config.DatabaseConfig, rc config.RedisConfig) (*Backend, error) {
	b := &Backend{}
	switch db.Type {
	case "memory":
		b.Store = NewMemoryStore()
	case "sqlite":
		if db.Path == "" {
			return nil, fmt.Errorf("database.path required for sqlite database")
		}
		s, err := OpenSQLite(db.Path)
		if err != nil {
			return nil, err
		}
		b.Store = s
		b.closers = append(b.closers, s.Close)
	case "postgres":
		s, err := OpenPostgres(ctx, db.DSN)
		if err != nil {
			return nil, err
		}
		b.Store = s
		b.closers = append(b.closers, s.Close)
	default:
		return nil, fmt.Errorf("unknown database type: %s", db.Type)
	}

	if rc.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			b.Close()
			return nil, fmt.Errorf("unable to reach redis at %s: %w", rc.Addr, err)
		}
		b.Store = NewRedisPresenceStore(b.Store, rdb, rc.Prefix)
		b.closers = append(b.closers, rdb.Close)
	}
	log.Info().Str("module", "adapters.storage").Str("type", db.Type).Bool("redis_presence", rc.Addr != "").Msg("store opened")
	return b, nil
}
