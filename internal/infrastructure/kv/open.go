package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
	"github.com/schoolms/portal-client/internal/infrastructure/config"
	mongodb "github.com/schoolms/portal-client/internal/infrastructure/db/mongo"
	redisdb "github.com/schoolms/portal-client/internal/infrastructure/db/redis"
	"github.com/schoolms/portal-client/internal/infrastructure/db/sqlite"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
)

// Closer releases the resources held by an opened store.
type Closer func(ctx context.Context) error

func noopCloser(context.Context) error { return nil }

// Open connects the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (ports.KVStore, Closer, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	log = log.With().Str("store_backend", backend).Logger()

	switch backend {
	case BackendMemory:
		return NewMemoryStore(), noopCloser, nil

	case "", BackendFile:
		return NewFileStore(cfg.Path, log), noopCloser, nil

	case BackendRedis:
		client, err := redisdb.Connect(ctx, redisdb.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Debug().Str("addr", cfg.Redis.Addr).Msg("redis store connected")
		return redisdb.NewKVStore(client, cfg.Redis.Prefix), func(context.Context) error {
			return client.Close()
		}, nil

	case BackendMongo:
		client, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, nil, err
		}
		log.Debug().Str("database", cfg.Mongo.Database).Msg("mongo store connected")
		return mongodb.NewKVStore(db), func(ctx context.Context) error {
			return client.Disconnect(ctx)
		}, nil

	case BackendSQLite:
		db, err := sqlite.Connect(ctx, sqlite.Config{Path: cfg.SQLite.Path})
		if err != nil {
			return nil, nil, err
		}
		store, err := sqlite.NewKVStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Debug().Str("path", cfg.SQLite.Path).Msg("sqlite store opened")
		return store, func(context.Context) error { return db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedBackend, cfg.Backend)
	}
}
