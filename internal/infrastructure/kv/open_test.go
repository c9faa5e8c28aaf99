package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/infrastructure/config"
)

func TestOpen_Backends(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	cases := []config.StoreConfig{
		{Backend: BackendMemory},
		{Backend: BackendFile, Path: filepath.Join(dir, "session.json")},
		{Backend: BackendSQLite, SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "session.db")}},
		{Backend: BackendRedis, Redis: config.RedisConfig{Addr: mr.Addr(), Prefix: "t:"}},
	}
	for _, cfg := range cases {
		cfg := cfg
		t.Run(cfg.Backend, func(t *testing.T) {
			ctx := context.Background()
			store, closeFn, err := Open(ctx, cfg, zerolog.Nop())
			if err != nil {
				t.Fatalf("Open returned error: %v", err)
			}
			defer func() {
				if err := closeFn(ctx); err != nil {
					t.Errorf("close: %v", err)
				}
			}()

			if err := store.Set(ctx, "user", `{"id":"1"}`); err != nil {
				t.Fatalf("Set returned error: %v", err)
			}
			v, found, err := store.Get(ctx, "user")
			if err != nil || !found || v != `{"id":"1"}` {
				t.Fatalf("Get = %q, %v, %v", v, found, err)
			}
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, _, err := Open(context.Background(), config.StoreConfig{Backend: "etcd"}, zerolog.Nop())
	if !errors.Is(err, domain.ErrUnsupportedBackend) {
		t.Fatalf("expected ErrUnsupportedBackend, got %v", err)
	}
}
