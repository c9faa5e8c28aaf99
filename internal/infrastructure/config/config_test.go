package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}
	if cfg.API.URL != "http://localhost:8000/api" {
		t.Fatalf("unexpected API url: %s", cfg.API.URL)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.API.Timeout)
	}
	if !cfg.API.DemoLogin {
		t.Fatalf("expected demo login enabled by default")
	}
	if cfg.Store.Backend != "file" {
		t.Fatalf("expected file backend, got %s", cfg.Store.Backend)
	}
	if !strings.HasSuffix(cfg.Store.Path, "session.json") {
		t.Fatalf("expected derived store path, got %s", cfg.Store.Path)
	}
	if cfg.Cache.GCWindow != time.Minute || cfg.Cache.MaxEntries != 512 {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"API_URL":       "https://school.example/api",
		"API_TIMEOUT":   "5s",
		"DEMO_LOGIN":    "false",
		"STORE_BACKEND": "redis",
		"REDIS_ADDR":    "redis:6379",
		"STORE_PATH":    "/tmp/state.json",
	}))
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}
	if cfg.API.URL != "https://school.example/api" || cfg.API.Timeout != 5*time.Second {
		t.Fatalf("unexpected api config: %+v", cfg.API)
	}
	if cfg.API.DemoLogin {
		t.Fatalf("expected demo login disabled")
	}
	if cfg.Store.Backend != "redis" || cfg.Store.Redis.Addr != "redis:6379" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Store.Path != "/tmp/state.json" {
		t.Fatalf("explicit store path overwritten: %s", cfg.Store.Path)
	}
}

func TestLoadFrom_InvalidDuration(t *testing.T) {
	_, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"API_TIMEOUT": "soon",
	}))
	if err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}
