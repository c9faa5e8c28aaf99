package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env       string `env:"ENV,       default=development"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	API    APIConfig
	Store  StoreConfig
	Cache  CacheConfig
	Server ServerConfig
}

// APIConfig points the client at the school API.
type APIConfig struct {
	URL     string        `env:"API_URL,     default=http://localhost:8000/api"`
	Timeout time.Duration `env:"API_TIMEOUT, default=30s"`
	// DemoLogin lets the built-in demo accounts log in without a backend.
	DemoLogin bool `env:"DEMO_LOGIN, default=true"`
}

// StoreConfig selects the durable backend for the token store.
type StoreConfig struct {
	Backend string `env:"STORE_BACKEND, default=file"`
	Path    string `env:"STORE_PATH"`

	Redis  RedisConfig
	Mongo  MongoConfig
	SQLite SQLiteConfig
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,   default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,     default=0"`
	Prefix   string `env:"REDIS_PREFIX, default=schoolms:session:"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=school_portal"`
}

type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH"`
}

type CacheConfig struct {
	MaxEntries    int           `env:"CACHE_MAX_ENTRIES, default=512"`
	GCWindow      time.Duration `env:"CACHE_GC_WINDOW,   default=60s"`
	NotifyWorkers int           `env:"NOTIFY_WORKERS,    default=4"`
}

// ServerConfig configures the reference API started by `schoolctl serve`.
type ServerConfig struct {
	Port       string        `env:"PORT,        default=8000"`
	JWTSecret  string        `env:"JWT_SECRET,  default=dev-secret-change-me"`
	AccessTTL  time.Duration `env:"ACCESS_TTL,  default=15m"`
	RefreshTTL time.Duration `env:"REFRESH_TTL, default=168h"`
	// UserSource is "memory" (seeded demo users) or "mongo".
	UserSource string `env:"USER_SOURCE, default=memory"`
	// RevocationBackend names the KV backend holding revoked refresh tokens.
	RevocationBackend string `env:"REVOCATION_BACKEND, default=memory"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadFrom(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadFrom resolves configuration through an arbitrary lookuper and fills
// derived defaults.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(stateDir(), "session.json")
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = filepath.Join(stateDir(), "session.db")
	}
	return &cfg, nil
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".schoolctl"
	}
	return filepath.Join(home, ".schoolctl")
}
