package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/schoolms/portal-client/internal/api"
	"github.com/schoolms/portal-client/internal/api/handler"
	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
	"github.com/schoolms/portal-client/internal/core/service"
	"github.com/schoolms/portal-client/internal/infrastructure/config"
	mongodb "github.com/schoolms/portal-client/internal/infrastructure/db/mongo"
	"github.com/schoolms/portal-client/internal/infrastructure/directory"
	"github.com/schoolms/portal-client/internal/infrastructure/kv"
)

const (
	shutdownTimeout = 10 * time.Second
	// apiPrefix matches the path of the default API_URL.
	apiPrefix = "/api"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference API",
	Long: `Run a local implementation of the school API for development.

Users come from the seeded demo accounts (USER_SOURCE=memory) or from
MongoDB (USER_SOURCE=mongo, seeded on first start). Revoked refresh tokens
are kept in the REVOCATION_BACKEND store.

Examples:
  schoolctl serve --port 8000
  DEMO_LOGIN=false schoolctl login --email admin@school.com`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}
	log = log.With().Str("component", "server").Logger()

	checks := make(map[string]handler.HealthCheck)
	var closers []func(context.Context) error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("shutdown: close failed")
			}
		}
	}()

	users, closeUsers, err := openDirectory(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	closers = append(closers, closeUsers)

	storeCfg := cfg.Store
	storeCfg.Backend = cfg.Server.RevocationBackend
	revoked, closeRevoked, err := kv.Open(ctx, storeCfg, log)
	if err != nil {
		return fmt.Errorf("open revocation store: %w", err)
	}
	closers = append(closers, closeRevoked)
	checks["revocation_store"] = func(ctx context.Context) error {
		_, _, err := revoked.Get(ctx, "healthcheck")
		return err
	}

	auth := service.NewAuthService(users, revoked, cfg.Server.JWTSecret, cfg.Server.AccessTTL, cfg.Server.RefreshTTL)
	e := api.NewRouter(api.Deps{
		Auth:      auth,
		JWTSecret: cfg.Server.JWTSecret,
		Log:       log,
		Registry:  prometheus.NewRegistry(),
		Checks:    checks,
		Prefix:    apiPrefix,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Server.Port),
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("user_source", cfg.Server.UserSource).Msg("reference API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	stop()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// openDirectory selects the user source and registers its health check.
func openDirectory(ctx context.Context, cfg *config.Config, log zerolog.Logger, checks map[string]handler.HealthCheck) (ports.UserDirectory, func(context.Context) error, error) {
	switch cfg.Server.UserSource {
	case "", "memory":
		users, err := directory.NewSeeded(time.Now(), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, err
		}
		return users, func(context.Context) error { return nil }, nil

	case "mongo":
		client, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Store.Mongo.URI, Database: cfg.Store.Mongo.Database})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func(ctx context.Context) error { return client.Disconnect(ctx) }

		users := mongodb.NewUserDirectory(db)
		if err := users.EnsureIndexes(ctx); err != nil {
			_ = closeFn(ctx)
			return nil, nil, err
		}
		if err := seedMongo(ctx, users, log); err != nil {
			_ = closeFn(ctx)
			return nil, nil, err
		}
		checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		return users, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown USER_SOURCE %q (want memory or mongo)", cfg.Server.UserSource)
	}
}

// seedMongo inserts the demo accounts that are not present yet.
func seedMongo(ctx context.Context, users *mongodb.UserDirectory, log zerolog.Logger) error {
	seed, err := directory.SeedUsers(time.Now(), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	for _, u := range seed {
		_, err := users.FindByEmail(ctx, u.User.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		if err := users.Upsert(ctx, u); err != nil {
			return fmt.Errorf("seed %s: %w", u.User.Email, err)
		}
		log.Info().Str("email", u.User.Email).Msg("seeded user")
	}
	return nil
}
