// Package client assembles the portal client: token store, request
// executor, refresh coordinator, query cache and the typed services.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/schoolms/portal-client/internal/core/cache"
	"github.com/schoolms/portal-client/internal/core/service"
	"github.com/schoolms/portal-client/internal/infrastructure/config"
	"github.com/schoolms/portal-client/internal/infrastructure/httpclient"
	"github.com/schoolms/portal-client/internal/infrastructure/kv"
	"github.com/schoolms/portal-client/internal/infrastructure/queue"
)

// Options overrides wiring details that are not part of the configuration.
type Options struct {
	// Transport replaces the HTTP transport of the executor.
	Transport http.RoundTripper
	// Now replaces the clock used by the cache and the session.
	Now func() time.Time
}

// Client owns every component of one signed-in (or signed-out) portal user.
type Client struct {
	Session   *service.SessionService
	Dashboard *service.DashboardService
	Resources *service.Resources
	Cache     *cache.Cache
	Refresh   *service.RefreshState

	dispatcher *queue.Dispatcher
	closeStore kv.Closer
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
	log        zerolog.Logger
}

// New wires the client and restores any persisted session. Background work
// (cache collection, subscriber notification) runs until Close.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*Client, error) {
	store, closeStore, err := kv.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}

	dispatcher := queue.NewDispatcher(cfg.Cache.NotifyWorkers, log)
	qc, err := cache.New(cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		GCWindow:   cfg.Cache.GCWindow,
		Notifier:   dispatcher,
		Now:        opts.Now,
		Log:        log,
	})
	if err != nil {
		_ = closeStore(ctx)
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	executor := httpclient.NewExecutor(httpclient.Config{
		BaseURL:   cfg.API.URL,
		Timeout:   cfg.API.Timeout,
		Transport: opts.Transport,
	}, log)

	session := service.NewSessionService(executor, service.NewTokenStore(store, log), qc, service.SessionOptions{
		DemoLogin: cfg.API.DemoLogin,
		Now:       opts.Now,
	}, log)
	session.Restore(ctx)

	state := &service.RefreshState{}
	authed := service.NewRefreshCoordinator(executor, session, state, log)
	resources := service.NewResources(qc, authed, log)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Client{
		Session:    session,
		Dashboard:  service.NewDashboardService(resources, session),
		Resources:  resources,
		Cache:      qc,
		Refresh:    state,
		dispatcher: dispatcher,
		closeStore: closeStore,
		cancel:     cancel,
		log:        log.With().Str("component", "client").Logger(),
	}

	dispatcher.Start(runCtx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		qc.Run(runCtx)
	}()

	c.log.Debug().
		Str("api_url", cfg.API.URL).
		Str("store_backend", cfg.Store.Backend).
		Bool("authenticated", session.IsAuthenticated()).
		Msg("client ready")
	return c, nil
}

// Close stops background work and releases the token store. Safe to call
// more than once.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.Cache.Wait()
		c.dispatcher.Stop()
		if cerr := c.closeStore(ctx); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close token store: %w", cerr))
		}
	})
	return err
}
