package service

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/schoolms/portal-client/internal/core/cache"
	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

// QueryCache is the cache surface resource reads go through.
type QueryCache interface {
	Read(ctx context.Context, q cache.Query, fetch cache.FetchFunc) ([]byte, error)
	Subscribe(q cache.Query, fetch cache.FetchFunc, listener cache.Listener) func()
	Mutate(ctx context.Context, fetch cache.FetchFunc, tags ...domain.Tag) ([]byte, error)
	Invalidate(tags ...domain.Tag) int
}

// Resources binds the query cache to the authenticated request pipeline.
type Resources struct {
	cache QueryCache
	api   ports.Requester
	log   zerolog.Logger
}

func NewResources(c QueryCache, api ports.Requester, log zerolog.Logger) *Resources {
	return &Resources{cache: c, api: api, log: log.With().Str("component", "resources").Logger()}
}

// Get reads q through the cache, fetching with GET on a miss.
func (r *Resources) Get(ctx context.Context, q cache.Query) ([]byte, error) {
	return r.cache.Read(ctx, q, r.fetcher(q))
}

// Watch subscribes fn to q and returns the unsubscribe function.
func (r *Resources) Watch(q cache.Query, fn cache.Listener) func() {
	return r.cache.Subscribe(q, r.fetcher(q), fn)
}

// Mutate performs a write and invalidates tags when it succeeds.
func (r *Resources) Mutate(ctx context.Context, req ports.Request, tags ...domain.Tag) (*ports.Response, error) {
	if req.Method == "" {
		req.Method = http.MethodPost
	}
	var resp *ports.Response
	_, err := r.cache.Mutate(ctx, func(ctx context.Context) ([]byte, error) {
		var err error
		resp, err = r.api.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}, tags...)
	if err != nil {
		r.log.Debug().Err(err).Str("path", req.Path).Msg("mutation failed")
		return nil, err
	}
	return resp, nil
}

func (r *Resources) Invalidate(tags ...domain.Tag) int {
	return r.cache.Invalidate(tags...)
}

func (r *Resources) fetcher(q cache.Query) cache.FetchFunc {
	return func(ctx context.Context) ([]byte, error) {
		resp, err := r.api.Do(ctx, ports.Request{
			Method: http.MethodGet,
			Path:   q.Endpoint,
			Query:  q.Params,
		})
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}
}
