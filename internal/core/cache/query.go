package cache

import (
	"net/url"
	"time"

	"github.com/schoolms/portal-client/internal/core/domain"
)

// Query identifies one cacheable read.
type Query struct {
	Endpoint string
	Params   url.Values
	// Tags are the entity categories the response belongs to.
	Tags []domain.Tag
	// TTL bounds freshness; zero means the entry never expires on its own.
	TTL time.Duration
	// KeepUnusedFor overrides the cache-wide GC window for this entry.
	KeepUnusedFor time.Duration
}

// Key derives the cache key from the endpoint and the canonical form of the
// parameters. Parameter names are sorted; the order of repeated values is
// kept because the API treats it as significant.
func (q Query) Key() string {
	if len(q.Params) == 0 {
		return q.Endpoint
	}
	enc := q.Params.Encode()
	if enc == "" {
		return q.Endpoint
	}
	return q.Endpoint + "?" + enc
}
