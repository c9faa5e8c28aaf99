package ports

import "context"

// KVStore is durable string-keyed storage for client-side state.
// Removing an absent key is not an error.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
