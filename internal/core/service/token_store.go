package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUser         = "user"
)

// TokenStore persists the session as three independent string entries.
type TokenStore struct {
	kv  ports.KVStore
	log zerolog.Logger
}

func NewTokenStore(kv ports.KVStore, log zerolog.Logger) *TokenStore {
	return &TokenStore{kv: kv, log: log.With().Str("component", "token_store").Logger()}
}

// Save writes every field of s. The user entry is removed when s has no user.
// Write errors are logged and joined; the caller's in-memory session stays
// authoritative.
func (t *TokenStore) Save(ctx context.Context, s domain.Session) error {
	s = s.Normalize()

	var errs []error
	errs = append(errs, t.put(ctx, keyAccessToken, s.AccessToken))
	errs = append(errs, t.put(ctx, keyRefreshToken, s.RefreshToken))

	if s.User == nil {
		errs = append(errs, t.remove(ctx, keyUser))
	} else {
		raw, err := json.Marshal(s.User)
		if err != nil {
			t.log.Error().Err(err).Msg("encode user snapshot")
			errs = append(errs, fmt.Errorf("encode user: %w", err))
		} else {
			errs = append(errs, t.put(ctx, keyUser, string(raw)))
		}
	}
	return errors.Join(errs...)
}

// Load never fails. Missing, unreadable, or corrupt entries are treated as absent.
func (t *TokenStore) Load(ctx context.Context) domain.Session {
	var s domain.Session

	s.AccessToken = t.get(ctx, keyAccessToken)
	s.RefreshToken = t.get(ctx, keyRefreshToken)

	if raw := t.get(ctx, keyUser); raw != "" {
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			t.log.Warn().Err(err).Msg("discarding corrupt user snapshot")
		} else {
			s.User = &u
		}
	}
	return s.Normalize()
}

// Clear removes all persisted fields, attempting every key.
func (t *TokenStore) Clear(ctx context.Context) error {
	return errors.Join(
		t.remove(ctx, keyAccessToken),
		t.remove(ctx, keyRefreshToken),
		t.remove(ctx, keyUser),
	)
}

// put stores value, or removes the key when value is empty.
func (t *TokenStore) put(ctx context.Context, key, value string) error {
	if value == "" {
		return t.remove(ctx, key)
	}
	if err := t.kv.Set(ctx, key, value); err != nil {
		t.log.Error().Err(err).Str("key", key).Msg("persist session field")
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (t *TokenStore) remove(ctx context.Context, key string) error {
	if err := t.kv.Remove(ctx, key); err != nil {
		t.log.Error().Err(err).Str("key", key).Msg("remove session field")
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (t *TokenStore) get(ctx context.Context, key string) string {
	v, found, err := t.kv.Get(ctx, key)
	if err != nil {
		t.log.Warn().Err(err).Str("key", key).Msg("read session field")
		return ""
	}
	if !found {
		return ""
	}
	return v
}
