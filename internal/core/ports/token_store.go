package ports

import (
	"context"

	"github.com/schoolms/portal-client/internal/core/domain"
)

// TokenStore persists the session across process restarts.
type TokenStore interface {
	Save(ctx context.Context, s domain.Session) error
	// Load never fails: absent or corrupt state yields an empty session.
	Load(ctx context.Context) domain.Session
	Clear(ctx context.Context) error
}
