package ports

import (
	"context"

	"github.com/schoolms/portal-client/internal/core/domain"
)

// DirectoryUser is a user record as held by the reference API.
type DirectoryUser struct {
	User         domain.User
	PasswordHash string
}

// UserDirectory looks up API users for the reference server.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*DirectoryUser, error)
	FindByID(ctx context.Context, id string) (*DirectoryUser, error)
}

// TokenPair is what the reference API hands out on login and refresh.
type TokenPair struct {
	Access  string
	Refresh string
}

// AuthService issues and rotates API credentials on the server side.
type AuthService interface {
	Login(ctx context.Context, email, password string) (TokenPair, *domain.User, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID string) (*domain.User, error)
}
