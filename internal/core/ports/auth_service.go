package ports

import (
	"context"

	"github.com/schoolms/portal-client/internal/core/domain"
)

// Credentials is the login payload.
type Credentials struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

// SessionService is the only writer of session state.
type SessionService interface {
	Login(ctx context.Context, creds Credentials) (domain.Session, error)
	Logout(ctx context.Context)
	Session() domain.Session
	CurrentUser() *domain.User
	HasRole(name string) bool
	HasPermission(code string) bool
}
