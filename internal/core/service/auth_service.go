package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

const revokedPrefix = "revoked:"

// AuthService is the reference API's credential issuer. Refresh tokens are
// single use: every refresh revokes the presented token and issues a new pair.
type AuthService struct {
	users      ports.UserDirectory
	revoked    ports.KVStore
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(users ports.UserDirectory, revoked ports.KVStore, jwtSecret string, accessTTL, refreshTTL time.Duration) *AuthService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &AuthService{
		users:      users,
		revoked:    revoked,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

func (s *AuthService) Login(ctx context.Context, email, password string) (ports.TokenPair, *domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return ports.TokenPair{}, nil, domain.ErrInvalidCredentials
	}

	du, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return ports.TokenPair{}, nil, domain.ErrInvalidCredentials
		}
		return ports.TokenPair{}, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(du.PasswordHash), []byte(password)) != nil {
		return ports.TokenPair{}, nil, domain.ErrInvalidCredentials
	}
	if !du.User.IsActive {
		return ports.TokenPair{}, nil, domain.ErrForbidden
	}

	pair, err := s.issue(&du.User)
	if err != nil {
		return ports.TokenPair{}, nil, err
	}
	user := du.User.Clone()
	now := s.now().UTC()
	user.LastLogin = &now
	return pair, user, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (ports.TokenPair, error) {
	claims, err := s.parse(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return ports.TokenPair{}, err
	}
	if s.isRevoked(ctx, claims.ID) {
		return ports.TokenPair{}, fmt.Errorf("%w: token already used", domain.ErrInvalidRefresh)
	}

	du, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return ports.TokenPair{}, fmt.Errorf("%w: %v", domain.ErrInvalidRefresh, err)
	}
	if err := s.revoke(ctx, claims); err != nil {
		return ports.TokenPair{}, err
	}
	return s.issue(&du.User)
}

// Logout revokes refreshToken. Unknown or already revoked tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.parse(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return nil
	}
	return s.revoke(ctx, claims)
}

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	du, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return du.User.Clone(), nil
}

func (s *AuthService) issue(u *domain.User) (ports.TokenPair, error) {
	access, err := s.sign(u, domain.TokenTypeAccess, s.accessTTL)
	if err != nil {
		return ports.TokenPair{}, err
	}
	refresh, err := s.sign(u, domain.TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return ports.TokenPair{}, err
	}
	return ports.TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *AuthService) sign(u *domain.User, typ string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := domain.TokenClaims{
		Type:  typ,
		Email: u.Email,
		Roles: u.RoleNames(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (s *AuthService) parse(token, typ string) (*domain.TokenClaims, error) {
	claims := &domain.TokenClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !tkn.Valid {
		return nil, domain.ErrInvalidRefresh
	}
	if claims.Type != typ || claims.ID == "" {
		return nil, domain.ErrInvalidRefresh
	}
	return claims, nil
}

func (s *AuthService) isRevoked(ctx context.Context, jti string) bool {
	_, found, err := s.revoked.Get(ctx, revokedPrefix+jti)
	// Fail closed when the revocation list is unreadable.
	return err != nil || found
}

func (s *AuthService) revoke(ctx context.Context, claims *domain.TokenClaims) error {
	exp := ""
	if claims.ExpiresAt != nil {
		exp = strconv.FormatInt(claims.ExpiresAt.Unix(), 10)
	}
	if err := s.revoked.Set(ctx, revokedPrefix+claims.ID, exp); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}
