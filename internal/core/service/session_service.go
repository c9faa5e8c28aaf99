package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/schoolms/portal-client/internal/api/metrics"
	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

const (
	pathLogin   = "/auth/login/"
	pathLogout  = "/auth/logout/"
	pathRefresh = "/auth/refresh/"
	pathMe      = "/auth/me/"
)

// CacheControl is the part of the query cache the session needs.
type CacheControl interface {
	Reset()
	Invalidate(tags ...domain.Tag) int
}

type loginResponse struct {
	Access      string       `json:"access"`
	Refresh     string       `json:"refresh"`
	User        *domain.User `json:"user"`
	Requires2FA bool         `json:"requires_2fa,omitempty"`
}

var _ ports.SessionService = (*SessionService)(nil)

type SessionOptions struct {
	// DemoLogin enables the built-in demo accounts.
	DemoLogin bool
	Now       func() time.Time
}

// SessionService is the only writer of session state. It talks to the API
// through the raw executor so login and logout never trigger a refresh.
type SessionService struct {
	mu      sync.RWMutex
	session domain.Session
	// pendingUserID is set while a login waits for a second factor.
	pendingUserID string

	api      ports.Requester
	store    ports.TokenStore
	cache    CacheControl
	validate *validator.Validate
	demo     bool
	now      func() time.Time
	log      zerolog.Logger
}

func NewSessionService(api ports.Requester, store ports.TokenStore, cache CacheControl, opts SessionOptions, log zerolog.Logger) *SessionService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		api:      api,
		store:    store,
		cache:    cache,
		validate: validator.New(),
		demo:     opts.DemoLogin,
		now:      now,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// Restore rehydrates the session from the token store.
func (s *SessionService) Restore(ctx context.Context) domain.Session {
	loaded := s.store.Load(ctx)

	s.mu.Lock()
	s.session = loaded
	s.mu.Unlock()

	if loaded.IsAuthenticated() {
		s.log.Debug().Str("user", loaded.User.DisplayName()).Msg("session restored")
	}
	return loaded.Clone()
}

func (s *SessionService) Login(ctx context.Context, creds ports.Credentials) (domain.Session, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := s.validate.Struct(creds); err != nil {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrInvalidCredentials, validationMessage(err))
	}

	if s.demo {
		if acct, ok := domain.FindDemoAccount(creds.Email, creds.Password, s.now()); ok {
			user := acct.User
			next := domain.Session{
				AccessToken:  domain.DemoAccessToken,
				RefreshToken: domain.DemoRefreshToken,
				User:         &user,
			}
			s.establish(ctx, next)
			metrics.LoginsTotal.WithLabelValues("demo").Inc()
			s.log.Info().Str("email", creds.Email).Msg("demo login")
			return next.Clone(), nil
		}
	}

	resp, err := s.api.Do(ctx, ports.Request{
		Method: http.MethodPost,
		Path:   pathLogin,
		Body:   creds,
	})
	if err != nil {
		return domain.Session{}, s.classifyLoginError(err)
	}

	var body loginResponse
	if err := resp.DecodeJSON(&body); err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrServerError, err)
	}

	if body.Requires2FA {
		s.mu.Lock()
		if body.User != nil {
			s.pendingUserID = body.User.ID
		}
		s.mu.Unlock()
		metrics.LoginsTotal.WithLabelValues("two_factor").Inc()
		return domain.Session{}, domain.ErrTwoFactorRequired
	}
	if body.Access == "" {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return domain.Session{}, fmt.Errorf("%w: login response carried no access token", domain.ErrServerError)
	}

	next := domain.Session{AccessToken: body.Access, RefreshToken: body.Refresh, User: body.User}
	s.establish(ctx, next)
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.log.Info().Str("email", creds.Email).Msg("login succeeded")
	return next.Clone(), nil
}

// establish installs a new session, persists it, and marks user-scoped data stale.
func (s *SessionService) establish(ctx context.Context, next domain.Session) {
	next = next.Normalize()

	s.mu.Lock()
	s.session = next.Clone()
	s.pendingUserID = ""
	s.mu.Unlock()

	// The in-memory session stays authoritative when persistence fails.
	_ = s.store.Save(ctx, next)
	if s.cache != nil {
		s.cache.Invalidate(domain.TagUser)
	}
}

func (s *SessionService) classifyLoginError(err error) error {
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	if apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		if msg := apiErr.Message(); msg != "" {
			return fmt.Errorf("%w: %s", domain.ErrInvalidCredentials, msg)
		}
		return domain.ErrInvalidCredentials
	}
	// Network failures and 5xx already unwrap to ErrNetwork and ErrServerError.
	metrics.LoginsTotal.WithLabelValues("error").Inc()
	return err
}

// Logout tells the API to revoke the session and then clears local state
// whatever the outcome of that call.
func (s *SessionService) Logout(ctx context.Context) {
	s.mu.RLock()
	current := s.session
	s.mu.RUnlock()

	if current.IsAuthenticated() && current.AccessToken != domain.DemoAccessToken {
		_, err := s.api.Do(ctx, ports.Request{
			Method: http.MethodPost,
			Path:   pathLogout,
			Body:   map[string]string{"refresh": current.RefreshToken},
			Token:  current.AccessToken,
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("logout request failed; clearing local session anyway")
		}
	}

	s.clearLocal(ctx)
	s.log.Info().Msg("logged out")
}

// Expire ends the session locally without contacting the API, but only while
// the session still holds usedRefresh. A session established after the
// failing refresh started is left alone and Expire reports false.
func (s *SessionService) Expire(ctx context.Context, usedRefresh string) bool {
	s.mu.Lock()
	if s.session.RefreshToken != usedRefresh {
		s.mu.Unlock()
		return false
	}
	s.session = domain.Session{}
	s.pendingUserID = ""
	s.mu.Unlock()

	s.wipe(ctx)
	s.log.Warn().Msg("session expired")
	return true
}

func (s *SessionService) clearLocal(ctx context.Context) {
	s.mu.Lock()
	s.session = domain.Session{}
	s.pendingUserID = ""
	s.mu.Unlock()

	s.wipe(ctx)
}

func (s *SessionService) wipe(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		s.log.Error().Err(err).Msg("clear token store")
	}
	if s.cache != nil {
		s.cache.Reset()
	}
}

// UpdateTokens installs a refreshed access token obtained with usedRefresh.
// The refresh token is only rotated when the API returned a new one. It
// reports false when the session that started the refresh is gone, either
// logged out or replaced by another login.
func (s *SessionService) UpdateTokens(ctx context.Context, usedRefresh, access, refresh string) bool {
	s.mu.Lock()
	if usedRefresh == "" || s.session.RefreshToken != usedRefresh {
		s.mu.Unlock()
		return false
	}
	s.session.AccessToken = access
	if refresh != "" {
		s.session.RefreshToken = refresh
	}
	snapshot := s.session.Clone()
	s.mu.Unlock()

	_ = s.store.Save(ctx, snapshot)
	return true
}

// SetUser replaces the user snapshot. Ignored while logged out.
func (s *SessionService) SetUser(ctx context.Context, u *domain.User) {
	if u == nil {
		return
	}
	s.mu.Lock()
	if !s.session.IsAuthenticated() {
		s.mu.Unlock()
		return
	}
	s.session.User = u.Clone()
	snapshot := s.session.Clone()
	s.mu.Unlock()

	_ = s.store.Save(ctx, snapshot)
}

func (s *SessionService) Session() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

func (s *SessionService) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.AccessToken
}

func (s *SessionService) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.RefreshToken
}

func (s *SessionService) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.IsAuthenticated()
}

// PendingTwoFactor returns the user id of a login awaiting its second factor.
func (s *SessionService) PendingTwoFactor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingUserID
}

func (s *SessionService) CurrentUser() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.User.Clone()
}

func (s *SessionService) HasRole(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.User.HasRole(name)
}

func (s *SessionService) HasPermission(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.User.HasPermission(code)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, strings.ToLower(fe.Field())+" is required")
		case "email":
			msgs = append(msgs, "invalid email address")
		default:
			msgs = append(msgs, strings.ToLower(fe.Field())+" is invalid")
		}
	}
	return strings.Join(msgs, ", ")
}
