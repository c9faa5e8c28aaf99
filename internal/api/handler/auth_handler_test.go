package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/schoolms/portal-client/internal/api/middleware"
	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

type stubAuthService struct {
	loginFn   func(ctx context.Context, email, password string) (ports.TokenPair, *domain.User, error)
	refreshFn func(ctx context.Context, refreshToken string) (ports.TokenPair, error)
	logoutFn  func(ctx context.Context, refreshToken string) error
	meFn      func(ctx context.Context, userID string) (*domain.User, error)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (ports.TokenPair, *domain.User, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubAuthService) Refresh(ctx context.Context, refreshToken string) (ports.TokenPair, error) {
	return s.refreshFn(ctx, refreshToken)
}

func (s *stubAuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.logoutFn(ctx, refreshToken)
}

func (s *stubAuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.meFn(ctx, userID)
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func postJSON(e *echo.Echo, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAuthHandler_Login_Success(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, email, password string) (ports.TokenPair, *domain.User, error) {
			if email != "admin@school.com" || password != "admin123" {
				t.Fatalf("unexpected args: %s %s", email, password)
			}
			return ports.TokenPair{Access: "a1", Refresh: "r1"}, &domain.User{ID: "1", Email: email}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := postJSON(e, "/auth/login/", `{"email":"admin@school.com","password":"admin123"}`)
	if err := h.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["access"] != "a1" || resp["refresh"] != "r1" {
		t.Fatalf("unexpected tokens: %+v", resp)
	}
	user, ok := resp["user"].(map[string]any)
	if !ok || user["email"] != "admin@school.com" {
		t.Fatalf("unexpected user payload: %+v", resp["user"])
	}
}

func TestAuthHandler_Login_ValidationFails(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(&stubAuthService{
		loginFn: func(ctx context.Context, email, password string) (ports.TokenPair, *domain.User, error) {
			t.Fatalf("service must not be called")
			return ports.TokenPair{}, nil, nil
		},
	})

	c, _ := postJSON(e, "/auth/login/", `{"email":"not-an-email"}`)
	err := h.Login(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestAuthHandler_Login_ServiceErrorPropagates(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(&stubAuthService{
		loginFn: func(ctx context.Context, email, password string) (ports.TokenPair, *domain.User, error) {
			return ports.TokenPair{}, nil, domain.ErrInvalidCredentials
		},
	})

	c, _ := postJSON(e, "/auth/login/", `{"email":"a@school.com","password":"x"}`)
	if err := h.Login(c); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(&stubAuthService{
		refreshFn: func(ctx context.Context, refreshToken string) (ports.TokenPair, error) {
			if refreshToken != "r1" {
				t.Fatalf("unexpected refresh token %q", refreshToken)
			}
			return ports.TokenPair{Access: "a2", Refresh: "r2"}, nil
		},
	})

	c, rec := postJSON(e, "/auth/refresh/", `{"refresh":"r1"}`)
	if err := h.Refresh(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["access"] != "a2" || resp["refresh"] != "r2" {
		t.Fatalf("unexpected tokens: %+v", resp)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	e := newTestEcho()
	var revoked []string
	h := NewAuthHandler(&stubAuthService{
		logoutFn: func(ctx context.Context, refreshToken string) error {
			revoked = append(revoked, refreshToken)
			return nil
		},
	})

	c, rec := postJSON(e, "/auth/logout/", `{"refresh":"r1"}`)
	if err := h.Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	c, rec = postJSON(e, "/auth/logout/", `{}`)
	if err := h.Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for empty body, got %d", rec.Code)
	}
	if len(revoked) != 1 || revoked[0] != "r1" {
		t.Fatalf("expected exactly one revocation, got %v", revoked)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(&stubAuthService{
		meFn: func(ctx context.Context, userID string) (*domain.User, error) {
			return &domain.User{ID: userID, Email: "teacher@school.com"}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/me/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.CtxUserID, "2")

	if err := h.Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var u domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if u.ID != "2" {
		t.Fatalf("expected user 2, got %+v", u)
	}
}

func TestAuthHandler_Me_MissingClaims(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(&stubAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	var he *echo.HTTPError
	if err := h.Me(c); !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
