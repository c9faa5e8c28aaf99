package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/schoolms/portal-client/internal/core/domain"
)

func signToken(t *testing.T, typ string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, domain.TokenClaims{
		Type:  typ,
		Email: "admin@school.com",
		Roles: []string{domain.RoleAdmin},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func runAuth(t *testing.T, header string, opts ...jwt.ParserOption) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := Auth("secret", opts...)(func(c echo.Context) error {
		called = true
		if c.Get(CtxUserID) != "1" {
			t.Fatalf("user id not set")
		}
		if roles, _ := c.Get(CtxRoles).([]string); len(roles) != 1 || roles[0] != domain.RoleAdmin {
			t.Fatalf("roles not set: %v", c.Get(CtxRoles))
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, called
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	rec, called := runAuth(t, "Bearer "+signToken(t, domain.TokenTypeAccess, time.Now().Add(time.Minute)))
	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	rec, called := runAuth(t, "")
	if called || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_InvalidHeaderFormat(t *testing.T) {
	rec, called := runAuth(t, "Token abc")
	if called || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	rec, called := runAuth(t, "Bearer "+signToken(t, domain.TokenTypeAccess, time.Now().Add(-time.Minute)))
	if called || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for an expired token, got %d", rec.Code)
	}
}

func TestAuthMiddleware_ClockOption(t *testing.T) {
	exp := time.Now().Add(time.Minute)
	late := jwt.WithTimeFunc(func() time.Time { return exp.Add(time.Second) })

	rec, called := runAuth(t, "Bearer "+signToken(t, domain.TokenTypeAccess, exp), late)
	if called || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected the injected clock to expire the token, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RejectsRefreshToken(t *testing.T) {
	rec, called := runAuth(t, "Bearer "+signToken(t, domain.TokenTypeRefresh, time.Now().Add(time.Hour)))
	if called || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected refresh tokens rejected, got %d", rec.Code)
	}
}
