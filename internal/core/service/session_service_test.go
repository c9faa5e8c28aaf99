package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

type sessionFixture struct {
	svc   *SessionService
	api   *stubRequester
	kv    *stubKV
	store *TokenStore
	cache *stubCache
}

func newSessionFixture(demo bool, do func(context.Context, ports.Request) (*ports.Response, error)) *sessionFixture {
	f := &sessionFixture{
		api:   &stubRequester{do: do},
		kv:    newStubKV(),
		cache: &stubCache{},
	}
	f.store = NewTokenStore(f.kv, zerolog.Nop())
	f.svc = NewSessionService(f.api, f.store, f.cache, SessionOptions{DemoLogin: demo}, zerolog.Nop())
	return f
}

func unreachable(context.Context, ports.Request) (*ports.Response, error) {
	return nil, domain.NewNetworkError(errors.New("connection refused"))
}

func TestSessionService_DemoLoginWithoutNetwork(t *testing.T) {
	f := newSessionFixture(true, unreachable)

	s, err := f.svc.Login(context.Background(), ports.Credentials{Email: "admin@school.com", Password: "admin123"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if !s.IsAuthenticated() {
		t.Fatalf("expected authenticated session")
	}
	if names := s.User.RoleNames(); len(names) != 1 || names[0] != domain.RoleAdmin {
		t.Fatalf("unexpected roles %v", names)
	}
	if len(f.api.calls) != 0 {
		t.Fatalf("demo login must not touch the network, got %d calls", len(f.api.calls))
	}
	if !f.svc.HasRole(domain.RoleAdmin) || f.svc.HasRole(domain.RoleTeacher) {
		t.Fatalf("unexpected role projection")
	}
	if f.kv.data[keyAccessToken] != domain.DemoAccessToken {
		t.Fatalf("expected demo token persisted")
	}
}

func TestSessionService_DemoLoginDisabled(t *testing.T) {
	f := newSessionFixture(false, unreachable)

	_, err := f.svc.Login(context.Background(), ports.Credentials{Email: "admin@school.com", Password: "admin123"})
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected network error when demo login is off, got %v", err)
	}
	if f.svc.IsAuthenticated() {
		t.Fatalf("session must stay empty")
	}
}

func TestSessionService_LoginSuccess(t *testing.T) {
	f := newSessionFixture(false, func(_ context.Context, req ports.Request) (*ports.Response, error) {
		if req.Path != pathLogin || req.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", req.Method, req.Path)
		}
		creds, ok := req.Body.(ports.Credentials)
		if !ok || creds.Email != "t@school.com" {
			t.Errorf("unexpected body %#v", req.Body)
		}
		return jsonResponse(200, `{"access":"a1","refresh":"r1","user":{"id":"7","email":"t@school.com","roles":[{"id":"2","name":"TEACHER","permissions":[{"id":"p","code":"marks.enter","name":"Enter marks"}]}]}}`), nil
	})

	s, err := f.svc.Login(context.Background(), ports.Credentials{Email: " t@school.com ", Password: "pw"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if s.AccessToken != "a1" || s.RefreshToken != "r1" {
		t.Fatalf("unexpected tokens %+v", s)
	}
	if !f.svc.HasPermission("marks.enter") || f.svc.HasPermission("users.manage") {
		t.Fatalf("unexpected permission projection")
	}
	if loaded := f.store.Load(context.Background()); !loaded.Equal(s) {
		t.Fatalf("expected session persisted, got %+v", loaded)
	}
	if len(f.cache.invalidated) != 1 || f.cache.invalidated[0] != domain.TagUser {
		t.Fatalf("expected User tag invalidated, got %v", f.cache.invalidated)
	}
}

func TestSessionService_LoginClassification(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"bad request", domain.NewStatusError(400, []byte(`{"detail":"Invalid email or password"}`)), domain.ErrInvalidCredentials},
		{"unauthorized", domain.NewStatusError(401, nil), domain.ErrInvalidCredentials},
		{"server", domain.NewStatusError(500, nil), domain.ErrServerError},
		{"network", domain.NewNetworkError(errors.New("timeout")), domain.ErrNetwork},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f := newSessionFixture(false, func(context.Context, ports.Request) (*ports.Response, error) {
				return nil, tc.err
			})
			_, err := f.svc.Login(context.Background(), ports.Credentials{Email: "x@school.com", Password: "pw"})
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("expected %v, got %v", tc.sentinel, err)
			}
			if f.svc.IsAuthenticated() {
				t.Fatalf("failed login must not change the session")
			}
		})
	}
}

func TestSessionService_LoginValidation(t *testing.T) {
	f := newSessionFixture(true, unreachable)

	for _, creds := range []ports.Credentials{
		{Email: "", Password: "pw"},
		{Email: "not-an-email", Password: "pw"},
		{Email: "a@b.com", Password: ""},
	} {
		if _, err := f.svc.Login(context.Background(), creds); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials for %+v, got %v", creds, err)
		}
	}
	if len(f.api.calls) != 0 {
		t.Fatalf("invalid credentials must not reach the API")
	}
}

func TestSessionService_LoginRequiresTwoFactor(t *testing.T) {
	f := newSessionFixture(false, func(context.Context, ports.Request) (*ports.Response, error) {
		return jsonResponse(200, `{"requires_2fa":true,"user":{"id":"9","email":"p@school.com"}}`), nil
	})

	_, err := f.svc.Login(context.Background(), ports.Credentials{Email: "p@school.com", Password: "pw"})
	if !errors.Is(err, domain.ErrTwoFactorRequired) {
		t.Fatalf("expected ErrTwoFactorRequired, got %v", err)
	}
	if f.svc.IsAuthenticated() {
		t.Fatalf("session must stay empty until the second factor")
	}
	if f.svc.PendingTwoFactor() != "9" {
		t.Fatalf("expected pending user id, got %q", f.svc.PendingTwoFactor())
	}
}

func TestSessionService_LogoutClearsEverythingEvenOnNetworkFailure(t *testing.T) {
	f := newSessionFixture(false, func(_ context.Context, req ports.Request) (*ports.Response, error) {
		if req.Path == pathLogin {
			return jsonResponse(200, `{"access":"a1","refresh":"r1","user":{"id":"1","email":"a@school.com"}}`), nil
		}
		return nil, domain.NewNetworkError(errors.New("offline"))
	})
	ctx := context.Background()

	if _, err := f.svc.Login(ctx, ports.Credentials{Email: "a@school.com", Password: "pw"}); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	f.svc.Logout(ctx)

	if f.api.callsTo(pathLogout) != 1 {
		t.Fatalf("expected one logout call")
	}
	if f.svc.IsAuthenticated() || f.svc.CurrentUser() != nil {
		t.Fatalf("expected empty session after logout")
	}
	if n := f.kv.len(); n != 0 {
		t.Fatalf("expected token store empty, got %d keys", n)
	}
	if f.cache.resetCount() != 1 {
		t.Fatalf("expected cache reset on logout")
	}
}

func TestSessionService_LogoutSendsBearer(t *testing.T) {
	var got ports.Request
	f := newSessionFixture(false, func(_ context.Context, req ports.Request) (*ports.Response, error) {
		got = req
		return jsonResponse(200, `{}`), nil
	})
	f.svc.establish(context.Background(), domain.Session{AccessToken: "a1", RefreshToken: "r1"})

	f.svc.Logout(context.Background())

	if got.Token != "a1" || got.Path != pathLogout {
		t.Fatalf("unexpected logout request %+v", got)
	}
}

func TestSessionService_RestoreAndUpdateTokens(t *testing.T) {
	f := newSessionFixture(false, unreachable)
	ctx := context.Background()
	_ = f.store.Save(ctx, domain.Session{AccessToken: "a1", RefreshToken: "r1", User: adminUser()})

	s := f.svc.Restore(ctx)
	if !s.IsAuthenticated() || f.svc.CurrentUser().Email != "admin@school.com" {
		t.Fatalf("expected restored session, got %+v", s)
	}

	if !f.svc.UpdateTokens(ctx, "r1", "a2", "") {
		t.Fatalf("UpdateTokens rejected an active session")
	}
	if f.svc.AccessToken() != "a2" || f.svc.RefreshToken() != "r1" {
		t.Fatalf("expected refresh token kept when not rotated")
	}
	if !f.svc.UpdateTokens(ctx, "r1", "a3", "r3") || f.svc.RefreshToken() != "r3" {
		t.Fatalf("expected rotated refresh token")
	}
	if loaded := f.store.Load(ctx); loaded.AccessToken != "a3" || loaded.RefreshToken != "r3" {
		t.Fatalf("expected rotated tokens persisted, got %+v", loaded)
	}
	if f.svc.UpdateTokens(ctx, "r1", "stale", "") {
		t.Fatalf("UpdateTokens accepted a result for a rotated-out refresh token")
	}

	if f.svc.Expire(ctx, "r1") {
		t.Fatalf("Expire with a superseded refresh token must keep the session")
	}
	if !f.svc.Expire(ctx, "r3") || f.svc.IsAuthenticated() {
		t.Fatalf("Expire with the current refresh token must end the session")
	}
	if f.svc.UpdateTokens(ctx, "r3", "a4", "r4") {
		t.Fatalf("UpdateTokens must not revive an expired session")
	}
}

func TestSessionService_SetUserIgnoredWhenLoggedOut(t *testing.T) {
	f := newSessionFixture(false, unreachable)

	f.svc.SetUser(context.Background(), adminUser())
	if f.svc.CurrentUser() != nil {
		t.Fatalf("user must never be set without an access token")
	}

	f.svc.establish(context.Background(), domain.Session{AccessToken: "a1"})
	f.svc.SetUser(context.Background(), adminUser())
	if !f.svc.HasPermission("users.manage") {
		t.Fatalf("expected user snapshot applied")
	}
}

func TestSessionService_CurrentUserIsACopy(t *testing.T) {
	f := newSessionFixture(false, unreachable)
	f.svc.establish(context.Background(), domain.Session{AccessToken: "a1", User: adminUser()})

	u := f.svc.CurrentUser()
	u.Roles[0].Name = domain.RoleStudent

	if !f.svc.HasRole(domain.RoleAdmin) {
		t.Fatalf("mutating the returned user must not affect the session")
	}
}
