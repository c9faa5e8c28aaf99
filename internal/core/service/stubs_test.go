package service

import (
	"context"
	"errors"
	"sync"

	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

var errBackend = errors.New("backend unavailable")

type stubKV struct {
	mu      sync.Mutex
	data    map[string]string
	getErr  error
	setErr  error
	remErr  error
	removed []string
}

func newStubKV() *stubKV {
	return &stubKV{data: make(map[string]string)}
}

func (s *stubKV) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *stubKV) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	return nil
}

func (s *stubKV) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, key)
	if s.remErr != nil {
		return s.remErr
	}
	delete(s.data, key)
	return nil
}

func (s *stubKV) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// stubRequester answers requests through a function field.
type stubRequester struct {
	do func(ctx context.Context, req ports.Request) (*ports.Response, error)

	mu    sync.Mutex
	calls []ports.Request
}

func (s *stubRequester) Do(ctx context.Context, req ports.Request) (*ports.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.do(ctx, req)
}

func (s *stubRequester) callsTo(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

func jsonResponse(status int, body string) *ports.Response {
	return &ports.Response{Status: status, Body: []byte(body)}
}

func adminUser() *domain.User {
	return &domain.User{
		ID:    "u-1",
		Email: "admin@school.com",
		Roles: []domain.Role{{
			ID:   "r-1",
			Name: domain.RoleAdmin,
			Permissions: []domain.Permission{
				{ID: "p-1", Code: "users.manage", Name: "Manage users"},
			},
		}},
		IsActive: true,
	}
}

type stubCache struct {
	mu          sync.Mutex
	resets      int
	invalidated []domain.Tag
}

func (s *stubCache) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

func (s *stubCache) Invalidate(tags ...domain.Tag) int {
	s.mu.Lock()
	s.invalidated = append(s.invalidated, tags...)
	s.mu.Unlock()
	return 0
}

func (s *stubCache) resetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
