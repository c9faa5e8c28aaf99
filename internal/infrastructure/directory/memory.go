// Package directory provides the in-memory user directory of the reference API.
package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

// rolePermissions grants each seeded role its capability codes.
var rolePermissions = map[string][]domain.Permission{
	domain.RoleAdmin: {
		{ID: "1", Code: "users.manage", Name: "Manage users"},
		{ID: "2", Code: "reports.view", Name: "View reports"},
		{ID: "3", Code: "settings.manage", Name: "Manage settings"},
	},
	domain.RoleTeacher: {
		{ID: "4", Code: "marks.enter", Name: "Enter marks"},
		{ID: "5", Code: "attendance.mark", Name: "Mark attendance"},
	},
	domain.RoleStudent: {
		{ID: "6", Code: "marks.view", Name: "View own marks"},
	},
	domain.RoleParent: {
		{ID: "7", Code: "fees.pay", Name: "Pay fees"},
		{ID: "8", Code: "marks.view", Name: "View children's marks"},
	},
}

// Memory is a UserDirectory held in process memory.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]ports.DirectoryUser
	byEmail map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]ports.DirectoryUser),
		byEmail: make(map[string]string),
	}
}

// NewSeeded returns a directory holding the demo accounts with bcrypt hashed
// passwords and role permissions. cost <= 0 uses bcrypt.DefaultCost.
func NewSeeded(now time.Time, cost int) (*Memory, error) {
	users, err := SeedUsers(now, cost)
	if err != nil {
		return nil, err
	}
	m := NewMemory()
	for _, u := range users {
		m.Put(u)
	}
	return m, nil
}

// SeedUsers builds the demo accounts as directory records.
func SeedUsers(now time.Time, cost int) ([]ports.DirectoryUser, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	accounts := domain.DemoAccounts(now)
	out := make([]ports.DirectoryUser, 0, len(accounts))
	for _, a := range accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", a.Email, err)
		}
		u := a.User
		for i := range u.Roles {
			u.Roles[i].Permissions = append([]domain.Permission(nil), rolePermissions[u.Roles[i].Name]...)
		}
		out = append(out, ports.DirectoryUser{User: u, PasswordHash: string(hash)})
	}
	return out, nil
}

// Put inserts or replaces a user.
func (m *Memory) Put(u ports.DirectoryUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byID[u.User.ID]; ok {
		delete(m.byEmail, strings.ToLower(old.User.Email))
	}
	m.byID[u.User.ID] = u
	m.byEmail[strings.ToLower(u.User.Email)] = u.User.ID
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*ports.DirectoryUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return m.copyOf(id), nil
}

func (m *Memory) FindByID(_ context.Context, id string) (*ports.DirectoryUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.byID[id]; !ok {
		return nil, domain.ErrUserNotFound
	}
	return m.copyOf(id), nil
}

func (m *Memory) copyOf(id string) *ports.DirectoryUser {
	u := m.byID[id]
	return &ports.DirectoryUser{User: *u.User.Clone(), PasswordHash: u.PasswordHash}
}
