package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/schoolms/portal-client/internal/core/domain"
)

func TestNewSeeded(t *testing.T) {
	dir, err := NewSeeded(time.Now(), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewSeeded returned error: %v", err)
	}

	u, err := dir.FindByEmail(context.Background(), "Teacher@School.com")
	if err != nil {
		t.Fatalf("FindByEmail returned error: %v", err)
	}
	if !u.User.HasRole(domain.RoleTeacher) || !u.User.HasPermission("marks.enter") {
		t.Fatalf("unexpected seeded user %+v", u.User)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("teacher123")); err != nil {
		t.Fatalf("seeded hash does not match: %v", err)
	}

	byID, err := dir.FindByID(context.Background(), u.User.ID)
	if err != nil || byID.User.Email != "teacher@school.com" {
		t.Fatalf("FindByID = %+v, %v", byID, err)
	}
}

func TestMemory_NotFound(t *testing.T) {
	dir := NewMemory()
	if _, err := dir.FindByEmail(context.Background(), "x@y.z"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := dir.FindByID(context.Background(), "1"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	dir, _ := NewSeeded(time.Now(), bcrypt.MinCost)
	u, _ := dir.FindByID(context.Background(), "1")
	u.User.Roles[0].Name = domain.RoleStudent

	again, _ := dir.FindByID(context.Background(), "1")
	if !again.User.HasRole(domain.RoleAdmin) {
		t.Fatalf("directory records must not be mutable through returned values")
	}
}
