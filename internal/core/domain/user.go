package domain

import (
	"strings"
	"time"
)

const (
	RoleAdmin        = "ADMIN"
	RoleTeacher      = "TEACHER"
	RoleStudent      = "STUDENT"
	RoleParent       = "PARENT"
	RoleBursar       = "BURSAR"
	RoleHostelWarden = "HOSTEL_WARDEN"
)

// Permission is a single capability code granted through a role.
type Permission struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Role groups permissions. Roles are read-only snapshots taken at login or refresh.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	Description string       `json:"description,omitempty"`
}

// User models the authenticated actor as returned by the API.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Roles          []Role     `json:"roles"`
	ProfilePicture string     `json:"profile_picture,omitempty"`
	PhoneNumber    string     `json:"phone_number,omitempty"`
	IsActive       bool       `json:"is_active"`
	DateJoined     time.Time  `json:"date_joined"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

// HasRole reports whether the user holds a role with the given name.
func (u *User) HasRole(name string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasPermission reports whether any of the user's roles grants code.
func (u *User) HasPermission(code string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			if p.Code == code {
				return true
			}
		}
	}
	return false
}

// RoleNames returns role names in the order the API returned them.
func (u *User) RoleNames() []string {
	if u == nil {
		return nil
	}
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Clone returns a deep copy so callers cannot mutate a shared snapshot.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = make([]Role, len(u.Roles))
	for i, r := range u.Roles {
		c.Roles[i] = r
		c.Roles[i].Permissions = append([]Permission(nil), r.Permissions...)
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}
