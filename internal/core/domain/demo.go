package domain

import "time"

const (
	DemoAccessToken  = "demo-access-token"
	DemoRefreshToken = "demo-refresh-token"
)

// DemoAccount is a built-in login that works without a backend.
type DemoAccount struct {
	Email    string
	Password string
	User     User
}

var demoSeed = []struct {
	id, email, password, first, last, role, description string
}{
	{"1", "admin@school.com", "admin123", "Admin", "User", RoleAdmin, "Administrator"},
	{"2", "teacher@school.com", "teacher123", "John", "Teacher", RoleTeacher, "Teacher"},
	{"3", "student@school.com", "student123", "Jane", "Student", RoleStudent, "Student"},
	{"4", "parent@school.com", "parent123", "Mary", "Parent", RoleParent, "Parent"},
}

// DemoAccounts returns fresh copies of the demo logins, one per primary role.
func DemoAccounts(now time.Time) []DemoAccount {
	accounts := make([]DemoAccount, 0, len(demoSeed))
	for _, d := range demoSeed {
		accounts = append(accounts, DemoAccount{
			Email:    d.email,
			Password: d.password,
			User: User{
				ID:        d.id,
				Email:     d.email,
				FirstName: d.first,
				LastName:  d.last,
				Roles: []Role{{
					ID:          d.id,
					Name:        d.role,
					Permissions: []Permission{},
					Description: d.description,
				}},
				IsActive:   true,
				DateJoined: now.UTC(),
			},
		})
	}
	return accounts
}

// FindDemoAccount matches email and password against the demo logins.
func FindDemoAccount(email, password string, now time.Time) (DemoAccount, bool) {
	for _, a := range DemoAccounts(now) {
		if a.Email == email && a.Password == password {
			return a, true
		}
	}
	return DemoAccount{}, false
}
