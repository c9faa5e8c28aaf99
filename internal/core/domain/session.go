package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the authenticated identity and its credentials.
// A session is authenticated iff AccessToken is non-empty.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

func (s Session) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// Normalize drops the user snapshot when there is no access token.
func (s Session) Normalize() Session {
	if s.AccessToken == "" {
		s.User = nil
	}
	return s
}

// Clone returns a copy that shares no mutable state with s.
func (s Session) Clone() Session {
	s.User = s.User.Clone()
	return s
}

// Equal compares tokens and the user identity snapshot.
func (s Session) Equal(o Session) bool {
	if s.AccessToken != o.AccessToken || s.RefreshToken != o.RefreshToken {
		return false
	}
	if (s.User == nil) != (o.User == nil) {
		return false
	}
	if s.User == nil {
		return true
	}
	if s.User.ID != o.User.ID || s.User.Email != o.User.Email {
		return false
	}
	a, b := s.User.RoleNames(), o.User.RoleNames()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AccessExpiry reads the exp claim of a JWT access token without verifying
// its signature. Opaque tokens and tokens without exp report ok=false.
func (s Session) AccessExpiry() (time.Time, bool) {
	if s.AccessToken == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
