package identity

import (
	"maps"
	"time"
)

// User is the profile of an authenticated principal as reported by the identity
// provider. It is derived from a Session and never mutated independently.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	LastSignInAt     time.Time      `json:"last_sign_in_at,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`  // Provider controlled, e.g. {"provider": "google"}
	UserMetadata     map[string]any `json:"user_metadata,omitempty"` // User editable profile data
}

// Session is the opaque credential bundle issued by the identity provider.
// Only the provider creates or invalidates a Session; consumers hold cached copies.
type Session struct {
	AccessToken   string         `json:"access_token"`
	RefreshToken  string         `json:"refresh_token,omitempty"`
	TokenType     string         `json:"token_type,omitempty"`
	ExpiresAt     time.Time      `json:"expires_at,omitempty"`
	ProviderName  string         `json:"provider,omitempty"`       // "email" or the federated provider name
	ProviderToken string         `json:"provider_token,omitempty"` // Raw ID token when the provider issued one
	User          *User          `json:"user,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// UserOrNil returns the session user, tolerating a nil session.
func (s *Session) UserOrNil() *User {
	if s == nil {
		return nil
	}
	return s.User
}

// Expired reports whether the session is past its validity horizon. A zero
// ExpiresAt means the provider did not say, which is treated as not expired.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.User = s.User.Clone()
	c.Metadata = maps.Clone(s.Metadata)
	return &c
}

// Equal reports whether two sessions carry the same credentials for the same user.
func (s *Session) Equal(o *Session) bool {
	if s == nil || o == nil {
		return s == nil && o == nil
	}
	return s.AccessToken == o.AccessToken &&
		s.RefreshToken == o.RefreshToken &&
		s.TokenType == o.TokenType &&
		s.ExpiresAt.Equal(o.ExpiresAt) &&
		s.ProviderName == o.ProviderName &&
		s.User.Equal(o.User)
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.EmailConfirmedAt != nil {
		t := *u.EmailConfirmedAt
		c.EmailConfirmedAt = &t
	}
	c.AppMetadata = maps.Clone(u.AppMetadata)
	c.UserMetadata = maps.Clone(u.UserMetadata)
	return &c
}

// Equal compares the identifying attributes of two users.
func (u *User) Equal(o *User) bool {
	if u == nil || o == nil {
		return u == nil && o == nil
	}
	confirmedEqual := (u.EmailConfirmedAt == nil) == (o.EmailConfirmedAt == nil)
	if confirmedEqual && u.EmailConfirmedAt != nil {
		confirmedEqual = u.EmailConfirmedAt.Equal(*o.EmailConfirmedAt)
	}
	return u.ID == o.ID &&
		u.Email == o.Email &&
		u.LastSignInAt.Equal(o.LastSignInAt) &&
		confirmedEqual
}

// Confirmed reports whether the user's email address has been confirmed.
func (u *User) Confirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil
}
