package models

import "time"

// Session is the authenticated operator session held by the gateway.
type Session struct {
	Token     string    `json:"token"`
	User      *User     `json:"user,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// IsExpired reports whether the token is past its expiry at now. A zero
// ExpiresAt is treated as expired.
func (s *Session) IsExpired(now time.Time) bool {
	if s == nil || s.Token == "" || s.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(s.ExpiresAt)
}

// MinutesRemaining returns whole minutes until expiry, never negative.
func (s *Session) MinutesRemaining(now time.Time) int {
	if s.IsExpired(now) {
		return 0
	}
	return int(s.ExpiresAt.Sub(now) / time.Minute)
}
