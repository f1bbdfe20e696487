// Package session holds the operator's authenticated session: the bearer
// token, its expiry, the logout stream and the expiry timer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "cv-screening/internal/common/errors"
	"cv-screening/internal/common/logger"
	"cv-screening/internal/common/metrics"
	"cv-screening/internal/models"
	"cv-screening/internal/persistence"

	"github.com/golang-jwt/jwt/v5"
)

const storageKey = "auth"

// Logout reasons.
const (
	ReasonUser         = "user"
	ReasonExpired      = "expired"
	ReasonUnauthorized = "unauthorized"
)

// Manager owns the single authenticated session of the gateway.
type Manager struct {
	mu        sync.RWMutex
	current   *models.Session
	kv        persistence.KV
	logger    logger.Logger
	now       func() time.Time
	listeners map[int]func(reason string)
	nextID    int
}

// Option customizes NewManager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(kv persistence.KV, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		kv:        kv,
		logger:    log.WithFields(map[string]interface{}{"component": "session"}),
		now:       time.Now,
		listeners: make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DecodeExpiry reads exp and iat from a JWT without verifying its signature;
// the backend verifies tokens, the gateway only needs to know when they lapse.
func DecodeExpiry(token string) (expiresAt, issuedAt time.Time, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("decode token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("decode token exp: %w", err)
	}
	if exp == nil {
		return time.Time{}, time.Time{}, errors.New("token has no exp claim")
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		issuedAt = iat.Time
	}
	return exp.Time, issuedAt, nil
}

// Login installs token and user as the current session.
func (m *Manager) Login(ctx context.Context, token string, user *models.User) error {
	expiresAt, issuedAt, err := DecodeExpiry(token)
	if err != nil {
		return apperrors.NewAuthenticationError(err.Error())
	}
	if !m.now().Before(expiresAt) {
		return apperrors.NewSessionExpiredError()
	}

	s := &models.Session{Token: token, User: user, ExpiresAt: expiresAt, IssuedAt: issuedAt}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.persist(ctx, s)
	metrics.SessionEvents.WithLabelValues("login").Inc()

	fields := map[string]interface{}{"expiresAt": expiresAt.UTC().Format(time.RFC3339)}
	if user != nil {
		fields["userId"] = user.ID
		fields["isAdmin"] = user.IsAdmin
	}
	m.logger.Info("session started", fields)
	return nil
}

// Restore reloads a persisted session. An absent or expired one is not an error.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	raw, err := m.kv.Get(ctx, storageKey)
	if errors.Is(err, persistence.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewPersistenceFailedError("session.restore", err)
	}

	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		m.logger.Warn("discarding unreadable persisted session", map[string]interface{}{"error": err.Error()})
		_ = m.kv.Delete(ctx, storageKey)
		return false, nil
	}
	if s.IsExpired(m.now()) {
		_ = m.kv.Delete(ctx, storageKey)
		return false, nil
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()
	return true, nil
}

// Token returns the raw bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.Token
}

// IsAuthenticated reports whether a non-expired token is held. Finding an
// expired token logs the session out.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()

	if s == nil {
		return false
	}
	if s.IsExpired(m.now()) {
		m.Logout(context.Background(), ReasonExpired)
		return false
	}
	return true
}

// MinutesRemaining returns whole minutes left on the token, 0 when logged out.
func (m *Manager) MinutesRemaining() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.MinutesRemaining(m.now())
}

// User returns a copy of the logged-in user, or nil.
func (m *Manager) User() *models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.User == nil {
		return nil
	}
	u := *m.current.User
	return &u
}

func (m *Manager) IsAdmin() bool {
	u := m.User()
	return u != nil && u.IsAdmin
}

// Snapshot returns a copy of the current session, or nil.
func (m *Manager) Snapshot() *models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// Logout drops the session and notifies logout listeners. It reports whether
// a session was active; listeners only fire in that case.
func (m *Manager) Logout(ctx context.Context, reason string) bool {
	m.mu.Lock()
	active := m.current != nil
	m.current = nil
	listeners := make([]func(string), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	if !active {
		return false
	}

	if err := m.kv.Delete(ctx, storageKey); err != nil {
		m.logger.Warn("failed to delete persisted session", map[string]interface{}{"error": err.Error()})
	}
	metrics.SessionEvents.WithLabelValues("logout_" + reason).Inc()
	m.logger.Info("session ended", map[string]interface{}{"reason": reason})

	for _, fn := range listeners {
		fn(reason)
	}
	return true
}

// OnLogout registers fn to run after every logout. The returned func
// unregisters it.
func (m *Manager) OnLogout(fn func(reason string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) persist(ctx context.Context, s *models.Session) {
	raw, err := json.Marshal(s)
	if err == nil {
		err = m.kv.Put(ctx, storageKey, raw)
	}
	if err != nil {
		m.logger.Warn("failed to persist session", map[string]interface{}{"error": err.Error()})
	}
}
