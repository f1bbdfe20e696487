package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"cv-screening/internal/common/logger"
	"cv-screening/internal/models"
	"cv-screening/internal/persistence"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Helpers
// ==========================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func tokenExpiringIn(t *testing.T, clock *fakeClock, d time.Duration) string {
	return signToken(t, jwt.MapClaims{
		"sub": "42",
		"iat": clock.Now().Unix(),
		"exp": clock.Now().Add(d).Unix(),
	})
}

func newManager(t *testing.T, clock *fakeClock) (*Manager, persistence.KV) {
	kv := persistence.NewMemoryKV()
	return NewManager(kv, logger.NewTestLogger(t), WithClock(clock.Now)), kv
}

// ==========================
// Token decoding
// ==========================

func TestDecodeExpiry(t *testing.T) {
	clock := newFakeClock()

	exp, iat, err := DecodeExpiry(tokenExpiringIn(t, clock, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour).Unix(), exp.Unix())
	assert.Equal(t, clock.Now().Unix(), iat.Unix())

	_, _, err = DecodeExpiry(signToken(t, jwt.MapClaims{"sub": "42"}))
	assert.Error(t, err, "token without exp")

	_, _, err = DecodeExpiry("verified")
	assert.Error(t, err)

	_, _, err = DecodeExpiry("")
	assert.Error(t, err)
}

// ==========================
// Manager
// ==========================

func TestManager_LoginAndLogout(t *testing.T) {
	clock := newFakeClock()
	m, kv := newManager(t, clock)
	ctx := context.Background()

	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, 0, m.MinutesRemaining())

	user := &models.User{ID: "42", Email: "ops@example.org", IsAdmin: true, CVAccess: true}
	token := tokenExpiringIn(t, clock, 30*time.Minute+30*time.Second)
	require.NoError(t, m.Login(ctx, token, user))

	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, token, m.Token())
	assert.Equal(t, 30, m.MinutesRemaining())
	assert.True(t, m.IsAdmin())
	assert.Equal(t, "42", m.User().ID)

	_, err := kv.Get(ctx, storageKey)
	require.NoError(t, err, "session persisted")

	var reasons []string
	unsubscribe := m.OnLogout(func(reason string) { reasons = append(reasons, reason) })
	defer unsubscribe()

	assert.True(t, m.Logout(ctx, ReasonUser))
	assert.False(t, m.Logout(ctx, ReasonUser), "second logout is a no-op")
	assert.Equal(t, []string{ReasonUser}, reasons)
	assert.Empty(t, m.Token())
	assert.Nil(t, m.User())

	_, err = kv.Get(ctx, storageKey)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestManager_LoginRejectsBadTokens(t *testing.T) {
	clock := newFakeClock()
	m, _ := newManager(t, clock)
	ctx := context.Background()

	assert.Error(t, m.Login(ctx, "verified", nil))
	assert.Error(t, m.Login(ctx, signToken(t, jwt.MapClaims{"sub": "1"}), nil))
	assert.Error(t, m.Login(ctx, tokenExpiringIn(t, clock, -time.Minute), nil))
	assert.False(t, m.IsAuthenticated())
}

func TestManager_ExpiryLogsOut(t *testing.T) {
	clock := newFakeClock()
	m, _ := newManager(t, clock)
	require.NoError(t, m.Login(context.Background(), tokenExpiringIn(t, clock, 10*time.Minute), nil))

	var reasons []string
	m.OnLogout(func(reason string) { reasons = append(reasons, reason) })

	clock.Advance(10 * time.Minute)
	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, []string{ReasonExpired}, reasons)
	assert.Empty(t, m.Token())
}

func TestManager_Restore(t *testing.T) {
	clock := newFakeClock()
	ctx := context.Background()
	kv := persistence.NewMemoryKV()

	first := NewManager(kv, logger.NewNoOpLogger(), WithClock(clock.Now))
	require.NoError(t, first.Login(ctx, tokenExpiringIn(t, clock, time.Hour), &models.User{ID: "7"}))

	second := NewManager(kv, logger.NewNoOpLogger(), WithClock(clock.Now))
	ok, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, first.Token(), second.Token())
	assert.Equal(t, "7", second.User().ID)

	clock.Advance(2 * time.Hour)
	third := NewManager(kv, logger.NewNoOpLogger(), WithClock(clock.Now))
	ok, err = third.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "expired session is dropped")

	require.NoError(t, kv.Put(ctx, storageKey, []byte("{not json")))
	ok, err = third.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

// ==========================
// Timer
// ==========================

type recordingListener struct {
	mu       sync.Mutex
	warnings []int
	expired  int
}

func (l *recordingListener) SessionWarning(minutes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, minutes)
}

func (l *recordingListener) SessionExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expired++
}

func TestTimer_WarnsOnceThenExpires(t *testing.T) {
	clock := newFakeClock()
	m, _ := newManager(t, clock)
	require.NoError(t, m.Login(context.Background(), tokenExpiringIn(t, clock, 8*time.Minute), nil))

	listener := &recordingListener{}
	timer := NewTimer(m, TimerConfig{CheckInterval: time.Hour, WarningMinutes: 5}, listener, logger.NewTestLogger(t))

	// polled by hand; the hour-long interval never ticks during the test
	timer.Start(context.Background())
	defer timer.Stop()
	assert.True(t, timer.Running())
	assert.Empty(t, listener.warnings)

	clock.Advance(4 * time.Minute)
	assert.True(t, timer.check())
	assert.True(t, timer.check())
	assert.Equal(t, []int{4}, listener.warnings, "warned once")

	clock.Advance(4 * time.Minute)
	assert.False(t, timer.check())
	assert.Equal(t, 1, listener.expired)
	assert.False(t, timer.Running())
	assert.Empty(t, m.Token())
}

func TestTimer_ResetsWarningAfterRefresh(t *testing.T) {
	clock := newFakeClock()
	m, _ := newManager(t, clock)
	ctx := context.Background()
	require.NoError(t, m.Login(ctx, tokenExpiringIn(t, clock, 3*time.Minute), nil))

	listener := &recordingListener{}
	timer := NewTimer(m, TimerConfig{CheckInterval: time.Hour, WarningMinutes: 5}, listener, logger.NewNoOpLogger())
	timer.Start(ctx)
	defer timer.Stop()
	assert.Equal(t, []int{3}, listener.warnings)

	require.NoError(t, m.Login(ctx, tokenExpiringIn(t, clock, time.Hour), nil))
	assert.True(t, timer.check())

	require.NoError(t, m.Login(ctx, tokenExpiringIn(t, clock, 2*time.Minute), nil))
	assert.True(t, timer.check())
	assert.Equal(t, []int{3, 2}, listener.warnings)
}

func TestTimer_StartWithoutSession(t *testing.T) {
	clock := newFakeClock()
	m, _ := newManager(t, clock)

	listener := &recordingListener{}
	timer := NewTimer(m, DefaultTimerConfig(), listener, logger.NewNoOpLogger())
	timer.Start(context.Background())

	assert.Equal(t, 1, listener.expired)
	assert.False(t, timer.Running())
}
