package session

import (
	"context"
	"sync"
	"time"

	"cv-screening/internal/common/logger"
	"cv-screening/internal/common/metrics"
)

// Listener receives timer events.
type Listener interface {
	SessionWarning(minutesRemaining int)
	SessionExpired()
}

// TimerConfig sets how often the token is checked and when to warn.
type TimerConfig struct {
	CheckInterval  time.Duration
	WarningMinutes int
}

func DefaultTimerConfig() TimerConfig {
	return TimerConfig{CheckInterval: 30 * time.Second, WarningMinutes: 5}
}

// Timer polls the session and warns once before it expires. On expiry it
// stops itself and logs the session out.
type Timer struct {
	manager  *Manager
	config   TimerConfig
	listener Listener
	logger   logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	warned bool
}

func NewTimer(manager *Manager, config TimerConfig, listener Listener, log logger.Logger) *Timer {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultTimerConfig().CheckInterval
	}
	return &Timer{
		manager:  manager,
		config:   config,
		listener: listener,
		logger:   log.WithFields(map[string]interface{}{"component": "session-timer"}),
	}
}

// Start (re)starts polling: it checks immediately, then every CheckInterval
// until ctx ends, Stop is called or the session expires.
func (t *Timer) Start(ctx context.Context) {
	t.Stop()

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.warned = false
	t.mu.Unlock()

	if !t.check() {
		return
	}

	go func() {
		ticker := time.NewTicker(t.config.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !t.check() {
					return
				}
			}
		}
	}()
}

// Stop halts polling. It does not wait for an in-progress check.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.warned = false
}

// Running reports whether the timer is polling.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// check runs one poll and reports whether polling should continue.
func (t *Timer) check() bool {
	if !t.manager.IsAuthenticated() {
		t.expire()
		return false
	}

	remaining := t.manager.MinutesRemaining()
	if remaining <= 0 {
		t.expire()
		return false
	}

	t.mu.Lock()
	warn := remaining <= t.config.WarningMinutes && !t.warned
	if warn {
		t.warned = true
	} else if remaining > t.config.WarningMinutes && t.warned {
		t.warned = false
	}
	t.mu.Unlock()

	if warn {
		metrics.SessionEvents.WithLabelValues("warning").Inc()
		t.logger.Info("session expiring soon", map[string]interface{}{"minutesRemaining": remaining})
		if t.listener != nil {
			t.listener.SessionWarning(remaining)
		}
	}
	return true
}

func (t *Timer) expire() {
	t.Stop()
	metrics.SessionEvents.WithLabelValues("expired").Inc()
	t.logger.Warn("session expired", nil)
	if t.listener != nil {
		t.listener.SessionExpired()
	}
	t.manager.Logout(context.Background(), ReasonExpired)
}
