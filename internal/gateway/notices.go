package gateway

import (
	"fmt"
	"sync"
	"time"
)

// Notice is a user-facing session message.
type Notice struct {
	Severity string    `json:"severity"`
	Summary  string    `json:"summary"`
	Detail   string    `json:"detail"`
	At       time.Time `json:"at"`
}

// Notices receives session timer events and keeps the latest one for the
// session endpoint to report.
type Notices struct {
	mu     sync.Mutex
	latest *Notice
	now    func() time.Time
}

func NewNotices() *Notices {
	return &Notices{now: time.Now}
}

func (n *Notices) SessionWarning(minutesRemaining int) {
	unit := "minutes"
	if minutesRemaining == 1 {
		unit = "minute"
	}
	n.set(&Notice{
		Severity: "warn",
		Summary:  "Session Expiring Soon",
		Detail:   fmt.Sprintf("Your session will expire in %d %s. Save any work and refresh to extend your session.", minutesRemaining, unit),
	})
}

func (n *Notices) SessionExpired() {
	n.set(&Notice{
		Severity: "error",
		Summary:  "Session Expired",
		Detail:   "Your session has expired. Please login again.",
	})
}

// Clear drops the current notice, e.g. after a fresh login.
func (n *Notices) Clear() {
	n.set(nil)
}

func (n *Notices) Latest() *Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.latest == nil {
		return nil
	}
	out := *n.latest
	return &out
}

func (n *Notices) set(notice *Notice) {
	if notice != nil {
		notice.At = n.now()
	}
	n.mu.Lock()
	n.latest = notice
	n.mu.Unlock()
}
