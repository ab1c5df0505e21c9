// Package session owns the per-user session lifecycle: creation and refresh on
// every inbound message, inactivity timeout, and explicit close. Teardown
// always cascades to memory and flow state so the three never diverge.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aftorrescurrea/chatbot-sub000/internal/flow"
	"github.com/aftorrescurrea/chatbot-sub000/internal/memory"
	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
	"github.com/aftorrescurrea/chatbot-sub000/internal/scheduler"
)

// DefaultTimeout is the default inactivity timeout for a session.
const DefaultTimeout = 5 * time.Minute

// User-facing notices sent on session end.
const (
	timeoutNotice = "Tu sesión ha finalizado por inactividad. Escríbenos de nuevo cuando quieras continuar. 👋"
	closeNotice   = "Gracias por contactarnos. %s ¡Hasta pronto! 👋"
)

// Sender sends a text message to an address.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// LockFunc acquires the per-user turn lock and returns its release function.
// The timeout path uses it so a firing timer never races an in-flight turn.
type LockFunc func(userID string) (release func())

// Manager tracks at most one live session per user identifier.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session

	timeout time.Duration
	timers  *scheduler.TimerSet
	sender  Sender
	mem     *memory.Store
	engine  *flow.Engine
	lock    LockFunc
}

// NewManager creates a session manager. A non-positive timeout falls back to
// DefaultTimeout. The lock function may be nil until SetLock is called.
func NewManager(timeout time.Duration, timers *scheduler.TimerSet, sender Sender, mem *memory.Store, engine *flow.Engine) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	slog.Debug("Creating session manager", "timeout", timeout)
	return &Manager{
		sessions: make(map[string]*models.Session),
		timeout:  timeout,
		timers:   timers,
		sender:   sender,
		mem:      mem,
		engine:   engine,
		lock:     func(string) func() { return func() {} },
	}
}

// SetLock installs the per-user lock shared with the turn orchestrator.
func (m *Manager) SetLock(lock LockFunc) {
	if lock != nil {
		m.lock = lock
	}
}

// Touch creates or refreshes the user's session and atomically reschedules its
// inactivity timer. Safe to call once per inbound message.
func (m *Manager) Touch(userID, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	sess, ok := m.sessions[userID]
	if !ok {
		sess = &models.Session{UserID: userID, StartTime: now}
		m.sessions[userID] = sess
		slog.Info("Session started", "userID", userID)
	}
	sess.LastActivity = now
	if address != "" {
		sess.Address = address
	}

	if sess.TimerID != "" {
		m.timers.Cancel(sess.TimerID)
	}
	id, err := m.timers.ScheduleAfter(m.timeout, func() { m.onTimeout(userID) })
	if err != nil {
		slog.Error("Session timer scheduling failed", "userID", userID, "error", err)
		return
	}
	sess.TimerID = id
}

// onTimeout fires when a session's inactivity timer expires. It takes the
// per-user lock, verifies the timer was not superseded by a later Touch, sends
// the timeout notice, and tears the session down.
func (m *Manager) onTimeout(userID string) {
	release := m.lock(userID)
	defer release()

	m.mu.Lock()
	sess, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	// A Touch between the timer firing and this lock acquisition rescheduled
	// the timeout; this fire is stale.
	if time.Since(sess.LastActivity) < m.timeout {
		m.mu.Unlock()
		slog.Debug("Session timeout superseded by recent activity", "userID", userID)
		return
	}
	address := sess.Address
	m.mu.Unlock()

	slog.Info("Session timed out", "userID", userID)
	if address != "" {
		if err := m.sender.SendMessage(context.Background(), address, timeoutNotice); err != nil {
			slog.Warn("Failed to send timeout notice", "userID", userID, "error", err)
		}
	}
	m.teardown(userID)
}

// Close sends a closing notice and tears the session down. Closing a user with
// no session logs a warning and does nothing else.
func (m *Manager) Close(ctx context.Context, userID, reason string) {
	m.mu.RLock()
	sess, ok := m.sessions[userID]
	var address string
	if ok {
		address = sess.Address
	}
	m.mu.RUnlock()

	if !ok {
		slog.Warn("Session Close: no session for user", "userID", userID)
		return
	}

	notice := fmt.Sprintf(closeNotice, reason)
	if address != "" {
		if err := m.sender.SendMessage(ctx, address, notice); err != nil {
			slog.Warn("Failed to send closing notice", "userID", userID, "error", err)
		}
	}
	slog.Info("Session closed", "userID", userID, "reason", reason)
	m.teardown(userID)
}

// CloseSilent tears the session down without sending a closing notice. The
// orchestrator uses it when the turn's outgoing reply already said goodbye.
func (m *Manager) CloseSilent(userID string) {
	m.mu.RLock()
	_, ok := m.sessions[userID]
	m.mu.RUnlock()

	if !ok {
		return
	}
	slog.Info("Session closed silently", "userID", userID)
	m.teardown(userID)
}

// teardown removes the session, its memory, and any active flow together.
// Idempotent: running it twice leaves the same end state.
func (m *Manager) teardown(userID string) {
	m.mu.Lock()
	if sess, ok := m.sessions[userID]; ok {
		if sess.TimerID != "" {
			m.timers.Cancel(sess.TimerID)
		}
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	m.mem.Clear(userID)
	m.engine.Clear(userID)
	slog.Debug("Session teardown complete", "userID", userID)
}

// Active reports whether the user has a live session.
func (m *Manager) Active(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[userID]
	return ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stop cancels all session timers (shutdown path).
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		if sess.TimerID != "" {
			m.timers.Cancel(sess.TimerID)
		}
	}
	slog.Info("Session manager stopped", "sessions", len(m.sessions))
}
