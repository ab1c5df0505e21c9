// Package scheduler provides the timing primitives for the chatbot engine.
//
// Session inactivity timeouts and the periodic flow-expiry sweep both register
// here instead of spawning ad hoc timers at arbitrary call sites.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// timerEntry tracks one scheduled one-shot timer.
type timerEntry struct {
	timer       *time.Timer
	scheduledAt time.Time
	expiresAt   time.Time
}

// TimerSet schedules cancellable one-shot callbacks using Go's standard time package.
type TimerSet struct {
	timers map[string]*timerEntry
	mu     sync.RWMutex
	nextID int64
}

// NewTimerSet creates an empty TimerSet.
func NewTimerSet() *TimerSet {
	slog.Debug("Creating TimerSet")
	return &TimerSet{
		timers: make(map[string]*timerEntry),
	}
}

// ScheduleAfter schedules fn to run after delay and returns a handle usable
// with Cancel. The callback runs on its own goroutine.
func (t *TimerSet) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	t.mu.Lock()
	t.nextID++
	id := fmt.Sprintf("timer_%d", t.nextID)
	t.mu.Unlock()

	slog.Debug("TimerSet ScheduleAfter", "id", id, "delay", delay)

	now := time.Now()
	timer := time.AfterFunc(delay, func() {
		slog.Debug("TimerSet executing scheduled function", "id", id)
		fn()
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
	})

	t.mu.Lock()
	t.timers[id] = &timerEntry{
		timer:       timer,
		scheduledAt: now,
		expiresAt:   now.Add(delay),
	}
	t.mu.Unlock()

	return id, nil
}

// Cancel stops a scheduled timer by handle. Cancelling an unknown or already
// fired timer is a no-op.
func (t *TimerSet) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.timers[id]; exists {
		entry.timer.Stop()
		delete(t.timers, id)
		slog.Debug("TimerSet Cancel succeeded", "id", id)
		return nil
	}

	slog.Debug("TimerSet Cancel: timer not found", "id", id)
	return nil
}

// ActiveCount returns the number of pending timers.
func (t *TimerSet) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.timers)
}

// Stop cancels all pending timers.
func (t *TimerSet) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	slog.Debug("TimerSet stopping all timers", "count", len(t.timers))
	for _, entry := range t.timers {
		entry.timer.Stop()
	}
	t.timers = make(map[string]*timerEntry)
	slog.Info("TimerSet stopped all timers")
}
