package bot

import "sync"

// userLocks serializes all work touching one user's state: turn processing,
// session timeout callbacks, and flow expiry sweeps all go through the same
// per-user mutex. Locks are never removed; the map grows with the number of
// distinct users seen, which is bounded for a single WhatsApp line.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire blocks until the user's lock is held and returns its release func.
func (l *userLocks) acquire(userID string) (release func()) {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
