package installer

import "sync/atomic"

// SessionGuard enforces that at most one session of a kind is active.
// Only the caller whose TryAcquire succeeded may Release.
type SessionGuard struct {
	active atomic.Bool
}

// TryAcquire marks the guard active. It reports false if it already was.
func (g *SessionGuard) TryAcquire() bool {
	return g.active.CompareAndSwap(false, true)
}

// Release clears the active flag.
func (g *SessionGuard) Release() {
	g.active.Store(false)
}

// Active reports whether a session currently holds the guard.
func (g *SessionGuard) Active() bool {
	return g.active.Load()
}
