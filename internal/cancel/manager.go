// Package cancel implements the per-request cancellation subsystem: a
// manager that tracks in-flight request IDs, a per-request edge-triggered
// signal, and cleanup callbacks run at request end.
package cancel

import (
	"fmt"
	"log/slog"
	"sync"
)

// Cancelled is the sentinel error raised when a tracked request's signal
// was set by the time its scope exits. Reason is the string a cancel()
// caller supplied.
type Cancelled struct {
	Reason string
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("Cancelled: %s", e.Reason)
}

type slot struct {
	signal   *Signal
	cleanups []func()
	reason   string
}

// Manager tracks cancellation slots keyed by request ID. All map mutations
// happen under a single mutex; cleanup callbacks always run after the slot
// has been detached from the map, outside the lock.
type Manager struct {
	mu    sync.Mutex
	slots map[uint64]*slot
	log   *slog.Logger
}

// NewManager returns an empty Manager. log may be nil, in which case
// slog.Default() is used for the warnings the contract calls for.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{slots: make(map[uint64]*slot), log: log}
}

// Register creates a slot for id and returns its signal. Re-registering a
// live id logs a warning and replaces the slot, per spec.
func (m *Manager) Register(id uint64) *Signal {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.slots[id]; exists {
		m.log.Warn("cancellation slot re-registered while live", "request_id", id)
	}
	s := &slot{signal: NewSignal()}
	s.signal.addCleanup = func(fn func()) { m.AddCleanup(id, fn) }
	s.signal.reasonFn = func() string {
		m.mu.Lock()
		defer m.mu.Unlock()
		return s.reason
	}
	m.slots[id] = s
	return s.signal
}

// Unregister removes the slot for id and runs its cleanup callbacks, in
// registration order, outside the lock. A panicking callback is logged and
// does not prevent subsequent callbacks from running.
func (m *Manager) Unregister(id uint64) {
	m.mu.Lock()
	s, ok := m.slots[id]
	if ok {
		delete(m.slots, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	m.runCleanups(id, s.cleanups)
}

func (m *Manager) runCleanups(id uint64, cleanups []func()) {
	for _, fn := range cleanups {
		m.runOneCleanup(id, fn)
	}
}

func (m *Manager) runOneCleanup(id uint64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("cleanup callback panicked", "request_id", id, "panic", r)
		}
	}()
	fn()
}

// Cancel sets the signal for id if a slot exists and it isn't already set.
// Returns true only on the call that actually transitions the signal.
func (m *Manager) Cancel(id uint64, reason string) bool {
	m.mu.Lock()
	s, ok := m.slots[id]
	if !ok {
		m.mu.Unlock()
		m.log.Warn("cancel of unknown request id", "request_id", id, "reason", reason)
		return false
	}
	first := s.signal.Set()
	if first {
		s.reason = reason
	}
	m.mu.Unlock()
	return first
}

// reasonFor returns the stored cancellation reason for id, if any.
func (m *Manager) reasonFor(id uint64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[id]; ok {
		return s.reason
	}
	return ""
}

// IsCancelled reports whether id's signal is set, or false if id is
// unknown.
func (m *Manager) IsCancelled(id uint64) bool {
	m.mu.Lock()
	s, ok := m.slots[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return s.signal.IsSet()
}

// AddCleanup appends fn to id's cleanup list. No-op if the slot is gone.
func (m *Manager) AddCleanup(id uint64, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return
	}
	s.cleanups = append(s.cleanups, fn)
}

// Track registers id, invokes body with the resulting signal, and always
// unregisters on return. If body returns nil but the signal was set by the
// time Track exits, a *Cancelled error is returned instead — mirroring the
// Python implementation's scoped track_request context manager.
func (m *Manager) Track(id uint64, body func(sig *Signal) error) error {
	sig := m.Register(id)
	defer m.Unregister(id)

	err := body(sig)
	if err == nil && sig.IsSet() {
		return &Cancelled{Reason: m.reasonFor(id)}
	}
	return err
}

// CancelAll cancels every currently live slot with the given reason. Used
// when a connection closes mid-handler.
func (m *Manager) CancelAll(reason string) {
	m.mu.Lock()
	ids := make([]uint64, 0, len(m.slots))
	for id := range m.slots {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Cancel(id, reason)
	}
}
