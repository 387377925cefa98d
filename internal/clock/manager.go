// internal/clock/manager.go
package clock

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kacperw/chesshub/internal/models"
)

// TimeoutFunc is invoked exactly once when a running clock reaches zero.
// It is called on its own goroutine so implementations may freely call back
// into the Manager (Stop, Teardown) without deadlocking.
type TimeoutFunc func(gameID uuid.UUID, color models.Color)

type key struct {
	gameID uuid.UUID
	color  models.Color
}

// clockState is one side's countdown for one match.
type clockState struct {
	remaining int
	running   bool
	expired   bool          // set when the clock has fired its one timeout
	cancel    chan struct{} // closes to end the tick goroutine
}

// Manager owns every live countdown. Each running (match, color) pair has one
// goroutine decrementing its remaining seconds once per Tick; at most one of a
// match's two clocks runs at a time because the coordinator only starts the
// side to move.
type Manager struct {
	mu     sync.Mutex
	clocks map[key]*clockState

	onTimeout TimeoutFunc

	// Tick is the wall-clock interval of one decrement. Tests shrink it;
	// production leaves the default of one second.
	Tick time.Duration
}

// NewManager returns a Manager that reports expiries to onTimeout.
func NewManager(onTimeout TimeoutFunc) *Manager {
	return &Manager{
		clocks:    make(map[key]*clockState),
		onTimeout: onTimeout,
		Tick:      time.Second,
	}
}

// Seed creates both colors' clocks for a match with the game type's base
// allotment. It returns false, making no state change, for an unrecognized
// game type.
func (m *Manager) Seed(gameID uuid.UUID, gameType models.GameType) bool {
	base := gameType.BaseSeconds()
	if base == 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clocks[key{gameID, models.ColorWhite}] = &clockState{remaining: base}
	m.clocks[key{gameID, models.ColorBlack}] = &clockState{remaining: base}
	return true
}

// Start begins the countdown for a match+color and returns the remaining
// seconds. If the clock is already running no second countdown is created and
// the current remaining value is returned unchanged. Starting one side halts
// the other, so a match never has two live countdowns. The boolean is false
// if no seeded clock exists for the pair.
func (m *Manager) Start(gameID uuid.UUID, color models.Color) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clocks[key{gameID, color}]
	if !ok {
		return 0, false
	}
	if c.running || c.expired || c.remaining <= 0 {
		return c.remaining, true
	}
	if opp, ok := m.clocks[key{gameID, color.Opponent()}]; ok {
		m.haltLocked(opp)
	}
	c.running = true
	c.cancel = make(chan struct{})
	go m.run(key{gameID, color}, c.cancel)
	return c.remaining, true
}

// Stop halts the countdown, a safe no-op if none is running, and returns the
// remaining seconds. The boolean is false if no seeded clock exists.
func (m *Manager) Stop(gameID uuid.UUID, color models.Color) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clocks[key{gameID, color}]
	if !ok {
		return 0, false
	}
	m.haltLocked(c)
	return c.remaining, true
}

// IsRunning reports whether a live countdown exists for the match+color.
func (m *Manager) IsRunning(gameID uuid.UUID, color models.Color) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clocks[key{gameID, color}]
	return ok && c.running
}

// Remaining returns the remaining seconds for the match+color. The boolean is
// false if no seeded clock exists.
func (m *Manager) Remaining(gameID uuid.UUID, color models.Color) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clocks[key{gameID, color}]
	if !ok {
		return 0, false
	}
	return c.remaining, true
}

// Teardown stops and discards both colors' clocks unconditionally. Safe to
// call multiple times; racing termination paths may both attempt cleanup.
func (m *Manager) Teardown(gameID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, color := range []models.Color{models.ColorWhite, models.ColorBlack} {
		k := key{gameID, color}
		if c, ok := m.clocks[k]; ok {
			m.haltLocked(c)
			delete(m.clocks, k)
		}
	}
}

// haltLocked stops a running countdown. Caller holds m.mu.
func (m *Manager) haltLocked(c *clockState) {
	if c.running {
		c.running = false
		if c.cancel != nil {
			close(c.cancel)
			c.cancel = nil
		}
	}
}

// run is the tick loop for one live countdown. It exits when the clock is
// stopped, torn down, or expires.
func (m *Manager) run(k key, cancel <-chan struct{}) {
	t := time.NewTicker(m.Tick)
	defer t.Stop()
	for {
		select {
		case <-cancel:
			return
		case <-t.C:
			if !m.step(k) {
				return
			}
		}
	}
}

// step applies one decrement to the clock and reports whether the tick loop
// should continue. On reaching zero it fires the one-shot timeout.
func (m *Manager) step(k key) bool {
	m.mu.Lock()
	c, ok := m.clocks[k]
	if !ok || !c.running {
		m.mu.Unlock()
		return false
	}
	c.remaining--
	if c.remaining > 0 {
		m.mu.Unlock()
		return true
	}
	c.remaining = 0
	c.running = false
	c.cancel = nil
	fire := !c.expired
	c.expired = true
	cb := m.onTimeout
	m.mu.Unlock()

	if fire && cb != nil {
		log.Printf("clock: %s/%s expired", k.gameID, k.color)
		go cb(k.gameID, k.color)
	}
	return false
}
