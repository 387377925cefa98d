// internal/clock/manager_test.go
package clock

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperw/chesshub/internal/models"
)

// timeoutRecorder collects timeout signals instead of driving a coordinator.
type timeoutRecorder struct {
	mu    sync.Mutex
	fired []key
}

func (r *timeoutRecorder) record(gameID uuid.UUID, color models.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, key{gameID, color})
}

func (r *timeoutRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

// newTestManager returns a manager whose tick goroutines never fire on their
// own, so tests drive decrements deterministically through step.
func newTestManager(rec *timeoutRecorder) *Manager {
	m := NewManager(rec.record)
	m.Tick = time.Hour
	return m
}

func TestSeedUnknownGameType(t *testing.T) {
	m := newTestManager(&timeoutRecorder{})
	assert.False(t, m.Seed(uuid.New(), models.GameType("correspondence")))
}

func TestSeedSetsBaseSeconds(t *testing.T) {
	m := newTestManager(&timeoutRecorder{})
	gameID := uuid.New()
	require.True(t, m.Seed(gameID, models.GameTypeBlitz))

	w, ok := m.Remaining(gameID, models.ColorWhite)
	require.True(t, ok)
	b, ok := m.Remaining(gameID, models.ColorBlack)
	require.True(t, ok)
	assert.Equal(t, 300, w)
	assert.Equal(t, 300, b)
}

func TestStartUnknownMatch(t *testing.T) {
	m := newTestManager(&timeoutRecorder{})
	_, ok := m.Start(uuid.New(), models.ColorWhite)
	assert.False(t, ok)
}

func TestStartIsIdempotent(t *testing.T) {
	m := newTestManager(&timeoutRecorder{})
	gameID := uuid.New()
	require.True(t, m.Seed(gameID, models.GameTypeBullet))

	first, ok := m.Start(gameID, models.ColorWhite)
	require.True(t, ok)
	second, ok := m.Start(gameID, models.ColorWhite)
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.True(t, m.IsRunning(gameID, models.ColorWhite))

	// A decrement observed after the second Start proves only one countdown
	// exists: two live countdowns would decrement twice per driven step.
	m.step(key{gameID, models.ColorWhite})
	rem, _ := m.Remaining(gameID, models.ColorWhite)
	assert.Equal(t, first-1, rem)
}

func TestStopIsSafeNoop(t *testing.T) {
	m := newTestManager(&timeoutRecorder{})
	gameID := uuid.New()
	require.True(t, m.Seed(gameID, models.GameTypeRapid))

	rem, ok := m.Stop(gameID, models.ColorBlack)
	require.True(t, ok)
	assert.Equal(t, 900, rem)

	// Stopping twice is not an error either.
	rem, ok = m.Stop(gameID, models.ColorBlack)
	require.True(t, ok)
	assert.Equal(t, 900, rem)
}

func TestExpiryFiresExactlyOnce(t *testing.T) {
	rec := &timeoutRecorder{}
	m := newTestManager(rec)
	gameID := uuid.New()
	require.True(t, m.Seed(gameID, models.GameTypeBullet))

	_, ok := m.Start(gameID, models.ColorWhite)
	require.True(t, ok)

	k := key{gameID, models.ColorWhite}
	for i := 0; i < 181; i++ {
		m.step(k)
	}

	// 180 seconds seeded, so the timeout lands on tick 180 and the 181st
	// tick is a no-op on an already-expired clock.
	rem, _ := m.Remaining(gameID, models.ColorWhite)
	assert.Equal(t, 0, rem)
	assert.False(t, m.IsRunning(gameID, models.ColorWhite))
	assert.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)

	// Restarting an expired clock must not rearm the timeout.
	rem, ok = m.Start(gameID, models.ColorWhite)
	require.True(t, ok)
	assert.Equal(t, 0, rem)
	assert.False(t, m.IsRunning(gameID, models.ColorWhite))
	assert.Equal(t, 1, rec.count())
}

func TestMutualExclusionUnderRandomInterleaving(t *testing.T) {
	m := newTestManager(&timeoutRecorder{})
	gameID := uuid.New()
	require.True(t, m.Seed(gameID, models.GameTypeRapid))

	rng := rand.New(rand.NewSource(42))
	colors := []models.Color{models.ColorWhite, models.ColorBlack}
	for i := 0; i < 500; i++ {
		c := colors[rng.Intn(2)]
		if rng.Intn(2) == 0 {
			m.Start(gameID, c)
		} else {
			m.Stop(gameID, c)
		}
		white := m.IsRunning(gameID, models.ColorWhite)
		black := m.IsRunning(gameID, models.ColorBlack)
		require.False(t, white && black,
			"both clocks running after op %d", i)
	}
	m.Teardown(gameID)
}

func TestTeardownIsIdempotent(t *testing.T) {
	m := newTestManager(&timeoutRecorder{})
	gameID := uuid.New()
	require.True(t, m.Seed(gameID, models.GameTypeBlitz))
	_, ok := m.Start(gameID, models.ColorWhite)
	require.True(t, ok)

	m.Teardown(gameID)
	m.Teardown(gameID)

	_, ok = m.Remaining(gameID, models.ColorWhite)
	assert.False(t, ok)
	_, ok = m.Start(gameID, models.ColorWhite)
	assert.False(t, ok)
}

func TestRealTickDecrements(t *testing.T) {
	rec := &timeoutRecorder{}
	m := NewManager(rec.record)
	m.Tick = 5 * time.Millisecond

	gameID := uuid.New()
	require.True(t, m.Seed(gameID, models.GameTypeBullet))
	start, ok := m.Start(gameID, models.ColorBlack)
	require.True(t, ok)
	require.Equal(t, 180, start)

	assert.Eventually(t, func() bool {
		rem, _ := m.Remaining(gameID, models.ColorBlack)
		return rem < start
	}, time.Second, time.Millisecond)

	m.Teardown(gameID)
}
