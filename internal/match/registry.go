// internal/match/registry.go
package match

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kacperw/chesshub/internal/models"
)

// Registry is the authoritative in-memory record of active matches. Exactly
// one session exists per game id while it is ongoing; the entry is evicted
// once the outcome is finalized and both clients have been notified.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.MatchSession
}

// NewRegistry initializes and returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*models.MatchSession),
	}
}

// CreateSession records a new ongoing session for the paired players,
// assigning white and black uniformly at random. The game id is shared with
// the lobby entry that originated the pairing.
func (r *Registry) CreateSession(gameID uuid.UUID, gameType models.GameType, a, b models.Participant) (*models.MatchSession, error) {
	if a.Username == b.Username {
		return nil, fmt.Errorf("%w: a player cannot be paired with themselves", models.ErrInvalidRequest)
	}

	white, black := a, b
	if n, err := rand.Int(rand.Reader, big.NewInt(2)); err == nil && n.Int64() == 0 {
		white, black = b, a
	}

	session := &models.MatchSession{
		GameID:    gameID,
		GameType:  gameType,
		CreatedAt: time.Now().UnixMilli(),
		White:     white,
		Black:     black,
		Ongoing:   true,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[gameID]; ok && existing.Ongoing {
		return nil, fmt.Errorf("session %s already exists", gameID)
	}
	r.sessions[gameID] = session
	log.Printf("match: created session %s (%s vs %s, %s)", gameID, white.Username, black.Username, gameType)

	cp := *session
	return &cp, nil
}

// Get returns a copy of the session, or models.ErrSessionNotFound.
func (r *Registry) Get(gameID uuid.UUID) (*models.MatchSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[gameID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

// MarkReady flips the readiness flag for the given color. The flag is
// monotonic and the call idempotent. It reports whether both sides are now
// ready. Calling it on a nonexistent or already-finalized session fails with
// models.ErrSessionNotFound, which callers must treat as "game already
// ended", not a retryable error.
func (r *Registry) MarkReady(gameID uuid.UUID, color models.Color) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[gameID]
	if !ok || !s.Ongoing {
		return false, models.ErrSessionNotFound
	}
	switch color {
	case models.ColorWhite:
		s.WhiteReady = true
	case models.ColorBlack:
		s.BlackReady = true
	default:
		return false, fmt.Errorf("%w: unknown color %q", models.ErrInvalidRequest, color)
	}
	return s.WhiteReady && s.BlackReady, nil
}

// Finalize records the outcome and marks the session no longer ongoing. The
// entry stays in the registry until Evict so that late callers observe "game
// already ended" rather than "never existed".
func (r *Registry) Finalize(gameID uuid.UUID, outcome *models.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[gameID]
	if !ok || !s.Ongoing {
		return models.ErrSessionNotFound
	}
	s.Ongoing = false
	s.Outcome = outcome
	return nil
}

// Evict discards the session entry. Safe to call on an unknown id.
func (r *Registry) Evict(gameID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, gameID)
}
