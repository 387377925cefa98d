// internal/lobby/store.go
package lobby

import (
	"context"
	"sync"

	"github.com/kacperw/chesshub/internal/models"
)

// Store indexes waiting players. Implementations must support exact match on
// game type plus a numeric range on rating, and must serve each Search from a
// consistent snapshot (a stale read is tolerated, a half-applied write is
// not). A player has at most one entry at a time, keyed by username.
type Store interface {
	// Put stores a waiting player's entry, replacing any previous entry for
	// the same player.
	Put(ctx context.Context, entry *models.LobbyEntry) error

	// Remove deletes the player's entry. It returns false, not an error, when
	// no entry exists; withdrawal is idempotent.
	Remove(ctx context.Context, username string) (bool, error)

	// Search returns all entries of the game type whose rating lies in
	// [lo, hi]. Order is not guaranteed; callers sort.
	Search(ctx context.Context, gameType models.GameType, lo, hi int) ([]*models.LobbyEntry, error)
}

// MemoryStore keeps lobby entries in a mutex-guarded map. It is the default
// single-process store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*models.LobbyEntry // username -> entry
}

// NewMemoryStore initializes and returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*models.LobbyEntry),
	}
}

func (s *MemoryStore) Put(_ context.Context, entry *models.LobbyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries[entry.Username] = &cp
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[username]; !ok {
		return false, nil
	}
	delete(s.entries, username)
	return true, nil
}

func (s *MemoryStore) Search(_ context.Context, gameType models.GameType, lo, hi int) ([]*models.LobbyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.LobbyEntry
	for _, e := range s.entries {
		if e.GameType != gameType {
			continue
		}
		if e.Rating < lo || e.Rating > hi {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
