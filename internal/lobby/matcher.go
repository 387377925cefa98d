// internal/lobby/matcher.go
package lobby

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kacperw/chesshub/internal/models"
)

// UserSource resolves the requesting player's account and current ratings.
// A nil user with a nil error means the username is unknown.
type UserSource interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// SessionCreator turns a matched pair into a live match session. The matcher
// invokes it inside its pairing critical section so the removed lobby entry
// and the created session are never observable half-done.
type SessionCreator interface {
	CreateFromPair(ctx context.Context, opponent *models.LobbyEntry, seeker Seeker) (*models.MatchSession, error)
}

// Seeker is the searching player's side of a pairing attempt.
type Seeker struct {
	Username  string
	AccountID uuid.UUID
	GameType  models.GameType
	Rating    int
}

// Result is the outcome of FindOrQueue: either the requester was enqueued
// (Session nil, Entry is their new lobby entry) or paired (Session set, Entry
// is the opponent's consumed lobby entry).
type Result struct {
	Entry   *models.LobbyEntry
	Session *models.MatchSession
}

// Paired reports whether a match was made.
func (r *Result) Paired() bool { return r.Session != nil }

// MatcherConfig holds the rating-window widening schedule. The constants are
// a fairness policy, not a law; they are configuration so product can tune
// them.
type MatcherConfig struct {
	InitialWindow int
	WidenStep     int
	MaxWindow     int
}

// DefaultMatcherConfig mirrors the long-standing schedule: start at ±10,
// widen by 30 until ±200.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{InitialWindow: 10, WidenStep: 30, MaxWindow: 200}
}

// Matcher pairs searching players with waiting ones by rating proximity.
type Matcher struct {
	store    Store
	users    UserSource
	sessions SessionCreator
	cfg      MatcherConfig
	logger   *logrus.Logger

	// mu serializes pairing attempts so one waiting entry can never be
	// consumed by two concurrent searches.
	mu sync.Mutex
}

// NewMatcher builds a Matcher over the given store and collaborators.
func NewMatcher(store Store, users UserSource, sessions SessionCreator, cfg MatcherConfig, logger *logrus.Logger) *Matcher {
	return &Matcher{
		store:    store,
		users:    users,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// FindOrQueue looks for a compatible waiting opponent for the given player.
// If one is found within the widening rating window, the opponent's entry is
// consumed and a match session is created; otherwise the player is enqueued.
// Unknown usernames and unrecognized game types fail with
// models.ErrInvalidRequest and make no state change.
func (m *Matcher) FindOrQueue(ctx context.Context, username string, gameType models.GameType) (*Result, error) {
	if !gameType.Valid() {
		return nil, fmt.Errorf("%w: unknown game type %q", models.ErrInvalidRequest, gameType)
	}
	user, err := m.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("look up user %q: %w", username, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown user %q", models.ErrInvalidRequest, username)
	}

	seeker := Seeker{
		Username:  user.Username,
		AccountID: user.ID,
		GameType:  gameType,
		Rating:    user.RatingFor(gameType),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	candidates, err := m.search(ctx, seeker)
	if err != nil {
		return nil, err
	}

	// Longest-waiting candidate first; fairness, not performance.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt < candidates[j].CreatedAt
	})

	for _, cand := range candidates {
		if cand.Username == seeker.Username {
			continue // a player never pairs with their own stale entry
		}
		removed, err := m.store.Remove(ctx, cand.Username)
		if err != nil {
			return nil, err
		}
		if !removed {
			continue // another instance consumed it first
		}
		session, err := m.sessions.CreateFromPair(ctx, cand, seeker)
		if err != nil {
			// Best effort: put the opponent back so they keep waiting.
			if putErr := m.store.Put(ctx, cand); putErr != nil {
				m.logger.WithError(putErr).Warnf("failed to restore lobby entry for %s", cand.Username)
			}
			return nil, fmt.Errorf("create session for pair: %w", err)
		}
		m.logger.WithFields(logrus.Fields{
			"game_id":   session.GameID,
			"game_type": gameType,
			"white":     session.White.Username,
			"black":     session.Black.Username,
		}).Info("paired players")
		return &Result{Entry: cand, Session: session}, nil
	}

	entry := &models.LobbyEntry{
		GameID:    uuid.New(),
		GameType:  gameType,
		Username:  seeker.Username,
		AccountID: seeker.AccountID,
		Rating:    seeker.Rating,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := m.store.Put(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueue lobby entry: %w", err)
	}
	m.logger.WithFields(logrus.Fields{
		"game_id":   entry.GameID,
		"game_type": gameType,
		"username":  seeker.Username,
	}).Info("queued player")
	return &Result{Entry: entry}, nil
}

// Withdraw removes the player's waiting entry, if any.
func (m *Matcher) Withdraw(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Remove(ctx, username)
}

// search runs the widening window schedule and returns the first non-empty
// candidate set.
func (m *Matcher) search(ctx context.Context, seeker Seeker) ([]*models.LobbyEntry, error) {
	for window := m.cfg.InitialWindow; window <= m.cfg.MaxWindow; window += m.cfg.WidenStep {
		found, err := m.store.Search(ctx, seeker.GameType, seeker.Rating-window, seeker.Rating+window)
		if err != nil {
			return nil, fmt.Errorf("search lobby: %w", err)
		}
		if len(found) > 0 {
			return found, nil
		}
	}
	return nil, nil
}
