// internal/session/coordinator_test.go
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperw/chesshub/internal/clock"
	"github.com/kacperw/chesshub/internal/lobby"
	"github.com/kacperw/chesshub/internal/match"
	"github.com/kacperw/chesshub/internal/models"
	"github.com/kacperw/chesshub/internal/rules"
)

type ratingUpdate struct {
	username string
	gameType models.GameType
	rating   int
}

type stubUsers struct {
	mu      sync.Mutex
	updates []ratingUpdate
}

func (s *stubUsers) UpdateRating(_ context.Context, username string, gameType models.GameType, newRating int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, ratingUpdate{username, gameType, newRating})
	return nil
}

func (s *stubUsers) ratingFor(username string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.updates) - 1; i >= 0; i-- {
		if s.updates[i].username == username {
			return s.updates[i].rating, true
		}
	}
	return 0, false
}

type stubMatches struct {
	mu           sync.Mutex
	created      map[uuid.UUID]string
	notations    map[uuid.UUID]string
	outcomes     map[uuid.UUID]*models.Outcome
	failNotation bool
}

func newStubMatches() *stubMatches {
	return &stubMatches{
		created:   make(map[uuid.UUID]string),
		notations: make(map[uuid.UUID]string),
		outcomes:  make(map[uuid.UUID]*models.Outcome),
	}
}

func (s *stubMatches) CreateMatch(_ context.Context, session *models.MatchSession, notation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created[session.GameID] = notation
	return nil
}

func (s *stubMatches) UpdateNotation(_ context.Context, gameID uuid.UUID, notation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNotation {
		return errors.New("store unavailable")
	}
	s.notations[gameID] = notation
	return nil
}

func (s *stubMatches) RecordOutcome(_ context.Context, gameID uuid.UUID, outcome *models.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[gameID] = outcome
	return nil
}

func (s *stubMatches) notation(gameID uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notations[gameID]
}

func (s *stubMatches) outcome(gameID uuid.UUID) *models.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomes[gameID]
}

type sentEvent struct {
	username string
	event    string
	payload  any
}

type stubNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *stubNotifier) Notify(username, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{username, event, payload})
}

func (n *stubNotifier) count(username, event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.username == username && e.event == event {
			c++
		}
	}
	return c
}

type fixture struct {
	coord    *Coordinator
	registry *match.Registry
	clocks   *clock.Manager
	users    *stubUsers
	matches  *stubMatches
	notifier *stubNotifier
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		registry: match.NewRegistry(),
		users:    &stubUsers{},
		matches:  newStubMatches(),
		notifier: &stubNotifier{},
	}
	f.coord = NewCoordinator(f.registry, rules.NewChessEngine(), f.users, f.matches, f.notifier, cfg, logger)
	f.clocks = clock.NewManager(f.coord.OnTimeout)
	// Real ticks would race the tests; drive expiry explicitly instead.
	f.clocks.Tick = time.Hour
	f.coord.BindClocks(f.clocks)
	return f
}

// pair creates a live blitz session between alice (the queued entry) and bob
// (the searcher), both rated 1200.
func (f *fixture) pair(t *testing.T) *models.MatchSession {
	t.Helper()
	entry := &models.LobbyEntry{
		GameID:    uuid.New(),
		GameType:  models.GameTypeBlitz,
		Username:  "alice",
		AccountID: uuid.New(),
		Rating:    1200,
		CreatedAt: time.Now().UnixMilli(),
	}
	seeker := lobby.Seeker{Username: "bob", AccountID: uuid.New(), GameType: models.GameTypeBlitz, Rating: 1200}
	session, err := f.coord.CreateFromPair(context.Background(), entry, seeker)
	require.NoError(t, err)
	return session
}

// ready marks both sides ready so white's clock is running.
func (f *fixture) ready(t *testing.T, session *models.MatchSession) {
	t.Helper()
	ctx := context.Background()
	_, err := f.coord.StartClock(ctx, session.GameID, models.ColorWhite, session.White.Username)
	require.NoError(t, err)
	_, err = f.coord.StartClock(ctx, session.GameID, models.ColorBlack, session.Black.Username)
	require.NoError(t, err)
}

func TestCreateFromPair(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)

	// Both participants placed, both colors assigned.
	names := []string{session.White.Username, session.Black.Username}
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)

	// Clocks seeded with the blitz allotment, not yet running.
	white, ok := f.clocks.Remaining(session.GameID, models.ColorWhite)
	require.True(t, ok)
	assert.Equal(t, 300, white)
	assert.False(t, f.clocks.IsRunning(session.GameID, models.ColorWhite))

	// Durable record created with the tag header.
	f.matches.mu.Lock()
	header := f.matches.created[session.GameID]
	f.matches.mu.Unlock()
	assert.Contains(t, header, `[White "`+session.White.Username+`"]`)

	assert.Equal(t, 1, f.notifier.count("alice", "found-game"))
	assert.Equal(t, 1, f.notifier.count("bob", "found-game"))
}

func TestStartClockRequiresMatchingIdentity(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)

	_, err := f.coord.StartClock(context.Background(), session.GameID, models.ColorWhite, session.Black.Username)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.coord.StartClock(context.Background(), uuid.New(), models.ColorWhite, session.White.Username)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestClockStartsOnlyWhenBothReady(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)
	ctx := context.Background()

	_, err := f.coord.StartClock(ctx, session.GameID, models.ColorWhite, session.White.Username)
	require.NoError(t, err)
	assert.False(t, f.clocks.IsRunning(session.GameID, models.ColorWhite))

	// Repeating one side's ready call changes nothing.
	_, err = f.coord.StartClock(ctx, session.GameID, models.ColorWhite, session.White.Username)
	require.NoError(t, err)
	assert.False(t, f.clocks.IsRunning(session.GameID, models.ColorWhite))

	_, err = f.coord.StartClock(ctx, session.GameID, models.ColorBlack, session.Black.Username)
	require.NoError(t, err)
	assert.True(t, f.clocks.IsRunning(session.GameID, models.ColorWhite))
	assert.False(t, f.clocks.IsRunning(session.GameID, models.ColorBlack))

	// Redundant ready calls after the start leave the running clock alone.
	_, err = f.coord.StartClock(ctx, session.GameID, models.ColorBlack, session.Black.Username)
	require.NoError(t, err)
	assert.True(t, f.clocks.IsRunning(session.GameID, models.ColorWhite))
}

func TestReplayedReadyCallCannotHijackClocks(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)
	f.ready(t, session)
	ctx := context.Background()

	_, err := f.coord.SubmitMove(ctx, session.GameID, models.ColorWhite, session.White.Username, "e4")
	require.NoError(t, err)
	whiteStarted := f.notifier.count(session.White.Username, "clock-started")

	// With black to move, a duplicated start-clock from either side must not
	// stop black's clock or restart white's.
	_, err = f.coord.StartClock(ctx, session.GameID, models.ColorWhite, session.White.Username)
	require.NoError(t, err)
	_, err = f.coord.StartClock(ctx, session.GameID, models.ColorBlack, session.Black.Username)
	require.NoError(t, err)
	assert.True(t, f.clocks.IsRunning(session.GameID, models.ColorBlack))
	assert.False(t, f.clocks.IsRunning(session.GameID, models.ColorWhite))
	assert.Equal(t, whiteStarted, f.notifier.count(session.White.Username, "clock-started"))

	// Black's in-turn move still lands.
	update, err := f.coord.SubmitMove(ctx, session.GameID, models.ColorBlack, session.Black.Username, "e5")
	require.NoError(t, err)
	assert.Equal(t, "e5", update.Move)
}

func TestMoveWithoutRunningClockRejected(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)

	_, err := f.coord.SubmitMove(context.Background(), session.GameID, models.ColorWhite, session.White.Username, "e4")
	assert.ErrorIs(t, err, models.ErrMoveRejected)
}

func TestMoveFlow(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)
	f.ready(t, session)
	ctx := context.Background()

	update, err := f.coord.SubmitMove(ctx, session.GameID, models.ColorWhite, session.White.Username, "e4")
	require.NoError(t, err)
	assert.Equal(t, "e4", update.Move)
	assert.False(t, update.Terminal)

	// Turn passed: white stopped, black running.
	assert.False(t, f.clocks.IsRunning(session.GameID, models.ColorWhite))
	assert.True(t, f.clocks.IsRunning(session.GameID, models.ColorBlack))

	// Movetext persisted with the header intact.
	assert.Contains(t, f.matches.notation(session.GameID), "e4")

	// White cannot move again out of turn: their clock is not running.
	_, err = f.coord.SubmitMove(ctx, session.GameID, models.ColorWhite, session.White.Username, "d4")
	assert.ErrorIs(t, err, models.ErrMoveRejected)

	// Black moving under white's name is an identity mismatch.
	_, err = f.coord.SubmitMove(ctx, session.GameID, models.ColorBlack, session.White.Username, "e5")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	update, err = f.coord.SubmitMove(ctx, session.GameID, models.ColorBlack, session.Black.Username, "e5")
	require.NoError(t, err)
	assert.Equal(t, "e5", update.Move)
	assert.True(t, f.clocks.IsRunning(session.GameID, models.ColorWhite))
}

func TestIllegalMoveLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)
	f.ready(t, session)

	_, err := f.coord.SubmitMove(context.Background(), session.GameID, models.ColorWhite, session.White.Username, "Ke2")
	assert.ErrorIs(t, err, models.ErrMoveRejected)

	// The mover's clock keeps running and nothing was persisted.
	assert.True(t, f.clocks.IsRunning(session.GameID, models.ColorWhite))
	assert.Empty(t, f.matches.notation(session.GameID))
}

func TestPersistenceFailureLeavesMoveResubmittable(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)
	f.ready(t, session)
	ctx := context.Background()

	f.matches.failNotation = true
	_, err := f.coord.SubmitMove(ctx, session.GameID, models.ColorWhite, session.White.Username, "e4")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrMoveRejected)

	// The match is paused but recoverable: clock restored, same move lands.
	assert.True(t, f.clocks.IsRunning(session.GameID, models.ColorWhite))
	f.matches.failNotation = false
	update, err := f.coord.SubmitMove(ctx, session.GameID, models.ColorWhite, session.White.Username, "e4")
	require.NoError(t, err)
	assert.Equal(t, "e4", update.Move)
}

func TestCheckmateTerminatesMatch(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)
	f.ready(t, session)
	ctx := context.Background()

	moves := []struct {
		color models.Color
		san   string
	}{
		{models.ColorWhite, "f3"},
		{models.ColorBlack, "e5"},
		{models.ColorWhite, "g4"},
		{models.ColorBlack, "Qh4#"},
	}
	var last *MoveUpdate
	for _, mv := range moves {
		var err error
		last, err = f.coord.SubmitMove(ctx, session.GameID, mv.color, session.ParticipantFor(mv.color).Username, mv.san)
		require.NoError(t, err, "move %s", mv.san)
	}

	require.True(t, last.Terminal)
	require.NotNil(t, last.Outcome)
	assert.Equal(t, models.ReasonCheckmate, last.Outcome.Reason)
	require.NotNil(t, last.Outcome.Winner)
	assert.Equal(t, models.ColorBlack, *last.Outcome.Winner)
	assert.Equal(t, "0 - 1", last.Outcome.Result)

	// Equal ratings: K=40 gives a 20 point swing.
	assert.Equal(t, -20, last.Outcome.WhiteRatingDelta)
	assert.Equal(t, 20, last.Outcome.BlackRatingDelta)
	loserRating, ok := f.users.ratingFor(session.White.Username)
	require.True(t, ok)
	assert.Equal(t, 1180, loserRating)
	winnerRating, ok := f.users.ratingFor(session.Black.Username)
	require.True(t, ok)
	assert.Equal(t, 1220, winnerRating)

	assert.Equal(t, last.Outcome, f.matches.outcome(session.GameID))
	assert.Equal(t, 1, f.notifier.count(session.White.Username, "game-ended"))
	assert.Equal(t, 1, f.notifier.count(session.Black.Username, "game-ended"))

	// Session evicted, clocks torn down.
	_, err := f.coord.OngoingGameData(session.GameID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	_, ok = f.clocks.Remaining(session.GameID, models.ColorWhite)
	assert.False(t, ok)

	// Any further action on the dead game reads as not found.
	_, err = f.coord.SubmitMove(ctx, session.GameID, models.ColorWhite, session.White.Username, "a3")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestResign(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)

	// Resigning before the match is underway is refused.
	_, err := f.coord.Resign(context.Background(), session.GameID, models.ColorWhite, session.White.Username)
	assert.ErrorIs(t, err, models.ErrMoveRejected)

	f.ready(t, session)
	outcome, err := f.coord.Resign(context.Background(), session.GameID, models.ColorWhite, session.White.Username)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonResignation, outcome.Reason)
	require.NotNil(t, outcome.Winner)
	assert.Equal(t, models.ColorBlack, *outcome.Winner)
}

func TestDrawNegotiation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)
	f.ready(t, session)
	ctx := context.Background()

	// No offer yet: accept and decline are refused.
	_, err := f.coord.AcceptDraw(ctx, session.GameID, models.ColorBlack, session.Black.Username)
	assert.ErrorIs(t, err, models.ErrMoveRejected)
	err = f.coord.DeclineDraw(ctx, session.GameID, models.ColorBlack, session.Black.Username)
	assert.ErrorIs(t, err, models.ErrMoveRejected)

	require.NoError(t, f.coord.OfferDraw(ctx, session.GameID, models.ColorWhite, session.White.Username))
	assert.Equal(t, 1, f.notifier.count(session.Black.Username, "draw-offered"))

	// A second offer while one is pending is refused.
	err = f.coord.OfferDraw(ctx, session.GameID, models.ColorWhite, session.White.Username)
	assert.ErrorIs(t, err, models.ErrMoveRejected)

	// The offerer cannot accept their own offer.
	_, err = f.coord.AcceptDraw(ctx, session.GameID, models.ColorWhite, session.White.Username)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	outcome, err := f.coord.AcceptDraw(ctx, session.GameID, models.ColorBlack, session.Black.Username)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonDrawAgreed, outcome.Reason)
	assert.Nil(t, outcome.Winner)
	assert.Equal(t, "1 - 1", outcome.Result)
	assert.Zero(t, outcome.WhiteRatingDelta)
	assert.Zero(t, outcome.BlackRatingDelta)
}

func TestDeclineArmsCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeclineCooldown = 50 * time.Millisecond
	f := newFixture(t, cfg)
	session := f.pair(t)
	f.ready(t, session)
	ctx := context.Background()

	require.NoError(t, f.coord.OfferDraw(ctx, session.GameID, models.ColorWhite, session.White.Username))
	require.NoError(t, f.coord.DeclineDraw(ctx, session.GameID, models.ColorBlack, session.Black.Username))
	assert.Equal(t, 1, f.notifier.count(session.White.Username, "draw-declined"))

	// The match continues and re-offers are refused until the cooldown ends.
	data, err := f.coord.OngoingGameData(session.GameID)
	require.NoError(t, err)
	assert.True(t, data.Session.Ongoing)
	err = f.coord.OfferDraw(ctx, session.GameID, models.ColorWhite, session.White.Username)
	assert.ErrorIs(t, err, models.ErrMoveRejected)

	time.Sleep(60 * time.Millisecond)
	assert.NoError(t, f.coord.OfferDraw(ctx, session.GameID, models.ColorWhite, session.White.Username))
}

func TestExpiredOfferCannotBeAccepted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DrawOfferTTL = 10 * time.Millisecond
	f := newFixture(t, cfg)
	session := f.pair(t)
	f.ready(t, session)
	ctx := context.Background()

	require.NoError(t, f.coord.OfferDraw(ctx, session.GameID, models.ColorWhite, session.White.Username))
	time.Sleep(20 * time.Millisecond)
	_, err := f.coord.AcceptDraw(ctx, session.GameID, models.ColorBlack, session.Black.Username)
	assert.ErrorIs(t, err, models.ErrMoveRejected)
}

func TestTimeoutForfeitsExpiredColor(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)
	f.ready(t, session)

	f.coord.OnTimeout(session.GameID, models.ColorWhite)

	outcome := f.matches.outcome(session.GameID)
	require.NotNil(t, outcome)
	assert.Equal(t, models.ReasonTimeout, outcome.Reason)
	require.NotNil(t, outcome.Winner)
	assert.Equal(t, models.ColorBlack, *outcome.Winner)

	// The signal is idempotent against a dead game.
	f.coord.OnTimeout(session.GameID, models.ColorWhite)
	assert.Equal(t, 1, f.notifier.count(session.White.Username, "game-ended"))
}

func TestOngoingGameData(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	session := f.pair(t)
	f.ready(t, session)
	ctx := context.Background()

	_, err := f.coord.SubmitMove(ctx, session.GameID, models.ColorWhite, session.White.Username, "e4")
	require.NoError(t, err)

	data, err := f.coord.OngoingGameData(session.GameID)
	require.NoError(t, err)
	assert.Equal(t, "e4", data.Notation)
	assert.Equal(t, 300, data.White)
	assert.Equal(t, 300, data.Black)
	assert.False(t, data.WhiteRunning)
	assert.True(t, data.BlackRunning)
}
