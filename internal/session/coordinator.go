// internal/session/coordinator.go
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kacperw/chesshub/internal/clock"
	"github.com/kacperw/chesshub/internal/lobby"
	"github.com/kacperw/chesshub/internal/match"
	"github.com/kacperw/chesshub/internal/models"
	"github.com/kacperw/chesshub/internal/rating"
	"github.com/kacperw/chesshub/internal/rules"
)

// IdentityStore persists rating movements for terminated matches.
type IdentityStore interface {
	UpdateRating(ctx context.Context, username string, gameType models.GameType, newRating int, asOf time.Time) error
}

// MatchStore is the durable record of matches. The in-memory session is
// evicted after termination; this store keeps the game forever.
type MatchStore interface {
	CreateMatch(ctx context.Context, session *models.MatchSession, notation string) error
	UpdateNotation(ctx context.Context, gameID uuid.UUID, notation string) error
	RecordOutcome(ctx context.Context, gameID uuid.UUID, outcome *models.Outcome) error
}

// Config holds the coordinator's negotiation windows.
type Config struct {
	DrawOfferTTL    time.Duration
	DeclineCooldown time.Duration
}

// DefaultConfig returns the production negotiation windows.
func DefaultConfig() Config {
	return Config{
		DrawOfferTTL:    20 * time.Minute,
		DeclineCooldown: 30 * time.Second,
	}
}

// drawOffer is the ephemeral per-match draw negotiation state.
type drawOffer struct {
	offerer   models.Color
	expiresAt time.Time
}

// gameState is the coordinator's volatile per-match state. Its mutex is the
// single owner of the match: every operation for one game id serializes on
// it, while different games proceed fully in parallel.
type gameState struct {
	mu sync.Mutex

	header   string // PGN tag header recorded at creation
	notation string // movetext consumed and produced by the rules engine

	draw         *drawOffer
	declineUntil time.Time
}

// Coordinator ties move submission, clock start/stop, draw negotiation,
// resignation, and timeout into one consistent per-match protocol.
type Coordinator struct {
	registry *match.Registry
	clocks   *clock.Manager
	engine   rules.Engine
	users    IdentityStore
	matches  MatchStore
	notifier Notifier
	logger   *logrus.Logger
	cfg      Config
	finished FinishedSink

	mu    sync.Mutex
	games map[uuid.UUID]*gameState
}

// NewCoordinator wires the coordinator over its collaborators. Call
// BindClocks afterwards with a clock manager whose timeout func is this
// coordinator's OnTimeout.
func NewCoordinator(registry *match.Registry, engine rules.Engine, users IdentityStore, matches MatchStore, notifier Notifier, cfg Config, logger *logrus.Logger) *Coordinator {
	return &Coordinator{
		registry: registry,
		engine:   engine,
		users:    users,
		matches:  matches,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		games:    make(map[uuid.UUID]*gameState),
	}
}

// BindClocks attaches the clock manager. Separate from the constructor
// because the manager's timeout callback points back at the coordinator.
func (c *Coordinator) BindClocks(m *clock.Manager) {
	c.clocks = m
}

// FinishedSink receives every terminated match after its outcome is recorded.
// Best effort, fire-and-forget.
type FinishedSink func(ctx context.Context, session *models.MatchSession, outcome *models.Outcome)

// SetFinishedSink registers an optional downstream hook, e.g. the finished
// match queue. Call before serving traffic.
func (c *Coordinator) SetFinishedSink(sink FinishedSink) {
	c.finished = sink
}

// state returns the volatile per-match state, or nil if the game is not live.
func (c *Coordinator) state(gameID uuid.UUID) *gameState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.games[gameID]
}

// CreateFromPair implements lobby.SessionCreator: it atomically turns a
// consumed lobby entry plus the searching player into a live session with
// seeded clocks and a durable match record.
func (c *Coordinator) CreateFromPair(ctx context.Context, opponent *models.LobbyEntry, seeker lobby.Seeker) (*models.MatchSession, error) {
	session, err := c.registry.CreateSession(opponent.GameID, opponent.GameType,
		models.Participant{Username: opponent.Username, AccountID: opponent.AccountID, Rating: opponent.Rating},
		models.Participant{Username: seeker.Username, AccountID: seeker.AccountID, Rating: seeker.Rating},
	)
	if err != nil {
		return nil, err
	}

	if !c.clocks.Seed(session.GameID, session.GameType) {
		c.registry.Evict(session.GameID)
		return nil, fmt.Errorf("%w: unknown game type %q", models.ErrInvalidRequest, session.GameType)
	}

	header := rules.SeedPGN(
		session.White.Username, session.Black.Username,
		session.White.Rating, session.Black.Rating,
		time.Now(),
	)
	if err := c.matches.CreateMatch(ctx, session, header); err != nil {
		c.clocks.Teardown(session.GameID)
		c.registry.Evict(session.GameID)
		return nil, fmt.Errorf("create durable match: %w", err)
	}

	c.mu.Lock()
	c.games[session.GameID] = &gameState{header: header}
	c.mu.Unlock()

	for _, color := range []models.Color{models.ColorWhite, models.ColorBlack} {
		p := session.ParticipantFor(color)
		c.notifier.Notify(p.Username, "found-game", map[string]any{
			"game_id":   session.GameID,
			"game_type": session.GameType,
			"color":     color,
			"opponent":  session.ParticipantFor(color.Opponent()).Username,
			"seconds":   session.GameType.BaseSeconds(),
		})
	}
	return session, nil
}

// StartClock marks the caller's side ready and, once both sides are, moves
// the match to InProgress and starts white's clock. The requester identity
// must match the session's stored identity for the color. It returns the
// caller's remaining seconds.
func (c *Coordinator) StartClock(ctx context.Context, gameID uuid.UUID, color models.Color, username string) (int, error) {
	st := c.state(gameID)
	if st == nil {
		return 0, models.ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := c.authorized(gameID, color, username)
	if err != nil {
		return 0, err
	}

	both, err := c.registry.MarkReady(gameID, color)
	if err != nil {
		return 0, err
	}
	// MarkReady keeps reporting both-ready on replays, so gate the start on
	// the clock protocol not having begun: once either clock has run, a
	// duplicated ready message must not touch the turn state.
	idle := !c.clocks.IsRunning(gameID, models.ColorWhite) && !c.clocks.IsRunning(gameID, models.ColorBlack)
	if both && idle {
		// White moves first by rule.
		remaining, ok := c.clocks.Start(gameID, models.ColorWhite)
		if !ok {
			return 0, models.ErrSessionNotFound
		}
		for _, side := range []models.Color{models.ColorWhite, models.ColorBlack} {
			c.notifier.Notify(session.ParticipantFor(side).Username, "clock-started", map[string]any{
				"game_id": gameID,
				"color":   models.ColorWhite,
				"seconds": remaining,
			})
		}
	}

	remaining, ok := c.clocks.Remaining(gameID, color)
	if !ok {
		return 0, models.ErrSessionNotFound
	}
	return remaining, nil
}

// MoveUpdate reports the result of an accepted move.
type MoveUpdate struct {
	Move     string // canonical SAN actually recorded
	Terminal bool
	Outcome  *models.Outcome // set when Terminal
	White    int             // white seconds remaining after the move
	Black    int             // black seconds remaining after the move
}

// SubmitMove validates and applies one move for the given color. The mover's
// clock must be running; a move without a running clock is the timing cheat
// the guard exists for. On a legal non-terminal move the opponent's clock is
// started; on a terminal one the match is finalized.
func (c *Coordinator) SubmitMove(ctx context.Context, gameID uuid.UUID, color models.Color, username, moveText string) (*MoveUpdate, error) {
	st := c.state(gameID)
	if st == nil {
		return nil, models.ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := c.authorized(gameID, color, username)
	if err != nil {
		return nil, err
	}

	if !c.clocks.IsRunning(gameID, color) {
		return nil, fmt.Errorf("%w: clock not running", models.ErrMoveRejected)
	}

	res, err := c.engine.ApplyMove(ctx, st.notation, moveText)
	if err != nil {
		return nil, fmt.Errorf("rules engine: %w", err)
	}
	if !res.Legal {
		return nil, fmt.Errorf("%w: illegal move %q", models.ErrMoveRejected, moveText)
	}

	// The clock may have expired while the engine ran. The timeout signal is
	// already on its way; it wins, the move does not.
	if !c.clocks.IsRunning(gameID, color) {
		return nil, fmt.Errorf("%w: clock expired", models.ErrMoveRejected)
	}
	c.clocks.Stop(gameID, color)

	if err := c.matches.UpdateNotation(ctx, gameID, st.header+res.Notation); err != nil {
		// Leave the match paused with nothing applied; the same move can be
		// resubmitted once persistence recovers.
		c.clocks.Start(gameID, color)
		return nil, fmt.Errorf("persist notation: %w", err)
	}
	st.notation = res.Notation

	if res.Terminal {
		white, black := c.finalClocks(gameID)
		outcome := c.terminate(ctx, st, session, reasonForKind(res.Kind), winnerForKind(res.Kind, color))
		return &MoveUpdate{Move: lastMove(res.Notation), Terminal: true, Outcome: outcome, White: white, Black: black}, nil
	}

	oppRemaining, _ := c.clocks.Start(gameID, color.Opponent())
	moverRemaining, _ := c.clocks.Remaining(gameID, color)

	white, black := moverRemaining, oppRemaining
	if color == models.ColorBlack {
		white, black = oppRemaining, moverRemaining
	}
	for _, side := range []models.Color{models.ColorWhite, models.ColorBlack} {
		c.notifier.Notify(session.ParticipantFor(side).Username, "move-made", map[string]any{
			"game_id": gameID,
			"color":   color,
			"move":    lastMove(res.Notation),
			"white":   white,
			"black":   black,
		})
	}
	c.notifier.Notify(session.ParticipantFor(color.Opponent()).Username, "clock-started", map[string]any{
		"game_id": gameID,
		"color":   color.Opponent(),
		"seconds": oppRemaining,
	})

	return &MoveUpdate{Move: lastMove(res.Notation), White: white, Black: black}, nil
}

// Resign ends the match immediately with the resigning color as loser.
func (c *Coordinator) Resign(ctx context.Context, gameID uuid.UUID, color models.Color, username string) (*models.Outcome, error) {
	st := c.state(gameID)
	if st == nil {
		return nil, models.ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := c.authorized(gameID, color, username)
	if err != nil {
		return nil, err
	}
	if !inProgress(session) {
		return nil, fmt.Errorf("%w: match not in progress", models.ErrMoveRejected)
	}

	winner := color.Opponent()
	return c.terminate(ctx, st, session, models.ReasonResignation, &winner), nil
}

// OfferDraw records a draw offer if none is pending and no decline cooldown
// is active, then notifies the other side.
func (c *Coordinator) OfferDraw(ctx context.Context, gameID uuid.UUID, color models.Color, username string) error {
	st := c.state(gameID)
	if st == nil {
		return models.ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := c.authorized(gameID, color, username)
	if err != nil {
		return err
	}
	if !inProgress(session) {
		return fmt.Errorf("%w: match not in progress", models.ErrMoveRejected)
	}

	now := time.Now()
	if st.draw != nil && now.Before(st.draw.expiresAt) {
		return fmt.Errorf("%w: draw offer already pending", models.ErrMoveRejected)
	}
	if now.Before(st.declineUntil) {
		return fmt.Errorf("%w: draw offer declined recently", models.ErrMoveRejected)
	}

	st.draw = &drawOffer{offerer: color, expiresAt: now.Add(c.cfg.DrawOfferTTL)}
	c.notifier.Notify(session.ParticipantFor(color.Opponent()).Username, "draw-offered", map[string]any{
		"game_id": gameID,
		"color":   color,
	})
	return nil
}

// AcceptDraw terminates the match as drawn. Accepting your own offer is not a
// thing; only the non-offering side may accept.
func (c *Coordinator) AcceptDraw(ctx context.Context, gameID uuid.UUID, color models.Color, username string) (*models.Outcome, error) {
	st := c.state(gameID)
	if st == nil {
		return nil, models.ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := c.authorized(gameID, color, username)
	if err != nil {
		return nil, err
	}
	if st.draw == nil || time.Now().After(st.draw.expiresAt) {
		return nil, fmt.Errorf("%w: no draw offer pending", models.ErrMoveRejected)
	}
	if st.draw.offerer == color {
		return nil, fmt.Errorf("%w: cannot accept own draw offer", models.ErrUnauthorized)
	}

	st.draw = nil
	return c.terminate(ctx, st, session, models.ReasonDrawAgreed, nil), nil
}

// DeclineDraw clears the pending offer and arms the decline cooldown. No
// state transition happens.
func (c *Coordinator) DeclineDraw(ctx context.Context, gameID uuid.UUID, color models.Color, username string) error {
	st := c.state(gameID)
	if st == nil {
		return models.ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := c.authorized(gameID, color, username)
	if err != nil {
		return err
	}
	if st.draw == nil || time.Now().After(st.draw.expiresAt) {
		return fmt.Errorf("%w: no draw offer pending", models.ErrMoveRejected)
	}

	offerer := st.draw.offerer
	st.draw = nil
	st.declineUntil = time.Now().Add(c.cfg.DeclineCooldown)
	c.notifier.Notify(session.ParticipantFor(offerer).Username, "draw-declined", map[string]any{
		"game_id": gameID,
		"color":   color,
	})
	return nil
}

// OnTimeout handles the clock manager's one-shot expiry signal: the expired
// color loses. A move racing the expiry is resolved by whoever acquires the
// per-match section first; the signal never fires twice, and a session
// already terminated makes this a no-op.
func (c *Coordinator) OnTimeout(gameID uuid.UUID, color models.Color) {
	st := c.state(gameID)
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := c.registry.Get(gameID)
	if err != nil || !session.Ongoing {
		return
	}

	winner := color.Opponent()
	c.terminate(context.Background(), st, session, models.ReasonTimeout, &winner)
}

// GameData is the pull-style snapshot for clients recovering state.
type GameData struct {
	Session      *models.MatchSession
	Notation     string
	White        int
	Black        int
	WhiteRunning bool
	BlackRunning bool
}

// OngoingGameData returns the current state of the match. Idempotent; safe to
// poll. Sessions that already terminated but are not yet evicted still
// report, outcome included.
func (c *Coordinator) OngoingGameData(gameID uuid.UUID) (*GameData, error) {
	session, err := c.registry.Get(gameID)
	if err != nil {
		return nil, err
	}
	data := &GameData{Session: session}
	if st := c.state(gameID); st != nil {
		st.mu.Lock()
		data.Notation = st.notation
		st.mu.Unlock()
	}
	data.White, _ = c.clocks.Remaining(gameID, models.ColorWhite)
	data.Black, _ = c.clocks.Remaining(gameID, models.ColorBlack)
	data.WhiteRunning = c.clocks.IsRunning(gameID, models.ColorWhite)
	data.BlackRunning = c.clocks.IsRunning(gameID, models.ColorBlack)
	return data, nil
}

// authorized loads the ongoing session and checks the color claim against
// the stored identity. Every coordinator operation funnels through it.
func (c *Coordinator) authorized(gameID uuid.UUID, color models.Color, username string) (*models.MatchSession, error) {
	session, err := c.registry.Get(gameID)
	if err != nil {
		return nil, err
	}
	if !session.Ongoing {
		return nil, models.ErrSessionNotFound
	}
	if !color.Valid() {
		return nil, fmt.Errorf("%w: unknown color %q", models.ErrInvalidRequest, color)
	}
	if session.ParticipantFor(color).Username != username {
		return nil, fmt.Errorf("%w: %s is not %s in game %s", models.ErrUnauthorized, username, color, gameID)
	}
	return session, nil
}

// terminate is the single path out of InProgress. It computes the outcome,
// finalizes the registry entry, tears down clocks, persists ratings and the
// durable record, notifies both sides, and evicts. Caller holds st.mu.
func (c *Coordinator) terminate(ctx context.Context, st *gameState, session *models.MatchSession, reason models.OutcomeReason, winner *models.Color) *models.Outcome {
	gameID := session.GameID

	c.clocks.Stop(gameID, models.ColorWhite)
	c.clocks.Stop(gameID, models.ColorBlack)

	outcome := computeOutcome(session, reason, winner)
	if err := c.registry.Finalize(gameID, outcome); err != nil {
		// A racing termination path already finalized; nothing left to do.
		c.logger.WithField("game_id", gameID).Debug("terminate raced an earlier finalize")
		return outcome
	}

	c.clocks.Teardown(gameID)

	now := time.Now()
	newWhite := session.White.Rating + outcome.WhiteRatingDelta
	newBlack := session.Black.Rating + outcome.BlackRatingDelta
	if err := c.users.UpdateRating(ctx, session.White.Username, session.GameType, newWhite, now); err != nil {
		c.logger.WithError(err).Errorf("failed to persist white rating for game %s", gameID)
	}
	if err := c.users.UpdateRating(ctx, session.Black.Username, session.GameType, newBlack, now); err != nil {
		c.logger.WithError(err).Errorf("failed to persist black rating for game %s", gameID)
	}
	if err := c.matches.RecordOutcome(ctx, gameID, outcome); err != nil {
		c.logger.WithError(err).Errorf("failed to record outcome for game %s", gameID)
	}
	if c.finished != nil {
		c.finished(ctx, session, outcome)
	}

	for _, side := range []models.Color{models.ColorWhite, models.ColorBlack} {
		c.notifier.Notify(session.ParticipantFor(side).Username, "game-ended", map[string]any{
			"game_id": gameID,
			"reason":  outcome.Reason,
			"result":  outcome.Result,
			"winner":  outcome.Winner,
			"white_delta": outcome.WhiteRatingDelta,
			"black_delta": outcome.BlackRatingDelta,
		})
	}

	c.registry.Evict(gameID)
	c.mu.Lock()
	delete(c.games, gameID)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"game_id": gameID,
		"reason":  reason,
		"result":  outcome.Result,
	}).Info("match terminated")
	return outcome
}

// finalClocks reads both remaining values; called before teardown erases
// them.
func (c *Coordinator) finalClocks(gameID uuid.UUID) (int, int) {
	white, _ := c.clocks.Remaining(gameID, models.ColorWhite)
	black, _ := c.clocks.Remaining(gameID, models.ColorBlack)
	return white, black
}

// computeOutcome applies the Elo update and renders the score line.
func computeOutcome(session *models.MatchSession, reason models.OutcomeReason, winner *models.Color) *models.Outcome {
	score := rating.ScoreDraw
	result := "1 - 1"
	if winner != nil {
		if *winner == models.ColorWhite {
			score = rating.ScoreWin
			result = "1 - 0"
		} else {
			score = rating.ScoreLoss
			result = "0 - 1"
		}
	}
	res := rating.Update(session.White.Rating, session.Black.Rating, score)
	return &models.Outcome{
		Reason:           reason,
		Winner:           winner,
		Result:           result,
		WhiteRatingDelta: res.WhiteDelta,
		BlackRatingDelta: res.BlackDelta,
	}
}

// inProgress reports whether both sides marked ready on an ongoing session.
func inProgress(session *models.MatchSession) bool {
	return session.Ongoing && session.WhiteReady && session.BlackReady
}

func reasonForKind(kind rules.TerminalKind) models.OutcomeReason {
	switch kind {
	case rules.TerminalCheckmate:
		return models.ReasonCheckmate
	case rules.TerminalStalemate:
		return models.ReasonStalemate
	default:
		return models.ReasonDraw
	}
}

// winnerForKind: checkmate is delivered by the mover; every other terminal
// kind is a draw.
func winnerForKind(kind rules.TerminalKind, mover models.Color) *models.Color {
	if kind == rules.TerminalCheckmate {
		return &mover
	}
	return nil
}

// lastMove extracts the final SAN token from movetext.
func lastMove(notation string) string {
	moves := strings.Fields(notation)
	if len(moves) == 0 {
		return ""
	}
	return moves[len(moves)-1]
}
