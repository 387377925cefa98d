// internal/models/match.go
package models

import "github.com/google/uuid"

// Participant is one side of a match session.
type Participant struct {
	Username  string    `json:"username"`
	AccountID uuid.UUID `json:"account_id"`
	Rating    int       `json:"rating"` // rating at match start
}

// MatchSession is the live, in-memory record of a paired game. The durable
// record lives in the match store; the session is evicted once the outcome is
// finalized and both clients have been notified.
type MatchSession struct {
	GameID    uuid.UUID `json:"game_id"`
	GameType  GameType  `json:"game_type"`
	CreatedAt int64     `json:"created_at"` // unix millis

	White Participant `json:"white"`
	Black Participant `json:"black"`

	// Readiness flags are monotonic: once a side reports ready it stays ready.
	WhiteReady bool `json:"white_ready"`
	BlackReady bool `json:"black_ready"`

	Ongoing bool     `json:"ongoing"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

// ParticipantFor returns the participant playing the given color.
func (m *MatchSession) ParticipantFor(c Color) Participant {
	if c == ColorWhite {
		return m.White
	}
	return m.Black
}

// OutcomeReason is why a match terminated.
type OutcomeReason string

const (
	ReasonCheckmate   OutcomeReason = "checkmate"
	ReasonStalemate   OutcomeReason = "stalemate"
	ReasonDraw        OutcomeReason = "draw"
	ReasonDrawAgreed  OutcomeReason = "draw_agreed"
	ReasonResignation OutcomeReason = "resignation"
	ReasonTimeout     OutcomeReason = "timeout"
)

// Outcome is the finalized result of a terminated match.
type Outcome struct {
	Reason OutcomeReason `json:"reason"`

	// Winner is nil for a drawn game.
	Winner *Color `json:"winner,omitempty"`

	// Result is the human-readable score line, e.g. "1 - 0", "1 - 1" (drawn),
	// "0 - 1".
	Result string `json:"result"`

	WhiteRatingDelta int `json:"white_rating_delta"`
	BlackRatingDelta int `json:"black_rating_delta"`
}
