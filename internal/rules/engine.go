// internal/rules/engine.go
package rules

import (
	"context"
	"fmt"
	"time"
)

// TerminalKind classifies a board condition that ends the game.
type TerminalKind string

const (
	TerminalNone         TerminalKind = ""
	TerminalCheckmate    TerminalKind = "checkmate"
	TerminalStalemate    TerminalKind = "stalemate"
	TerminalThreefold    TerminalKind = "threefold_repetition"
	TerminalOtherDraw    TerminalKind = "draw"
	TerminalInsufficient TerminalKind = "insufficient_material"
)

// Draw reports whether the terminal kind is a drawn result rather than a win
// for the side that just moved.
func (k TerminalKind) Draw() bool {
	return k != TerminalNone && k != TerminalCheckmate
}

// MoveResult is the engine's verdict on one submitted move.
type MoveResult struct {
	// Legal is false when the move is not playable in the current position.
	// The remaining fields are meaningless in that case.
	Legal bool

	// Notation is the updated movetext (space-separated SAN) after the move.
	Notation string

	// Terminal is true when the move ended the game; Kind says how.
	Terminal bool
	Kind     TerminalKind
}

// Engine validates moves and tracks board state. The movetext notation it
// consumes and produces is opaque to the rest of the core.
type Engine interface {
	ApplyMove(ctx context.Context, notation, moveText string) (*MoveResult, error)
}

// SeedPGN returns the tag header recorded as a new match's initial notation.
func SeedPGN(white, black string, whiteRating, blackRating int, date time.Time) string {
	return fmt.Sprintf(
		"[White %q]\n[Black %q]\n[WhiteElo \"%d\"]\n[BlackElo \"%d\"]\n[Date %q]\n",
		white, black, whiteRating, blackRating, date.Format("2006.01.02"),
	)
}
