// internal/rules/chess.go
package rules

import (
	"context"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// ChessEngine is the production Engine, backed by the corentings/chess move
// generator. It is stateless; every call reconstructs the game from the SAN
// movetext, the same way the match's durable notation is stored.
type ChessEngine struct{}

// NewChessEngine returns the stateless production engine.
func NewChessEngine() *ChessEngine {
	return &ChessEngine{}
}

func (e *ChessEngine) ApplyMove(_ context.Context, notation, moveText string) (*MoveResult, error) {
	game, err := reconstruct(notation)
	if err != nil {
		return nil, err
	}

	moveText = strings.TrimSpace(moveText)
	if moveText == "" {
		return &MoveResult{Legal: false}, nil
	}
	pos := game.Position()
	if err := game.PushNotationMove(moveText, nchess.AlgebraicNotation{}, nil); err != nil {
		return &MoveResult{Legal: false}, nil
	}

	// Re-encode the move so stored notation is uniform regardless of how the
	// client spelled it.
	played := game.Moves()
	san := nchess.AlgebraicNotation{}.Encode(pos, played[len(played)-1])

	moves := movesSAN(notation)
	moves = append(moves, san)
	res := &MoveResult{
		Legal:    true,
		Notation: strings.Join(moves, " "),
	}
	res.Terminal, res.Kind = terminalState(game)
	return res, nil
}

// reconstruct replays SAN movetext onto a fresh game.
func reconstruct(notation string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for _, mv := range movesSAN(notation) {
		if err := game.PushNotationMove(mv, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, fmt.Errorf("corrupt notation at %q: %w", mv, err)
		}
	}
	return game, nil
}

func movesSAN(notation string) []string {
	return strings.Fields(notation)
}

// terminalState inspects the game for an ending condition. Threefold
// repetition is claimable rather than automatic in the move generator, so it
// is promoted to a terminal draw here; the platform has no claim flow.
func terminalState(game *nchess.Game) (bool, TerminalKind) {
	if game.Outcome() != nchess.NoOutcome {
		switch game.Method() {
		case nchess.Checkmate:
			return true, TerminalCheckmate
		case nchess.Stalemate:
			return true, TerminalStalemate
		case nchess.FivefoldRepetition:
			return true, TerminalThreefold
		case nchess.InsufficientMaterial:
			return true, TerminalInsufficient
		default:
			return true, TerminalOtherDraw
		}
	}
	for _, m := range game.EligibleDraws() {
		if m == nchess.ThreefoldRepetition {
			return true, TerminalThreefold
		}
	}
	return false, TerminalNone
}
