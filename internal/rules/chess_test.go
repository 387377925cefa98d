// internal/rules/chess_test.go
package rules

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeMustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return ts
}

func applyAll(t *testing.T, e *ChessEngine, moves []string) *MoveResult {
	t.Helper()
	notation := ""
	var res *MoveResult
	for _, mv := range moves {
		var err error
		res, err = e.ApplyMove(context.Background(), notation, mv)
		require.NoError(t, err)
		require.True(t, res.Legal, "move %q should be legal after %q", mv, notation)
		notation = res.Notation
	}
	return res
}

func TestApplyMoveLegal(t *testing.T) {
	e := NewChessEngine()
	res, err := e.ApplyMove(context.Background(), "", "e4")
	require.NoError(t, err)
	assert.True(t, res.Legal)
	assert.Equal(t, "e4", res.Notation)
	assert.False(t, res.Terminal)
}

func TestApplyMoveIllegal(t *testing.T) {
	e := NewChessEngine()
	res, err := e.ApplyMove(context.Background(), "", "e5")
	require.NoError(t, err)
	assert.False(t, res.Legal)

	res, err = e.ApplyMove(context.Background(), "e4 e5", "Ke2")
	require.NoError(t, err)
	assert.False(t, res.Legal)
}

func TestApplyMoveEmpty(t *testing.T) {
	e := NewChessEngine()
	res, err := e.ApplyMove(context.Background(), "", "   ")
	require.NoError(t, err)
	assert.False(t, res.Legal)
}

func TestApplyMoveCorruptNotation(t *testing.T) {
	e := NewChessEngine()
	_, err := e.ApplyMove(context.Background(), "e4 zz9", "e5")
	assert.Error(t, err)
}

func TestFoolsMateIsCheckmate(t *testing.T) {
	e := NewChessEngine()
	res := applyAll(t, e, []string{"f3", "e5", "g4", "Qh4#"})

	assert.True(t, res.Terminal)
	assert.Equal(t, TerminalCheckmate, res.Kind)
	assert.False(t, res.Kind.Draw())
}

func TestShortestStalemate(t *testing.T) {
	// Sam Loyd's ten-move stalemate.
	e := NewChessEngine()
	res := applyAll(t, e, []string{
		"e3", "a5", "Qh5", "Ra6", "Qxa5", "h5", "Qxc7", "Rah6",
		"h4", "f6", "Qxd7+", "Kf7", "Qxb7", "Qd3", "Qxb8", "Qh7",
		"Qxc8", "Kg6", "Qe6",
	})

	assert.True(t, res.Terminal)
	assert.Equal(t, TerminalStalemate, res.Kind)
	assert.True(t, res.Kind.Draw())
}

func TestThreefoldRepetitionIsTerminalDraw(t *testing.T) {
	// Shuffle the knights back and forth until the start position repeats
	// for the third time.
	e := NewChessEngine()
	res := applyAll(t, e, []string{
		"Nf3", "Nf6", "Ng1", "Ng8",
		"Nf3", "Nf6", "Ng1", "Ng8",
	})

	assert.True(t, res.Terminal)
	assert.Equal(t, TerminalThreefold, res.Kind)
	assert.True(t, res.Kind.Draw())
}

func TestNotationAccumulates(t *testing.T) {
	e := NewChessEngine()
	res := applyAll(t, e, []string{"e4", "e5", "Nf3", "Nc6"})
	assert.Equal(t, []string{"e4", "e5", "Nf3", "Nc6"}, strings.Fields(res.Notation))
}

func TestSeedPGN(t *testing.T) {
	pgn := SeedPGN("alice", "bob", 812, 790, timeMustParse(t, "2024-03-01"))
	assert.Contains(t, pgn, `[White "alice"]`)
	assert.Contains(t, pgn, `[Black "bob"]`)
	assert.Contains(t, pgn, `[WhiteElo "812"]`)
	assert.Contains(t, pgn, `[BlackElo "790"]`)
	assert.Contains(t, pgn, `[Date "2024.03.01"]`)
}
