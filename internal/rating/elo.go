// internal/rating/elo.go
package rating

import "math"

// K is the Elo K-factor applied to every rated match.
const K = 40

// D is the Elo scale divisor.
const D = 400

// Score is a side's actual score in a finished match.
type Score float64

const (
	ScoreWin  Score = 1.0
	ScoreDraw Score = 0.5
	ScoreLoss Score = 0.0
)

// Result holds the rating movement for both sides of one finished match.
type Result struct {
	WhiteDelta int
	BlackDelta int
	NewWhite   int
	NewBlack   int
}

// Update computes the Elo update for a single match given both sides' ratings
// at match start and white's actual score. Black's score is the complement.
// Deltas are rounded to the nearest integer, so a heavy favorite beating a
// much weaker opponent can gain zero.
func Update(whiteRating, blackRating int, whiteScore Score) Result {
	rw := float64(whiteRating)
	rb := float64(blackRating)

	ew := expected(rw, rb)
	eb := expected(rb, rw)

	sw := float64(whiteScore)
	sb := 1.0 - sw

	gw := int(math.Round(K * (sw - ew)))
	gb := int(math.Round(K * (sb - eb)))

	return Result{
		WhiteDelta: gw,
		BlackDelta: gb,
		NewWhite:   whiteRating + gw,
		NewBlack:   blackRating + gb,
	}
}

// expected is the standard Elo expected score of a player rated r against an
// opponent rated opp.
func expected(r, opp float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (opp-r)/D))
}
