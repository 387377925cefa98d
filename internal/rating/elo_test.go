// internal/rating/elo_test.go
package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateEqualRatingsWhiteWins(t *testing.T) {
	res := Update(800, 800, ScoreWin)

	// Expected score is 0.5 on both sides, so the winner takes exactly K/2.
	assert.Equal(t, 20, res.WhiteDelta)
	assert.Equal(t, -20, res.BlackDelta)
	assert.Equal(t, 820, res.NewWhite)
	assert.Equal(t, 780, res.NewBlack)
}

func TestUpdateEqualRatingsDraw(t *testing.T) {
	res := Update(1000, 1000, ScoreDraw)

	assert.Equal(t, 0, res.WhiteDelta)
	assert.Equal(t, 0, res.BlackDelta)
}

func TestUpdateUnderdogWin(t *testing.T) {
	// 800 beats 1000: white expected 1/(1+10^0.5) ~= 0.240253,
	// delta = round(40 * 0.759747) = 30.
	res := Update(800, 1000, ScoreWin)

	assert.Equal(t, 30, res.WhiteDelta)
	assert.Equal(t, -30, res.BlackDelta)
}

func TestUpdateFavoriteWin(t *testing.T) {
	res := Update(1000, 800, ScoreWin)

	assert.Equal(t, 10, res.WhiteDelta)
	assert.Equal(t, -10, res.BlackDelta)
}

func TestUpdateMonotonicDirection(t *testing.T) {
	// The losing side never gains and the winning side never loses,
	// regardless of the rating gap.
	pairs := [][2]int{{800, 800}, {800, 2400}, {2400, 800}, {1200, 1210}}
	for _, p := range pairs {
		res := Update(p[0], p[1], ScoreLoss) // white loses
		assert.LessOrEqual(t, res.WhiteDelta, 0, "loser delta must be <= 0 for %v", p)
		assert.GreaterOrEqual(t, res.BlackDelta, 0, "winner delta must be >= 0 for %v", p)
	}
}
