// internal/models/chess.go
package models

// Color identifies one of the two sides of a match.
type Color string

const (
	ColorWhite Color = "white"
	ColorBlack Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == ColorWhite {
		return ColorBlack
	}
	return ColorWhite
}

// Valid reports whether c is one of the two recognized colors.
func (c Color) Valid() bool {
	return c == ColorWhite || c == ColorBlack
}

// GameType identifies the time control family of a match.
type GameType string

const (
	GameTypeBullet GameType = "bullet"
	GameTypeBlitz  GameType = "blitz"
	GameTypeRapid  GameType = "rapid"
)

// Valid reports whether gt is one of the three recognized game types.
func (gt GameType) Valid() bool {
	switch gt {
	case GameTypeBullet, GameTypeBlitz, GameTypeRapid:
		return true
	}
	return false
}

// BaseSeconds returns the per-color clock allotment for the game type,
// or 0 for an unrecognized type.
func (gt GameType) BaseSeconds() int {
	switch gt {
	case GameTypeBullet:
		return 180
	case GameTypeBlitz:
		return 300
	case GameTypeRapid:
		return 900
	default:
		return 0
	}
}
