// internal/models/user.go
package models

import "github.com/google/uuid"

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	EloBullet int `json:"elo_bullet"`
	EloBlitz  int `json:"elo_blitz"`
	EloRapid  int `json:"elo_rapid"`
}

// RatingFor returns the user's rating for the given game type.
func (u *User) RatingFor(gt GameType) int {
	switch gt {
	case GameTypeBullet:
		return u.EloBullet
	case GameTypeBlitz:
		return u.EloBlitz
	case GameTypeRapid:
		return u.EloRapid
	default:
		return 0
	}
}
