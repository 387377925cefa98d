// internal/models/lobby.go
package models

import "github.com/google/uuid"

// LobbyEntry represents a waiting player's request for a match. The GameID is
// generated when the entry is created and becomes the id of the match that the
// entry eventually pairs into.
type LobbyEntry struct {
	GameID    uuid.UUID `json:"game_id"`
	GameType  GameType  `json:"game_type"`
	Username  string    `json:"username"`
	AccountID uuid.UUID `json:"account_id"`
	Rating    int       `json:"rating"`     // rating at search time for GameType
	CreatedAt int64     `json:"created_at"` // unix millis
}
