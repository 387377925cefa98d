// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kacperw/chesshub/internal/models"
)

type lobbySearchRequest struct {
	GameType models.GameType `json:"game_type"`
}

type lobbySearchResponse struct {
	Status   string               `json:"status"` // "queued" or "paired"
	GameID   string               `json:"game_id"`
	GameType models.GameType      `json:"game_type"`
	Color    models.Color         `json:"color,omitempty"`
	Opponent string               `json:"opponent,omitempty"`
	Session  *models.MatchSession `json:"session,omitempty"`
}

// LobbySearchHandler runs one find-or-queue attempt for the authenticated
// player. 200 means a match was made on the spot, 201 means the player is now
// waiting in the lobby.
func (s *Server) LobbySearchHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := requireIdentity(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	var req lobbySearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	res, err := s.Matcher.FindOrQueue(r.Context(), identity.Username, req.GameType)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !res.Paired() {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(lobbySearchResponse{
			Status:   "queued",
			GameID:   res.Entry.GameID.String(),
			GameType: res.Entry.GameType,
		})
		return
	}

	session := res.Session
	color := models.ColorWhite
	if session.Black.Username == identity.Username {
		color = models.ColorBlack
	}
	json.NewEncoder(w).Encode(lobbySearchResponse{
		Status:   "paired",
		GameID:   session.GameID.String(),
		GameType: session.GameType,
		Color:    color,
		Opponent: session.ParticipantFor(color.Opponent()).Username,
		Session:  session,
	})
}

// LobbyWithdrawHandler removes the player's waiting entry. Withdrawing when
// not queued is a 404, not a failure.
func (s *Server) LobbyWithdrawHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := requireIdentity(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	removed, err := s.Matcher.Withdraw(r.Context(), identity.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !removed {
		http.Error(w, "not queued", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
