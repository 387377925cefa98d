// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kacperw/chesshub/internal/models"
)

type ongoingGameResponse struct {
	Session      *models.MatchSession `json:"session"`
	Notation     string               `json:"notation"`
	White        int                  `json:"white"`
	Black        int                  `json:"black"`
	WhiteRunning bool                 `json:"white_running"`
	BlackRunning bool                 `json:"black_running"`
}

// OngoingGameHandler serves the pull-style snapshot of a live match from
// /game/{game_id}. Clients recovering from a refresh or reconnect use it to
// rebuild board, clocks, and turn state.
func (s *Server) OngoingGameHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := requireIdentity(r); err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/game/")
	gameID, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid game_id format", http.StatusBadRequest)
		return
	}

	data, err := s.Coordinator.OngoingGameData(gameID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ongoingGameResponse{
		Session:      data.Session,
		Notation:     data.Notation,
		White:        data.White,
		Black:        data.Black,
		WhiteRunning: data.WhiteRunning,
		BlackRunning: data.BlackRunning,
	})
}
