// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kacperw/chesshub/internal/middleware"
	"github.com/kacperw/chesshub/internal/models"
)

// GameMessage represents the structure for incoming WebSocket messages during
// a live match.
type GameMessage struct {
	Type string `json:"type"`

	// Move carries the SAN move text for make-move messages.
	Move string `json:"move,omitempty"`
}

// wsConn adapts a websocket connection to the presence directory's Conn so
// coordinator notifications can be pushed to the client.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Send(event string, payload any) error {
	body, err := json.Marshal(map[string]any{
		"type": event,
		"data": payload,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.c.Write(ctx, websocket.MessageText, body)
}

// GameWSHandler upgrades the HTTP connection to WebSocket for a specific
// match. It authenticates the user, verifies they are a participant, binds
// the connection into the presence directory, and runs the read loop that
// routes play messages into the coordinator.
func (s *Server) GameWSHandler() http.HandlerFunc {
	logger := s.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract game ID from URL path: /game/ws/{game_id}
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/game/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "Missing game_id in path (/game/ws/{game_id})", http.StatusBadRequest)
			return
		}
		gameID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "Invalid game_id format", http.StatusBadRequest)
			return
		}

		data, err := s.Coordinator.OngoingGameData(gameID)
		if err != nil {
			http.Error(w, "Game not found", http.StatusNotFound)
			return
		}
		if !data.Session.Ongoing {
			http.Error(w, "Game has already ended", http.StatusGone)
			return
		}

		identity, err := requireIdentity(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		// Verify the authenticated user plays in this match and fix their
		// color for the life of the connection.
		var color models.Color
		switch identity.Username {
		case data.Session.White.Username:
			color = models.ColorWhite
		case data.Session.Black.Username:
			color = models.ColorBlack
		default:
			http.Error(w, "You are not a player in this game.", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for game %s: %v", gameID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "game" {
			logger.Warnf("Client for game %s connected with invalid subprotocol: %s", gameID, c.Subprotocol())
			c.Close(websocket.StatusPolicyViolation, "Client must use the 'game' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)
		logger.Infof("User %s joined game %s as %s", identity.Username, gameID, color)

		// Bind the connection so coordinator notifications reach this client.
		// A reconnect supersedes any previous socket for the same user.
		conn := &wsConn{c: c}
		s.Presence.Register(identity.Username, conn)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readErr := s.readGameMessages(ctx, c, gameID, color, identity.Username)

		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
		// Only unbind if this socket is still the user's live one; a newer
		// connection must not be torn down by a stale disconnect.
		s.Presence.Unregister(identity.Username, conn)
	}
}

// readGameMessages continuously reads messages from a client's WebSocket
// connection, unmarshals them, and routes them into the coordinator. It
// operates within the connection's context and returns the error that ended
// the loop, nil for a normal closure or cancellation.
func (s *Server) readGameMessages(ctx context.Context, c *websocket.Conn, gameID uuid.UUID, color models.Color, username string) error {
	logger := s.Logger
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for user %s in game %s.", username, gameID)
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for user %s in game %s.", username, gameID)
				return nil
			}
			return err
		}

		if msgType != websocket.MessageText {
			logger.Warnf("Received non-text message type %d from user %s in game %s. Ignoring.", msgType, username, gameID)
			continue
		}

		var msg GameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON received from user %s in game %s: %v. Data: %s", username, gameID, err, string(data))
			sendWsError(ctx, c, "Invalid JSON format.")
			continue
		}

		logger.Debugf("Received action '%s' from user %s in game %s.", msg.Type, username, gameID)

		switch msg.Type {
		case "start-clock":
			_, err = s.Coordinator.StartClock(ctx, gameID, color, username)

		case "make-move":
			_, err = s.Coordinator.SubmitMove(ctx, gameID, color, username, msg.Move)

		case "resign":
			_, err = s.Coordinator.Resign(ctx, gameID, color, username)

		case "offer-draw":
			err = s.Coordinator.OfferDraw(ctx, gameID, color, username)

		case "accept-draw":
			_, err = s.Coordinator.AcceptDraw(ctx, gameID, color, username)

		case "decline-draw":
			err = s.Coordinator.DeclineDraw(ctx, gameID, color, username)

		case "ping":
			logger.Tracef("Received ping from user %s, sending pong.", username)
			sendWsMessage(ctx, c, map[string]string{"type": "pong"})
			continue

		default:
			logger.Warnf("Unknown action type '%s' from user %s in game %s.", msg.Type, username, gameID)
			sendWsError(ctx, c, fmt.Sprintf("Unknown action type: %s", msg.Type))
			continue
		}

		if err != nil {
			logger.WithFields(logrus.Fields{
				"user":    username,
				"game_id": gameID,
				"action":  msg.Type,
			}).Warnf("action rejected: %v", err)
			sendWsError(ctx, c, err.Error())
		}

		select {
		case <-ctx.Done():
			logger.Infof("Context canceled after processing message for user %s in game %s.", username, gameID)
			return nil
		default:
		}
	}
}

// sendWsMessage marshals a message and sends it to the WebSocket client.
// Includes logging for errors and uses a write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("Error: Attempted to send WebSocket message on nil connection.")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = c.Write(writeCtx, websocket.MessageText, msgBytes)
	if err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !strings.Contains(err.Error(), "context deadline exceeded") {
			log.Printf("Error writing WebSocket message: %v (Status: %d)", err, status)
		} else if strings.Contains(err.Error(), "context deadline exceeded") {
			log.Printf("Timeout writing WebSocket message: %v", err)
		}
		// Let the read loop handle connection closure detection.
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
