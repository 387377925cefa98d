// internal/handlers/server.go
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/kacperw/chesshub/internal/lobby"
	"github.com/kacperw/chesshub/internal/presence"
	"github.com/kacperw/chesshub/internal/session"
)

// Server bundles the live-play collaborators the HTTP and WebSocket handlers
// route into.
type Server struct {
	Matcher     *lobby.Matcher
	Coordinator *session.Coordinator
	Presence    *presence.Directory
	Logger      *logrus.Logger
}

func NewServer(matcher *lobby.Matcher, coordinator *session.Coordinator, directory *presence.Directory, logger *logrus.Logger) *Server {
	return &Server{
		Matcher:     matcher,
		Coordinator: coordinator,
		Presence:    directory,
		Logger:      logger,
	}
}
