// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/kacperw/chesshub/internal/auth"
	"github.com/kacperw/chesshub/internal/cache"
	"github.com/kacperw/chesshub/internal/clock"
	"github.com/kacperw/chesshub/internal/database"
	"github.com/kacperw/chesshub/internal/handlers"
	"github.com/kacperw/chesshub/internal/lobby"
	"github.com/kacperw/chesshub/internal/match"
	"github.com/kacperw/chesshub/internal/middleware"
	"github.com/kacperw/chesshub/internal/models"
	"github.com/kacperw/chesshub/internal/presence"
	"github.com/kacperw/chesshub/internal/rules"
	"github.com/kacperw/chesshub/internal/session"
)

func main() {
	auth.Init()
	database.ConnectDB()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Redis backs the shared lobby pool and the finished-match queue when
	// configured; without it the lobby falls back to in-process storage.
	var lobbyStore lobby.Store
	redisUp := false
	if os.Getenv("REDIS_ADDR") != "" {
		if err := cache.ConnectRedis(); err != nil {
			log.Fatalf("redis connect error: %v", err)
		}
		lobbyStore = lobby.NewRedisStore(cache.Rdb)
		redisUp = true
		logger.Info("Using redis lobby store")
	} else {
		lobbyStore = lobby.NewMemoryStore()
		logger.Info("Using in-memory lobby store")
	}

	directory := presence.NewDirectory()
	registry := match.NewRegistry()
	notifier := session.NewPresenceNotifier(directory, logger)

	coordinator := session.NewCoordinator(
		registry,
		rules.NewChessEngine(),
		database.Users{},
		database.Matches{},
		notifier,
		session.DefaultConfig(),
		logger,
	)
	coordinator.BindClocks(clock.NewManager(coordinator.OnTimeout))
	if redisUp {
		coordinator.SetFinishedSink(func(ctx context.Context, s *models.MatchSession, outcome *models.Outcome) {
			record := cache.FinishedMatchRecord{
				GameID:     s.GameID,
				GameType:   s.GameType,
				White:      s.White.Username,
				Black:      s.Black.Username,
				Result:     outcome.Result,
				Reason:     outcome.Reason,
				Winner:     outcome.Winner,
				WhiteDelta: outcome.WhiteRatingDelta,
				BlackDelta: outcome.BlackRatingDelta,
				Timestamp:  time.Now().UnixMilli(),
			}
			if err := cache.PublishFinishedMatch(ctx, record); err != nil {
				logger.WithError(err).Warn("failed to publish finished match")
			}
		})
	}

	matcher := lobby.NewMatcher(lobbyStore, database.Users{}, coordinator, lobby.DefaultMatcherConfig(), logger)

	srv := handlers.NewServer(matcher, coordinator, directory, logger)

	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler)
	mux.HandleFunc("/user/me", handlers.MeHandler)

	// lobby endpoints
	mux.Handle("/lobby/search", middleware.LogMiddleware(logger)(http.HandlerFunc(
		srv.LobbySearchHandler,
	)))
	mux.Handle("/lobby/withdraw", middleware.LogMiddleware(logger)(http.HandlerFunc(
		srv.LobbyWithdrawHandler,
	)))

	// game websocket
	mux.Handle("/game/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		srv.GameWSHandler(),
	)))

	// ongoing game snapshot
	mux.Handle("/game/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		srv.OngoingGameHandler,
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
