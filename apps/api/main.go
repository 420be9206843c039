package main

import (
	"flag"
	"net/http"

	"go.uber.org/zap"

	"chatline/pkg/config"
	"chatline/pkg/db"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	session, err := db.NewSession(cfg.Scylla.Hosts, cfg.Scylla.Keyspace)
	if err != nil {
		logger.Fatal("scylla connect failed", zap.Error(err))
	}
	defer session.Close()

	// Public endpoint
	http.Handle("/login", CORSMiddleware(http.HandlerFunc(LoginHandler)))

	// Protected endpoints
	historyHandler := NewHistoryHandler(session, logger)
	http.Handle("/messages/", CORSMiddleware(AuthMiddleware(historyHandler)))

	http.Handle("/conversations", CORSMiddleware(AuthMiddleware(ConversationsHandler(session, logger))))
	http.Handle("/conversations/read", CORSMiddleware(AuthMiddleware(ReadHandler(session))))

	// Presence: /conversations/{id}/users
	presenceHandler := NewPresenceHandler(cfg.Redis.Addr, logger)
	http.Handle("/conversations/", CORSMiddleware(AuthMiddleware(presenceHandler)))

	logger.Info("api service starting", zap.String("addr", cfg.API.Addr))
	if err := http.ListenAndServe(cfg.API.Addr, nil); err != nil {
		logger.Fatal("api server exited", zap.Error(err))
	}
}
