package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PresenceHandler serves GET /conversations/{id}/users from the presence
// sets the gateway maintains in Redis.
type PresenceHandler struct {
	redis  *redis.Client
	logger *zap.Logger
}

func NewPresenceHandler(redisAddr string, logger *zap.Logger) *PresenceHandler {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	return &PresenceHandler{redis: rdb, logger: logger}
}

func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Path: /conversations/{id}/users
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 4 || pathParts[3] != "users" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	conversationID := pathParts[2]

	users, err := h.redis.SMembers(context.Background(), "conversation:"+conversationID+":users").Result()
	if err != nil {
		h.logger.Error("presence lookup failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}
