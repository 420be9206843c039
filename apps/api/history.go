package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatline/pkg/auth"
	"chatline/pkg/db"
	"chatline/pkg/model"
)

// HistoryHandler serves GET /messages/{conversationId}: the authoritative
// confirmed-message history, oldest first.
type HistoryHandler struct {
	db     *db.Session
	logger *zap.Logger
}

func NewHistoryHandler(session *db.Session, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{db: session, logger: logger}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Path: /messages/{conversationId}
	conversationID := strings.TrimPrefix(r.URL.Path, "/messages/")
	if conversationID == "" || strings.Contains(conversationID, "/") {
		http.Error(w, "Invalid conversation id", http.StatusBadRequest)
		return
	}
	if !mayAccess(claims.UID, conversationID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	iter := h.db.Query(`SELECT id, sender_id, sender_name, sender_email, type, content, status, edited, reply_to, created_at, updated_at
		FROM messages WHERE conversation_id = ?`, conversationID).Iter()

	messages := []model.Message{}
	var (
		id                                int64
		senderID, senderName, senderEmail string
		msgType, content, status, replyTo string
		edited                            bool
		createdAt, updatedAt              time.Time
	)
	for iter.Scan(&id, &senderID, &senderName, &senderEmail, &msgType, &content, &status, &edited, &replyTo, &createdAt, &updatedAt) {
		m := model.Message{
			ID:             strconv.FormatInt(id, 10),
			ConversationID: conversationID,
			Sender:         model.Sender{UID: senderID, Name: senderName, Email: senderEmail},
			Type:           model.ContentType(msgType),
			Content:        content,
			Status:         model.Status(status),
			Edited:         edited,
			CreatedAt:      createdAt,
			UpdatedAt:      updatedAt,
		}
		if replyTo != "" {
			rt := replyTo
			m.ReplyTo = &rt
		}
		messages = append(messages, m)
	}

	if err := iter.Close(); err != nil {
		h.logger.Error("history query failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

// mayAccess mirrors the gateway rule: non-DM rooms are open, DMs only to
// their two participants.
func mayAccess(uid, conversationID string) bool {
	if !model.IsDM(conversationID) {
		return true
	}
	u1, u2, ok := model.DMParticipants(conversationID)
	if !ok {
		return false
	}
	return u1 == uid || u2 == uid
}

type LoginRequest struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  model.Sender `json:"user"`
}

// LoginHandler issues a token carrying the caller's identity. There is no
// credential check; identity verification is the provider's concern, this
// endpoint only mints the session token the other services consume.
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UID == "" {
		http.Error(w, "uid is required", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		if at := strings.Index(req.Email, "@"); at > 0 {
			req.Name = req.Email[:at]
		} else {
			req.Name = req.UID
		}
	}

	identity := model.Sender{UID: req.UID, Name: req.Name, Email: req.Email}
	token, err := auth.GenerateToken(identity)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{Token: token, User: identity})
}
