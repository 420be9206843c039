package main

import (
	"encoding/json"
	"net/http"

	"chatline/pkg/auth"
	"chatline/pkg/db"
)

type ReadRequest struct {
	OtherUserID string `json:"other_user_id"`
}

// ReadHandler resets the caller's unread counter for one conversation.
func ReadHandler(session *db.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req ReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		// Deleting the counter row is how Scylla counters reset to zero.
		query := `DELETE FROM conversation_counters WHERE user_id = ? AND other_user_id = ?`
		if err := session.Query(query, claims.UID, req.OtherUserID).Exec(); err != nil {
			http.Error(w, "Failed to reset unread count", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
