package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"chatline/pkg/model"
)

// HistoryLoader fetches the authoritative message history for a conversation
// from the REST API and seeds the store. A generation counter guards against
// a late response landing after the user navigated to another conversation.
type HistoryLoader struct {
	store   *Store
	client  *http.Client
	baseURL string
	token   string
	logger  *zap.Logger
	gen     atomic.Uint64
}

func NewHistoryLoader(store *Store, baseURL, token string, logger *zap.Logger) *HistoryLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryLoader{
		store:   store,
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		token:   token,
		logger:  logger,
	}
}

// Load fetches history for the conversation and replaces the store's
// confirmed collection. While in flight the store reports a loading state.
// On failure the error is recorded but previously loaded messages are kept.
// A response that arrives after a newer Load started is discarded.
func (l *HistoryLoader) Load(ctx context.Context, conversationID string) error {
	gen := l.gen.Add(1)
	l.store.SetLoading(true)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/messages/%s", l.baseURL, conversationID), nil)
	if err != nil {
		return l.fail(gen, conversationID, err)
	}
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return l.fail(gen, conversationID, fmt.Errorf("fetch history: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return l.fail(gen, conversationID, fmt.Errorf("fetch history: unexpected status %d", resp.StatusCode))
	}

	var msgs []model.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return l.fail(gen, conversationID, fmt.Errorf("decode history: %w", err))
	}

	if l.stale(gen, conversationID) {
		l.logger.Debug("discarding stale history response",
			zap.String("conversation_id", conversationID))
		return nil
	}
	l.store.LoadHistory(conversationID, msgs)
	l.logger.Debug("history loaded",
		zap.String("conversation_id", conversationID),
		zap.Int("messages", len(msgs)))
	return nil
}

func (l *HistoryLoader) fail(gen uint64, conversationID string, err error) error {
	if l.stale(gen, conversationID) {
		return nil
	}
	l.store.SetLoadError(err)
	l.logger.Warn("history load failed",
		zap.String("conversation_id", conversationID),
		zap.Error(err))
	return err
}

// stale reports whether a newer load superseded this one or the store moved
// to a different conversation while the request was in flight.
func (l *HistoryLoader) stale(gen uint64, conversationID string) bool {
	return gen != l.gen.Load() || conversationID != l.store.ConversationID()
}
