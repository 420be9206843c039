package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatline/pkg/model"
)

var (
	ErrEmptyMessage = errors.New("chat: empty message")
	ErrNotSignedIn  = errors.New("chat: no signed-in user")
)

// DefaultSendTimeout bounds how long a send may sit without any server
// response before it is treated as failed.
const DefaultSendTimeout = 10 * time.Second

// Composer holds the draft text of the message input. The sender clears it
// on submit and restores it when a send fails so the user can retry.
type Composer struct {
	mu   sync.Mutex
	text string
}

func (c *Composer) Set(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *Composer) Clear() {
	c.Set("")
}

type inflight struct {
	conversationID string
	content        string
	timer          *time.Timer
}

// Sender is the optimistic send controller. Every Send appends a pending
// entry synchronously before any network round-trip; acknowledgement,
// broadcast confirmation, failure events, and the client-side timeout all
// resolve the entry exactly once.
type Sender struct {
	store     *Store
	transport Transport
	identity  IdentityProvider
	notifier  Notifier
	composer  Composer
	timeout   time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[string]*inflight
}

func NewSender(store *Store, transport Transport, identity IdentityProvider, notifier Notifier, logger *zap.Logger) *Sender {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		store:     store,
		transport: transport,
		identity:  identity,
		notifier:  notifier,
		timeout:   DefaultSendTimeout,
		logger:    logger,
		inflight:  make(map[string]*inflight),
	}
}

// SetTimeout overrides the per-send timeout. Zero disables it.
func (s *Sender) SetTimeout(d time.Duration) {
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
}

func (s *Sender) Composer() *Composer {
	return &s.composer
}

// Send creates a pending message, clears the composer, and issues the
// network send. Returns the temp id. Multiple sends may be in flight at
// once; each resolves independently.
func (s *Sender) Send(ctx context.Context, conversationID, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}
	user, ok := s.identity.Current()
	if !ok {
		return "", ErrNotSignedIn
	}

	tempID := uuid.NewString()
	now := time.Now()
	s.store.AppendPending(model.PendingMessage{
		Message: model.Message{
			ConversationID: conversationID,
			Sender:         user,
			Type:           model.ContentText,
			Content:        content,
			Status:         model.StatusSent,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		TempID:     tempID,
		EnqueuedAt: now,
	})
	s.composer.Clear()

	s.mu.Lock()
	fl := &inflight{conversationID: conversationID, content: content}
	if s.timeout > 0 {
		fl.timer = time.AfterFunc(s.timeout, func() {
			s.Fail(tempID, "send timed out")
		})
	}
	s.inflight[tempID] = fl
	s.mu.Unlock()

	if err := s.transport.SendMessage(ctx, conversationID, content, tempID); err != nil {
		s.Fail(tempID, err.Error())
		return tempID, err
	}
	s.logger.Debug("message send issued",
		zap.String("conversation_id", conversationID),
		zap.String("temp_id", tempID))
	return tempID, nil
}

// HandleAck resolves a send against the gateway's direct acknowledgement.
// A successful ack carrying the canonical message promotes immediately; one
// without a body leaves the pending entry for the broadcast to promote.
// Acks for unknown temp ids (already timed out or failed) are dropped.
func (s *Sender) HandleAck(ack model.AckEvent) {
	if !ack.Success {
		s.Fail(ack.TempID, ack.Error)
		return
	}
	if ack.Message == nil {
		// Confirmation will arrive as a new-message broadcast tagged with
		// the temp id; keep the pending entry but stop the clock.
		s.mu.Lock()
		if fl, ok := s.inflight[ack.TempID]; ok && fl.timer != nil {
			fl.timer.Stop()
			fl.timer = nil
		}
		s.mu.Unlock()
		return
	}
	if _, ok := s.resolve(ack.TempID); !ok {
		return
	}
	s.store.PromotePending(ack.TempID, *ack.Message)
	s.logger.Debug("pending message promoted by ack",
		zap.String("temp_id", ack.TempID),
		zap.String("message_id", ack.Message.ID))
}

// Confirm promotes a pending entry using the canonical message from the
// broadcast stream. Idempotent: a second confirmation for the same temp id
// finds the pending entry gone and the confirmed insert deduplicated.
func (s *Sender) Confirm(tempID string, canonical model.Message) {
	s.resolve(tempID)
	s.store.PromotePending(tempID, canonical)
}

// Fail rolls back a send: the pending entry is removed, the draft restored
// to the composer, and the user notified. No pending entry survives a
// failure signal.
func (s *Sender) Fail(tempID, reason string) {
	fl, ok := s.resolve(tempID)
	if !ok {
		// Already resolved; duplicate or late failure signal.
		if s.store.RemovePending(tempID) {
			s.logger.Warn("removed orphaned pending entry", zap.String("temp_id", tempID))
		}
		return
	}
	s.store.RemovePending(tempID)
	s.composer.Set(fl.content)
	s.notifier.Notify("Failed to send message. Please try again.")
	s.logger.Warn("message send failed",
		zap.String("temp_id", tempID),
		zap.String("reason", reason))
}

// resolve removes the inflight record and stops its timer. Reports whether
// the temp id was still outstanding.
func (s *Sender) resolve(tempID string) (*inflight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fl, ok := s.inflight[tempID]
	if !ok {
		return nil, false
	}
	if fl.timer != nil {
		fl.timer.Stop()
	}
	delete(s.inflight, tempID)
	return fl, true
}

// InflightCount reports the number of unresolved sends.
func (s *Sender) InflightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
