package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatline/pkg/model"
)

// Options wires a Session. Transport, Identity, and APIBaseURL are required;
// Notifier and Logger default to no-ops.
type Options struct {
	Transport  Transport
	Identity   IdentityProvider
	Notifier   Notifier
	APIBaseURL string
	Token      string
	Logger     *zap.Logger
}

// Session owns the reconciliation state for one active conversation: the
// store, the send controller, the ingestor, and the history loader. The
// store is mutated only through these components; readers get fresh View
// snapshots. Switching conversations clears and re-seeds everything so no
// state leaks across scopes.
type Session struct {
	store   *Store
	sender  *Sender
	ingest  *Ingestor
	history *HistoryLoader
	logger  *zap.Logger

	mu     sync.Mutex
	sub    Subscription
	active string
}

func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := NewStore()
	sender := NewSender(store, opts.Transport, opts.Identity, opts.Notifier, logger)
	ingest := NewIngestor(store, sender, opts.Transport, opts.Identity, logger)
	history := NewHistoryLoader(store, opts.APIBaseURL, opts.Token, logger)
	return &Session{
		store:   store,
		sender:  sender,
		ingest:  ingest,
		history: history,
		logger:  logger,
	}
}

// Open activates a conversation: the previous subscription is released, both
// collections are cleared, a fresh subscription is taken for the new scope,
// and the history load starts in the background. Reopening the same
// conversation refetches history without dropping the loaded view first.
func (s *Session) Open(ctx context.Context, conversationID string) {
	s.mu.Lock()
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	if s.active != conversationID {
		s.store.Reset(conversationID)
	}
	s.active = conversationID
	s.sub = s.transport().Subscribe(s)
	s.mu.Unlock()

	go func() {
		// Failure is recorded on the store; the caller reads it from there.
		_ = s.history.Load(ctx, conversationID)
	}()
}

// Close tears the session scope down: subscription released, collections
// cleared.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	s.active = ""
	s.store.Reset("")
}

// Send submits a message to the active conversation through the optimistic
// send controller.
func (s *Session) Send(ctx context.Context, content string) (string, error) {
	s.mu.Lock()
	conversationID := s.active
	s.mu.Unlock()
	return s.sender.Send(ctx, conversationID, content)
}

// Typing emits a typing indicator for the active conversation.
func (s *Session) Typing(ctx context.Context) error {
	s.mu.Lock()
	conversationID := s.active
	s.mu.Unlock()
	return s.transport().SendTyping(ctx, conversationID)
}

// MarkRead emits a read receipt for a confirmed message in the active
// conversation and applies it locally.
func (s *Session) MarkRead(ctx context.Context, messageID string) error {
	s.mu.Lock()
	conversationID := s.active
	s.mu.Unlock()
	s.store.UpdateStatus(messageID, model.StatusRead)
	return s.transport().SendStatus(ctx, conversationID, messageID, model.StatusRead)
}

// Refresh refetches history for the active conversation.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	conversationID := s.active
	s.mu.Unlock()
	return s.history.Load(ctx, conversationID)
}

// SetSendTimeout adjusts the client-side send timeout. Zero disables it.
func (s *Session) SetSendTimeout(d time.Duration) {
	s.sender.SetTimeout(d)
}

func (s *Session) View() []ViewEntry { return s.store.View() }
func (s *Session) Loading() bool     { return s.store.Loading() }
func (s *Session) LoadError() error  { return s.store.LoadError() }
func (s *Session) Composer() *Composer {
	return s.sender.Composer()
}
func (s *Session) Store() *Store { return s.store }

func (s *Session) transport() Transport { return s.sender.transport }

// EventHandler wiring: the session is the single registered handler per
// scope and fans events out to the right component.

func (s *Session) OnNewMessage(msg model.Message, tempID string) {
	s.ingest.HandleNewMessage(msg, tempID)
}

func (s *Session) OnStatusUpdate(conversationID, messageID string, status model.Status) {
	s.ingest.HandleStatusUpdate(conversationID, messageID, status)
}

func (s *Session) OnSendError(tempID, errMsg string) {
	s.ingest.HandleSendError(tempID, errMsg)
}

func (s *Session) OnAck(ack model.AckEvent) {
	s.sender.HandleAck(ack)
}
