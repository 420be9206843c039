// Package chat implements the client-side message reconciliation engine:
// an in-memory store of confirmed and pending (optimistic) messages, an
// optimistic send controller, an inbound event ingestor, and a history
// loader. All state is owned by a Session scoped to one active conversation.
package chat

import (
	"sort"
	"sync"

	"chatline/pkg/model"
)

// Store holds the confirmed messages of the active conversation plus the
// pending messages originated by this client. Confirmed inserts are
// idempotent on the server id; pending entries are keyed by temp id.
type Store struct {
	mu             sync.RWMutex
	conversationID string
	confirmed      []*model.Message
	index          map[string]int // server id -> position in confirmed
	pending        []*model.PendingMessage
	loading        bool
	loadErr        error
}

func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Reset clears both collections and rebinds the store to a conversation.
// Called on conversation switch before any history or events for the new
// scope are applied.
func (s *Store) Reset(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = conversationID
	s.confirmed = nil
	s.index = make(map[string]int)
	s.pending = nil
	s.loading = false
	s.loadErr = nil
}

// Clear empties both collections without rebinding the conversation.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = nil
	s.index = make(map[string]int)
	s.pending = nil
	s.loading = false
	s.loadErr = nil
}

func (s *Store) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

// LoadHistory replaces the confirmed collection wholesale. The pending
// collection is untouched. A snapshot for a conversation the store is no
// longer bound to is discarded.
func (s *Store) LoadHistory(conversationID string, msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID != s.conversationID {
		return
	}
	s.confirmed = make([]*model.Message, 0, len(msgs))
	s.index = make(map[string]int, len(msgs))
	for i := range msgs {
		m := msgs[i]
		if _, dup := s.index[m.ID]; dup {
			continue
		}
		s.index[m.ID] = len(s.confirmed)
		s.confirmed = append(s.confirmed, &m)
	}
	s.loading = false
	s.loadErr = nil
}

// AppendConfirmed inserts a confirmed message unless one with the same
// server id already exists. Reports whether the message was inserted.
func (s *Store) AppendConfirmed(msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[msg.ID]; exists {
		return false
	}
	s.index[msg.ID] = len(s.confirmed)
	s.confirmed = append(s.confirmed, &msg)
	return true
}

// UpdateStatus advances the status of a confirmed message. Unknown ids and
// non-forward transitions are silent no-ops; events may arrive before the
// message itself is known locally.
func (s *Store) UpdateStatus(messageID string, status model.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[messageID]
	if !ok {
		return
	}
	m := s.confirmed[pos]
	if !m.Status.Advances(status) {
		return
	}
	m.Status = status
}

// AppendPending adds an optimistic entry. Pending entries are never
// deduplicated against confirmed ones; they live in their own collection.
func (s *Store) AppendPending(p model.PendingMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, &p)
}

// RemovePending drops the pending entry with the given temp id. Reports
// whether an entry was removed.
func (s *Store) RemovePending(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removePendingLocked(tempID)
}

func (s *Store) removePendingLocked(tempID string) bool {
	for i, p := range s.pending {
		if p.TempID == tempID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// PromotePending folds a pending entry into the confirmed collection:
// the pending entry (if still present) is removed and the canonical message
// inserted idempotently. Safe to call when the pending entry is already gone
// or the canonical message already arrived through another path.
func (s *Store) PromotePending(tempID string, canonical model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removePendingLocked(tempID)
	if _, exists := s.index[canonical.ID]; exists {
		return
	}
	s.index[canonical.ID] = len(s.confirmed)
	s.confirmed = append(s.confirmed, &canonical)
}

func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

func (s *Store) ConfirmedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.confirmed)
}

// Confirmed returns the confirmed message with the given server id.
func (s *Store) Confirmed(messageID string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[messageID]
	if !ok {
		return model.Message{}, false
	}
	return *s.confirmed[pos], true
}

// Pending returns the pending entry with the given temp id.
func (s *Store) Pending(tempID string) (model.PendingMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pending {
		if p.TempID == tempID {
			return *p, true
		}
	}
	return model.PendingMessage{}, false
}

func (s *Store) SetLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
	if v {
		s.loadErr = nil
	}
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetLoadError records a history fetch failure. Previously loaded messages
// are kept; the view only regresses on conversation switch.
func (s *Store) SetLoadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.loadErr = err
}

func (s *Store) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// ViewEntry is one row of the derived view. Pending entries carry their temp
// id and an empty server id.
type ViewEntry struct {
	model.Message
	TempID  string
	Pending bool
}

// View builds the UI-visible sequence: confirmed plus pending, sorted by
// creation time ascending with insertion order breaking ties. The slice is
// freshly allocated on every call; callers never observe in-place mutation.
func (s *Store) View() []ViewEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ViewEntry, 0, len(s.confirmed)+len(s.pending))
	for _, m := range s.confirmed {
		out = append(out, ViewEntry{Message: *m})
	}
	for _, p := range s.pending {
		out = append(out, ViewEntry{Message: p.Message, TempID: p.TempID, Pending: true})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
