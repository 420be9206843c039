package chat

import (
	"context"
	"sync"

	"chatline/pkg/model"
)

type sentMessage struct {
	conversationID string
	content        string
	tempID         string
}

type sentStatus struct {
	conversationID string
	messageID      string
	status         model.Status
}

// fakeTransport records outbound traffic and lets tests inject inbound
// events into the registered handlers.
type fakeTransport struct {
	mu       sync.Mutex
	messages []sentMessage
	statuses []sentStatus
	typing   []string
	sendErr  error
	nextSub  int
	handlers map[int]EventHandler
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[int]EventHandler)}
}

func (f *fakeTransport) SendMessage(_ context.Context, conversationID, content, tempID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, sentMessage{conversationID, content, tempID})
	return nil
}

func (f *fakeTransport) SendStatus(_ context.Context, conversationID, messageID string, status model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, sentStatus{conversationID, messageID, status})
	return nil
}

func (f *fakeTransport) SendTyping(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, conversationID)
	return nil
}

type fakeSubscription struct {
	f  *fakeTransport
	id int
}

func (s *fakeSubscription) Unsubscribe() {
	s.f.mu.Lock()
	delete(s.f.handlers, s.id)
	s.f.mu.Unlock()
}

func (f *fakeTransport) Subscribe(h EventHandler) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.handlers[id] = h
	return &fakeSubscription{f: f, id: id}
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeTransport) snapshot() ([]sentMessage, []sentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.messages...), append([]sentStatus(nil), f.statuses...)
}

func (f *fakeTransport) emitNewMessage(msg model.Message, tempID string) {
	for _, h := range f.currentHandlers() {
		h.OnNewMessage(msg, tempID)
	}
}

func (f *fakeTransport) emitStatusUpdate(conversationID, messageID string, status model.Status) {
	for _, h := range f.currentHandlers() {
		h.OnStatusUpdate(conversationID, messageID, status)
	}
}

func (f *fakeTransport) emitSendError(tempID, errMsg string) {
	for _, h := range f.currentHandlers() {
		h.OnSendError(tempID, errMsg)
	}
}

func (f *fakeTransport) emitAck(ack model.AckEvent) {
	for _, h := range f.currentHandlers() {
		h.OnAck(ack)
	}
}

func (f *fakeTransport) currentHandlers() []EventHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EventHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		out = append(out, h)
	}
	return out
}

// staticIdentity is an IdentityProvider pinned to one signed-in user.
type staticIdentity struct {
	user model.Sender
}

func (s staticIdentity) Current() (model.Sender, bool)                      { return s.user, true }
func (s staticIdentity) OnChange(func(model.Sender, bool)) (cancel func()) { return func() {} }

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(msg string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}
