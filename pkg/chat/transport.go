package chat

import (
	"context"

	"chatline/pkg/model"
)

// EventHandler receives inbound transport events. The transport delivers
// events serially; handlers must tolerate duplicates and out-of-order
// arrival, the engine makes the net effect idempotent.
type EventHandler interface {
	OnNewMessage(msg model.Message, tempID string)
	OnStatusUpdate(conversationID, messageID string, status model.Status)
	OnSendError(tempID, errMsg string)
	OnAck(ack model.AckEvent)
}

// Subscription is a handle to an event registration. Unsubscribe is
// idempotent and must be called on conversation-scope teardown so handlers
// are never registered twice across switches.
type Subscription interface {
	Unsubscribe()
}

// Transport is the bidirectional realtime channel the engine runs on.
// Reconnection and transport-level retry are the implementation's concern;
// the engine only consumes the event surface.
type Transport interface {
	SendMessage(ctx context.Context, conversationID, content, tempID string) error
	SendStatus(ctx context.Context, conversationID, messageID string, status model.Status) error
	SendTyping(ctx context.Context, conversationID string) error
	Subscribe(h EventHandler) Subscription
	Close() error
}

// IdentityProvider supplies the local user identity: a synchronous cached
// accessor plus a subscription for sign-in/sign-out transitions.
type IdentityProvider interface {
	Current() (model.Sender, bool)
	OnChange(fn func(model.Sender, bool)) (cancel func())
}

// Notifier is the fire-and-forget user-visible error surface (a toast in the
// original client). No return value is consumed.
type Notifier interface {
	Notify(msg string)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(string) {}
