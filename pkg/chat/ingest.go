package chat

import (
	"context"

	"go.uber.org/zap"

	"chatline/pkg/model"
)

// Ingestor applies inbound realtime events to the store. The transport
// delivers at-least-once and possibly out of order; every path here is
// idempotent so duplicates and reordering are absorbed, never errors.
type Ingestor struct {
	store     *Store
	sender    *Sender
	transport Transport
	identity  IdentityProvider
	logger    *zap.Logger
}

func NewIngestor(store *Store, sender *Sender, transport Transport, identity IdentityProvider, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{store: store, sender: sender, transport: transport, identity: identity, logger: logger}
}

// HandleNewMessage applies one inbound new-message broadcast.
//
// Messages for other conversations are ignored. A message authored by the
// local user is either a confirmation of an optimistic send (temp id
// present: promote) or a duplicate of something already represented locally
// (suppress). A remote message is inserted idempotently and, when actually
// new, acknowledged with a delivered status event.
func (in *Ingestor) HandleNewMessage(msg model.Message, tempID string) {
	if msg.ConversationID != in.store.ConversationID() {
		return
	}
	local, signedIn := in.identity.Current()
	if signedIn && msg.Sender.UID == local.UID {
		if tempID != "" {
			in.sender.Confirm(tempID, msg)
			return
		}
		// Our own message without a temp id: already represented by a
		// pending entry or an earlier promotion. Never double-add.
		return
	}

	if !in.store.AppendConfirmed(msg) {
		// Duplicate delivery from the transport; drop.
		return
	}
	if err := in.transport.SendStatus(context.Background(), msg.ConversationID, msg.ID, model.StatusDelivered); err != nil {
		in.logger.Warn("delivered ack failed",
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
}

// HandleStatusUpdate advances a confirmed message's status. Unknown ids are
// ignored; the event may precede the history fetch that carries the message.
func (in *Ingestor) HandleStatusUpdate(conversationID, messageID string, status model.Status) {
	if conversationID != "" && conversationID != in.store.ConversationID() {
		return
	}
	if !status.Valid() {
		in.logger.Warn("dropping status update with unknown status",
			zap.String("message_id", messageID),
			zap.String("status", string(status)))
		return
	}
	in.store.UpdateStatus(messageID, status)
}

// HandleSendError routes a send failure event to the sender's rollback path.
func (in *Ingestor) HandleSendError(tempID, errMsg string) {
	if tempID == "" {
		return
	}
	in.sender.Fail(tempID, errMsg)
}
