package model

import "encoding/json"

// EventType tags every frame exchanged over the realtime transport.
type EventType string

const (
	// Client -> gateway
	EventSendMessage  EventType = "send-message"
	EventUpdateStatus EventType = "update-message-status"
	EventTyping       EventType = "typing"

	// Gateway -> client
	EventAck          EventType = "ack"
	EventNewMessage   EventType = "new-message"
	EventStatusUpdate EventType = "message-status-update"
	EventMessageError EventType = "message-error"
	EventPresence     EventType = "presence"
)

// Envelope is the wire frame: a type tag plus the type-specific payload.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps a payload in an Envelope and marshals the whole frame.
func Encode(t EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}

// SendMessageEvent asks the gateway to accept a new message. TempID is the
// client's correlation handle; the gateway echoes it back in the ack and in
// the broadcast so the sender can fold its pending entry.
type SendMessageEvent struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	TempID         string `json:"temp_id"`
}

// AckEvent is the gateway's direct reply to a SendMessageEvent. On success
// Message carries the canonical record.
type AckEvent struct {
	TempID  string   `json:"temp_id"`
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// NewMessageEvent is the conversation broadcast of a confirmed message.
// TempID is set only on the copy that reaches the originating user.
type NewMessageEvent struct {
	Message Message `json:"message"`
	TempID  string  `json:"temp_id,omitempty"`
}

// StatusUpdateEvent reports (client->gateway) or broadcasts (gateway->client)
// a delivery status transition for a confirmed message.
type StatusUpdateEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Status         Status `json:"status"`
}

// MessageErrorEvent tells the sending client that a send failed after the
// initial ack window, keyed by the temp id.
type MessageErrorEvent struct {
	TempID string `json:"temp_id"`
	Error  string `json:"error"`
}

type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type PresenceEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	State          string `json:"state"` // "joined" | "left"
}
