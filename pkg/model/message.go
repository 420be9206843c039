package model

import "time"

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// Status is the delivery lifecycle of a confirmed message. Transitions only
// move forward: sent -> delivered -> read.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

var statusRank = map[Status]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Advances reports whether moving from s to next is a forward transition.
func (s Status) Advances(next Status) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

// Sender identifies the user that authored a message.
type Sender struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Reaction struct {
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	ReactedAt time.Time `json:"reacted_at"`
}

type Deletion struct {
	DeletedFor string    `json:"deleted_for"` // "me" | "everyone"
	UserID     string    `json:"user_id"`
	Time       time.Time `json:"time"`
}

// Message is a server-confirmed message. ID is assigned by the gateway and
// never changes once set.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Sender         Sender      `json:"sender"`
	Type           ContentType `json:"type"`
	Content        string      `json:"content"`
	Status         Status      `json:"status"`
	Edited         bool        `json:"edited"`
	ReplyTo        *string     `json:"reply_to,omitempty"`
	Reactions      []Reaction  `json:"reactions,omitempty"`
	DeletedHistory []Deletion  `json:"deleted_history,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// PendingMessage is a locally-originated message awaiting server
// acknowledgement. It exists only in the sending client's session and is
// identified by TempID, never by a server id.
type PendingMessage struct {
	Message
	TempID     string    `json:"temp_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
