package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatline/pkg/auth"
	"chatline/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxMessageSize = 4096

	// Maximum message body length.
	maxContentLen = 2000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	identity model.Sender

	// UID of the authenticated user.
	UID string

	// Conversation joined at connect time (non-DM room, or the DM the
	// client opened with).
	ConversationID string
}

// readPump decodes client frames and applies them: send-message gets a
// canonical id assigned, is acked directly, and published; status updates
// and typing are published for fanout.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("client read error", zap.String("uid", c.UID), zap.Error(err))
			}
			break
		}

		var env model.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.hub.logger.Warn("dropping malformed client frame", zap.String("uid", c.UID), zap.Error(err))
			continue
		}

		switch env.Type {
		case model.EventSendMessage:
			var ev model.SendMessageEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				c.hub.logger.Warn("bad send-message payload", zap.String("uid", c.UID), zap.Error(err))
				continue
			}
			c.handleSend(ev)
		case model.EventUpdateStatus:
			var ev model.StatusUpdateEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				c.hub.logger.Warn("bad status payload", zap.String("uid", c.UID), zap.Error(err))
				continue
			}
			c.handleStatus(ev)
		case model.EventTyping:
			var ev model.TypingEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				continue
			}
			ev.UserID = c.UID
			if !c.mayAccess(ev.ConversationID) {
				continue
			}
			if err := c.hub.publish(context.Background(), ev.ConversationID, model.EventTyping, ev); err != nil {
				c.hub.logger.Warn("typing publish failed", zap.Error(err))
			}
		default:
			c.hub.logger.Debug("ignoring client event", zap.String("type", string(env.Type)))
		}
	}
}

// handleSend validates the message, assigns the canonical id, publishes the
// broadcast, and acks the sender directly with the canonical record. The ack
// succeeds only once the event is in Kafka.
func (c *Client) handleSend(ev model.SendMessageEvent) {
	content := strings.TrimSpace(ev.Content)
	switch {
	case ev.TempID == "":
		c.nack(ev.TempID, "missing temp_id")
		return
	case content == "":
		c.nack(ev.TempID, "empty message")
		return
	case len(content) > maxContentLen:
		c.nack(ev.TempID, "message too long")
		return
	case !c.mayAccess(ev.ConversationID):
		c.nack(ev.TempID, "not a participant of this conversation")
		return
	}

	now := time.Now().UTC()
	msg := model.Message{
		ID:             strconv.FormatInt(c.hub.snowflake.Generate(), 10),
		ConversationID: ev.ConversationID,
		Sender:         c.identity,
		Type:           model.ContentText,
		Content:        content,
		Status:         model.StatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := c.hub.publish(context.Background(), ev.ConversationID, model.EventNewMessage, model.NewMessageEvent{
		Message: msg,
		TempID:  ev.TempID,
	})
	if err != nil {
		c.hub.logger.Error("message publish failed",
			zap.String("uid", c.UID),
			zap.String("temp_id", ev.TempID),
			zap.Error(err))
		sendFailures.Inc()
		c.nack(ev.TempID, "failed to persist message")
		return
	}
	messagesPublished.Inc()

	c.ack(model.AckEvent{TempID: ev.TempID, Success: true, Message: &msg})
}

func (c *Client) handleStatus(ev model.StatusUpdateEvent) {
	if !ev.Status.Valid() || ev.MessageID == "" {
		return
	}
	if !c.mayAccess(ev.ConversationID) {
		return
	}
	if err := c.hub.publish(context.Background(), ev.ConversationID, model.EventStatusUpdate, ev); err != nil {
		c.hub.logger.Warn("status publish failed",
			zap.String("message_id", ev.MessageID),
			zap.Error(err))
	}
}

// mayAccess reports whether the client may act on a conversation: any non-DM
// room, or a DM it participates in.
func (c *Client) mayAccess(conversationID string) bool {
	if conversationID == "" {
		return false
	}
	u1, u2, ok := model.DMParticipants(conversationID)
	if !ok {
		return !model.IsDM(conversationID)
	}
	return u1 == c.UID || u2 == c.UID
}

func (c *Client) ack(ev model.AckEvent) {
	frame, err := model.Encode(model.EventAck, ev)
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) nack(tempID, reason string) {
	sendFailures.Inc()
	c.ack(model.AckEvent{TempID: tempID, Success: false, Error: reason})
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs authenticates and upgrades a websocket request.
func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		// Query param fallback for clients that cannot set headers.
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}

	claims, err := auth.ValidateToken(tokenString)
	if err != nil {
		hub.logger.Warn("rejected ws connection", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := r.URL.Query().Get("conversation")
	if conversationID == "" {
		conversationID = "general"
	}
	if u1, u2, ok := model.DMParticipants(conversationID); ok {
		if u1 != claims.UID && u2 != claims.UID {
			http.Error(w, "Unauthorized to join this DM", http.StatusForbidden)
			return
		}
	} else if model.IsDM(conversationID) {
		http.Error(w, "Invalid DM conversation id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:            hub,
		conn:           conn,
		send:           make(chan []byte, 256),
		identity:       claims.Identity(),
		UID:            claims.UID,
		ConversationID: conversationID,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
