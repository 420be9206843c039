package main

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"chatline/pkg/db"
	"chatline/pkg/model"
)

// Consumer persists the event stream: new messages are inserted, status
// updates applied forward-only, and the per-user conversation index and
// unread counters kept current. Typing and presence events are ephemeral and
// skipped.
type Consumer struct {
	reader *kafka.Reader
	db     *db.Session
	logger *zap.Logger
}

func NewConsumer(brokers []string, topic string, groupID string, session *db.Session, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{reader: r, db: session, logger: logger}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("kafka read failed, retrying", zap.Error(err))
			time.Sleep(1 * time.Second)
			continue
		}

		var env model.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			c.logger.Warn("unparseable event", zap.Error(err))
			continue
		}

		switch env.Type {
		case model.EventNewMessage:
			var ev model.NewMessageEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				c.logger.Warn("bad new-message payload", zap.Error(err))
				continue
			}
			c.persistMessage(ev.Message)
		case model.EventStatusUpdate:
			var ev model.StatusUpdateEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				c.logger.Warn("bad status-update payload", zap.Error(err))
				continue
			}
			c.applyStatus(ev)
		default:
			// Typing/presence are not persisted.
		}
	}
}

func (c *Consumer) persistMessage(msg model.Message) {
	id, err := strconv.ParseInt(msg.ID, 10, 64)
	if err != nil {
		c.logger.Warn("message with non-numeric id", zap.String("id", msg.ID))
		return
	}

	replyTo := ""
	if msg.ReplyTo != nil {
		replyTo = *msg.ReplyTo
	}

	query := `INSERT INTO messages (conversation_id, id, sender_id, sender_name, sender_email, type, content, status, edited, reply_to, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	err = c.db.Query(query, msg.ConversationID, id, msg.Sender.UID, msg.Sender.Name, msg.Sender.Email,
		string(msg.Type), msg.Content, string(msg.Status), msg.Edited, replyTo, msg.CreatedAt, msg.UpdatedAt).Exec()
	if err != nil {
		c.logger.Error("message insert failed", zap.String("id", msg.ID), zap.Error(err))
		return
	}

	c.updateConversations(msg)
}

// updateConversations maintains the per-user conversation index and bumps
// the recipient's unread counter for DM messages.
func (c *Consumer) updateConversations(msg model.Message) {
	u1, u2, ok := model.DMParticipants(msg.ConversationID)
	if !ok {
		return
	}

	q := `INSERT INTO user_conversations (user_id, other_user_id, last_updated) VALUES (?, ?, ?)`
	if err := c.db.Query(q, u1, u2, msg.CreatedAt).Exec(); err != nil {
		c.logger.Warn("conversation upsert failed", zap.String("uid", u1), zap.Error(err))
	}
	if err := c.db.Query(q, u2, u1, msg.CreatedAt).Exec(); err != nil {
		c.logger.Warn("conversation upsert failed", zap.String("uid", u2), zap.Error(err))
	}

	sender := msg.Sender.UID
	recipient := u1
	if u1 == sender {
		recipient = u2
	}

	qCounter := `UPDATE conversation_counters SET unread_count = unread_count + 1 WHERE user_id = ? AND other_user_id = ?`
	if err := c.db.Query(qCounter, recipient, sender).Exec(); err != nil {
		c.logger.Warn("unread counter bump failed", zap.String("uid", recipient), zap.Error(err))
	}
}

// applyStatus advances a persisted message's status. The current status is
// read first so a late "delivered" never overwrites "read".
func (c *Consumer) applyStatus(ev model.StatusUpdateEvent) {
	if !ev.Status.Valid() {
		return
	}
	id, err := strconv.ParseInt(ev.MessageID, 10, 64)
	if err != nil {
		return
	}

	var current string
	err = c.db.Query(`SELECT status FROM messages WHERE conversation_id = ? AND id = ?`,
		ev.ConversationID, id).Scan(&current)
	if err != nil {
		// Unknown id: the insert may not have landed yet. Drop; the event
		// stream is at-least-once, not exactly-ordered.
		c.logger.Debug("status update for unknown message",
			zap.String("conversation_id", ev.ConversationID),
			zap.String("message_id", ev.MessageID))
		return
	}
	if !model.Status(current).Advances(ev.Status) {
		return
	}

	err = c.db.Query(`UPDATE messages SET status = ?, updated_at = ? WHERE conversation_id = ? AND id = ?`,
		string(ev.Status), time.Now().UTC(), ev.ConversationID, id).Exec()
	if err != nil {
		c.logger.Error("status update failed",
			zap.String("message_id", ev.MessageID),
			zap.Error(err))
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
