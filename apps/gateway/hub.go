package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"chatline/pkg/model"
	"chatline/pkg/snowflake"
)

// Hub tracks connected clients and fans Kafka events out to the right
// conversations. Every event (messages, status updates, typing, presence)
// goes through Kafka so all gateway instances see it.
type Hub struct {
	mu          sync.Mutex
	clients     map[string]map[*Client]bool // conversation_id -> clients
	userClients map[string]map[*Client]bool // uid -> clients
	register    chan *Client
	unregister  chan *Client
	producer    *kafka.Writer
	redis       *redis.Client
	snowflake   *snowflake.Node
	logger      *zap.Logger
}

func NewHub(kafkaBrokers []string, topic string, redisAddr string, logger *zap.Logger) *Hub {
	producer := &kafka.Writer{
		Addr:     kafka.TCP(kafkaBrokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Unique group per instance so every gateway sees every event.
	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkaBrokers,
		Topic:       topic,
		GroupID:     "gateway-group-" + time.Now().Format("20060102150405.000000000"),
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	})

	// Node ID should be unique per instance in a multi-gateway deployment.
	node, err := snowflake.NewNode(1)
	if err != nil {
		logger.Fatal("snowflake node init failed", zap.Error(err))
	}

	h := &Hub{
		clients:     make(map[string]map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		producer:    producer,
		redis:       rdb,
		snowflake:   node,
		logger:      logger,
	}

	go h.fanout(consumer)

	return h
}

// publish writes one envelope to Kafka, keyed by conversation id.
func (h *Hub) publish(ctx context.Context, conversationID string, typ model.EventType, payload any) error {
	frame, err := model.Encode(typ, payload)
	if err != nil {
		return err
	}
	return h.producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(conversationID),
		Value: frame,
		Time:  time.Now(),
	})
}

// fanout consumes the event stream and delivers each frame to the clients of
// its conversation.
func (h *Hub) fanout(consumer *kafka.Reader) {
	defer consumer.Close()
	for {
		m, err := consumer.ReadMessage(context.Background())
		if err != nil {
			h.logger.Error("gateway consumer stopped", zap.Error(err))
			return
		}

		var env model.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			h.logger.Warn("unparseable event from kafka", zap.Error(err))
			continue
		}

		conversationID := conversationOf(env)
		if conversationID == "" {
			conversationID = string(m.Key)
		}
		if conversationID == "" {
			continue
		}
		h.deliver(conversationID, m.Value)
	}
}

// conversationOf extracts the conversation id from an event payload.
func conversationOf(env model.Envelope) string {
	switch env.Type {
	case model.EventNewMessage:
		var ev model.NewMessageEvent
		if json.Unmarshal(env.Data, &ev) == nil {
			return ev.Message.ConversationID
		}
	case model.EventStatusUpdate:
		var ev model.StatusUpdateEvent
		if json.Unmarshal(env.Data, &ev) == nil {
			return ev.ConversationID
		}
	case model.EventTyping:
		var ev model.TypingEvent
		if json.Unmarshal(env.Data, &ev) == nil {
			return ev.ConversationID
		}
	case model.EventPresence:
		var ev model.PresenceEvent
		if json.Unmarshal(env.Data, &ev) == nil {
			return ev.ConversationID
		}
	}
	return ""
}

// deliver routes a frame to every connection interested in the conversation.
// DM conversations ("dm:<uidA>:<uidB>") are routed through the global user
// map so participants receive them on any of their connections; everything
// else goes through the conversation map.
func (h *Hub) deliver(conversationID string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if u1, u2, ok := model.DMParticipants(conversationID); ok {
		for _, uid := range []string{u1, u2} {
			if clients, ok := h.userClients[uid]; ok {
				for client := range clients {
					h.send(clients, client, frame)
				}
			}
		}
		return
	}
	if clients, ok := h.clients[conversationID]; ok {
		for client := range clients {
			h.send(clients, client, frame)
		}
	}
}

func (h *Hub) send(set map[*Client]bool, client *Client, frame []byte) {
	select {
	case client.send <- frame:
	default:
		close(client.send)
		delete(set, client)
	}
}

func (h *Hub) Run() {
	defer h.producer.Close()
	defer h.redis.Close()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.ConversationID] == nil {
				h.clients[client.ConversationID] = make(map[*Client]bool)
			}
			h.clients[client.ConversationID][client] = true

			if h.userClients[client.UID] == nil {
				h.userClients[client.UID] = make(map[*Client]bool)
			}
			h.userClients[client.UID][client] = true
			h.mu.Unlock()
			activeConnections.Inc()

			if err := h.redis.SAdd(context.Background(),
				"conversation:"+client.ConversationID+":users", client.UID).Err(); err != nil {
				h.logger.Warn("presence add failed", zap.String("uid", client.UID), zap.Error(err))
			}
			h.logger.Info("client registered",
				zap.String("uid", client.UID),
				zap.String("conversation_id", client.ConversationID))

			go h.publishPresence(client, "joined")

		case client := <-h.unregister:
			h.mu.Lock()
			removed := false
			if clients, ok := h.clients[client.ConversationID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.ConversationID)
					}
					removed = true
				}
			}
			if clients, ok := h.userClients[client.UID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.userClients, client.UID)
					}
				}
			}
			h.mu.Unlock()

			if removed {
				activeConnections.Dec()

				if err := h.redis.SRem(context.Background(),
					"conversation:"+client.ConversationID+":users", client.UID).Err(); err != nil {
					h.logger.Warn("presence remove failed", zap.String("uid", client.UID), zap.Error(err))
				}
				h.logger.Info("client unregistered",
					zap.String("uid", client.UID),
					zap.String("conversation_id", client.ConversationID))

				go h.publishPresence(client, "left")
			}
		}
	}
}

func (h *Hub) publishPresence(client *Client, state string) {
	err := h.publish(context.Background(), client.ConversationID, model.EventPresence, model.PresenceEvent{
		ConversationID: client.ConversationID,
		UserID:         client.UID,
		State:          state,
	})
	if err != nil {
		h.logger.Warn("presence publish failed", zap.Error(err))
	}
}
