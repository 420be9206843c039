package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatline/pkg/model"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 256
)

// WSTransport is the gorilla/websocket implementation of Transport. It runs
// a read pump that decodes gateway envelopes and dispatches them to the
// registered handlers, and a write pump that serializes outbound frames.
type WSTransport struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	mu        sync.RWMutex
	nextSub   int
	handlers  map[int]EventHandler
	ephemeral func(model.Envelope)
	closed    bool
	done      chan struct{}
}

// DialWS connects to the gateway websocket endpoint with a bearer token and
// starts the pumps.
func DialWS(ctx context.Context, gatewayURL, token string, logger *zap.Logger) (*WSTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, gatewayURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	t := &WSTransport{
		conn:     conn,
		send:     make(chan []byte, wsSendBuffer),
		logger:   logger,
		handlers: make(map[int]EventHandler),
		done:     make(chan struct{}),
	}
	go t.readPump()
	go t.writePump()
	return t, nil
}

func (t *WSTransport) SendMessage(ctx context.Context, conversationID, content, tempID string) error {
	return t.write(ctx, model.EventSendMessage, model.SendMessageEvent{
		ConversationID: conversationID,
		Content:        content,
		TempID:         tempID,
	})
}

func (t *WSTransport) SendStatus(ctx context.Context, conversationID, messageID string, status model.Status) error {
	return t.write(ctx, model.EventUpdateStatus, model.StatusUpdateEvent{
		ConversationID: conversationID,
		MessageID:      messageID,
		Status:         status,
	})
}

func (t *WSTransport) SendTyping(ctx context.Context, conversationID string) error {
	return t.write(ctx, model.EventTyping, model.TypingEvent{ConversationID: conversationID})
}

type wsSubscription struct {
	t    *WSTransport
	id   int
	once sync.Once
}

func (s *wsSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.t.mu.Lock()
		delete(s.t.handlers, s.id)
		s.t.mu.Unlock()
	})
}

// OnEphemeral installs a hook for typing and presence frames, which bypass
// the reconciliation store.
func (t *WSTransport) OnEphemeral(fn func(model.Envelope)) {
	t.mu.Lock()
	t.ephemeral = fn
	t.mu.Unlock()
}

func (t *WSTransport) Subscribe(h EventHandler) Subscription {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.handlers[id] = h
	t.mu.Unlock()
	return &wsSubscription{t: t, id: id}
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	deadline := time.Now().Add(wsWriteWait)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}

func (t *WSTransport) write(ctx context.Context, typ model.EventType, payload any) error {
	frame, err := model.Encode(typ, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	select {
	case t.send <- frame:
		return nil
	case <-t.done:
		return fmt.Errorf("send %s: transport closed", typ)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *WSTransport) readPump() {
	defer t.Close()
	t.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("gateway read error", zap.Error(err))
			}
			return
		}
		t.dispatch(raw)
	}
}

func (t *WSTransport) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()
	for {
		select {
		case frame := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}

func (t *WSTransport) dispatch(raw []byte) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}

	t.mu.RLock()
	handlers := make([]EventHandler, 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.mu.RUnlock()

	switch env.Type {
	case model.EventNewMessage:
		var ev model.NewMessageEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			t.logger.Warn("bad new-message payload", zap.Error(err))
			return
		}
		for _, h := range handlers {
			h.OnNewMessage(ev.Message, ev.TempID)
		}
	case model.EventStatusUpdate:
		var ev model.StatusUpdateEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			t.logger.Warn("bad status-update payload", zap.Error(err))
			return
		}
		for _, h := range handlers {
			h.OnStatusUpdate(ev.ConversationID, ev.MessageID, ev.Status)
		}
	case model.EventMessageError:
		var ev model.MessageErrorEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			t.logger.Warn("bad message-error payload", zap.Error(err))
			return
		}
		for _, h := range handlers {
			h.OnSendError(ev.TempID, ev.Error)
		}
	case model.EventAck:
		var ev model.AckEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			t.logger.Warn("bad ack payload", zap.Error(err))
			return
		}
		for _, h := range handlers {
			h.OnAck(ev)
		}
	case model.EventTyping, model.EventPresence:
		// Not part of the store; handed to the UI hook if one is set.
		t.mu.RLock()
		fn := t.ephemeral
		t.mu.RUnlock()
		if fn != nil {
			fn(env)
		}
	default:
		t.logger.Debug("ignoring unknown event type", zap.String("type", string(env.Type)))
	}
}
