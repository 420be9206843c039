package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/pkg/model"
)

type sessionFixture struct {
	sess      *Session
	transport *fakeTransport
	served    atomic.Int64
}

func newTestSession(t *testing.T) *sessionFixture {
	t.Helper()
	fx := &sessionFixture{transport: newFakeTransport()}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]model.Message{})
		fx.served.Add(1)
	}))
	t.Cleanup(srv.Close)

	fx.sess = NewSession(Options{
		Transport:  fx.transport,
		Identity:   staticIdentity{user: alice},
		Notifier:   &recordingNotifier{},
		APIBaseURL: srv.URL,
		Token:      "tok",
	})
	fx.sess.SetSendTimeout(0)
	return fx
}

// waitSettled blocks until at least n background history loads landed, so
// later assertions cannot race against a load replacing the confirmed
// collection. Loads record their result only after the server responds, so
// served>=n together with loading=false means the nth load is fully applied.
func (fx *sessionFixture) waitSettled(t *testing.T, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return fx.served.Load() >= n && !fx.sess.Loading()
	}, time.Second, 5*time.Millisecond)
}

func TestSessionOpenSubscribesOnce(t *testing.T) {
	fx := newTestSession(t)

	fx.sess.Open(context.Background(), "c1")
	assert.Equal(t, 1, fx.transport.handlerCount())

	fx.sess.Open(context.Background(), "c2")
	assert.Equal(t, 1, fx.transport.handlerCount(), "switching conversations must not stack subscriptions")

	fx.sess.Close()
	assert.Equal(t, 0, fx.transport.handlerCount())
}

func TestSessionSwitchClearsState(t *testing.T) {
	fx := newTestSession(t)

	fx.sess.Open(context.Background(), "c1")
	fx.waitSettled(t, 1)
	fx.transport.emitNewMessage(confirmedMsg("m1", "c1", "bob", time.Now()), "")
	require.Len(t, fx.sess.View(), 1)

	fx.sess.Open(context.Background(), "c2")
	fx.waitSettled(t, 2)
	assert.Empty(t, fx.sess.View(), "no state leaks across conversation scopes")

	// Events for the old conversation no longer land.
	fx.transport.emitNewMessage(confirmedMsg("m2", "c1", "bob", time.Now()), "")
	assert.Empty(t, fx.sess.View())
}

func TestSessionReopenSameConversationRefetches(t *testing.T) {
	fx := newTestSession(t)

	fx.sess.Open(context.Background(), "c1")
	fx.waitSettled(t, 1)
	fx.transport.emitNewMessage(confirmedMsg("m1", "c1", "bob", time.Now()), "")
	require.Len(t, fx.sess.View(), 1)

	fx.sess.Open(context.Background(), "c1")
	fx.waitSettled(t, 2)
	assert.Empty(t, fx.sess.View(), "reopening refetches and adopts the server snapshot")
}

func TestSessionSendRoutesToActiveConversation(t *testing.T) {
	fx := newTestSession(t)

	fx.sess.Open(context.Background(), "c2")
	fx.waitSettled(t, 1)

	fx.sess.Composer().Set("hi")
	tempID, err := fx.sess.Send(context.Background(), "hi")
	require.NoError(t, err)
	require.NotEmpty(t, tempID)

	msgs, _ := fx.transport.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "c2", msgs[0].conversationID)
}

func TestSessionAckPromotesOptimisticSend(t *testing.T) {
	fx := newTestSession(t)

	fx.sess.Open(context.Background(), "c1")
	fx.waitSettled(t, 1)

	tempID, err := fx.sess.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 1, fx.sess.Store().PendingCount())

	canonical := confirmedMsg("m1", "c1", "alice", time.Now())
	canonical.Content = "hello"
	fx.transport.emitAck(model.AckEvent{TempID: tempID, Success: true, Message: &canonical})

	assert.Equal(t, 0, fx.sess.Store().PendingCount())
	view := fx.sess.View()
	require.Len(t, view, 1)
	assert.Equal(t, "m1", view[0].ID)
	assert.False(t, view[0].Pending)
}

func TestSessionMarkRead(t *testing.T) {
	fx := newTestSession(t)

	fx.sess.Open(context.Background(), "c1")
	fx.waitSettled(t, 1)
	fx.transport.emitNewMessage(confirmedMsg("m1", "c1", "bob", time.Now()), "")

	require.NoError(t, fx.sess.MarkRead(context.Background(), "m1"))

	m, ok := fx.sess.Store().Confirmed("m1")
	require.True(t, ok)
	assert.Equal(t, model.StatusRead, m.Status)

	_, statuses := fx.transport.snapshot()
	// One delivered ack from ingestion, one read receipt from MarkRead.
	require.Len(t, statuses, 2)
	assert.Equal(t, sentStatus{"c1", "m1", model.StatusRead}, statuses[1])
}

func TestSessionStatusUpdateFansToStore(t *testing.T) {
	fx := newTestSession(t)

	fx.sess.Open(context.Background(), "c1")
	fx.waitSettled(t, 1)
	fx.transport.emitNewMessage(confirmedMsg("m1", "c1", "bob", time.Now()), "")

	fx.transport.emitStatusUpdate("c1", "m1", model.StatusRead)

	m, ok := fx.sess.Store().Confirmed("m1")
	require.True(t, ok)
	assert.Equal(t, model.StatusRead, m.Status)
}
