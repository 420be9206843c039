package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/pkg/model"
)

var alice = model.Sender{UID: "alice", Name: "Alice", Email: "alice@example.com"}

func newTestSender(t *testing.T) (*Sender, *Store, *fakeTransport, *recordingNotifier) {
	t.Helper()
	store := NewStore()
	store.Reset("c1")
	transport := newFakeTransport()
	notifier := &recordingNotifier{}
	sender := NewSender(store, transport, staticIdentity{user: alice}, notifier, nil)
	sender.SetTimeout(0) // tests that want the timeout arm it explicitly
	return sender, store, transport, notifier
}

func TestSendAppendsPendingSynchronously(t *testing.T) {
	sender, store, transport, _ := newTestSender(t)

	tempID, err := sender.Send(context.Background(), "c1", "hello")
	require.NoError(t, err)
	require.NotEmpty(t, tempID)

	assert.Equal(t, 1, store.PendingCount())
	p, ok := store.Pending(tempID)
	require.True(t, ok)
	assert.Equal(t, "hello", p.Content)
	assert.Equal(t, model.StatusSent, p.Status)
	assert.Equal(t, alice, p.Sender)

	msgs, _ := transport.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, sentMessage{"c1", "hello", tempID}, msgs[0])

	assert.Empty(t, sender.Composer().Text(), "composer clears on submit")
}

func TestSendRejectsEmptyContent(t *testing.T) {
	sender, store, _, _ := newTestSender(t)

	_, err := sender.Send(context.Background(), "c1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 0, store.PendingCount())
}

func TestSendFailureRollsBack(t *testing.T) {
	sender, store, _, notifier := newTestSender(t)

	tempID, err := sender.Send(context.Background(), "c1", "hello")
	require.NoError(t, err)

	sender.Fail(tempID, "network")

	assert.Equal(t, 0, store.PendingCount())
	assert.Equal(t, "hello", sender.Composer().Text(), "draft restored for retry")
	assert.Equal(t, 1, notifier.count())

	// The temp id never appears in the confirmed collection.
	_, ok := store.Confirmed(tempID)
	assert.False(t, ok)
}

func TestSendTransportErrorFailsImmediately(t *testing.T) {
	sender, store, transport, notifier := newTestSender(t)
	transport.sendErr = errors.New("connection lost")

	_, err := sender.Send(context.Background(), "c1", "hello")
	require.Error(t, err)

	assert.Equal(t, 0, store.PendingCount())
	assert.Equal(t, "hello", sender.Composer().Text())
	assert.Equal(t, 1, notifier.count())
}

func TestAckWithMessagePromotes(t *testing.T) {
	sender, store, _, _ := newTestSender(t)

	tempID, _ := sender.Send(context.Background(), "c1", "hello")

	canonical := confirmedMsg("m1", "c1", "alice", time.Now())
	sender.HandleAck(model.AckEvent{TempID: tempID, Success: true, Message: &canonical})

	assert.Equal(t, 0, store.PendingCount())
	assert.Equal(t, 1, store.ConfirmedCount())
	assert.Equal(t, 0, sender.InflightCount())
}

func TestAckWithoutMessageWaitsForBroadcast(t *testing.T) {
	sender, store, _, _ := newTestSender(t)

	tempID, _ := sender.Send(context.Background(), "c1", "hello")

	sender.HandleAck(model.AckEvent{TempID: tempID, Success: true})
	assert.Equal(t, 1, store.PendingCount(), "pending survives until broadcast promotion")

	canonical := confirmedMsg("m1", "c1", "alice", time.Now())
	sender.Confirm(tempID, canonical)

	assert.Equal(t, 0, store.PendingCount())
	assert.Equal(t, 1, store.ConfirmedCount())
}

func TestAckFailureRollsBack(t *testing.T) {
	sender, store, _, notifier := newTestSender(t)

	tempID, _ := sender.Send(context.Background(), "c1", "hello")
	sender.HandleAck(model.AckEvent{TempID: tempID, Success: false, Error: "persist failed"})

	assert.Equal(t, 0, store.PendingCount())
	assert.Equal(t, 1, notifier.count())
}

func TestLateAckAfterFailureIsIgnored(t *testing.T) {
	sender, store, _, _ := newTestSender(t)

	tempID, _ := sender.Send(context.Background(), "c1", "hello")
	sender.Fail(tempID, "timeout")

	canonical := confirmedMsg("m1", "c1", "alice", time.Now())
	sender.HandleAck(model.AckEvent{TempID: tempID, Success: true, Message: &canonical})

	assert.Equal(t, 0, store.PendingCount())
	assert.Equal(t, 0, store.ConfirmedCount(), "resolved sends ignore late acks")
}

func TestConcurrentSendsAreIndependent(t *testing.T) {
	sender, store, _, _ := newTestSender(t)
	ctx := context.Background()

	t1, err := sender.Send(ctx, "c1", "first")
	require.NoError(t, err)
	t2, err := sender.Send(ctx, "c1", "second")
	require.NoError(t, err)
	t3, err := sender.Send(ctx, "c1", "third")
	require.NoError(t, err)
	require.NotEqual(t, t1, t2)
	require.NotEqual(t, t2, t3)

	assert.Equal(t, 3, store.PendingCount())
	assert.Equal(t, 3, sender.InflightCount())

	// Resolve out of order: second fails, third confirms, first acks.
	sender.Fail(t2, "network")
	sender.Confirm(t3, confirmedMsg("m3", "c1", "alice", time.Now()))
	m1 := confirmedMsg("m1", "c1", "alice", time.Now())
	sender.HandleAck(model.AckEvent{TempID: t1, Success: true, Message: &m1})

	assert.Equal(t, 0, store.PendingCount())
	assert.Equal(t, 2, store.ConfirmedCount())
	assert.Equal(t, 0, sender.InflightCount())
	assert.Equal(t, "second", sender.Composer().Text())
}

func TestSendTimeout(t *testing.T) {
	sender, store, _, notifier := newTestSender(t)
	sender.SetTimeout(20 * time.Millisecond)

	_, err := sender.Send(context.Background(), "c1", "hello")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.PendingCount() == 0
	}, time.Second, 5*time.Millisecond, "timed-out send must roll back")
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, "hello", sender.Composer().Text())
}

func TestAckDisarmsTimeout(t *testing.T) {
	sender, store, _, notifier := newTestSender(t)
	sender.SetTimeout(20 * time.Millisecond)

	tempID, _ := sender.Send(context.Background(), "c1", "hello")
	sender.HandleAck(model.AckEvent{TempID: tempID, Success: true})

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, store.PendingCount(), "acked send must not time out")
	assert.Equal(t, 0, notifier.count())
}
