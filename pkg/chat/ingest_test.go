package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/pkg/model"
)

func newTestIngestor(t *testing.T) (*Ingestor, *Sender, *Store, *fakeTransport, *recordingNotifier) {
	t.Helper()
	store := NewStore()
	store.Reset("c1")
	transport := newFakeTransport()
	notifier := &recordingNotifier{}
	identity := staticIdentity{user: alice}
	sender := NewSender(store, transport, identity, notifier, nil)
	sender.SetTimeout(0)
	ingest := NewIngestor(store, sender, transport, identity, nil)
	return ingest, sender, store, transport, notifier
}

func TestIngestIgnoresOtherConversations(t *testing.T) {
	ingest, _, store, _, _ := newTestIngestor(t)

	ingest.HandleNewMessage(confirmedMsg("m1", "c2", "bob", time.Now()), "")

	assert.Equal(t, 0, store.ConfirmedCount())
}

func TestIngestRemoteMessage(t *testing.T) {
	ingest, _, store, transport, _ := newTestIngestor(t)

	msg := confirmedMsg("m1", "c1", "bob", time.Now())
	ingest.HandleNewMessage(msg, "")

	assert.Equal(t, 1, store.ConfirmedCount())

	// A delivered acknowledgement goes back over the transport.
	_, statuses := transport.snapshot()
	require.Len(t, statuses, 1)
	assert.Equal(t, sentStatus{"c1", "m1", model.StatusDelivered}, statuses[0])
}

func TestIngestDuplicateDelivery(t *testing.T) {
	ingest, _, store, transport, _ := newTestIngestor(t)

	msg := confirmedMsg("m1", "c1", "bob", time.Now())
	ingest.HandleNewMessage(msg, "")
	ingest.HandleNewMessage(msg, "")

	assert.Equal(t, 1, store.ConfirmedCount(), "at-least-once delivery must collapse to one entry")

	_, statuses := transport.snapshot()
	assert.Len(t, statuses, 1, "duplicates must not re-acknowledge")
}

func TestIngestHistoryThenDuplicateEvent(t *testing.T) {
	ingest, _, store, _, _ := newTestIngestor(t)

	msg := confirmedMsg("m1", "c1", "bob", time.Now())
	store.LoadHistory("c1", []model.Message{msg})

	// The same message arrives over the live stream.
	ingest.HandleNewMessage(msg, "")

	assert.Equal(t, 1, store.ConfirmedCount())
}

func TestIngestSelfMessageSuppression(t *testing.T) {
	ingest, _, store, transport, _ := newTestIngestor(t)

	// Our own broadcast without a temp id: already represented locally.
	ingest.HandleNewMessage(confirmedMsg("m1", "c1", "alice", time.Now()), "")

	assert.Equal(t, 0, store.ConfirmedCount())
	_, statuses := transport.snapshot()
	assert.Empty(t, statuses, "no delivered ack for our own message")
}

func TestIngestSelfMessageWithTempIDPromotes(t *testing.T) {
	ingest, sender, store, _, _ := newTestIngestor(t)

	tempID, err := sender.Send(context.Background(), "c1", "hello")
	require.NoError(t, err)
	require.Equal(t, 1, store.PendingCount())

	canonical := confirmedMsg("m1", "c1", "alice", time.Now())
	ingest.HandleNewMessage(canonical, tempID)

	assert.Equal(t, 0, store.PendingCount())
	assert.Equal(t, 1, store.ConfirmedCount())
	assert.Equal(t, 0, sender.InflightCount())
}

func TestIngestStatusUpdate(t *testing.T) {
	t.Run("known id advances", func(t *testing.T) {
		ingest, _, store, _, _ := newTestIngestor(t)
		store.AppendConfirmed(confirmedMsg("m1", "c1", "bob", time.Now()))

		ingest.HandleStatusUpdate("c1", "m1", model.StatusRead)

		m, _ := store.Confirmed("m1")
		assert.Equal(t, model.StatusRead, m.Status)
	})

	t.Run("unknown id ignored", func(t *testing.T) {
		ingest, _, store, _, _ := newTestIngestor(t)
		ingest.HandleStatusUpdate("c1", "missing", model.StatusRead)
		assert.Equal(t, 0, store.ConfirmedCount())
	})

	t.Run("other conversation ignored", func(t *testing.T) {
		ingest, _, store, _, _ := newTestIngestor(t)
		store.AppendConfirmed(confirmedMsg("m1", "c1", "bob", time.Now()))

		ingest.HandleStatusUpdate("c2", "m1", model.StatusRead)

		m, _ := store.Confirmed("m1")
		assert.Equal(t, model.StatusSent, m.Status)
	})

	t.Run("invalid status ignored", func(t *testing.T) {
		ingest, _, store, _, _ := newTestIngestor(t)
		store.AppendConfirmed(confirmedMsg("m1", "c1", "bob", time.Now()))

		ingest.HandleStatusUpdate("c1", "m1", model.Status("exploded"))

		m, _ := store.Confirmed("m1")
		assert.Equal(t, model.StatusSent, m.Status)
	})
}

func TestIngestSendErrorRoutesToSender(t *testing.T) {
	ingest, sender, store, _, notifier := newTestIngestor(t)

	tempID, err := sender.Send(context.Background(), "c1", "hello")
	require.NoError(t, err)

	ingest.HandleSendError(tempID, "network")

	assert.Equal(t, 0, store.PendingCount())
	assert.Equal(t, "hello", sender.Composer().Text())
	assert.Equal(t, 1, notifier.count())

	// Temp id never leaked into confirmed.
	_, ok := store.Confirmed(tempID)
	assert.False(t, ok)
}
