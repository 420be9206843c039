package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAdvances(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusRead, true},
		{StatusDelivered, StatusRead, true},
		{StatusDelivered, StatusSent, false},
		{StatusRead, StatusDelivered, false},
		{StatusRead, StatusSent, false},
		{StatusSent, StatusSent, false},
		{StatusSent, Status("bogus"), false},
		{Status("bogus"), StatusRead, false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, c.from.Advances(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusSent.Valid())
	assert.True(t, StatusDelivered.Valid())
	assert.True(t, StatusRead.Valid())
	assert.False(t, Status("").Valid())
	assert.False(t, Status("seen").Valid())
}

func TestDMConversationID(t *testing.T) {
	assert.Equal(t, "dm:alice:bob", DMConversationID("alice", "bob"))
	assert.Equal(t, "dm:alice:bob", DMConversationID("bob", "alice"), "id must not depend on argument order")
}

func TestDMParticipants(t *testing.T) {
	u1, u2, ok := DMParticipants("dm:alice:bob")
	assert.True(t, ok)
	assert.Equal(t, "alice", u1)
	assert.Equal(t, "bob", u2)

	for _, id := range []string{"general", "dm:", "dm:alice", "dm::bob", "dm:alice:"} {
		_, _, ok := DMParticipants(id)
		assert.Falsef(t, ok, "id %q", id)
	}
}
