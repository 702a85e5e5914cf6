package unread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chat-realtime/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func roomMsg(id, roomID, sender int) models.Message {
	return models.Message{ID: id, RoomID: &roomID, SenderID: sender, CreatedAt: t0.Add(time.Duration(id) * time.Second)}
}

func directMsg(id, recipient, sender int) models.Message {
	return models.Message{ID: id, RecipientID: &recipient, SenderID: sender, CreatedAt: t0}
}

func TestUnreadCountsInactiveRoomsAndResetsOnActivation(t *testing.T) {
	const alice, bob = 1, 2
	c := NewCounter(alice)
	c.Activate(1)

	for i := 1; i <= 3; i++ {
		assert.True(t, c.Receive(roomMsg(i, 2, bob)))
	}
	assert.Equal(t, 3, c.Get(2))
	assert.Equal(t, 0, c.Get(1))

	c.Activate(2)
	assert.Equal(t, 0, c.Get(2))
	assert.Equal(t, 2, c.Active())
}

func TestCountingIgnoresMessageTimestamps(t *testing.T) {
	c := NewCounter(1)
	c.Activate(20)
	c.Activate(10)

	// Server clock far behind or ahead of anything the client saw; only the
	// order of events matters.
	for i, at := range []time.Time{t0.Add(-time.Hour), t0.Add(time.Hour), t0} {
		msg := roomMsg(i+1, 20, 2)
		msg.CreatedAt = at
		assert.True(t, c.Receive(msg))
	}
	assert.Equal(t, 3, c.Get(20))
}

func TestRedeliveredMessageIsCountedOnce(t *testing.T) {
	c := NewCounter(1)
	c.Activate(10)

	msg := roomMsg(7, 20, 2)
	assert.True(t, c.Receive(msg))
	assert.False(t, c.Receive(msg))
	assert.Equal(t, 1, c.Get(20))

	c.Activate(20)
	c.Activate(10)
	assert.False(t, c.Receive(msg))
	assert.Equal(t, 0, c.Get(20))

	assert.True(t, c.Receive(roomMsg(8, 20, 2)))
	assert.Equal(t, 1, c.Get(20))
}

func TestActiveRoomAndOwnMessagesAreNotCounted(t *testing.T) {
	c := NewCounter(1)
	c.Activate(5)

	assert.False(t, c.Receive(roomMsg(1, 5, 2)))
	assert.False(t, c.Receive(roomMsg(2, 6, 1)))
	assert.False(t, c.Receive(directMsg(3, 2, 1)))
	assert.Empty(t, c.Snapshot())
	assert.Equal(t, 0, c.Total())
}

func TestMessageSeenWhileActiveStaysSeenAfterSwitching(t *testing.T) {
	c := NewCounter(1)
	c.Activate(2)
	assert.False(t, c.Receive(roomMsg(4, 2, 3)))

	c.Activate(1)
	assert.False(t, c.Receive(roomMsg(4, 2, 3)))
	assert.True(t, c.Receive(roomMsg(5, 2, 3)))
	assert.Equal(t, 1, c.Get(2))
}

func TestPrivateMessagesHaveTheirOwnCount(t *testing.T) {
	c := NewCounter(1)
	c.Activate(5)

	assert.True(t, c.Receive(directMsg(9, 1, 2)))
	assert.False(t, c.Receive(directMsg(9, 1, 2)))
	assert.True(t, c.Receive(directMsg(10, 1, 3)))
	assert.Equal(t, 2, c.Private())
	assert.Equal(t, 2, c.Total())
	assert.Empty(t, c.Snapshot())

	c.ClearPrivate()
	assert.Equal(t, 0, c.Private())
	assert.False(t, c.Receive(directMsg(10, 1, 3)))
}

func TestLeaveRemovesCounter(t *testing.T) {
	c := NewCounter(1)
	c.Receive(roomMsg(1, 4, 2))
	assert.Equal(t, []models.UnreadCount{{RoomID: 4, Count: 1}}, c.Snapshot())

	c.Leave(4)
	assert.Empty(t, c.Snapshot())
	assert.Equal(t, 0, c.Total())
}

func TestReplayMatchesDirectCalls(t *testing.T) {
	events := []Event{
		{Kind: Activated, RoomID: 1},
		{Kind: Received, Message: roomMsg(1, 2, 9)},
		{Kind: Received, Message: roomMsg(2, 2, 9)},
		{Kind: Received, Message: roomMsg(2, 2, 9)},
		{Kind: Received, Message: roomMsg(3, 3, 9)},
		{Kind: Deactivated},
		{Kind: Received, Message: roomMsg(4, 1, 9)},
		{Kind: Received, Message: directMsg(5, 7, 9)},
		{Kind: Left, RoomID: 3},
	}
	c := Replay(7, events)
	assert.Equal(t, []models.UnreadCount{{RoomID: 1, Count: 1}, {RoomID: 2, Count: 2}}, c.Snapshot())
	assert.Equal(t, 4, c.Total())

	c.Apply(Event{Kind: PrivateRead})
	assert.Equal(t, 3, c.Total())
}

func TestSeedKeepsActiveRoomAtZero(t *testing.T) {
	c := NewCounter(1)
	c.Activate(2)
	c.Receive(roomMsg(1, 6, 3))
	c.Seed([]models.UnreadCount{{RoomID: 2, Count: 4}, {RoomID: 3, Count: 1}})
	assert.Equal(t, 0, c.Get(2))
	assert.Equal(t, 1, c.Get(3))
	assert.Equal(t, 0, c.Get(6))
}
