package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/models"
)

func event(t *testing.T, name string, data any) Event {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Event{Name: name, Data: raw}
}

func message(id, roomID, sender int, at time.Time) models.Message {
	return models.Message{ID: id, RoomID: &roomID, SenderID: sender, Content: "x", CreatedAt: at}
}

func TestStateCountsUnreadOutsideActiveRoom(t *testing.T) {
	now := time.Now()
	s := NewState(1)
	s.Activate(1)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Apply(event(t, models.EventReceiveMessage, message(i, 2, 2, now.Add(time.Duration(i)*time.Millisecond)))))
	}
	require.NoError(t, s.Apply(event(t, models.EventReceiveMessage, message(4, 1, 2, now.Add(5*time.Millisecond)))))
	assert.Equal(t, 3, s.Unread(2))
	assert.Equal(t, 0, s.Unread(1))

	s.Activate(2)
	assert.Equal(t, 0, s.Unread(2))
	assert.Len(t, s.Messages(2), 3)
}

func TestStateReplacesRostersAndReactions(t *testing.T) {
	now := time.Now()
	s := NewState(1)
	require.NoError(t, s.Apply(event(t, models.EventReceiveMessage, message(9, 3, 2, now))))

	roster := []models.Identity{{ID: 2, Username: "bob"}}
	require.NoError(t, s.Apply(event(t, models.EventUserTyping, models.TypingPayload{RoomID: 3, Users: roster})))
	assert.Equal(t, roster, s.Typing(3))
	require.NoError(t, s.Apply(event(t, models.EventUserTyping, models.TypingPayload{RoomID: 3, Users: []models.Identity{}})))
	assert.Empty(t, s.Typing(3))

	require.NoError(t, s.Apply(event(t, models.EventOnlineUsers, roster)))
	assert.Equal(t, roster, s.Online())

	reacted := message(9, 3, 2, now)
	reacted.Reactions = []models.Reaction{{UserID: 1, Emoji: "👍"}}
	require.NoError(t, s.Apply(event(t, models.EventMessageReaction, reacted)))
	require.Len(t, s.Messages(3), 1)
	assert.Len(t, s.Messages(3)[0].Reactions, 1)
}

func TestStateForgetsRoomWhenRemoved(t *testing.T) {
	s := NewState(1)
	require.NoError(t, s.Apply(event(t, models.EventReceiveMessage, message(1, 4, 2, time.Now()))))
	assert.Equal(t, 1, s.Unread(4))

	require.NoError(t, s.Apply(event(t, models.EventUserLeftRoom, models.RoomPresencePayload{RoomID: 4, UserID: 1})))
	assert.Empty(t, s.UnreadSnapshot())
	assert.Empty(t, s.Messages(4))

	require.NoError(t, s.Apply(event(t, models.EventError, models.ErrorPayload{Message: "nope", Code: "forbidden", Event: "join_room"})))
	assert.Equal(t, "forbidden", s.Errors()[0].Code)
}

func TestStateCountsRedeliveredFrameOnce(t *testing.T) {
	s := NewState(1)
	s.Activate(10)

	frame := event(t, models.EventReceiveMessage, message(7, 20, 2, time.Now()))
	require.NoError(t, s.Apply(frame))
	require.NoError(t, s.Apply(frame))
	assert.Equal(t, 1, s.Unread(20))
	assert.Len(t, s.Messages(20), 1)
}

func TestStateUnreadSurvivesClientClockSkew(t *testing.T) {
	server := time.Now().Add(-time.Minute)
	s := NewState(1)
	s.Activate(20)
	s.Activate(10)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Apply(event(t, models.EventReceiveMessage, message(i, 20, 2, server.Add(time.Duration(i)*time.Second)))))
	}
	assert.Equal(t, 3, s.Unread(20))
}

func TestStateCountsPrivateMessages(t *testing.T) {
	s := NewState(1)
	self := 1
	dm := models.Message{ID: 3, RecipientID: &self, SenderID: 2, Content: "hi", CreatedAt: time.Now()}
	require.NoError(t, s.Apply(event(t, models.EventPrivateMessage, dm)))
	require.NoError(t, s.Apply(event(t, models.EventPrivateMessage, dm)))
	require.NoError(t, s.Apply(event(t, models.EventReceiveMessage, message(4, 5, 2, time.Now()))))

	assert.Equal(t, 1, s.UnreadPrivate())
	assert.Equal(t, 2, s.UnreadTotal())
	assert.Len(t, s.Private(), 1)

	s.MarkPrivateRead()
	assert.Equal(t, 0, s.UnreadPrivate())
	assert.Equal(t, 1, s.UnreadTotal())
}
