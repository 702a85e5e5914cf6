package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/models"
)

func intPtr(v int) *int { return &v }

func TestDirectRoomIsCommutativeAndDeduplicated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, created, err := store.FindOrCreateDirectRoom(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RoomDirect, first.Kind)
	assert.ElementsMatch(t, []int{1, 2}, first.Members)
	assert.ElementsMatch(t, []int{1, 2}, first.Admins)

	second, created, err := store.FindOrCreateDirectRoom(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	third, created, err := store.FindOrCreateDirectRoom(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, third.ID)
}

func TestDirectRoomConcurrentCreationYieldsOneRoom(t *testing.T) {
	store := NewMemoryStore()
	ids := make(chan int, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := 3, 4
			if i%2 == 0 {
				a, b = b, a
			}
			room, _, err := store.FindOrCreateDirectRoom(context.Background(), a, b)
			assert.NoError(t, err)
			ids <- room.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[int]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
}

func TestDirectRoomWithSelfIsRejected(t *testing.T) {
	_, _, err := NewMemoryStore().FindOrCreateDirectRoom(context.Background(), 5, 5)
	require.ErrorIs(t, err, ErrSelfDirectRoom)
}

func TestListRoomMessagesPagesNewestFirstReturnsOldestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	room, err := store.CreateRoom(ctx, models.Room{Name: "general", Kind: models.RoomGroup, CreatorID: 1, Members: []int{1}})
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three", "four", "five"} {
		_, err := store.CreateMessage(ctx, models.NewMessage{RoomID: intPtr(room.ID), SenderID: 1, Content: content, Type: models.MessageText})
		require.NoError(t, err)
	}

	page, err := store.ListRoomMessages(ctx, room.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "four", page[0].Content)
	assert.Equal(t, "five", page[1].Content)

	page, err = store.ListRoomMessages(ctx, room.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "two", page[0].Content)
	assert.Equal(t, "three", page[1].Content)

	stored, err := store.FindRoom(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessageID)
	assert.Equal(t, 5, *stored.LastMessageID)
}

func TestHiddenDirectRoomOnlyDisappearsForOneMember(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	room, _, err := store.FindOrCreateDirectRoom(ctx, 1, 2)
	require.NoError(t, err)

	room.HiddenFor = []int{1}
	require.NoError(t, store.SaveRoom(ctx, room))

	mine, err := store.ListRoomsForUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, mine)

	theirs, err := store.ListRoomsForUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, room.ID, theirs[0].ID)
}

func TestCountUnreadUsesViewWatermark(t *testing.T) {
	store := NewMemoryStore()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()
	room, err := store.CreateRoom(ctx, models.Room{Name: "r", Kind: models.RoomGroup, CreatorID: 1, Members: []int{1, 2}})
	require.NoError(t, err)

	send := func(sender int) {
		_, err := store.CreateMessage(ctx, models.NewMessage{RoomID: intPtr(room.ID), SenderID: sender, Content: "x", Type: models.MessageText})
		require.NoError(t, err)
	}
	send(2)
	send(2)
	send(1)

	counts, err := store.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.UnreadCount{{RoomID: room.ID, Count: 2}}, counts)

	require.NoError(t, store.MarkRoomViewed(ctx, room.ID, 1, store.now()))
	counts, err = store.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, counts)

	send(2)
	counts, err = store.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.UnreadCount{{RoomID: room.ID, Count: 1}}, counts)
}

func TestReactionsAndReadMarks(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	msg, err := store.CreateMessage(ctx, models.NewMessage{RecipientID: intPtr(2), SenderID: 1, Content: "hi", Type: models.MessageText})
	require.NoError(t, err)

	require.NoError(t, store.AppendReaction(ctx, msg.ID, 2, "👍"))
	require.NoError(t, store.AppendReaction(ctx, msg.ID, 2, "👍"))
	reactions, err := store.ListReactions(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, reactions, 1)

	require.NoError(t, store.RemoveReaction(ctx, msg.ID, 2, "👍"))
	reactions, err = store.ListReactions(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, reactions)

	marked, err := store.MarkRead(ctx, msg.ID, 2)
	require.NoError(t, err)
	assert.True(t, marked)
	marked, err = store.MarkRead(ctx, msg.ID, 2)
	require.NoError(t, err)
	assert.False(t, marked)

	_, err = store.GetMessage(ctx, 999)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestSearchMessagesIsScopedToRooms(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a, _ := store.CreateRoom(ctx, models.Room{Name: "a", Kind: models.RoomGroup, CreatorID: 1, Members: []int{1}})
	b, _ := store.CreateRoom(ctx, models.Room{Name: "b", Kind: models.RoomGroup, CreatorID: 2, Members: []int{2}})

	_, _ = store.CreateMessage(ctx, models.NewMessage{RoomID: intPtr(a.ID), SenderID: 1, Content: "Hello World", Type: models.MessageText})
	_, _ = store.CreateMessage(ctx, models.NewMessage{RoomID: intPtr(b.ID), SenderID: 2, Content: "hello there", Type: models.MessageText})

	found, err := store.SearchMessages(ctx, "HELLO", []int{a.ID}, 50)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Hello World", found[0].Content)
}
