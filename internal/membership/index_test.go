package membership

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/serial"
)

func newIndex(t *testing.T) (*Index, *repositories.MemoryStore) {
	t.Helper()
	store := repositories.NewMemoryStore()
	return New(store, serial.New()), store
}

func TestJoinIsIdempotentOnMemberSet(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()
	room, err := idx.Create(ctx, 1, "general", "", "")
	require.NoError(t, err)

	room, err = idx.Join(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, room.Members)

	_, err = idx.Join(ctx, room.ID, 2)
	assert.True(t, errs.Is(err, errs.AlreadyMember))

	members, err := idx.MembersOf(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, members)
}

func TestConcurrentJoinsProduceNoDuplicates(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()
	room, err := idx.Create(ctx, 1, "general", "", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = idx.Join(ctx, room.ID, 7)
		}()
	}
	wg.Wait()

	members, err := idx.MembersOf(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 7}, members)
}

func TestLeaveNonMemberIsNoop(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()
	room, err := idx.Create(ctx, 1, "general", "", "")
	require.NoError(t, err)

	_, left, err := idx.Leave(ctx, room.ID, 9)
	require.NoError(t, err)
	assert.False(t, left)

	_, err = idx.Join(ctx, room.ID, 9)
	require.NoError(t, err)
	room, left, err = idx.Leave(ctx, room.ID, 9)
	require.NoError(t, err)
	assert.True(t, left)
	assert.Equal(t, []int{1}, room.Members)
}

func TestMissingRoomIsNotFound(t *testing.T) {
	idx, _ := newIndex(t)
	_, err := idx.Join(context.Background(), 404, 1)
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()
	room, err := idx.Create(ctx, 1, "general", "", "")
	require.NoError(t, err)
	_, err = idx.Join(ctx, room.ID, 2)
	require.NoError(t, err)
	_, err = idx.Join(ctx, room.ID, 3)
	require.NoError(t, err)

	_, err = idx.AddAdmin(ctx, room.ID, 2, 3)
	assert.True(t, errs.Is(err, errs.Forbidden))
	_, err = idx.UpdateMetadata(ctx, room.ID, 2, models.RoomPatch{Name: "x"})
	assert.True(t, errs.Is(err, errs.Forbidden))
	_, _, err = idx.RemoveMember(ctx, room.ID, 2, 3)
	assert.True(t, errs.Is(err, errs.Forbidden))

	room, err = idx.AddAdmin(ctx, room.ID, 1, 2)
	require.NoError(t, err)
	assert.True(t, room.IsAdmin(2))

	_, err = idx.AddAdmin(ctx, room.ID, 1, 2)
	assert.True(t, errs.Is(err, errs.AlreadyExists))
	_, err = idx.AddAdmin(ctx, room.ID, 1, 42)
	assert.True(t, errs.Is(err, errs.InvalidState))

	room, err = idx.UpdateMetadata(ctx, room.ID, 2, models.RoomPatch{Name: "renamed", Description: "d"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", room.Name)
	assert.Equal(t, "d", room.Description)

	room, removed, err := idx.RemoveMember(ctx, room.ID, 2, 3)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, room.IsMember(3))
}

func TestCreatorIsProtected(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()
	room, err := idx.Create(ctx, 1, "general", "", "")
	require.NoError(t, err)
	_, err = idx.Join(ctx, room.ID, 2)
	require.NoError(t, err)
	_, err = idx.AddAdmin(ctx, room.ID, 1, 2)
	require.NoError(t, err)

	_, err = idx.RemoveAdmin(ctx, room.ID, 2, 1)
	assert.True(t, errs.Is(err, errs.InvalidState))
	_, _, err = idx.RemoveMember(ctx, room.ID, 2, 1)
	assert.True(t, errs.Is(err, errs.InvalidState))

	room, err = idx.RemoveAdmin(ctx, room.ID, 1, 2)
	require.NoError(t, err)
	assert.False(t, room.IsAdmin(2))
	assert.True(t, room.IsAdmin(1))
}

func TestDeleteGroupRoomIsCreatorOnly(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()
	room, err := idx.Create(ctx, 1, "general", "", "")
	require.NoError(t, err)
	_, err = idx.Join(ctx, room.ID, 2)
	require.NoError(t, err)
	_, err = idx.AddAdmin(ctx, room.ID, 1, 2)
	require.NoError(t, err)

	_, err = idx.Delete(ctx, room.ID, 2)
	assert.True(t, errs.Is(err, errs.Forbidden))

	_, err = idx.Delete(ctx, room.ID, 1)
	require.NoError(t, err)

	_, err = idx.Room(ctx, room.ID)
	assert.True(t, errs.Is(err, errs.NotFound))
	_, err = idx.Join(ctx, room.ID, 3)
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestDirectRoomRules(t *testing.T) {
	idx, store := newIndex(t)
	ctx := context.Background()

	room, created, err := idx.Direct(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, created)

	_, err = idx.Join(ctx, room.ID, 3)
	assert.True(t, errs.Is(err, errs.InvalidState))
	_, _, err = idx.Leave(ctx, room.ID, 1)
	assert.True(t, errs.Is(err, errs.InvalidState))
	_, err = idx.UpdateMetadata(ctx, room.ID, 1, models.RoomPatch{Name: "x"})
	assert.True(t, errs.Is(err, errs.InvalidState))
	_, err = idx.UpdateMetadata(ctx, room.ID, 3, models.RoomPatch{Name: "x"})
	assert.True(t, errs.Is(err, errs.Forbidden))

	_, _, err = idx.Direct(ctx, 1, 1)
	assert.True(t, errs.Is(err, errs.Invalid))

	_, err = idx.Delete(ctx, room.ID, 1)
	require.NoError(t, err)
	rooms, err := store.ListRoomsForUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, rooms)
	rooms, err = store.ListRoomsForUser(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)

	again, created, err := idx.Direct(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, room.ID, again.ID)
	assert.False(t, again.IsHiddenFor(1))
}

func TestUnhide(t *testing.T) {
	room := models.Room{Kind: models.RoomDirect, Members: []int{1, 2}, HiddenFor: []int{1, 2}}
	assert.True(t, Unhide(&room, 1, 2))
	assert.Empty(t, room.HiddenFor)
	assert.False(t, Unhide(&room, 1))
}
