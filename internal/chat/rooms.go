package chat

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
)

// CreateRoom creates a group room owned by actor.
func (s *Service) CreateRoom(ctx context.Context, actor models.Identity, name, description, avatar string) (models.Room, error) {
	room, err := s.rooms.Create(ctx, actor.ID, name, description, avatar)
	if err != nil {
		return models.Room{}, err
	}
	s.publishRoom(ctx, "room_created", room.ID, actor.ID)
	return room, nil
}

// GetRoom returns an active room. Direct rooms are visible to their members only.
func (s *Service) GetRoom(ctx context.Context, actor models.Identity, roomID int) (models.Room, error) {
	room, err := s.rooms.Room(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if room.IsDirect() && !room.IsMember(actor.ID) {
		return models.Room{}, errs.New(errs.Forbidden, "room.get", "not a member of this room")
	}
	return room, nil
}

// ListRooms returns the active rooms actor belongs to and has not hidden.
func (s *Service) ListRooms(ctx context.Context, actor models.Identity) ([]models.Room, error) {
	rooms, err := s.store.Rooms.ListRoomsForUser(ctx, actor.ID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "room.list", err)
	}
	return rooms, nil
}

// ListPublicRooms returns every active group room for discovery.
func (s *Service) ListPublicRooms(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.store.Rooms.ListPublicRooms(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "room.list_public", err)
	}
	return rooms, nil
}

// OpenDirect returns the direct room of actor and peer, creating it on first use.
func (s *Service) OpenDirect(ctx context.Context, actor models.Identity, peerID int) (models.Room, bool, error) {
	if peerID <= 0 {
		return models.Room{}, false, errs.New(errs.Invalid, "room.direct", "invalid user id")
	}
	room, created, err := s.rooms.Direct(ctx, actor.ID, peerID)
	if err != nil {
		return models.Room{}, false, err
	}
	if created {
		s.publishRoom(ctx, "direct_room_created", room.ID, actor.ID)
	}
	return room, created, nil
}

// UpdateRoom edits group room metadata.
func (s *Service) UpdateRoom(ctx context.Context, actor models.Identity, roomID int, patch models.RoomPatch) (models.Room, error) {
	room, err := s.rooms.UpdateMetadata(ctx, roomID, actor.ID, patch)
	if err != nil {
		return models.Room{}, err
	}
	s.publishRoom(ctx, "room_updated", roomID, actor.ID)
	return room, nil
}

// AddAdmin promotes a member of a group room.
func (s *Service) AddAdmin(ctx context.Context, actor models.Identity, roomID, userID int) (models.Room, error) {
	return s.rooms.AddAdmin(ctx, roomID, actor.ID, userID)
}

// RemoveAdmin demotes an admin of a group room.
func (s *Service) RemoveAdmin(ctx context.Context, actor models.Identity, roomID, userID int) (models.Room, error) {
	return s.rooms.RemoveAdmin(ctx, roomID, actor.ID, userID)
}

// RemoveMember removes userID from a group room and tells the room and the removed user.
func (s *Service) RemoveMember(ctx context.Context, actor models.Identity, roomID, userID int) (room models.Room, err error) {
	ctx, span := s.startSpan(ctx, "chat.remove_member", attribute.Int("room.id", roomID), attribute.Int("user.id", actor.ID))
	defer func() { finishSpan(span, err) }()

	room, removed, err := s.rooms.RemoveMember(ctx, roomID, actor.ID, userID)
	if err != nil {
		return models.Room{}, err
	}
	if !removed {
		return room, nil
	}
	s.typing.Stop(roomID, userID)
	username := ""
	if users, err := s.store.Users.FindUsers(ctx, []int{userID}); err == nil && len(users) == 1 {
		username = users[0].Username
	}
	s.fan.ToUsers(append(room.Members, userID), models.EventUserLeftRoom, models.RoomPresencePayload{
		RoomID:   roomID,
		UserID:   userID,
		Username: username,
	})
	s.publishRoom(ctx, "member_removed", roomID, userID)
	return room, nil
}

// DeleteRoom deactivates a group room or hides a direct room for actor.
func (s *Service) DeleteRoom(ctx context.Context, actor models.Identity, roomID int) error {
	room, err := s.rooms.Delete(ctx, roomID, actor.ID)
	if err != nil {
		return err
	}
	name := "room_deleted"
	if room.IsDirect() {
		name = "direct_room_hidden"
	}
	s.publishRoom(ctx, name, roomID, actor.ID)
	return nil
}
