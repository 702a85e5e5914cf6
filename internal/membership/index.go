// Package membership is the authoritative room → member mapping. Every mutation of
// a room runs on that room's serial lane so concurrent joins, leaves and admin
// changes apply one at a time.
package membership

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/serial"
)

// Index authorizes and applies room membership changes.
type Index struct {
	rooms repositories.RoomRepository
	lanes *serial.Lanes
}

// New builds an Index over the room repository. lanes is shared with other
// components that need to serialize work per room.
func New(rooms repositories.RoomRepository, lanes *serial.Lanes) *Index {
	return &Index{rooms: rooms, lanes: lanes}
}

// LaneKey is the serial lane key of a room.
func LaneKey(roomID int) string {
	return "room:" + strconv.Itoa(roomID)
}

// Mutation inspects or edits a loaded room. Returning changed=true persists the room.
type Mutation func(ctx context.Context, room *models.Room) (changed bool, err error)

// WithRoom loads an active room on its lane and runs fn. Inactive rooms fail with NotFound.
func (x *Index) WithRoom(ctx context.Context, roomID int, fn Mutation) (models.Room, error) {
	var out models.Room
	err := x.lanes.Do(ctx, LaneKey(roomID), func(ctx context.Context) error {
		room, err := x.load(ctx, "room", roomID)
		if err != nil {
			return err
		}
		changed, err := fn(ctx, &room)
		if err != nil {
			return err
		}
		if changed {
			if err := x.rooms.SaveRoom(ctx, room); err != nil {
				return errs.Wrap(errs.Internal, "room.save", err)
			}
		}
		out = room
		return nil
	})
	if err != nil {
		return models.Room{}, err
	}
	return out, nil
}

// Create makes a group room whose creator is its first member and admin.
func (x *Index) Create(ctx context.Context, creatorID int, name, description, avatar string) (models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Room{}, errs.New(errs.Invalid, "room.create", "room name is required")
	}
	room, err := x.rooms.CreateRoom(ctx, models.Room{
		Name:        name,
		Description: description,
		Avatar:      avatar,
		Kind:        models.RoomGroup,
		CreatorID:   creatorID,
		Members:     []int{creatorID},
		Admins:      []int{creatorID},
		Active:      true,
	})
	if err != nil {
		return models.Room{}, errs.Wrap(errs.Internal, "room.create", err)
	}
	return room, nil
}

// Direct returns the direct room of requester and peer, creating it once. A room the
// requester had hidden becomes visible to them again.
func (x *Index) Direct(ctx context.Context, requesterID, peerID int) (models.Room, bool, error) {
	room, created, err := x.rooms.FindOrCreateDirectRoom(ctx, requesterID, peerID)
	if errors.Is(err, repositories.ErrSelfDirectRoom) {
		return models.Room{}, false, errs.New(errs.Invalid, "room.direct", "cannot start a direct chat with yourself")
	}
	if err != nil {
		return models.Room{}, false, errs.Wrap(errs.Internal, "room.direct", err)
	}
	if !room.IsHiddenFor(requesterID) {
		return room, created, nil
	}
	room, err = x.WithRoom(ctx, room.ID, func(_ context.Context, r *models.Room) (bool, error) {
		return unhide(r, requesterID), nil
	})
	return room, created, err
}

// Room returns an active room.
func (x *Index) Room(ctx context.Context, roomID int) (models.Room, error) {
	return x.load(ctx, "room.get", roomID)
}

// MembersOf returns the member ids of an active room.
func (x *Index) MembersOf(ctx context.Context, roomID int) ([]int, error) {
	room, err := x.load(ctx, "room.members", roomID)
	if err != nil {
		return nil, err
	}
	return room.Members, nil
}

// IsAdmin reports whether userID administers an active room.
func (x *Index) IsAdmin(ctx context.Context, roomID, userID int) (bool, error) {
	room, err := x.load(ctx, "room.is_admin", roomID)
	if err != nil {
		return false, err
	}
	return room.IsAdmin(userID), nil
}

// Join adds userID to a group room. A second join fails with AlreadyMember and
// leaves the member set unchanged.
func (x *Index) Join(ctx context.Context, roomID, userID int) (models.Room, error) {
	return x.WithRoom(ctx, roomID, func(_ context.Context, room *models.Room) (bool, error) {
		if room.IsMember(userID) {
			return false, errs.New(errs.AlreadyMember, "room.join", "already a member")
		}
		if room.IsDirect() {
			return false, errs.New(errs.InvalidState, "room.join", "direct rooms cannot be expanded")
		}
		room.Members = append(room.Members, userID)
		return true, nil
	})
}

// Leave removes userID from a group room. Leaving a room one is not in is a no-op;
// left reports whether membership changed.
func (x *Index) Leave(ctx context.Context, roomID, userID int) (room models.Room, left bool, err error) {
	room, err = x.WithRoom(ctx, roomID, func(_ context.Context, r *models.Room) (bool, error) {
		if !r.IsMember(userID) {
			return false, nil
		}
		if r.IsDirect() {
			return false, errs.New(errs.InvalidState, "room.leave", "direct rooms can only be deleted")
		}
		removeMember(r, userID)
		left = true
		return true, nil
	})
	return room, left, err
}

// AddAdmin promotes a member. Only admins may do so.
func (x *Index) AddAdmin(ctx context.Context, roomID, actorID, targetID int) (models.Room, error) {
	return x.WithRoom(ctx, roomID, func(_ context.Context, room *models.Room) (bool, error) {
		if err := requireGroupAdmin(room, actorID, "room.add_admin"); err != nil {
			return false, err
		}
		if !room.IsMember(targetID) {
			return false, errs.New(errs.InvalidState, "room.add_admin", "user is not a member")
		}
		if room.IsAdmin(targetID) {
			return false, errs.New(errs.AlreadyExists, "room.add_admin", "user is already an admin")
		}
		room.Admins = append(room.Admins, targetID)
		return true, nil
	})
}

// RemoveAdmin demotes an admin. The creator can never be demoted.
func (x *Index) RemoveAdmin(ctx context.Context, roomID, actorID, targetID int) (models.Room, error) {
	return x.WithRoom(ctx, roomID, func(_ context.Context, room *models.Room) (bool, error) {
		if err := requireGroupAdmin(room, actorID, "room.remove_admin"); err != nil {
			return false, err
		}
		if targetID == room.CreatorID {
			return false, errs.New(errs.InvalidState, "room.remove_admin", "the creator cannot be removed as admin")
		}
		if !slices.Contains(room.Admins, targetID) {
			return false, nil
		}
		room.Admins = slices.DeleteFunc(room.Admins, func(id int) bool { return id == targetID })
		return true, nil
	})
}

// RemoveMember removes another member. The creator can never be removed.
func (x *Index) RemoveMember(ctx context.Context, roomID, actorID, targetID int) (room models.Room, removed bool, err error) {
	room, err = x.WithRoom(ctx, roomID, func(_ context.Context, r *models.Room) (bool, error) {
		if err := requireGroupAdmin(r, actorID, "room.remove_member"); err != nil {
			return false, err
		}
		if targetID == r.CreatorID {
			return false, errs.New(errs.InvalidState, "room.remove_member", "the creator cannot be removed")
		}
		if !r.IsMember(targetID) {
			return false, nil
		}
		removeMember(r, targetID)
		removed = true
		return true, nil
	})
	return room, removed, err
}

// UpdateMetadata edits the name, description or avatar of a group room.
func (x *Index) UpdateMetadata(ctx context.Context, roomID, actorID int, patch models.RoomPatch) (models.Room, error) {
	return x.WithRoom(ctx, roomID, func(_ context.Context, room *models.Room) (bool, error) {
		if err := requireGroupAdmin(room, actorID, "room.update"); err != nil {
			return false, err
		}
		if name := strings.TrimSpace(patch.Name); name != "" {
			room.Name = name
		}
		if patch.Description != "" {
			room.Description = patch.Description
		}
		if patch.Avatar != "" {
			room.Avatar = patch.Avatar
		}
		return true, nil
	})
}

// Delete removes a room for actorID. Group rooms are deactivated by their creator;
// direct rooms are hidden for the requesting member only.
func (x *Index) Delete(ctx context.Context, roomID, actorID int) (models.Room, error) {
	return x.WithRoom(ctx, roomID, func(_ context.Context, room *models.Room) (bool, error) {
		if room.IsDirect() {
			if !room.IsMember(actorID) {
				return false, errs.New(errs.Forbidden, "room.delete", "not a member of this room")
			}
			if room.IsHiddenFor(actorID) {
				return false, nil
			}
			room.HiddenFor = append(room.HiddenFor, actorID)
			return true, nil
		}
		if room.CreatorID != actorID {
			return false, errs.New(errs.Forbidden, "room.delete", "only the creator can delete this room")
		}
		room.Active = false
		return true, nil
	})
}

func (x *Index) load(ctx context.Context, op string, roomID int) (models.Room, error) {
	room, err := x.rooms.FindRoom(ctx, roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return models.Room{}, errs.New(errs.NotFound, op, "room not found")
	}
	if err != nil {
		return models.Room{}, errs.Wrap(errs.Internal, op, err)
	}
	if !room.Active {
		return models.Room{}, errs.New(errs.NotFound, op, "room not found")
	}
	return room, nil
}

func requireGroupAdmin(room *models.Room, actorID int, op string) error {
	if room.IsDirect() {
		if !room.IsMember(actorID) {
			return errs.New(errs.Forbidden, op, "not a member of this room")
		}
		return errs.New(errs.InvalidState, op, "direct rooms cannot be edited")
	}
	if !room.IsAdmin(actorID) {
		return errs.New(errs.Forbidden, op, "not authorized")
	}
	return nil
}

func removeMember(room *models.Room, userID int) {
	drop := func(id int) bool { return id == userID }
	room.Members = slices.DeleteFunc(room.Members, drop)
	room.Admins = slices.DeleteFunc(room.Admins, drop)
}

// Unhide makes a direct room visible again for the given members. It reports
// whether anything changed.
func Unhide(room *models.Room, userIDs ...int) bool {
	changed := false
	for _, id := range userIDs {
		if unhide(room, id) {
			changed = true
		}
	}
	return changed
}

func unhide(room *models.Room, userID int) bool {
	if !room.IsHiddenFor(userID) {
		return false
	}
	room.HiddenFor = slices.DeleteFunc(room.HiddenFor, func(id int) bool { return id == userID })
	return true
}
