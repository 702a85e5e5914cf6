package chat

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/membership"
	"chat-realtime/internal/models"
)

// Connect records a live session for identity.
func (s *Service) Connect(identity models.Identity, sessionID string) {
	if s.presence.Register(identity, sessionID) {
		s.logger.Info("user online", zap.Int("user_id", identity.ID))
	}
}

// Disconnect drops a live session. Once the identity has no session left its
// typing entries are cleared and peers see the new roster.
func (s *Service) Disconnect(sessionID string) {
	identity, offline := s.presence.Deregister(sessionID)
	if !offline {
		return
	}
	s.typing.ClearUser(identity.ID)
	s.logger.Info("user offline", zap.Int("user_id", identity.ID))
}

// Online lists identities with at least one live session.
func (s *Service) Online() []models.Identity {
	return s.presence.List()
}

// JoinRoom activates roomID for actor. Group rooms are joined on first activation;
// joined reports whether membership changed. The room's unread watermark moves to now.
func (s *Service) JoinRoom(ctx context.Context, actor models.Identity, roomID int) (room models.Room, joined bool, err error) {
	ctx, span := s.startSpan(ctx, "chat.join_room", attribute.Int("room.id", roomID), attribute.Int("user.id", actor.ID))
	defer func() { finishSpan(span, err) }()

	room, err = s.rooms.Room(ctx, roomID)
	if err != nil {
		return models.Room{}, false, err
	}
	if !room.IsMember(actor.ID) {
		if room.IsDirect() {
			return models.Room{}, false, errs.New(errs.Forbidden, "room.join", "not a member of this room")
		}
		room, err = s.rooms.Join(ctx, roomID, actor.ID)
		switch {
		case errs.Is(err, errs.AlreadyMember):
			if room, err = s.rooms.Room(ctx, roomID); err != nil {
				return models.Room{}, false, err
			}
		case err != nil:
			return models.Room{}, false, err
		default:
			joined = true
		}
	}

	if err := s.store.Rooms.MarkRoomViewed(ctx, roomID, actor.ID, s.now()); err != nil {
		s.logger.Warn("mark room viewed failed", zap.Int("room_id", roomID), zap.Int("user_id", actor.ID), zap.Error(err))
	}
	if joined {
		s.fan.ToUsers(room.Members, models.EventUserJoinedRoom, models.RoomPresencePayload{
			RoomID:   roomID,
			UserID:   actor.ID,
			Username: actor.Username,
		})
		s.publishRoom(ctx, "member_joined", roomID, actor.ID)
	}
	return room, joined, nil
}

// LeaveRoom removes actor from a group room. Leaving a room one is not in is a no-op.
func (s *Service) LeaveRoom(ctx context.Context, actor models.Identity, roomID int) (room models.Room, left bool, err error) {
	ctx, span := s.startSpan(ctx, "chat.leave_room", attribute.Int("room.id", roomID), attribute.Int("user.id", actor.ID))
	defer func() { finishSpan(span, err) }()

	room, left, err = s.rooms.Leave(ctx, roomID, actor.ID)
	if err != nil || !left {
		return room, left, err
	}
	s.typing.Stop(roomID, actor.ID)
	s.fan.ToUsers(append(room.Members, actor.ID), models.EventUserLeftRoom, models.RoomPresencePayload{
		RoomID:   roomID,
		UserID:   actor.ID,
		Username: actor.Username,
	})
	s.publishRoom(ctx, "member_left", roomID, actor.ID)
	return room, true, nil
}

// SendMessage stores a room or recipient-addressed message and pushes it to every
// live session of its audience, sender included.
func (s *Service) SendMessage(ctx context.Context, actor models.Identity, in models.NewMessage) (msg models.Message, err error) {
	ctx, span := s.startSpan(ctx, "chat.send_message", attribute.Int("user.id", actor.ID))
	defer func() { finishSpan(span, err) }()

	if err := validateMessage(&in); err != nil {
		return models.Message{}, err
	}
	in.SenderID = actor.ID
	if in.RoomID != nil {
		span.SetAttributes(attribute.Int("room.id", *in.RoomID))
		msg, err = s.sendToRoom(ctx, actor, in)
	} else {
		msg, err = s.sendToRecipient(ctx, actor, in)
	}
	if err != nil {
		return models.Message{}, err
	}
	s.publishMessage(ctx, msg)
	return msg, nil
}

// sendToRoom creates and fans out on the room lane so every recipient observes
// room messages in creation order.
func (s *Service) sendToRoom(ctx context.Context, actor models.Identity, in models.NewMessage) (models.Message, error) {
	roomID := *in.RoomID
	var msg models.Message
	_, err := s.rooms.WithRoom(ctx, roomID, func(ctx context.Context, room *models.Room) (bool, error) {
		if !room.IsMember(actor.ID) {
			return false, errs.New(errs.Forbidden, "message.send", "not a member of this room")
		}
		created, err := s.store.Messages.CreateMessage(ctx, in)
		if err != nil {
			return false, errs.Wrap(errs.Internal, "message.send", err)
		}
		created.Sender = actor
		msg = created

		id := created.ID
		room.LastMessageID = &id
		changed := room.IsDirect() && membership.Unhide(room, room.Members...)

		s.fan.ToUsers(room.Members, models.EventReceiveMessage, msg)
		s.markViewers(ctx, *room, msg)
		return changed, nil
	})
	if err != nil {
		return models.Message{}, err
	}
	s.typing.Stop(roomID, actor.ID)
	return msg, nil
}

// sendToRecipient delivers a message addressed to a single user, outside any room.
func (s *Service) sendToRecipient(ctx context.Context, actor models.Identity, in models.NewMessage) (models.Message, error) {
	peerID := *in.RecipientID
	if peerID == actor.ID || peerID <= 0 {
		return models.Message{}, errs.New(errs.Invalid, "message.send", "invalid recipient")
	}
	lo, hi := actor.ID, peerID
	if lo > hi {
		lo, hi = hi, lo
	}
	key := "pair:" + strconv.Itoa(lo) + ":" + strconv.Itoa(hi)

	var msg models.Message
	err := s.lanes.Do(ctx, key, func(ctx context.Context) error {
		created, err := s.store.Messages.CreateMessage(ctx, in)
		if err != nil {
			return errs.Wrap(errs.Internal, "message.send", err)
		}
		created.Sender = actor
		msg = created
		s.fan.ToUsers([]int{actor.ID, peerID}, models.EventPrivateMessage, msg)
		return nil
	})
	return msg, err
}

// markViewers advances the unread watermark of the sender and of members that
// have the room focused, so the message never counts as unread for them.
func (s *Service) markViewers(ctx context.Context, room models.Room, msg models.Message) {
	viewers := []int{msg.SenderID}
	if s.viewers != nil {
		viewers = append(viewers, s.viewers.ViewersOf(room.ID)...)
	}
	for _, userID := range sortedUnique(viewers) {
		if !room.IsMember(userID) {
			continue
		}
		if err := s.store.Rooms.MarkRoomViewed(ctx, room.ID, userID, msg.CreatedAt); err != nil {
			s.logger.Warn("mark room viewed failed", zap.Int("room_id", room.ID), zap.Int("user_id", userID), zap.Error(err))
		}
	}
}

// StartTyping marks actor as typing in roomID.
func (s *Service) StartTyping(ctx context.Context, actor models.Identity, roomID int) error {
	if _, err := s.memberRoom(ctx, "typing.start", roomID, actor.ID); err != nil {
		return err
	}
	s.typing.Start(roomID, actor)
	return nil
}

// StopTyping clears actor's typing entry in roomID.
func (s *Service) StopTyping(ctx context.Context, actor models.Identity, roomID int) error {
	if _, err := s.memberRoom(ctx, "typing.stop", roomID, actor.ID); err != nil {
		return err
	}
	s.typing.Stop(roomID, actor.ID)
	return nil
}

// TypingRoster returns who is typing in roomID.
func (s *Service) TypingRoster(roomID int) []models.Identity {
	return s.typing.Roster(roomID)
}

func (s *Service) emitTyping(roomID int, roster []models.Identity) {
	members, err := s.rooms.MembersOf(context.Background(), roomID)
	if err != nil {
		s.logger.Debug("typing roster for unavailable room", zap.Int("room_id", roomID), zap.Error(err))
		return
	}
	s.fan.ToUsers(members, models.EventUserTyping, models.TypingPayload{RoomID: roomID, Users: roster})
}

// ToggleReaction flips actor's emoji on a message and returns the full reaction set.
func (s *Service) ToggleReaction(ctx context.Context, actor models.Identity, messageID int, emoji string) (msg models.Message, err error) {
	ctx, span := s.startSpan(ctx, "chat.toggle_reaction", attribute.Int("message.id", messageID), attribute.Int("user.id", actor.ID))
	defer func() { finishSpan(span, err) }()

	msg, added, err := s.ledger.Toggle(ctx, messageID, actor.ID, emoji)
	if err != nil {
		return models.Message{}, err
	}
	name := "reaction_removed"
	if added {
		name = "reaction_added"
	}
	s.publish(ctx, "chat_events.reactions", name, map[string]interface{}{
		"message_id": messageID,
		"user_id":    actor.ID,
		"emoji":      emoji,
	})
	return s.withSender(ctx, msg), nil
}

func (s *Service) notifyReaction(ctx context.Context, msg models.Message) {
	audience, err := s.audience(ctx, msg)
	if err != nil {
		s.logger.Warn("resolve reaction audience failed", zap.Int("message_id", msg.ID), zap.Error(err))
		return
	}
	s.fan.ToUsers(audience, models.EventMessageReaction, s.withSender(ctx, msg))
}
