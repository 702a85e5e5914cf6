package chat

import (
	"context"
	"strings"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
)

// RoomHistory returns one page of a room's messages, oldest first.
func (s *Service) RoomHistory(ctx context.Context, actor models.Identity, roomID, limit, offset int) ([]models.Message, error) {
	if _, err := s.memberRoom(ctx, "message.history", roomID, actor.ID); err != nil {
		return nil, err
	}
	limit, offset = s.page(limit, offset)
	msgs, err := s.store.Messages.ListRoomMessages(ctx, roomID, limit, offset)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "message.history", err)
	}
	return s.withSenders(ctx, msgs), nil
}

// DirectHistory returns one page of recipient-addressed messages between actor and peer.
func (s *Service) DirectHistory(ctx context.Context, actor models.Identity, peerID, limit, offset int) ([]models.Message, error) {
	if peerID <= 0 || peerID == actor.ID {
		return nil, errs.New(errs.Invalid, "message.direct_history", "invalid user id")
	}
	limit, offset = s.page(limit, offset)
	msgs, err := s.store.Messages.ListDirectMessages(ctx, actor.ID, peerID, limit, offset)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "message.direct_history", err)
	}
	return s.withSenders(ctx, msgs), nil
}

// MarkRead records that actor has read a message. Repeating it is a no-op.
func (s *Service) MarkRead(ctx context.Context, actor models.Identity, messageID int) (models.Message, error) {
	const op = "message.mark_read"
	msg, err := s.loadMessage(ctx, op, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.authorizeMessage(ctx, msg, actor.ID); err != nil {
		return models.Message{}, err
	}
	marked, err := s.store.Messages.MarkRead(ctx, messageID, actor.ID)
	if err != nil {
		return models.Message{}, errs.Wrap(errs.Internal, op, err)
	}
	if marked {
		if msg, err = s.loadMessage(ctx, op, messageID); err != nil {
			return models.Message{}, err
		}
	}
	return s.withSender(ctx, msg), nil
}

// MarkRoomViewed moves actor's unread watermark for roomID to now.
func (s *Service) MarkRoomViewed(ctx context.Context, actor models.Identity, roomID int) error {
	if _, err := s.memberRoom(ctx, "room.viewed", roomID, actor.ID); err != nil {
		return err
	}
	if err := s.store.Rooms.MarkRoomViewed(ctx, roomID, actor.ID, s.now()); err != nil {
		return errs.Wrap(errs.Internal, "room.viewed", err)
	}
	return nil
}

// Search finds messages containing query in rooms actor belongs to. A positive
// roomID narrows the search to that room.
func (s *Service) Search(ctx context.Context, actor models.Identity, query string, roomID int) ([]models.Message, error) {
	const op = "message.search"
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.New(errs.Invalid, op, "query is required")
	}

	var roomIDs []int
	if roomID > 0 {
		if _, err := s.memberRoom(ctx, op, roomID, actor.ID); err != nil {
			return nil, err
		}
		roomIDs = []int{roomID}
	} else {
		rooms, err := s.store.Rooms.ListRoomsForUser(ctx, actor.ID)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, op, err)
		}
		for _, r := range rooms {
			roomIDs = append(roomIDs, r.ID)
		}
	}

	msgs, err := s.store.Messages.SearchMessages(ctx, query, roomIDs, searchLimit)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, op, err)
	}
	return s.withSenders(ctx, msgs), nil
}

// Unread reconstructs actor's unread counters from the stored watermarks.
func (s *Service) Unread(ctx context.Context, actor models.Identity) ([]models.UnreadCount, error) {
	counts, err := s.store.Messages.CountUnread(ctx, actor.ID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "message.unread", err)
	}
	return counts, nil
}
