package repositories

import (
	"context"
	"database/sql"
	"errors"
	"slices"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

const messageColumns = `id, room_id, recipient_id, sender_id, content, message_type, file_url, file_name, file_size, created_at`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a room or direct message. Room messages also advance the
// room's last message pointer.
func (r *MessageRepo) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (room_id, recipient_id, sender_id, content, message_type, file_url, file_name, file_size)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+messageColumns,
		in.RoomID, in.RecipientID, in.SenderID, in.Content, in.Type, in.FileURL, in.FileName, in.FileSize).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}
	if in.RoomID != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET last_message_id=$2, updated_at=NOW() WHERE id=$1`, *in.RoomID, msg.ID); err != nil {
			return models.Message{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	msg.Reactions = []models.Reaction{}
	msg.ReadBy = []models.ReadMark{}
	return msg, nil
}

// GetMessage retrieves a single message with its reactions and read marks.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	msgs := []models.Message{msg}
	if err := r.attachDetails(ctx, msgs); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// ListRoomMessages returns one page of room history, oldest first.
func (r *MessageRepo) ListRoomMessages(ctx context.Context, roomID, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE room_id=$1
        ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, r.attachDetails(ctx, msgs)
}

// ListDirectMessages returns one page of recipient-addressed messages between two users, oldest first.
func (r *MessageRepo) ListDirectMessages(ctx context.Context, userA, userB, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE room_id IS NULL AND ((sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1))
        ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`, userA, userB, limit, offset)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, r.attachDetails(ctx, msgs)
}

// AppendReaction adds a reaction tuple. Adding an existing tuple is a no-op.
func (r *MessageRepo) AppendReaction(ctx context.Context, messageID, userID int, emoji string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id, emoji) DO NOTHING`, messageID, userID, emoji)
	return err
}

// RemoveReaction deletes a reaction tuple.
func (r *MessageRepo) RemoveReaction(ctx context.Context, messageID, userID int, emoji string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji)
	return err
}

// ListReactions returns the reaction set of a message in insertion order.
func (r *MessageRepo) ListReactions(ctx context.Context, messageID int) ([]models.Reaction, error) {
	reactions := []models.Reaction{}
	err := r.db.SelectContext(ctx, &reactions, `SELECT message_id, user_id, emoji, created_at FROM message_reactions
        WHERE message_id=$1 ORDER BY created_at ASC, user_id ASC, emoji ASC`, messageID)
	return reactions, err
}

// MarkRead records a read mark once. It reports whether a new mark was written.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, userID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// SearchMessages matches content case-insensitively inside the given rooms, newest first.
func (r *MessageRepo) SearchMessages(ctx context.Context, query string, roomIDs []int, limit int) ([]models.Message, error) {
	if len(roomIDs) == 0 {
		return []models.Message{}, nil
	}
	q, args, err := sqlx.In(`SELECT `+messageColumns+` FROM messages
        WHERE room_id IN (?) AND content ILIKE '%' || ? || '%'
        ORDER BY created_at DESC, id DESC LIMIT ?`, roomIDs, escapeLike(query), limit)
	if err != nil {
		return nil, err
	}
	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return msgs, r.attachDetails(ctx, msgs)
}

// CountUnread reconstructs unread counters from the member read watermarks.
func (r *MessageRepo) CountUnread(ctx context.Context, userID int) ([]models.UnreadCount, error) {
	counts := []models.UnreadCount{}
	err := r.db.SelectContext(ctx, &counts, `SELECT rm.room_id, COUNT(m.id) AS unread
        FROM room_members rm
        INNER JOIN rooms r ON r.id = rm.room_id AND r.is_active = TRUE
        INNER JOIN messages m ON m.room_id = rm.room_id
            AND m.sender_id <> rm.user_id
            AND (rm.last_viewed_at IS NULL OR m.created_at > rm.last_viewed_at)
        WHERE rm.user_id=$1 AND rm.hidden = FALSE
        GROUP BY rm.room_id
        ORDER BY rm.room_id`, userID)
	return counts, err
}

func (r *MessageRepo) attachDetails(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(msgs))
	index := make(map[int]int, len(msgs))
	for i := range msgs {
		ids = append(ids, msgs[i].ID)
		index[msgs[i].ID] = i
		msgs[i].Reactions = []models.Reaction{}
		msgs[i].ReadBy = []models.ReadMark{}
	}

	query, args, err := sqlx.In(`SELECT message_id, user_id, emoji, created_at FROM message_reactions WHERE message_id IN (?) ORDER BY created_at ASC, user_id ASC, emoji ASC`, ids)
	if err != nil {
		return err
	}
	var reactions []models.Reaction
	if err := r.db.SelectContext(ctx, &reactions, r.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, reaction := range reactions {
		i := index[reaction.MessageID]
		msgs[i].Reactions = append(msgs[i].Reactions, reaction)
	}

	query, args, err = sqlx.In(`SELECT message_id, user_id, read_at FROM message_reads WHERE message_id IN (?) ORDER BY read_at ASC`, ids)
	if err != nil {
		return err
	}
	var reads []models.ReadMark
	if err := r.db.SelectContext(ctx, &reads, r.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, read := range reads {
		i := index[read.MessageID]
		msgs[i].ReadBy = append(msgs[i].ReadBy, read)
	}
	return nil
}
