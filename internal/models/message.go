package models

import "time"

// MessageType is the content variant of a message.
type MessageType string

const (
	MessageText MessageType = "text"
	MessageFile MessageType = "file"
)

// Message is a persisted chat message. Exactly one of RoomID and RecipientID is set.
type Message struct {
	ID          int         `db:"id" json:"id"`
	RoomID      *int        `db:"room_id" json:"room"`
	RecipientID *int        `db:"recipient_id" json:"recipient"`
	SenderID    int         `db:"sender_id" json:"senderId"`
	Sender      Identity    `db:"-" json:"sender"`
	Content     string      `db:"content" json:"content"`
	Type        MessageType `db:"message_type" json:"messageType"`
	FileURL     *string     `db:"file_url" json:"fileUrl"`
	FileName    *string     `db:"file_name" json:"fileName"`
	FileSize    *int64      `db:"file_size" json:"fileSize"`
	Reactions   []Reaction  `db:"-" json:"reactions"`
	ReadBy      []ReadMark  `db:"-" json:"readBy"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

// InRoom reports whether m is a room message.
func (m Message) InRoom() bool {
	return m.RoomID != nil
}

// Reaction is one (message, user, emoji) tuple.
type Reaction struct {
	MessageID int       `db:"message_id" json:"-"`
	UserID    int       `db:"user_id" json:"user"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ReadMark records that a user has read a message.
type ReadMark struct {
	MessageID int       `db:"message_id" json:"-"`
	UserID    int       `db:"user_id" json:"user"`
	ReadAt    time.Time `db:"read_at" json:"readAt"`
}

// NewMessage is the input for creating a message.
type NewMessage struct {
	RoomID      *int        `json:"roomId"`
	RecipientID *int        `json:"recipientId"`
	SenderID    int         `json:"-"`
	Content     string      `json:"content"`
	Type        MessageType `json:"messageType"`
	FileURL     *string     `json:"fileUrl"`
	FileName    *string     `json:"fileName"`
	FileSize    *int64      `json:"fileSize"`
}
