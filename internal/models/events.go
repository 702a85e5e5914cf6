package models

// Live transport event names. Payload shapes are part of the client contract.
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventSendMessage    = "send_message"
	EventPrivateMessage = "private_message"
	EventTypingStart    = "typing_start"
	EventTypingStop     = "typing_stop"
	EventAddReaction    = "add_reaction"

	EventReceiveMessage  = "receive_message"
	EventOnlineUsers     = "online_users"
	EventUserTyping      = "user_typing"
	EventUserJoinedRoom  = "user_joined_room"
	EventUserLeftRoom    = "user_left_room"
	EventMessageReaction = "message_reaction"
	EventError           = "error"
)

// Envelope is one frame on the live transport.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// TypingPayload is the full typing roster of a room.
type TypingPayload struct {
	RoomID int        `json:"roomId"`
	Users  []Identity `json:"users"`
}

// RoomPresencePayload announces a member joining or leaving a room.
type RoomPresencePayload struct {
	RoomID   int    `json:"roomId"`
	UserID   int    `json:"userId"`
	Username string `json:"username"`
}

// ErrorPayload is delivered to the session whose request failed.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Event   string `json:"event,omitempty"`
}

// RoomRef is the object form of join_room/leave_room/typing payloads.
type RoomRef struct {
	RoomID int `json:"roomId"`
}

// ReactionRequest is the add_reaction payload.
type ReactionRequest struct {
	MessageID int    `json:"messageId"`
	Emoji     string `json:"emoji"`
}
