// Package client is a Go client for the live chat transport. It keeps a State
// derived from the events it receives.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-realtime/internal/models"
)

// ErrClosed is returned once the connection has ended.
var ErrClosed = errors.New("client closed")

// Client is one live connection.
type Client struct {
	conn  *websocket.Conn
	state *State

	writeMu sync.Mutex
	events  chan Event
	done    chan struct{}
	err     error
}

// Dial connects to a websocket endpoint with a bearer token. selfID seeds the
// unread reducer so the client's own messages are never counted.
func Dial(ctx context.Context, url, token string, selfID int) (*Client, *http.Response, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, resp, err
	}
	c := &Client{
		conn:   conn,
		state:  NewState(selfID),
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, resp, nil
}

// State returns the derived view.
func (c *Client) State() *State {
	return c.state
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.err = err
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		_ = c.state.Apply(ev)
		select {
		case c.events <- ev:
		default:
			// Nobody is draining; the state has already absorbed the event.
		}
	}
}

// Next returns the next event, waiting until ctx ends.
func (c *Client) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return Event{}, ErrClosed
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// WaitFor skips events until one named name arrives.
func (c *Client) WaitFor(ctx context.Context, name string) (Event, error) {
	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return Event{}, err
		}
		if ev.Name == name {
			return ev, nil
		}
	}
}

// Send writes one event frame.
func (c *Client) Send(event string, data any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(models.Envelope{Event: event, Data: data})
}

// JoinRoom activates roomID and resets its unread counter locally.
func (c *Client) JoinRoom(roomID int) error {
	c.state.Activate(roomID)
	return c.Send(models.EventJoinRoom, models.RoomRef{RoomID: roomID})
}

// LeaveRoom leaves roomID and drops its local counter.
func (c *Client) LeaveRoom(roomID int) error {
	c.state.Leave(roomID)
	return c.Send(models.EventLeaveRoom, models.RoomRef{RoomID: roomID})
}

// SendMessage posts a text message to a room.
func (c *Client) SendMessage(roomID int, content string) error {
	return c.Send(models.EventSendMessage, models.NewMessage{RoomID: &roomID, Content: content, Type: models.MessageText})
}

// PrivateMessage posts a text message addressed to one user.
func (c *Client) PrivateMessage(recipientID int, content string) error {
	return c.Send(models.EventPrivateMessage, models.NewMessage{RecipientID: &recipientID, Content: content, Type: models.MessageText})
}

// StartTyping signals typing in roomID.
func (c *Client) StartTyping(roomID int) error {
	return c.Send(models.EventTypingStart, models.RoomRef{RoomID: roomID})
}

// StopTyping clears the typing signal in roomID.
func (c *Client) StopTyping(roomID int) error {
	return c.Send(models.EventTypingStop, models.RoomRef{RoomID: roomID})
}

// React toggles emoji on a message.
func (c *Client) React(messageID int, emoji string) error {
	return c.Send(models.EventAddReaction, models.ReactionRequest{MessageID: messageID, Emoji: emoji})
}

// Close ends the connection and waits for the reader to stop.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

// Err reports why the reader stopped, once it has.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}
