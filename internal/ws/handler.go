package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/chat"
	"chat-realtime/internal/errs"
	"chat-realtime/internal/fanout"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

// Handler upgrades authenticated requests into live sessions.
type Handler struct {
	hub    *Hub
	svc    *chat.Service
	auth   auth.Provider
	opts   Options
	logger *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, svc *chat.Service, provider auth.Provider, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, svc: svc, auth: provider, opts: opts.withDefaults(), logger: logger.Named("ws")}
}

// overflowReason matches the reason fanout gives when it drops a slow session.
const overflowReason = "send buffer overflow"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handle authenticates the request, then upgrades it. Failed authentication is
// answered with 401 before any state is touched.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-realtime/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := tokenFromRequest(c.GetHeader("Authorization"), c.Query("token"))
	identity, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		status := http.StatusUnauthorized
		if errs.KindOf(err) == errs.Unavailable {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": errs.Message(err), "code": errs.KindOf(err)})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.ID,
		Username:    identity.Username,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	session := newSession(conn, identity, info, h.opts, h.logger)

	// The session joins the hub before presence so it receives the roster that
	// announces it.
	h.hub.Add(session)
	h.svc.Connect(identity, session.ID())

	observability.IncWSActive()
	publishWSEvent(ctx, "ws_connect", info, "")
	session.logger.Info("session connected")

	go session.writePump()
	go h.readPump(session)
}

func (h *Handler) readPump(s *Session) {
	ctx, cancel := context.WithCancel(observability.WithRequestID(context.Background(), s.info.RequestID))
	var closeReason string
	defer func() {
		cancel()
		h.close(s, closeReason)
	}()

	s.conn.SetReadLimit(maxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			select {
			case <-s.Done():
				closeReason = s.closeReason()
			default:
				if !isExpectedClose(err) {
					publishWSEvent(ctx, "ws_error", s.info, closeReason)
				}
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			h.reply(s, models.EventError, errorPayload("", errs.New(errs.Invalid, "frame", "malformed frame")))
			continue
		}
		if !s.limiter.Allow() {
			h.reply(s, models.EventError, errorPayload(msg.Event, errs.New(errs.Unavailable, msg.Event, "too many events, slow down")))
			continue
		}
		observability.IncWSEvent("in", msg.Event)
		if err := h.dispatch(ctx, s, msg); err != nil {
			h.reply(s, models.EventError, errorPayload(msg.Event, err))
		}
	}
}

// dispatch runs one inbound event. Failures, panics included, are returned to
// the caller as errors and never affect other sessions.
func (h *Handler) dispatch(ctx context.Context, s *Session, msg inbound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic handling event", zap.String("event", msg.Event), zap.Any("panic", r))
			err = errs.Wrap(errs.Internal, msg.Event, fmt.Errorf("panic: %v", r))
		}
	}()

	actor := s.Identity()
	switch msg.Event {
	case models.EventJoinRoom:
		roomID, err := roomIDFromPayload(msg.Data)
		if err != nil {
			return err
		}
		if _, _, err := h.svc.JoinRoom(ctx, actor, roomID); err != nil {
			return err
		}
		s.subscribe(roomID)
		return nil

	case models.EventLeaveRoom:
		roomID, err := roomIDFromPayload(msg.Data)
		if err != nil {
			return err
		}
		if _, _, err := h.svc.LeaveRoom(ctx, actor, roomID); err != nil {
			return err
		}
		s.unsubscribe(roomID)
		return nil

	case models.EventSendMessage:
		var in models.NewMessage
		if err := decodePayload(msg.Data, &in); err != nil {
			return err
		}
		if in.RoomID == nil {
			return errs.New(errs.Invalid, msg.Event, "roomId is required")
		}
		in.RecipientID = nil
		_, err := h.svc.SendMessage(ctx, actor, in)
		return err

	case models.EventPrivateMessage:
		var in models.NewMessage
		if err := decodePayload(msg.Data, &in); err != nil {
			return err
		}
		if in.RecipientID == nil {
			return errs.New(errs.Invalid, msg.Event, "recipientId is required")
		}
		in.RoomID = nil
		_, err := h.svc.SendMessage(ctx, actor, in)
		return err

	case models.EventTypingStart, models.EventTypingStop:
		roomID, err := roomIDFromPayload(msg.Data)
		if err != nil {
			return err
		}
		if msg.Event == models.EventTypingStart {
			return h.svc.StartTyping(ctx, actor, roomID)
		}
		return h.svc.StopTyping(ctx, actor, roomID)

	case models.EventAddReaction:
		var req models.ReactionRequest
		if err := decodePayload(msg.Data, &req); err != nil {
			return err
		}
		if req.MessageID <= 0 {
			return errs.New(errs.Invalid, msg.Event, "messageId is required")
		}
		_, err := h.svc.ToggleReaction(ctx, actor, req.MessageID, req.Emoji)
		return err
	}
	return errs.New(errs.Invalid, msg.Event, "unknown event")
}

func (h *Handler) reply(s *Session, event string, data any) {
	frame, err := fanout.Encode(event, data)
	if err != nil {
		return
	}
	if !s.Enqueue(frame) {
		s.Drop(overflowReason)
	}
}

// close removes the session from fan-out and presence, so peers get the new
// roster, before the connection is released.
func (h *Handler) close(s *Session, reason string) {
	if !h.hub.Remove(s) {
		return
	}
	h.svc.Disconnect(s.ID())
	s.Drop(reason)

	observability.DecWSActive()
	if reason == overflowReason {
		publishWSEvent(context.Background(), "ws_drop", s.info, reason)
	}
	publishWSEvent(context.Background(), "ws_disconnect", s.info, reason)
	s.logger.Info("session disconnected", zap.String("reason", reason), zap.Duration("duration", time.Since(s.info.ConnectedAt)))
}

func errorPayload(event string, err error) models.ErrorPayload {
	return models.ErrorPayload{
		Message: errs.Message(err),
		Code:    string(errs.KindOf(err)),
		Event:   event,
	}
}
