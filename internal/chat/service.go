// Package chat coordinates rooms, messages and live delivery. Socket and REST
// handlers both call into Service, so every path authorizes and fans out the same way.
package chat

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/fanout"
	"chat-realtime/internal/membership"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/presence"
	"chat-realtime/internal/reactions"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/serial"
	"chat-realtime/internal/typing"
)

const (
	maxContentRunes = 4000
	maxPageLimit    = 200
	searchLimit     = 50
)

// Viewers reports which users currently have a room focused on some session.
type Viewers interface {
	ViewersOf(roomID int) []int
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store        repositories.Store
	Lanes        *serial.Lanes
	Presence     *presence.Registry
	Fanout       *fanout.Engine
	Viewers      Viewers
	Logger       *zap.Logger
	TypingWindow time.Duration
	PageLimit    int
}

// Service is the chat coordination core.
type Service struct {
	store     repositories.Store
	lanes     *serial.Lanes
	rooms     *membership.Index
	presence  *presence.Registry
	fan       *fanout.Engine
	viewers   Viewers
	typing    *typing.Aggregator
	ledger    *reactions.Ledger
	logger    *zap.Logger
	tracer    trace.Tracer
	pageLimit int
	now       func() time.Time
}

// New wires a Service and installs it as the presence roster notifier.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lanes := d.Lanes
	if lanes == nil {
		lanes = serial.New()
	}
	pageLimit := d.PageLimit
	if pageLimit <= 0 {
		pageLimit = 50
	}

	s := &Service{
		store:     d.Store,
		lanes:     lanes,
		rooms:     membership.New(d.Store.Rooms, lanes),
		presence:  d.Presence,
		fan:       d.Fanout,
		viewers:   d.Viewers,
		logger:    logger.Named("chat"),
		tracer:    otel.Tracer("chat-realtime/chat"),
		pageLimit: pageLimit,
		now:       time.Now,
	}
	s.typing = typing.New(d.TypingWindow, s.emitTyping)
	s.ledger = reactions.New(d.Store.Messages, lanes, reactions.Hooks{
		Authorize: s.authorizeMessage,
		Notify:    s.notifyReaction,
	})
	if s.presence != nil {
		s.presence.SetNotifier(s)
	}
	return s
}

// Close stops pending typing timers.
func (s *Service) Close() {
	s.typing.Close()
}

// Rooms exposes the membership index.
func (s *Service) Rooms() *membership.Index {
	return s.rooms
}

// BroadcastRoster pushes the online roster to every live session.
func (s *Service) BroadcastRoster(roster []models.Identity) {
	if s.fan == nil {
		return
	}
	s.fan.ToAll(models.EventOnlineUsers, roster)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("chat.error_kind", string(errs.KindOf(err))))
		if errs.KindOf(err) == errs.Internal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

// publish sends a domain event to the bus. Failures never fail the operation.
func (s *Service) publish(ctx context.Context, routingKey, name string, payload map[string]interface{}) {
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	headers := observability.BuildHeaders(observability.RequestIDFromContext(ctx), traceID)
	err := observability.PublishEvent(ctx, routingKey, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: name,
		Payload:   payload,
	}, headers)
	if err != nil {
		s.logger.Debug("publish chat event failed", zap.String("event", name), zap.Error(err))
	}
}

func (s *Service) publishMessage(ctx context.Context, msg models.Message) {
	payload := map[string]interface{}{
		"message_id":   msg.ID,
		"sender_id":    msg.SenderID,
		"message_type": msg.Type,
	}
	if msg.RoomID != nil {
		payload["room_id"] = *msg.RoomID
	}
	if msg.RecipientID != nil {
		payload["recipient_id"] = *msg.RecipientID
	}
	s.publish(ctx, "chat_events.messages", "message_created", payload)
}

func (s *Service) publishRoom(ctx context.Context, name string, roomID, actorID int) {
	s.publish(ctx, "chat_events.rooms", name, map[string]interface{}{
		"room_id": roomID,
		"user_id": actorID,
	})
}

// withSenders fills Sender on every message from the user directory.
func (s *Service) withSenders(ctx context.Context, msgs []models.Message) []models.Message {
	if len(msgs) == 0 {
		return msgs
	}
	ids := make([]int, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.SenderID)
	}
	byID := map[int]models.Identity{}
	users, err := s.store.Users.FindUsers(ctx, ids)
	if err != nil {
		s.logger.Warn("load senders failed", zap.Error(err))
	}
	for _, u := range users {
		byID[u.ID] = u
	}
	for i := range msgs {
		if u, ok := byID[msgs[i].SenderID]; ok {
			msgs[i].Sender = u
			continue
		}
		msgs[i].Sender = models.Identity{ID: msgs[i].SenderID, Username: "user" + strconv.Itoa(msgs[i].SenderID)}
	}
	return msgs
}

func (s *Service) withSender(ctx context.Context, msg models.Message) models.Message {
	return s.withSenders(ctx, []models.Message{msg})[0]
}

// audience resolves the users that see msg: room members, or both parties of a
// recipient-addressed message.
func (s *Service) audience(ctx context.Context, msg models.Message) ([]int, error) {
	if msg.InRoom() {
		return s.rooms.MembersOf(ctx, *msg.RoomID)
	}
	out := []int{msg.SenderID}
	if msg.RecipientID != nil {
		out = append(out, *msg.RecipientID)
	}
	return out, nil
}

func (s *Service) authorizeMessage(ctx context.Context, msg models.Message, userID int) error {
	if msg.InRoom() {
		room, err := s.rooms.Room(ctx, *msg.RoomID)
		if err != nil {
			return err
		}
		if !room.IsMember(userID) {
			return errs.New(errs.Forbidden, "message.access", "not a member of this room")
		}
		return nil
	}
	if msg.SenderID == userID || (msg.RecipientID != nil && *msg.RecipientID == userID) {
		return nil
	}
	return errs.New(errs.Forbidden, "message.access", "not a participant of this conversation")
}

func (s *Service) loadMessage(ctx context.Context, op string, messageID int) (models.Message, error) {
	msg, err := s.store.Messages.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, errs.New(errs.NotFound, op, "message not found")
	}
	if err != nil {
		return models.Message{}, errs.Wrap(errs.Internal, op, err)
	}
	return msg, nil
}

func (s *Service) memberRoom(ctx context.Context, op string, roomID, userID int) (models.Room, error) {
	room, err := s.rooms.Room(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if !room.IsMember(userID) {
		return models.Room{}, errs.New(errs.Forbidden, op, "not a member of this room")
	}
	return room, nil
}

func (s *Service) page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = s.pageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// validateMessage normalizes in and rejects unusable content.
func validateMessage(in *models.NewMessage) error {
	const op = "message.validate"
	if (in.RoomID == nil) == (in.RecipientID == nil) {
		return errs.New(errs.Invalid, op, "exactly one of roomId and recipientId is required")
	}
	if in.Type == "" {
		in.Type = models.MessageText
	}
	in.Content = strings.TrimSpace(in.Content)
	if utf8.RuneCountInString(in.Content) > maxContentRunes {
		return errs.New(errs.Invalid, op, "message is too long")
	}
	switch in.Type {
	case models.MessageText:
		if in.Content == "" {
			return errs.New(errs.Invalid, op, "message content is required")
		}
		in.FileURL, in.FileName, in.FileSize = nil, nil, nil
	case models.MessageFile:
		if in.FileURL == nil || strings.TrimSpace(*in.FileURL) == "" {
			return errs.New(errs.Invalid, op, "fileUrl is required for file messages")
		}
		if in.FileSize != nil && *in.FileSize < 0 {
			return errs.New(errs.Invalid, op, "fileSize must not be negative")
		}
	default:
		return errs.New(errs.Invalid, op, "unknown message type")
	}
	return nil
}

func sortedUnique(ids []int) []int {
	out := append([]int(nil), ids...)
	sort.Ints(out)
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}
