package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-realtime/internal/models"
)

type AuthProviderMock struct {
	mock.Mock
}

func (m *AuthProviderMock) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	args := m.Called(ctx, token)
	var identity models.Identity
	if val := args.Get(0); val != nil {
		identity = val.(models.Identity)
	}
	return identity, args.Error(1)
}

type ChatServiceMock struct {
	mock.Mock
}

func room(args mock.Arguments, i int) models.Room {
	if val := args.Get(i); val != nil {
		return val.(models.Room)
	}
	return models.Room{}
}

func rooms(args mock.Arguments, i int) []models.Room {
	if val := args.Get(i); val != nil {
		return val.([]models.Room)
	}
	return nil
}

func message(args mock.Arguments, i int) models.Message {
	if val := args.Get(i); val != nil {
		return val.(models.Message)
	}
	return models.Message{}
}

func messages(args mock.Arguments, i int) []models.Message {
	if val := args.Get(i); val != nil {
		return val.([]models.Message)
	}
	return nil
}

func (m *ChatServiceMock) CreateRoom(ctx context.Context, actor models.Identity, name, description, avatar string) (models.Room, error) {
	args := m.Called(ctx, actor, name, description, avatar)
	return room(args, 0), args.Error(1)
}

func (m *ChatServiceMock) GetRoom(ctx context.Context, actor models.Identity, roomID int) (models.Room, error) {
	args := m.Called(ctx, actor, roomID)
	return room(args, 0), args.Error(1)
}

func (m *ChatServiceMock) ListRooms(ctx context.Context, actor models.Identity) ([]models.Room, error) {
	args := m.Called(ctx, actor)
	return rooms(args, 0), args.Error(1)
}

func (m *ChatServiceMock) ListPublicRooms(ctx context.Context) ([]models.Room, error) {
	args := m.Called(ctx)
	return rooms(args, 0), args.Error(1)
}

func (m *ChatServiceMock) OpenDirect(ctx context.Context, actor models.Identity, peerID int) (models.Room, bool, error) {
	args := m.Called(ctx, actor, peerID)
	return room(args, 0), args.Bool(1), args.Error(2)
}

func (m *ChatServiceMock) UpdateRoom(ctx context.Context, actor models.Identity, roomID int, patch models.RoomPatch) (models.Room, error) {
	args := m.Called(ctx, actor, roomID, patch)
	return room(args, 0), args.Error(1)
}

func (m *ChatServiceMock) AddAdmin(ctx context.Context, actor models.Identity, roomID, userID int) (models.Room, error) {
	args := m.Called(ctx, actor, roomID, userID)
	return room(args, 0), args.Error(1)
}

func (m *ChatServiceMock) RemoveAdmin(ctx context.Context, actor models.Identity, roomID, userID int) (models.Room, error) {
	args := m.Called(ctx, actor, roomID, userID)
	return room(args, 0), args.Error(1)
}

func (m *ChatServiceMock) RemoveMember(ctx context.Context, actor models.Identity, roomID, userID int) (models.Room, error) {
	args := m.Called(ctx, actor, roomID, userID)
	return room(args, 0), args.Error(1)
}

func (m *ChatServiceMock) DeleteRoom(ctx context.Context, actor models.Identity, roomID int) error {
	args := m.Called(ctx, actor, roomID)
	return args.Error(0)
}

func (m *ChatServiceMock) JoinRoom(ctx context.Context, actor models.Identity, roomID int) (models.Room, bool, error) {
	args := m.Called(ctx, actor, roomID)
	return room(args, 0), args.Bool(1), args.Error(2)
}

func (m *ChatServiceMock) LeaveRoom(ctx context.Context, actor models.Identity, roomID int) (models.Room, bool, error) {
	args := m.Called(ctx, actor, roomID)
	return room(args, 0), args.Bool(1), args.Error(2)
}

func (m *ChatServiceMock) MarkRoomViewed(ctx context.Context, actor models.Identity, roomID int) error {
	args := m.Called(ctx, actor, roomID)
	return args.Error(0)
}

func (m *ChatServiceMock) Unread(ctx context.Context, actor models.Identity) ([]models.UnreadCount, error) {
	args := m.Called(ctx, actor)
	var counts []models.UnreadCount
	if val := args.Get(0); val != nil {
		counts = val.([]models.UnreadCount)
	}
	return counts, args.Error(1)
}

func (m *ChatServiceMock) RoomHistory(ctx context.Context, actor models.Identity, roomID, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, actor, roomID, limit, offset)
	return messages(args, 0), args.Error(1)
}

func (m *ChatServiceMock) DirectHistory(ctx context.Context, actor models.Identity, peerID, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, actor, peerID, limit, offset)
	return messages(args, 0), args.Error(1)
}

func (m *ChatServiceMock) SendMessage(ctx context.Context, actor models.Identity, in models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, actor, in)
	return message(args, 0), args.Error(1)
}

func (m *ChatServiceMock) ToggleReaction(ctx context.Context, actor models.Identity, messageID int, emoji string) (models.Message, error) {
	args := m.Called(ctx, actor, messageID, emoji)
	return message(args, 0), args.Error(1)
}

func (m *ChatServiceMock) MarkRead(ctx context.Context, actor models.Identity, messageID int) (models.Message, error) {
	args := m.Called(ctx, actor, messageID)
	return message(args, 0), args.Error(1)
}

func (m *ChatServiceMock) Search(ctx context.Context, actor models.Identity, query string, roomID int) ([]models.Message, error) {
	args := m.Called(ctx, actor, query, roomID)
	return messages(args, 0), args.Error(1)
}

func (m *ChatServiceMock) Online() []models.Identity {
	args := m.Called()
	var roster []models.Identity
	if val := args.Get(0); val != nil {
		roster = val.([]models.Identity)
	}
	return roster
}
