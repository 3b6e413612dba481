package app

import (
	"context"
	"io"
	"time"

	"chat_sync_service/internal/engine/domain"
	"chat_sync_service/internal/engine/repository"

	"github.com/stretchr/testify/mock"
)

// MockSubscription Mock Subscription
type MockSubscription struct {
	mock.Mock
}

// Close moke close subscription
func (m *MockSubscription) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockEventStream Mock EventStreamPort
type MockEventStream struct {
	mock.Mock
}

// Subscribe moke subscribe channel
func (m *MockEventStream) Subscribe(ctx context.Context, channel string, handler func(evt domain.StreamEvent)) (repository.Subscription, error) {
	args := m.Called(ctx, channel, handler)
	if args.Get(0) != nil {
		return args.Get(0).(repository.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

// Publish moke publish event
func (m *MockEventStream) Publish(ctx context.Context, channel string, evt domain.StreamEvent) error {
	args := m.Called(ctx, channel, evt)
	return args.Error(0)
}

// Ping moke transport health probe
func (m *MockEventStream) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// InsertMessage moke insert message
func (m *MockMessageRepository) InsertMessage(ctx context.Context, msg domain.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

// UpdateMessage moke update message
func (m *MockMessageRepository) UpdateMessage(ctx context.Context, id, content string, editedAt int64) error {
	args := m.Called(ctx, id, content, editedAt)
	return args.Error(0)
}

// FindRecent moke backfill query
func (m *MockMessageRepository) FindRecent(ctx context.Context, ref domain.ConversationRef, limit int64) ([]domain.Message, error) {
	args := m.Called(ctx, ref, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// CountSince moke bulk catch-up query
func (m *MockMessageRepository) CountSince(ctx context.Context, ref domain.ConversationRef, selfID string, since int64) (int, error) {
	args := m.Called(ctx, ref, selfID, since)
	return args.Int(0), args.Error(1)
}

// ListConversations moke list conversation keys
func (m *MockMessageRepository) ListConversations(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockReactionRepository Mock ReactionRepository
type MockReactionRepository struct {
	mock.Mock
}

// InsertReaction moke insert reaction
func (m *MockReactionRepository) InsertReaction(ctx context.Context, r domain.Reaction) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// DeleteReaction moke delete reaction
func (m *MockReactionRepository) DeleteReaction(ctx context.Context, messageID, userID, emoji string) error {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Error(0)
}

// FindByMessages moke bulk reaction query
func (m *MockReactionRepository) FindByMessages(ctx context.Context, messageIDs []string) ([]domain.Reaction, error) {
	args := m.Called(ctx, messageIDs)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Reaction), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockWatermarkRepository Mock WatermarkRepository
type MockWatermarkRepository struct {
	mock.Mock
}

// Set moke persist watermark
func (m *MockWatermarkRepository) Set(ctx context.Context, userID, conversationKey string, at time.Time) error {
	args := m.Called(ctx, userID, conversationKey, at)
	return args.Error(0)
}

// Load moke load watermarks
func (m *MockWatermarkRepository) Load(ctx context.Context, userID string) (map[string]time.Time, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]time.Time), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPresenceRepository Mock PresenceRepository
type MockPresenceRepository struct {
	mock.Mock
}

// AutoMigrate moke migrate
func (m *MockPresenceRepository) AutoMigrate() error {
	args := m.Called()
	return args.Error(0)
}

// Touch moke heartbeat upsert
func (m *MockPresenceRepository) Touch(userID string, at int64) error {
	args := m.Called(userID, at)
	return args.Error(0)
}

// LastSeen moke bulk last_seen query
func (m *MockPresenceRepository) LastSeen(userIDs []string) (map[string]int64, error) {
	args := m.Called(userIDs)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockAttachmentRepository Mock AttachmentRepository
type MockAttachmentRepository struct {
	mock.Mock
}

// Upload moke attachment upload
func (m *MockAttachmentRepository) Upload(ctx context.Context, name, mimeType string, size int64, body io.Reader) (*domain.Attachment, error) {
	args := m.Called(ctx, name, mimeType, size, body)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Attachment), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockNotifier Mock Notifier
type MockNotifier struct {
	mock.Mock
}

// Notify moke desktop notification
func (m *MockNotifier) Notify(ref domain.ConversationRef, preview string) {
	m.Called(ref, preview)
}

// PlayIncomingSound moke incoming sound
func (m *MockNotifier) PlayIncomingSound() {
	m.Called()
}
