package repository

import (
	"context"
	"errors"
	"time"

	"chat_sync_service/internal/engine/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrMessageNotFound message id 不存在
var ErrMessageNotFound = errors.New("message not found")

// MessageRepository definition message write/read contract
type MessageRepository interface {
	// InsertMessage 寫入訊息，回傳 server 指派的 id
	InsertMessage(ctx context.Context, msg domain.Message) (string, error)
	// UpdateMessage 編輯訊息內容
	UpdateMessage(ctx context.Context, id, content string, editedAt int64) error
	// FindRecent 開啟 conversation 時的 backfill，按 created_at 升序回傳最後 limit 筆
	FindRecent(ctx context.Context, ref domain.ConversationRef, limit int64) ([]domain.Message, error)
	// CountSince bulk catch-up：watermark 之後、非本人發的訊息數
	CountSince(ctx context.Context, ref domain.ConversationRef, selfID string, since int64) (int, error)
	// ListConversations 該 user 出現過的所有 conversation key
	ListConversations(ctx context.Context, userID string) ([]string, error)
}

// ReactionRepository definition reaction write contract
type ReactionRepository interface {
	InsertReaction(ctx context.Context, r domain.Reaction) error
	DeleteReaction(ctx context.Context, messageID, userID, emoji string) error
	FindByMessages(ctx context.Context, messageIDs []string) ([]domain.Reaction, error)
}

type mongoMessageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create a MessageRepository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{coll: db.Collection("messages")}
}

func (r *mongoMessageRepository) InsertMessage(ctx context.Context, msg domain.Message) (string, error) {
	// temp id 不落地，這裡指派正式 id
	if msg.ID == "" || domain.IsTempID(msg.ID) {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().UnixMilli()
	}
	doc := bson.M{
		"_id":              msg.ID,
		"conversation_key": msg.Conversation.Key(),
		"conversation":     msg.Conversation,
		"sender_id":        msg.SenderID,
		"content":          msg.Content,
		"created_at":       msg.CreatedAt,
	}
	if msg.ReplyToID != "" {
		doc["reply_to_id"] = msg.ReplyToID
	}
	if msg.Attachment != nil {
		doc["attachment"] = msg.Attachment
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (r *mongoMessageRepository) UpdateMessage(ctx context.Context, id, content string, editedAt int64) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"content": content, "edited_at": editedAt}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (r *mongoMessageRepository) FindRecent(ctx context.Context, ref domain.ConversationRef, limit int64) ([]domain.Message, error) {
	// 取最新 limit 筆再反轉成升序
	opts := options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, bson.M{"conversation_key": ref.Key()}, opts)
	if err != nil {
		return nil, err
	}
	var msgs []domain.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *mongoMessageRepository) CountSince(ctx context.Context, ref domain.ConversationRef, selfID string, since int64) (int, error) {
	filter := bson.M{
		"conversation_key": ref.Key(),
		"sender_id":        bson.M{"$ne": selfID},
		"created_at":       bson.M{"$gt": since},
	}
	n, err := r.coll.CountDocuments(ctx, filter)
	return int(n), err
}

func (r *mongoMessageRepository) ListConversations(ctx context.Context, userID string) ([]string, error) {
	// channel 成員資格由外部 CRUD 管，這裡只列出 user 實際出現過的 conversation
	filter := bson.M{"$or": []bson.M{
		{"sender_id": userID},
		{"conversation.user_a": userID},
		{"conversation.user_b": userID},
	}}
	keys, err := r.coll.Distinct(ctx, "conversation_key", filter)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := k.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type mongoReactionRepository struct {
	coll *mongo.Collection
}

// NewMongoReactionRepository create a ReactionRepository
func NewMongoReactionRepository(db *mongo.Database) ReactionRepository {
	return &mongoReactionRepository{coll: db.Collection("reactions")}
}

func (r *mongoReactionRepository) InsertReaction(ctx context.Context, reaction domain.Reaction) error {
	// upsert 保證 (message, user, emoji) tuple 不重複
	filter := bson.M{
		"message_id": reaction.MessageID,
		"user_id":    reaction.UserID,
		"emoji":      reaction.Emoji,
	}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":        reaction.ID,
		"message_id": reaction.MessageID,
		"kind":       reaction.Kind,
		"user_id":    reaction.UserID,
		"emoji":      reaction.Emoji,
	}}
	_, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *mongoReactionRepository) DeleteReaction(ctx context.Context, messageID, userID, emoji string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{
		"message_id": messageID,
		"user_id":    userID,
		"emoji":      emoji,
	})
	return err
}

func (r *mongoReactionRepository) FindByMessages(ctx context.Context, messageIDs []string) ([]domain.Reaction, error) {
	cur, err := r.coll.Find(ctx, bson.M{"message_id": bson.M{"$in": messageIDs}})
	if err != nil {
		return nil, err
	}
	var reactions []domain.Reaction
	if err := cur.All(ctx, &reactions); err != nil {
		return nil, err
	}
	return reactions, nil
}
