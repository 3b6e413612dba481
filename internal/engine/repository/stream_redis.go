package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"chat_sync_service/internal/engine/domain"
	"chat_sync_service/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// Subscription one open named subscription, Close 是同步的
type Subscription interface {
	Close() error
}

// EventStreamPort abstract change feed: open named subscriptions, publish events,
// ping transport health.
type EventStreamPort interface {
	Subscribe(ctx context.Context, channel string, handler func(evt domain.StreamEvent)) (Subscription, error)
	Publish(ctx context.Context, channel string, evt domain.StreamEvent) error
	Ping(ctx context.Context) error
}

// RedisEventStream EventStreamPort over redis pub/sub
type RedisEventStream struct {
	client *redis.Client
}

// NewRedisEventStream create RedisEventStream
func NewRedisEventStream(client *redis.Client) *RedisEventStream {
	return &RedisEventStream{client: client}
}

type redisSubscription struct {
	sub *redis.PubSub
}

func (s *redisSubscription) Close() error {
	return s.sub.Close()
}

// Subscribe 訂閱 channel，收到封包後解開 envelope 呼叫 handler。
// 關閉訂閱走 Subscription.Close()，pubsub channel 關閉後 goroutine 自行結束。
func (r *RedisEventStream) Subscribe(ctx context.Context, channel string, handler func(evt domain.StreamEvent)) (Subscription, error) {
	sub := r.client.Subscribe(ctx, channel)

	// 先等訂閱確認，避免 bind 之後的事件漏接
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	go func() {
		ch := sub.Channel()
		for m := range ch {
			var evt domain.StreamEvent
			if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
				logger.Log.Errorf(fmt.Sprintf("stream %s unmarshal:", channel), err)
				continue
			}
			handler(evt)
		}
		logger.Log.Info(fmt.Sprintf("%s , sub close", channel))
	}()

	return &redisSubscription{sub: sub}, nil
}

// Publish 將 event 序列化後發布到指定 channel
func (r *RedisEventStream) Publish(ctx context.Context, channel string, evt domain.StreamEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Ping transport health check for the connection monitor
func (r *RedisEventStream) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Channel naming for the feeds the engine subscribes to.
// conversation-scoped channel 帶 conversation key，global channel 固定。
const (
	channelPrefixRoom    = "chat:room:"
	channelPrefixTyping  = "chat:typing:"
	channelPrefixDirect  = "chat:direct:"
	channelGlobalInserts = "chat:events:messages"
	channelReactions     = "chat:events:reactions"
	channelPresence      = "chat:presence"
)

// RoomChannel message feed for one conversation
func RoomChannel(ref domain.ConversationRef) string {
	return channelPrefixRoom + ref.Key()
}

// TypingChannel conversation-scoped typing feed.
// 整個 conversation 共用一條，自己的 echo 在接收端過濾。
func TypingChannel(ref domain.ConversationRef) string {
	return channelPrefixTyping + ref.Key()
}

// DirectChannel per-user direct message feed
func DirectChannel(userID string) string {
	return channelPrefixDirect + userID
}

// GlobalInsertChannel all message inserts, for unread accounting
func GlobalInsertChannel() string { return channelGlobalInserts }

// ReactionChannel conversation-independent reaction feed
func ReactionChannel() string { return channelReactions }

// PresenceChannel ephemeral membership + heartbeat feed
func PresenceChannel() string { return channelPresence }
