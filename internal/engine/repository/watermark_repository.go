package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// WatermarkRepository last-read watermark map, persisted locally per user.
// 只有 markRead 會寫，其他都是讀。
type WatermarkRepository interface {
	// Set 設定單一 conversation 的 watermark
	Set(ctx context.Context, userID, conversationKey string, at time.Time) error
	// Load 載入該 user 的全部 watermark，key 是 conversation key
	Load(ctx context.Context, userID string) (map[string]time.Time, error)
}

type redisWatermarkRepository struct {
	client *redis.Client
}

// NewRedisWatermarkRepository create a WatermarkRepository
func NewRedisWatermarkRepository(client *redis.Client) WatermarkRepository {
	return &redisWatermarkRepository{client: client}
}

func watermarkKey(userID string) string {
	return "chat:watermark:" + userID
}

func (r *redisWatermarkRepository) Set(ctx context.Context, userID, conversationKey string, at time.Time) error {
	// ISO timestamp，方便人工巡 redis
	return r.client.HSet(ctx, watermarkKey(userID), conversationKey, at.UTC().Format(time.RFC3339Nano)).Err()
}

func (r *redisWatermarkRepository) Load(ctx context.Context, userID string) (map[string]time.Time, error) {
	raw, err := r.client.HGetAll(ctx, watermarkKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(raw))
	for key, val := range raw {
		t, err := time.Parse(time.RFC3339Nano, val)
		if err != nil {
			// 壞資料當成沒有 watermark
			continue
		}
		out[key] = t
	}
	return out, nil
}
