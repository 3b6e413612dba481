package app

import (
	"testing"
	"time"

	"chat_sync_service/internal/engine/domain"

	"github.com/stretchr/testify/assert"
)

// 測試 heartbeat 在 window 內算在線，過了 window 算離線
func TestPresenceTracker_HeartbeatWindow(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPresenceTracker("self")
	p.now = func() time.Time { return now }

	p.OnHeartbeat("u-1", now.UnixMilli())
	assert.True(t, p.IsOnline("u-1"))

	// window 邊界內
	now = now.Add(domain.OnlineWindow - time.Millisecond)
	assert.True(t, p.IsOnline("u-1"))

	// 超過 window
	now = now.Add(2 * time.Millisecond)
	assert.False(t, p.IsOnline("u-1"))
}

// 測試 ephemeral connected 蓋過過期的 heartbeat
func TestPresenceTracker_EphemeralOverridesStaleHeartbeat(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPresenceTracker("self")
	p.now = func() time.Time { return now }

	p.OnHeartbeat("u-1", now.Add(-10*time.Minute).UnixMilli())
	assert.False(t, p.IsOnline("u-1"))

	p.OnEphemeral("u-1", true)
	assert.True(t, p.IsOnline("u-1"))

	// 斷線後靠剛剛被推上來的 lastSeen 撐到 window 結束
	p.OnEphemeral("u-1", false)
	assert.True(t, p.IsOnline("u-1"))
	now = now.Add(domain.OnlineWindow + time.Millisecond)
	assert.False(t, p.IsOnline("u-1"))
}

// 測試 ephemeral connected 不是永久的：對端沉默超過 window 就離線
func TestPresenceTracker_SilentPeerGoesOffline(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPresenceTracker("self")
	p.now = func() time.Time { return now }

	p.OnEphemeral("u-7", true)
	assert.True(t, p.IsOnline("u-7"))

	// live 訊號過期，但 join 推上來的 lastSeen 還在 window 內
	now = now.Add(domain.LiveWindow + time.Millisecond)
	assert.True(t, p.IsOnline("u-7"))

	// 之後再無任何訊號（crash 的對端發不出 leave），window 過了就離線
	now = now.Add(10 * time.Minute)
	assert.False(t, p.IsOnline("u-7"))
	assert.Empty(t, p.OnlineUsers())
}

// 測試 heartbeat 會刷新 live 訊號的有效期
func TestPresenceTracker_HeartbeatRefreshesLive(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPresenceTracker("self")
	p.now = func() time.Time { return now }

	p.OnEphemeral("u-1", true)

	// live 快過期前收到 heartbeat
	now = now.Add(domain.LiveWindow - time.Second)
	p.OnHeartbeat("u-1", now.UnixMilli())

	// 距 join 已超過 LiveWindow，live 仍然有效
	now = now.Add(2 * time.Second)
	r, ok := p.Record("u-1")
	assert.True(t, ok)
	assert.True(t, r.LiveConnected)
	assert.True(t, p.IsOnline("u-1"))
}

// 測試 heartbeat 只會往前走，舊的 timestamp 不回退
func TestPresenceTracker_HeartbeatMaxWins(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPresenceTracker("self")
	p.now = func() time.Time { return now }

	p.OnHeartbeat("u-1", 500)
	p.OnHeartbeat("u-1", 300)

	r, ok := p.Record("u-1")
	assert.True(t, ok)
	assert.Equal(t, int64(500), r.LastSeenAt)
}

// 測試 Bootstrap + OnlineUsers 排序
func TestPresenceTracker_OnlineUsers(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	p := NewPresenceTracker("self")
	p.now = func() time.Time { return now }

	p.Bootstrap(map[string]int64{
		"u-b": now.UnixMilli(),
		"u-a": now.UnixMilli(),
		"u-c": now.Add(-10 * time.Minute).UnixMilli(),
	})

	assert.Equal(t, []string{"u-a", "u-b"}, p.OnlineUsers())
}

// 測試沒有任何紀錄的 user 視為離線
func TestPresenceTracker_UnknownUserOffline(t *testing.T) {
	p := NewPresenceTracker("self")
	assert.False(t, p.IsOnline("stranger"))
	_, ok := p.Record("stranger")
	assert.False(t, ok)
}
