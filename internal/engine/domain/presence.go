package domain

import "time"

// OnlineWindow heartbeat 之後多久內視為在線
const OnlineWindow = 120 * time.Second

// LiveWindow ephemeral connected 訊號的有效期，兩個 heartbeat 間隔。
// 對端 crash 送不出 leave 時靠這個衰減，最後仍由 OnlineWindow 收斂。
const LiveWindow = 30 * time.Second

// PresenceRecord merged presence for one user.
// LiveConnected 來自 ephemeral membership event，LastSeenAt 來自持久化 heartbeat。
// LiveRefreshedAt 是最後一次收到該 user 任何訊號的本地時間。
type PresenceRecord struct {
	UserID          string `json:"user_id"`
	LastSeenAt      int64  `json:"last_seen_at"`
	LiveConnected   bool   `json:"live_connected"`
	LiveRefreshedAt int64  `json:"live_refreshed_at"`
}

// IsOnline derived state at the given instant
func (p PresenceRecord) IsOnline(now time.Time) bool {
	if p.LiveConnected && now.UnixMilli()-p.LiveRefreshedAt < LiveWindow.Milliseconds() {
		return true
	}
	return now.UnixMilli()-p.LastSeenAt < OnlineWindow.Milliseconds()
}

// TypingSignal ephemeral typing broadcast, never persisted
type TypingSignal struct {
	UserID       string          `json:"user_id"`
	Name         string          `json:"name"`
	Typing       bool            `json:"typing"`
	Conversation ConversationRef `json:"conversation"`
}

// UnreadWatermark per conversation last-read boundary, persisted locally per user
type UnreadWatermark struct {
	Conversation ConversationRef `json:"conversation"`
	LastReadAt   int64           `json:"last_read_at"`
}
