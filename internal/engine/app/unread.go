package app

import (
	"time"

	"chat_sync_service/internal/engine/domain"
)

// UnreadAccounting per-conversation unread counters over a persisted
// last-read watermark. Counter 只活在記憶體，watermark 只有 MarkRead 會動。
type UnreadAccounting struct {
	selfID string
	now    func() time.Time

	// currentKey 每次呼叫時讀「現在開著」的 conversation，
	// 不能在建構時把值抓死，不然換 conversation 之後會算錯。
	currentKey func() string

	counters   map[string]int
	watermarks map[string]time.Time
}

// NewUnreadAccounting create UnreadAccounting
func NewUnreadAccounting(selfID string, currentKey func() string) *UnreadAccounting {
	return &UnreadAccounting{
		selfID:     selfID,
		now:        time.Now,
		currentKey: currentKey,
		counters:   make(map[string]int),
		watermarks: make(map[string]time.Time),
	}
}

// LoadWatermarks seed persisted watermarks on initial load
func (u *UnreadAccounting) LoadWatermarks(marks map[string]time.Time) {
	for key, at := range marks {
		u.watermarks[key] = at
	}
}

// Bootstrap seed one counter from the bulk catch-up query
func (u *UnreadAccounting) Bootstrap(conversationKey string, count int) {
	u.counters[conversationKey] = count
}

// MarkRead watermark = now, counter = 0. 回傳要落地的 timestamp。
func (u *UnreadAccounting) MarkRead(ref domain.ConversationRef) time.Time {
	at := u.now()
	key := ref.Key()
	u.watermarks[key] = at
	u.counters[key] = 0
	return at
}

// OnMessageInserted count a live insert.
// 正在看的 conversation 不計，自己發的不計。watermark 不動。
func (u *UnreadAccounting) OnMessageInserted(msg domain.Message) bool {
	if msg.SenderID == u.selfID {
		return false
	}
	key := msg.Conversation.Key()
	if key == u.currentKey() {
		return false
	}
	u.counters[key]++
	return true
}

// Count unread count of one conversation
func (u *UnreadAccounting) Count(conversationKey string) int {
	return u.counters[conversationKey]
}

// Counts copy of all nonzero counters
func (u *UnreadAccounting) Counts() map[string]int {
	out := make(map[string]int, len(u.counters))
	for key, n := range u.counters {
		if n > 0 {
			out[key] = n
		}
	}
	return out
}

// Watermark persisted last-read boundary of one conversation
func (u *UnreadAccounting) Watermark(conversationKey string) (time.Time, bool) {
	at, ok := u.watermarks[conversationKey]
	return at, ok
}
