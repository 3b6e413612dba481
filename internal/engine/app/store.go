package app

import (
	"strings"

	"chat_sync_service/internal/engine/domain"
)

// ConversationStore in-memory ordered message log per conversation.
// 只能從 engine loop 這個 goroutine 操作，所以不加鎖。
type ConversationStore struct {
	logs map[string][]domain.Message
}

// NewConversationStore create ConversationStore
func NewConversationStore() *ConversationStore {
	return &ConversationStore{logs: make(map[string][]domain.Message)}
}

// Append push message to the tail of its conversation log.
// 同 id 已存在時不重複加入。
func (s *ConversationStore) Append(msg domain.Message) bool {
	key := msg.Conversation.Key()
	if s.Has(key, msg.ID) {
		return false
	}
	s.logs[key] = append(s.logs[key], msg)
	return true
}

// Has message id exists in conversation
func (s *ConversationStore) Has(key, id string) bool {
	for _, m := range s.logs[key] {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Get find message by id
func (s *ConversationStore) Get(key, id string) (domain.Message, bool) {
	for _, m := range s.logs[key] {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

// Len message count of one conversation
func (s *ConversationStore) Len(key string) int {
	return len(s.logs[key])
}

// Messages copy of the ordered log
func (s *ConversationStore) Messages(key string) []domain.Message {
	log := s.logs[key]
	out := make([]domain.Message, len(log))
	copy(out, log)
	return out
}

// ReplaceByID swap the entry with the given id in place, list position preserved
func (s *ConversationStore) ReplaceByID(key, id string, msg domain.Message) bool {
	log := s.logs[key]
	for i, m := range log {
		if m.ID == id {
			log[i] = msg
			return true
		}
	}
	return false
}

// Remove delete entry by id
func (s *ConversationStore) Remove(key, id string) bool {
	log := s.logs[key]
	for i, m := range log {
		if m.ID == id {
			s.logs[key] = append(log[:i], log[i+1:]...)
			return true
		}
	}
	return false
}

// ApplyEdit update content/editedAt in place
func (s *ConversationStore) ApplyEdit(key, id, content string, editedAt int64) bool {
	log := s.logs[key]
	for i, m := range log {
		if m.ID == id {
			log[i].Content = content
			log[i].EditedAt = editedAt
			return true
		}
	}
	return false
}

// HasCreatedAt 同 sender 同 timestamp 的訊息是否已存在（防 duplicate append）
func (s *ConversationStore) HasCreatedAt(key, senderID string, createdAt int64) bool {
	for _, m := range s.logs[key] {
		if m.SenderID == senderID && m.CreatedAt == createdAt {
			return true
		}
	}
	return false
}

// FirstPendingMatch FIFO 找最舊的未匹配 pending entry。
// 同內容連發兩則時，必須從最舊的開始消耗，避免 cross-match。
func (s *ConversationStore) FirstPendingMatch(key, senderID, content string) (string, bool) {
	for _, m := range s.logs[key] {
		if m.IsPending() && domain.IsTempID(m.ID) && m.SenderID == senderID && m.Content == content {
			return m.ID, true
		}
	}
	return "", false
}

// SetMessages replace the whole log, used by backfill
func (s *ConversationStore) SetMessages(key string, msgs []domain.Message) {
	log := make([]domain.Message, len(msgs))
	copy(log, msgs)
	s.logs[key] = log
}

// Filter simple substring filter over one conversation
func (s *ConversationStore) Filter(key, keyword string) []domain.Message {
	var out []domain.Message
	for _, m := range s.logs[key] {
		if strings.Contains(m.Content, keyword) {
			out = append(out, m)
		}
	}
	return out
}
