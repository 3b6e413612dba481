package app

import (
	"sort"

	"chat_sync_service/internal/engine/domain"
)

// ReactionAggregator groups reactions by message and emoji with toggle
// semantics. Reaction 事件走 conversation-independent stream，管它現在開著
// 哪個 conversation 都照套。
type ReactionAggregator struct {
	selfID string
	// messageID → emoji → userID → reaction id
	byMessage map[string]map[string]map[string]string
}

// NewReactionAggregator create ReactionAggregator
func NewReactionAggregator(selfID string) *ReactionAggregator {
	return &ReactionAggregator{
		selfID:    selfID,
		byMessage: make(map[string]map[string]map[string]string),
	}
}

// Apply one reaction stream event. insert/delete 都是冪等的。
func (a *ReactionAggregator) Apply(op domain.Operation, r domain.Reaction) bool {
	switch op {
	case domain.OpInsert:
		emojis, ok := a.byMessage[r.MessageID]
		if !ok {
			emojis = make(map[string]map[string]string)
			a.byMessage[r.MessageID] = emojis
		}
		users, ok := emojis[r.Emoji]
		if !ok {
			users = make(map[string]string)
			emojis[r.Emoji] = users
		}
		if _, exists := users[r.UserID]; exists {
			return false
		}
		users[r.UserID] = r.ID
		return true

	case domain.OpDelete:
		users, ok := a.byMessage[r.MessageID][r.Emoji]
		if !ok {
			return false
		}
		if _, exists := users[r.UserID]; !exists {
			return false
		}
		delete(users, r.UserID)
		if len(users) == 0 {
			delete(a.byMessage[r.MessageID], r.Emoji)
		}
		return true
	}
	return false
}

// Bootstrap seed from a bulk query on backfill
func (a *ReactionAggregator) Bootstrap(reactions []domain.Reaction) {
	for _, r := range reactions {
		a.Apply(domain.OpInsert, r)
	}
}

// Has the (message, user, emoji) tuple exists — toggle 用這個決定 add 還是 remove
func (a *ReactionAggregator) Has(messageID, userID, emoji string) bool {
	users, ok := a.byMessage[messageID][emoji]
	if !ok {
		return false
	}
	_, exists := users[userID]
	return exists
}

// Groups per-emoji display grouping for one message, sorted by emoji
func (a *ReactionAggregator) Groups(messageID string) []domain.ReactionGroup {
	emojis := a.byMessage[messageID]
	out := make([]domain.ReactionGroup, 0, len(emojis))
	for emoji, users := range emojis {
		_, reacted := users[a.selfID]
		out = append(out, domain.ReactionGroup{
			Emoji:   emoji,
			Count:   len(users),
			Reacted: reacted,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Emoji < out[j].Emoji })
	return out
}
