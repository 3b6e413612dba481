package app

import (
	"testing"

	"chat_sync_service/internal/engine/domain"

	"github.com/stretchr/testify/assert"
)

// 測試 Stage 產生 pending entry
func TestOptimisticMessageTracker_Stage(t *testing.T) {
	store := NewConversationStore()
	tracker := NewOptimisticMessageTracker(store)
	ref := domain.NewChannelRef("general")

	pending := tracker.Stage(ref, "u-1", "hello", "", nil)

	assert.True(t, domain.IsTempID(pending.ID))
	assert.True(t, pending.IsPending())
	assert.Equal(t, 1, store.Len(ref.Key()))
}

// 測試 server echo 原地替換 pending entry，位置不變
func TestOptimisticMessageTracker_ReconcileMatch(t *testing.T) {
	store := NewConversationStore()
	tracker := NewOptimisticMessageTracker(store)
	ref := domain.NewChannelRef("general")
	key := ref.Key()

	store.Append(domain.Message{ID: "m-1", Conversation: ref, SenderID: "u-2", Content: "before", CreatedAt: 50})
	pending := tracker.Stage(ref, "u-1", "hello", "", nil)
	store.Append(domain.Message{ID: "m-2", Conversation: ref, SenderID: "u-2", Content: "after", CreatedAt: 150})

	confirmed := domain.Message{ID: "m-42", Conversation: ref, SenderID: "u-1", Content: "hello", CreatedAt: 120}
	outcome := tracker.Reconcile(confirmed)

	assert.Equal(t, ReconcileMatched, outcome)
	assert.False(t, store.Has(key, pending.ID))

	msgs := store.Messages(key)
	assert.Equal(t, []string{"m-1", "m-42", "m-2"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	assert.Equal(t, domain.SendConfirmed, msgs[1].SendState)
}

// 測試同內容連發兩則，echo 依 FIFO 消耗最舊的 pending
func TestOptimisticMessageTracker_ReconcileFIFO(t *testing.T) {
	store := NewConversationStore()
	tracker := NewOptimisticMessageTracker(store)
	ref := domain.NewChannelRef("general")
	key := ref.Key()

	first := tracker.Stage(ref, "u-1", "hi", "", nil)
	second := tracker.Stage(ref, "u-1", "hi", "", nil)

	outcome := tracker.Reconcile(domain.Message{ID: "m-10", Conversation: ref, SenderID: "u-1", Content: "hi", CreatedAt: 100})
	assert.Equal(t, ReconcileMatched, outcome)
	assert.False(t, store.Has(key, first.ID))
	assert.True(t, store.Has(key, second.ID))

	outcome = tracker.Reconcile(domain.Message{ID: "m-11", Conversation: ref, SenderID: "u-1", Content: "hi", CreatedAt: 110})
	assert.Equal(t, ReconcileMatched, outcome)
	assert.False(t, store.Has(key, second.ID))

	msgs := store.Messages(key)
	assert.Equal(t, []string{"m-10", "m-11"}, []string{msgs[0].ID, msgs[1].ID})
}

// 測試重複投遞同 id 是 no-op
func TestOptimisticMessageTracker_ReconcileDuplicate(t *testing.T) {
	store := NewConversationStore()
	tracker := NewOptimisticMessageTracker(store)
	ref := domain.NewChannelRef("general")

	confirmed := domain.Message{ID: "m-1", Conversation: ref, SenderID: "u-2", Content: "yo", CreatedAt: 100}
	assert.Equal(t, ReconcileAppended, tracker.Reconcile(confirmed))
	assert.Equal(t, ReconcileDuplicate, tracker.Reconcile(confirmed))
	assert.Equal(t, 1, store.Len(ref.Key()))
}

// 測試沒有 pending 可配且同 sender 同 createdAt 已存在時不重複 append
func TestOptimisticMessageTracker_ReconcileSkipsKnownCreatedAt(t *testing.T) {
	store := NewConversationStore()
	tracker := NewOptimisticMessageTracker(store)
	ref := domain.NewChannelRef("general")

	assert.Equal(t, ReconcileAppended, tracker.Reconcile(
		domain.Message{ID: "m-1", Conversation: ref, SenderID: "u-2", Content: "yo", CreatedAt: 100}))

	// 另一個 session 的 echo：不同 id、同 sender 同 timestamp
	assert.Equal(t, ReconcileSkipped, tracker.Reconcile(
		domain.Message{ID: "m-1b", Conversation: ref, SenderID: "u-2", Content: "yo", CreatedAt: 100}))
	assert.Equal(t, 1, store.Len(ref.Key()))
}

// 測試 write rejected 時 pending entry 回滾
func TestOptimisticMessageTracker_Fail(t *testing.T) {
	store := NewConversationStore()
	tracker := NewOptimisticMessageTracker(store)
	ref := domain.NewChannelRef("general")

	pending := tracker.Stage(ref, "u-1", "hello", "", nil)

	failed, ok := tracker.Fail(ref, pending.ID)
	assert.True(t, ok)
	assert.Equal(t, domain.SendFailed, failed.SendState)
	assert.Equal(t, 0, store.Len(ref.Key()))

	_, ok = tracker.Fail(ref, pending.ID)
	assert.False(t, ok)
}
