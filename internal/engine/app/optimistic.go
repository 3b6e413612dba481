package app

import (
	"time"

	"chat_sync_service/internal/engine/domain"

	"github.com/google/uuid"
)

// ReconcileOutcome definition reconcile result
type ReconcileOutcome string

const (
	// ReconcileDuplicate confirmed id already in store, event dropped
	ReconcileDuplicate ReconcileOutcome = "duplicate"
	// ReconcileMatched pending entry consumed, replaced in place
	ReconcileMatched ReconcileOutcome = "matched"
	// ReconcileAppended no pending match, appended as new message
	ReconcileAppended ReconcileOutcome = "appended"
	// ReconcileSkipped createdAt already represented, event dropped
	ReconcileSkipped ReconcileOutcome = "skipped"
)

// Changed store was mutated
func (o ReconcileOutcome) Changed() bool {
	return o == ReconcileMatched || o == ReconcileAppended
}

// OptimisticMessageTracker stages pending sends and reconciles them against
// server-confirmed inserts. 純狀態物件，發 write 的動作由 engine 處理。
type OptimisticMessageTracker struct {
	store *ConversationStore
	now   func() time.Time
}

// NewOptimisticMessageTracker create OptimisticMessageTracker
func NewOptimisticMessageTracker(store *ConversationStore) *OptimisticMessageTracker {
	return &OptimisticMessageTracker{
		store: store,
		now:   time.Now,
	}
}

// Stage insert a pending message with a temp id into the store
func (t *OptimisticMessageTracker) Stage(ref domain.ConversationRef, senderID, content, replyToID string, att *domain.Attachment) domain.Message {
	msg := domain.Message{
		ID:           domain.TempIDPrefix + uuid.New().String(),
		Conversation: ref,
		SenderID:     senderID,
		Content:      content,
		CreatedAt:    t.now().UnixMilli(),
		ReplyToID:    replyToID,
		Attachment:   att,
		SendState:    domain.SendPending,
	}
	t.store.Append(msg)
	return msg
}

// Fail write rejected: rollback the pending entry
func (t *OptimisticMessageTracker) Fail(ref domain.ConversationRef, tempID string) (domain.Message, bool) {
	key := ref.Key()
	msg, ok := t.store.Get(key, tempID)
	if !ok {
		return domain.Message{}, false
	}
	msg.SendState = domain.SendFailed
	t.store.Remove(key, tempID)
	return msg, true
}

// Reconcile apply one confirmed insert.
//
//  1. id 已存在 → no-op（at-least-once delivery 防重）
//  2. FIFO 找同 (sender, content) 的最舊 pending → 原地替換
//  3. 沒有 pending 可配 → createdAt 未出現過才 append（多裝置 echo 的情況）
func (t *OptimisticMessageTracker) Reconcile(confirmed domain.Message) ReconcileOutcome {
	key := confirmed.Conversation.Key()

	if t.store.Has(key, confirmed.ID) {
		return ReconcileDuplicate
	}

	if tempID, ok := t.store.FirstPendingMatch(key, confirmed.SenderID, confirmed.Content); ok {
		confirmed.SendState = domain.SendConfirmed
		t.store.ReplaceByID(key, tempID, confirmed)
		return ReconcileMatched
	}

	if t.store.HasCreatedAt(key, confirmed.SenderID, confirmed.CreatedAt) {
		return ReconcileSkipped
	}

	confirmed.SendState = domain.SendConfirmed
	t.store.Append(confirmed)
	return ReconcileAppended
}
