package app

import (
	"sort"
	"time"

	"chat_sync_service/internal/engine/domain"
)

type typingEntry struct {
	name   string
	seenAt time.Time
}

// TypingCoordinator debounces local typing broadcasts and keeps the remote
// typing set for the currently open conversation.
// 聚合出來的集合永遠不含自己。
type TypingCoordinator struct {
	selfID   string
	selfName string
	now      func() time.Time

	idleTimeout time.Duration
	staleAfter  time.Duration

	broadcast func(sig domain.TypingSignal)

	scope         domain.ConversationRef
	localTyping   bool
	lastKeystroke time.Time
	remote        map[string]typingEntry
}

// NewTypingCoordinator create TypingCoordinator
func NewTypingCoordinator(selfID, selfName string, idleTimeout, staleAfter time.Duration, broadcast func(sig domain.TypingSignal)) *TypingCoordinator {
	return &TypingCoordinator{
		selfID:      selfID,
		selfName:    selfName,
		now:         time.Now,
		idleTimeout: idleTimeout,
		staleAfter:  staleAfter,
		broadcast:   broadcast,
		remote:      make(map[string]typingEntry),
	}
}

// Rebind switch to a new conversation.
// 舊 conversation 上若還在 typing，先補發 typing:false 再換 scope。
func (t *TypingCoordinator) Rebind(ref domain.ConversationRef) {
	t.StopLocal()
	t.scope = ref
	t.remote = make(map[string]typingEntry)
}

// Keystroke local user typed something.
// 連續敲鍵只廣播一次 typing:true，之後靠 Sweep 的 idle timeout 收尾。
func (t *TypingCoordinator) Keystroke() {
	t.lastKeystroke = t.now()
	if t.localTyping || t.scope.IsZero() {
		return
	}
	t.localTyping = true
	t.signal(true)
}

// StopLocal immediate typing:false, called on send and on rebind
func (t *TypingCoordinator) StopLocal() {
	if !t.localTyping {
		return
	}
	t.localTyping = false
	t.signal(false)
}

// OnSignal remote typing event for the bound conversation
func (t *TypingCoordinator) OnSignal(sig domain.TypingSignal) bool {
	if sig.UserID == t.selfID {
		return false
	}
	if sig.Conversation.Key() != t.scope.Key() {
		return false
	}
	if !sig.Typing {
		if _, ok := t.remote[sig.UserID]; !ok {
			return false
		}
		delete(t.remote, sig.UserID)
		return true
	}
	t.remote[sig.UserID] = typingEntry{name: sig.Name, seenAt: t.now()}
	return true
}

// Sweep periodic maintenance: evict stale remote entries (對方的 stop 事件
// 可能丟失), auto-stop local broadcast after idle. Returns true when the
// remote set changed.
func (t *TypingCoordinator) Sweep() bool {
	now := t.now()

	if t.localTyping && now.Sub(t.lastKeystroke) >= t.idleTimeout {
		t.localTyping = false
		t.signal(false)
	}

	changed := false
	for userID, entry := range t.remote {
		if now.Sub(entry.seenAt) >= t.staleAfter {
			delete(t.remote, userID)
			changed = true
		}
	}
	return changed
}

// TypingNames display names currently typing, sorted
func (t *TypingCoordinator) TypingNames() []string {
	var out []string
	for _, entry := range t.remote {
		out = append(out, entry.name)
	}
	sort.Strings(out)
	return out
}

func (t *TypingCoordinator) signal(typing bool) {
	if t.broadcast == nil || t.scope.IsZero() {
		return
	}
	t.broadcast(domain.TypingSignal{
		UserID:       t.selfID,
		Name:         t.selfName,
		Typing:       typing,
		Conversation: t.scope,
	})
}
