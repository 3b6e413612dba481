package app

import (
	"testing"
	"time"

	"chat_sync_service/internal/engine/domain"

	"github.com/stretchr/testify/assert"
)

func newTestTyping() (*TypingCoordinator, *[]domain.TypingSignal, *time.Time) {
	var sent []domain.TypingSignal
	now := time.UnixMilli(1_000_000)
	tc := NewTypingCoordinator("self", "Self", 3*time.Second, 6*time.Second, func(sig domain.TypingSignal) {
		sent = append(sent, sig)
	})
	tc.now = func() time.Time { return now }
	tc.Rebind(domain.NewChannelRef("general"))
	return tc, &sent, &now
}

// 測試連續敲鍵只廣播一次 typing:true
func TestTypingCoordinator_SingleBroadcastPerBurst(t *testing.T) {
	tc, sent, _ := newTestTyping()

	tc.Keystroke()
	tc.Keystroke()
	tc.Keystroke()

	assert.Len(t, *sent, 1)
	assert.True(t, (*sent)[0].Typing)
	assert.Equal(t, "self", (*sent)[0].UserID)
}

// 測試 idle timeout 之後 Sweep 自動補發 typing:false
func TestTypingCoordinator_IdleAutoStop(t *testing.T) {
	tc, sent, now := newTestTyping()

	tc.Keystroke()
	*now = now.Add(2 * time.Second)
	tc.Sweep()
	assert.Len(t, *sent, 1) // 還沒 idle

	*now = now.Add(time.Second + time.Millisecond)
	tc.Sweep()
	assert.Len(t, *sent, 2)
	assert.False(t, (*sent)[1].Typing)

	// 之後再敲，重新廣播
	tc.Keystroke()
	assert.Len(t, *sent, 3)
	assert.True(t, (*sent)[2].Typing)
}

// 測試送出訊息時 StopLocal 立刻補發 typing:false
func TestTypingCoordinator_StopOnSend(t *testing.T) {
	tc, sent, _ := newTestTyping()

	tc.Keystroke()
	tc.StopLocal()

	assert.Len(t, *sent, 2)
	assert.False(t, (*sent)[1].Typing)

	// 沒在 typing 時 StopLocal 不再發
	tc.StopLocal()
	assert.Len(t, *sent, 2)
}

// 測試 remote set 不含自己、不含別的 conversation
func TestTypingCoordinator_OnSignalFiltering(t *testing.T) {
	tc, _, _ := newTestTyping()

	// 自己的 echo
	assert.False(t, tc.OnSignal(domain.TypingSignal{
		UserID: "self", Name: "Self", Typing: true, Conversation: domain.NewChannelRef("general"),
	}))

	// 別的 conversation
	assert.False(t, tc.OnSignal(domain.TypingSignal{
		UserID: "u-1", Name: "Alice", Typing: true, Conversation: domain.NewChannelRef("random"),
	}))

	assert.True(t, tc.OnSignal(domain.TypingSignal{
		UserID: "u-1", Name: "Alice", Typing: true, Conversation: domain.NewChannelRef("general"),
	}))
	assert.Equal(t, []string{"Alice"}, tc.TypingNames())

	// stop 事件移除
	assert.True(t, tc.OnSignal(domain.TypingSignal{
		UserID: "u-1", Name: "Alice", Typing: false, Conversation: domain.NewChannelRef("general"),
	}))
	assert.Empty(t, tc.TypingNames())

	// 已經不在 set 裡的 stop 是 no-op
	assert.False(t, tc.OnSignal(domain.TypingSignal{
		UserID: "u-1", Name: "Alice", Typing: false, Conversation: domain.NewChannelRef("general"),
	}))
}

// 測試對方的 stop 事件丟失時，Sweep 靠 staleness 清掉
func TestTypingCoordinator_SweepEvictsStale(t *testing.T) {
	tc, _, now := newTestTyping()

	tc.OnSignal(domain.TypingSignal{
		UserID: "u-1", Name: "Alice", Typing: true, Conversation: domain.NewChannelRef("general"),
	})

	*now = now.Add(5 * time.Second)
	assert.False(t, tc.Sweep())
	assert.Equal(t, []string{"Alice"}, tc.TypingNames())

	*now = now.Add(time.Second + time.Millisecond)
	assert.True(t, tc.Sweep())
	assert.Empty(t, tc.TypingNames())
}

// 測試換 conversation：舊的先停、remote set 清空
func TestTypingCoordinator_Rebind(t *testing.T) {
	tc, sent, _ := newTestTyping()

	tc.Keystroke()
	tc.OnSignal(domain.TypingSignal{
		UserID: "u-1", Name: "Alice", Typing: true, Conversation: domain.NewChannelRef("general"),
	})

	tc.Rebind(domain.NewChannelRef("random"))

	// 停止訊號發在舊的 conversation 上
	last := (*sent)[len(*sent)-1]
	assert.False(t, last.Typing)
	assert.Equal(t, domain.NewChannelRef("general").Key(), last.Conversation.Key())
	assert.Empty(t, tc.TypingNames())
}
