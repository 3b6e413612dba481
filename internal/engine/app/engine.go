package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chat_sync_service/internal/engine/domain"
	"chat_sync_service/internal/engine/repository"
	"chat_sync_service/pkg"
	"chat_sync_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscription names owned by the supervisor.
const (
	subMessages  = "global-messages"
	subDirect    = "direct-messages"
	subReactions = "reactions"
	subPresence  = "presence"
	subRoom      = "room-messages"
	subTyping    = "room-typing"
)

// Config engine timing knobs
type Config struct {
	HeartbeatInterval time.Duration
	TypingIdleTimeout time.Duration
	TypingStaleAfter  time.Duration
	SweepInterval     time.Duration
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	BackfillLimit     int64
}

// DefaultConfig production timings
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 15 * time.Second,
		TypingIdleTimeout: 3 * time.Second,
		TypingStaleAfter:  6 * time.Second,
		SweepInterval:     2 * time.Second,
		ReconnectInitial:  time.Second,
		ReconnectMax:      30 * time.Second,
		BackfillLimit:     50,
	}
}

// Deps external collaborators of one engine session
type Deps struct {
	Stream      repository.EventStreamPort
	Messages    repository.MessageRepository
	Reactions   repository.ReactionRepository
	Watermarks  repository.WatermarkRepository
	Presence    repository.PresenceRepository
	Attachments repository.AttachmentRepository
	Notifier    repository.Notifier
}

// Engine one user session's realtime conversation synchronization engine.
//
// 所有元件狀態只在 run loop 這個 goroutine 裡變動；外部呼叫（websocket
// handler、redis 訂閱 goroutine、timer）一律 post closure 進 loop。
// 「現在開著哪個 conversation」放在 e.current 這個 cell，事件處理時才讀，
// 不在訂閱建立時抓死。
type Engine struct {
	cfg  Config
	deps Deps

	selfID   string
	selfName string
	push     func(resp domain.WSResponse)

	store      *ConversationStore
	tracker    *OptimisticMessageTracker
	presence   *PresenceTracker
	typing     *TypingCoordinator
	unread     *UnreadAccounting
	reactions  *ReactionAggregator
	supervisor *SubscriptionSupervisor
	monitor    *ConnectionMonitor

	current    domain.ConversationRef
	lastOnline map[string]bool

	ctx       context.Context
	cancel    context.CancelFunc
	cmds      chan func()
	heartbeat *time.Ticker
	sweep     *time.Ticker
	wg        sync.WaitGroup
	started   bool
	closeOnce sync.Once
}

// NewEngine create an engine session for one user
func NewEngine(cfg Config, deps Deps, selfID, selfName string, push func(resp domain.WSResponse)) *Engine {
	e := &Engine{
		cfg:        cfg,
		deps:       deps,
		selfID:     selfID,
		selfName:   selfName,
		push:       push,
		store:      NewConversationStore(),
		presence:   NewPresenceTracker(selfID),
		reactions:  NewReactionAggregator(selfID),
		supervisor: NewSubscriptionSupervisor(deps.Stream),
		lastOnline: make(map[string]bool),
		cmds:       make(chan func(), 256),
	}
	e.tracker = NewOptimisticMessageTracker(e.store)
	e.unread = NewUnreadAccounting(selfID, func() string { return e.current.Key() })
	e.typing = NewTypingCoordinator(selfID, selfName, cfg.TypingIdleTimeout, cfg.TypingStaleAfter, e.broadcastTyping)
	e.monitor = NewConnectionMonitor(
		deps.Stream.Ping,
		e.onTransportRestored,
		func(state ConnState) {
			e.push(domain.WSResponse{
				Action:  string(domain.NotifyConnection),
				Success: true,
				Payload: map[string]interface{}{"state": string(state)},
			})
		},
		cfg.ReconnectInitial,
		cfg.ReconnectMax,
	)
	return e
}

// Start open global subscriptions, run the loop, begin heartbeats
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	// monitor 的 timer 也要繞回 loop，狀態才不會被別的 goroutine 碰
	e.monitor.SetScheduler(func(d time.Duration, fn func()) CancelFunc {
		timer := time.AfterFunc(d, func() { e.post(fn) })
		return func() { timer.Stop() }
	})

	e.registerSubscriptions()
	if err := e.supervisor.Open(e.ctx); err != nil {
		return err
	}

	e.heartbeat = time.NewTicker(e.cfg.HeartbeatInterval)
	e.sweep = time.NewTicker(e.cfg.SweepInterval)

	e.wg.Add(1)
	go e.run()
	e.started = true

	// 初始 heartbeat + ephemeral join，別等第一個 tick
	e.publishPresence(time.Now().UnixMilli())
	go e.bootstrap()

	return nil
}

// Close teardown every subscription and timer. 不做會漏資源。
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if !e.started {
			if e.cancel != nil {
				e.cancel()
			}
			return
		}
		done := make(chan struct{})
		e.post(func() {
			e.typing.StopLocal()
			// 先廣播 leave 再關訂閱，不然其他 session 只能等 window 過期
			e.publishPresenceLeave()
			e.supervisor.Close()
			e.monitor.Stop()
			close(done)
		})
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Log.Warn("engine close timed out", zap.String("user_id", e.selfID))
		}
		e.heartbeat.Stop()
		e.sweep.Stop()
		e.cancel()
		e.wg.Wait()
	})
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.cmds:
			fn()
		case <-e.heartbeat.C:
			e.heartbeatTick()
		case <-e.sweep.C:
			e.sweepTick()
		case <-e.ctx.Done():
			return
		}
	}
}

// post hand a closure to the loop goroutine
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.ctx.Done():
	}
}

// postWait run a closure on the loop and wait for it, used by snapshot queries
func (e *Engine) postWait(fn func()) {
	done := make(chan struct{})
	e.post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-e.ctx.Done():
	}
}

// ---- subscriptions ----

func (e *Engine) registerSubscriptions() {
	// conversation-independent feeds：mount 開一次，teardown 關一次
	e.supervisor.RegisterGlobal(subMessages, repository.GlobalInsertChannel(), func(evt domain.StreamEvent) {
		e.post(func() { e.onBackgroundInsert(evt) })
	})
	e.supervisor.RegisterGlobal(subDirect, repository.DirectChannel(e.selfID), func(evt domain.StreamEvent) {
		e.post(func() { e.onBackgroundInsert(evt) })
	})
	e.supervisor.RegisterGlobal(subReactions, repository.ReactionChannel(), func(evt domain.StreamEvent) {
		e.post(func() { e.onReactionEvent(evt) })
	})
	e.supervisor.RegisterGlobal(subPresence, repository.PresenceChannel(), func(evt domain.StreamEvent) {
		e.post(func() { e.onPresenceEvent(evt) })
	})

	// conversation-scoped feeds：跟著 Bind 換
	e.supervisor.RegisterScoped(subRoom, repository.RoomChannel, func(ref domain.ConversationRef, evt domain.StreamEvent) {
		e.post(func() { e.onRoomEvent(ref, evt) })
	})
	e.supervisor.RegisterScoped(subTyping, repository.TypingChannel, func(ref domain.ConversationRef, evt domain.StreamEvent) {
		e.post(func() { e.onTypingEvent(ref, evt) })
	})
}

// bootstrap initial load: watermarks, bulk unread catch-up, peer last_seen.
// 跑在自己的 goroutine，結果 post 回 loop。
func (e *Engine) bootstrap() {
	marks, err := e.deps.Watermarks.Load(e.ctx, e.selfID)
	if err != nil {
		logger.Log.Errorf("load watermarks:", err)
		marks = map[string]time.Time{}
	}

	keys, err := e.deps.Messages.ListConversations(e.ctx, e.selfID)
	if err != nil {
		logger.Log.Errorf("list conversations:", err)
	}

	counts := make(map[string]int, len(keys))
	var peers []string
	for _, key := range keys {
		ref := domain.ParseConversationKey(key)
		if ref.IsZero() {
			continue
		}
		since := int64(0)
		if at, ok := marks[key]; ok {
			since = at.UnixMilli()
		}
		// bulk catch-up query，不重播整個事件史
		n, err := e.deps.Messages.CountSince(e.ctx, ref, e.selfID, since)
		if err != nil {
			logger.Log.Errorf(fmt.Sprintf("count unread %s:", key), err)
			continue
		}
		counts[key] = n
		if ref.Kind == domain.KindDirect {
			if p := ref.Peer(e.selfID); !pkg.Contains(peers, p) {
				peers = append(peers, p)
			}
		}
	}

	lastSeen := map[string]int64{}
	if len(peers) > 0 {
		if ls, err := e.deps.Presence.LastSeen(peers); err != nil {
			logger.Log.Errorf("load last_seen:", err)
		} else {
			lastSeen = ls
		}
	}

	e.post(func() {
		e.unread.LoadWatermarks(marks)
		for key, n := range counts {
			e.unread.Bootstrap(key, n)
		}
		e.presence.Bootstrap(lastSeen)
		e.pushUnread()
	})
}

// ---- public operations (callable from any goroutine) ----

// OpenConversation rebind the scoped streams and mark the conversation read
func (e *Engine) OpenConversation(ref domain.ConversationRef) {
	e.post(func() { e.openConversation(ref) })
}

// Send stage an optimistic message and issue the write
func (e *Engine) Send(content, replyToID string) {
	e.post(func() { e.sendMessage(content, replyToID, nil) })
}

// SendWithAttachment upload first; upload 失敗整個 send 中止
func (e *Engine) SendWithAttachment(content string, att repository.AttachmentUpload) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		desc, err := e.deps.Attachments.Upload(e.ctx, att.Name, att.MimeType, att.Size, att.Body)
		if err != nil {
			logger.Log.Errorf("attachment upload:", err)
			e.push(domain.WSResponse{
				Action: string(domain.NotifyMessageFailed),
				Error:  "attachment upload failed",
			})
			return
		}
		e.post(func() { e.sendMessage(content, "", desc) })
	}()
}

// Edit update a confirmed message's content
func (e *Engine) Edit(messageID, content string) {
	e.post(func() { e.editMessage(messageID, content) })
}

// Keystroke local typing activity
func (e *Engine) Keystroke() {
	e.post(func() { e.typing.Keystroke() })
}

// ToggleReaction add or remove own reaction on a message
func (e *Engine) ToggleReaction(messageID, emoji string) {
	e.post(func() { e.toggleReaction(messageID, emoji) })
}

// MarkRead reset the open conversation's unread state
func (e *Engine) MarkRead() {
	e.post(func() {
		if e.current.IsZero() {
			return
		}
		e.markRead(e.current)
	})
}

// ---- snapshot queries ----

// Messages ordered log of the open conversation
func (e *Engine) Messages() []domain.Message {
	var out []domain.Message
	e.postWait(func() { out = e.store.Messages(e.current.Key()) })
	return out
}

// FilterMessages substring filter over the open conversation
func (e *Engine) FilterMessages(keyword string) []domain.Message {
	var out []domain.Message
	e.postWait(func() { out = e.store.Filter(e.current.Key(), keyword) })
	return out
}

// UnreadCounts nonzero unread counters
func (e *Engine) UnreadCounts() map[string]int {
	var out map[string]int
	e.postWait(func() { out = e.unread.Counts() })
	return out
}

// TypingNames who is typing in the open conversation
func (e *Engine) TypingNames() []string {
	var out []string
	e.postWait(func() { out = e.typing.TypingNames() })
	return out
}

// OnlineUsers derived online set
func (e *Engine) OnlineUsers() []string {
	var out []string
	e.postWait(func() { out = e.presence.OnlineUsers() })
	return out
}

// ReactionGroups per-emoji grouping of one message
func (e *Engine) ReactionGroups(messageID string) []domain.ReactionGroup {
	var out []domain.ReactionGroup
	e.postWait(func() { out = e.reactions.Groups(messageID) })
	return out
}

// ConnectionState transport health
func (e *Engine) ConnectionState() ConnState {
	var out ConnState
	e.postWait(func() { out = e.monitor.State() })
	return out
}

// ---- loop-side operations ----

func (e *Engine) openConversation(ref domain.ConversationRef) {
	if e.current.Key() == ref.Key() {
		return
	}
	if err := e.supervisor.Bind(e.ctx, ref); err != nil {
		logger.Log.Errorf("bind conversation:", err)
		e.monitor.ReportFailure(err)
		return
	}
	e.current = ref
	e.typing.Rebind(ref)
	e.markRead(ref)
	e.backfill(ref)
}

func (e *Engine) markRead(ref domain.ConversationRef) {
	at := e.unread.MarkRead(ref)
	key := ref.Key()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.deps.Watermarks.Set(e.ctx, e.selfID, key, at); err != nil {
			logger.Log.Errorf("persist watermark:", err)
		}
	}()
	e.pushUnread()
}

// backfill page in the recent history, then merge under any live inserts
// that raced in while the query ran.
func (e *Engine) backfill(ref domain.ConversationRef) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		msgs, err := e.deps.Messages.FindRecent(e.ctx, ref, e.cfg.BackfillLimit)
		if err != nil {
			logger.Log.Errorf("backfill:", err)
			return
		}
		ids := make([]string, 0, len(msgs))
		for _, m := range msgs {
			ids = append(ids, m.ID)
		}
		var reactions []domain.Reaction
		if len(ids) > 0 {
			if rs, err := e.deps.Reactions.FindByMessages(e.ctx, ids); err != nil {
				logger.Log.Errorf("backfill reactions:", err)
			} else {
				reactions = rs
			}
		}
		e.post(func() {
			// user 可能已經又切走了
			if e.current.Key() != ref.Key() {
				return
			}
			key := ref.Key()
			seen := make(map[string]bool, len(msgs))
			for _, m := range msgs {
				seen[m.ID] = true
			}
			merged := msgs
			for _, m := range e.store.Messages(key) {
				if !seen[m.ID] {
					merged = append(merged, m)
				}
			}
			e.store.SetMessages(key, merged)
			e.reactions.Bootstrap(reactions)
			e.push(domain.WSResponse{
				Action:  string(domain.OpenConversation),
				Success: true,
				Payload: map[string]interface{}{
					"conversation_key": key,
					"messages":         merged,
				},
			})
		})
	}()
}

func (e *Engine) sendMessage(content, replyToID string, att *domain.Attachment) {
	if e.current.IsZero() {
		e.push(domain.WSResponse{
			Action: string(domain.NotifyMessageFailed),
			Error:  "no conversation open",
		})
		return
	}
	ref := e.current
	pending := e.tracker.Stage(ref, e.selfID, content, replyToID, att)
	e.typing.StopLocal()
	e.pushMessage(pending)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.performInsert(ref, pending)
	}()
}

// performInsert the write suspension point.
// 成功時不直接碰 store — server echo 從 insert event 回來走 reconcile。
func (e *Engine) performInsert(ref domain.ConversationRef, pending domain.Message) {
	msg := pending
	msg.SendState = domain.SendConfirmed
	id, err := e.deps.Messages.InsertMessage(e.ctx, msg)
	if err != nil {
		// WriteRejected：optimistic entry 回滾，不自動重試
		e.post(func() {
			if failed, ok := e.tracker.Fail(ref, pending.ID); ok {
				e.push(domain.WSResponse{
					Action:  string(domain.NotifyMessageFailed),
					Payload: map[string]interface{}{"message": failed},
					Error:   "message send failed",
				})
			}
		})
		return
	}
	msg.ID = id

	evt, err := domain.NewStreamEvent(domain.OpInsert, resourceFor(ref), msg)
	if err != nil {
		logger.Log.Errorf("encode insert event:", err)
		return
	}
	if err := e.deps.Stream.Publish(e.ctx, repository.RoomChannel(ref), evt); err != nil {
		e.post(func() { e.monitor.ReportFailure(err) })
		return
	}
	// 背景 feed：channel 走 global insert feed，direct 走對方的 per-user feed
	if ref.Kind == domain.KindChannel {
		_ = e.deps.Stream.Publish(e.ctx, repository.GlobalInsertChannel(), evt)
	} else {
		_ = e.deps.Stream.Publish(e.ctx, repository.DirectChannel(ref.Peer(e.selfID)), evt)
	}
}

func (e *Engine) editMessage(messageID, content string) {
	if e.current.IsZero() {
		return
	}
	ref := e.current
	key := ref.Key()
	msg, ok := e.store.Get(key, messageID)
	if !ok || msg.SenderID != e.selfID || msg.IsPending() {
		e.push(domain.WSResponse{
			Action: string(domain.NotifyMessageFailed),
			Error:  "message not editable",
		})
		return
	}
	editedAt := time.Now().UnixMilli()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.deps.Messages.UpdateMessage(e.ctx, messageID, content, editedAt); err != nil {
			e.push(domain.WSResponse{
				Action: string(domain.NotifyMessageFailed),
				Error:  "message edit failed",
			})
			return
		}
		msg.Content = content
		msg.EditedAt = editedAt
		evt, err := domain.NewStreamEvent(domain.OpUpdate, resourceFor(ref), msg)
		if err != nil {
			return
		}
		_ = e.deps.Stream.Publish(e.ctx, repository.RoomChannel(ref), evt)
	}()
}

func (e *Engine) toggleReaction(messageID, emoji string) {
	if e.current.IsZero() {
		return
	}
	kind := e.current.Kind
	if e.reactions.Has(messageID, e.selfID, emoji) {
		// 已存在 → remove
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.deps.Reactions.DeleteReaction(e.ctx, messageID, e.selfID, emoji); err != nil {
				logger.Log.Errorf("delete reaction:", err)
				return
			}
			r := domain.Reaction{MessageID: messageID, Kind: kind, UserID: e.selfID, Emoji: emoji}
			if evt, err := domain.NewStreamEvent(domain.OpDelete, domain.ResReactions, r); err == nil {
				_ = e.deps.Stream.Publish(e.ctx, repository.ReactionChannel(), evt)
			}
		}()
		return
	}
	r := domain.Reaction{
		ID:        uuid.New().String(),
		MessageID: messageID,
		Kind:      kind,
		UserID:    e.selfID,
		Emoji:     emoji,
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.deps.Reactions.InsertReaction(e.ctx, r); err != nil {
			logger.Log.Errorf("insert reaction:", err)
			return
		}
		if evt, err := domain.NewStreamEvent(domain.OpInsert, domain.ResReactions, r); err == nil {
			_ = e.deps.Stream.Publish(e.ctx, repository.ReactionChannel(), evt)
		}
	}()
}

// ---- event handlers (loop side) ----

// onRoomEvent message feed of the bound conversation.
// ref 是訂閱當下綁的 conversation；處理時跟 cell 比對，換過就丟掉。
func (e *Engine) onRoomEvent(ref domain.ConversationRef, evt domain.StreamEvent) {
	if e.current.Key() != ref.Key() {
		return
	}
	var msg domain.Message
	if err := json.Unmarshal(evt.Payload, &msg); err != nil {
		logger.Log.Errorf("decode room event:", err)
		return
	}
	key := ref.Key()
	switch evt.Op {
	case domain.OpInsert:
		outcome := e.tracker.Reconcile(msg)
		if !outcome.Changed() {
			return
		}
		e.pushMessage(msg)
		if msg.SenderID != e.selfID {
			// 正在看、不是自己發的 → 只出聲，不出通知
			e.deps.Notifier.PlayIncomingSound()
		}
	case domain.OpUpdate:
		if e.store.ApplyEdit(key, msg.ID, msg.Content, msg.EditedAt) {
			e.pushMessage(msg)
		}
	case domain.OpDelete:
		if e.store.Remove(key, msg.ID) {
			e.push(domain.WSResponse{
				Action:  string(domain.NotifyMessage),
				Success: true,
				Payload: map[string]interface{}{"deleted": msg.ID, "conversation_key": key},
			})
		}
	}
}

// onBackgroundInsert inserts for conversations the user is not viewing:
// unread accounting + desktop notification.
func (e *Engine) onBackgroundInsert(evt domain.StreamEvent) {
	if evt.Op != domain.OpInsert {
		return
	}
	var msg domain.Message
	if err := json.Unmarshal(evt.Payload, &msg); err != nil {
		logger.Log.Errorf("decode background insert:", err)
		return
	}
	if !e.unread.OnMessageInserted(msg) {
		return
	}
	e.pushUnread()
	e.deps.Notifier.Notify(msg.Conversation, preview(msg.Content))
}

func (e *Engine) onReactionEvent(evt domain.StreamEvent) {
	var r domain.Reaction
	if err := json.Unmarshal(evt.Payload, &r); err != nil {
		logger.Log.Errorf("decode reaction event:", err)
		return
	}
	if !e.reactions.Apply(evt.Op, r) {
		return
	}
	e.push(domain.WSResponse{
		Action:  string(domain.NotifyReaction),
		Success: true,
		Payload: map[string]interface{}{
			"message_id": r.MessageID,
			"groups":     e.reactions.Groups(r.MessageID),
		},
	})
}

func (e *Engine) onPresenceEvent(evt domain.StreamEvent) {
	var p domain.PresencePayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		logger.Log.Errorf("decode presence event:", err)
		return
	}
	if p.UserID == e.selfID {
		return
	}
	before := e.presence.IsOnline(p.UserID)
	if p.LastSeenAt > 0 {
		e.presence.OnHeartbeat(p.UserID, p.LastSeenAt)
	}
	switch evt.Op {
	case domain.OpInsert, domain.OpUpdate:
		e.presence.OnEphemeral(p.UserID, p.Connected)
	case domain.OpDelete:
		e.presence.OnEphemeral(p.UserID, false)
	}
	after := e.presence.IsOnline(p.UserID)
	e.lastOnline[p.UserID] = after
	if before != after {
		e.pushPresence(p.UserID, after)
	}
}

func (e *Engine) onTypingEvent(ref domain.ConversationRef, evt domain.StreamEvent) {
	if e.current.Key() != ref.Key() {
		return
	}
	var sig domain.TypingSignal
	if err := json.Unmarshal(evt.Payload, &sig); err != nil {
		logger.Log.Errorf("decode typing event:", err)
		return
	}
	if e.typing.OnSignal(sig) {
		e.pushTyping()
	}
}

// ---- timers (loop side) ----

func (e *Engine) heartbeatTick() {
	now := time.Now().UnixMilli()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.deps.Presence.Touch(e.selfID, now); err != nil {
			logger.Log.Errorf("heartbeat persist:", err)
		}
	}()
	e.publishPresence(now)
}

func (e *Engine) sweepTick() {
	if e.typing.Sweep() {
		e.pushTyping()
	}
	// heartbeat 過期造成的 offline 沒有對應事件，靠 sweep 對帳
	for userID, was := range e.lastOnline {
		is := e.presence.IsOnline(userID)
		if is != was {
			e.lastOnline[userID] = is
			e.pushPresence(userID, is)
		}
	}
}

// ---- transport ----

func (e *Engine) onTransportRestored() {
	if err := e.supervisor.Resubscribe(e.ctx); err != nil {
		logger.Log.Errorf("resubscribe after reconnect:", err)
		e.monitor.ReportFailure(err)
		return
	}
	// bind 中途失敗會把 scoped 清掉但 current 還留著，這裡補回來
	if !e.current.IsZero() && e.supervisor.Bound() == nil {
		if err := e.supervisor.Bind(e.ctx, e.current); err != nil {
			logger.Log.Errorf("rebind after reconnect:", err)
			e.monitor.ReportFailure(err)
			return
		}
	}
	e.publishPresence(time.Now().UnixMilli())
}

func (e *Engine) broadcastTyping(sig domain.TypingSignal) {
	evt, err := domain.NewStreamEvent(domain.OpUpdate, domain.ResTyping, sig)
	if err != nil {
		return
	}
	channel := repository.TypingChannel(sig.Conversation)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.deps.Stream.Publish(e.ctx, channel, evt); err != nil {
			e.post(func() { e.monitor.ReportFailure(err) })
		}
	}()
}

// publishPresenceLeave announce the disconnect on the presence feed.
// loop 收尾時同步送，之後 ctx 就 cancel 了。
func (e *Engine) publishPresenceLeave() {
	payload := domain.PresencePayload{UserID: e.selfID, Connected: false, LastSeenAt: time.Now().UnixMilli()}
	evt, err := domain.NewStreamEvent(domain.OpDelete, domain.ResPresence, payload)
	if err != nil {
		return
	}
	if err := e.deps.Stream.Publish(e.ctx, repository.PresenceChannel(), evt); err != nil {
		logger.Log.Errorf("publish presence leave:", err)
	}
}

func (e *Engine) publishPresence(lastSeenAt int64) {
	payload := domain.PresencePayload{UserID: e.selfID, Connected: true, LastSeenAt: lastSeenAt}
	evt, err := domain.NewStreamEvent(domain.OpUpdate, domain.ResPresence, payload)
	if err != nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.deps.Stream.Publish(e.ctx, repository.PresenceChannel(), evt); err != nil {
			e.post(func() { e.monitor.ReportFailure(err) })
		}
	}()
}

// ---- pushes ----

func (e *Engine) pushMessage(msg domain.Message) {
	e.push(domain.WSResponse{
		Action:  string(domain.NotifyMessage),
		Success: true,
		Payload: map[string]interface{}{
			"message":          msg,
			"conversation_key": msg.Conversation.Key(),
		},
	})
}

func (e *Engine) pushUnread() {
	e.push(domain.WSResponse{
		Action:  string(domain.NotifyUnread),
		Success: true,
		Payload: map[string]interface{}{"counts": e.unread.Counts()},
	})
}

func (e *Engine) pushTyping() {
	e.push(domain.WSResponse{
		Action:  string(domain.NotifyTyping),
		Success: true,
		Payload: map[string]interface{}{"names": e.typing.TypingNames()},
	})
}

func (e *Engine) pushPresence(userID string, online bool) {
	e.push(domain.WSResponse{
		Action:  string(domain.NotifyPresence),
		Success: true,
		Payload: map[string]interface{}{"user_id": userID, "online": online},
	})
}

func resourceFor(ref domain.ConversationRef) domain.Resource {
	if ref.Kind == domain.KindDirect {
		return domain.ResDirectMessages
	}
	return domain.ResChannelMessages
}

func preview(content string) string {
	const max = 80
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "…"
}
