package app

import (
	"context"
	"fmt"

	"chat_sync_service/internal/engine/domain"
	"chat_sync_service/internal/engine/repository"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"
)

// StreamState definition subscription state machine
type StreamState string

const (
	// StateUnsubscribed not open
	StateUnsubscribed StreamState = "unsubscribed"
	// StateSubscribing open in progress
	StateSubscribing StreamState = "subscribing"
	// StateActive receiving events
	StateActive StreamState = "active"
)

// StreamHandler receives decoded envelope events.
// scoped handler 另外拿到訂閱當下的 conversation ref，
// 事件處理端再跟「現在」的 ref 比對，避免 stale context。
type StreamHandler func(evt domain.StreamEvent)

// ScopedHandler conversation-scoped stream handler
type ScopedHandler func(ref domain.ConversationRef, evt domain.StreamEvent)

type globalSpec struct {
	name    string
	channel string
	handler StreamHandler
}

type scopedSpec struct {
	name       string
	channelFor func(ref domain.ConversationRef) string
	handler    ScopedHandler
}

// SubscriptionSupervisor owns every live subscription by name.
// conversation-scoped 的訂閱跟著 Bind 走：換 conversation 時先同步關舊的再開新的。
// global 的訂閱 Open 一次、Close 一次。
type SubscriptionSupervisor struct {
	stream  repository.EventStreamPort
	globals []globalSpec
	scoped  []scopedSpec

	open   map[string]repository.Subscription
	states map[string]StreamState
	bound  *domain.ConversationRef
}

// NewSubscriptionSupervisor create SubscriptionSupervisor
func NewSubscriptionSupervisor(stream repository.EventStreamPort) *SubscriptionSupervisor {
	return &SubscriptionSupervisor{
		stream: stream,
		open:   make(map[string]repository.Subscription),
		states: make(map[string]StreamState),
	}
}

// RegisterGlobal conversation-independent stream, opened once on Open
func (s *SubscriptionSupervisor) RegisterGlobal(name, channel string, h StreamHandler) {
	s.globals = append(s.globals, globalSpec{name: name, channel: channel, handler: h})
	s.states[name] = StateUnsubscribed
}

// RegisterScoped conversation-scoped stream, follows Bind
func (s *SubscriptionSupervisor) RegisterScoped(name string, channelFor func(domain.ConversationRef) string, h ScopedHandler) {
	s.scoped = append(s.scoped, scopedSpec{name: name, channelFor: channelFor, handler: h})
	s.states[name] = StateUnsubscribed
}

// Open subscribe all global streams
func (s *SubscriptionSupervisor) Open(ctx context.Context) error {
	for _, g := range s.globals {
		if s.states[g.name] == StateActive {
			continue
		}
		s.states[g.name] = StateSubscribing
		sub, err := s.stream.Subscribe(ctx, g.channel, g.handler)
		if err != nil {
			s.states[g.name] = StateUnsubscribed
			errMsg := fmt.Sprintf("global stream[%s] 訂閱失敗 : %v", g.name, err)
			return errprocess.Set(errMsg)
		}
		s.open[g.name] = sub
		s.states[g.name] = StateActive
	}
	return nil
}

// Bind switch the scoped streams to a conversation.
// 同一個 ref 重複 bind 是 no-op；不同 ref 一定先同步 teardown 舊訂閱。
func (s *SubscriptionSupervisor) Bind(ctx context.Context, ref domain.ConversationRef) error {
	if s.bound != nil && s.bound.Key() == ref.Key() {
		return nil
	}
	s.closeScoped()

	for _, sp := range s.scoped {
		s.states[sp.name] = StateSubscribing
		boundRef := ref
		handler := sp.handler
		sub, err := s.stream.Subscribe(ctx, sp.channelFor(ref), func(evt domain.StreamEvent) {
			handler(boundRef, evt)
		})
		if err != nil {
			s.states[sp.name] = StateUnsubscribed
			s.closeScoped()
			errMsg := fmt.Sprintf("scoped stream[%s] 訂閱失敗 : %v", sp.name, err)
			return errprocess.Set(errMsg)
		}
		s.open[sp.name] = sub
		s.states[sp.name] = StateActive
	}
	s.bound = &ref
	return nil
}

// Unbind close scoped streams only
func (s *SubscriptionSupervisor) Unbind() {
	s.closeScoped()
}

// Close teardown everything, used on unmount
func (s *SubscriptionSupervisor) Close() {
	s.closeScoped()
	for name, sub := range s.open {
		if err := sub.Close(); err != nil {
			logger.Log.Errorf(fmt.Sprintf("close stream %s:", name), err)
		}
		delete(s.open, name)
		s.states[name] = StateUnsubscribed
	}
}

// Resubscribe subscriptions do not survive a transport reconnect:
// 全部關掉重開，scoped 的照目前 bound 的 conversation 重建。
func (s *SubscriptionSupervisor) Resubscribe(ctx context.Context) error {
	bound := s.bound
	s.Close()
	if err := s.Open(ctx); err != nil {
		return err
	}
	if bound != nil {
		return s.Bind(ctx, *bound)
	}
	return nil
}

// State current state of a named stream
func (s *SubscriptionSupervisor) State(name string) StreamState {
	st, ok := s.states[name]
	if !ok {
		return StateUnsubscribed
	}
	return st
}

// Bound currently bound conversation, nil when none
func (s *SubscriptionSupervisor) Bound() *domain.ConversationRef {
	return s.bound
}

func (s *SubscriptionSupervisor) closeScoped() {
	for _, sp := range s.scoped {
		if sub, ok := s.open[sp.name]; ok {
			if err := sub.Close(); err != nil {
				logger.Log.Errorf(fmt.Sprintf("close stream %s:", sp.name), err)
			}
			delete(s.open, sp.name)
		}
		s.states[sp.name] = StateUnsubscribed
	}
	s.bound = nil
}
