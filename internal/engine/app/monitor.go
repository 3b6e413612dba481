package app

import (
	"context"
	"time"

	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// ConnState definition transport health state
type ConnState string

const (
	// ConnConnected transport healthy
	ConnConnected ConnState = "connected"
	// ConnReconnecting retry in progress
	ConnReconnecting ConnState = "reconnecting"
	// ConnDisconnected transport down, backoff scheduled
	ConnDisconnected ConnState = "disconnected"
)

// CancelFunc cancel a scheduled attempt
type CancelFunc func()

// Scheduler 延遲執行，測試時可換成假的
type Scheduler func(d time.Duration, fn func()) CancelFunc

// ConnectionMonitor observes transport health and drives backoff reconnects.
// 非致命：資料不丟，重連成功後由 onRestore 重建所有訂閱。
type ConnectionMonitor struct {
	ping      func(ctx context.Context) error
	onRestore func()
	onState   func(state ConnState)
	schedule  Scheduler

	initial time.Duration
	max     time.Duration

	state   ConnState
	backoff time.Duration
	pending CancelFunc
}

// NewConnectionMonitor create ConnectionMonitor, starts in connected state
func NewConnectionMonitor(
	ping func(ctx context.Context) error,
	onRestore func(),
	onState func(state ConnState),
	initial, max time.Duration,
) *ConnectionMonitor {
	return &ConnectionMonitor{
		ping:      ping,
		onRestore: onRestore,
		onState:   onState,
		schedule: func(d time.Duration, fn func()) CancelFunc {
			timer := time.AfterFunc(d, fn)
			return func() { timer.Stop() }
		},
		initial: initial,
		max:     max,
		state:   ConnConnected,
		backoff: initial,
	}
}

// State current transport state
func (m *ConnectionMonitor) State() ConnState {
	return m.state
}

// ReportFailure a subscription or write hit a transport error
func (m *ConnectionMonitor) ReportFailure(err error) {
	if m.state != ConnConnected {
		return
	}
	logger.Log.Warn("transport failure, entering backoff reconnect", zap.Error(err))
	m.setState(ConnDisconnected)
	m.scheduleAttempt()
}

// ReportHealthy transport confirmed alive
func (m *ConnectionMonitor) ReportHealthy() {
	if m.state == ConnConnected {
		return
	}
	m.cancelPending()
	m.backoff = m.initial
	m.setState(ConnConnected)
	if m.onRestore != nil {
		m.onRestore()
	}
}

// Attempt one reconnect probe. engine loop 定時呼叫（由 schedule 排進來）。
func (m *ConnectionMonitor) Attempt(ctx context.Context) {
	if m.state == ConnConnected {
		return
	}
	m.setState(ConnReconnecting)
	if err := m.ping(ctx); err != nil {
		logger.Log.Warn("reconnect attempt failed", zap.Error(err), zap.Duration("backoff", m.backoff))
		// 指數回退，封頂
		m.backoff *= 2
		if m.backoff > m.max {
			m.backoff = m.max
		}
		m.setState(ConnDisconnected)
		m.scheduleAttempt()
		return
	}
	m.ReportHealthy()
}

// Stop cancel any scheduled attempt
func (m *ConnectionMonitor) Stop() {
	m.cancelPending()
}

// SetScheduler override the timer implementation
func (m *ConnectionMonitor) SetScheduler(s Scheduler) {
	m.schedule = s
}

func (m *ConnectionMonitor) scheduleAttempt() {
	m.cancelPending()
	m.pending = m.schedule(m.backoff, func() {
		m.Attempt(context.Background())
	})
}

func (m *ConnectionMonitor) cancelPending() {
	if m.pending != nil {
		m.pending()
		m.pending = nil
	}
}

func (m *ConnectionMonitor) setState(state ConnState) {
	if m.state == state {
		return
	}
	m.state = state
	if m.onState != nil {
		m.onState(state)
	}
}
