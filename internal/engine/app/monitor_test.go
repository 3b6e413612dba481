package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeScheduler 收集排程，由測試手動觸發
type fakeScheduler struct {
	delays []time.Duration
	fns    []func()
}

func (f *fakeScheduler) schedule(d time.Duration, fn func()) CancelFunc {
	f.delays = append(f.delays, d)
	f.fns = append(f.fns, fn)
	return func() {}
}

func (f *fakeScheduler) fire() {
	fn := f.fns[len(f.fns)-1]
	fn()
}

func newTestMonitor(ping func(ctx context.Context) error) (*ConnectionMonitor, *fakeScheduler, *[]ConnState, *int) {
	var states []ConnState
	restores := 0
	m := NewConnectionMonitor(
		ping,
		func() { restores++ },
		func(state ConnState) { states = append(states, state) },
		time.Second,
		30*time.Second,
	)
	sched := &fakeScheduler{}
	m.SetScheduler(sched.schedule)
	return m, sched, &states, &restores
}

// 測試 failure 進入 backoff，重複 report 不重複排程
func TestConnectionMonitor_ReportFailure(t *testing.T) {
	m, sched, states, _ := newTestMonitor(func(ctx context.Context) error { return errors.New("down") })

	m.ReportFailure(errors.New("publish refused"))
	assert.Equal(t, ConnDisconnected, m.State())
	assert.Equal(t, []time.Duration{time.Second}, sched.delays)

	// 已經 disconnected，再 report 不該多排一次
	m.ReportFailure(errors.New("another"))
	assert.Len(t, sched.delays, 1)
	assert.Equal(t, []ConnState{ConnDisconnected}, *states)
}

// 測試失敗的 attempt 指數回退，封頂 30s
func TestConnectionMonitor_BackoffDoublesAndCaps(t *testing.T) {
	m, sched, _, _ := newTestMonitor(func(ctx context.Context) error { return errors.New("still down") })

	m.ReportFailure(errors.New("down"))
	for i := 0; i < 7; i++ {
		sched.fire()
	}

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}, sched.delays)
	assert.Equal(t, ConnDisconnected, m.State())
}

// 測試成功的 attempt 重置 backoff 並觸發 onRestore
func TestConnectionMonitor_AttemptSuccess(t *testing.T) {
	alive := false
	m, sched, states, restores := newTestMonitor(func(ctx context.Context) error {
		if alive {
			return nil
		}
		return errors.New("down")
	})

	m.ReportFailure(errors.New("down"))
	sched.fire() // 失敗，backoff 變 2s
	alive = true
	sched.fire() // 成功

	assert.Equal(t, ConnConnected, m.State())
	assert.Equal(t, 1, *restores)
	assert.Equal(t, ConnConnected, (*states)[len(*states)-1])

	// 下一輪失敗從 initial 重新開始
	m.ReportFailure(errors.New("down again"))
	assert.Equal(t, time.Second, sched.delays[len(sched.delays)-1])
}

// 測試 connected 狀態下 ReportHealthy / Attempt 都是 no-op
func TestConnectionMonitor_NoopWhenConnected(t *testing.T) {
	m, sched, states, restores := newTestMonitor(func(ctx context.Context) error { return nil })

	m.ReportHealthy()
	m.Attempt(context.Background())

	assert.Equal(t, ConnConnected, m.State())
	assert.Empty(t, sched.delays)
	assert.Empty(t, *states)
	assert.Zero(t, *restores)
}
