package app

import (
	"sort"
	"time"

	"chat_sync_service/internal/engine/domain"
)

// PresenceTracker merges two independent signals per user:
// ephemeral「現在連著」的 membership event 和持久化的 last_seen heartbeat。
// 兩個訊號都保留，不要簡化成單一來源（eventual consistency window 是刻意的）。
type PresenceTracker struct {
	selfID  string
	now     func() time.Time
	records map[string]*domain.PresenceRecord
}

// NewPresenceTracker create PresenceTracker
func NewPresenceTracker(selfID string) *PresenceTracker {
	return &PresenceTracker{
		selfID:  selfID,
		now:     time.Now,
		records: make(map[string]*domain.PresenceRecord),
	}
}

func (p *PresenceTracker) record(userID string) *domain.PresenceRecord {
	r, ok := p.records[userID]
	if !ok {
		r = &domain.PresenceRecord{UserID: userID}
		p.records[userID] = r
	}
	return r
}

// OnEphemeral membership event: user connected / disconnected the transport.
// 連上時順手把 lastSeen 推到 now，避免 heartbeat 間隙閃成 offline。
func (p *PresenceTracker) OnEphemeral(userID string, connected bool) {
	r := p.record(userID)
	r.LiveConnected = connected
	if connected {
		now := p.now().UnixMilli()
		r.LastSeenAt = now
		r.LiveRefreshedAt = now
	}
}

// OnHeartbeat persisted last_seen refresh for a user.
// 收到訊號也刷新 live 有效期，沉默的對端才會照 LiveWindow 衰減。
func (p *PresenceTracker) OnHeartbeat(userID string, at int64) {
	r := p.record(userID)
	if at > r.LastSeenAt {
		r.LastSeenAt = at
	}
	if r.LiveConnected {
		r.LiveRefreshedAt = p.now().UnixMilli()
	}
}

// Bootstrap seed last_seen values from the persisted store on load
func (p *PresenceTracker) Bootstrap(lastSeen map[string]int64) {
	for userID, at := range lastSeen {
		p.OnHeartbeat(userID, at)
	}
}

// IsOnline derived state: live connected OR last seen within the window
func (p *PresenceTracker) IsOnline(userID string) bool {
	r, ok := p.records[userID]
	if !ok {
		return false
	}
	return r.IsOnline(p.now())
}

// Record current merged record for one user
func (p *PresenceTracker) Record(userID string) (domain.PresenceRecord, bool) {
	r, ok := p.records[userID]
	if !ok {
		return domain.PresenceRecord{}, false
	}
	return *r, true
}

// OnlineUsers user ids currently derived online, sorted
func (p *PresenceTracker) OnlineUsers() []string {
	now := p.now()
	var out []string
	for userID, r := range p.records {
		if r.IsOnline(now) {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out
}
