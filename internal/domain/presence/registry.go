// Package presence owns the online/offline state of every connected user.
package presence

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/webitel/im-support-service/internal/domain/model"
)

const DefaultShards = 32

// Registry is the PresenceRegistry: exactly one upserted entry per online user.
//
// Entries are spread over independently locked shards, so readers and
// writers of different users never contend on a registry-wide lock while
// writes to the same user stay linearizable.
type Registry struct {
	shards []*shard
	epoch  atomic.Uint64
	now    func() time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[model.UserID]*model.PresenceEntry
}

type Option func(*Registry)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(shards int, opts ...Option) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	r := &Registry{
		shards: make([]*shard, shards),
		now:    time.Now,
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[model.UserID]*model.PresenceEntry)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) shardFor(id model.UserID) *shard {
	return r.shards[uint64(id)%uint64(len(r.shards))]
}

// MarkOnline upserts the entry. For a user who is already online only the
// last-seen timestamp moves; identity and epoch stay untouched.
// fresh reports whether a new connection epoch started.
func (r *Registry) MarkOnline(identity model.UserIdentity) (entry model.PresenceEntry, fresh bool) {
	s := r.shardFor(identity.ID)
	now := r.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[identity.ID]; ok && e.Online {
		e.LastSeenAt = now
		return *e, false
	}

	e := &model.PresenceEntry{
		Identity:   identity,
		Online:     true,
		LastSeenAt: now,
		Epoch:      r.epoch.Add(1),
	}
	s.entries[identity.ID] = e
	return *e, true
}

// MarkOffline ends the current connection epoch. Unknown users are a no-op:
// the connection was already reaped.
func (r *Registry) MarkOffline(id model.UserID) (model.PresenceEntry, bool) {
	s := r.shardFor(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return model.PresenceEntry{}, false
	}
	delete(s.entries, id)
	e.Online = false
	return *e, true
}

// Touch refreshes last-seen. Returns false for unknown users.
func (r *Registry) Touch(id model.UserID) bool {
	s := r.shardFor(id)
	now := r.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.LastSeenAt = now
	return true
}

func (r *Registry) Get(id model.UserID) (model.PresenceEntry, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return model.PresenceEntry{}, false
	}
	return *e, true
}

func (r *Registry) IsOnline(id model.UserID) bool {
	e, ok := r.Get(id)
	return ok && e.Online
}

// OnlineUsers lists online identities. A zero role returns every role.
func (r *Registry) OnlineUsers(role model.Role) []model.UserIdentity {
	var res []model.UserIdentity
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			if e.Online && (role == 0 || e.Identity.Role == role) {
				res = append(res, e.Identity)
			}
		}
		s.mu.RUnlock()
	}
	return res
}

// CountsByRole always carries every role, zero counts included.
func (r *Registry) CountsByRole() map[model.Role]int {
	counts := make(map[model.Role]int, len(model.Roles))
	for _, role := range model.Roles {
		counts[role] = 0
	}
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			if e.Online {
				counts[e.Identity.Role]++
			}
		}
		s.mu.RUnlock()
	}
	return counts
}

// Snapshot builds the aggregate pushed to dashboards.
func (r *Registry) Snapshot() *model.PresenceSnapshot {
	return &model.PresenceSnapshot{
		OnlineByRole: r.CountsByRole(),
		TakenAt:      r.now(),
	}
}

func (r *Registry) Stats() []model.ShardStats {
	res := make([]model.ShardStats, 0, len(r.shards))
	for i, s := range r.shards {
		s.mu.RLock()
		st := model.ShardStats{ShardID: i, UserCount: len(s.entries)}
		for _, e := range s.entries {
			if e.Online {
				st.OnlineCount++
			}
		}
		s.mu.RUnlock()
		res = append(res, st)
	}
	return res
}
