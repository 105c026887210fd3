// Package pairing keeps the partial matching of users currently in a session.
package pairing

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/model"
)

// Match is the PairingMatch. A user slot holds at most one pairing and is
// claimed with compare-and-set, so no registry-wide lock is involved.
type Match struct {
	// slots stores Map[model.UserID]*model.SessionPairing.
	slots sync.Map
	// sessions stores Map[uuid.UUID]*model.SessionPairing.
	sessions sync.Map
}

func NewMatch() *Match {
	return &Match{}
}

// TryPair claims both user slots atomically. If the second claim fails the
// first is rolled back and ErrAlreadyPaired is returned; an existing pairing
// is never overwritten.
func (m *Match) TryPair(a, b model.UserID) (*model.SessionPairing, error) {
	if a == b {
		return nil, model.ErrSelfPair
	}

	p := model.NewSessionPairing(a, b)

	if _, loaded := m.slots.LoadOrStore(a, p); loaded {
		return nil, fmt.Errorf("user %s: %w", a, model.ErrAlreadyPaired)
	}
	if _, loaded := m.slots.LoadOrStore(b, p); loaded {
		m.slots.CompareAndDelete(a, p)
		return nil, fmt.Errorf("user %s: %w", b, model.ErrAlreadyPaired)
	}

	m.sessions.Store(p.SessionID, p)
	return p, nil
}

// Unpair releases both sides. Unknown or already released sessions are a no-op.
func (m *Match) Unpair(sessionID uuid.UUID) (*model.SessionPairing, bool) {
	val, ok := m.sessions.LoadAndDelete(sessionID)
	if !ok {
		return nil, false
	}
	p := val.(*model.SessionPairing)

	// [CAS_RELEASE] a slot only goes if it still points at this pairing
	m.slots.CompareAndDelete(p.UserA, p)
	m.slots.CompareAndDelete(p.UserB, p)
	return p, true
}

// PeerOf returns the user paired with id.
func (m *Match) PeerOf(id model.UserID) (model.UserID, bool) {
	p, ok := m.PairingOf(id)
	if !ok {
		return 0, false
	}
	return p.Peer(id)
}

func (m *Match) PairingOf(id model.UserID) (*model.SessionPairing, bool) {
	val, ok := m.slots.Load(id)
	if !ok {
		return nil, false
	}
	return val.(*model.SessionPairing), true
}

func (m *Match) IsPaired(id model.UserID) bool {
	_, ok := m.slots.Load(id)
	return ok
}

func (m *Match) Session(sessionID uuid.UUID) (*model.SessionPairing, bool) {
	val, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	return val.(*model.SessionPairing), true
}

// Sessions lists the active pairings accepted by the filter, oldest first.
func (m *Match) Sessions(filter model.SessionFilter) []*model.SessionPairing {
	var res []*model.SessionPairing
	m.sessions.Range(func(_, val any) bool {
		if p := val.(*model.SessionPairing); filter.Match(p) {
			res = append(res, p)
		}
		return true
	})
	slices.SortFunc(res, func(x, y *model.SessionPairing) int {
		return x.StartedAt.Compare(y.StartedAt)
	})
	return res
}

func (m *Match) Len() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool { n++; return true })
	return n
}
