// Package keylock serializes compound operations per user without a global lock.
//
// Users hash onto a fixed set of stripes. Multi-key acquisitions always take
// stripes in ascending order, so two operations touching the same pair of
// users from opposite ends cannot deadlock.
package keylock

import (
	"slices"
	"sync"

	"github.com/webitel/im-support-service/internal/domain/model"
)

const DefaultStripes = 256

type Set struct {
	stripes []sync.Mutex
}

func New(stripes int) *Set {
	if stripes <= 0 {
		stripes = DefaultStripes
	}
	return &Set{stripes: make([]sync.Mutex, stripes)}
}

func (s *Set) index(id model.UserID) int {
	// [FIBONACCI_HASH] spreads sequential IDs over the stripes
	h := uint64(id) * 11400714819323198485
	return int(h % uint64(len(s.stripes)))
}

// Lock acquires every stripe covering ids and returns the release function.
func (s *Set) Lock(ids ...model.UserID) (unlock func()) {
	idx := make([]int, 0, len(ids))
	for _, id := range ids {
		idx = append(idx, s.index(id))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		s.stripes[i].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			s.stripes[idx[i]].Unlock()
		}
	}
}

// LockWithPeer locks id together with whatever peer it currently has.
// peerOf is re-evaluated under the lock until the observed peer is stable,
// which covers a pairing that changed between the lookup and the acquisition.
func (s *Set) LockWithPeer(id model.UserID, peerOf func(model.UserID) (model.UserID, bool)) (peer model.UserID, paired bool, unlock func()) {
	for {
		peer, paired = peerOf(id)
		if !paired {
			unlock = s.Lock(id)
		} else {
			unlock = s.Lock(id, peer)
		}

		now, ok := peerOf(id)
		if ok == paired && now == peer {
			return peer, paired, unlock
		}
		unlock()
	}
}
