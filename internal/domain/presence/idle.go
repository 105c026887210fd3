package presence

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/webitel/im-support-service/internal/domain/model"
)

// IdleTracker is the expiring heartbeat cache. Entries live for one idle
// window after the last Track/Touch.
//
// Expiry is surfaced as explicit model.Expired values on Expired() instead
// of side effects inside the cache callback: the LRU invokes its eviction
// callback while holding its own lock, so the callback only records the key
// and a pump goroutine forwards it.
type IdleTracker struct {
	cache  *expirable.LRU[model.UserID, stamp]
	window time.Duration

	mu         sync.Mutex
	pending    []model.Expired
	forgetting map[model.UserID]int
	wake       chan struct{}
	out        chan model.Expired
	done       chan struct{}
	once       sync.Once
}

type stamp struct {
	epoch uint64
	at    time.Time
}

// NewIdleTracker starts the forwarding pump. capacity 0 means unbounded.
// A user pushed out by capacity expires at once: it is reported with its
// last stamp, so a live user re-arms on the next heartbeat while a silent
// one is evicted.
func NewIdleTracker(window time.Duration, capacity int) *IdleTracker {
	t := &IdleTracker{
		window:     window,
		wake:       make(chan struct{}, 1),
		out:        make(chan model.Expired),
		done:       make(chan struct{}),
		forgetting: make(map[model.UserID]int),
	}
	t.cache = expirable.NewLRU[model.UserID, stamp](capacity, t.onEvict, window)
	go t.pump()
	return t
}

func (t *IdleTracker) Window() time.Duration { return t.window }

// Expired delivers one value per user whose idle window elapsed.
func (t *IdleTracker) Expired() <-chan model.Expired { return t.out }

// Track starts (or restarts) the idle window for a connection epoch.
func (t *IdleTracker) Track(id model.UserID, epoch uint64) {
	t.cache.Add(id, stamp{epoch: epoch, at: time.Now()})
}

// Touch renews the window of a tracked user. Unknown users are ignored.
func (t *IdleTracker) Touch(id model.UserID) bool {
	s, ok := t.cache.Peek(id)
	if !ok {
		return false
	}
	s.at = time.Now()
	t.cache.Add(id, s)
	return true
}

// Forget drops the user without emitting an expiry.
func (t *IdleTracker) Forget(id model.UserID) {
	t.mu.Lock()
	t.forgetting[id]++
	t.mu.Unlock()

	t.cache.Remove(id)

	t.mu.Lock()
	if t.forgetting[id]--; t.forgetting[id] <= 0 {
		delete(t.forgetting, id)
	}
	t.mu.Unlock()
}

func (t *IdleTracker) Len() int { return t.cache.Len() }

func (t *IdleTracker) Stop() {
	t.once.Do(func() { close(t.done) })
}

// onEvict runs under the LRU lock: record and signal only.
func (t *IdleTracker) onEvict(id model.UserID, s stamp) {
	t.mu.Lock()
	// [FORGET] explicit removals are not expiries; capacity evictions are
	if t.forgetting[id] > 0 {
		t.mu.Unlock()
		return
	}
	t.pending = append(t.pending, model.Expired{UserID: id, Epoch: s.epoch, LastSeen: s.at})
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *IdleTracker) pump() {
	for {
		select {
		case <-t.done:
			return
		case <-t.wake:
		}

		t.mu.Lock()
		batch := t.pending
		t.pending = nil
		t.mu.Unlock()

		for _, ev := range batch {
			select {
			case t.out <- ev:
			case <-t.done:
				return
			}
		}
	}
}
