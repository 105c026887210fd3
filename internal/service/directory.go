package service

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/webitel/im-support-service/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

// Directory resolves display identities for user IDs.
type Directory interface {
	// Remember records the identity a user connected with.
	Remember(identity model.UserIdentity)
	// Resolve returns the best known identity. On a miss it returns a bare
	// identity carrying only the ID together with the error.
	Resolve(ctx context.Context, id model.UserID) (model.UserIdentity, error)
	// ResolvePair performs concurrent resolution of both sides of a session.
	ResolvePair(ctx context.Context, a, b model.UserID) (model.UserIdentity, model.UserIdentity, error)
}

// IdentitySource is the live fallback behind the cache (the presence registry).
type IdentitySource interface {
	Get(id model.UserID) (model.PresenceEntry, bool)
}

type CachedDirectory struct {
	source IdentitySource
	cache  *lru.Cache[model.UserID, model.UserIdentity]
}

// NewCachedDirectory provides a thread-safe resolver with an internal LRU cache.
func NewCachedDirectory(source IdentitySource, size int) (*CachedDirectory, error) {
	if size <= 0 {
		size = 10_000
	}
	// [MEMORY_MANAGEMENT] bounded cache of "hot" identities; offline users
	// stay resolvable until pushed out
	cache, err := lru.New[model.UserID, model.UserIdentity](size)
	if err != nil {
		return nil, fmt.Errorf("directory cache: %w", err)
	}
	return &CachedDirectory{source: source, cache: cache}, nil
}

func (d *CachedDirectory) Remember(identity model.UserIdentity) {
	if identity.ID == 0 {
		return
	}
	d.cache.Add(identity.ID, identity)
}

// Resolve follows cache-aside: LRU first, presence registry second.
func (d *CachedDirectory) Resolve(ctx context.Context, id model.UserID) (model.UserIdentity, error) {
	bare := model.UserIdentity{ID: id}
	if err := ctx.Err(); err != nil {
		return bare, err
	}

	// [HOT_PATH]
	if cached, ok := d.cache.Get(id); ok {
		return cached, nil
	}

	if entry, ok := d.source.Get(id); ok {
		d.cache.Add(id, entry.Identity)
		return entry.Identity, nil
	}
	return bare, fmt.Errorf("resolve %s: %w", id, model.ErrUnknownUser)
}

// ResolvePair resolves both sides in parallel.
// [CONCURRENCY_OPTIMIZATION] errgroup makes both lookups complete or fail together.
func (d *CachedDirectory) ResolvePair(ctx context.Context, a, b model.UserID) (model.UserIdentity, model.UserIdentity, error) {
	g, gctx := errgroup.WithContext(ctx)

	var resA, resB model.UserIdentity
	g.Go(func() error {
		var err error
		resA, err = d.Resolve(gctx, a)
		return err
	})
	g.Go(func() error {
		var err error
		resB, err = d.Resolve(gctx, b)
		return err
	})

	if err := g.Wait(); err != nil {
		// [RESILIENCE] keep whatever was resolved, never lose the IDs
		if resA.ID == 0 {
			resA.ID = a
		}
		if resB.ID == 0 {
			resB.ID = b
		}
		return resA, resB, fmt.Errorf("pair resolution failed: %w", err)
	}
	return resA, resB, nil
}
