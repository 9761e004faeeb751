package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/logger"
	"github.com/fjod/go_cart/cart-engine/internal/storage"
)

// RegistryConfig bounds the carts kept in memory. Zero values take the defaults.
type RegistryConfig struct {
	// LoadTimeout bounds one hydration. It runs detached from the request that triggered it.
	LoadTimeout time.Duration
	// IdleTTL drops carts nobody touched for this long; negative disables the sweep.
	IdleTTL time.Duration
	// MaxCarts caps the resident carts; the least recently used one goes first.
	MaxCarts int
}

const (
	defaultLoadTimeout = 5 * time.Second
	defaultIdleTTL     = 15 * time.Minute
	defaultMaxCarts    = 100_000
)

type entry struct {
	cart     *CartStore
	lastUsed atomic.Int64 // unix nanos
}

// Registry holds one CartStore per owner, hydrating each from its slot on first use.
// A cart whose load failed is never cached; the next Get tries storage again.
type Registry struct {
	store storage.Store
	log   *logger.Logger
	opts  []Option
	cfg   RegistryConfig
	now   func() time.Time

	// mu orders lookups against inserts and the idle sweep; the cache locks itself.
	mu    sync.RWMutex
	carts *lru.Cache
	sfg   singleflight.Group // one hydration per owner under concurrent first access
}

func NewRegistry(store storage.Store, log *logger.Logger, cfg RegistryConfig, opts ...Option) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.MaxCarts <= 0 {
		cfg.MaxCarts = defaultMaxCarts
	}
	carts, err := lru.New(cfg.MaxCarts)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &Registry{
		store: store,
		log:   log,
		opts:  opts,
		cfg:   cfg,
		now:   time.Now,
		carts: carts,
	}
}

// Get returns owner's cart, loading it from storage if it is not resident. Errors wrap
// ErrCartUnavailable, or ctx's error when the caller gave up waiting for the load.
func (r *Registry) Get(ctx context.Context, owner string) (*CartStore, error) {
	if c, ok := r.lookup(owner); ok {
		return c, nil
	}

	ch := r.sfg.DoChan(owner, func() (interface{}, error) {
		if c, ok := r.lookup(owner); ok {
			return c, nil
		}

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.LoadTimeout)
		defer cancel()
		c, err := LoadCartStore(loadCtx, r.store.Slot(owner), r.log.With("owner", owner), r.opts...)
		if err != nil {
			r.log.WithContext(ctx).Warn("cart load failed, will retry on next access", "owner", owner, "error", err)
			return nil, err
		}

		e := &entry{cart: c}
		e.lastUsed.Store(r.now().UnixNano())
		r.mu.Lock()
		r.carts.Add(owner, e)
		r.mu.Unlock()
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*CartStore), nil
	}
}

// Forget drops the in-memory cart so the next Get reloads it from storage. A cart whose last
// write failed is kept, since storage does not hold its state; Forget reports whether it dropped.
func (r *Registry) Forget(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.carts.Peek(owner)
	if !ok {
		return false
	}
	if v.(*entry).cart.Unsaved() {
		return false
	}
	r.carts.Remove(owner)
	return true
}

func (r *Registry) Len() int {
	return r.carts.Len()
}

func (r *Registry) lookup(owner string) (*CartStore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.carts.Get(owner)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	e.lastUsed.Store(r.now().UnixNano())
	return e.cart, true
}

// EvictIdle drops every saved cart untouched for IdleTTL and returns how many went.
func (r *Registry) EvictIdle() int {
	if r.cfg.IdleTTL < 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTTL).UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for _, k := range r.carts.Keys() {
		v, ok := r.carts.Peek(k)
		if !ok {
			continue
		}
		e := v.(*entry)
		if e.lastUsed.Load() < cutoff && !e.cart.Unsaved() {
			r.carts.Remove(k)
			evicted++
		}
	}
	return evicted
}

// RunEviction sweeps idle carts until ctx is done.
func (r *Registry) RunEviction(ctx context.Context) {
	if r.cfg.IdleTTL < 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 {
				r.log.Debug("evicted idle carts", "count", n, "resident", r.Len())
			}
		}
	}
}

// Clear empties owner's cart after a checkout completed elsewhere and drops it from memory,
// so the next access reads storage instead of a copy that may be stale. When the cart cannot
// be loaded the stored payload is discarded directly.
func (r *Registry) Clear(ctx context.Context, owner string) (domain.Notice, error) {
	c, err := r.Get(ctx, owner)
	if err != nil {
		if errDiscard := r.store.Slot(owner).Discard(context.WithoutCancel(ctx)); errDiscard != nil {
			return domain.Notice{}, fmt.Errorf("clear cart of %s: %w", owner, errors.Join(err, errDiscard))
		}
		r.drop(owner)
		return domain.Notice{}, nil
	}

	n := c.ClearCart(ctx)
	r.Forget(owner)
	return n, nil
}

func (r *Registry) drop(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts.Remove(owner)
}
