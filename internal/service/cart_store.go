package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/logger"
	"github.com/fjod/go_cart/cart-engine/internal/storage"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCartUnavailable means the stored cart could not be read. It is never a missing or
	// corrupt payload; those load as an empty cart.
	ErrCartUnavailable = errors.New("cart storage unavailable")
)

// Notifier receives the user-facing outcome of each mutation.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notice)
}

type NotifierFunc func(ctx context.Context, n domain.Notice)

func (f NotifierFunc) Notify(ctx context.Context, n domain.Notice) { f(ctx, n) }

type Option func(*CartStore)

func WithPolicy(p domain.DeliveryPolicy) Option {
	return func(s *CartStore) { s.policy = p }
}

func WithNotifier(n Notifier) Option {
	return func(s *CartStore) { s.notifier = n }
}

type observer struct {
	id int
	fn func(domain.Snapshot)
}

// CartStore owns one cart. Mutations are applied one at a time in arrival order, written
// through to the slot, and pushed to observers before they return.
type CartStore struct {
	slot     storage.Slot
	log      *logger.Logger
	policy   domain.DeliveryPolicy
	notifier Notifier

	opMu  sync.Mutex   // serializes mutations
	mu    sync.RWMutex // guards items
	items []domain.LineItem

	obsMu     sync.Mutex
	observers []observer
	nextObsID int

	unsaved atomic.Bool // last write failed; storage lags memory
}

// NewCartStore hydrates the cart from slot. A missing payload yields an empty cart; an
// unreadable one is discarded so it does not come back on the next start. When storage
// cannot be read at all the cart starts empty and the stored payload is left alone.
func NewCartStore(ctx context.Context, slot storage.Slot, log *logger.Logger, opts ...Option) *CartStore {
	s, err := LoadCartStore(ctx, slot, log, opts...)
	if err != nil {
		s.log.WithContext(ctx).Error("cart load failed, starting empty", "error", err)
	}
	return s
}

// LoadCartStore is NewCartStore for long-lived owners: a failed read is returned wrapped in
// ErrCartUnavailable, so the caller can retry instead of writing an empty cart over the stored one.
// The returned store is usable either way.
func LoadCartStore(ctx context.Context, slot storage.Slot, log *logger.Logger, opts ...Option) (*CartStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &CartStore{
		slot:   slot,
		log:    log,
		policy: domain.DefaultDeliveryPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	items, err := s.hydrate(ctx)
	s.items = items
	return s, err
}

func (s *CartStore) hydrate(ctx context.Context) ([]domain.LineItem, error) {
	data, err := s.slot.Load(ctx)
	if errors.Is(err, storage.ErrSlotEmpty) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCartUnavailable, err)
	}

	items, err := DecodeItems(data)
	if err != nil {
		s.log.WithContext(ctx).Warn("discarding stored cart", "error", err)
		if errDiscard := s.slot.Discard(ctx); errDiscard != nil {
			s.log.WithContext(ctx).Error("cart discard failed", "error", errDiscard)
		}
		return nil, nil
	}
	return items, nil
}

// AddToCart appends product or merges quantity into its existing line, capped at MaxQuantity.
func (s *CartStore) AddToCart(ctx context.Context, product domain.Product, quantity int) domain.Notice {
	return s.mutate(ctx, func() (bool, domain.Notice) {
		if quantity < domain.MinQuantity {
			return false, domain.InvalidQuantityNotice(product.ID)
		}
		quantity = domain.ClampQuantity(quantity)

		i := s.indexLocked(product.ID)
		if i < 0 {
			s.items = append(s.items, domain.LineItem{Product: product, Quantity: quantity})
			return true, domain.AddedNotice(product, quantity)
		}

		current := s.items[i].Quantity
		next := domain.ClampQuantity(current + quantity)
		if next == current {
			return false, domain.CapReachedNotice(s.items[i].Product)
		}
		s.items[i].Quantity = next
		return true, domain.QuantityUpdatedNotice(product, next)
	})
}

// UpdateQuantity sets the line's quantity. Non-positive removes the line, over the cap is rejected.
func (s *CartStore) UpdateQuantity(ctx context.Context, productID string, quantity int) domain.Notice {
	if quantity < domain.MinQuantity {
		return s.RemoveFromCart(ctx, productID)
	}
	return s.mutate(ctx, func() (bool, domain.Notice) {
		if quantity > domain.MaxQuantity {
			return false, domain.OverCapNotice(productID)
		}
		i := s.indexLocked(productID)
		if i < 0 || s.items[i].Quantity == quantity {
			return false, domain.Notice{}
		}
		s.items[i].Quantity = quantity
		return true, domain.Notice{}
	})
}

func (s *CartStore) RemoveFromCart(ctx context.Context, productID string) domain.Notice {
	return s.mutate(ctx, func() (bool, domain.Notice) {
		i := s.indexLocked(productID)
		if i < 0 {
			return false, domain.Notice{}
		}
		removed := s.items[i].Product
		s.items = slices.Delete(s.items, i, i+1)
		return true, domain.RemovedNotice(removed)
	})
}

// ClearCart empties the cart. Clearing an empty cart is silent.
func (s *CartStore) ClearCart(ctx context.Context) domain.Notice {
	return s.mutate(ctx, func() (bool, domain.Notice) {
		if len(s.items) == 0 {
			return false, domain.Notice{}
		}
		s.items = nil
		return true, domain.ClearedNotice()
	})
}

// Checkout returns the final cart and clears it in one step, so nothing added
// concurrently can slip between reading the totals and clearing.
func (s *CartStore) Checkout(ctx context.Context) (domain.Snapshot, error) {
	var final domain.Snapshot
	var err error
	s.mutate(ctx, func() (bool, domain.Notice) {
		if len(s.items) == 0 {
			err = ErrEmptyCart
			return false, domain.Notice{}
		}
		final = s.snapshotLocked()
		s.items = nil
		return true, domain.ClearedNotice()
	})
	return final, err
}

// mutate runs fn with the cart locked. fn edits s.items in place and reports whether it did.
func (s *CartStore) mutate(ctx context.Context, fn func() (bool, domain.Notice)) domain.Notice {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	changed, notice := fn()
	var snap domain.Snapshot
	if changed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if changed {
		s.persist(ctx, snap.Items)
		s.publish(snap)
	}
	if !notice.IsZero() && s.notifier != nil {
		s.notifier.Notify(ctx, notice)
	}
	return notice
}

// persist writes the full cart. The in-memory cart stays authoritative when the write fails;
// the next change writes a complete snapshot again.
func (s *CartStore) persist(ctx context.Context, items []domain.LineItem) {
	ctx = context.WithoutCancel(ctx)
	data, err := EncodeItems(items)
	if err != nil {
		s.unsaved.Store(true)
		s.log.WithContext(ctx).Error("cart encode failed", "error", err)
		return
	}
	if err := s.slot.Save(ctx, data); err != nil {
		s.unsaved.Store(true)
		s.log.WithContext(ctx).Error("cart save failed", "error", err)
		return
	}
	s.unsaved.Store(false)
}

// Unsaved reports whether the last change failed to reach storage. Such a cart must stay in
// memory: reloading it would bring back the older stored state.
func (s *CartStore) Unsaved() bool {
	return s.unsaved.Load()
}

// Subscribe registers fn to receive a snapshot after every change. fn runs on the mutating
// goroutine and must not mutate the cart.
func (s *CartStore) Subscribe(fn func(domain.Snapshot)) (unsubscribe func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObsID
	s.nextObsID++
	s.observers = append(s.observers, observer{id: id, fn: fn})

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		s.observers = slices.DeleteFunc(s.observers, func(o observer) bool { return o.id == id })
	}
}

func (s *CartStore) publish(snap domain.Snapshot) {
	s.obsMu.Lock()
	observers := slices.Clone(s.observers)
	s.obsMu.Unlock()

	for _, o := range observers {
		o.fn(domain.Snapshot{Items: slices.Clone(snap.Items), Totals: snap.Totals})
	}
}

func (s *CartStore) indexLocked(productID string) int {
	return slices.IndexFunc(s.items, func(item domain.LineItem) bool {
		return item.ID == productID
	})
}

func (s *CartStore) snapshotLocked() domain.Snapshot {
	items := slices.Clone(s.items)
	if items == nil {
		items = []domain.LineItem{}
	}
	return domain.Snapshot{Items: items, Totals: domain.Price(items, s.policy)}
}

func (s *CartStore) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Items returns a copy of the line items in insertion order.
func (s *CartStore) Items() []domain.LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *CartStore) CartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Count(s.items)
}

func (s *CartStore) CartSubtotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Subtotal(s.items)
}

func (s *CartStore) DeliveryFee() decimal.Decimal {
	return s.policy.DeliveryFee(s.CartSubtotal())
}

func (s *CartStore) Savings() decimal.Decimal {
	return s.policy.Savings(s.CartSubtotal())
}

func (s *CartStore) TotalWithDelivery() decimal.Decimal {
	subtotal := s.CartSubtotal()
	return subtotal.Add(s.policy.DeliveryFee(subtotal))
}

func (s *CartStore) EligibleForFreeDelivery() bool {
	return s.policy.FreeDelivery(s.CartSubtotal())
}

func (s *CartStore) Policy() domain.DeliveryPolicy {
	return s.policy
}
