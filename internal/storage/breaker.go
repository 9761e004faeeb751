package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

type BreakerSettings struct {
	Name string
	// ConsecutiveFailures trips the breaker open.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a probe through.
	OpenTimeout time.Duration
}

// BreakerStore fails fast once the wrapped backend keeps erroring, so a dead Redis or Mongo
// does not stall every cart mutation on a network timeout.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[[]byte]
}

func NewBreakerStore(next Store, s BreakerSettings) *BreakerStore {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		// a missing cart is an answer, not a backend failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrSlotEmpty)
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) Slot(owner string) Slot {
	return breakerSlot{next: b.next.Slot(owner), cb: b.cb}
}

type breakerSlot struct {
	next Slot
	cb   *gobreaker.CircuitBreaker[[]byte]
}

func (s breakerSlot) Load(ctx context.Context) ([]byte, error) {
	return s.cb.Execute(func() ([]byte, error) {
		return s.next.Load(ctx)
	})
}

func (s breakerSlot) Save(ctx context.Context, payload []byte) error {
	_, err := s.cb.Execute(func() ([]byte, error) {
		return nil, s.next.Save(ctx, payload)
	})
	return err
}

func (s breakerSlot) Discard(ctx context.Context) error {
	_, err := s.cb.Execute(func() ([]byte, error) {
		return nil, s.next.Discard(ctx)
	})
	return err
}
