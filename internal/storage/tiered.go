package storage

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cart-engine/internal/logger"
)

// TieredStore reads through a cache in front of a primary store. Writes go to the primary
// first; cache failures are logged and never fail the operation.
type TieredStore struct {
	cache   Store
	primary Store
	log     *logger.Logger
}

func NewTieredStore(cache, primary Store, log *logger.Logger) *TieredStore {
	if log == nil {
		log = logger.Nop()
	}
	return &TieredStore{cache: cache, primary: primary, log: log}
}

func (t *TieredStore) Slot(owner string) Slot {
	return tieredSlot{
		owner:   owner,
		cache:   t.cache.Slot(owner),
		primary: t.primary.Slot(owner),
		log:     t.log,
	}
}

type tieredSlot struct {
	owner   string
	cache   Slot
	primary Slot
	log     *logger.Logger
}

func (s tieredSlot) Load(ctx context.Context) ([]byte, error) {
	payload, err := s.cache.Load(ctx)
	if err == nil {
		return payload, nil
	}
	if !errors.Is(err, ErrSlotEmpty) {
		s.log.WithContext(ctx).Warn("cache get error", "owner", s.owner, "error", err)
	}

	payload, err = s.primary.Load(ctx)
	if err != nil {
		return nil, err
	}

	if errSet := s.cache.Save(ctx, payload); errSet != nil {
		s.log.WithContext(ctx).Warn("cache set error", "owner", s.owner, "error", errSet)
	}
	return payload, nil
}

func (s tieredSlot) Save(ctx context.Context, payload []byte) error {
	if err := s.primary.Save(ctx, payload); err != nil {
		// a stale cache entry would shadow the primary on the next load
		s.invalidate(ctx)
		return err
	}
	if err := s.cache.Save(ctx, payload); err != nil {
		s.log.WithContext(ctx).Warn("cache set error", "owner", s.owner, "error", err)
		s.invalidate(ctx)
	}
	return nil
}

func (s tieredSlot) Discard(ctx context.Context) error {
	s.invalidate(ctx)
	return s.primary.Discard(ctx)
}

func (s tieredSlot) invalidate(ctx context.Context) {
	if err := s.cache.Discard(ctx); err != nil {
		s.log.WithContext(ctx).Warn("cache invalidate error", "owner", s.owner, "error", err)
	}
}
