package storage

import (
	"context"
	"errors"
)

var ErrSlotEmpty = errors.New("slot empty")

// Slot is a single named durable value holding a serialized cart.
type Slot interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, payload []byte) error
	Discard(ctx context.Context) error
}

// Store hands out the slot for an owner key (user or session id).
type Store interface {
	Slot(owner string) Slot
}

// keyed binds a keyed backend to one owner.
type keyed struct {
	backend keyedBackend
	owner   string
}

type keyedBackend interface {
	load(ctx context.Context, owner string) ([]byte, error)
	save(ctx context.Context, owner string, payload []byte) error
	discard(ctx context.Context, owner string) error
}

func (k keyed) Load(ctx context.Context) ([]byte, error) {
	return k.backend.load(ctx, k.owner)
}

func (k keyed) Save(ctx context.Context, payload []byte) error {
	return k.backend.save(ctx, k.owner, payload)
}

func (k keyed) Discard(ctx context.Context) error {
	return k.backend.discard(ctx, k.owner)
}
