package poller

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/logger"
)

const (
	Topic   = "checkout-outbox"
	GroupID = "cart-service-consumer"
)

// CartClearer empties the cart of one owner.
type CartClearer interface {
	Clear(ctx context.Context, owner string) (domain.Notice, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Poller clears a user's cart once a checkout for that user completes.
type Poller struct {
	carts  CartClearer
	reader messageReader
	log    *logger.Logger
}

func NewPoller(carts CartClearer, log *logger.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(carts, reader, log)
}

func newPoller(carts CartClearer, reader messageReader, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.Nop()
	}
	return &Poller{carts: carts, reader: reader, log: log}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.consumeOne(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", "error", err)
	}
}

type checkoutEvent struct {
	UserID string `json:"user_id"`
}

func (p *Poller) consumeOne(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error("error reading message", "error", err)
		}
		return
	}

	var event checkoutEvent
	if errUnmarshal := json.Unmarshal(m.Value, &event); errUnmarshal != nil {
		p.log.Warn("error parsing message", "offset", m.Offset, "error", errUnmarshal)
		return
	}
	if event.UserID == "" {
		p.log.Warn("missing or invalid user_id", "offset", m.Offset)
		return
	}

	if _, err := p.carts.Clear(ctx, event.UserID); err != nil {
		p.log.Error("error clearing cart", "owner", event.UserID, "offset", m.Offset, "error", err)
		return
	}
	p.log.Info("cart cleared after checkout", "owner", event.UserID)
}
