package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
)

var ErrCorruptPayload = errors.New("corrupt cart payload")

// EncodeItems renders the persisted layout: a JSON array of line items.
func EncodeItems(items []domain.LineItem) ([]byte, error) {
	if items == nil {
		items = []domain.LineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal cart failed: %w", err)
	}
	return data, nil
}

// storedItem is a line item as read back. Carts written by the storefront key products
// by "_id" rather than "id".
type storedItem struct {
	domain.LineItem
	LegacyID string `json:"_id,omitempty"`
}

// DecodeItems parses a persisted payload and rejects anything a cart could never hold.
func DecodeItems(data []byte) ([]domain.LineItem, error) {
	var stored []storedItem
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: unmarshal cart failed: %v", ErrCorruptPayload, err)
	}

	items := make([]domain.LineItem, len(stored))
	seen := make(map[string]struct{}, len(stored))
	for i, s := range stored {
		item := s.LineItem
		if item.ID == "" {
			item.ID = s.LegacyID
		}
		items[i] = item
		if item.ID == "" {
			return nil, fmt.Errorf("%w: item %d has no id", ErrCorruptPayload, i)
		}
		if item.Quantity < domain.MinQuantity || item.Quantity > domain.MaxQuantity {
			return nil, fmt.Errorf("%w: item %q has quantity %d", ErrCorruptPayload, item.ID, item.Quantity)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate item %q", ErrCorruptPayload, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return items, nil
}
