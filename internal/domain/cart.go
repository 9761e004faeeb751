package domain

import "github.com/shopspring/decimal"

const (
	MinQuantity = 1
	MaxQuantity = 10
)

// Product is supplied by the catalog and carried as-is into the cart.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Unit        string  `json:"unit"`
	Image       string  `json:"image"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

type LineItem struct {
	Product
	Quantity int `json:"quantity"`
}

// LineTotal is price * quantity.
func (i LineItem) LineTotal() decimal.Decimal {
	return decimal.NewFromFloat(i.Price).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ClampQuantity bounds q to the cap. Callers handle q < MinQuantity themselves
// since that means removal or rejection, never a zero-quantity line.
func ClampQuantity(q int) int {
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}

// Snapshot is a detached copy of the cart handed to readers and observers.
type Snapshot struct {
	Items  []LineItem `json:"items"`
	Totals Totals     `json:"totals"`
}
