package domain

import "github.com/shopspring/decimal"

// DeliveryPolicy holds the free-delivery threshold and the flat fee charged below it.
type DeliveryPolicy struct {
	Threshold decimal.Decimal
	Fee       decimal.Decimal
}

func DefaultDeliveryPolicy() DeliveryPolicy {
	return DeliveryPolicy{
		Threshold: decimal.NewFromInt(500),
		Fee:       decimal.NewFromInt(50),
	}
}

// FreeDelivery reports whether subtotal reaches the threshold.
func (p DeliveryPolicy) FreeDelivery(subtotal decimal.Decimal) bool {
	return subtotal.GreaterThanOrEqual(p.Threshold)
}

func (p DeliveryPolicy) DeliveryFee(subtotal decimal.Decimal) decimal.Decimal {
	if p.FreeDelivery(subtotal) {
		return decimal.Zero
	}
	return p.Fee
}

// Savings is the delivery fee avoided by reaching the threshold. It is not an item discount.
func (p DeliveryPolicy) Savings(subtotal decimal.Decimal) decimal.Decimal {
	if p.FreeDelivery(subtotal) {
		return p.Fee
	}
	return decimal.Zero
}

type Totals struct {
	Count                    int             `json:"count"`
	Lines                    int             `json:"lines"`
	Subtotal                 decimal.Decimal `json:"subtotal"`
	DeliveryFee              decimal.Decimal `json:"delivery_fee"`
	Savings                  decimal.Decimal `json:"savings"`
	Total                    decimal.Decimal `json:"total"`
	FreeDelivery             bool            `json:"free_delivery"`
	RemainingForFreeDelivery decimal.Decimal `json:"remaining_for_free_delivery"`
	FreeDeliveryProgress     int             `json:"free_delivery_progress"`
}

func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

func Count(items []LineItem) int {
	n := 0
	for _, item := range items {
		n += item.Quantity
	}
	return n
}

// Price derives every total of items under policy.
func Price(items []LineItem, policy DeliveryPolicy) Totals {
	subtotal := Subtotal(items)
	fee := policy.DeliveryFee(subtotal)

	remaining := policy.Threshold.Sub(subtotal)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return Totals{
		Count:                    Count(items),
		Lines:                    len(items),
		Subtotal:                 subtotal,
		DeliveryFee:              fee,
		Savings:                  policy.Savings(subtotal),
		Total:                    subtotal.Add(fee),
		FreeDelivery:             policy.FreeDelivery(subtotal),
		RemainingForFreeDelivery: remaining,
		FreeDeliveryProgress:     progress(subtotal, policy.Threshold),
	}
}

// progress is subtotal as a rounded percentage of threshold, capped at 100.
func progress(subtotal, threshold decimal.Decimal) int {
	if !threshold.IsPositive() || subtotal.GreaterThanOrEqual(threshold) {
		return 100
	}
	pct := subtotal.Div(threshold).Mul(decimal.NewFromInt(100)).Round(0)
	return int(pct.IntPart())
}
