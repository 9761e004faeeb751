package domain

import "fmt"

type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeInfo    NoticeLevel = "info"
)

// Notice is a user-facing outcome of a cart mutation. The zero value means nothing to report.
type Notice struct {
	Level     NoticeLevel `json:"level"`
	Message   string      `json:"message"`
	ProductID string      `json:"product_id,omitempty"`
	Quantity  int         `json:"quantity,omitempty"`
}

func (n Notice) IsZero() bool {
	return n.Level == ""
}

func AddedNotice(p Product, quantity int) Notice {
	return Notice{
		Level:     NoticeSuccess,
		Message:   fmt.Sprintf("%s added to cart!", p.Name),
		ProductID: p.ID,
		Quantity:  quantity,
	}
}

func QuantityUpdatedNotice(p Product, quantity int) Notice {
	return Notice{
		Level:     NoticeSuccess,
		Message:   fmt.Sprintf("%s quantity updated to %d!", p.Name, quantity),
		ProductID: p.ID,
		Quantity:  quantity,
	}
}

func CapReachedNotice(p Product) Notice {
	return Notice{
		Level:     NoticeWarning,
		Message:   fmt.Sprintf("Maximum quantity (%d) reached for this item!", MaxQuantity),
		ProductID: p.ID,
		Quantity:  MaxQuantity,
	}
}

func OverCapNotice(productID string) Notice {
	return Notice{
		Level:     NoticeWarning,
		Message:   fmt.Sprintf("Maximum quantity allowed is %d!", MaxQuantity),
		ProductID: productID,
	}
}

func InvalidQuantityNotice(productID string) Notice {
	return Notice{
		Level:     NoticeWarning,
		Message:   fmt.Sprintf("Quantity must be at least %d!", MinQuantity),
		ProductID: productID,
	}
}

func RemovedNotice(p Product) Notice {
	return Notice{
		Level:     NoticeInfo,
		Message:   fmt.Sprintf("%s removed from cart!", p.Name),
		ProductID: p.ID,
	}
}

func ClearedNotice() Notice {
	return Notice{Level: NoticeInfo, Message: "Cart cleared!"}
}
