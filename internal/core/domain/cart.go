package domain

import (
	"fmt"
	"time"
)

// CartLineItem is one book in a user's cart. CampaignItemID is set while
// the line rides a flash-sale discount and UnitPrice snapshots the price
// the line was added (or last synchronized) at. When the bound campaign
// stops being active the binding is cleared and UnitPrice reset to the
// book's base price before checkout can read the line.
type CartLineItem struct {
	ID             int64
	UserID         string
	BookID         int64
	CampaignItemID *int64
	Quantity       int
	UnitPrice      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Discounted reports whether the line is bound to a campaign item.
func (l *CartLineItem) Discounted() bool {
	return l.CampaignItemID != nil
}

// Subtotal returns the line total in price units.
func (l *CartLineItem) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// AdjustmentKind classifies a cart mutation made by synchronization.
type AdjustmentKind string

const (
	// AdjustmentDetached means a sale binding was removed and the line
	// repriced at the book's base price.
	AdjustmentDetached AdjustmentKind = "detached"
	// AdjustmentRebound means the line was attached to a sale item.
	AdjustmentRebound AdjustmentKind = "rebound"
	// AdjustmentRepriced means only the unit price changed.
	AdjustmentRepriced AdjustmentKind = "repriced"
	// AdjustmentClamped means the quantity was reduced to fit stock.
	AdjustmentClamped AdjustmentKind = "clamped"
)

// Adjustment describes one change applied to a cart line by the cart
// synchronizer, in a form the caller can surface to the user before
// charging.
type Adjustment struct {
	BookID   int64
	Kind     AdjustmentKind
	OldPrice int64
	NewPrice int64
	OldQty   int
	NewQty   int
	Message  string
}

// DetachAdjustment builds the adjustment for a line losing its discount.
func DetachAdjustment(bookID int64, oldPrice, basePrice int64, qty int) Adjustment {
	return Adjustment{
		BookID:   bookID,
		Kind:     AdjustmentDetached,
		OldPrice: oldPrice,
		NewPrice: basePrice,
		OldQty:   qty,
		NewQty:   qty,
		Message:  fmt.Sprintf("the sale on book %d has ended; the price changed from %d to %d", bookID, oldPrice, basePrice),
	}
}

// ClampAdjustment builds the adjustment for a line whose quantity was
// reduced to the available stock.
func ClampAdjustment(bookID int64, price int64, oldQty, newQty int) Adjustment {
	return Adjustment{
		BookID:   bookID,
		Kind:     AdjustmentClamped,
		OldPrice: price,
		NewPrice: price,
		OldQty:   oldQty,
		NewQty:   newQty,
		Message:  fmt.Sprintf("only %d of book %d are available; the quantity was reduced from %d", newQty, bookID, oldQty),
	}
}
