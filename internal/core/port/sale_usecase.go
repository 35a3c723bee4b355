package port

import (
	"context"
	"time"

	"shelf-deals/internal/core/domain"
)

// CampaignDraft carries the admin input for creating or editing a
// campaign. It is a DTO used by the HTTP layer and does not contain
// domain behaviour.
type CampaignDraft struct {
	Name    string
	StartAt time.Time
	EndAt   time.Time
	Items   []CampaignItemDraft
}

// CampaignItemDraft is one discounted book in a draft.
type CampaignItemDraft struct {
	BookID       int64
	SalePrice    int64
	StockCeiling int
}

// CampaignUseCase is the primary port for admin-facing campaign
// management. Every mutation keeps the expiration schedule and existing
// carts in step with the persisted campaign inside the same call.
type CampaignUseCase interface {
	// Create validates the draft (window ordering, per-book overlap with
	// other unfinished campaigns), persists it, seeds the stock counters,
	// registers the expiration and rebinds matching cart lines. The
	// returned adjustments report cart lines that were rebound or clamped.
	Create(ctx context.Context, draft CampaignDraft) (*domain.Campaign, []domain.Adjustment, error)
	// Update renames or moves the window of an unfinished campaign. The
	// pending expiration is cancelled before the new one is registered,
	// under a per-campaign lock, so the old instant can never fire for the
	// edited campaign.
	Update(ctx context.Context, id int64, draft CampaignDraft) (*domain.Campaign, []domain.Adjustment, error)
	// Cancel finalizes the campaign as cancelled, drops its pending
	// expiration and detaches affected cart lines.
	Cancel(ctx context.Context, id int64) error
	// Get returns the campaign and its items, promoting a scheduled
	// campaign whose window has opened.
	Get(ctx context.Context, id int64) (*domain.Campaign, []domain.CampaignItem, error)
}

// CartView is a user's cart with its total, as returned to the HTTP layer.
type CartView struct {
	Items []domain.CartLineItem
	Total int64
}

// CartUseCase is the primary port for customer-facing cart mutations.
// Quantity increases on discounted lines go through the stock coordinator
// synchronously, so a reservation that would break a ceiling is refused
// before the cart is touched.
type CartUseCase interface {
	// AddItem puts qty of a book into the user's cart at the best
	// currently-active sale price, falling back to the base price when no
	// sale covers the book or its ceiling is exhausted.
	AddItem(ctx context.Context, userID string, bookID int64, qty int) (*domain.CartLineItem, error)
	// SetQuantity changes a line's quantity, reserving or releasing the
	// difference for discounted lines. Raising a discounted line past the
	// remaining ceiling returns ErrStockExhausted.
	SetQuantity(ctx context.Context, userID string, bookID int64, qty int) (*domain.CartLineItem, error)
	// RemoveItem deletes the line and releases any reservation it held.
	RemoveItem(ctx context.Context, userID string, bookID int64) error
	// View returns the cart contents and total.
	View(ctx context.Context, userID string) (CartView, error)
	// ValidateForCheckout re-checks every line against current campaign
	// state and stock, fixing bindings, prices and quantities, and returns
	// what changed so the caller can surface it before charging.
	ValidateForCheckout(ctx context.Context, userID string) ([]domain.Adjustment, error)
}
