package port

import (
	"context"
	"errors"
	"time"

	"shelf-deals/internal/core/domain"
)

// ErrBookNotFound is returned when a cart operation references an unknown
// book.
var ErrBookNotFound = errors.New("book not found")

// CartRepository is the outbound port for cart persistence. Bulk
// synchronization after campaign expiry goes through BulkDetachAndReprice
// as one statement keyed by campaign membership, never item by item.
type CartRepository interface {
	// BulkDetachAndReprice clears the campaign binding and resets the unit
	// price to the book's base price on every cart line bound to any item
	// of the listed campaigns. It returns the number of affected lines.
	BulkDetachAndReprice(ctx context.Context, campaignIDs []int64, at time.Time) (int64, error)
	// FindRebindCandidates returns cart lines whose book is covered by the
	// campaign's items, regardless of their current binding.
	FindRebindCandidates(ctx context.Context, campaignID int64) ([]domain.CartLineItem, error)
	// FindLineItemsByUser returns all of a user's cart lines.
	FindLineItemsByUser(ctx context.Context, userID string) ([]domain.CartLineItem, error)
	// GetLineItem returns one user's line for a book, or nil when absent.
	GetLineItem(ctx context.Context, userID string, bookID int64) (*domain.CartLineItem, error)
	// UpsertLineItem inserts the line or replaces quantity, price and
	// binding of an existing one, filling in the generated id.
	UpsertLineItem(ctx context.Context, line *domain.CartLineItem) error
	// UpdateLineBinding rewrites binding, unit price and quantity of one
	// line.
	UpdateLineBinding(ctx context.Context, lineID int64, campaignItemID *int64, unitPrice int64, quantity int) error
	// DeleteLineItem removes one user's line for a book and returns the
	// removed line, or nil when there was none.
	DeleteLineItem(ctx context.Context, userID string, bookID int64) (*domain.CartLineItem, error)
	// GetBook returns the catalog slice the sale core needs, or nil when
	// absent.
	GetBook(ctx context.Context, bookID int64) (*domain.Book, error)
}
