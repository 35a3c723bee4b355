package port

import (
	"context"
	"errors"
)

// ErrStockExhausted is returned when a reservation is refused because the
// discount stock ceiling is reached. It is an ordinary business outcome,
// surfaced to the user as "insufficient stock".
var ErrStockExhausted = errors.New("insufficient sale stock")

// ErrInvariantViolation is returned when a sold count above the stock
// ceiling is observed. It indicates a coordination bug; the item is
// reported but the process keeps running.
var ErrInvariantViolation = errors.New("sold count exceeds stock ceiling")

// ReserveOutcome is the result of an atomic reservation attempt against
// the cached remaining-stock counter.
type ReserveOutcome int

const (
	// ReserveOK means the counter was decremented by the full quantity.
	ReserveOK ReserveOutcome = iota
	// ReserveInsufficient means the counter was left unchanged because it
	// held less than the requested quantity.
	ReserveInsufficient
	// ReserveMiss means no counter exists for the item yet; the caller
	// seeds it from the durable record and retries.
	ReserveMiss
)

// StockCache is the outbound port for the shared remaining-stock counters.
// Reserve and Release must be atomic per item so that concurrent
// reservations against the same item are linearizable; different items
// never contend.
type StockCache interface {
	// Reserve atomically decrements the item's remaining counter by qty
	// when it holds at least qty.
	Reserve(ctx context.Context, itemID int64, qty int) (ReserveOutcome, error)
	// Release atomically increments the remaining counter by qty, capped
	// at ceiling. A missing counter is a no-op.
	Release(ctx context.Context, itemID int64, qty, ceiling int) error
	// SetRemaining overwrites the counter, used when a campaign is created
	// or its items change.
	SetRemaining(ctx context.Context, itemID int64, remaining int) error
	// InitRemaining sets the counter only when absent, used to seed after
	// a cache miss without clobbering concurrent reservations.
	InitRemaining(ctx context.Context, itemID int64, remaining int) (bool, error)
	// DropRemaining removes counters for items whose campaign ended.
	DropRemaining(ctx context.Context, itemIDs []int64) error
}
