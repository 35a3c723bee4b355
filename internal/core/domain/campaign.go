package domain

import "time"

// CampaignStatus is the lifecycle state of a flash-sale campaign.
type CampaignStatus string

const (
	// CampaignStatusScheduled means the campaign exists but its window has
	// not opened yet.
	CampaignStatusScheduled CampaignStatus = "scheduled"
	// CampaignStatusActive means the window is open and items are priced.
	CampaignStatusActive CampaignStatus = "active"
	// CampaignStatusExpired is set exactly once by the expiration scheduler.
	CampaignStatusExpired CampaignStatus = "expired"
	// CampaignStatusCancelled is set only by an explicit admin action.
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// Campaign represents a time-bounded flash-sale window over a set of books.
// Prices are stored in integer units (e.g. cents). StartAt must precede
// EndAt; this is validated before a campaign is persisted.
type Campaign struct {
	ID        int64
	Name      string
	StartAt   time.Time
	EndAt     time.Time
	Status    CampaignStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the campaign is currently selling: the status has
// not been finalized and now falls within [StartAt, EndAt). A scheduled
// campaign whose window already opened counts as active; the persisted
// status is promoted lazily on read or by the maintenance sweep.
func (c *Campaign) IsActive(now time.Time) bool {
	if c.Status != CampaignStatusActive && c.Status != CampaignStatusScheduled {
		return false
	}
	return !now.Before(c.StartAt) && now.Before(c.EndAt)
}

// ShouldActivate reports whether a scheduled campaign's window has opened
// and its persisted status should be promoted to active.
func (c *Campaign) ShouldActivate(now time.Time) bool {
	return c.Status == CampaignStatusScheduled && !now.Before(c.StartAt) && now.Before(c.EndAt)
}

// CampaignItem is one discounted book inside a campaign. StockCeiling is
// the discount allocation, independent from the book's base stock.
// SoldCount never exceeds StockCeiling; the stock coordinator is the only
// writer of SoldCount.
type CampaignItem struct {
	ID           int64
	CampaignID   int64
	BookID       int64
	SalePrice    int64
	StockCeiling int
	SoldCount    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Remaining returns the reservable quantity left under the ceiling, floored
// at zero.
func (i *CampaignItem) Remaining() int {
	remaining := i.StockCeiling - i.SoldCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Exhausted reports whether the ceiling has been fully reserved. Derived
// state, never persisted.
func (i *CampaignItem) Exhausted() bool {
	return i.SoldCount >= i.StockCeiling
}
