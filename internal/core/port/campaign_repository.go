package port

import (
	"context"
	"errors"
	"time"

	"shelf-deals/internal/core/domain"
)

// ErrCampaignNotFound is returned when an operation references a campaign
// or campaign item that does not exist.
var ErrCampaignNotFound = errors.New("campaign not found")

// ErrSchedulingConflict is returned when an admin mutation loses a race or
// would create overlapping active discounts for the same book.
var ErrSchedulingConflict = errors.New("scheduling conflict")

// CampaignRepository is the outbound port for campaign persistence. It is
// the only way the core reads or writes campaigns; implementations must
// make the sold-count updates atomic and conditional so that concurrent
// reservations can never push SoldCount past StockCeiling.
type CampaignRepository interface {
	// CreateCampaign persists the campaign and its items in one
	// transaction, filling in generated ids.
	CreateCampaign(ctx context.Context, c *domain.Campaign, items []domain.CampaignItem) error
	// UpdateCampaign persists a changed name, window and status.
	UpdateCampaign(ctx context.Context, c *domain.Campaign) error
	// GetCampaign returns the campaign or nil when absent.
	GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error)
	// UpdateStatus transitions a single campaign. The write is conditional
	// on the current status differing, so repeating it is a no-op.
	UpdateStatus(ctx context.Context, id int64, status domain.CampaignStatus) error
	// MarkExpired finalizes every listed campaign that is still scheduled
	// or active and reports how many rows changed. Campaigns already
	// expired or cancelled are skipped, which makes batch retries
	// idempotent.
	MarkExpired(ctx context.Context, ids []int64) (int64, error)
	// ActivateDue promotes scheduled campaigns whose window has opened.
	ActivateDue(ctx context.Context, now time.Time) (int64, error)
	// FindUnfinished returns all scheduled or active campaigns, used to
	// rebuild scheduler state after a restart.
	FindUnfinished(ctx context.Context) ([]domain.Campaign, error)
	// FindActiveOverlapping returns the book ids among bookIDs that are
	// already covered by another unfinished campaign whose window
	// intersects [start, end). excludeCampaignID ignores the campaign
	// being edited.
	FindActiveOverlapping(ctx context.Context, bookIDs []int64, start, end time.Time, excludeCampaignID int64) ([]int64, error)
	// FindItemsByCampaign returns all items of one campaign.
	FindItemsByCampaign(ctx context.Context, campaignID int64) ([]domain.CampaignItem, error)
	// GetItemWithCampaign returns an item together with its owning
	// campaign, or nils when absent.
	GetItemWithCampaign(ctx context.Context, itemID int64) (*domain.CampaignItem, *domain.Campaign, error)
	// BestActiveItemForBook returns the lowest-priced item covering the
	// book in a campaign active at now, or nil when the book is not on
	// sale.
	BestActiveItemForBook(ctx context.Context, bookID int64, now time.Time) (*domain.CampaignItem, error)
	// AddSold increments an item's sold count by qty only while
	// sold_count + qty <= stock_ceiling, reporting whether the row
	// changed.
	AddSold(ctx context.Context, itemID int64, qty int) (bool, error)
	// ReduceSold decrements an item's sold count by qty, floored at zero.
	ReduceSold(ctx context.Context, itemID int64, qty int) error
}
