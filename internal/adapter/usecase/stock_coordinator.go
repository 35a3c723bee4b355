package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"shelf-deals/internal/core/port"
)

// StockCoordinator is the single serialization point for discount stock.
// The cached remaining counter is the fast path that decides reservations
// atomically; the durable sold count in the campaign store is updated
// behind it with a conditional write, so sold_count <= stock_ceiling holds
// in both places.
type StockCoordinator struct {
	cache     port.StockCache
	campaigns port.CampaignRepository
	logger    *slog.Logger
	now       func() time.Time
}

// NewStockCoordinator creates a coordinator over the given cache and
// campaign store.
func NewStockCoordinator(cache port.StockCache, campaigns port.CampaignRepository, logger *slog.Logger) *StockCoordinator {
	return &StockCoordinator{cache: cache, campaigns: campaigns, logger: logger, now: time.Now}
}

// TryReserve atomically checks sold + qty <= ceiling and claims qty on
// success. A false result with nil error is the ordinary "insufficient
// stock" outcome. On a cache miss the counter is seeded from the durable
// record and the reservation retried once.
func (s *StockCoordinator) TryReserve(ctx context.Context, itemID int64, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}
	for attempt := 0; attempt < 2; attempt++ {
		outcome, err := s.cache.Reserve(ctx, itemID, qty)
		if err != nil {
			return false, fmt.Errorf("reserve item %d: %w", itemID, err)
		}
		switch outcome {
		case port.ReserveOK:
			if err := s.recordSold(ctx, itemID, qty); err != nil {
				return false, err
			}
			return true, nil
		case port.ReserveInsufficient:
			return false, nil
		case port.ReserveMiss:
			if err := s.seed(ctx, itemID); err != nil {
				return false, err
			}
		}
	}
	return false, fmt.Errorf("stock counter for item %d could not be seeded", itemID)
}

// recordSold persists the reservation the cache just granted. When the
// conditional write refuses (counter drift between cache and store), the
// cached claim is rolled back and the reservation fails.
func (s *StockCoordinator) recordSold(ctx context.Context, itemID int64, qty int) error {
	ok, err := s.campaigns.AddSold(ctx, itemID, qty)
	if err == nil && ok {
		return nil
	}
	// When the ceiling cannot be read the release must not clamp, or a
	// counter holding more than qty would lose sellable units.
	ceiling := math.MaxInt32
	if item, _, ierr := s.campaigns.GetItemWithCampaign(ctx, itemID); ierr == nil && item != nil {
		ceiling = item.StockCeiling
	}
	if rerr := s.cache.Release(ctx, itemID, qty, ceiling); rerr != nil {
		s.logger.Error("could not roll back cached reservation",
			slog.Int64("item_id", itemID), slog.Any("error", rerr))
	}
	if err != nil {
		return fmt.Errorf("record sold count for item %d: %w", itemID, err)
	}
	s.logger.Error("cached counter granted a reservation the store refused",
		slog.Int64("item_id", itemID), slog.Int("quantity", qty))
	return fmt.Errorf("item %d: %w", itemID, port.ErrInvariantViolation)
}

// Release returns qty to the item's pool: the durable sold count is
// decremented floored at zero and the cached counter incremented capped at
// the ceiling.
func (s *StockCoordinator) Release(ctx context.Context, itemID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", qty)
	}
	item, _, err := s.campaigns.GetItemWithCampaign(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item %d: %w", itemID, err)
	}
	if item == nil {
		// Campaign row already gone; nothing to return stock to.
		return nil
	}
	if err := s.campaigns.ReduceSold(ctx, itemID, qty); err != nil {
		return fmt.Errorf("reduce sold count for item %d: %w", itemID, err)
	}
	if err := s.cache.Release(ctx, itemID, qty, item.StockCeiling); err != nil {
		return fmt.Errorf("release cached stock for item %d: %w", itemID, err)
	}
	return nil
}

// IsCurrentlyValid reports whether the item's owning campaign is active
// right now: status not finalized and the instant within [start, end).
func (s *StockCoordinator) IsCurrentlyValid(ctx context.Context, itemID int64) (bool, error) {
	item, campaign, err := s.campaigns.GetItemWithCampaign(ctx, itemID)
	if err != nil {
		return false, err
	}
	if item == nil || campaign == nil {
		return false, nil
	}
	s.checkInvariant(itemID, item.SoldCount, item.StockCeiling)
	return campaign.IsActive(s.now()), nil
}

func (s *StockCoordinator) seed(ctx context.Context, itemID int64) error {
	item, _, err := s.campaigns.GetItemWithCampaign(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item %d: %w", itemID, err)
	}
	if item == nil {
		return fmt.Errorf("item %d: %w", itemID, port.ErrCampaignNotFound)
	}
	s.checkInvariant(itemID, item.SoldCount, item.StockCeiling)
	// SetNX so a counter concurrently seeded and already decremented is
	// not overwritten.
	_, err = s.cache.InitRemaining(ctx, itemID, item.Remaining())
	if err != nil {
		return fmt.Errorf("seed stock counter for item %d: %w", itemID, err)
	}
	return nil
}

func (s *StockCoordinator) checkInvariant(itemID int64, sold, ceiling int) {
	if sold > ceiling {
		s.logger.Error("sold count exceeds stock ceiling",
			slog.Int64("item_id", itemID),
			slog.Int("sold", sold),
			slog.Int("ceiling", ceiling),
			slog.Any("error", port.ErrInvariantViolation))
	}
}
