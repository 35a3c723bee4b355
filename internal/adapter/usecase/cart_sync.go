package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shelf-deals/internal/core/domain"
	"shelf-deals/internal/core/port"
)

// CartSynchronizer translates campaign lifecycle events into cart
// mutations. Expiry and cancellation detach affected lines in one bulk
// statement keyed by campaign membership; creation and extension rebind
// matching lines under the stock coordinator's ceiling check.
type CartSynchronizer struct {
	carts     port.CartRepository
	campaigns port.CampaignRepository
	stock     *StockCoordinator
	logger    *slog.Logger
	now       func() time.Time
}

// NewCartSynchronizer wires the synchronizer over both stores and the
// stock coordinator.
func NewCartSynchronizer(carts port.CartRepository, campaigns port.CampaignRepository, stock *StockCoordinator, logger *slog.Logger) *CartSynchronizer {
	return &CartSynchronizer{carts: carts, campaigns: campaigns, stock: stock, logger: logger, now: time.Now}
}

// HandleExpiredCampaigns is the scheduler's batch callback: carts are
// detached first, then the campaigns marked expired. The order matters —
// if the cart store is unavailable the campaigns stay active-but-stale and
// the scheduler retries the whole batch; MarkExpired is conditional, so a
// repeat after partial success changes nothing.
func (s *CartSynchronizer) HandleExpiredCampaigns(ctx context.Context, campaignIDs []int64) error {
	if err := s.OnCampaignsExpired(ctx, campaignIDs); err != nil {
		return err
	}
	finalized, err := s.campaigns.MarkExpired(ctx, campaignIDs)
	if err != nil {
		return fmt.Errorf("mark campaigns expired: %w", err)
	}
	s.logger.Info("campaigns expired",
		slog.Int("batch", len(campaignIDs)),
		slog.Int64("finalized", finalized))
	return s.dropCounters(ctx, campaignIDs)
}

// OnCampaignsExpired clears the binding and resets the unit price on every
// cart line bound to any item of the expired campaigns, in a single bulk
// operation.
func (s *CartSynchronizer) OnCampaignsExpired(ctx context.Context, campaignIDs []int64) error {
	if len(campaignIDs) == 0 {
		return nil
	}
	affected, err := s.carts.BulkDetachAndReprice(ctx, campaignIDs, s.now())
	if err != nil {
		return fmt.Errorf("detach cart lines for expired campaigns: %w", err)
	}
	if affected > 0 {
		s.logger.Info("cart lines detached from ended campaigns",
			slog.Int64("lines", affected),
			slog.Int("campaigns", len(campaignIDs)))
	}
	return nil
}

// OnCampaignCancelled applies the same detach-and-reprice as expiry for a
// single cancelled campaign.
func (s *CartSynchronizer) OnCampaignCancelled(ctx context.Context, campaignID int64) error {
	if err := s.OnCampaignsExpired(ctx, []int64{campaignID}); err != nil {
		return err
	}
	return s.dropCounters(ctx, []int64{campaignID})
}

// OnCampaignUpserted rebinds existing cart lines whose book is covered by
// the campaign's items, after creation or an extension. Lines already on a
// cheaper or equal active discount are left alone. A line larger than the
// remaining ceiling is clamped down, never rejected; every change is
// reported as an adjustment for the caller to surface.
func (s *CartSynchronizer) OnCampaignUpserted(ctx context.Context, campaignID int64) ([]domain.Adjustment, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil || !campaign.IsActive(s.now()) {
		return nil, nil
	}
	items, err := s.campaigns.FindItemsByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	best := make(map[int64]domain.CampaignItem, len(items))
	for _, item := range items {
		if cur, ok := best[item.BookID]; !ok || item.SalePrice < cur.SalePrice {
			best[item.BookID] = item
		}
	}
	lines, err := s.carts.FindRebindCandidates(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	var adjustments []domain.Adjustment
	for _, line := range lines {
		item, ok := best[line.BookID]
		if !ok {
			continue
		}
		if line.CampaignItemID != nil {
			if *line.CampaignItemID == item.ID {
				continue
			}
			// Lowest resulting price wins when two active discounts cover
			// one book.
			if line.UnitPrice <= item.SalePrice {
				continue
			}
		}
		adj, err := s.rebindLine(ctx, line, item)
		if err != nil {
			s.logger.Warn("could not rebind cart line",
				slog.Int64("line_id", line.ID),
				slog.Int64("item_id", item.ID),
				slog.Any("error", err))
			continue
		}
		adjustments = append(adjustments, adj...)
	}
	return adjustments, nil
}

// rebindLine moves one line onto the campaign item, clamping the quantity
// to what the ceiling still admits.
func (s *CartSynchronizer) rebindLine(ctx context.Context, line domain.CartLineItem, item domain.CampaignItem) ([]domain.Adjustment, error) {
	qty := line.Quantity
	ok, err := s.stock.TryReserve(ctx, item.ID, qty)
	if err != nil {
		return nil, err
	}
	var adjustments []domain.Adjustment
	if !ok {
		fresh, _, err := s.campaigns.GetItemWithCampaign(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if fresh == nil || fresh.Remaining() == 0 {
			return nil, nil
		}
		qty = fresh.Remaining()
		if ok, err = s.stock.TryReserve(ctx, item.ID, qty); err != nil || !ok {
			return nil, err
		}
		adjustments = append(adjustments, domain.ClampAdjustment(line.BookID, item.SalePrice, line.Quantity, qty))
	}
	if line.CampaignItemID != nil {
		if err := s.stock.Release(ctx, *line.CampaignItemID, line.Quantity); err != nil {
			s.logger.Warn("could not release previous binding",
				slog.Int64("item_id", *line.CampaignItemID),
				slog.Any("error", err))
		}
	}
	if err := s.carts.UpdateLineBinding(ctx, line.ID, &item.ID, item.SalePrice, qty); err != nil {
		// Undo the fresh reservation; the line keeps its old state.
		if rerr := s.stock.Release(ctx, item.ID, qty); rerr != nil {
			s.logger.Error("reservation leaked after failed rebind",
				slog.Int64("item_id", item.ID), slog.Any("error", rerr))
		}
		return nil, err
	}
	adjustments = append(adjustments, domain.Adjustment{
		BookID:   line.BookID,
		Kind:     domain.AdjustmentRebound,
		OldPrice: line.UnitPrice,
		NewPrice: item.SalePrice,
		OldQty:   line.Quantity,
		NewQty:   qty,
		Message:  fmt.Sprintf("book %d joined a sale; the price changed from %d to %d", line.BookID, line.UnitPrice, item.SalePrice),
	})
	return adjustments, nil
}

// ValidateForCheckout re-checks every cart line of the user right before
// order placement: stale bindings are detached and repriced, edited sale
// prices propagated and quantities clamped to the book's base stock. The
// returned adjustments describe what changed; an empty list means the cart
// is consistent and safe to charge.
func (s *CartSynchronizer) ValidateForCheckout(ctx context.Context, userID string) ([]domain.Adjustment, error) {
	lines, err := s.carts.FindLineItemsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var adjustments []domain.Adjustment
	for _, line := range lines {
		adj, err := s.validateLine(ctx, line, now)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj...)
	}
	return adjustments, nil
}

func (s *CartSynchronizer) validateLine(ctx context.Context, line domain.CartLineItem, now time.Time) ([]domain.Adjustment, error) {
	book, err := s.carts.GetBook(ctx, line.BookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, fmt.Errorf("book %d: %w", line.BookID, port.ErrBookNotFound)
	}

	var adjustments []domain.Adjustment
	if line.CampaignItemID != nil {
		item, campaign, err := s.campaigns.GetItemWithCampaign(ctx, *line.CampaignItemID)
		if err != nil {
			return nil, err
		}
		switch {
		case item == nil || campaign == nil || !campaign.IsActive(now):
			// The narrow window between expiry firing and the bulk update:
			// fix the line here so checkout never reads a stale price.
			if err := s.carts.UpdateLineBinding(ctx, line.ID, nil, book.BasePrice, line.Quantity); err != nil {
				return nil, err
			}
			adjustments = append(adjustments, domain.DetachAdjustment(line.BookID, line.UnitPrice, book.BasePrice, line.Quantity))
			line.CampaignItemID = nil
			line.UnitPrice = book.BasePrice
		case line.UnitPrice != item.SalePrice:
			if err := s.carts.UpdateLineBinding(ctx, line.ID, line.CampaignItemID, item.SalePrice, line.Quantity); err != nil {
				return nil, err
			}
			adjustments = append(adjustments, domain.Adjustment{
				BookID:   line.BookID,
				Kind:     domain.AdjustmentRepriced,
				OldPrice: line.UnitPrice,
				NewPrice: item.SalePrice,
				OldQty:   line.Quantity,
				NewQty:   line.Quantity,
				Message:  fmt.Sprintf("the sale price of book %d changed from %d to %d", line.BookID, line.UnitPrice, item.SalePrice),
			})
			line.UnitPrice = item.SalePrice
		}
	}

	if line.Quantity > book.Stock {
		newQty := book.Stock
		if line.CampaignItemID != nil {
			if err := s.stock.Release(ctx, *line.CampaignItemID, line.Quantity-newQty); err != nil {
				return nil, err
			}
		}
		if newQty == 0 {
			if _, err := s.carts.DeleteLineItem(ctx, line.UserID, line.BookID); err != nil {
				return nil, err
			}
		} else if err := s.carts.UpdateLineBinding(ctx, line.ID, line.CampaignItemID, line.UnitPrice, newQty); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, domain.ClampAdjustment(line.BookID, line.UnitPrice, line.Quantity, newQty))
	}
	return adjustments, nil
}

// dropCounters discards cached stock counters of finalized campaigns.
func (s *CartSynchronizer) dropCounters(ctx context.Context, campaignIDs []int64) error {
	var itemIDs []int64
	for _, id := range campaignIDs {
		items, err := s.campaigns.FindItemsByCampaign(ctx, id)
		if err != nil {
			return err
		}
		for _, item := range items {
			itemIDs = append(itemIDs, item.ID)
		}
	}
	if len(itemIDs) == 0 {
		return nil
	}
	if err := s.stock.cache.DropRemaining(ctx, itemIDs); err != nil {
		s.logger.Warn("could not drop cached stock counters", slog.Any("error", err))
	}
	return nil
}
