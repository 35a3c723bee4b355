package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shelf-deals/internal/core/domain"
	"shelf-deals/internal/core/port"
)

// CartUseCase implements port.CartUseCase. Every quantity increase on a
// discounted line goes through the stock coordinator before the cart row
// is written, so a cart can never hold more discounted units than the
// campaign item's ceiling admits.
type CartUseCase struct {
	carts     port.CartRepository
	campaigns port.CampaignRepository
	stock     *StockCoordinator
	sync      *CartSynchronizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewCartUseCase wires the cart usecase.
func NewCartUseCase(carts port.CartRepository, campaigns port.CampaignRepository, stock *StockCoordinator, cartSync *CartSynchronizer, logger *slog.Logger) *CartUseCase {
	return &CartUseCase{
		carts:     carts,
		campaigns: campaigns,
		stock:     stock,
		sync:      cartSync,
		logger:    logger,
		now:       time.Now,
	}
}

// AddItem puts qty of the book into the user's cart. When an active sale
// covers the book, the lowest-priced item is reserved; an exhausted
// ceiling falls back to the base price rather than failing the add.
func (u *CartUseCase) AddItem(ctx context.Context, userID string, bookID int64, qty int) (*domain.CartLineItem, error) {
	if qty < 1 {
		qty = 1
	}
	book, err := u.carts.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, fmt.Errorf("book %d: %w", bookID, port.ErrBookNotFound)
	}
	existing, err := u.carts.GetLineItem(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return u.SetQuantity(ctx, userID, bookID, existing.Quantity+qty)
	}
	if qty > book.Stock {
		return nil, fmt.Errorf("book %d has only %d in stock: %w", bookID, book.Stock, port.ErrStockExhausted)
	}

	price := book.BasePrice
	var itemID *int64
	item, err := u.campaigns.BestActiveItemForBook(ctx, bookID, u.now())
	if err != nil {
		return nil, err
	}
	if item != nil {
		ok, err := u.stock.TryReserve(ctx, item.ID, qty)
		if err != nil {
			return nil, err
		}
		if ok {
			price = item.SalePrice
			itemID = &item.ID
		}
	}

	line := &domain.CartLineItem{
		UserID:         userID,
		BookID:         bookID,
		CampaignItemID: itemID,
		Quantity:       qty,
		UnitPrice:      price,
	}
	if err := u.carts.UpsertLineItem(ctx, line); err != nil {
		if itemID != nil {
			if rerr := u.stock.Release(ctx, *itemID, qty); rerr != nil {
				u.logger.Error("reservation leaked after failed cart write",
					slog.Int64("item_id", *itemID), slog.Any("error", rerr))
			}
		}
		return nil, err
	}
	return line, nil
}

// SetQuantity moves a line to qty, reserving the increase or releasing the
// decrease for discounted lines. qty <= 0 removes the line.
func (u *CartUseCase) SetQuantity(ctx context.Context, userID string, bookID int64, qty int) (*domain.CartLineItem, error) {
	if qty <= 0 {
		return nil, u.RemoveItem(ctx, userID, bookID)
	}
	line, err := u.carts.GetLineItem(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, fmt.Errorf("book %d is not in the cart", bookID)
	}
	book, err := u.carts.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, fmt.Errorf("book %d: %w", bookID, port.ErrBookNotFound)
	}
	if qty > book.Stock {
		return nil, fmt.Errorf("book %d has only %d in stock: %w", bookID, book.Stock, port.ErrStockExhausted)
	}

	delta := qty - line.Quantity
	if line.CampaignItemID != nil && delta != 0 {
		if delta > 0 {
			ok, err := u.stock.TryReserve(ctx, *line.CampaignItemID, delta)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("book %d: %w", bookID, port.ErrStockExhausted)
			}
		} else {
			if err := u.stock.Release(ctx, *line.CampaignItemID, -delta); err != nil {
				return nil, err
			}
		}
	}
	if err := u.carts.UpdateLineBinding(ctx, line.ID, line.CampaignItemID, line.UnitPrice, qty); err != nil {
		if line.CampaignItemID != nil && delta > 0 {
			// Undo the extra reservation; the line keeps its old quantity.
			if rerr := u.stock.Release(ctx, *line.CampaignItemID, delta); rerr != nil {
				u.logger.Error("reservation leaked after failed cart write",
					slog.Int64("item_id", *line.CampaignItemID), slog.Any("error", rerr))
			}
		}
		return nil, err
	}
	line.Quantity = qty
	return line, nil
}

// RemoveItem deletes the user's line for the book and releases any
// discount reservation it held. Removing an absent line is a no-op.
func (u *CartUseCase) RemoveItem(ctx context.Context, userID string, bookID int64) error {
	line, err := u.carts.DeleteLineItem(ctx, userID, bookID)
	if err != nil {
		return err
	}
	if line == nil || line.CampaignItemID == nil {
		return nil
	}
	if err := u.stock.Release(ctx, *line.CampaignItemID, line.Quantity); err != nil {
		u.logger.Warn("could not release stock of removed line",
			slog.Int64("item_id", *line.CampaignItemID), slog.Any("error", err))
	}
	return nil
}

// View returns the cart contents and total.
func (u *CartUseCase) View(ctx context.Context, userID string) (port.CartView, error) {
	lines, err := u.carts.FindLineItemsByUser(ctx, userID)
	if err != nil {
		return port.CartView{}, err
	}
	var total int64
	for i := range lines {
		total += lines[i].Subtotal()
	}
	return port.CartView{Items: lines, Total: total}, nil
}

// ValidateForCheckout delegates to the cart synchronizer.
func (u *CartUseCase) ValidateForCheckout(ctx context.Context, userID string) ([]domain.Adjustment, error) {
	return u.sync.ValidateForCheckout(ctx, userID)
}
