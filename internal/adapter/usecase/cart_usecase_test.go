package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf-deals/internal/core/domain"
	"shelf-deals/internal/core/port"
)

type cartFixture struct {
	uc    *CartUseCase
	repo  *fakeCampaignRepo
	carts *fakeCartRepo
	cache *fakeStockCache
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	repo := newFakeCampaignRepo()
	carts := newFakeCartRepo(repo)
	cache := newFakeStockCache()
	stock := NewStockCoordinator(cache, repo, discardLogger())
	cartSync := NewCartSynchronizer(carts, repo, stock, discardLogger())
	return &cartFixture{
		uc:    NewCartUseCase(carts, repo, stock, cartSync, discardLogger()),
		repo:  repo,
		carts: carts,
		cache: cache,
	}
}

func (f *cartFixture) seedSale(t *testing.T, bookID int64, salePrice int64, ceiling int) int64 {
	t.Helper()
	now := time.Now()
	_, items := f.repo.seed(domain.Campaign{
		Name:    "flash",
		StartAt: now.Add(-time.Hour),
		EndAt:   now.Add(time.Hour),
		Status:  domain.CampaignStatusActive,
	}, domain.CampaignItem{BookID: bookID, SalePrice: salePrice, StockCeiling: ceiling})
	require.NoError(t, f.cache.SetRemaining(context.Background(), items[0].ID, items[0].Remaining()))
	return items[0].ID
}

func TestAddItemAtSalePrice(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})
	itemID := f.seedSale(t, 1, 700, 10)

	line, err := f.uc.AddItem(ctx, "alice", 1, 2)
	require.NoError(t, err)
	require.NotNil(t, line.CampaignItemID)
	assert.Equal(t, itemID, *line.CampaignItemID)
	assert.Equal(t, int64(700), line.UnitPrice)
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, 2, f.repo.soldCount(itemID))
}

func TestAddItemWithoutSaleUsesBasePrice(t *testing.T) {
	f := newCartFixture(t)
	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})

	line, err := f.uc.AddItem(context.Background(), "alice", 1, 1)
	require.NoError(t, err)
	assert.Nil(t, line.CampaignItemID)
	assert.Equal(t, int64(1000), line.UnitPrice)
}

func TestAddItemFallsBackWhenCeilingExhausted(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})
	itemID := f.seedSale(t, 1, 700, 1)

	_, err := f.uc.AddItem(ctx, "alice", 1, 1)
	require.NoError(t, err)

	// the single discounted unit is gone; the next add still succeeds
	line, err := f.uc.AddItem(ctx, "bob", 1, 1)
	require.NoError(t, err)
	assert.Nil(t, line.CampaignItemID)
	assert.Equal(t, int64(1000), line.UnitPrice)
	assert.Equal(t, 1, f.repo.soldCount(itemID))
}

func TestAddItemUnknownBook(t *testing.T) {
	f := newCartFixture(t)
	_, err := f.uc.AddItem(context.Background(), "alice", 404, 1)
	require.ErrorIs(t, err, port.ErrBookNotFound)
}

func TestAddItemBeyondBaseStock(t *testing.T) {
	f := newCartFixture(t)
	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 2})

	_, err := f.uc.AddItem(context.Background(), "alice", 1, 3)
	require.ErrorIs(t, err, port.ErrStockExhausted)
}

func TestAddItemNormalizesQuantity(t *testing.T) {
	f := newCartFixture(t)
	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})

	line, err := f.uc.AddItem(context.Background(), "alice", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, line.Quantity)
}

func TestAddItemMergesExistingLine(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})
	itemID := f.seedSale(t, 1, 700, 10)

	_, err := f.uc.AddItem(ctx, "alice", 1, 2)
	require.NoError(t, err)
	line, err := f.uc.AddItem(ctx, "alice", 1, 3)
	require.NoError(t, err)

	assert.Equal(t, 5, line.Quantity)
	assert.Equal(t, 5, f.repo.soldCount(itemID))
	stored := f.carts.line("alice", 1)
	assert.Equal(t, 5, stored.Quantity)
}

func TestSetQuantityReservesIncrease(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})
	itemID := f.seedSale(t, 1, 700, 10)

	_, err := f.uc.AddItem(ctx, "alice", 1, 2)
	require.NoError(t, err)

	line, err := f.uc.SetQuantity(ctx, "alice", 1, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, line.Quantity)
	assert.Equal(t, 6, f.repo.soldCount(itemID))
}

func TestSetQuantityReleasesDecrease(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})
	itemID := f.seedSale(t, 1, 700, 10)

	_, err := f.uc.AddItem(ctx, "alice", 1, 6)
	require.NoError(t, err)

	line, err := f.uc.SetQuantity(ctx, "alice", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, 2, f.repo.soldCount(itemID))
	remaining, _ := f.cache.get(itemID)
	assert.Equal(t, 8, remaining)
}

func TestSetQuantityPastCeilingRefused(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})
	itemID := f.seedSale(t, 1, 700, 3)

	_, err := f.uc.AddItem(ctx, "alice", 1, 2)
	require.NoError(t, err)

	_, err = f.uc.SetQuantity(ctx, "alice", 1, 5)
	require.ErrorIs(t, err, port.ErrStockExhausted)

	stored := f.carts.line("alice", 1)
	assert.Equal(t, 2, stored.Quantity, "a refused increase must leave the line unchanged")
	assert.Equal(t, 2, f.repo.soldCount(itemID))
}

func TestSetQuantityReleasesDeltaOnFailedWrite(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})
	itemID := f.seedSale(t, 1, 700, 10)

	_, err := f.uc.AddItem(ctx, "alice", 1, 1)
	require.NoError(t, err)

	f.carts.updateBindingErr = errors.New("connection reset")
	_, err = f.uc.SetQuantity(ctx, "alice", 1, 3)
	require.Error(t, err)
	f.carts.updateBindingErr = nil

	assert.Equal(t, 1, f.repo.soldCount(itemID), "the reserved delta must be returned on a failed write")
	remaining, _ := f.cache.get(itemID)
	assert.Equal(t, 9, remaining)
	stored := f.carts.line("alice", 1)
	assert.Equal(t, 1, stored.Quantity)
}

func TestSetQuantityZeroRemovesLine(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})
	itemID := f.seedSale(t, 1, 700, 10)

	_, err := f.uc.AddItem(ctx, "alice", 1, 2)
	require.NoError(t, err)

	line, err := f.uc.SetQuantity(ctx, "alice", 1, 0)
	require.NoError(t, err)
	assert.Nil(t, line)
	assert.Nil(t, f.carts.line("alice", 1))
	assert.Equal(t, 0, f.repo.soldCount(itemID))
}

func TestSetQuantityMissingLine(t *testing.T) {
	f := newCartFixture(t)
	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})
	_, err := f.uc.SetQuantity(context.Background(), "alice", 1, 2)
	require.Error(t, err)
}

func TestRemoveItemReleasesReservation(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})
	itemID := f.seedSale(t, 1, 700, 10)

	_, err := f.uc.AddItem(ctx, "alice", 1, 4)
	require.NoError(t, err)
	require.NoError(t, f.uc.RemoveItem(ctx, "alice", 1))

	assert.Nil(t, f.carts.line("alice", 1))
	assert.Equal(t, 0, f.repo.soldCount(itemID))
	remaining, _ := f.cache.get(itemID)
	assert.Equal(t, 10, remaining)
}

func TestRemoveItemAbsentLineIsNoop(t *testing.T) {
	f := newCartFixture(t)
	require.NoError(t, f.uc.RemoveItem(context.Background(), "alice", 1))
}

func TestViewSumsSubtotals(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	f.carts.addBook(domain.Book{ID: 1, BasePrice: 1000, Stock: 50})
	f.carts.addBook(domain.Book{ID: 2, BasePrice: 500, Stock: 50})
	f.seedSale(t, 1, 700, 10)

	_, err := f.uc.AddItem(ctx, "alice", 1, 2)
	require.NoError(t, err)
	_, err = f.uc.AddItem(ctx, "alice", 2, 3)
	require.NoError(t, err)

	view, err := f.uc.View(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, int64(2*700+3*500), view.Total)
}

func TestViewEmptyCart(t *testing.T) {
	f := newCartFixture(t)
	view, err := f.uc.View(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.Total)
}
