package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shelf-deals/internal/core/domain"
	"shelf-deals/internal/core/port"
)

// CampaignRepository implements port.CampaignRepository using pgxpool for
// PostgreSQL. The sold-count writes are conditional single statements, so
// the ceiling invariant holds without explicit row locks.
type CampaignRepository struct {
	pool *pgxpool.Pool
}

// NewCampaignRepository returns a new repository instance.
func NewCampaignRepository(pool *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{pool: pool}
}

const campaignColumns = `id, name, start_at, end_at, status, created_at, updated_at`

func scanCampaign(row pgx.Row) (domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(&c.ID, &c.Name, &c.StartAt, &c.EndAt, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

const itemColumns = `id, campaign_id, book_id, sale_price, stock_ceiling, sold_count, created_at, updated_at`

func scanItem(row pgx.Row) (domain.CampaignItem, error) {
	var i domain.CampaignItem
	err := row.Scan(&i.ID, &i.CampaignID, &i.BookID, &i.SalePrice, &i.StockCeiling, &i.SoldCount, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

// CreateCampaign inserts the campaign and its items in one transaction and
// fills in the generated ids.
func (r *CampaignRepository) CreateCampaign(ctx context.Context, c *domain.Campaign, items []domain.CampaignItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	err = tx.QueryRow(ctx, `INSERT INTO campaigns (name, start_at, end_at, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		c.Name, c.StartAt, c.EndAt, c.Status, c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
	if err != nil {
		return err
	}
	for i := range items {
		items[i].CampaignID = c.ID
		items[i].CreatedAt = now
		items[i].UpdatedAt = now
		err = tx.QueryRow(ctx, `INSERT INTO campaign_items (campaign_id, book_id, sale_price, stock_ceiling, sold_count, created_at, updated_at)
VALUES ($1,$2,$3,$4,0,$5,$6) RETURNING id`,
			c.ID, items[i].BookID, items[i].SalePrice, items[i].StockCeiling, now, now).Scan(&items[i].ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateCampaign persists name, window and status.
func (r *CampaignRepository) UpdateCampaign(ctx context.Context, c *domain.Campaign) error {
	c.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `UPDATE campaigns SET name = $2, start_at = $3, end_at = $4, status = $5, updated_at = $6 WHERE id = $1`,
		c.ID, c.Name, c.StartAt, c.EndAt, c.Status, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return port.ErrCampaignNotFound
	}
	return nil
}

// GetCampaign returns the campaign or nil when absent.
func (r *CampaignRepository) GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateStatus transitions one campaign; repeating the same transition is
// a no-op.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id int64, status domain.CampaignStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE campaigns SET status = $2, updated_at = now() WHERE id = $1 AND status != $2`, id, status)
	return err
}

// MarkExpired finalizes every listed campaign that is still unfinished.
func (r *CampaignRepository) MarkExpired(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `UPDATE campaigns SET status = 'expired', updated_at = now()
WHERE id = ANY($1) AND status IN ('scheduled','active')`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ActivateDue promotes scheduled campaigns whose window has opened.
func (r *CampaignRepository) ActivateDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE campaigns SET status = 'active', updated_at = now()
WHERE status = 'scheduled' AND start_at <= $1 AND end_at > $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindUnfinished returns all scheduled or active campaigns.
func (r *CampaignRepository) FindUnfinished(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE status IN ('scheduled','active') ORDER BY end_at`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Campaign, error) {
		return scanCampaign(row)
	})
}

// FindActiveOverlapping returns the book ids among bookIDs already covered
// by another unfinished campaign whose window intersects [start, end).
func (r *CampaignRepository) FindActiveOverlapping(ctx context.Context, bookIDs []int64, start, end time.Time, excludeCampaignID int64) ([]int64, error) {
	if len(bookIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT i.book_id
FROM campaign_items i
JOIN campaigns c ON c.id = i.campaign_id
WHERE i.book_id = ANY($1)
  AND c.id != $2
  AND c.status IN ('scheduled','active')
  AND c.start_at < $4 AND c.end_at > $3`,
		bookIDs, excludeCampaignID, start, end)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (int64, error) {
		var id int64
		err := row.Scan(&id)
		return id, err
	})
}

// FindItemsByCampaign returns all items of one campaign.
func (r *CampaignRepository) FindItemsByCampaign(ctx context.Context, campaignID int64) ([]domain.CampaignItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM campaign_items WHERE campaign_id = $1 ORDER BY id`, campaignID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CampaignItem, error) {
		return scanItem(row)
	})
}

// GetItemWithCampaign returns an item and its owning campaign, or nils
// when absent.
func (r *CampaignRepository) GetItemWithCampaign(ctx context.Context, itemID int64) (*domain.CampaignItem, *domain.Campaign, error) {
	var (
		i domain.CampaignItem
		c domain.Campaign
	)
	err := r.pool.QueryRow(ctx, `SELECT
    i.id, i.campaign_id, i.book_id, i.sale_price, i.stock_ceiling, i.sold_count, i.created_at, i.updated_at,
    c.id, c.name, c.start_at, c.end_at, c.status, c.created_at, c.updated_at
FROM campaign_items i
JOIN campaigns c ON c.id = i.campaign_id
WHERE i.id = $1`, itemID).Scan(
		&i.ID, &i.CampaignID, &i.BookID, &i.SalePrice, &i.StockCeiling, &i.SoldCount, &i.CreatedAt, &i.UpdatedAt,
		&c.ID, &c.Name, &c.StartAt, &c.EndAt, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &i, &c, nil
}

// BestActiveItemForBook returns the lowest-priced item covering the book
// in a campaign active at now. Scheduled campaigns whose window already
// opened count; their persisted status is promoted elsewhere.
func (r *CampaignRepository) BestActiveItemForBook(ctx context.Context, bookID int64, now time.Time) (*domain.CampaignItem, error) {
	i, err := scanItem(r.pool.QueryRow(ctx, `SELECT i.id, i.campaign_id, i.book_id, i.sale_price, i.stock_ceiling, i.sold_count, i.created_at, i.updated_at
FROM campaign_items i
JOIN campaigns c ON c.id = i.campaign_id
WHERE i.book_id = $1
  AND c.status IN ('scheduled','active')
  AND c.start_at <= $2 AND c.end_at > $2
ORDER BY i.sale_price ASC
LIMIT 1`, bookID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// AddSold claims qty against the ceiling in one conditional statement.
func (r *CampaignRepository) AddSold(ctx context.Context, itemID int64, qty int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE campaign_items
SET sold_count = sold_count + $2, updated_at = now()
WHERE id = $1 AND sold_count + $2 <= stock_ceiling`, itemID, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReduceSold returns qty to the pool, floored at zero.
func (r *CampaignRepository) ReduceSold(ctx context.Context, itemID int64, qty int) error {
	_, err := r.pool.Exec(ctx, `UPDATE campaign_items
SET sold_count = GREATEST(sold_count - $2, 0), updated_at = now()
WHERE id = $1`, itemID, qty)
	return err
}
