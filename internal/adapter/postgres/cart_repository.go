package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shelf-deals/internal/core/domain"
)

// CartRepository implements port.CartRepository using pgxpool for
// PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a new repository instance.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

const lineColumns = `id, user_id, book_id, campaign_item_id, quantity, unit_price, created_at, updated_at`

func scanLine(row pgx.Row) (domain.CartLineItem, error) {
	var l domain.CartLineItem
	err := row.Scan(&l.ID, &l.UserID, &l.BookID, &l.CampaignItemID, &l.Quantity, &l.UnitPrice, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// BulkDetachAndReprice clears the binding and resets the unit price to the
// book's base price on every line bound to any item of the listed
// campaigns, in one statement.
func (r *CartRepository) BulkDetachAndReprice(ctx context.Context, campaignIDs []int64, at time.Time) (int64, error) {
	if len(campaignIDs) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `UPDATE cart_items ci
SET campaign_item_id = NULL,
    unit_price = b.base_price,
    updated_at = $2
FROM campaign_items i
JOIN books b ON b.id = i.book_id
WHERE ci.campaign_item_id = i.id
  AND i.campaign_id = ANY($1)`, campaignIDs, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindRebindCandidates returns lines whose book is covered by the
// campaign's items, whatever they are currently bound to.
func (r *CartRepository) FindRebindCandidates(ctx context.Context, campaignID int64) ([]domain.CartLineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, book_id, campaign_item_id, quantity, unit_price, created_at, updated_at
FROM cart_items
WHERE book_id IN (SELECT book_id FROM campaign_items WHERE campaign_id = $1)`, campaignID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CartLineItem, error) {
		return scanLine(row)
	})
}

// FindLineItemsByUser returns all of the user's lines.
func (r *CartRepository) FindLineItemsByUser(ctx context.Context, userID string) ([]domain.CartLineItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+lineColumns+` FROM cart_items WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CartLineItem, error) {
		return scanLine(row)
	})
}

// GetLineItem returns one user's line for a book, or nil when absent.
func (r *CartRepository) GetLineItem(ctx context.Context, userID string, bookID int64) (*domain.CartLineItem, error) {
	l, err := scanLine(r.pool.QueryRow(ctx,
		`SELECT `+lineColumns+` FROM cart_items WHERE user_id = $1 AND book_id = $2`, userID, bookID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpsertLineItem inserts the line or replaces quantity, price and binding
// of the user's existing line for the book.
func (r *CartRepository) UpsertLineItem(ctx context.Context, line *domain.CartLineItem) error {
	now := time.Now().UTC()
	line.CreatedAt = now
	line.UpdatedAt = now
	return r.pool.QueryRow(ctx, `INSERT INTO cart_items (user_id, book_id, campaign_item_id, quantity, unit_price, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (user_id, book_id) DO UPDATE
SET campaign_item_id = EXCLUDED.campaign_item_id,
    quantity = EXCLUDED.quantity,
    unit_price = EXCLUDED.unit_price,
    updated_at = EXCLUDED.updated_at
RETURNING id`,
		line.UserID, line.BookID, line.CampaignItemID, line.Quantity, line.UnitPrice, now).Scan(&line.ID)
}

// UpdateLineBinding rewrites binding, unit price and quantity of one line.
func (r *CartRepository) UpdateLineBinding(ctx context.Context, lineID int64, campaignItemID *int64, unitPrice int64, quantity int) error {
	_, err := r.pool.Exec(ctx, `UPDATE cart_items
SET campaign_item_id = $2, unit_price = $3, quantity = $4, updated_at = now()
WHERE id = $1`, lineID, campaignItemID, unitPrice, quantity)
	return err
}

// DeleteLineItem removes the user's line for a book and returns the
// removed line, or nil when there was none.
func (r *CartRepository) DeleteLineItem(ctx context.Context, userID string, bookID int64) (*domain.CartLineItem, error) {
	l, err := scanLine(r.pool.QueryRow(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND book_id = $2 RETURNING `+lineColumns, userID, bookID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetBook returns the catalog slice the sale core needs, or nil when
// absent.
func (r *CartRepository) GetBook(ctx context.Context, bookID int64) (*domain.Book, error) {
	var b domain.Book
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, base_price, stock, created_at, updated_at FROM books WHERE id = $1`, bookID).
		Scan(&b.ID, &b.Title, &b.BasePrice, &b.Stock, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
