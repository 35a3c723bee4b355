package db

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Seed inserts demo data: a small catalog, one running flash sale and a
// few carts riding it.
func Seed(ctx context.Context, pool *pgxpool.Pool) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	titles := []string{
		"The Paper Harbor", "Winter Atlas", "A Field Guide to Silence",
		"The Cartographer's Daughter", "Salt and Circuitry",
		"Nine Ways Down", "The Orchard Clock", "Letters from the Shelf",
	}
	for i, title := range titles {
		basePrice := int64(1500 + r.Intn(30)*100)
		stock := 20 + r.Intn(80)
		_, err := pool.Exec(ctx, `INSERT INTO books (id, title, base_price, stock, created_at, updated_at)
VALUES ($1,$2,$3,$4,now(),now()) ON CONFLICT DO NOTHING`, i+1, title, basePrice, stock)
		if err != nil {
			return err
		}
	}

	// one sale already running, one opening tomorrow
	var saleID int64
	err := pool.QueryRow(ctx, `INSERT INTO campaigns (name, start_at, end_at, status, created_at, updated_at)
VALUES ('Weekend Flash Sale', now() - interval '1 hour', now() + interval '2 days', 'active', now(), now())
RETURNING id`).Scan(&saleID)
	if err != nil {
		return err
	}
	for book := int64(1); book <= 4; book++ {
		salePrice := int64(900 + r.Intn(5)*100)
		_, err = pool.Exec(ctx, `INSERT INTO campaign_items (campaign_id, book_id, sale_price, stock_ceiling, sold_count, created_at, updated_at)
VALUES ($1,$2,$3,$4,0,now(),now()) ON CONFLICT DO NOTHING`, saleID, book, salePrice, 10+r.Intn(20))
		if err != nil {
			return err
		}
	}
	_, err = pool.Exec(ctx, `INSERT INTO campaigns (name, start_at, end_at, status, created_at, updated_at)
VALUES ('Midweek Markdown', now() + interval '1 day', now() + interval '3 days', 'scheduled', now(), now())`)
	if err != nil {
		return err
	}

	// demo carts at base prices; bindings are established by the running
	// service, not by the seeder
	for i := 0; i < 5; i++ {
		userID := fmt.Sprintf("demo-%s", uuid.NewString()[:8])
		for _, book := range []int64{int64(r.Intn(8) + 1), int64(r.Intn(8) + 1)} {
			var basePrice int64
			if err := pool.QueryRow(ctx, `SELECT base_price FROM books WHERE id = $1`, book).Scan(&basePrice); err != nil {
				return err
			}
			_, err = pool.Exec(ctx, `INSERT INTO cart_items (user_id, book_id, quantity, unit_price, created_at, updated_at)
VALUES ($1,$2,$3,$4,now(),now()) ON CONFLICT DO NOTHING`, userID, book, 1+r.Intn(3), basePrice)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
