package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"shelf-deals/internal/config/configs"
)

// NewPostgresPool opens a pgx connection pool for the configured address
// and proves connectivity with a bounded ping before handing it out. A
// failed ping closes the pool. Closing the returned pool is the caller's
// responsibility.
func NewPostgresPool(ctx context.Context, cfg configs.Postgres) (*pgxpool.Pool, error) {
	poolConf, err := pgxpool.ParseConfig(cfg.Addr.String())
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConf)
	if err != nil {
		return nil, err
	}

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
