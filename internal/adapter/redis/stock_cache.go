// Package redisadapter holds the Redis implementation of the stock cache.
// Each campaign item has one counter with its remaining discount stock;
// reserve and release run as Lua scripts, so every attempt against an
// item is atomic and concurrent attempts are linearizable per key.
package redisadapter

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"shelf-deals/internal/core/port"
)

const stockKeyPrefix = "sale:stock:"

var reserveScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return -1
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

var releaseScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])
local ceiling = tonumber(ARGV[2])

local current = redis.call('GET', key)
if not current then
	return -1
end

current = tonumber(current) + quantity
if current > ceiling then
	current = ceiling
end
redis.call('SET', key, current)
return current
`)

// StockCache implements port.StockCache on a Redis client.
type StockCache struct {
	client *redis.Client
}

// NewStockCache returns a cache over the given client.
func NewStockCache(client *redis.Client) *StockCache {
	return &StockCache{client: client}
}

func stockKey(itemID int64) string {
	return fmt.Sprintf("%s%d", stockKeyPrefix, itemID)
}

// Reserve atomically decrements the item's counter by qty when it holds
// at least qty.
func (c *StockCache) Reserve(ctx context.Context, itemID int64, qty int) (port.ReserveOutcome, error) {
	result, err := reserveScript.Run(ctx, c.client, []string{stockKey(itemID)}, qty).Int()
	if err != nil {
		return port.ReserveMiss, err
	}
	switch result {
	case 1:
		return port.ReserveOK, nil
	case 0:
		return port.ReserveInsufficient, nil
	default:
		return port.ReserveMiss, nil
	}
}

// Release atomically increments the counter by qty, capped at ceiling. A
// missing counter is left missing.
func (c *StockCache) Release(ctx context.Context, itemID int64, qty, ceiling int) error {
	return releaseScript.Run(ctx, c.client, []string{stockKey(itemID)}, qty, ceiling).Err()
}

// SetRemaining overwrites the counter.
func (c *StockCache) SetRemaining(ctx context.Context, itemID int64, remaining int) error {
	return c.client.Set(ctx, stockKey(itemID), remaining, 0).Err()
}

// InitRemaining sets the counter only when absent.
func (c *StockCache) InitRemaining(ctx context.Context, itemID int64, remaining int) (bool, error) {
	return c.client.SetNX(ctx, stockKey(itemID), remaining, 0).Result()
}

// DropRemaining removes the counters of finalized items.
func (c *StockCache) DropRemaining(ctx context.Context, itemIDs []int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = stockKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}
