package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/bookcast/pkg/orderbook"
)

const (
	snapshotTTL     = 30 * time.Second
	priceTTL        = time.Second
	priceHistoryCap = 1000
)

// RedisCache is the volatile cache the dashboard services read: per-owner
// order hashes, book snapshots and prices. Nothing here is durable.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// RecordOrder files the order under its owner's active or cancelled hash.
func (c *RedisCache) RecordOrder(ctx context.Context, o orderbook.Order) error {
	data, err := encode(o)
	if err != nil {
		return err
	}
	field := strconv.FormatUint(o.ID, 10)

	pipe := c.client.TxPipeline()
	switch o.Status {
	case orderbook.Cancelled:
		pipe.HDel(ctx, activeOrdersKey(o.Owner), field)
		pipe.HSet(ctx, cancelledOrdersKey(o.Owner), field, data)
	default:
		pipe.HSet(ctx, activeOrdersKey(o.Owner), field, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache order %d: %w", o.ID, err)
	}
	return nil
}

func (c *RedisCache) RecordSnapshot(ctx context.Context, snap orderbook.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotCacheKey(snap.Instrument), data, snapshotTTL).Err()
}

// Snapshot returns the cached snapshot, or false once it expired.
func (c *RedisCache) Snapshot(ctx context.Context, symbol string) (orderbook.Snapshot, bool, error) {
	data, err := c.client.Get(ctx, snapshotCacheKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return orderbook.Snapshot{}, false, nil
	}
	if err != nil {
		return orderbook.Snapshot{}, false, err
	}
	var snap orderbook.Snapshot
	if err := decode(data, &snap); err != nil {
		return orderbook.Snapshot{}, false, err
	}
	return snap, true, nil
}

// ActiveOrders returns the owner's cached pending orders, unordered.
func (c *RedisCache) ActiveOrders(ctx context.Context, owner string) ([]orderbook.Order, error) {
	vals, err := c.client.HVals(ctx, activeOrdersKey(owner)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]orderbook.Order, 0, len(vals))
	for _, v := range vals {
		var o orderbook.Order
		if err := decode([]byte(v), &o); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// PricePoint is one entry of a symbol's price history.
type PricePoint struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
}

// SetPrice stores the current price for one second and appends it to the
// symbol's history, trimmed to the newest entries.
func (c *RedisCache) SetPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error {
	point, err := encode(PricePoint{Price: price, Timestamp: at.UnixMilli()})
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, priceKey(symbol), price.String(), priceTTL)
	pipe.ZAdd(ctx, priceHistoryKey(symbol), redis.Z{Score: float64(at.UnixMilli()), Member: point})
	pipe.ZRemRangeByRank(ctx, priceHistoryKey(symbol), 0, -(priceHistoryCap + 1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache price %s: %w", symbol, err)
	}
	return nil
}

func (c *RedisCache) Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	s, err := c.client.Get(ctx, priceKey(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, err
	}
	return p, true, nil
}

// PriceHistory returns up to limit points, newest first.
func (c *RedisCache) PriceHistory(ctx context.Context, symbol string, limit int) ([]PricePoint, error) {
	if limit <= 0 {
		limit = 100
	}
	vals, err := c.client.ZRevRange(ctx, priceHistoryKey(symbol), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]PricePoint, 0, len(vals))
	for _, v := range vals {
		var p PricePoint
		if err := decode([]byte(v), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *RedisCache) Close() error { return c.client.Close() }
