package redis

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// DefaultMarketTTL bounds how long a market detail stays cached when the
// caller does not pick a TTL.
const DefaultMarketTTL = 5 * time.Minute

//go:embed scripts/market_set.lua
var marketSetLua string

// MarketCache implements domain.MarketCache with one hash per market under
// wagerloo:market:{id}. The hash holds the JSON market in "data" and its vote
// total in "votes", which orders concurrent writes.
type MarketCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	setLua *redis.Script
}

// NewMarketCache creates a MarketCache. A zero ttl selects DefaultMarketTTL.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl, setLua: redis.NewScript(marketSetLua)}
}

func marketKey(id string) string { return keyPrefix + "market:" + id }

// Set stores the market unless the cached copy already carries more votes.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.ID, err)
	}
	err = mc.setLua.Run(ctx, mc.rdb,
		[]string{marketKey(market.ID)},
		data,
		market.TotalVotes(),
		mc.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.ID, err)
	}
	return nil
}

// Get returns domain.ErrNotFound on a cache miss.
func (mc *MarketCache) Get(ctx context.Context, id string) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", id, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", id, err)
	}
	return market, nil
}

// Invalidate drops the cached market.
func (mc *MarketCache) Invalidate(ctx context.Context, id string) error {
	if err := mc.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
