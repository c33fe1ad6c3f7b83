// Package oraclecache is a redis read-through cache in front of the price
// oracle, so a bulk eligibility sweep does not fire one upstream call per
// loan. Entries expire with the redis TTL; nothing is ever served past it.
package oraclecache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"agrilend-settlement/internal/domain/collab"
)

const keyPrefix = "valuation:"

type CachedOracle struct {
	inner collab.PriceOracle
	rdb   *redis.Client
	ttl   time.Duration
}

func New(inner collab.PriceOracle, rdb *redis.Client, ttl time.Duration) *CachedOracle {
	return &CachedOracle{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedOracle) CurrentValue(ctx context.Context, collateralRef string) (collab.ValuationData, error) {
	key := keyPrefix + collateralRef

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var v collab.ValuationData
		if json.Unmarshal(raw, &v) == nil {
			return v, nil
		}
		// Corrupt entry; fall through to the oracle and overwrite it.
	} else if !errors.Is(err, redis.Nil) {
		// Redis being down must not take the oracle down with it.
		return c.inner.CurrentValue(ctx, collateralRef)
	}

	v, err := c.inner.CurrentValue(ctx, collateralRef)
	if err != nil {
		return collab.ValuationData{}, err
	}
	// Stale or low-confidence answers are not worth caching; the next caller
	// should ask upstream again.
	if !v.IsStale {
		if buf, merr := json.Marshal(v); merr == nil {
			_ = c.rdb.Set(ctx, key, buf, c.ttl).Err()
		}
	}
	return v, nil
}
