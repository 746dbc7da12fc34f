package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// MarkPriceCache is a read-through cache over a mark price source. Midpoints
// move constantly, so entries carry a short TTL; a cache outage degrades to
// hitting the upstream directly.
type MarkPriceCache struct {
	rdb      *redis.Client
	upstream domain.MarkPriceSource
	ttl      time.Duration
	logger   *slog.Logger
}

// NewMarkPriceCache creates a MarkPriceCache over upstream with the given
// entry TTL.
func NewMarkPriceCache(c *Client, upstream domain.MarkPriceSource, ttl time.Duration, logger *slog.Logger) *MarkPriceCache {
	return &MarkPriceCache{rdb: c.Underlying(), upstream: upstream, ttl: ttl, logger: logger}
}

func markKey(marketID string, outcome int) string {
	return fmt.Sprintf("mark:%s:%d", marketID, outcome)
}

// MarkPrice implements domain.MarkPriceSource.
func (mc *MarkPriceCache) MarkPrice(ctx context.Context, marketID string, outcome int) (float64, error) {
	key := markKey(marketID, outcome)

	val, err := mc.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		price, parseErr := strconv.ParseFloat(val, 64)
		if parseErr == nil {
			return price, nil
		}
		mc.logger.Warn("redis: corrupt mark price entry, refetching",
			slog.String("key", key),
			slog.String("value", val),
		)
	case !errors.Is(err, redis.Nil):
		mc.logger.Warn("redis: mark price read failed, falling through",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	price, err := mc.upstream.MarkPrice(ctx, marketID, outcome)
	if err != nil {
		return 0, err
	}

	if setErr := mc.rdb.Set(ctx, key,
		strconv.FormatFloat(price, 'f', -1, 64), mc.ttl,
	).Err(); setErr != nil {
		mc.logger.Warn("redis: mark price write failed",
			slog.String("key", key),
			slog.String("error", setErr.Error()),
		)
	}

	return price, nil
}

// Compile-time interface check.
var _ domain.MarkPriceSource = (*MarkPriceCache)(nil)
