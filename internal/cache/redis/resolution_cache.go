package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// openMarker is the negative-cache value stored for markets the upstream
// reports as unresolved, so open markets are not refetched on every request.
const openMarker = "open"

// ResolutionCache is a read-through cache over a resolution source. A settled
// payout vector never changes, so settled entries get a long TTL; open
// markets get a short negative-cache TTL and are re-checked after it lapses.
type ResolutionCache struct {
	rdb        *redis.Client
	upstream   domain.ResolutionSource
	settledTTL time.Duration
	openTTL    time.Duration
	logger     *slog.Logger
}

// NewResolutionCache creates a ResolutionCache over upstream.
func NewResolutionCache(c *Client, upstream domain.ResolutionSource, settledTTL, openTTL time.Duration, logger *slog.Logger) *ResolutionCache {
	return &ResolutionCache{
		rdb:        c.Underlying(),
		upstream:   upstream,
		settledTTL: settledTTL,
		openTTL:    openTTL,
		logger:     logger,
	}
}

func resolutionKey(marketID string) string {
	return "resolution:" + marketID
}

// Resolutions implements domain.ResolutionSource. Cache hits are served from
// Redis; the remaining markets are fetched from upstream in one batch and
// written back.
func (rc *ResolutionCache) Resolutions(ctx context.Context, marketIDs []string) (domain.ResolutionSet, error) {
	set := make(domain.ResolutionSet, len(marketIDs))
	var misses []string

	cached, err := rc.readBatch(ctx, marketIDs)
	if err != nil {
		// Treat a cache outage as a full miss.
		rc.logger.Warn("redis: resolution read failed, falling through",
			slog.Int("markets", len(marketIDs)),
			slog.String("error", err.Error()),
		)
		cached = map[string]string{}
	}

	for _, id := range marketIDs {
		val, ok := cached[id]
		if !ok {
			misses = append(misses, id)
			continue
		}
		if val == openMarker {
			continue
		}
		res, parseErr := decodeResolution(id, val)
		if parseErr != nil {
			rc.logger.Warn("redis: corrupt resolution entry, refetching",
				slog.String("market_id", id),
				slog.String("error", parseErr.Error()),
			)
			misses = append(misses, id)
			continue
		}
		set[id] = res
	}

	if len(misses) == 0 {
		return set, nil
	}

	fetched, err := rc.upstream.Resolutions(ctx, misses)
	if err != nil {
		return nil, err
	}

	pipe := rc.rdb.Pipeline()
	for _, id := range misses {
		res, ok := fetched[id]
		if !ok {
			pipe.Set(ctx, resolutionKey(id), openMarker, rc.openTTL)
			continue
		}
		set[id] = res
		pipe.Set(ctx, resolutionKey(id), encodeResolution(res), rc.settledTTL)
	}
	if _, pipeErr := pipe.Exec(ctx); pipeErr != nil {
		rc.logger.Warn("redis: resolution write failed",
			slog.Int("markets", len(misses)),
			slog.String("error", pipeErr.Error()),
		)
	}

	return set, nil
}

// readBatch fetches cached entries for the given markets using MGET. The
// result map contains only keys that exist.
func (rc *ResolutionCache) readBatch(ctx context.Context, marketIDs []string) (map[string]string, error) {
	if len(marketIDs) == 0 {
		return map[string]string{}, nil
	}

	keys := make([]string, len(marketIDs))
	for i, id := range marketIDs {
		keys[i] = resolutionKey(id)
	}

	vals, err := rc.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: mget resolutions: %w", err)
	}

	out := make(map[string]string, len(marketIDs))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[marketIDs[i]] = s
	}
	return out, nil
}

func encodeResolution(res domain.Resolution) string {
	return strconv.FormatFloat(res.Payouts[0], 'f', -1, 64) + "," +
		strconv.FormatFloat(res.Payouts[1], 'f', -1, 64)
}

func decodeResolution(marketID, val string) (domain.Resolution, error) {
	parts := strings.SplitN(val, ",", 2)
	if len(parts) != 2 {
		return domain.Resolution{}, fmt.Errorf("malformed payout entry %q", val)
	}
	p0, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("parse payout %q: %w", parts[0], err)
	}
	p1, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("parse payout %q: %w", parts[1], err)
	}
	return domain.Resolution{MarketID: marketID, Payouts: [2]float64{p0, p1}}, nil
}

// Compile-time interface check.
var _ domain.ResolutionSource = (*ResolutionCache)(nil)
