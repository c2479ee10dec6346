package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "racereg/internal/platform/redis"
)

// tallyTTL keeps abandoned day counters from lingering forever.
const tallyTTL = 14 * 24 * time.Hour

// Tally counts kit pickups per calendar day in Redis. A nil client disables
// it; counting failures are logged and never block a pickup.
type Tally struct {
	client *platformredis.Client
	logger *slog.Logger
}

func NewTally(client *platformredis.Client, logger *slog.Logger) *Tally {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tally{client: client, logger: logger}
}

func tallyKey(day time.Time) string {
	return fmt.Sprintf("checkin:tally:%s", day.Format("2006-01-02"))
}

// Record increments the counter for the pickup's day.
func (t *Tally) Record(ctx context.Context, at time.Time) {
	if t == nil || t.client == nil {
		return
	}
	key := tallyKey(at)
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, tallyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.WarnContext(ctx, "check-in tally increment failed", "key", key, "error", err)
		return
	}
	t.logger.DebugContext(ctx, "check-in tally", "key", key, "count", incr.Val())
}

// Count reads the counter for one day. Returns 0 when disabled or missing.
func (t *Tally) Count(ctx context.Context, day time.Time) (int64, error) {
	if t == nil || t.client == nil {
		return 0, nil
	}
	n, err := t.client.Get(ctx, tallyKey(day)).Int64()
	if err != nil {
		if isRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read check-in tally: %w", err)
	}
	return n, nil
}

func isRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
