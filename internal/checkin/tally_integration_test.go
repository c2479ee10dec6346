//go:build integration

package checkin_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"racereg/internal/checkin"
	platformredis "racereg/internal/platform/redis"
	"racereg/pkg/testutil/containers"
)

func TestTallyRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	client := &platformredis.Client{Client: rc.Client}
	tally := checkin.NewTally(client, nil)

	ctx := context.Background()
	day := time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC)

	t.Run("counts pickups per day", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		tally.Record(ctx, day)
		tally.Record(ctx, day.Add(3*time.Hour))
		tally.Record(ctx, day.Add(26*time.Hour)) // next day

		n, err := tally.Count(ctx, day)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)

		n, err = tally.Count(ctx, day.Add(26*time.Hour))
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	})

	t.Run("missing day reads as zero", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		n, err := tally.Count(ctx, day.Add(-48*time.Hour))
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("concurrent desks do not lose counts", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		const desks, pickups = 8, 25
		var wg sync.WaitGroup
		for range desks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range pickups {
					tally.Record(ctx, day)
				}
			}()
		}
		wg.Wait()

		n, err := tally.Count(ctx, day)
		require.NoError(t, err)
		require.EqualValues(t, desks*pickups, n)
	})
}
