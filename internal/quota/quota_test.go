package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryReserveStopsAtLimit(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()
	day := Today()

	for i := 0; i < 3; i++ {
		ok, err := tracker.TryReserve(ctx, 1, day, 3)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := tracker.TryReserve(ctx, 1, day, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	used, err := tracker.Usage(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, 3, used)
}

func TestReleaseFreesASlot(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()
	day := Today()

	ok, _ := tracker.TryReserve(ctx, 1, day, 1)
	require.True(t, ok)
	ok, _ = tracker.TryReserve(ctx, 1, day, 1)
	require.False(t, ok)

	require.NoError(t, tracker.Release(ctx, 1, day))

	ok, _ = tracker.TryReserve(ctx, 1, day, 1)
	assert.True(t, ok)
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()
	day := Today()

	require.NoError(t, tracker.Release(ctx, 1, day))

	used, err := tracker.Usage(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, 0, used)
}

func TestConcurrentReservationsNeverExceedLimit(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()
	day := Today()
	const limit = 5
	const workers = 50

	var wg sync.WaitGroup
	granted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tracker.TryReserve(ctx, 7, day, limit)
			assert.NoError(t, err)
			if ok {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	assert.Equal(t, limit, len(granted))

	used, err := tracker.Usage(ctx, 7, day)
	require.NoError(t, err)
	assert.Equal(t, limit, used)
}

func TestDaysAreIndependentBuckets(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	yesterday := DayOf(time.Now().UTC().AddDate(0, 0, -1))
	today := Today()

	ok, _ := tracker.TryReserve(ctx, 1, yesterday, 1)
	require.True(t, ok)

	ok, _ = tracker.TryReserve(ctx, 1, today, 1)
	assert.True(t, ok, "a new day starts with a fresh budget")
}

func TestDayOfUsesUTC(t *testing.T) {
	eastern := time.FixedZone("UTC+10", 10*3600)
	late := time.Date(2026, 3, 1, 8, 0, 0, 0, eastern) // 2026-02-28 22:00 UTC

	assert.Equal(t, Day("2026-02-28"), DayOf(late))
}
