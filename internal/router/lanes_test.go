package router

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestLaneProcessesInArrivalOrder(t *testing.T) {
	lanes := newLaneSet(rate.Inf, 1)
	defer lanes.close()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	// Submissions happen sequentially so arrival order is defined; each
	// waits on its own goroutine, so completions would interleave if the
	// lane did not serialize.
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		done := make(chan struct{})
		go func() {
			defer wg.Done()
			err := lanes.submit(context.Background(), 1, func(ctx context.Context) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			})
			assert.NoError(t, err)
			close(done)
		}()
		<-done
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		assert.Equal(t, i, order[i])
	}
}

func TestConversationsProceedIndependently(t *testing.T) {
	lanes := newLaneSet(rate.Inf, 1)
	defer lanes.close()

	blockerStarted := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = lanes.submit(context.Background(), 1, func(ctx context.Context) {
			close(blockerStarted)
			<-release
		})
	}()
	<-blockerStarted

	// Conversation 2 is not behind conversation 1's blocked lane.
	ran := false
	err := lanes.submit(context.Background(), 2, func(ctx context.Context) {
		ran = true
	})
	require.NoError(t, err)
	assert.True(t, ran)

	close(release)
}

func TestAdmitEnforcesSenderRate(t *testing.T) {
	lanes := newLaneSet(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, lanes.admit(42), "burst slot %d", i)
	}
	assert.False(t, lanes.admit(42), "burst exhausted")

	assert.True(t, lanes.admit(43), "limits are per sender")
}

func TestCloseDrainsBlockedSubmitters(t *testing.T) {
	lanes := newLaneSet(rate.Inf, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = lanes.submit(context.Background(), 1, func(ctx context.Context) {
			close(started)
			<-release
		})
	}()
	<-started

	// Fill the lane buffer behind the stalled task and leave one more
	// submitter blocked on the channel send itself.
	const extra = laneBuffer + 1
	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lanes.submit(context.Background(), 1, func(ctx context.Context) {
				atomic.AddInt32(&ran, 1)
			})
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool {
		lanes.mu.Lock()
		defer lanes.mu.Unlock()
		l, ok := lanes.lanes[1]
		return ok && l.pending == extra+1
	}, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		lanes.close()
		close(closed)
	}()
	close(release)

	wg.Wait()
	<-closed
	assert.EqualValues(t, extra, atomic.LoadInt32(&ran), "every queued task ran during shutdown")

	err := lanes.submit(context.Background(), 1, func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestIdleLaneRetiresAndComesBack(t *testing.T) {
	lanes := newLaneSet(rate.Inf, 1)
	lanes.idleAfter = 10 * time.Millisecond
	defer lanes.close()

	require.NoError(t, lanes.submit(context.Background(), 7, func(ctx context.Context) {}))

	require.Eventually(t, func() bool {
		lanes.mu.Lock()
		defer lanes.mu.Unlock()
		_, live := lanes.lanes[7]
		return !live
	}, time.Second, 5*time.Millisecond, "idle lane retires")

	ran := false
	require.NoError(t, lanes.submit(context.Background(), 7, func(ctx context.Context) { ran = true }))
	assert.True(t, ran, "the conversation gets a fresh lane after retirement")
}

func TestSubmitAfterCloseFails(t *testing.T) {
	lanes := newLaneSet(rate.Inf, 1)
	lanes.close()

	err := lanes.submit(context.Background(), 1, func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrShuttingDown)
}
