package lockreg

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableorder/internal/apperr"
)

type recordingObserver struct {
	mu       sync.Mutex
	acquired int
	timedOut int
}

func (o *recordingObserver) ObserveLockWait(_ string, _ time.Duration, acquired bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if acquired {
		o.acquired++
	} else {
		o.timedOut++
	}
}

func TestNew_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, New(0).Timeout())
	assert.Equal(t, DefaultTimeout, New(-time.Second).Timeout())
	assert.Equal(t, time.Second, New(time.Second).Timeout())
}

func TestAcquire_LazyAndStable(t *testing.T) {
	r := New(time.Second)
	assert.Equal(t, 0, r.Len())

	release, err := r.Acquire(context.Background(), "orders/store001")
	require.NoError(t, err)
	release()
	release() // second call is a no-op

	release, err = r.Acquire(context.Background(), "orders/store001")
	require.NoError(t, err)
	release()

	assert.Equal(t, 1, r.Len(), "a key keeps one lock forever")
}

func TestAcquire_TimeoutIsConcurrencyError(t *testing.T) {
	obs := &recordingObserver{}
	r := New(50*time.Millisecond, WithObserver(obs))

	release, err := r.Acquire(context.Background(), "tables/store001")
	require.NoError(t, err)
	defer release()

	_, err = r.Acquire(context.Background(), "tables/store001")
	require.Error(t, err)
	assert.True(t, apperr.IsConcurrency(err))
	assert.True(t, apperr.IsRetryable(err))

	assert.Equal(t, 1, obs.acquired)
	assert.Equal(t, 1, obs.timedOut)
}

func TestAcquire_CallerCancellation(t *testing.T) {
	r := New(time.Minute)

	release, err := r.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, apperr.IsConcurrency(err))
}

func TestAcquire_DistinctKeysDoNotContend(t *testing.T) {
	r := New(50 * time.Millisecond)

	releaseA, err := r.Acquire(context.Background(), "orders/a")
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := r.Acquire(context.Background(), "orders/b")
	require.NoError(t, err)
	releaseB()
}

func TestWithLock_MutualExclusion(t *testing.T) {
	r := New(5 * time.Second)
	const workers = 50

	var inside, maxInside int32
	counter := 0

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			err := r.WithLock(context.Background(), "k", func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				counter++
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
	assert.Equal(t, int32(1), maxInside)
}

func TestWithLock_ArrivalOrder(t *testing.T) {
	r := New(5 * time.Second)

	release, err := r.Acquire(context.Background(), "k")
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = r.WithLock(context.Background(), "k", func() error {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil
			})
		}(i)
		// Let each waiter queue before the next one arrives.
		time.Sleep(20 * time.Millisecond)
	}

	release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
