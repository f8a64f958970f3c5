package clients

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/syncflow/pkg/errors"
)

func TestRateQueue_AdmitsSizeWithoutWaiting(t *testing.T) {
	q := NewRateQueue(3, time.Hour)

	for i := 0; i < 3; i++ {
		waited, err := q.Push(context.Background())
		require.NoError(t, err)
		assert.Zero(t, waited)
	}

	assert.Equal(t, 0, q.Available())
	stats := q.Stats()
	assert.Equal(t, int64(3), stats.Admitted)
	assert.Equal(t, int64(0), stats.Waited)
}

func TestRateQueue_BlocksUntilWindowAdvances(t *testing.T) {
	const (
		size     = 2
		interval = 100 * time.Millisecond
		pushes   = 5
	)

	var limited int32
	q := NewRateQueue(size, interval, WithOnLimit(func() {
		atomic.AddInt32(&limited, 1)
	}))

	start := time.Now()
	for i := 0; i < pushes; i++ {
		_, err := q.Push(context.Background())
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	windows := math.Ceil(float64(pushes)/float64(size) - 1)
	assert.GreaterOrEqual(t, elapsed, time.Duration(windows)*interval)
	assert.Equal(t, int32(pushes-size), atomic.LoadInt32(&limited))
	assert.Equal(t, int64(pushes-size), q.Stats().Waited)
}

func TestRateQueue_NoMoreThanSizePerWindow(t *testing.T) {
	const (
		size     = 3
		interval = 80 * time.Millisecond
	)

	var mu sync.Mutex
	var admissions []time.Time
	clock := func() time.Time {
		return time.Now()
	}
	q := NewRateQueue(size, interval, withClock(clock))

	for i := 0; i < 9; i++ {
		_, err := q.Push(context.Background())
		require.NoError(t, err)
		mu.Lock()
		// the queue records admissions in its ring; read them back
		admissions = append(admissions, q.admissions[(q.next+len(q.admissions)-1)%len(q.admissions)])
		mu.Unlock()
	}

	for i := size; i < len(admissions); i++ {
		assert.GreaterOrEqual(t, admissions[i].Sub(admissions[i-size]), interval,
			"admission %d started within the window of admission %d", i, i-size)
	}
}

func TestRateQueue_ContextCancelWhileWaiting(t *testing.T) {
	q := NewRateQueue(1, time.Hour)
	_, err := q.Push(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = q.Push(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int64(1), q.Stats().Admitted)
}

func TestRateQueue_ConcurrentPushesShareCapacity(t *testing.T) {
	q := NewRateQueue(5, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.Push(ctx); err == nil {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), atomic.LoadInt32(&admitted))
}

func TestRateQueue_DisabledWhenSizeNotPositive(t *testing.T) {
	q := NewRateQueue(0, time.Minute)
	for i := 0; i < 100; i++ {
		waited, err := q.Push(context.Background())
		require.NoError(t, err)
		assert.Zero(t, waited)
	}
	assert.Equal(t, -1, q.Available())
	assert.Equal(t, int64(100), q.Stats().Admitted)
}

func TestRateQueue_AvailableFreesAfterInterval(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	q := NewRateQueue(2, time.Minute, withClock(clock))
	for i := 0; i < 2; i++ {
		_, err := q.Push(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 0, q.Available())

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()

	assert.Equal(t, 2, q.Available())
	waited, err := q.Push(context.Background())
	require.NoError(t, err)
	assert.Zero(t, waited)
	assert.Equal(t, 1, q.Available())
}
