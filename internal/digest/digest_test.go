package digest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestCache_FetchesOnceWhileValid(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	var calls atomic.Int32
	c := New(func(context.Context) (string, time.Duration, error) {
		calls.Add(1)
		return "0xABC", 30 * time.Minute, nil
	}, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "0xABC", v)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_RefreshesAfterExpiryMinusMargin(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	var calls atomic.Int32
	c := New(func(context.Context) (string, time.Duration, error) {
		n := calls.Add(1)
		if n == 1 {
			return "first", 10 * time.Minute, nil
		}
		return "second", 10 * time.Minute, nil
	}, WithClock(clock.Now), WithMargin(time.Minute))

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	clock.Advance(8 * time.Minute)
	v, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	clock.Advance(time.Minute)
	v, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestCache_Invalidate(t *testing.T) {
	var calls atomic.Int32
	c := New(func(context.Context) (string, time.Duration, error) {
		calls.Add(1)
		return "v", time.Hour, nil
	})

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	c.Invalidate()
	_, err = c.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_FetchError(t *testing.T) {
	boom := errors.New("boom")
	c := New(func(context.Context) (string, time.Duration, error) {
		return "", 0, boom
	})

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestCache_EmptyDigestIsError(t *testing.T) {
	c := New(func(context.Context) (string, time.Duration, error) {
		return "", time.Hour, nil
	})

	_, err := c.Get(context.Background())
	assert.Error(t, err)
}

func TestCache_ConcurrentMissesShareFetch(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	c := New(func(context.Context) (string, time.Duration, error) {
		calls.Add(1)
		<-release
		return "shared", time.Hour, nil
	})

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background())
			if err == nil {
				results[i] = v
			}
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, "shared", v)
	}
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestCache_CanceledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	c := New(func(ctx context.Context) (string, time.Duration, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return "shared", time.Hour, nil
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	})

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(firstCtx)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   string
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := c.Get(context.Background())
		second <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "shared", got.v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_CanceledCallerReturnsPromptly(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := New(func(context.Context) (string, time.Duration, error) {
		<-release
		return "late", time.Hour, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
