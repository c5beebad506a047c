package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func exerciseMutualExclusion(t *testing.T, locker Locker) {
	t.Helper()

	var inside, maxInside atomic.Int32
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			release, err := locker.Acquire(context.Background(), "tx-shared")
			if err != nil {
				return err
			}
			defer release()

			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocalLockerExcludesSameKey(t *testing.T) {
	l := NewLocal()
	exerciseMutualExclusion(t, l)
	assert.Zero(t, l.held())
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocal()
	releaseA, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	releaseB()
}

func TestLocalLockerHonorsContext(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "a")
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Zero(t, l.held())
}

type fakeRedis struct {
	mu        sync.Mutex
	values    map[string]string
	failSet   error
	failDel   error
	delCalled int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return false, f.failSet
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value
	return true, nil
}

func (f *fakeRedis) CompareAndDelete(_ context.Context, key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delCalled++
	if f.failDel != nil {
		return f.failDel
	}
	if f.values[key] == value {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockerExcludesSameKey(t *testing.T) {
	fake := newFakeRedis()
	exerciseMutualExclusion(t, newRedisLocker(fake, time.Second))
	assert.Empty(t, fake.values)
}

func TestRedisLockerLeavesForeignTokenAlone(t *testing.T) {
	fake := newFakeRedis()
	l := newRedisLocker(fake, time.Second)

	release, err := l.Acquire(context.Background(), "tx-1")
	require.NoError(t, err)

	// lock expired and another replica took it over
	fake.values[keyPrefix+"tx-1"] = "someone-else"
	release()
	assert.Equal(t, "someone-else", fake.values[keyPrefix+"tx-1"])
}

func TestRedisLockerTimesOutAfterTTL(t *testing.T) {
	fake := newFakeRedis()
	fake.values[keyPrefix+"tx-1"] = "held"
	l := newRedisLocker(fake, 60*time.Millisecond)

	_, err := l.Acquire(context.Background(), "tx-1")
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestRedisLockerSurfacesErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.failSet = errors.New("connection refused")
	l := newRedisLocker(fake, time.Second)

	_, err := l.Acquire(context.Background(), "tx-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAcquired)

	fake.failSet = nil
	fake.failDel = errors.New("broken pipe")
	var reported error
	l.OnReleaseError = func(_ string, err error) { reported = err }
	release, err := l.Acquire(context.Background(), "tx-1")
	require.NoError(t, err)
	release()
	assert.EqualError(t, reported, "broken pipe")
}
