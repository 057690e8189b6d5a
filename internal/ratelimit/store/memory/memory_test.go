package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrSetsTTLOnCreation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewWithClock(func() time.Time { return now })
	ctx := context.Background()

	v, err := s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	// Advance past the TTL that the first increment anchored.
	now = now.Add(61 * time.Second)
	v, err = s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v, "expired counter restarts from zero")
}

func TestIncrIsAtomicUnderConcurrency(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Incr(ctx, "shared", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(50), v)
}

func TestWindowCountPrunesOldEntries(t *testing.T) {
	s := New()
	ctx := context.Background()
	window := time.Minute
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		n, err := s.WindowCount(ctx, "w", fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second), window)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), n)
	}

	// One millisecond past the first entry's horizon it drops out of view.
	n, err := s.WindowCount(ctx, "w", "late", base.Add(window+time.Millisecond), window)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "first entry pruned, two survivors plus the new one")
}

func TestCompareAndSet(t *testing.T) {
	s := New()
	ctx := context.Background()

	t.Run("empty expected creates", func(t *testing.T) {
		ok, err := s.CompareAndSet(ctx, "c", "", "closed", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stale expected loses", func(t *testing.T) {
		ok, err := s.CompareAndSet(ctx, "c", "open", "half_open", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("matching expected wins", func(t *testing.T) {
		ok, err := s.CompareAndSet(ctx, "c", "closed", "open", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		v, err := s.GetString(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, "open", v)
	})

	t.Run("exactly one concurrent winner", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "race"))
		var wg sync.WaitGroup
		wins := make(chan bool, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.CompareAndSet(ctx, "race", "", "winner", time.Minute)
				assert.NoError(t, err)
				wins <- ok
			}()
		}
		wg.Wait()
		close(wins)

		winners := 0
		for ok := range wins {
			if ok {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Delete(ctx, "absent"))
	_, err := s.Incr(ctx, "present", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "present"))
	v, err := s.Get(ctx, "present")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}
