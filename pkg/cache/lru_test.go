package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billing/pkg/cache"
)

func TestLRU(t *testing.T) {
	t.Parallel()

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()
		c := cache.New[string, int](2, 0)
		c.Put("a", 1)
		c.Put("b", 2)
		_, _ = c.Get("a")
		c.Put("c", 3)

		_, ok := c.Get("b")
		assert.False(t, ok)
		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("expires entries", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		c := cache.New[string, string](4, time.Minute, cache.WithClock(func() time.Time { return now }))
		c.Put("k", "v")

		now = now.Add(59 * time.Second)
		v, ok := c.Get("k")
		assert.True(t, ok)
		assert.Equal(t, "v", v)

		now = now.Add(time.Second)
		_, ok = c.Get("k")
		assert.False(t, ok)
		assert.Zero(t, c.Len())
	})

	t.Run("put refreshes", func(t *testing.T) {
		t.Parallel()
		c := cache.New[string, string](1, 0)
		c.Put("k", "old")
		c.Put("k", "new")
		v, _ := c.Get("k")
		assert.Equal(t, "new", v)
		c.Remove("k")
		assert.Zero(t, c.Len())
	})

	t.Run("concurrent use", func(t *testing.T) {
		t.Parallel()
		c := cache.New[int, int](16, time.Hour)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range 100 {
					c.Put(i*100+j, j)
					c.Get(j)
				}
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, c.Len(), 16)
	})

	assert.Panics(t, func() { cache.New[string, int](0, 0) })
}
