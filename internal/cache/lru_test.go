package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_Basic(t *testing.T) {
	c := NewLRU[string, int](2, nil)

	c.Add("a", 1)
	c.Add("b", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 2, c.Capacity())
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := NewLRU(2, func(k string, _ int) { evicted = append(evicted, k) })

	c.Add("a", 1)
	c.Add("b", 2)
	c.Get("a") // b is now least recent

	assert.Equal(t, 1, c.Add("c", 3))
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"c", "a"}, c.Keys())

	_, ok := c.Peek("b")
	assert.False(t, ok)
}

func TestLRU_PeekDoesNotPromote(t *testing.T) {
	var evicted []string
	c := NewLRU(2, func(k string, _ int) { evicted = append(evicted, k) })
	c.Add("a", 1)
	c.Add("b", 2)

	v, ok := c.Peek("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Add("c", 3)
	assert.Equal(t, []string{"a"}, evicted)
}

func TestLRU_UpdateExisting(t *testing.T) {
	c := NewLRU[string, int](2, func(string, int) { t.Fatal("unexpected eviction") })
	c.Add("a", 1)
	c.Add("b", 2)
	assert.Zero(t, c.Add("a", 10))

	v, _ := c.Get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_RemoveAndDrain(t *testing.T) {
	c := NewLRU[int, string](4, func(int, string) { t.Fatal("unexpected eviction") })
	for i := range 4 {
		c.Add(i, string(rune('a'+i)))
	}

	v, ok := c.Remove(1)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = c.Remove(1)
	assert.False(t, ok)

	assert.Equal(t, []string{"d", "c", "a"}, c.Drain())
	assert.Zero(t, c.Len())
}

func TestLRU_MinimumCapacity(t *testing.T) {
	c := NewLRU[int, int](0, nil)
	c.Add(1, 1)
	c.Add(2, 2)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []int{2}, c.Keys())
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[int, int](16, nil)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 1000 {
				k := (g*31 + i) % 64
				c.Add(k, i)
				c.Get(k)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}
