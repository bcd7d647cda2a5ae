package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	c := New(Config{Enabled: false})
	c.Set(Key("acme", "widgets", VariantList, "x"), 42, "acme", "widgets")
	_, ok := c.Get(Key("acme", "widgets", VariantList, "x"), "acme", "widgets")
	require.False(t, ok)
}

func TestSetGetRoundTrip(t *testing.T) {
	c := New(Config{Enabled: true, SlidingExpiration: time.Minute, AbsoluteExpiration: time.Minute})
	k := Key("acme", "widgets", VariantList, HashParameters([]byte("{}")))
	c.Set(k, []int{1, 2, 3}, "acme", "widgets")
	v, ok := c.Get(k, "acme", "widgets")
	require.True(t, ok)
	require.Equal(t, []int{1, 2, 3}, v)
}

func TestInvalidateStalesEntriesForThatCollectionOnly(t *testing.T) {
	c := New(Config{Enabled: true, SlidingExpiration: time.Minute, AbsoluteExpiration: time.Minute})
	k1 := Key("acme", "widgets", VariantList, "a")
	k2 := Key("acme", "gadgets", VariantList, "a")
	c.Set(k1, 1, "acme", "widgets")
	c.Set(k2, 2, "acme", "gadgets")

	c.Invalidate("acme", "widgets")

	_, ok := c.Get(k1, "acme", "widgets")
	require.False(t, ok)
	v2, ok := c.Get(k2, "acme", "gadgets")
	require.True(t, ok)
	require.Equal(t, 2, v2)
}

func TestInvalidateDatabaseStalesEveryCollection(t *testing.T) {
	c := New(Config{Enabled: true, SlidingExpiration: time.Minute, AbsoluteExpiration: time.Minute})
	k1 := Key("acme", "widgets", VariantList, "a")
	k2 := Key("acme", "gadgets", VariantList, "a")
	c.Set(k1, 1, "acme", "widgets")
	c.Set(k2, 2, "acme", "gadgets")

	c.InvalidateDatabase("acme")

	_, ok := c.Get(k1, "acme", "widgets")
	require.False(t, ok)
	_, ok = c.Get(k2, "acme", "gadgets")
	require.False(t, ok)
}

func TestAbsoluteExpirationEvictsEvenWithoutAccess(t *testing.T) {
	c := New(Config{Enabled: true, SlidingExpiration: time.Hour, AbsoluteExpiration: time.Millisecond})
	k := Key("acme", "widgets", VariantCount, "a")
	c.Set(k, 7, "acme", "widgets")
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(k, "acme", "widgets")
	require.False(t, ok)
}

func TestMaxEntriesEvictsLeastRecentlyHit(t *testing.T) {
	c := New(Config{Enabled: true, SlidingExpiration: time.Minute, AbsoluteExpiration: time.Minute, MaxEntries: 2})
	c.Set(Key("a", "c", VariantList, "1"), 1, "a", "c")
	time.Sleep(time.Millisecond)
	c.Set(Key("a", "c", VariantList, "2"), 2, "a", "c")
	time.Sleep(time.Millisecond)
	c.Set(Key("a", "c", VariantList, "3"), 3, "a", "c")
	require.LessOrEqual(t, c.Len(), 2)
	_, ok := c.Get(Key("a", "c", VariantList, "1"), "a", "c")
	require.False(t, ok)
}
