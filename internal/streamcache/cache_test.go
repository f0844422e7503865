package streamcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMiss(t *testing.T) {
	c := New(0, 0)
	url, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, url)
}

func TestPutGet(t *testing.T) {
	c := New(time.Hour, 10)
	c.Put("video-1", "https://cdn.example/stream-1")

	url, ok := c.Get("video-1")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example/stream-1", url)
}

func TestExpiredEntryNeverReturned(t *testing.T) {
	c := New(time.Hour, 10)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Put("video-1", "https://cdn.example/stream-1")

	// One second before expiry it is still served.
	now = now.Add(time.Hour - time.Second)
	_, ok := c.Get("video-1")
	assert.True(t, ok)

	// At expiry it is gone and the entry is swept.
	now = now.Add(time.Second)
	_, ok = c.Get("video-1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Hour, 3)
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("key-%d", i), fmt.Sprintf("url-%d", i))
	}
	c.Put("key-3", "url-3")

	_, ok := c.Get("key-0")
	assert.False(t, ok, "oldest entry should have been evicted")
	for i := 1; i <= 3; i++ {
		_, ok := c.Get(fmt.Sprintf("key-%d", i))
		assert.True(t, ok)
	}
	assert.Equal(t, 3, c.Len())
}

func TestRePutRefreshesExpiry(t *testing.T) {
	c := New(time.Hour, 10)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Put("video-1", "url-a")
	now = now.Add(30 * time.Minute)
	c.Put("video-1", "url-b")

	now = now.Add(45 * time.Minute)
	url, ok := c.Get("video-1")
	require.True(t, ok)
	assert.Equal(t, "url-b", url)
	assert.Equal(t, 1, c.Len())
}

func TestEvict(t *testing.T) {
	c := New(time.Hour, 10)
	c.Put("video-1", "url")
	c.Evict("video-1")
	_, ok := c.Get("video-1")
	assert.False(t, ok)

	// Evicting an absent key is a no-op.
	c.Evict("video-2")
}
