package mixer

import (
	"bytes"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackedClip records whether it was closed.
type trackedClip struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func (c *trackedClip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *trackedClip) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestFeedClipClosesClipWhenDrained(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	clip := &trackedClip{Reader: bytes.NewReader([]byte("clip-bytes"))}
	done := make(chan struct{})
	go func() {
		feedClip(w, clip)
		close(done)
	}()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "clip-bytes", string(data))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not finish")
	}
	assert.True(t, clip.isClosed(), "clip must be released after feeding")
}

func TestFeedClipClosesClipOnWriteFailure(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	// The reading side goes away first, as when the subprocess dies
	// mid-clip.
	require.NoError(t, r.Close())

	clip := &trackedClip{Reader: bytes.NewReader(make([]byte, 1<<20))}
	feedClip(w, clip)
	assert.True(t, clip.isClosed())
}
