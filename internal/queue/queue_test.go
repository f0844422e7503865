package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fankserver/discord-dj/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkTrack(title string) *track.Track {
	return track.New(title, "https://youtube.example/watch?v="+title, track.SourceYouTube, track.Requester{})
}

func TestEnqueueDequeueOrder(t *testing.T) {
	q := New()
	assert.Equal(t, 1, q.Enqueue(mkTrack("a")))
	assert.Equal(t, 2, q.Enqueue(mkTrack("b")))
	assert.Equal(t, 3, q.Enqueue(mkTrack("c")))

	assert.Equal(t, "a", q.Dequeue().Title)
	assert.Equal(t, "b", q.Dequeue().Title)
	assert.Equal(t, "c", q.Dequeue().Title)
	assert.Nil(t, q.Dequeue())
}

func TestEnqueueFront(t *testing.T) {
	q := New()
	q.Enqueue(mkTrack("b"))
	q.EnqueueFront(mkTrack("a"))

	assert.Equal(t, "a", q.Head().Title)
	assert.Equal(t, 2, q.Len())
}

func TestDequeueNClamps(t *testing.T) {
	q := New()
	q.Enqueue(mkTrack("a"))
	q.Enqueue(mkTrack("b"))

	removed := q.DequeueN(5)
	require.Len(t, removed, 2)
	assert.Equal(t, "a", removed[0].Title)
	assert.Equal(t, "b", removed[1].Title)
	assert.Equal(t, 0, q.Len())

	assert.Nil(t, q.DequeueN(0))
}

func TestRemoveAt(t *testing.T) {
	q := New()
	q.Enqueue(mkTrack("a"))
	q.Enqueue(mkTrack("b"))
	q.Enqueue(mkTrack("c"))

	removed, err := q.RemoveAt(1)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.Title)
	assert.Equal(t, 2, q.Len())

	_, err = q.RemoveAt(5)
	assert.Error(t, err)
	_, err = q.RemoveAt(-1)
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	q := New()
	q.Enqueue(mkTrack("a"))
	q.Enqueue(mkTrack("b"))

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Clear())
}

func TestSnapshotRestore(t *testing.T) {
	q := New()
	q.Enqueue(mkTrack("a"))
	q.Enqueue(mkTrack("b"))

	snap := q.Snapshot()
	q.Clear()
	q.Restore(snap)

	require.Equal(t, 2, q.Len())
	assert.Equal(t, "a", q.Head().Title)

	// The snapshot is a copy; mutating it does not touch the queue.
	snap[0] = mkTrack("z")
	assert.Equal(t, "a", q.Head().Title)
}

func TestUpdateReplacesByCopy(t *testing.T) {
	q := New()
	original := mkTrack("placeholder")
	q.Enqueue(original)

	ok := q.Update(original.ID, func(t track.Track) track.Track {
		t.Title = "resolved"
		return t
	})
	require.True(t, ok)

	assert.Equal(t, "resolved", q.Head().Title)
	// The original pointer is untouched; readers holding it stay
	// consistent.
	assert.Equal(t, "placeholder", original.Title)

	assert.False(t, q.Update("no-such-id", func(t track.Track) track.Track { return t }))
}

func TestConcurrentMutation(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(mkTrack(fmt.Sprintf("t-%d", i)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, q.Len())

	wg = sync.WaitGroup{}
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.DequeueN(2)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, q.Len())
}
