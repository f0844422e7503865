// Package queue holds the ordered list of pending tracks for one
// guild. All mutation goes through the queue's lock so concurrent
// commands cannot corrupt ordering.
package queue

import (
	"fmt"
	"sync"

	"github.com/fankserver/discord-dj/internal/track"
)

// Queue is a FIFO of pending tracks. Safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	tracks []*track.Track
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends t and returns the new length.
func (q *Queue) Enqueue(t *track.Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, t)
	return len(q.tracks)
}

// EnqueueFront puts t at the head, ahead of everything pending.
func (q *Queue) EnqueueFront(t *track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append([]*track.Track{t}, q.tracks...)
}

// Dequeue removes and returns the head, or nil if empty.
func (q *Queue) Dequeue() *track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return nil
	}
	t := q.tracks[0]
	q.tracks = q.tracks[1:]
	return t
}

// Head returns the head without removing it, or nil if empty.
func (q *Queue) Head() *track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return nil
	}
	return q.tracks[0]
}

// DequeueN removes and returns up to n tracks from the head.
func (q *Queue) DequeueN(n int) []*track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.tracks) {
		n = len(q.tracks)
	}
	if n <= 0 {
		return nil
	}
	removed := make([]*track.Track, n)
	copy(removed, q.tracks[:n])
	q.tracks = q.tracks[n:]
	return removed
}

// RemoveAt removes and returns the track at index (0-based).
func (q *Queue) RemoveAt(index int) (*track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.tracks) {
		return nil, fmt.Errorf("index %d out of range for queue of %d", index, len(q.tracks))
	}
	t := q.tracks[index]
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	return t, nil
}

// Update replaces the queued track with the given ID by a modified
// copy. The original is never mutated, so readers holding the old
// pointer stay consistent. Returns false when the track is no longer
// queued.
func (q *Queue) Update(id string, fn func(t track.Track) track.Track) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.tracks {
		if t.ID == id {
			updated := fn(*t)
			q.tracks[i] = &updated
			return true
		}
	}
	return false
}

// Clear empties the queue and returns how many tracks were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.tracks)
	q.tracks = nil
	return n
}

// Len returns the number of pending tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

// Snapshot returns a copy of the pending tracks in order.
func (q *Queue) Snapshot() []*track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*track.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Restore replaces the queue contents, used when re-establishing a
// session from a durable snapshot.
func (q *Queue) Restore(tracks []*track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = make([]*track.Track, len(tracks))
	copy(q.tracks, tracks)
}
