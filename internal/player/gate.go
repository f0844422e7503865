package player

import (
	"io"
	"sync"
)

// gateReader wraps the PCM source so pausing stops frame delivery
// without tearing down the decode subprocess, and so the overlay mix
// can replace the source mid-track. Reads block while the gate is
// closed.
type gateReader struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
	done   bool

	// ioMu serializes underlying reads against source swaps.
	ioMu sync.Mutex
	r    io.Reader
}

func newGateReader(r io.Reader) *gateReader {
	g := &gateReader{r: r}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *gateReader) Read(b []byte) (int, error) {
	g.mu.Lock()
	for g.paused && !g.done {
		g.cond.Wait()
	}
	done := g.done
	g.mu.Unlock()
	if done {
		return 0, io.EOF
	}

	g.ioMu.Lock()
	defer g.ioMu.Unlock()
	if g.isDone() {
		return 0, io.EOF
	}
	return g.r.Read(b)
}

func (g *gateReader) isDone() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

func (g *gateReader) pause() {
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

func (g *gateReader) resume() {
	g.mu.Lock()
	g.paused = false
	g.mu.Unlock()
	g.cond.Broadcast()
}

// release unblocks any waiting reader permanently; used on stop so a
// paused pump can wind down.
func (g *gateReader) release() {
	g.mu.Lock()
	g.done = true
	g.mu.Unlock()
	g.cond.Broadcast()
}

// swap replaces the underlying source once any in-flight read has
// drained; used when the overlay mix takes over the playback resource.
func (g *gateReader) swap(r io.Reader) {
	g.ioMu.Lock()
	g.r = r
	g.ioMu.Unlock()
}
