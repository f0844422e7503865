// Package player drives one guild's playback: it pulls from the
// queue, resolves streams, pumps frames to the voice sink, pre-buffers
// the next track and hosts the soundboard overlay swap.
package player

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/fankserver/discord-dj/internal/audio"
	"github.com/fankserver/discord-dj/internal/mixer"
	"github.com/fankserver/discord-dj/internal/queue"
	"github.com/fankserver/discord-dj/internal/track"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNothingPlaying is returned by operations that need an active
	// track.
	ErrNothingPlaying = errors.New("nothing is playing")

	// ErrOverlayActive is returned when a soundboard overlay is
	// requested while a clip is still being mixed in.
	ErrOverlayActive = errors.New("an overlay is already active")
)

// TrackResolver resolves a track to its audio byte stream.
type TrackResolver interface {
	Resolve(ctx context.Context, t *track.Track) (io.ReadCloser, error)
}

// Player is the per-guild playback state machine.
type Player struct {
	guildID  string
	queue    *queue.Queue
	sink     audio.Sink
	resolver TrackResolver
	mixer    mixer.Input
	decode   func(src io.Reader) (io.ReadCloser, error)
	volume   *audio.Volume
	now      func() time.Time

	mu          sync.Mutex
	state       State
	nowPlaying  *track.Track
	lastPlayed  *track.Track
	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	autoplay    bool

	gate    *gateReader
	cancel  context.CancelFunc
	closers []io.Closer // active playback resources, newest last

	overlay     io.ReadCloser
	overlayName string

	prebuf     *prebuffer
	prebufBusy bool

	// Guard flags consulted when the active pump winds down.
	transitioningToOverlay bool
	manuallySkipped        bool
	stopRequested          bool
}

// New creates a player for one guild, decoding resolved streams to PCM
// through ffmpeg at the given path.
func New(guildID string, q *queue.Queue, sink audio.Sink, resolver TrackResolver, mix mixer.Input, ffmpegPath string) *Player {
	return NewWithDecoder(guildID, q, sink, resolver, mix, func(src io.Reader) (io.ReadCloser, error) {
		return audio.DecodeReader(ffmpegPath, src)
	})
}

// NewWithDecoder creates a player with a custom source-to-PCM decoder.
// Pipelines whose sources already yield 48kHz stereo s16le can pass the
// stream through untouched.
func NewWithDecoder(guildID string, q *queue.Queue, sink audio.Sink, resolver TrackResolver, mix mixer.Input, decode func(src io.Reader) (io.ReadCloser, error)) *Player {
	return &Player{
		guildID:  guildID,
		queue:    q,
		sink:     sink,
		resolver: resolver,
		mixer:    mix,
		decode:   decode,
		volume:   audio.NewVolume(100),
		now:      time.Now,
		state:    StateIdle,
		autoplay: true,
	}
}

// apply runs the pure transition function and mutates state only on a
// legal event. Callers hold p.mu.
func (p *Player) apply(e Event) bool {
	next, ok := Transition(p.state, e)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"guild_id": p.guildID,
			"state":    p.state.String(),
			"event":    e.String(),
		}).Debug("Ignoring illegal playback event")
		return false
	}
	p.state = next
	return true
}

// State returns the current playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// NowPlaying returns the active track, or nil. While a soundboard clip
// is being mixed in, the label is the clip's; the music track's label
// is restored once the clip ends.
func (p *Player) NowPlaying() *track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nowPlaying != nil && p.overlayName != "" {
		labeled := *p.nowPlaying
		labeled.Title = p.overlayName
		return &labeled
	}
	return p.nowPlaying
}

// LastPlayed returns the most recently finished track, for replay.
func (p *Player) LastPlayed() *track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPlayed
}

// Volume returns the shared volume control for this guild.
func (p *Player) Volume() *audio.Volume {
	return p.volume
}

// Position reports elapsed played time: wall clock minus cumulative
// paused time.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nowPlaying == nil {
		return 0
	}
	now := p.now()
	paused := p.pausedTotal
	if p.state == StatePaused {
		paused += now.Sub(p.pausedAt)
	}
	return now.Sub(p.startedAt) - paused
}

// EnsurePlaying starts playback if the player is idle and the queue
// has a head. Safe to call after every enqueue.
func (p *Player) EnsurePlaying() {
	p.mu.Lock()
	// A fresh enqueue supersedes any pending stop, so a pump that is
	// still winding down advances to the new head instead of parking
	// it.
	p.stopRequested = false
	if p.state != StateIdle {
		p.mu.Unlock()
		go p.maybePrebuffer()
		return
	}
	next := p.queue.Dequeue()
	if next == nil {
		p.mu.Unlock()
		return
	}
	attempts := p.queue.Len() + 1
	p.apply(EventLoad)
	p.mu.Unlock()

	go p.load(next, attempts)
}

// load resolves a track and starts pumping it. On failure it drops the
// track and recursively attempts the next one, bounded so an exhausted
// queue terminates in Idle instead of looping.
func (p *Player) load(t *track.Track, attempts int) {
	pcm, src, err := p.takePrebufferedOrResolve(t)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"guild_id": p.guildID,
			"title":    t.Title,
		}).Warn("Dropping track, stream resolution failed")

		p.mu.Lock()
		p.apply(EventLoadFailed)
		var next *track.Track
		if attempts > 1 {
			if next = p.queue.Dequeue(); next != nil {
				p.apply(EventLoad)
			}
		}
		p.mu.Unlock()

		if next != nil {
			p.load(next, attempts-1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	gate := newGateReader(pcm)

	p.mu.Lock()
	if p.stopRequested || !p.apply(EventLoaded) {
		// Stopped while loading.
		p.apply(EventLoadFailed)
		p.mu.Unlock()
		cancel()
		pcm.Close()
		if src != nil {
			src.Close()
		}
		return
	}
	p.nowPlaying = t
	p.startedAt = p.now()
	p.pausedTotal = 0
	p.gate = gate
	p.cancel = cancel
	p.closers = nil
	if src != nil {
		p.closers = append(p.closers, src)
	}
	p.closers = append(p.closers, pcm)
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"guild_id": p.guildID,
		"title":    t.Title,
	}).Info("Now playing")

	go p.maybePrebuffer()
	go func() {
		err := audio.Pump(ctx, gate, p.sink, p.volume)
		if err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).WithField("guild_id", p.guildID).Warn("Playback ended with error")
		}
		p.onEnded()
	}()
}

// takePrebufferedOrResolve consumes a matching pre-buffer slot, or
// resolves and starts a fresh decode.
func (p *Player) takePrebufferedOrResolve(t *track.Track) (io.ReadCloser, io.Closer, error) {
	p.mu.Lock()
	if p.prebuf != nil && p.prebuf.track.ID == t.ID {
		pb := p.prebuf
		p.prebuf = nil
		p.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"guild_id": p.guildID,
			"title":    t.Title,
		}).Debug("Using pre-buffered stream")
		return pb.pcm, pb.source, nil
	}
	// Any leftover pre-buffer is for a different head; drop it.
	stale := p.prebuf
	p.prebuf = nil
	p.mu.Unlock()
	stale.discard()

	src, err := p.resolver.Resolve(context.Background(), t)
	if err != nil {
		return nil, nil, err
	}
	pcm, err := p.decode(src)
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	return pcm, src, nil
}

// onEnded runs after the pump returns, naturally or after stop/skip.
func (p *Player) onEnded() {
	p.mu.Lock()
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i].Close()
	}
	p.closers = nil
	p.overlay = nil
	p.overlayName = ""
	if p.nowPlaying != nil {
		p.lastPlayed = p.nowPlaying
	}
	p.nowPlaying = nil
	p.gate = nil
	p.cancel = nil
	p.transitioningToOverlay = false
	p.manuallySkipped = false
	p.apply(EventEnded)

	advance := p.autoplay && !p.stopRequested
	var next *track.Track
	var attempts int
	if advance {
		if next = p.queue.Dequeue(); next != nil {
			attempts = p.queue.Len() + 1
			p.apply(EventLoad)
		}
	}
	p.mu.Unlock()

	if next != nil {
		go p.load(next, attempts)
	}
}

// Skip removes the current track plus up to n-1 queued tracks and
// stops the active pump so playback auto-advances. It returns the
// removed titles in removal order.
func (p *Player) Skip(n int) ([]string, error) {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	if p.nowPlaying == nil {
		p.mu.Unlock()
		return nil, ErrNothingPlaying
	}
	titles := []string{p.nowPlaying.Title}
	for _, t := range p.queue.DequeueN(n - 1) {
		titles = append(titles, t.Title)
	}
	p.manuallySkipped = true
	p.stopActiveLocked()
	p.mu.Unlock()
	return titles, nil
}

// Interrupt stops the current track without touching the queue, so
// playback advances to the head. Used for direct clip playback.
func (p *Player) Interrupt() {
	p.mu.Lock()
	p.stopActiveLocked()
	p.mu.Unlock()
}

// Stop halts playback, discards the pre-buffer and terminates any
// overlay subprocess. It reports whether anything was playing.
func (p *Player) Stop() bool {
	p.mu.Lock()
	wasActive := p.state != StateIdle
	p.stopRequested = true
	p.stopActiveLocked()
	stale := p.prebuf
	p.prebuf = nil
	overlay := p.overlay
	p.mu.Unlock()

	stale.discard()
	if overlay != nil {
		_ = overlay.Close()
	}
	return wasActive
}

// stopActiveLocked cancels the running pump. Callers hold p.mu.
func (p *Player) stopActiveLocked() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.gate != nil {
		p.gate.release()
	}
	// Closing the resources unblocks a pump stuck in a network read.
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i].Close()
	}
}

// TogglePause gates or releases frame delivery and keeps the pause
// accounting: entering Paused records the pause start, leaving it adds
// the elapsed pause to the cumulative total.
func (p *Player) TogglePause() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StatePlaying:
		if !p.apply(EventPause) {
			return false, ErrNothingPlaying
		}
		p.pausedAt = p.now()
		p.gate.pause()
		return true, nil
	case StatePaused:
		if !p.apply(EventResume) {
			return true, ErrNothingPlaying
		}
		p.pausedTotal += p.now().Sub(p.pausedAt)
		p.gate.resume()
		return false, nil
	default:
		return false, ErrNothingPlaying
	}
}

// Overlay mixes a clip over the current track by swapping the playback
// resource for the ducking pipeline's output. Once the pipeline starts,
// it owns the clip and closes it after feeding; the caller keeps
// ownership only when Overlay fails before that.
func (p *Player) Overlay(clipName string, clip io.Reader, clipDuration time.Duration) error {
	p.mu.Lock()
	if p.state != StatePlaying || p.nowPlaying == nil {
		p.mu.Unlock()
		return ErrNothingPlaying
	}
	if p.overlayName != "" {
		p.mu.Unlock()
		return ErrOverlayActive
	}
	if !p.apply(EventOverlayStart) {
		p.mu.Unlock()
		return ErrNothingPlaying
	}
	p.transitioningToOverlay = true
	gate := p.gate
	// The mixer takes over the most recent playback resource as its
	// music input.
	music := p.closers[len(p.closers)-1].(io.ReadCloser)
	p.mu.Unlock()

	// Hold back direct reads while the pipeline spins up, so the
	// mixer gets the remaining music bytes.
	gate.pause()
	proc, err := p.mixer.Mix(music, clip)
	if err != nil {
		p.mu.Lock()
		p.transitioningToOverlay = false
		p.apply(EventOverlayReady)
		p.mu.Unlock()
		gate.resume()
		return err
	}

	p.mu.Lock()
	if !p.transitioningToOverlay {
		// The track ended while the pipeline was spinning up; there is
		// no music left to duck and nobody else will reap the process.
		p.mu.Unlock()
		_ = proc.Close()
		return ErrNothingPlaying
	}
	p.overlay = proc
	p.overlayName = clipName
	p.closers = append(p.closers, proc)
	p.transitioningToOverlay = false
	p.apply(EventOverlayReady)
	p.mu.Unlock()

	gate.swap(proc)
	gate.resume()

	// Restore the music label once the clip has played out. Without a
	// probed duration, fall back to a generous window.
	restoreAfter := clipDuration
	if restoreAfter <= 0 {
		restoreAfter = 10 * time.Second
	}
	time.AfterFunc(restoreAfter, func() {
		p.mu.Lock()
		if p.overlay == proc {
			p.overlayName = ""
		}
		p.mu.Unlock()
	})

	logrus.WithFields(logrus.Fields{
		"guild_id": p.guildID,
		"clip":     clipName,
	}).Info("Soundboard overlay active")
	return nil
}

// maybePrebuffer opportunistically prepares the queue head's stream
// while something is playing, so skip and natural advance start with
// near-zero latency. Only remote tracks are worth pre-buffering; clip
// streams open instantly.
func (p *Player) maybePrebuffer() {
	p.mu.Lock()
	if p.state != StatePlaying || p.prebufBusy {
		p.mu.Unlock()
		return
	}
	head := p.queue.Head()
	if head == nil || !head.IsRemote() {
		p.mu.Unlock()
		return
	}
	if p.prebuf != nil && p.prebuf.track.ID == head.ID {
		p.mu.Unlock()
		return
	}
	stale := p.prebuf
	p.prebuf = nil
	p.prebufBusy = true
	p.mu.Unlock()

	stale.discard()

	src, err := p.resolver.Resolve(context.Background(), head)
	if err != nil {
		logrus.WithError(err).WithField("guild_id", p.guildID).Debug("Pre-buffer resolution failed")
		p.mu.Lock()
		p.prebufBusy = false
		p.mu.Unlock()
		return
	}
	pcm, err := p.decode(src)
	if err != nil {
		src.Close()
		p.mu.Lock()
		p.prebufBusy = false
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	p.prebufBusy = false
	current := p.queue.Head()
	if p.state != StatePlaying || current == nil || current.ID != head.ID {
		// The head changed while we were resolving: discard and
		// re-fetch on demand rather than reconciling.
		p.mu.Unlock()
		pcm.Close()
		src.Close()
		return
	}
	p.prebuf = &prebuffer{track: head, source: src, pcm: pcm}
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"guild_id": p.guildID,
		"title":    head.Title,
	}).Debug("Pre-buffered next track")
}

// prebuffer is the prepared-next-track slot: the resolved byte stream
// plus its already-running decode subprocess.
type prebuffer struct {
	track  *track.Track
	source io.ReadCloser
	pcm    io.ReadCloser
}

// discard kills the in-flight decode. Safe on nil.
func (pb *prebuffer) discard() {
	if pb == nil {
		return
	}
	_ = pb.pcm.Close()
	_ = pb.source.Close()
}
