package player

import "fmt"

// State is the playback state of one guild session.
type State int

const (
	// StateIdle means nothing is playing and nothing is loading.
	StateIdle State = iota
	// StateLoading means the queue head is being resolved.
	StateLoading
	// StatePlaying means frames are flowing to the sink.
	StatePlaying
	// StatePaused means playback is gated mid-track.
	StatePaused
	// StateTransitioning means the playback resource is being swapped
	// for a soundboard overlay.
	StateTransitioning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateTransitioning:
		return "transitioning"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is a typed input to the playback state machine. Audio-output
// callbacks are delivered as events rather than mutating state in
// place.
type Event int

const (
	// EventLoad begins resolving the queue head.
	EventLoad Event = iota
	// EventLoaded reports that the stream is ready and pumping.
	EventLoaded
	// EventLoadFailed reports that resolution failed.
	EventLoadFailed
	// EventEnded reports the active pump finished, naturally or after
	// a stop/skip.
	EventEnded
	// EventPause gates a playing track.
	EventPause
	// EventResume releases a paused track.
	EventResume
	// EventOverlayStart begins swapping in the overlay mix.
	EventOverlayStart
	// EventOverlayReady completes the swap back to playing.
	EventOverlayReady
)

func (e Event) String() string {
	switch e {
	case EventLoad:
		return "load"
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventEnded:
		return "ended"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventOverlayStart:
		return "overlay_start"
	case EventOverlayReady:
		return "overlay_ready"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Transition is the pure state transition function. It returns the
// next state and whether the event is legal in the current state;
// illegal events leave the machine untouched.
func Transition(s State, e Event) (State, bool) {
	switch s {
	case StateIdle:
		if e == EventLoad {
			return StateLoading, true
		}
	case StateLoading:
		switch e {
		case EventLoaded:
			return StatePlaying, true
		case EventLoadFailed:
			return StateIdle, true
		}
	case StatePlaying:
		switch e {
		case EventEnded:
			return StateIdle, true
		case EventPause:
			return StatePaused, true
		case EventOverlayStart:
			return StateTransitioning, true
		}
	case StatePaused:
		switch e {
		case EventResume:
			return StatePlaying, true
		case EventEnded:
			return StateIdle, true
		}
	case StateTransitioning:
		switch e {
		case EventOverlayReady:
			return StatePlaying, true
		case EventEnded:
			return StateIdle, true
		}
	}
	return s, false
}
