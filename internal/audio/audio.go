// Package audio converts resolved byte streams into Opus frames for a
// voice sink. Decoding to PCM is done by an ffmpeg subprocess so a
// corrupt stream can only fail the in-flight track, never the engine.
package audio

// Audio configuration (fixed by Discord voice).
const (
	SampleRate = 48000
	Channels   = 2
	FrameSize  = 960 // samples per channel, 20ms @ 48kHz

	frameBytes   = FrameSize * Channels * 2 // s16le
	maxOpusBytes = 1400
)

// Sink is the output end of a voice connection: it accepts encoded
// Opus frames at the 20ms cadence. Implemented by the discordgo
// connection wrapper and by test fakes.
type Sink interface {
	// Speaking toggles the speaking indicator before/after a burst
	// of frames.
	Speaking(on bool) error
	// WriteOpus delivers one encoded frame. It may block to apply
	// backpressure at the send cadence.
	WriteOpus(frame []byte) error
}
