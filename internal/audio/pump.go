package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"layeh.com/gopus"
)

// Volume is a 0-100 level shared between the command API and a running
// pump. Reads and writes are atomic so SetVolume never blocks on
// playback.
type Volume struct {
	level atomic.Int32
}

// NewVolume creates a volume at the given level, clamped to [0,100].
func NewVolume(level int) *Volume {
	v := &Volume{}
	v.Set(level)
	return v
}

// Set clamps level to [0,100] and returns the applied value.
func (v *Volume) Set(level int) int {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	v.level.Store(int32(level))
	return level
}

// Get returns the current level.
func (v *Volume) Get() int {
	return int(v.level.Load())
}

// Pump reads s16le PCM from src, scales it by vol, encodes 20ms Opus
// frames and writes them to sink until src ends or ctx is cancelled.
// A nil return means the stream played to its natural end.
func Pump(ctx context.Context, src io.Reader, sink Sink, vol *Volume) error {
	enc, err := gopus.NewEncoder(SampleRate, Channels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("error creating opus encoder: %w", err)
	}

	if err := sink.Speaking(true); err != nil {
		logrus.WithError(err).Debug("Error setting speaking state")
	}
	defer func() {
		if err := sink.Speaking(false); err != nil {
			logrus.WithError(err).Debug("Error clearing speaking state")
		}
	}()

	buf := make([]byte, frameBytes)
	pcm := make([]int16, FrameSize*Channels)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := io.ReadFull(src, buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				// Trailing partial frame, pad with silence.
				for i := n; i < frameBytes; i++ {
					buf[i] = 0
				}
			} else {
				return fmt.Errorf("error reading pcm: %w", err)
			}
		}

		scale := int32(vol.Get())
		for i := range pcm {
			s := int32(int16(binary.LittleEndian.Uint16(buf[2*i:]))) * scale / 100
			pcm[i] = int16(s)
		}

		frame, err := enc.Encode(pcm, FrameSize, maxOpusBytes)
		if err != nil {
			return fmt.Errorf("error encoding opus frame: %w", err)
		}
		if err := sink.WriteOpus(frame); err != nil {
			return fmt.Errorf("error writing opus frame: %w", err)
		}

		if n < frameBytes {
			return nil
		}
	}
}
