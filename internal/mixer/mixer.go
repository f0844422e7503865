// Package mixer overlays a short clip onto ongoing playback by
// ducking the music under the clip. The contract is two byte streams
// in, one mixed PCM stream out; this implementation delegates the DSP
// to an ffmpeg subprocess, with the clip delivered on an extra file
// descriptor next to the music on stdin.
package mixer

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/fankserver/discord-dj/internal/audio"
	"github.com/sirupsen/logrus"
)

// Input mixes a clip over a music stream and yields one ducked+mixed
// stream. Out-of-process mixing is one valid implementation;
// in-process DSP would satisfy the same contract. A successful Mix
// takes ownership of clip: if it implements io.Closer it is closed
// once fully fed. On error the caller keeps ownership.
type Input interface {
	Mix(music, clip io.Reader) (io.ReadCloser, error)
}

// FFmpeg implements Input via an ffmpeg subprocess.
type FFmpeg struct {
	path    string
	profile Profile
}

// NewFFmpeg creates a mixer using the binary at path ("ffmpeg" when
// empty).
func NewFFmpeg(path string, profile Profile) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path, profile: profile}
}

// Mix starts the ducking pipeline. The caller reads interleaved s16le
// 48kHz stereo PCM from the returned process and must Close it, which
// kills the subprocess if it is still running.
func (f *FFmpeg) Mix(music, clip io.Reader) (io.ReadCloser, error) {
	clipR, clipW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("error creating clip pipe: %w", err)
	}

	// The music arrives already decoded (the remainder of the active
	// track's PCM), the clip arrives in its container format and is
	// probed.
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprint(audio.SampleRate),
		"-ac", fmt.Sprint(audio.Channels),
		"-i", "pipe:0", // music
		"-i", "pipe:3", // clip, via ExtraFiles
		"-filter_complex", f.profile.FilterGraph(),
		"-map", "[mixed]",
		"-f", "s16le",
		"-ar", fmt.Sprint(audio.SampleRate),
		"-ac", fmt.Sprint(audio.Channels),
		"pipe:1",
	}
	cmd := exec.Command(f.path, args...) // #nosec G204 - args are engine-built
	cmd.Stdin = music
	cmd.ExtraFiles = []*os.File{clipR}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		clipR.Close()
		clipW.Close()
		return nil, fmt.Errorf("error creating mixer pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		clipR.Close()
		clipW.Close()
		return nil, fmt.Errorf("error starting mixer: %w", err)
	}
	// The parent's copy of the read end must close so the subprocess
	// sees EOF when the clip writer finishes.
	clipR.Close()

	logrus.WithField("pid", cmd.Process.Pid).Debug("Mixer subprocess started")

	p := &Process{r: stdout, cmd: cmd}
	go feedClip(clipW, clip)
	return p, nil
}

// feedClip streams the clip into the pipeline, closing the write end
// so the subprocess sees EOF and closing the clip itself once it has
// been fed.
func feedClip(dst io.WriteCloser, clip io.Reader) {
	defer dst.Close()
	if _, err := io.Copy(dst, clip); err != nil {
		logrus.WithError(err).Debug("Error feeding clip to mixer")
	}
	if c, ok := clip.(io.Closer); ok {
		_ = c.Close()
	}
}

// Process is a running mix pipeline. It reads as the mixed PCM stream.
type Process struct {
	r    io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
	err  error
}

// Read implements io.Reader over the mixed output.
func (p *Process) Read(b []byte) (int, error) { return p.r.Read(b) }

// Close terminates the pipeline. Safe to call more than once.
func (p *Process) Close() error {
	p.once.Do(func() {
		_ = p.r.Close()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		err := p.cmd.Wait()
		if exitErr, ok := err.(*exec.ExitError); ok {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				err = nil
			}
		}
		p.err = err
	})
	return p.err
}
