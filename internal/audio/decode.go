package audio

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

// PCMStream is a running decode subprocess yielding interleaved s16le
// 48kHz stereo PCM on its reader. Close kills the subprocess; it is
// safe to call more than once.
type PCMStream struct {
	r        io.ReadCloser
	cmd      *exec.Cmd
	closeErr error
	once     sync.Once
}

// DecodeURL starts an ffmpeg subprocess reading directly from a URL.
// ffmpeg handles reconnects on flaky CDN sockets itself.
func DecodeURL(ffmpegPath, url string) (*PCMStream, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
		"-i", url,
	}
	args = append(args, pcmOutputArgs()...)
	return startDecoder(ffmpegPath, args, nil)
}

// DecodeReader starts an ffmpeg subprocess decoding from an arbitrary
// byte stream (a clip from storage, or an HTTP body already opened by
// the resolver).
func DecodeReader(ffmpegPath string, input io.Reader) (*PCMStream, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
	}
	args = append(args, pcmOutputArgs()...)
	return startDecoder(ffmpegPath, args, input)
}

func pcmOutputArgs() []string {
	return []string{
		"-vn",
		"-f", "s16le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		"pipe:1",
	}
}

func startDecoder(ffmpegPath string, args []string, stdin io.Reader) (*PCMStream, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	cmd := exec.Command(ffmpegPath, args...) // #nosec G204 - args are engine-built, not caller input
	cmd.Stdin = stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating decoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting ffmpeg: %w", err)
	}
	logrus.WithField("pid", cmd.Process.Pid).Debug("Decoder subprocess started")
	return &PCMStream{r: stdout, cmd: cmd}, nil
}

// Read implements io.Reader over the decoded PCM.
func (p *PCMStream) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

// Close kills the subprocess and reaps it.
func (p *PCMStream) Close() error {
	p.once.Do(func() {
		_ = p.r.Close()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		err := p.cmd.Wait()
		// Kill shows up as a signal exit; that is the expected path.
		if exitErr, ok := err.(*exec.ExitError); ok {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				err = nil
			}
		}
		p.closeErr = err
	})
	return p.closeErr
}
