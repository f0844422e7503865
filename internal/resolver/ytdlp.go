package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// YtDlp shells out to the yt-dlp extraction tool. Every call runs an
// isolated subprocess under a deadline; a crashed extractor fails only
// the in-flight operation.
type YtDlp struct {
	path    string
	timeout time.Duration
}

// NewYtDlp creates a wrapper for the binary at path ("yt-dlp" when
// empty) with a per-invocation timeout.
func NewYtDlp(path string, timeout time.Duration) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YtDlp{path: path, timeout: timeout}
}

// Metadata is the subset of extractor output the engine uses.
type Metadata struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	URL      string  `json:"webpage_url"`
}

// PlaylistEntry is one item of a flat playlist enumeration.
type PlaylistEntry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// ExtractStreamURL asks the extractor for a direct, time-limited audio
// stream URL.
func (y *YtDlp) ExtractStreamURL(ctx context.Context, sourceURL string) (string, error) {
	out, err := y.run(ctx, "--no-playlist", "-f", "bestaudio/best", "-g", sourceURL)
	if err != nil {
		return "", fmt.Errorf("error extracting stream url: %w", err)
	}
	direct := strings.TrimSpace(string(out))
	if direct == "" {
		return "", fmt.Errorf("extractor returned no stream url for %s", sourceURL)
	}
	// -g can print one URL per stream; take the first (audio).
	if i := strings.IndexByte(direct, '\n'); i >= 0 {
		direct = direct[:i]
	}
	return direct, nil
}

// FetchMetadata resolves title and duration for a single item.
func (y *YtDlp) FetchMetadata(ctx context.Context, sourceURL string) (*Metadata, error) {
	out, err := y.run(ctx, "--no-playlist", "-J", sourceURL)
	if err != nil {
		return nil, fmt.Errorf("error fetching metadata: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(out, &md); err != nil {
		return nil, fmt.Errorf("error parsing metadata: %w", err)
	}
	return &md, nil
}

// ListPlaylist enumerates playlist entries without resolving each one.
func (y *YtDlp) ListPlaylist(ctx context.Context, playlistURL string) ([]PlaylistEntry, error) {
	out, err := y.run(ctx, "--flat-playlist", "-J", playlistURL)
	if err != nil {
		return nil, fmt.Errorf("error enumerating playlist: %w", err)
	}
	var payload struct {
		Entries []PlaylistEntry `json:"entries"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, fmt.Errorf("error parsing playlist: %w", err)
	}
	return payload.Entries, nil
}

// OpenDownloadPipe starts a download subprocess writing the audio
// stream to its stdout. Used as the fallback when a direct fetch of
// the extracted URL fails.
func (y *YtDlp) OpenDownloadPipe(sourceURL string) (io.ReadCloser, error) {
	cmd := exec.Command(y.path, "--no-playlist", "-f", "bestaudio/best", "-o", "-", sourceURL) // #nosec G204
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating download pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting downloader: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"pid": cmd.Process.Pid,
		"url": sourceURL,
	}).Debug("Download subprocess started")
	return &processPipe{r: stdout, cmd: cmd}, nil
}

func (y *YtDlp) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, y.path, args...) // #nosec G204
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// processPipe ties a subprocess lifetime to its output reader.
type processPipe struct {
	r    io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
}

func (p *processPipe) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *processPipe) Close() error {
	p.once.Do(func() {
		_ = p.r.Close()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.cmd.Wait()
	})
	return nil
}
