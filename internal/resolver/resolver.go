// Package resolver turns a source identifier into a playable byte
// stream. Remote sources go through the yt-dlp extractor with a
// bounded TTL cache in front of it; local clips bypass resolution and
// come straight from storage.
package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fankserver/discord-dj/internal/storage"
	"github.com/fankserver/discord-dj/internal/streamcache"
	"github.com/fankserver/discord-dj/internal/track"
	"github.com/sirupsen/logrus"
)

// DefaultFetchTimeout bounds the initial response of a direct stream
// fetch.
const DefaultFetchTimeout = 10 * time.Second

// Extractor is the subprocess boundary of the resolver, implemented
// by YtDlp and by test fakes.
type Extractor interface {
	ExtractStreamURL(ctx context.Context, sourceURL string) (string, error)
	OpenDownloadPipe(sourceURL string) (io.ReadCloser, error)
}

// Resolver resolves tracks to byte streams with caching of extracted
// direct URLs.
type Resolver struct {
	cache  *streamcache.Cache
	ytdlp  Extractor
	clips  storage.ClipStore
	client *http.Client
}

// New creates a resolver. A nil cache gets default TTL and capacity;
// a nil client selects http.DefaultClient.
func New(cache *streamcache.Cache, ytdlp Extractor, clips storage.ClipStore, client *http.Client) *Resolver {
	if cache == nil {
		cache = streamcache.New(0, 0)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{cache: cache, ytdlp: ytdlp, clips: clips, client: client}
}

// Resolve returns the track's audio bytes. The caller owns the
// returned stream and must close it. Failures come back as a
// *ResolutionError and are never cached.
func (r *Resolver) Resolve(ctx context.Context, t *track.Track) (io.ReadCloser, error) {
	if !t.IsRemote() {
		stream, err := r.clips.GetClipStream(t.ClipName)
		if err != nil {
			return nil, resolutionErr(t.ClipName, err)
		}
		return stream, nil
	}
	return r.resolveRemote(ctx, t.URL)
}

// DirectURL returns the extracted, time-limited stream URL for a
// remote source, consulting the cache first. Two resolutions of the
// same key within the TTL window invoke the extractor at most once.
func (r *Resolver) DirectURL(ctx context.Context, sourceURL string) (string, error) {
	if direct, ok := r.cache.Get(sourceURL); ok {
		logrus.WithField("source", sourceURL).Debug("Stream cache hit")
		return direct, nil
	}
	direct, err := r.ytdlp.ExtractStreamURL(ctx, sourceURL)
	if err != nil {
		return "", resolutionErr(sourceURL, err)
	}
	r.cache.Put(sourceURL, direct)
	return direct, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, sourceURL string) (io.ReadCloser, error) {
	direct, err := r.DirectURL(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	stream, err := r.openDirect(ctx, direct)
	if err == nil {
		return stream, nil
	}
	logrus.WithError(err).WithField("source", sourceURL).Warn("Direct fetch failed, falling back to extractor pipe")

	// The cached URL may have gone stale early; drop it so the next
	// resolve extracts fresh.
	r.cache.Evict(sourceURL)

	pipe, pipeErr := r.ytdlp.OpenDownloadPipe(sourceURL)
	if pipeErr != nil {
		return nil, resolutionErr(sourceURL, fmt.Errorf("direct fetch: %v; extractor pipe: %w", err, pipeErr))
	}
	return pipe, nil
}

// openDirect fetches the extracted URL with a byte-range request,
// which is cheaper than re-invoking the extraction tool. The timeout
// bounds the wait for response headers only; the body streams for the
// length of the track.
func (r *Resolver) openDirect(ctx context.Context, directURL string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	watchdog := time.AfterFunc(DefaultFetchTimeout, cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, directURL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Range", "bytes=0-")

	resp, err := r.client.Do(req)
	watchdog.Stop()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error fetching stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream fetch returned %d", resp.StatusCode)
	}
	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelReadCloser releases the fetch deadline context when the body
// is closed.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}
