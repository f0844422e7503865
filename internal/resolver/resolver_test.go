package resolver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fankserver/discord-dj/internal/storage"
	"github.com/fankserver/discord-dj/internal/streamcache"
	"github.com/fankserver/discord-dj/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	extractCalls int
	directURL    string
	extractErr   error
	pipeData     string
	pipeErr      error
}

func (f *fakeExtractor) ExtractStreamURL(ctx context.Context, sourceURL string) (string, error) {
	f.extractCalls++
	if f.extractErr != nil {
		return "", f.extractErr
	}
	return f.directURL, nil
}

func (f *fakeExtractor) OpenDownloadPipe(sourceURL string) (io.ReadCloser, error) {
	if f.pipeErr != nil {
		return nil, f.pipeErr
	}
	return io.NopCloser(strings.NewReader(f.pipeData)), nil
}

type fakeClips struct {
	clips map[string]string
}

func (f *fakeClips) ListClips() ([]storage.ClipInfo, error) { return nil, nil }
func (f *fakeClips) ClipExists(name string) bool            { _, ok := f.clips[name]; return ok }
func (f *fakeClips) GetClipStream(name string) (io.ReadCloser, error) {
	data, ok := f.clips[name]
	if !ok {
		return nil, errors.New("clip not found")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func TestDirectURLCachesExtraction(t *testing.T) {
	ext := &fakeExtractor{directURL: "https://cdn.example/direct"}
	r := New(streamcache.New(time.Hour, 10), ext, &fakeClips{}, nil)

	ctx := context.Background()
	url1, err := r.DirectURL(ctx, "https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)
	url2, err := r.DirectURL(ctx, "https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)

	assert.Equal(t, url1, url2)
	assert.Equal(t, 1, ext.extractCalls, "extraction should run at most once within the TTL window")
}

func TestDirectURLExtractionFailureNotCached(t *testing.T) {
	ext := &fakeExtractor{extractErr: errors.New("extractor exploded")}
	cache := streamcache.New(time.Hour, 10)
	r := New(cache, ext, &fakeClips{}, nil)

	_, err := r.DirectURL(context.Background(), "https://www.youtube.com/watch?v=abc")
	require.Error(t, err)

	var resErr *ResolutionError
	assert.ErrorAs(t, err, &resErr)
	assert.Equal(t, 0, cache.Len(), "failures must not be cached")

	// A later attempt extracts again.
	_, _ = r.DirectURL(context.Background(), "https://www.youtube.com/watch?v=abc")
	assert.Equal(t, 2, ext.extractCalls)
}

func TestResolveRemoteFetchesDirectURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "bytes=0-", req.Header.Get("Range"))
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	ext := &fakeExtractor{directURL: srv.URL}
	r := New(streamcache.New(time.Hour, 10), ext, &fakeClips{}, srv.Client())

	tr := track.New("t", "https://www.youtube.com/watch?v=abc", track.SourceYouTube, track.Requester{})
	stream, err := r.Resolve(context.Background(), tr)
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestResolveFallsBackToExtractorPipe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cache := streamcache.New(time.Hour, 10)
	ext := &fakeExtractor{directURL: srv.URL, pipeData: "piped-audio"}
	r := New(cache, ext, &fakeClips{}, srv.Client())

	tr := track.New("t", "https://www.youtube.com/watch?v=abc", track.SourceYouTube, track.Requester{})
	stream, err := r.Resolve(context.Background(), tr)
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "piped-audio", string(data))
	assert.Equal(t, 0, cache.Len(), "stale direct url should be evicted")
}

func TestResolveLocalBypassesExtraction(t *testing.T) {
	ext := &fakeExtractor{}
	clips := &fakeClips{clips: map[string]string{"applause": "clip-bytes"}}
	r := New(nil, ext, clips, nil)

	tr := track.NewLocal("applause", track.Requester{})
	stream, err := r.Resolve(context.Background(), tr)
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "clip-bytes", string(data))
	assert.Equal(t, 0, ext.extractCalls)
}

func TestResolveLocalMissingClip(t *testing.T) {
	r := New(nil, &fakeExtractor{}, &fakeClips{}, nil)

	tr := track.NewLocal("missing", track.Requester{})
	_, err := r.Resolve(context.Background(), tr)
	require.Error(t, err)

	var resErr *ResolutionError
	assert.ErrorAs(t, err, &resErr)
}
