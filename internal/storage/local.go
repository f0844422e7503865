package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/sirupsen/logrus"
)

var clipExtensions = []string{".mp3", ".wav", ".ogg", ".opus", ".m4a"}

// LocalStore serves clips from a flat directory. Clip names are the
// file names without extension; lookups are case-insensitive.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a store rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("error creating clip directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// ListClips returns all stored clips sorted by name, with durations
// probed from mp3/wav headers where the format allows it.
func (s *LocalStore) ListClips() ([]ClipInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("error reading clip directory: %w", err)
	}

	var clips []ClipInfo
	for _, e := range entries {
		if e.IsDir() || !isClipFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		clip := ClipInfo{
			Name: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Size: info.Size(),
		}
		if d, err := s.probeDuration(e.Name()); err == nil {
			clip.Duration = d
		} else {
			logrus.WithError(err).WithField("clip", e.Name()).Debug("Could not probe clip duration")
		}
		clips = append(clips, clip)
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].Name < clips[j].Name })
	return clips, nil
}

// ClipExists reports whether a clip with the given name is stored.
func (s *LocalStore) ClipExists(name string) bool {
	return s.findFile(name) != ""
}

// GetClipStream opens the clip's raw bytes for reading.
func (s *LocalStore) GetClipStream(name string) (io.ReadCloser, error) {
	file := s.findFile(name)
	if file == "" {
		return nil, fmt.Errorf("clip %q not found", name)
	}
	f, err := os.Open(filepath.Join(s.dir, file))
	if err != nil {
		return nil, fmt.Errorf("error opening clip %q: %w", name, err)
	}
	return f, nil
}

// findFile returns the stored file name for a clip name, or "".
func (s *LocalStore) findFile(name string) string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() || !isClipFile(e.Name()) {
			continue
		}
		base := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if strings.EqualFold(base, name) {
			return e.Name()
		}
	}
	return ""
}

// probeDuration reads just enough of a clip to compute its play time.
// Only mp3 and wav carry cheaply readable headers; other formats
// report zero.
func (s *LocalStore) probeDuration(file string) (time.Duration, error) {
	path := filepath.Join(s.dir, file)
	switch strings.ToLower(filepath.Ext(file)) {
	case ".mp3":
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		dec, err := mp3.NewDecoder(f)
		if err != nil {
			return 0, fmt.Errorf("error decoding mp3 header: %w", err)
		}
		// Length is bytes of 16-bit stereo PCM at the decoder's rate.
		samples := dec.Length() / 4
		return time.Duration(samples) * time.Second / time.Duration(dec.SampleRate()), nil
	case ".wav":
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		dec := wav.NewDecoder(f)
		d, err := dec.Duration()
		if err != nil {
			return 0, fmt.Errorf("error reading wav header: %w", err)
		}
		return d, nil
	default:
		return 0, nil
	}
}

func isClipFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range clipExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
