// Package track defines the playable item model shared by the queue,
// player, resolver and snapshot layers.
package track

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes how a track is played back.
type Kind string

const (
	KindMusic      Kind = "music"
	KindSoundboard Kind = "soundboard"
	KindLocal      Kind = "local"
)

// SourceType identifies where a track's audio comes from.
type SourceType string

const (
	SourceYouTube SourceType = "youtube"
	SourceSpotify SourceType = "spotify"
	SourceLocal   SourceType = "local"
	SourceOther   SourceType = "other"
)

// Requester records who asked for a track.
type Requester struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Track is one playable item, remote or local, with resolved or
// pending metadata. Title may be a placeholder until the async
// metadata fetch completes.
type Track struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	URL       string        `json:"url,omitempty"`
	ClipName  string        `json:"clipName,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Kind      Kind          `json:"kind"`
	Source    SourceType    `json:"source"`
	Requester Requester     `json:"requester"`
}

// New creates a remote track with a placeholder title.
func New(title, url string, source SourceType, req Requester) *Track {
	return &Track{
		ID:        uuid.New().String(),
		Title:     title,
		URL:       url,
		Kind:      KindMusic,
		Source:    source,
		Requester: req,
	}
}

// NewLocal creates a track backed by a locally stored clip.
func NewLocal(clipName string, req Requester) *Track {
	return &Track{
		ID:        uuid.New().String(),
		Title:     clipName,
		ClipName:  clipName,
		Kind:      KindLocal,
		Source:    SourceLocal,
		Requester: req,
	}
}

// IsRemote reports whether the track's audio has to be resolved over
// the network rather than read from clip storage.
func (t *Track) IsRemote() bool {
	return t.Kind != KindLocal && t.URL != ""
}
