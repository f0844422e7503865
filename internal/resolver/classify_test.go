package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Classified
	}{
		{
			name:  "watch url",
			input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			want:  Classified{Class: ClassYouTubeVideo, VideoID: "dQw4w9WgXcQ"},
		},
		{
			name:  "short url",
			input: "https://youtu.be/dQw4w9WgXcQ",
			want:  Classified{Class: ClassYouTubeVideo, VideoID: "dQw4w9WgXcQ"},
		},
		{
			name:  "shorts url",
			input: "https://www.youtube.com/shorts/abc123",
			want:  Classified{Class: ClassYouTubeVideo, VideoID: "abc123"},
		},
		{
			name:  "playlist url",
			input: "https://www.youtube.com/playlist?list=PL123",
			want:  Classified{Class: ClassYouTubePlaylist, PlaylistID: "PL123"},
		},
		{
			name:  "watch url with list parameter",
			input: "https://www.youtube.com/watch?v=abc&list=PL123",
			want:  Classified{Class: ClassYouTubePlaylist, PlaylistID: "PL123", VideoID: "abc"},
		},
		{
			name:  "music subdomain",
			input: "https://music.youtube.com/watch?v=xyz",
			want:  Classified{Class: ClassYouTubeVideo, VideoID: "xyz"},
		},
		{
			name:  "spotify track",
			input: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
			want:  Classified{Class: ClassSpotifyTrack, SpotifyKind: "track", SpotifyID: "4uLU6hMCjMI75M1A2tKUQC"},
		},
		{
			name:  "spotify album",
			input: "https://open.spotify.com/album/1ATL5GLyefJaxhQzSPVrLX",
			want:  Classified{Class: ClassSpotifyCollection, SpotifyKind: "album", SpotifyID: "1ATL5GLyefJaxhQzSPVrLX"},
		},
		{
			name:  "spotify playlist",
			input: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			want:  Classified{Class: ClassSpotifyCollection, SpotifyKind: "playlist", SpotifyID: "37i9dQZF1DXcBWIGoYBM5M"},
		},
		{
			name:  "unsupported platform",
			input: "https://soundcloud.example/some/track",
			want:  Classified{Class: ClassUnsupportedURL},
		},
		{
			name:  "bare string is a search",
			input: "never gonna give you up",
			want:  Classified{Class: ClassSearch, Query: "never gonna give you up"},
		},
		{
			name:  "whitespace trimmed",
			input: "  daft punk  ",
			want:  Classified{Class: ClassSearch, Query: "daft punk"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.input))
		})
	}
}
