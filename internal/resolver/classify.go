package resolver

import (
	"net/url"
	"strings"
)

// InputClass is the enqueue-time classification of a source string.
type InputClass int

const (
	// ClassSearch is a bare string to run against YouTube search.
	ClassSearch InputClass = iota
	// ClassYouTubeVideo is a single watchable video URL.
	ClassYouTubeVideo
	// ClassYouTubePlaylist is a playlist URL (or a watch URL carrying
	// a list parameter).
	ClassYouTubePlaylist
	// ClassSpotifyTrack is a catalog link with no playable stream; it
	// is cross-referenced against YouTube.
	ClassSpotifyTrack
	// ClassSpotifyCollection is a Spotify album or playlist link.
	ClassSpotifyCollection
	// ClassUnsupportedURL is a URL from a platform we cannot play.
	ClassUnsupportedURL
)

// Classified is the parse result for one input string.
type Classified struct {
	Class       InputClass
	VideoID     string
	PlaylistID  string
	SpotifyKind string // "track", "album" or "playlist"
	SpotifyID   string
	Query       string
}

// Classify decides how an input string should be enqueued. Anything
// that does not parse as a URL is a search query.
func Classify(input string) Classified {
	input = strings.TrimSpace(input)
	u, err := url.Parse(input)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Classified{Class: ClassSearch, Query: input}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if list := u.Query().Get("list"); list != "" {
			return Classified{Class: ClassYouTubePlaylist, PlaylistID: list, VideoID: u.Query().Get("v")}
		}
		if v := u.Query().Get("v"); v != "" {
			return Classified{Class: ClassYouTubeVideo, VideoID: v}
		}
		if strings.HasPrefix(u.Path, "/shorts/") {
			return Classified{Class: ClassYouTubeVideo, VideoID: strings.TrimPrefix(u.Path, "/shorts/")}
		}
		return Classified{Class: ClassUnsupportedURL}
	case "youtu.be":
		if id := strings.Trim(u.Path, "/"); id != "" {
			return Classified{Class: ClassYouTubeVideo, VideoID: id}
		}
		return Classified{Class: ClassUnsupportedURL}
	case "open.spotify.com":
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 2 {
			switch parts[0] {
			case "track":
				return Classified{Class: ClassSpotifyTrack, SpotifyKind: "track", SpotifyID: parts[1]}
			case "album", "playlist":
				return Classified{Class: ClassSpotifyCollection, SpotifyKind: parts[0], SpotifyID: parts[1]}
			}
		}
		return Classified{Class: ClassUnsupportedURL}
	default:
		return Classified{Class: ClassUnsupportedURL}
	}
}

// WatchURL builds a canonical watch URL from a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}

// PlaylistURL builds a canonical playlist URL from a playlist ID.
func PlaylistURL(playlistID string) string {
	return "https://www.youtube.com/playlist?list=" + url.QueryEscape(playlistID)
}
