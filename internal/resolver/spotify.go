package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	spotifyTokenEndpoint = "https://accounts.spotify.com/api/token"
	spotifyAPIBase       = "https://api.spotify.com/v1"
)

// Spotify cross-references catalog links that carry no playable
// stream. It only reads track/album/playlist metadata, using the
// client-credentials flow.
type Spotify struct {
	clientID     string
	clientSecret string
	client       *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewSpotify creates a metadata client. A nil http.Client selects
// http.DefaultClient.
func NewSpotify(clientID, clientSecret string, client *http.Client) *Spotify {
	if client == nil {
		client = http.DefaultClient
	}
	return &Spotify{clientID: clientID, clientSecret: clientSecret, client: client}
}

// Enabled reports whether credentials were configured.
func (s *Spotify) Enabled() bool {
	return s.clientID != "" && s.clientSecret != ""
}

// TrackQuery returns "artist title" for one track, suitable as a
// YouTube search query.
func (s *Spotify) TrackQuery(ctx context.Context, trackID string) (string, error) {
	var payload struct {
		Name    string `json:"name"`
		Artists []struct {
			Name string `json:"name"`
		} `json:"artists"`
	}
	if err := s.get(ctx, "/tracks/"+url.PathEscape(trackID), &payload); err != nil {
		return "", err
	}
	return trackQueryString(payload.Name, firstArtist(payload.Artists)), nil
}

// CollectionQueries returns one search query per item of an album or
// playlist, in catalog order.
func (s *Spotify) CollectionQueries(ctx context.Context, kind, id string) ([]string, error) {
	switch kind {
	case "album":
		var payload struct {
			Tracks struct {
				Items []struct {
					Name    string `json:"name"`
					Artists []struct {
						Name string `json:"name"`
					} `json:"artists"`
				} `json:"items"`
			} `json:"tracks"`
		}
		if err := s.get(ctx, "/albums/"+url.PathEscape(id), &payload); err != nil {
			return nil, err
		}
		queries := make([]string, 0, len(payload.Tracks.Items))
		for _, item := range payload.Tracks.Items {
			queries = append(queries, trackQueryString(item.Name, firstArtist(item.Artists)))
		}
		return queries, nil
	case "playlist":
		var payload struct {
			Items []struct {
				Track struct {
					Name    string `json:"name"`
					Artists []struct {
						Name string `json:"name"`
					} `json:"artists"`
				} `json:"track"`
			} `json:"items"`
		}
		if err := s.get(ctx, "/playlists/"+url.PathEscape(id)+"/tracks?limit=100", &payload); err != nil {
			return nil, err
		}
		queries := make([]string, 0, len(payload.Items))
		for _, item := range payload.Items {
			if item.Track.Name == "" {
				continue
			}
			queries = append(queries, trackQueryString(item.Track.Name, firstArtist(item.Track.Artists)))
		}
		return queries, nil
	default:
		return nil, fmt.Errorf("unknown spotify collection kind %q", kind)
	}
}

func (s *Spotify) get(ctx context.Context, path string, out interface{}) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spotifyAPIBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error querying spotify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("spotify returned %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *Spotify) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spotifyTokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error requesting spotify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("spotify token endpoint returned %d", resp.StatusCode)
	}
	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("error parsing token response: %w", err)
	}

	s.token = payload.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn-60) * time.Second)
	return s.token, nil
}

func firstArtist(artists []struct {
	Name string `json:"name"`
}) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}

func trackQueryString(name, artist string) string {
	if artist == "" {
		return name
	}
	return artist + " " + name
}
