package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const youtubeSearchEndpoint = "https://www.googleapis.com/youtube/v3/search"

// SearchResult is the top hit for a query.
type SearchResult struct {
	VideoID string
	Title   string
}

// YouTubeSearch queries the YouTube Data API. The engine uses it both
// for bare-string queries and for Spotify cross-referencing.
type YouTubeSearch struct {
	apiKey string
	client *http.Client
}

// NewYouTubeSearch creates a search client. A nil http.Client selects
// http.DefaultClient.
func NewYouTubeSearch(apiKey string, client *http.Client) *YouTubeSearch {
	if client == nil {
		client = http.DefaultClient
	}
	return &YouTubeSearch{apiKey: apiKey, client: client}
}

// Search returns the closest video match for query, or ErrNoResults.
func (s *YouTubeSearch) Search(ctx context.Context, query string) (*SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, youtubeSearchEndpoint, nil)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("key", s.apiKey)
	q.Set("part", "snippet")
	q.Set("type", "video")
	q.Set("maxResults", "1")
	q.Set("q", query)
	req.URL.RawQuery = q.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error querying youtube search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("youtube search returned %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("error parsing search response: %w", err)
	}
	if len(payload.Items) == 0 {
		return nil, ErrNoResults
	}
	return &SearchResult{
		VideoID: payload.Items[0].ID.VideoID,
		Title:   payload.Items[0].Snippet.Title,
	}, nil
}
