// Package engine is the command API over the per-guild playback
// machinery. It classifies play inputs, applies the enqueue policy and
// maps player and resolver failures to the command error taxonomy. An
// MCP transport or any other dispatch layer calls into this package.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fankserver/discord-dj/internal/player"
	"github.com/fankserver/discord-dj/internal/resolver"
	"github.com/fankserver/discord-dj/internal/snapshot"
	"github.com/fankserver/discord-dj/internal/storage"
	"github.com/fankserver/discord-dj/internal/track"
	"github.com/fankserver/discord-dj/internal/voice"
	"github.com/sirupsen/logrus"
)

// maxQueueListing caps how many pending tracks a queue listing shows.
const maxQueueListing = 20

// maxResultTracks caps how many added titles a play result lists.
const maxResultTracks = 5

// Searcher finds the closest YouTube match for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string) (*resolver.SearchResult, error)
}

// Catalog enumerates and describes remote sources without playing
// them.
type Catalog interface {
	FetchMetadata(ctx context.Context, sourceURL string) (*resolver.Metadata, error)
	ListPlaylist(ctx context.Context, playlistURL string) ([]resolver.PlaylistEntry, error)
}

// SpotifyCatalog turns Spotify catalog links into YouTube search
// queries.
type SpotifyCatalog interface {
	Enabled() bool
	TrackQuery(ctx context.Context, trackID string) (string, error)
	CollectionQueries(ctx context.Context, kind, id string) ([]string, error)
}

// Engine wires the playback machinery behind a guild-keyed command
// surface.
type Engine struct {
	voice   *voice.Manager
	search  Searcher
	spotify SpotifyCatalog
	catalog Catalog
	clips   storage.ClipStore
	store   *snapshot.Store
}

// New creates the engine. search, spotify and store may be nil when
// the corresponding integration is not configured.
func New(vm *voice.Manager, search Searcher, spotify SpotifyCatalog, catalog Catalog, clips storage.ClipStore, store *snapshot.Store) *Engine {
	return &Engine{
		voice:   vm,
		search:  search,
		spotify: spotify,
		catalog: catalog,
		clips:   clips,
		store:   store,
	}
}

// Join connects the guild to a voice channel.
func (e *Engine) Join(guildID, channelID string) error {
	_, err := e.voice.Join(guildID, channelID)
	return err
}

// Leave disconnects the guild's session.
func (e *Engine) Leave(guildID string) error {
	if !e.voice.Leave(guildID) {
		return ErrNotConnected
	}
	return nil
}

// PlayResult describes what one play command added: the first few
// titles, how many tracks the command adds in total and the queue
// length when it returned.
type PlayResult struct {
	Title    string   `json:"title"`
	Tracks   []string `json:"tracks,omitempty"`
	Queued   int      `json:"queued"`
	Position int      `json:"position"`
	Total    int      `json:"totalInQueue"`
	Note     string   `json:"note,omitempty"`
}

// Play classifies the input and enqueues what it names. An empty input
// replays the guild's last finished track. Classification and search
// errors leave the queue untouched.
func (e *Engine) Play(ctx context.Context, guildID, input string, req track.Requester) (*PlayResult, error) {
	sess := e.voice.Get(guildID)
	if sess == nil {
		return nil, ErrNotConnected
	}

	if input == "" {
		return e.replayLast(sess, req)
	}

	c := resolver.Classify(input)
	switch c.Class {
	case resolver.ClassYouTubeVideo:
		return e.playVideo(sess, c.VideoID, req)
	case resolver.ClassYouTubePlaylist:
		return e.playPlaylist(ctx, sess, c.PlaylistID, req)
	case resolver.ClassSpotifyTrack:
		return e.playSpotifyTrack(ctx, sess, c.SpotifyID, req)
	case resolver.ClassSpotifyCollection:
		return e.playSpotifyCollection(ctx, sess, c.SpotifyKind, c.SpotifyID, req)
	case resolver.ClassSearch:
		if e.clips != nil && e.clips.ClipExists(c.Query) {
			t := track.NewLocal(c.Query, req)
			pos := sess.Queue.Enqueue(t)
			sess.Player.EnsurePlaying()
			return singleResult(t, pos), nil
		}
		return e.playSearch(ctx, sess, c.Query, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, input)
	}
}

func (e *Engine) replayLast(sess *voice.Session, req track.Requester) (*PlayResult, error) {
	last := sess.Player.LastPlayed()
	if last == nil {
		return nil, ErrNothingToReplay
	}
	replay := track.New(last.Title, last.URL, last.Source, req)
	replay.ClipName = last.ClipName
	replay.Kind = last.Kind
	replay.Duration = last.Duration
	pos := sess.Queue.Enqueue(replay)
	sess.Player.EnsurePlaying()
	res := singleResult(replay, pos)
	res.Note = "replaying last track"
	return res, nil
}

// singleResult shapes the result of a one-track enqueue. The enqueue
// position doubles as the queue length at that moment.
func singleResult(t *track.Track, pos int) *PlayResult {
	return &PlayResult{
		Title:    t.Title,
		Tracks:   []string{t.Title},
		Queued:   1,
		Position: pos,
		Total:    pos,
	}
}

// playVideo enqueues a placeholder immediately; title and duration
// arrive from an async metadata fetch so playback never waits on them.
func (e *Engine) playVideo(sess *voice.Session, videoID string, req track.Requester) (*PlayResult, error) {
	url := resolver.WatchURL(videoID)
	t := track.New(videoID, url, track.SourceYouTube, req)
	pos := sess.Queue.Enqueue(t)
	sess.Player.EnsurePlaying()

	if e.catalog != nil {
		go e.fillMetadata(sess, t.ID, url)
	}
	return singleResult(t, pos), nil
}

// fillMetadata replaces the queued placeholder with fetched metadata.
// A track that already started playing keeps its placeholder title.
func (e *Engine) fillMetadata(sess *voice.Session, trackID, url string) {
	md, err := e.catalog.FetchMetadata(context.Background(), url)
	if err != nil {
		logrus.WithError(err).WithField("url", url).Debug("Metadata fetch failed")
		return
	}
	sess.Queue.Update(trackID, func(t track.Track) track.Track {
		t.Title = md.Title
		t.Duration = time.Duration(md.Duration * float64(time.Second))
		return t
	})
}

func (e *Engine) playPlaylist(ctx context.Context, sess *voice.Session, playlistID string, req track.Requester) (*PlayResult, error) {
	if e.catalog == nil {
		return nil, ErrUnsupportedSource
	}
	entries, err := e.catalog.ListPlaylist(ctx, resolver.PlaylistURL(playlistID))
	if err != nil {
		return nil, fmt.Errorf("error listing playlist: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}

	first := playlistTrack(entries[0], req)
	pos := sess.Queue.Enqueue(first)
	sess.Player.EnsurePlaying()

	rest := entries[1:]
	if len(rest) > 0 {
		go func() {
			for _, entry := range rest {
				sess.Queue.Enqueue(playlistTrack(entry, req))
			}
			sess.Player.EnsurePlaying()
			logrus.WithFields(logrus.Fields{
				"guild_id": sess.GuildID,
				"count":    len(rest),
			}).Info("Playlist tail enqueued")
		}()
	}

	titles := make([]string, 0, maxResultTracks)
	for _, entry := range entries {
		if len(titles) == maxResultTracks {
			break
		}
		titles = append(titles, entry.Title)
	}
	return &PlayResult{
		Title:    first.Title,
		Tracks:   titles,
		Queued:   len(entries),
		Position: pos,
		Total:    pos,
		Note:     fmt.Sprintf("queueing %d more from playlist", len(rest)),
	}, nil
}

func playlistTrack(entry resolver.PlaylistEntry, req track.Requester) *track.Track {
	t := track.New(entry.Title, resolver.WatchURL(entry.ID), track.SourceYouTube, req)
	t.Duration = time.Duration(entry.Duration * float64(time.Second))
	return t
}

func (e *Engine) playSpotifyTrack(ctx context.Context, sess *voice.Session, spotifyID string, req track.Requester) (*PlayResult, error) {
	if e.spotify == nil || !e.spotify.Enabled() {
		return nil, ErrSpotifyDisabled
	}
	query, err := e.spotify.TrackQuery(ctx, spotifyID)
	if err != nil {
		return nil, fmt.Errorf("error resolving spotify track: %w", err)
	}
	// The cross-referenced result plays from YouTube; the Spotify link
	// only supplied the search terms.
	return e.playSearch(ctx, sess, query, req)
}

func (e *Engine) playSpotifyCollection(ctx context.Context, sess *voice.Session, kind, id string, req track.Requester) (*PlayResult, error) {
	if e.spotify == nil || !e.spotify.Enabled() {
		return nil, ErrSpotifyDisabled
	}
	queries, err := e.spotify.CollectionQueries(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("error resolving spotify %s: %w", kind, err)
	}
	if len(queries) == 0 {
		return nil, ErrNotFound
	}

	res, err := e.playSearch(ctx, sess, queries[0], req)
	if err != nil {
		return nil, err
	}

	rest := queries[1:]
	if len(rest) > 0 {
		go func() {
			enqueued := 0
			for _, query := range rest {
				hit, err := e.search.Search(context.Background(), query)
				if err != nil {
					logrus.WithError(err).WithField("query", query).Debug("Cross-reference search failed, skipping item")
					continue
				}
				sess.Queue.Enqueue(searchTrack(hit, req))
				enqueued++
			}
			sess.Player.EnsurePlaying()
			logrus.WithFields(logrus.Fields{
				"guild_id": sess.GuildID,
				"count":    enqueued,
			}).Info("Spotify collection tail enqueued")
		}()
	}

	// Titles for the tail only arrive from the async cross-reference;
	// the search queries stand in for them here.
	for _, query := range rest {
		if len(res.Tracks) == maxResultTracks {
			break
		}
		res.Tracks = append(res.Tracks, query)
	}
	res.Queued = len(queries)
	res.Note = fmt.Sprintf("queueing %d more from spotify %s", len(rest), kind)
	return res, nil
}

func (e *Engine) playSearch(ctx context.Context, sess *voice.Session, query string, req track.Requester) (*PlayResult, error) {
	if e.search == nil {
		return nil, ErrSearchDisabled
	}
	hit, err := e.search.Search(ctx, query)
	if err != nil {
		if errors.Is(err, resolver.ErrNoResults) {
			return nil, fmt.Errorf("%w for %q", ErrNotFound, query)
		}
		return nil, fmt.Errorf("error searching for %q: %w", query, err)
	}
	t := searchTrack(hit, req)
	pos := sess.Queue.Enqueue(t)
	sess.Player.EnsurePlaying()
	return singleResult(t, pos), nil
}

func searchTrack(hit *resolver.SearchResult, req track.Requester) *track.Track {
	return track.New(hit.Title, resolver.WatchURL(hit.VideoID), track.SourceYouTube, req)
}

// Skip drops the current track plus up to n-1 queued ones and lets
// playback advance. Returns the removed titles in removal order.
func (e *Engine) Skip(guildID string, n int) ([]string, error) {
	sess := e.voice.Get(guildID)
	if sess == nil {
		return nil, ErrNotConnected
	}
	return sess.Player.Skip(n)
}

// TogglePause pauses or resumes the current track; the returned bool
// is true when the track is now paused.
func (e *Engine) TogglePause(guildID string) (bool, error) {
	sess := e.voice.Get(guildID)
	if sess == nil {
		return false, ErrNotConnected
	}
	return sess.Player.TogglePause()
}

// Stop halts playback and clears the queue. Reports whether anything
// was actually playing.
func (e *Engine) Stop(guildID string) (bool, error) {
	sess := e.voice.Get(guildID)
	if sess == nil {
		return false, ErrNotConnected
	}
	wasActive := sess.Player.Stop()
	sess.Queue.Clear()
	return wasActive, nil
}

// SetVolume clamps v to [0,100] and returns the applied level.
func (e *Engine) SetVolume(guildID string, v int) (int, error) {
	sess := e.voice.Get(guildID)
	if sess == nil {
		return 0, ErrNotConnected
	}
	return sess.Player.Volume().Set(v), nil
}

// QueueItem is one pending track in a queue listing.
type QueueItem struct {
	Index     int           `json:"index"`
	Title     string        `json:"title"`
	Requester string        `json:"requester,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// QueueInfo is the playback summary for one guild.
type QueueInfo struct {
	State      string        `json:"state"`
	NowPlaying string        `json:"nowPlaying,omitempty"`
	Position   time.Duration `json:"position,omitempty"`
	Volume     int           `json:"volume"`
	Length     int           `json:"length"`
	Items      []QueueItem   `json:"items"`
}

// GetQueue reports the playback state and up to 20 pending tracks.
func (e *Engine) GetQueue(guildID string) (*QueueInfo, error) {
	sess := e.voice.Get(guildID)
	if sess == nil {
		return nil, ErrNotConnected
	}

	pending := sess.Queue.Snapshot()
	info := &QueueInfo{
		State:  sess.Player.State().String(),
		Volume: sess.Player.Volume().Get(),
		Length: len(pending),
		Items:  make([]QueueItem, 0, maxQueueListing),
	}
	if np := sess.Player.NowPlaying(); np != nil {
		info.NowPlaying = np.Title
		info.Position = sess.Player.Position()
	}
	for i, t := range pending {
		if i == maxQueueListing {
			break
		}
		info.Items = append(info.Items, QueueItem{
			Index:     i,
			Title:     t.Title,
			Requester: t.Requester.DisplayName,
			Duration:  t.Duration,
		})
	}
	return info, nil
}

// ClearQueue empties the pending queue without touching the current
// track. Returns how many tracks were dropped.
func (e *Engine) ClearQueue(guildID string) (int, error) {
	sess := e.voice.Get(guildID)
	if sess == nil {
		return 0, ErrNotConnected
	}
	return sess.Queue.Clear(), nil
}

// RemoveTrack removes the pending track at index (0-based) and returns
// it.
func (e *Engine) RemoveTrack(guildID string, index int) (*track.Track, error) {
	sess := e.voice.Get(guildID)
	if sess == nil {
		return nil, ErrNotConnected
	}
	t, err := sess.Queue.RemoveAt(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	return t, nil
}

// OverlayResult reports how a soundboard request was served.
type OverlayResult struct {
	Overlaid bool   `json:"overlaid"`
	Message  string `json:"message"`
}

// OverlaySoundboard mixes the named clip over the current track. With
// nothing playing, or when the mix pipeline fails, the clip plays
// directly instead and Overlaid is false.
func (e *Engine) OverlaySoundboard(ctx context.Context, guildID, clipName string) (*OverlayResult, error) {
	sess := e.voice.Get(guildID)
	if sess == nil {
		return nil, ErrNotConnected
	}
	if e.clips == nil || !e.clips.ClipExists(clipName) {
		return nil, fmt.Errorf("%w: %s", ErrClipNotFound, clipName)
	}

	if sess.Player.State() == player.StatePlaying {
		stream, err := e.clips.GetClipStream(clipName)
		if err != nil {
			return nil, fmt.Errorf("error opening clip %s: %w", clipName, err)
		}
		err = sess.Player.Overlay(clipName, stream, e.clipDuration(clipName))
		if err == nil {
			return &OverlayResult{Overlaid: true, Message: "clip mixed over current track"}, nil
		}
		stream.Close()
		if errors.Is(err, player.ErrOverlayActive) {
			return nil, err
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"guild_id": guildID,
			"clip":     clipName,
		}).Warn("Overlay pipeline failed, playing clip directly")
		return e.playClipDirect(sess, clipName, fmt.Sprintf("mixing failed (%v), playing clip directly", err)), nil
	}

	return e.playClipDirect(sess, clipName, "nothing playing, playing clip directly"), nil
}

// playClipDirect puts the clip at the queue head and makes it the next
// thing heard. An interrupted track is not resumed afterwards.
func (e *Engine) playClipDirect(sess *voice.Session, clipName, reason string) *OverlayResult {
	t := track.NewLocal(clipName, track.Requester{})
	t.Kind = track.KindSoundboard
	sess.Queue.EnqueueFront(t)
	if sess.Player.State() == player.StateIdle {
		sess.Player.EnsurePlaying()
	} else {
		// Paused or playing: cut the active track and advance to the
		// clip at the head.
		sess.Player.Interrupt()
	}
	return &OverlayResult{Overlaid: false, Message: reason}
}

func (e *Engine) clipDuration(clipName string) time.Duration {
	infos, err := e.clips.ListClips()
	if err != nil {
		return 0
	}
	for _, info := range infos {
		if info.Name == clipName {
			return info.Duration
		}
	}
	return 0
}

// ListClips enumerates the stored soundboard clips.
func (e *Engine) ListClips() ([]storage.ClipInfo, error) {
	if e.clips == nil {
		return nil, nil
	}
	return e.clips.ListClips()
}

// Sessions summarizes every live voice session.
func (e *Engine) Sessions() []voice.Summary {
	return e.voice.Sessions()
}

// Snapshots captures the resumable state of every session; the
// persister flushes these to the store.
func (e *Engine) Snapshots() []snapshot.Record {
	sessions := e.voice.Sessions()
	records := make([]snapshot.Record, 0, len(sessions))
	for _, s := range sessions {
		sess := e.voice.Get(s.GuildID)
		if sess == nil {
			continue
		}
		rec := snapshot.Record{
			GuildID:    sess.GuildID,
			ChannelID:  sess.ChannelID,
			NowPlaying: sess.Player.NowPlaying(),
			Queue:      make([]track.Track, 0, sess.Queue.Len()),
		}
		for _, t := range sess.Queue.Snapshot() {
			rec.Queue = append(rec.Queue, *t)
		}
		records = append(records, rec)
	}
	return records
}

// Restore re-establishes one guild's session from its stored snapshot,
// rejoining the recorded channel and repopulating the queue with the
// interrupted track at the head.
func (e *Engine) Restore(guildID string) bool {
	if e.store == nil {
		return false
	}
	rec, err := e.store.Load(guildID)
	if err != nil || rec == nil {
		return false
	}
	return e.restoreRecord(rec)
}

// RestoreAll restores every stored snapshot at startup. A guild whose
// channel cannot be rejoined is skipped, never aborting the others.
// Returns how many sessions resumed.
func (e *Engine) RestoreAll() int {
	if e.store == nil {
		return 0
	}
	records, err := e.store.LoadAll()
	if err != nil {
		logrus.WithError(err).Warn("Failed to load playback snapshots")
		return 0
	}
	restored := 0
	for i := range records {
		if e.restoreRecord(&records[i]) {
			restored++
		}
	}
	if restored > 0 {
		logrus.WithField("count", restored).Info("Resumed playback sessions from snapshot")
	}
	return restored
}

func (e *Engine) restoreRecord(rec *snapshot.Record) bool {
	sess, err := e.voice.Join(rec.GuildID, rec.ChannelID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"guild_id":   rec.GuildID,
			"channel_id": rec.ChannelID,
		}).Warn("Skipping snapshot restore, channel unreachable")
		return false
	}

	tracks := make([]*track.Track, 0, len(rec.Queue)+1)
	if rec.NowPlaying != nil {
		np := *rec.NowPlaying
		tracks = append(tracks, &np)
	}
	for i := range rec.Queue {
		t := rec.Queue[i]
		tracks = append(tracks, &t)
	}
	sess.Queue.Restore(tracks)
	sess.Player.EnsurePlaying()
	return true
}
