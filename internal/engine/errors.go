package engine

import (
	"errors"

	"github.com/fankserver/discord-dj/internal/player"
)

var (
	// ErrNotConnected is returned when a command targets a guild with
	// no voice session.
	ErrNotConnected = errors.New("not connected to a voice channel")

	// ErrNothingPlaying mirrors the player's sentinel at the command
	// boundary.
	ErrNothingPlaying = player.ErrNothingPlaying

	// ErrNotFound is returned when search yields no playable result.
	ErrNotFound = errors.New("no results found")

	// ErrUnsupportedSource is returned for URLs from platforms the
	// engine cannot play.
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrSpotifyDisabled is returned for Spotify links when no API
	// credentials were configured.
	ErrSpotifyDisabled = errors.New("spotify support is not configured")

	// ErrSearchDisabled is returned for search-requiring inputs when no
	// YouTube API key was configured.
	ErrSearchDisabled = errors.New("search is not configured")

	// ErrClipNotFound is returned when a soundboard command names a
	// clip that is not in storage.
	ErrClipNotFound = errors.New("clip not found")

	// ErrInvalidIndex is returned when a queue index is out of range.
	ErrInvalidIndex = errors.New("invalid queue index")

	// ErrNothingToReplay is returned for an empty play input when the
	// guild has no last-played track.
	ErrNothingToReplay = errors.New("nothing to replay")
)
