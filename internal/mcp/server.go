// Package mcp exposes the playback command API as MCP tools over
// stdio, so an MCP client can drive the engine directly.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fankserver/discord-dj/internal/engine"
	"github.com/fankserver/discord-dj/internal/track"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// Server wraps the engine behind an MCP stdio server.
type Server struct {
	engine    *engine.Engine
	mcpServer *mcp.Server
}

// NewServer creates the MCP server and registers every tool.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{engine: eng}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "discord-dj",
		Version: "0.1.0",
	}, nil)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "join_voice_channel",
		Description: "Join a Discord voice channel",
	}, s.handleJoin)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "leave_voice_channel",
		Description: "Leave the guild's voice channel",
	}, s.handleLeave)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "play",
		Description: "Queue a track: YouTube URL or playlist, Spotify link, stored clip name, or free-text search. Empty input replays the last track.",
	}, s.handlePlay)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "skip",
		Description: "Skip the current track and optionally more queued ones",
	}, s.handleSkip)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "pause",
		Description: "Toggle pause on the current track",
	}, s.handlePause)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "stop",
		Description: "Stop playback and clear the queue",
	}, s.handleStop)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "set_volume",
		Description: "Set playback volume (0-100)",
	}, s.handleSetVolume)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_queue",
		Description: "Show the current track and pending queue",
	}, s.handleGetQueue)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "clear_queue",
		Description: "Drop all pending tracks",
	}, s.handleClearQueue)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "remove_track",
		Description: "Remove one pending track by queue index",
	}, s.handleRemoveTrack)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "soundboard",
		Description: "Play a stored clip, ducking the music under it when something is playing",
	}, s.handleSoundboard)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_clips",
		Description: "List the stored soundboard clips",
	}, s.handleListClips)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active voice sessions",
	}, s.handleListSessions)

	return s
}

// Start runs the MCP server over stdio until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	logrus.Info("MCP server listening on stdio")
	return s.mcpServer.Run(ctx, mcp.NewStdioTransport())
}

// EmptyInput is for tools that take no arguments.
type EmptyInput struct{}

// GuildInput targets one guild.
type GuildInput struct {
	GuildID string `json:"guildId"`
}

// JoinInput names the channel to join.
type JoinInput struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
}

// PlayInput is the play tool's arguments.
type PlayInput struct {
	GuildID   string `json:"guildId"`
	Input     string `json:"input,omitempty"`
	Requester string `json:"requester,omitempty"`
}

// SkipInput optionally widens the skip beyond the current track.
type SkipInput struct {
	GuildID string `json:"guildId"`
	Count   int    `json:"count,omitempty"`
}

// VolumeInput carries the requested level.
type VolumeInput struct {
	GuildID string `json:"guildId"`
	Volume  int    `json:"volume"`
}

// RemoveTrackInput names a pending track by index.
type RemoveTrackInput struct {
	GuildID string `json:"guildId"`
	Index   int    `json:"index"`
}

// SoundboardInput names the clip to play.
type SoundboardInput struct {
	GuildID string `json:"guildId"`
	Clip    string `json:"clip"`
}

func textResult(format string, args ...interface{}) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

func (s *Server) handleJoin(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[JoinInput]) (*mcp.CallToolResultFor[any], error) {
	in := params.Arguments
	if err := s.engine.Join(in.GuildID, in.ChannelID); err != nil {
		return nil, err
	}
	return textResult("Joined voice channel %s", in.ChannelID), nil
}

func (s *Server) handleLeave(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[GuildInput]) (*mcp.CallToolResultFor[any], error) {
	if err := s.engine.Leave(params.Arguments.GuildID); err != nil {
		return nil, err
	}
	return textResult("Left voice channel"), nil
}

func (s *Server) handlePlay(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[PlayInput]) (*mcp.CallToolResultFor[any], error) {
	in := params.Arguments
	res, err := s.engine.Play(ctx, in.GuildID, in.Input, track.Requester{DisplayName: in.Requester})
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("Queued: %s (position %d)", res.Title, res.Position)
	if res.Note != "" {
		msg += ", " + res.Note
	}
	if len(res.Tracks) > 1 {
		msg += "\nAdded: " + strings.Join(res.Tracks, ", ")
	}
	return textResult("%s", msg), nil
}

func (s *Server) handleSkip(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SkipInput]) (*mcp.CallToolResultFor[any], error) {
	in := params.Arguments
	titles, err := s.engine.Skip(in.GuildID, in.Count)
	if err != nil {
		return nil, err
	}
	return textResult("Skipped: %s", strings.Join(titles, ", ")), nil
}

func (s *Server) handlePause(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[GuildInput]) (*mcp.CallToolResultFor[any], error) {
	paused, err := s.engine.TogglePause(params.Arguments.GuildID)
	if err != nil {
		return nil, err
	}
	if paused {
		return textResult("Paused"), nil
	}
	return textResult("Resumed"), nil
}

func (s *Server) handleStop(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[GuildInput]) (*mcp.CallToolResultFor[any], error) {
	wasActive, err := s.engine.Stop(params.Arguments.GuildID)
	if err != nil {
		return nil, err
	}
	if wasActive {
		return textResult("Stopped playback and cleared the queue"), nil
	}
	return textResult("Nothing was playing; queue cleared"), nil
}

func (s *Server) handleSetVolume(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[VolumeInput]) (*mcp.CallToolResultFor[any], error) {
	in := params.Arguments
	applied, err := s.engine.SetVolume(in.GuildID, in.Volume)
	if err != nil {
		return nil, err
	}
	return textResult("Volume set to %d", applied), nil
}

func (s *Server) handleGetQueue(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[GuildInput]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.engine.GetQueue(params.Arguments.GuildID)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "State: %s, volume %d\n", info.State, info.Volume)
	if info.NowPlaying != "" {
		fmt.Fprintf(&b, "Now playing: %s [%s]\n", info.NowPlaying, formatDuration(info.Position))
	}
	if len(info.Items) == 0 {
		b.WriteString("Queue is empty")
	} else {
		fmt.Fprintf(&b, "%d pending:\n", info.Length)
		for _, item := range info.Items {
			fmt.Fprintf(&b, "  %d. %s", item.Index, item.Title)
			if item.Requester != "" {
				fmt.Fprintf(&b, " (requested by %s)", item.Requester)
			}
			b.WriteByte('\n')
		}
		if info.Length > len(info.Items) {
			fmt.Fprintf(&b, "  ... and %d more\n", info.Length-len(info.Items))
		}
	}
	return textResult("%s", b.String()), nil
}

func (s *Server) handleClearQueue(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[GuildInput]) (*mcp.CallToolResultFor[any], error) {
	n, err := s.engine.ClearQueue(params.Arguments.GuildID)
	if err != nil {
		return nil, err
	}
	return textResult("Cleared %d track(s)", n), nil
}

func (s *Server) handleRemoveTrack(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[RemoveTrackInput]) (*mcp.CallToolResultFor[any], error) {
	in := params.Arguments
	removed, err := s.engine.RemoveTrack(in.GuildID, in.Index)
	if err != nil {
		return nil, err
	}
	return textResult("Removed: %s", removed.Title), nil
}

func (s *Server) handleSoundboard(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SoundboardInput]) (*mcp.CallToolResultFor[any], error) {
	in := params.Arguments
	res, err := s.engine.OverlaySoundboard(ctx, in.GuildID, in.Clip)
	if err != nil {
		return nil, err
	}
	return textResult("%s", res.Message), nil
}

func (s *Server) handleListClips(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[EmptyInput]) (*mcp.CallToolResultFor[any], error) {
	clips, err := s.engine.ListClips()
	if err != nil {
		return nil, err
	}
	if len(clips) == 0 {
		return textResult("No clips stored"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d clip(s):\n", len(clips))
	for _, clip := range clips {
		fmt.Fprintf(&b, "  %s", clip.Name)
		if clip.Duration > 0 {
			fmt.Fprintf(&b, " [%s]", formatDuration(clip.Duration))
		}
		b.WriteByte('\n')
	}
	return textResult("%s", b.String()), nil
}

func (s *Server) handleListSessions(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[EmptyInput]) (*mcp.CallToolResultFor[any], error) {
	sessions := s.engine.Sessions()
	if len(sessions) == 0 {
		return textResult("No sessions found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d session(s):\n", len(sessions))
	for _, sess := range sessions {
		fmt.Fprintf(&b, "  guild %s, channel %s: %s", sess.GuildID, sess.ChannelID, sess.State)
		if sess.NowPlaying != "" {
			fmt.Fprintf(&b, ", playing %s [%s]", sess.NowPlaying, formatDuration(sess.Position))
		}
		fmt.Fprintf(&b, ", %d queued\n", sess.QueueLength)
	}
	return textResult("%s", b.String()), nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}
