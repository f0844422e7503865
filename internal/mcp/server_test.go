package mcp

import (
	"context"
	"testing"

	"github.com/fankserver/discord-dj/internal/audio"
	"github.com/fankserver/discord-dj/internal/engine"
	"github.com/fankserver/discord-dj/internal/player"
	"github.com/fankserver/discord-dj/internal/queue"
	"github.com/fankserver/discord-dj/internal/voice"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nullConn struct{}

func (nullConn) Speaking(bool) error    { return nil }
func (nullConn) WriteOpus([]byte) error { return nil }
func (nullConn) Ready() bool            { return true }
func (nullConn) Disconnect() error      { return nil }

type stubConnector struct{}

func (stubConnector) Join(guildID, channelID string) (voice.Conn, error) {
	return nullConn{}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	vm := voice.NewManager(stubConnector{}, func(g string, q *queue.Queue, sink audio.Sink) *player.Player {
		return player.New(g, q, sink, nil, nil, "ffmpeg")
	}, 0)
	t.Cleanup(vm.LeaveAll)
	eng := engine.New(vm, nil, nil, nil, nil, nil)
	return NewServer(eng)
}

func textOf(t *testing.T, result *mcp.CallToolResultFor[any]) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	content, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func TestNewServerRegistersTools(t *testing.T) {
	server := newTestServer(t)
	require.NotNil(t, server)
	require.NotNil(t, server.mcpServer)
}

func TestHandleJoinAndListSessions(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	sess := &mcp.ServerSession{}

	result, err := server.handleJoin(ctx, sess, &mcp.CallToolParamsFor[JoinInput]{
		Arguments: JoinInput{GuildID: "guild-1", ChannelID: "channel-1"},
	})
	require.NoError(t, err)
	assert.Contains(t, textOf(t, result), "Joined voice channel channel-1")

	result, err = server.handleListSessions(ctx, sess, &mcp.CallToolParamsFor[EmptyInput]{})
	require.NoError(t, err)
	text := textOf(t, result)
	assert.Contains(t, text, "Found 1 session(s)")
	assert.Contains(t, text, "guild-1")
}

func TestHandleListSessionsEmpty(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleListSessions(context.Background(), &mcp.ServerSession{}, &mcp.CallToolParamsFor[EmptyInput]{})
	require.NoError(t, err)
	assert.Contains(t, textOf(t, result), "No sessions found")
}

func TestHandlePlayWithoutSession(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handlePlay(context.Background(), &mcp.ServerSession{}, &mcp.CallToolParamsFor[PlayInput]{
		Arguments: PlayInput{GuildID: "guild-1", Input: "some song"},
	})
	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "not connected")
}

func TestHandleSkipWithoutTrack(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	sess := &mcp.ServerSession{}

	_, err := server.handleJoin(ctx, sess, &mcp.CallToolParamsFor[JoinInput]{
		Arguments: JoinInput{GuildID: "guild-1", ChannelID: "channel-1"},
	})
	require.NoError(t, err)

	result, err := server.handleSkip(ctx, sess, &mcp.CallToolParamsFor[SkipInput]{
		Arguments: SkipInput{GuildID: "guild-1", Count: 1},
	})
	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "nothing is playing")
}

func TestHandleSetVolume(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	sess := &mcp.ServerSession{}

	_, err := server.handleJoin(ctx, sess, &mcp.CallToolParamsFor[JoinInput]{
		Arguments: JoinInput{GuildID: "guild-1", ChannelID: "channel-1"},
	})
	require.NoError(t, err)

	result, err := server.handleSetVolume(ctx, sess, &mcp.CallToolParamsFor[VolumeInput]{
		Arguments: VolumeInput{GuildID: "guild-1", Volume: 250},
	})
	require.NoError(t, err)
	assert.Contains(t, textOf(t, result), "Volume set to 100")
}

func TestHandleGetQueueEmpty(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	sess := &mcp.ServerSession{}

	_, err := server.handleJoin(ctx, sess, &mcp.CallToolParamsFor[JoinInput]{
		Arguments: JoinInput{GuildID: "guild-1", ChannelID: "channel-1"},
	})
	require.NoError(t, err)

	result, err := server.handleGetQueue(ctx, sess, &mcp.CallToolParamsFor[GuildInput]{
		Arguments: GuildInput{GuildID: "guild-1"},
	})
	require.NoError(t, err)
	text := textOf(t, result)
	assert.Contains(t, text, "State: idle")
	assert.Contains(t, text, "Queue is empty")
}

func TestHandleListClipsEmpty(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleListClips(context.Background(), &mcp.ServerSession{}, &mcp.CallToolParamsFor[EmptyInput]{})
	require.NoError(t, err)
	assert.Contains(t, textOf(t, result), "No clips stored")
}

func TestHandleLeaveWithoutSession(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleLeave(context.Background(), &mcp.ServerSession{}, &mcp.CallToolParamsFor[GuildInput]{
		Arguments: GuildInput{GuildID: "guild-1"},
	})
	assert.Error(t, err)
	assert.Nil(t, result)
}
