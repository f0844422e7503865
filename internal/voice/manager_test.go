package voice

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fankserver/discord-dj/internal/audio"
	"github.com/fankserver/discord-dj/internal/player"
	"github.com/fankserver/discord-dj/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu           sync.Mutex
	ready        bool
	disconnected bool
}

func (c *fakeConn) Speaking(on bool) error       { return nil }
func (c *fakeConn) WriteOpus(frame []byte) error { return nil }

func (c *fakeConn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *fakeConn) setReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *fakeConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

type fakeConnector struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	err   error
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{conns: make(map[string]*fakeConn)}
}

func (f *fakeConnector) Join(guildID, channelID string) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	conn := &fakeConn{ready: true}
	f.conns[guildID] = conn
	return conn, nil
}

func testPlayerFactory(guildID string, q *queue.Queue, sink audio.Sink) *player.Player {
	return player.New(guildID, q, sink, nil, nil, "ffmpeg")
}

func TestJoinCreatesSession(t *testing.T) {
	m := NewManager(newFakeConnector(), testPlayerFactory, 0)

	sess, err := m.Join("guild-1", "channel-1")
	require.NoError(t, err)
	assert.Equal(t, "guild-1", sess.GuildID)
	assert.Equal(t, "channel-1", sess.ChannelID)
	assert.NotNil(t, sess.Queue)
	assert.NotNil(t, sess.Player)

	assert.Same(t, sess, m.Get("guild-1"))
}

func TestJoinSameChannelIsIdempotent(t *testing.T) {
	m := NewManager(newFakeConnector(), testPlayerFactory, 0)

	first, err := m.Join("guild-1", "channel-1")
	require.NoError(t, err)
	second, err := m.Join("guild-1", "channel-1")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestJoinDifferentChannelMovesSession(t *testing.T) {
	connector := newFakeConnector()
	m := NewManager(connector, testPlayerFactory, 0)

	first, err := m.Join("guild-1", "channel-1")
	require.NoError(t, err)
	second, err := m.Join("guild-1", "channel-2")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, "channel-2", second.ChannelID)
	assert.True(t, first.Conn.(*fakeConn).isDisconnected())
}

func TestJoinConnectorError(t *testing.T) {
	connector := newFakeConnector()
	connector.err = errors.New("no permission")
	m := NewManager(connector, testPlayerFactory, 0)

	_, err := m.Join("guild-1", "channel-1")
	assert.Error(t, err)
	assert.Nil(t, m.Get("guild-1"))
}

func TestLeave(t *testing.T) {
	m := NewManager(newFakeConnector(), testPlayerFactory, 0)

	sess, err := m.Join("guild-1", "channel-1")
	require.NoError(t, err)

	assert.True(t, m.Leave("guild-1"))
	assert.Nil(t, m.Get("guild-1"))
	assert.True(t, sess.Conn.(*fakeConn).isDisconnected())

	// Leaving again is a no-op.
	assert.False(t, m.Leave("guild-1"))
}

func TestSessions(t *testing.T) {
	m := NewManager(newFakeConnector(), testPlayerFactory, 0)
	_, err := m.Join("guild-1", "channel-1")
	require.NoError(t, err)
	_, err = m.Join("guild-2", "channel-2")
	require.NoError(t, err)

	summaries := m.Sessions()
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		assert.Equal(t, "idle", s.State)
		assert.Zero(t, s.QueueLength)
	}
}

func TestLeaveAll(t *testing.T) {
	m := NewManager(newFakeConnector(), testPlayerFactory, 0)
	_, _ = m.Join("guild-1", "channel-1")
	_, _ = m.Join("guild-2", "channel-2")

	m.LeaveAll()
	assert.Empty(t, m.Sessions())
}

func TestWatchTearsDownDeadConnection(t *testing.T) {
	connector := newFakeConnector()
	m := NewManager(connector, testPlayerFactory, 300*time.Millisecond)

	_, err := m.Join("guild-1", "channel-1")
	require.NoError(t, err)

	connector.conns["guild-1"].setReady(false)

	require.Eventually(t, func() bool {
		return m.Get("guild-1") == nil
	}, 5*time.Second, 20*time.Millisecond, "session should be torn down after the resume window")
}

func TestAwaitResumeReportsSessionDestroyed(t *testing.T) {
	connector := newFakeConnector()
	m := NewManager(connector, testPlayerFactory, time.Minute)

	sess, err := m.Join("guild-1", "channel-1")
	require.NoError(t, err)
	connector.conns["guild-1"].setReady(false)

	type outcome struct{ resumed, stopped bool }
	got := make(chan outcome, 1)
	go func() {
		resumed, stopped := m.awaitResume(sess)
		got <- outcome{resumed, stopped}
	}()

	// An explicit leave during the resume window must not read as a
	// recovered connection.
	time.Sleep(50 * time.Millisecond)
	m.Leave("guild-1")

	select {
	case o := <-got:
		assert.False(t, o.resumed)
		assert.True(t, o.stopped)
	case <-time.After(2 * time.Second):
		t.Fatal("awaitResume did not return after the session was destroyed")
	}
}

func TestWatchSurvivesResume(t *testing.T) {
	connector := newFakeConnector()
	m := NewManager(connector, testPlayerFactory, 2*time.Second)

	_, err := m.Join("guild-1", "channel-1")
	require.NoError(t, err)

	conn := connector.conns["guild-1"]
	conn.setReady(false)
	go func() {
		time.Sleep(400 * time.Millisecond)
		conn.setReady(true)
	}()

	// Give the watch a chance to notice the drop and the resume.
	time.Sleep(2 * time.Second)
	assert.NotNil(t, m.Get("guild-1"), "a resumed connection keeps its session")
}
