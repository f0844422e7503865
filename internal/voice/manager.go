// Package voice owns per-guild voice connections and their sessions.
// The guild to session registry lives here and nowhere else; every
// other component reaches sessions through this manager.
package voice

import (
	"fmt"
	"sync"
	"time"

	"github.com/fankserver/discord-dj/internal/audio"
	"github.com/fankserver/discord-dj/internal/player"
	"github.com/fankserver/discord-dj/internal/queue"
	"github.com/sirupsen/logrus"
)

// DefaultReconnectWait bounds how long an unexpectedly dead connection
// may wait for the gateway's automatic resume before the session is
// torn down.
const DefaultReconnectWait = 5 * time.Second

// Conn is the network voice connection with its audio output sink.
type Conn interface {
	audio.Sink
	Ready() bool
	Disconnect() error
}

// Connector establishes voice connections; implemented by the
// discordgo adapter and by test fakes.
type Connector interface {
	Join(guildID, channelID string) (Conn, error)
}

// PlayerFactory builds the playback state machine for a new session.
type PlayerFactory func(guildID string, q *queue.Queue, sink audio.Sink) *player.Player

// Session is the live state for one guild: connection, queue and
// player. It is created and destroyed only by the Manager.
type Session struct {
	GuildID   string
	ChannelID string
	Conn      Conn
	Queue     *queue.Queue
	Player    *player.Player
	CreatedAt time.Time

	stopWatch chan struct{}
}

// Summary is the read-only projection of a session for listings.
type Summary struct {
	GuildID     string        `json:"guildId"`
	ChannelID   string        `json:"channelId"`
	State       string        `json:"state"`
	NowPlaying  string        `json:"nowPlaying,omitempty"`
	Position    time.Duration `json:"position,omitempty"`
	QueueLength int           `json:"queueLength"`
}

// Manager creates and destroys sessions and watches their connection
// health.
type Manager struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	connector     Connector
	newPlayer     PlayerFactory
	reconnectWait time.Duration
}

// NewManager creates a session manager. A zero reconnectWait selects
// the default.
func NewManager(connector Connector, newPlayer PlayerFactory, reconnectWait time.Duration) *Manager {
	if reconnectWait <= 0 {
		reconnectWait = DefaultReconnectWait
	}
	return &Manager{
		sessions:      make(map[string]*Session),
		connector:     connector,
		newPlayer:     newPlayer,
		reconnectWait: reconnectWait,
	}
}

// Join connects to a voice channel and creates the guild's session.
// Joining the channel the guild is already in returns the existing
// session; joining a different channel moves the session there.
func (m *Manager) Join(guildID, channelID string) (*Session, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[guildID]; ok {
		if existing.ChannelID == channelID {
			m.mu.Unlock()
			return existing, nil
		}
		m.destroyLocked(existing)
	}
	m.mu.Unlock()

	conn, err := m.connector.Join(guildID, channelID)
	if err != nil {
		return nil, fmt.Errorf("error joining voice channel: %w", err)
	}

	q := queue.New()
	sess := &Session{
		GuildID:   guildID,
		ChannelID: channelID,
		Conn:      conn,
		Queue:     q,
		Player:    m.newPlayer(guildID, q, conn),
		CreatedAt: time.Now(),
		stopWatch: make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[guildID] = sess
	m.mu.Unlock()

	go m.watch(sess)

	logrus.WithFields(logrus.Fields{
		"guild_id":   guildID,
		"channel_id": channelID,
	}).Info("Voice session started")
	return sess, nil
}

// Leave tears down the guild's session. It reports whether a session
// existed; repeating it is harmless.
func (m *Manager) Leave(guildID string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[guildID]
	if ok {
		m.destroyLocked(sess)
	}
	m.mu.Unlock()
	return ok
}

// destroyLocked removes a session and releases its resources: stop
// playback (which kills pre-buffer and overlay subprocesses), drop the
// queue and disconnect. Callers hold m.mu.
func (m *Manager) destroyLocked(sess *Session) {
	delete(m.sessions, sess.GuildID)
	close(sess.stopWatch)
	sess.Player.Stop()
	sess.Queue.Clear()
	if err := sess.Conn.Disconnect(); err != nil {
		logrus.WithError(err).WithField("guild_id", sess.GuildID).Debug("Error disconnecting voice")
	}
	logrus.WithField("guild_id", sess.GuildID).Info("Voice session ended")
}

// Get returns the guild's session, or nil.
func (m *Manager) Get(guildID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[guildID]
}

// Sessions summarizes all live sessions.
func (m *Manager) Sessions() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.sessions))
	for _, sess := range m.sessions {
		s := Summary{
			GuildID:     sess.GuildID,
			ChannelID:   sess.ChannelID,
			State:       sess.Player.State().String(),
			Position:    sess.Player.Position(),
			QueueLength: sess.Queue.Len(),
		}
		if np := sess.Player.NowPlaying(); np != nil {
			s.NowPlaying = np.Title
		}
		out = append(out, s)
	}
	return out
}

// LeaveAll tears down every session; used at shutdown.
func (m *Manager) LeaveAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		m.destroyLocked(sess)
	}
}

// watch monitors connection health. An unexpected disconnect gets a
// bounded window for the gateway's automatic resume; if the connection
// does not come back, the session is torn down and a fresh join is
// required.
func (m *Manager) watch(sess *Session) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sess.stopWatch:
			return
		case <-ticker.C:
			if sess.Conn.Ready() {
				continue
			}
			logrus.WithField("guild_id", sess.GuildID).Warn("Voice connection lost, waiting for resume")
			resumed, stopped := m.awaitResume(sess)
			if stopped {
				return
			}
			if resumed {
				logrus.WithField("guild_id", sess.GuildID).Info("Voice connection resumed")
				continue
			}
			logrus.WithField("guild_id", sess.GuildID).Warn("Voice connection did not resume, tearing down session")
			m.Leave(sess.GuildID)
			return
		}
	}
}

// awaitResume polls the connection through the resume window. stopped
// reports that the session was destroyed while waiting, in which case
// the connection state no longer matters.
func (m *Manager) awaitResume(sess *Session) (resumed, stopped bool) {
	deadline := time.NewTimer(m.reconnectWait)
	defer deadline.Stop()
	probe := time.NewTicker(250 * time.Millisecond)
	defer probe.Stop()

	for {
		select {
		case <-sess.stopWatch:
			return false, true
		case <-deadline.C:
			return false, false
		case <-probe.C:
			if sess.Conn.Ready() {
				return true, false
			}
		}
	}
}
