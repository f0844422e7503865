package voice

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// sendTimeout guards against a wedged voice websocket blocking the
// pump forever.
const sendTimeout = 5 * time.Second

// DiscordConnector adapts a discordgo session to the Connector
// interface.
type DiscordConnector struct {
	discord *discordgo.Session
}

// NewDiscordConnector wraps an open discordgo session.
func NewDiscordConnector(discord *discordgo.Session) *DiscordConnector {
	return &DiscordConnector{discord: discord}
}

// Join connects to a voice channel muted for receive (the engine only
// sends).
func (c *DiscordConnector) Join(guildID, channelID string) (Conn, error) {
	vc, err := c.discord.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("error joining channel %s: %w", channelID, err)
	}
	return &discordConn{vc: vc}, nil
}

// discordConn is the output sink over one discordgo voice connection.
type discordConn struct {
	vc *discordgo.VoiceConnection
}

func (d *discordConn) Speaking(on bool) error {
	return d.vc.Speaking(on)
}

func (d *discordConn) WriteOpus(frame []byte) error {
	select {
	case d.vc.OpusSend <- frame:
		return nil
	case <-time.After(sendTimeout):
		return errors.New("voice send timed out")
	}
}

func (d *discordConn) Ready() bool {
	return d.vc.Ready
}

func (d *discordConn) Disconnect() error {
	return d.vc.Disconnect()
}
