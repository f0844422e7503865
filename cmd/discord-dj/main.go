package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/fankserver/discord-dj/internal/audio"
	"github.com/fankserver/discord-dj/internal/config"
	"github.com/fankserver/discord-dj/internal/engine"
	"github.com/fankserver/discord-dj/internal/mcp"
	"github.com/fankserver/discord-dj/internal/mixer"
	"github.com/fankserver/discord-dj/internal/player"
	"github.com/fankserver/discord-dj/internal/queue"
	"github.com/fankserver/discord-dj/internal/resolver"
	"github.com/fankserver/discord-dj/internal/snapshot"
	"github.com/fankserver/discord-dj/internal/storage"
	"github.com/fankserver/discord-dj/internal/streamcache"
	"github.com/fankserver/discord-dj/internal/voice"
	"github.com/sirupsen/logrus"
)

var token string

func init() {
	flag.StringVar(&token, "token", "", "Discord Bot Token")
	flag.Parse()
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	cfg := config.Load()
	if token == "" {
		token = cfg.Token
	}
	if token == "" {
		logrus.Fatal("Discord token is required. Use -token flag or DISCORD_TOKEN env var")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer cancel()

	discord, err := discordgo.New("Bot " + token)
	if err != nil {
		logrus.WithError(err).Fatal("Error creating Discord session")
	}
	discord.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	clips, err := storage.NewLocalStore(cfg.ClipsDir)
	if err != nil {
		logrus.WithError(err).Fatal("Error opening clip storage")
	}
	logrus.WithField("dir", cfg.ClipsDir).Debug("Clip storage ready")

	cache := streamcache.New(cfg.CacheTTL, cfg.CacheCapacity)
	ytdlp := resolver.NewYtDlp(cfg.YtDlpPath, cfg.YtDlpTimeout)
	streams := resolver.New(cache, ytdlp, clips, nil)
	mix := mixer.NewFFmpeg(cfg.FFmpegPath, cfg.Ducking)

	factory := func(guildID string, q *queue.Queue, sink audio.Sink) *player.Player {
		return player.New(guildID, q, sink, streams, mix, cfg.FFmpegPath)
	}
	sessions := voice.NewManager(voice.NewDiscordConnector(discord), factory, cfg.ReconnectWait)

	store, err := snapshot.Open(cfg.SnapshotPath)
	if err != nil {
		logrus.WithError(err).Fatal("Error opening snapshot store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close snapshot store")
		}
	}()

	var search engine.Searcher
	if cfg.YouTubeAPIKey != "" {
		search = resolver.NewYouTubeSearch(cfg.YouTubeAPIKey, nil)
		logrus.Debug("YouTube search enabled")
	} else {
		logrus.Warn("YOUTUBE_API_KEY not set, free-text search disabled")
	}
	spotify := resolver.NewSpotify(cfg.SpotifyClientID, cfg.SpotifyClientSecret, nil)
	if spotify.Enabled() {
		logrus.Debug("Spotify cross-referencing enabled")
	}

	eng := engine.New(sessions, search, spotify, ytdlp, clips, store)

	// Always start the MCP server - this is an MCP-first application
	mcpServer := mcp.NewServer(eng)
	go func() {
		if err := mcpServer.Start(ctx); err != nil {
			logrus.WithError(err).Error("MCP server error")
		}
	}()
	logrus.Info("MCP server started")

	if err := discord.Open(); err != nil {
		logrus.WithError(err).Fatal("Error connecting to Discord")
	}
	defer func() {
		if err := discord.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close Discord session")
		}
	}()
	logrus.Info("Connected to Discord")

	if restored := eng.RestoreAll(); restored > 0 {
		logrus.WithField("sessions", restored).Info("Restored playback from snapshots")
	}

	persister := snapshot.NewPersister(store, eng.Snapshots, cfg.SnapshotInterval)
	persistDone := make(chan struct{})
	go func() {
		persister.Run(ctx)
		close(persistDone)
	}()

	logrus.Info("Engine is running. Press CTRL-C to exit.")
	<-ctx.Done()

	logrus.Info("Shutting down gracefully...")
	// The persister takes its final flush before sessions are torn
	// down, so restartable state survives the shutdown.
	<-persistDone
	sessions.LeaveAll()
}
