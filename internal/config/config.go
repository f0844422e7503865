// Package config loads runtime configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/fankserver/discord-dj/internal/mixer"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the full runtime configuration of the engine.
type Config struct {
	Token string

	// Stream cache
	CacheTTL      time.Duration
	CacheCapacity int

	// External tools
	YtDlpPath    string
	YtDlpTimeout time.Duration
	FFmpegPath   string

	// Clip storage
	ClipsDir string

	// Snapshot persistence
	SnapshotPath     string
	SnapshotInterval time.Duration

	// Voice
	ReconnectWait time.Duration

	// Integrations
	YouTubeAPIKey       string
	SpotifyClientID     string
	SpotifyClientSecret string

	Ducking mixer.Profile
}

// Load reads the .env file if present and assembles the configuration
// from environment variables with defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("Error loading .env file, using environment variables")
	}

	return Config{
		Token: os.Getenv("DISCORD_TOKEN"),

		CacheTTL:      envDuration("STREAM_CACHE_TTL", 2*time.Hour),
		CacheCapacity: envInt("STREAM_CACHE_CAPACITY", 500),

		YtDlpPath:    envString("YTDLP_PATH", "yt-dlp"),
		YtDlpTimeout: envDuration("YTDLP_TIMEOUT", 30*time.Second),
		FFmpegPath:   envString("FFMPEG_PATH", "ffmpeg"),

		ClipsDir: envString("CLIPS_DIR", "clips"),

		SnapshotPath:     envString("SNAPSHOT_PATH", "snapshots.db"),
		SnapshotInterval: envDuration("SNAPSHOT_INTERVAL", 60*time.Second),

		ReconnectWait: envDuration("RECONNECT_WAIT", 5*time.Second),

		YouTubeAPIKey:       os.Getenv("YOUTUBE_API_KEY"),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),

		Ducking: duckingProfile(),
	}
}

func duckingProfile() mixer.Profile {
	p := mixer.DefaultProfile()
	p.Threshold = envFloat("DUCK_THRESHOLD", p.Threshold)
	p.Ratio = envFloat("DUCK_RATIO", p.Ratio)
	p.AttackMs = envInt("DUCK_ATTACK_MS", p.AttackMs)
	p.ReleaseMs = envInt("DUCK_RELEASE_MS", p.ReleaseMs)
	return p
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithField("key", key).WithError(err).Warn("Ignoring invalid integer in environment")
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logrus.WithField("key", key).WithError(err).Warn("Ignoring invalid number in environment")
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logrus.WithField("key", key).WithError(err).Warn("Ignoring invalid duration in environment")
		return fallback
	}
	return d
}
