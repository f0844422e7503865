// Package snapshot persists per-guild playback state so the engine can
// resume after a crash or restart. One row per guild holds the channel
// to rejoin, the interrupted track and the pending queue.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fankserver/discord-dj/internal/track"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Record is one guild's persisted playback state. The interrupted
// track, when present, is restored at the front of the queue; playback
// resumes from the track start, not the interrupted position.
type Record struct {
	GuildID    string        `json:"guildId"`
	ChannelID  string        `json:"channelId"`
	NowPlaying *track.Track  `json:"nowPlaying,omitempty"`
	Queue      []track.Track `json:"queue"`
	SavedAt    time.Time     `json:"savedAt"`
}

// payload is the JSON column body; guild, channel and timestamp live
// in their own columns.
type payload struct {
	NowPlaying *track.Track  `json:"nowPlaying,omitempty"`
	Queue      []track.Track `json:"queue"`
}

// Store is a SQLite-backed snapshot repository.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening snapshot database: %w", err)
	}
	schema := `
	  create table if not exists playback_snapshots (
		guild_id text primary key,
		channel_id text not null,
		payload text not null,
		saved_at timestamp not null
	  );`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating snapshot schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts the guild's snapshot.
func (s *Store) Save(rec Record) error {
	body, err := json.Marshal(payload{NowPlaying: rec.NowPlaying, Queue: rec.Queue})
	if err != nil {
		return fmt.Errorf("error encoding snapshot: %w", err)
	}
	query := `
	  insert into playback_snapshots (guild_id, channel_id, payload, saved_at)
	  values ($1, $2, $3, $4)
	  on conflict(guild_id) do update
		 set channel_id = excluded.channel_id,
			 payload = excluded.payload,
			 saved_at = excluded.saved_at;`
	if _, err := s.db.Exec(query, rec.GuildID, rec.ChannelID, string(body), rec.SavedAt); err != nil {
		return fmt.Errorf("error saving snapshot for guild %s: %w", rec.GuildID, err)
	}
	return nil
}

// Load returns the guild's snapshot, or (nil, nil) when none exists.
func (s *Store) Load(guildID string) (*Record, error) {
	query := `
	  select guild_id, channel_id, payload, saved_at
	  from playback_snapshots where guild_id=$1;`
	var (
		rec  Record
		body string
	)
	err := s.db.QueryRow(query, guildID).Scan(&rec.GuildID, &rec.ChannelID, &body, &rec.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading snapshot for guild %s: %w", guildID, err)
	}
	if err := decodePayload(body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadAll returns every stored snapshot. A row with a corrupt payload
// is skipped rather than failing the whole load.
func (s *Store) LoadAll() ([]Record, error) {
	query := `select guild_id, channel_id, payload, saved_at from playback_snapshots;`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("error loading snapshots: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			rec  Record
			body string
		)
		if err := rows.Scan(&rec.GuildID, &rec.ChannelID, &body, &rec.SavedAt); err != nil {
			return nil, fmt.Errorf("error scanning snapshot row: %w", err)
		}
		if err := decodePayload(body, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes the guild's snapshot; deleting a missing row is fine.
func (s *Store) Delete(guildID string) error {
	if _, err := s.db.Exec(`delete from playback_snapshots where guild_id=$1;`, guildID); err != nil {
		return fmt.Errorf("error deleting snapshot for guild %s: %w", guildID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decodePayload(body string, rec *Record) error {
	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return fmt.Errorf("error decoding snapshot for guild %s: %w", rec.GuildID, err)
	}
	rec.NowPlaying = p.NowPlaying
	rec.Queue = p.Queue
	if rec.Queue == nil {
		rec.Queue = []track.Track{}
	}
	return nil
}
