package snapshot

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultInterval is how often live playback state is flushed to disk.
const DefaultInterval = 60 * time.Second

// Collector reports the current playback state of every live session.
// A record with no current track and an empty queue means the guild
// has nothing worth resuming.
type Collector func() []Record

// Persister periodically flushes session state through a Store.
type Persister struct {
	store    *Store
	collect  Collector
	interval time.Duration
}

// NewPersister builds a persister. A zero interval selects the
// default.
func NewPersister(store *Store, collect Collector, interval time.Duration) *Persister {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Persister{store: store, collect: collect, interval: interval}
}

// Run flushes on a ticker until the context is cancelled, then takes
// one final flush so shutdown state is not lost.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.SaveAll()
			return
		case <-ticker.C:
			p.SaveAll()
		}
	}
}

// SaveAll writes one snapshot per session with resumable state and
// clears rows for sessions that have none. A failure on one guild does
// not stop the others.
func (p *Persister) SaveAll() {
	for _, rec := range p.collect() {
		rec.SavedAt = time.Now()
		var err error
		if rec.NowPlaying == nil && len(rec.Queue) == 0 {
			err = p.store.Delete(rec.GuildID)
		} else {
			err = p.store.Save(rec)
		}
		if err != nil {
			logrus.WithError(err).WithField("guild_id", rec.GuildID).Warn("Failed to persist playback snapshot")
		}
	}
}
