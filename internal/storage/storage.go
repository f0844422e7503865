// Package storage is the byte-stream collaborator for locally stored
// soundboard clips. The engine only ever reads; clip upload/management
// belongs to the out-of-scope web layer.
package storage

import (
	"io"
	"time"
)

// ClipInfo describes one stored clip.
type ClipInfo struct {
	Name     string        `json:"name"`
	Size     int64         `json:"size"`
	Duration time.Duration `json:"duration,omitempty"`
}

// ClipStore is the storage collaborator interface consumed by the
// engine.
type ClipStore interface {
	ListClips() ([]ClipInfo, error)
	ClipExists(name string) bool
	GetClipStream(name string) (io.ReadCloser, error)
}
