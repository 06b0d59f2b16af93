package configstore

import (
	"context"
	"time"
)

// Backend persists the serialized configuration document. Every read
// returns an opaque revision; Write with a non-empty expectedRev fails with
// a ConflictError when the stored revision differs. An empty expectedRev
// writes unconditionally.
type Backend interface {
	Read(ctx context.Context) ([]byte, string, error)
	Write(ctx context.Context, data []byte, expectedRev string) (string, error)
}

// Watcher is implemented by backends that can report changes made by
// other writers. onChange is called from a background goroutine until ctx
// is done.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// HistoryEntry describes one stored revision of the document.
type HistoryEntry struct {
	Revision  string    `json:"revision"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Historian is implemented by backends that keep previous revisions.
type Historian interface {
	History(ctx context.Context) ([]HistoryEntry, error)
	ReadRevision(ctx context.Context, revision string) ([]byte, error)
}
