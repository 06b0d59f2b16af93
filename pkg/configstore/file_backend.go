package configstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

var _ Backend = &FileBackend{}
var _ Watcher = &FileBackend{}

// FileBackend keeps the document in a JSON file. The revision is the
// SHA-256 of the file content. Writes land in a temp file in the same
// directory and are renamed over the target.
type FileBackend struct {
	path   string
	mu     sync.Mutex
	logger log.Logger
}

// NewFileBackend creates a backend for the file at path.
func NewFileBackend(path string, logger log.Logger) *FileBackend {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &FileBackend{path: path, logger: logger.WithComponent("config-file")}
}

// Path returns the backing file path.
func (b *FileBackend) Path() string { return b.path }

func contentRevision(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (b *FileBackend) Read(ctx context.Context) ([]byte, string, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", types.NewConfigError(err, "configuration file %s not found", b.path)
	} else if err != nil {
		return nil, "", types.NewConfigError(err, "failed to read configuration file %s", b.path)
	}
	return data, contentRevision(data), nil
}

func (b *FileBackend) Write(ctx context.Context, data []byte, expectedRev string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if expectedRev != "" {
		current, err := os.ReadFile(b.path)
		currentRev := ""
		if err == nil {
			currentRev = contentRevision(current)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", types.NewConfigError(err, "failed to read configuration file %s", b.path)
		}
		if currentRev != expectedRev {
			return "", types.NewConflictError("configuration revision is %s, expected %s", shortRev(currentRev), shortRev(expectedRev))
		}
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", types.NewConfigError(err, "failed to create configuration directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".armis-config-*.tmp")
	if err != nil {
		return "", types.NewConfigError(err, "failed to create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", types.NewConfigError(err, "failed to write configuration")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", types.NewConfigError(err, "failed to sync configuration")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", types.NewConfigError(err, "failed to close configuration temp file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return "", types.NewConfigError(err, "failed to set configuration file mode")
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		cleanup()
		return "", types.NewConfigError(err, "failed to replace configuration file %s", b.path)
	}

	rev := contentRevision(data)
	b.logger.Debug("Configuration file written", log.Str("path", b.path), log.Str("revision", shortRev(rev)))
	return rev, nil
}

// Watch reports create, write, rename and remove events on the backing
// file. Events are debounced since editors often write in several steps.
func (b *FileBackend) Watch(ctx context.Context, onChange func()) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory so renames over the file are seen.
	if err := fsw.Add(filepath.Dir(b.path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(b.path), err)
	}
	target := filepath.Clean(b.path)

	go func() {
		defer fsw.Close()
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, onChange)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				b.logger.Warn("Configuration watcher error", log.Err(err))
			}
		}
	}()
	return nil
}

func shortRev(rev string) string {
	if rev == "" {
		return "<none>"
	}
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
