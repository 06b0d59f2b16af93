package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/types"
)

const storedConfigName = "current"

var _ Backend = &StoreBackend{}
var _ Watcher = &StoreBackend{}
var _ Historian = &StoreBackend{}

// storedConfig is the state store record wrapping the document.
type storedConfig struct {
	Revision  int64           `json:"revision"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Document  json.RawMessage `json:"document"`
}

// StoreBackend keeps the document in the state store. Revisions are
// increasing integers and every write is kept in the store's history.
type StoreBackend struct {
	st     store.Store
	logger log.Logger
}

// NewStoreBackend creates a backend over st.
func NewStoreBackend(st store.Store, logger log.Logger) *StoreBackend {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &StoreBackend{st: st, logger: logger.WithComponent("config-store")}
}

func (b *StoreBackend) Read(ctx context.Context) ([]byte, string, error) {
	var rec storedConfig
	err := b.st.Get(ctx, types.ResourceTypeDashboardConfig, types.NamespaceSystem, storedConfigName, &rec)
	if store.IsNotFoundError(err) {
		return nil, "", types.NewConfigError(err, "no configuration document in state store")
	} else if err != nil {
		return nil, "", types.NewConfigError(err, "failed to read configuration from state store")
	}
	return rec.Document, strconv.FormatInt(rec.Revision, 10), nil
}

func (b *StoreBackend) Write(ctx context.Context, data []byte, expectedRev string) (string, error) {
	if !json.Valid(data) {
		return "", types.NewConfigError(nil, "refusing to store invalid JSON")
	}
	var next int64
	err := b.st.Transaction(ctx, func(tx store.Transaction) error {
		var cur storedConfig
		exists := true
		if err := tx.Get(types.ResourceTypeDashboardConfig, types.NamespaceSystem, storedConfigName, &cur); store.IsNotFoundError(err) {
			exists = false
		} else if err != nil {
			return err
		}

		if expectedRev != "" {
			curRev := ""
			if exists {
				curRev = strconv.FormatInt(cur.Revision, 10)
			}
			if curRev != expectedRev {
				return types.NewConflictError("configuration revision is %s, expected %s", shortRev(curRev), expectedRev)
			}
		}

		next = cur.Revision + 1
		rec := storedConfig{Revision: next, UpdatedAt: time.Now().UTC(), Document: data}
		if !exists {
			return tx.Create(types.ResourceTypeDashboardConfig, types.NamespaceSystem, storedConfigName, &rec)
		}
		return tx.Update(types.ResourceTypeDashboardConfig, types.NamespaceSystem, storedConfigName, &rec)
	})
	if err != nil {
		if types.KindOf(err) == types.KindConflict {
			return "", err
		}
		return "", types.NewConfigError(err, "failed to write configuration to state store")
	}
	rev := strconv.FormatInt(next, 10)
	b.logger.Debug("Configuration stored", log.Str("revision", rev))
	return rev, nil
}

// Watch forwards state store change events for the document.
func (b *StoreBackend) Watch(ctx context.Context, onChange func()) error {
	ch, err := b.st.Watch(ctx, types.ResourceTypeDashboardConfig, types.NamespaceSystem)
	if err != nil {
		return fmt.Errorf("failed to watch configuration: %w", err)
	}
	go func() {
		for ev := range ch {
			if ev.Name == storedConfigName {
				onChange()
			}
		}
	}()
	return nil
}

// History lists stored revisions, newest first.
func (b *StoreBackend) History(ctx context.Context) ([]HistoryEntry, error) {
	versions, err := b.st.GetHistory(ctx, types.ResourceTypeDashboardConfig, types.NamespaceSystem, storedConfigName)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration history: %w", err)
	}
	out := make([]HistoryEntry, 0, len(versions))
	for _, v := range versions {
		var rec storedConfig
		if err := json.Unmarshal(v.Resource, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode configuration version %s: %w", v.Version, err)
		}
		var head struct {
			Version string `json:"version"`
		}
		_ = json.Unmarshal(rec.Document, &head)
		out = append(out, HistoryEntry{
			Revision:  strconv.FormatInt(rec.Revision, 10),
			Version:   head.Version,
			Timestamp: rec.UpdatedAt,
		})
	}
	return out, nil
}

// ReadRevision returns the document stored at revision.
func (b *StoreBackend) ReadRevision(ctx context.Context, revision string) ([]byte, error) {
	versions, err := b.st.GetHistory(ctx, types.ResourceTypeDashboardConfig, types.NamespaceSystem, storedConfigName)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration history: %w", err)
	}
	for _, v := range versions {
		var rec storedConfig
		if err := json.Unmarshal(v.Resource, &rec); err != nil {
			continue
		}
		if strconv.FormatInt(rec.Revision, 10) == revision {
			return rec.Document, nil
		}
	}
	return nil, types.NewNotFoundError("configuration revision %s not found", revision)
}
