package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
)

type snapshot struct {
	Category string         `json:"category"`
	Metrics  map[string]int `json:"metrics"`
}

// setupTestStore opens a badger store in a per-test temp directory.
func setupTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s := NewBadgerStore(log.NewTestLogger())
	if err := s.Open(t.TempDir()); err != nil {
		t.Fatalf("Failed to open BadgerDB store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func storesUnderTest(t *testing.T) map[string]Store {
	return map[string]Store{
		"badger": setupTestStore(t),
		"memory": NewMemoryStore(),
	}
}

func TestStoreCRUD(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rt := types.ResourceTypeStatSnapshot
			in := snapshot{Category: "personnel", Metrics: map[string]int{"onDuty": 85}}

			if err := s.Create(ctx, rt, "system", "personnel", in); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := s.Create(ctx, rt, "system", "personnel", in); !IsAlreadyExistsError(err) {
				t.Fatalf("expected already exists, got %v", err)
			}

			var got snapshot
			if err := s.Get(ctx, rt, "system", "personnel", &got); err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Metrics["onDuty"] != 85 {
				t.Fatalf("unexpected snapshot: %+v", got)
			}

			in.Metrics["onDuty"] = 90
			if err := s.Update(ctx, rt, "system", "personnel", in); err != nil {
				t.Fatalf("update: %v", err)
			}
			if err := s.Update(ctx, rt, "system", "missing", in); !IsNotFoundError(err) {
				t.Fatalf("expected not found on update, got %v", err)
			}

			var list []snapshot
			if err := s.List(ctx, rt, "system", &list); err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 1 || list[0].Metrics["onDuty"] != 90 {
				t.Fatalf("unexpected list: %+v", list)
			}

			if err := s.Delete(ctx, rt, "system", "personnel"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := s.Get(ctx, rt, "system", "personnel", &got); !IsNotFoundError(err) {
				t.Fatalf("expected not found after delete, got %v", err)
			}
		})
	}
}

func TestStoreListIsNamespaceScoped(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rt := types.ResourceTypeUser
			_ = s.Create(ctx, rt, "system", "a", map[string]string{"name": "a"})
			_ = s.Create(ctx, rt, "system2", "b", map[string]string{"name": "b"})

			var list []map[string]string
			if err := s.List(ctx, rt, "system", &list); err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 1 || list[0]["name"] != "a" {
				t.Fatalf("expected only system namespace, got %+v", list)
			}

			var empty []map[string]string
			if err := s.List(ctx, types.ResourceTypeToken, "system", &empty); err != nil {
				t.Fatalf("list empty: %v", err)
			}
			if len(empty) != 0 {
				t.Fatalf("expected no tokens, got %d", len(empty))
			}
		})
	}
}

func TestStoreHistory(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rt := types.ResourceTypeDashboardConfig
			for i := 1; i <= 3; i++ {
				doc := map[string]int{"revision": i}
				var err error
				if i == 1 {
					err = s.Create(ctx, rt, "system", "current", doc)
				} else {
					time.Sleep(time.Millisecond)
					err = s.Update(ctx, rt, "system", "current", doc)
				}
				if err != nil {
					t.Fatalf("write %d: %v", i, err)
				}
			}

			history, err := s.GetHistory(ctx, rt, "system", "current")
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(history) != 3 {
				t.Fatalf("expected 3 versions, got %d", len(history))
			}

			var oldest map[string]int
			if err := s.GetVersion(ctx, rt, "system", "current", history[2].Version, &oldest); err != nil {
				t.Fatalf("get version: %v", err)
			}
			if oldest["revision"] != 1 {
				t.Fatalf("expected newest-first order, oldest was %+v", oldest)
			}
		})
	}
}

func TestStoreTransactionRollsBack(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rt := types.ResourceTypePolicy
			boom := errors.New("boom")

			err := s.Transaction(ctx, func(tx Transaction) error {
				if err := tx.Create(rt, "system", "p1", map[string]string{"name": "p1"}); err != nil {
					return err
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected boom, got %v", err)
			}
			var p map[string]string
			if err := s.Get(ctx, rt, "system", "p1", &p); !IsNotFoundError(err) {
				t.Fatalf("expected rollback, got %v", err)
			}

			err = s.Transaction(ctx, func(tx Transaction) error {
				return tx.Create(rt, "system", "p1", map[string]string{"name": "p1"})
			})
			if err != nil {
				t.Fatalf("commit: %v", err)
			}
			if err := s.Get(ctx, rt, "system", "p1", &p); err != nil {
				t.Fatalf("expected committed resource: %v", err)
			}
		})
	}
}

func TestStoreWatch(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ch, err := s.Watch(ctx, types.ResourceTypeDashboardConfig, "")
			if err != nil {
				t.Fatalf("watch: %v", err)
			}
			if err := s.Create(ctx, types.ResourceTypeDashboardConfig, "system", "current", map[string]int{"r": 1}); err != nil {
				t.Fatalf("create: %v", err)
			}

			select {
			case ev := <-ch:
				if ev.Type != WatchEventCreated || ev.Name != "current" {
					t.Fatalf("unexpected event: %+v", ev)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for watch event")
			}
		})
	}
}
