package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/jonboulle/clockwork"
)

func newTestStores(t *testing.T) map[string]TableStore {
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	file, err := NewFileStore(filepath.Join(dir, "request_db.json"), clock)
	if err != nil {
		t.Fatalf("failed to create json store: %v", err)
	}
	sqlite, err := NewSQLiteStore(filepath.Join(dir, "request_db.sqlite"))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	badger, err := NewBadgerStore(filepath.Join(dir, "request_db.badger"))
	if err != nil {
		t.Fatalf("failed to create badger store: %v", err)
	}
	stores := map[string]TableStore{
		"memory": NewMemoryStore(),
		"json":   file,
		"sqlite": sqlite,
		"badger": badger,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestTableStores_CRUD(t *testing.T) {
	ctx := context.Background()
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			rec := Record{"requestId": "req-1", "status": "RUNNING", "numRequested": 2}
			if err := s.Insert(ctx, TableRequests, "req-1", rec); err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
			if err := s.Insert(ctx, TableRequests, "req-1", rec); err == nil {
				t.Error("expected duplicate insert to fail")
			}

			got, err := s.Get(ctx, TableRequests, "req-1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got["status"] != "RUNNING" {
				t.Errorf("expected status RUNNING, got %v", got["status"])
			}

			got["status"] = "COMPLETE"
			if err := s.Update(ctx, TableRequests, "req-1", got); err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			got, _ = s.Get(ctx, TableRequests, "req-1")
			if got["status"] != "COMPLETE" {
				t.Errorf("expected status COMPLETE after update, got %v", got["status"])
			}

			if err := s.Update(ctx, TableRequests, "req-missing", rec); !model.IsNotFound(err) {
				t.Errorf("expected not found on update of missing key, got %v", err)
			}
			if _, err := s.Get(ctx, TableMachines, "i-missing"); !model.IsNotFound(err) {
				t.Errorf("expected not found on get of missing key, got %v", err)
			}

			if err := s.Delete(ctx, TableRequests, "req-1"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := s.Delete(ctx, TableRequests, "req-1"); err != nil {
				t.Errorf("deleting a missing key should be a no-op, got %v", err)
			}
			if _, err := s.Get(ctx, TableRequests, "req-1"); !model.IsNotFound(err) {
				t.Errorf("expected not found after delete, got %v", err)
			}

			if _, err := s.Scan(ctx, "hosts"); err == nil {
				t.Error("expected unknown table to be rejected")
			}
		})
	}
}

func TestTableStores_Query(t *testing.T) {
	ctx := context.Background()
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			machines := []Record{
				{"machineId": "i-1", "requestId": "req-a", "status": "RUNNING"},
				{"machineId": "i-2", "requestId": "req-a", "status": "PENDING"},
				{"machineId": "i-3", "requestId": "req-b", "status": "RUNNING", "returnId": "ret-1"},
			}
			for _, m := range machines {
				if err := s.Insert(ctx, TableMachines, m["machineId"].(string), m); err != nil {
					t.Fatalf("Insert failed: %v", err)
				}
			}

			found, err := s.Query(ctx, TableMachines, Conditions{"requestId": "req-a"})
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(found) != 2 {
				t.Errorf("expected 2 machines for req-a, got %d", len(found))
			}

			found, _ = s.Query(ctx, TableMachines, Conditions{"requestId": "req-a", "status": "RUNNING"})
			if len(found) != 1 || found[0]["machineId"] != "i-1" {
				t.Errorf("expected only i-1, got %v", found)
			}

			found, _ = s.Query(ctx, TableMachines, Conditions{"returnId": "ret-1"})
			if len(found) != 1 || found[0]["machineId"] != "i-3" {
				t.Errorf("expected only i-3 for ret-1, got %v", found)
			}

			all, _ := s.Scan(ctx, TableMachines)
			if len(all) != 3 {
				t.Errorf("expected 3 machines, got %d", len(all))
			}
		})
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "request_db.json")

	first, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := first.Insert(ctx, TableRequests, "req-1", Record{"requestId": "req-1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	second, _ := NewFileStore(path, nil)
	if _, err := second.Get(ctx, TableRequests, "req-1"); err != nil {
		t.Errorf("record not visible to a second store on the same file: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not survive a write")
	}
}

func TestFileStore_RecoversFromCorruption(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "request_db.json")
	if err := os.WriteFile(path, []byte(`{"requests": {"req-1": `), 0644); err != nil {
		t.Fatalf("failed to seed corrupt file: %v", err)
	}

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s, err := NewFileStore(path, clock)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	recs, err := s.Scan(ctx, TableRequests)
	if err != nil {
		t.Fatalf("Scan on corrupt store should recover, got %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty store after recovery, got %d records", len(recs))
	}

	backup := path + ".corrupt.20260301T120000Z"
	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("expected backup at %s: %v", backup, err)
	}
	if !strings.Contains(string(data), "req-1") {
		t.Error("backup should hold the original corrupt content")
	}

	if err := s.Insert(ctx, TableRequests, "req-2", Record{"requestId": "req-2"}); err != nil {
		t.Errorf("store should be usable after recovery: %v", err)
	}
}
