package store

import (
	"context"
	"sort"
	"sync"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/pkg/errors"
)

// MemoryStore is an in-memory TableStore used by tests and the memory db type.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]Record // table -> key -> record
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{tables: make(map[string]map[string]Record)}
	for _, t := range Tables {
		s.tables[t] = make(map[string]Record)
	}
	return s
}

func (s *MemoryStore) Insert(_ context.Context, table, key string, rec Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tables[table][key]; exists {
		return errors.Errorf("record [%s] already exists in [%s]", key, table)
	}
	s.tables[table][key] = copyRecord(rec)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, table, key string) (Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tables[table][key]
	if !ok {
		return nil, model.NewNotFoundError(table, key)
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Update(_ context.Context, table, key string, rec Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tables[table][key]; !exists {
		return model.NewNotFoundError(table, key)
	}
	s.tables[table][key] = copyRecord(rec)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, table, key string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables[table], key)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, table string, conds Conditions) ([]Record, error) {
	all, err := s.Scan(ctx, table)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range all {
		if conds.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) Scan(_ context.Context, table string) ([]Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedRecords(s.tables[table]), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// sortedRecords copies a table in key order so scans are deterministic.
func sortedRecords(table map[string]Record) []Record {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, copyRecord(table[k]))
	}
	return out
}
