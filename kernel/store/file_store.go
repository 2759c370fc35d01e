package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FileStore keeps every table in a single JSON document:
//
//	{"requests": {"<id>": {...}}, "machines": {"<id>": {...}}}
type FileStore struct {
	Path  string
	clock clockwork.Clock
	mu    sync.Mutex
	log   *logrus.Entry
}

func NewFileStore(path string, clock clockwork.Clock) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("json store requires a path")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &FileStore{
		Path:  path,
		clock: clock,
		log:   logrus.WithFields(logrus.Fields{"component": "store.json", "path": path}),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create store directory")
	}
	return s, nil
}

func (s *FileStore) Insert(_ context.Context, table, key string, rec Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readUnsafe()
	if err != nil {
		return err
	}
	if _, exists := doc[table][key]; exists {
		return errors.Errorf("record [%s] already exists in [%s]", key, table)
	}
	doc[table][key] = rec
	return s.writeUnsafe(doc)
}

func (s *FileStore) Get(_ context.Context, table, key string) (Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readUnsafe()
	if err != nil {
		return nil, err
	}
	rec, ok := doc[table][key]
	if !ok {
		return nil, model.NewNotFoundError(table, key)
	}
	return rec, nil
}

func (s *FileStore) Update(_ context.Context, table, key string, rec Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readUnsafe()
	if err != nil {
		return err
	}
	if _, exists := doc[table][key]; !exists {
		return model.NewNotFoundError(table, key)
	}
	doc[table][key] = rec
	return s.writeUnsafe(doc)
}

func (s *FileStore) Delete(_ context.Context, table, key string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readUnsafe()
	if err != nil {
		return err
	}
	if _, exists := doc[table][key]; !exists {
		return nil
	}
	delete(doc[table], key)
	return s.writeUnsafe(doc)
}

func (s *FileStore) Query(ctx context.Context, table string, conds Conditions) ([]Record, error) {
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

func (s *FileStore) Scan(_ context.Context, table string) ([]Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readUnsafe()
	if err != nil {
		return nil, err
	}
	return sortedRecords(doc[table]), nil
}

func (s *FileStore) Close() error {
	return nil
}

type document map[string]map[string]Record

func emptyDocument() document {
	doc := make(document)
	for _, t := range Tables {
		doc[t] = make(map[string]Record)
	}
	return doc
}

// readUnsafe loads the document. Unparsable content is moved aside to a
// timestamped backup and replaced with an empty document.
func (s *FileStore) readUnsafe() (document, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return emptyDocument(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read store")
	}
	if len(data) == 0 {
		return emptyDocument(), nil
	}

	doc := make(document)
	if err := json.Unmarshal(data, &doc); err != nil {
		corruption := s.recoverUnsafe(err)
		s.log.WithError(corruption).Warn("reinitialized corrupt store")
		return emptyDocument(), nil
	}
	for _, t := range Tables {
		if doc[t] == nil {
			doc[t] = make(map[string]Record)
		}
	}
	return doc, nil
}

func (s *FileStore) recoverUnsafe(cause error) error {
	backup := fmt.Sprintf("%s.corrupt.%s", s.Path, s.clock.Now().UTC().Format("20060102T150405Z"))
	if err := os.Rename(s.Path, backup); err != nil {
		s.log.WithError(err).Error("failed to back up corrupt store")
		backup = ""
	}
	if err := s.writeUnsafe(emptyDocument()); err != nil {
		s.log.WithError(err).Error("failed to reinitialize store")
	}
	return &model.StoreCorruptionError{Path: s.Path, BackupPath: backup, Err: cause}
}

func (s *FileStore) writeUnsafe(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal store")
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write store")
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return errors.Wrap(err, "failed to replace store")
	}
	return nil
}
