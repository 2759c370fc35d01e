package store

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/chunga-ict/hfprovider/kernel/model"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// BadgerStore keeps records under "<table>:<id>" keys in an embedded Badger DB.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 24)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open badger store [%s]", path)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(table, key string) []byte {
	return []byte(table + ":" + key)
}

func (s *BadgerStore) Insert(_ context.Context, table, key string, rec Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal record")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(table, key))
		if err == nil {
			return errors.Errorf("record [%s] already exists in [%s]", key, table)
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(badgerKey(table, key), data)
	})
}

func (s *BadgerStore) Get(_ context.Context, table, key string) (Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	var out Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(table, key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return model.NewNotFoundError(table, key)
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Update(_ context.Context, table, key string, rec Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal record")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(table, key)); err != nil {
			if err == badger.ErrKeyNotFound {
				return model.NewNotFoundError(table, key)
			}
			return err
		}
		return txn.Set(badgerKey(table, key), data)
	})
}

func (s *BadgerStore) Delete(_ context.Context, table, key string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(table, key))
	})
}

func (s *BadgerStore) Query(ctx context.Context, table string, conds Conditions) ([]Record, error) {
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

func (s *BadgerStore) Scan(_ context.Context, table string) ([]Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	prefix := []byte(table + ":")
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan [%s]", table)
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
