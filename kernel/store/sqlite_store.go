package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chunga-ict/hfprovider/kernel/model"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore keeps each table as (id, data) rows with the record JSON in data.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create store directory")
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite store [%s]", path)
	}
	// a single connection serializes writers the same way the file lock would
	db.SetMaxOpenConns(1)

	for _, t := range Tables {
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data TEXT NOT NULL)", t)
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "failed to create table [%s]", t)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, table, key string, rec Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal record")
	}
	stmt := fmt.Sprintf("INSERT INTO %s (id, data) VALUES (?, ?)", table)
	if _, err := s.db.ExecContext(ctx, stmt, key, string(data)); err != nil {
		return errors.Wrapf(err, "failed to insert [%s] into [%s]", key, table)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, table, key string) (Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	var data string
	stmt := fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table)
	err := s.db.QueryRowContext(ctx, stmt, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, model.NewNotFoundError(table, key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get [%s] from [%s]", key, table)
	}
	return decodeRecord([]byte(data))
}

func (s *SQLiteStore) Update(ctx context.Context, table, key string, rec Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal record")
	}
	stmt := fmt.Sprintf("UPDATE %s SET data = ? WHERE id = ?", table)
	res, err := s.db.ExecContext(ctx, stmt, string(data), key)
	if err != nil {
		return errors.Wrapf(err, "failed to update [%s] in [%s]", key, table)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.NewNotFoundError(table, key)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, table, key string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
	if _, err := s.db.ExecContext(ctx, stmt, key); err != nil {
		return errors.Wrapf(err, "failed to delete [%s] from [%s]", key, table)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, table string, conds Conditions) ([]Record, error) {
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

func (s *SQLiteStore) Scan(ctx context.Context, table string) ([]Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT data FROM %s ORDER BY id", table))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan [%s]", table)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrapf(err, "failed to read row from [%s]", table)
		}
		rec, err := decodeRecord([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to parse record")
	}
	return rec, nil
}
