package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

const (
	TableRequests = "requests"
	TableMachines = "machines"
)

// Tables lists every table a store must provide.
var Tables = []string{TableRequests, TableMachines}

// Record is one stored row, keyed by its natural id.
type Record map[string]interface{}

// Conditions selects records whose fields equal the given values.
type Conditions map[string]interface{}

// TableStore is the backend-agnostic persistence contract for request and
// machine records.
type TableStore interface {
	Insert(ctx context.Context, table, key string, rec Record) error
	Get(ctx context.Context, table, key string) (Record, error)
	Update(ctx context.Context, table, key string, rec Record) error
	Delete(ctx context.Context, table, key string) error
	Query(ctx context.Context, table string, conds Conditions) ([]Record, error)
	Scan(ctx context.Context, table string) ([]Record, error)
	Close() error
}

// Matches reports whether rec satisfies every condition. Values are compared
// by their printed form so numbers decoded as float64 still match ints.
func (c Conditions) Matches(rec Record) bool {
	for field, want := range c {
		got, ok := rec[field]
		if !ok {
			if want == nil || want == "" {
				continue
			}
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func checkTable(table string) error {
	for _, t := range Tables {
		if t == table {
			return nil
		}
	}
	return errors.Errorf("unknown table [%s]", table)
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
