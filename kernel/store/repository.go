package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/pkg/errors"
)

// Repository maps requests and machines onto a TableStore.
type Repository struct {
	tables TableStore
}

func NewRepository(tables TableStore) *Repository {
	return &Repository{tables: tables}
}

func (r *Repository) Tables() TableStore {
	return r.tables
}

func (r *Repository) Close() error {
	return r.tables.Close()
}

func (r *Repository) InsertRequest(ctx context.Context, req *model.Request) error {
	rec, err := toRecord(req)
	if err != nil {
		return err
	}
	return r.tables.Insert(ctx, TableRequests, req.RequestId, rec)
}

func (r *Repository) GetRequest(ctx context.Context, requestId string) (*model.Request, error) {
	rec, err := r.tables.Get(ctx, TableRequests, requestId)
	if err != nil {
		return nil, err
	}
	req := &model.Request{}
	if err := fromRecord(rec, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Repository) UpdateRequest(ctx context.Context, req *model.Request) error {
	rec, err := toRecord(req)
	if err != nil {
		return err
	}
	return r.tables.Update(ctx, TableRequests, req.RequestId, rec)
}

func (r *Repository) DeleteRequest(ctx context.Context, requestId string) error {
	return r.tables.Delete(ctx, TableRequests, requestId)
}

// ListRequests returns requests matching conds ordered by requested time.
func (r *Repository) ListRequests(ctx context.Context, conds Conditions) ([]*model.Request, error) {
	recs, err := r.tables.Query(ctx, TableRequests, conds)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Request, 0, len(recs))
	for _, rec := range recs {
		req := &model.Request{}
		if err := fromRecord(rec, req); err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RequestedTime.Before(out[j].RequestedTime)
	})
	return out, nil
}

func (r *Repository) InsertMachine(ctx context.Context, m *model.Machine) error {
	rec, err := toRecord(m)
	if err != nil {
		return err
	}
	return r.tables.Insert(ctx, TableMachines, m.MachineId, rec)
}

func (r *Repository) GetMachine(ctx context.Context, machineId string) (*model.Machine, error) {
	rec, err := r.tables.Get(ctx, TableMachines, machineId)
	if err != nil {
		return nil, err
	}
	m := &model.Machine{}
	if err := fromRecord(rec, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) UpdateMachine(ctx context.Context, m *model.Machine) error {
	rec, err := toRecord(m)
	if err != nil {
		return err
	}
	return r.tables.Update(ctx, TableMachines, m.MachineId, rec)
}

// UpsertMachine inserts m or updates the stored copy, keyed by machineId.
func (r *Repository) UpsertMachine(ctx context.Context, m *model.Machine) error {
	rec, err := toRecord(m)
	if err != nil {
		return err
	}
	err = r.tables.Update(ctx, TableMachines, m.MachineId, rec)
	if model.IsNotFound(err) {
		return r.tables.Insert(ctx, TableMachines, m.MachineId, rec)
	}
	return err
}

func (r *Repository) DeleteMachine(ctx context.Context, machineId string) error {
	return r.tables.Delete(ctx, TableMachines, machineId)
}

func (r *Repository) MachinesForRequest(ctx context.Context, requestId string) ([]*model.Machine, error) {
	return r.ListMachines(ctx, Conditions{"requestId": requestId})
}

func (r *Repository) MachinesForReturn(ctx context.Context, returnId string) ([]*model.Machine, error) {
	return r.ListMachines(ctx, Conditions{"returnId": returnId})
}

// ListMachines returns machines matching conds ordered by machineId.
func (r *Repository) ListMachines(ctx context.Context, conds Conditions) ([]*model.Machine, error) {
	recs, err := r.tables.Query(ctx, TableMachines, conds)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Machine, 0, len(recs))
	for _, rec := range recs {
		m := &model.Machine{}
		if err := fromRecord(rec, m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MachineId < out[j].MachineId
	})
	return out, nil
}

func toRecord(v interface{}) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode record")
	}
	rec := Record{}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to encode record")
	}
	return rec, nil
}

func fromRecord(rec Record, v interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to decode record")
	}
	return errors.Wrap(json.Unmarshal(data, v), "failed to decode record")
}
