package engine

import (
	"context"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/chunga-ict/hfprovider/kernel/store"
)

// GetReturnRequests reports tracked machines the cloud reclaimed on its own
// (spot interruption, out of band stop or termination), so the scheduler can
// return them. names selects machines by name or machine id; when empty every
// RUNNING machine is checked. Reclaimed machines are updated in the store.
func (r *Reconciler) GetReturnRequests(ctx context.Context, names []string) ([]*model.Machine, error) {
	candidates, err := r.reclaimCandidates(ctx, names)
	if err != nil || len(candidates) == 0 {
		return nil, err
	}

	observed, err := r.Dispatcher.Observe(ctx, candidates)
	if err != nil {
		return nil, err
	}
	byId := make(map[string]*model.Machine, len(observed))
	for _, m := range observed {
		byId[m.MachineId] = m
	}

	now := r.now().Now()
	var reclaimed []*model.Machine
	for _, stored := range candidates {
		seen, ok := byId[stored.MachineId]
		if !ok || !isReclaimed(seen.Status) {
			continue
		}
		stored.MergeObserved(seen, now)
		if err := r.Repo.UpdateMachine(ctx, stored); err != nil {
			return nil, err
		}
		reclaimed = append(reclaimed, stored)
	}
	if len(reclaimed) > 0 {
		r.log.Infof("%d of %d machines were reclaimed by the cloud", len(reclaimed), len(candidates))
	}
	return reclaimed, nil
}

func (r *Reconciler) reclaimCandidates(ctx context.Context, names []string) ([]*model.Machine, error) {
	if len(names) == 0 {
		return r.Repo.ListMachines(ctx, store.Conditions{"status": string(model.MachineRunning)})
	}
	all, err := r.Repo.ListMachines(ctx, nil)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []*model.Machine
	for _, m := range all {
		if m.IsReturned() {
			continue
		}
		if wanted[m.MachineId] || (m.Name != "" && wanted[m.Name]) {
			out = append(out, m)
		}
	}
	return out, nil
}

func isReclaimed(status model.MachineStatus) bool {
	switch status {
	case model.MachineTerminated, model.MachineShuttingDown, model.MachineStopped, model.MachineStopping:
		return true
	}
	return false
}
