package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/chunga-ict/hfprovider/kernel/provider"
	"github.com/chunga-ict/hfprovider/kernel/store"
	"github.com/pkg/errors"
)

// ReturnTarget selects the machines to return: explicit machine ids, every
// machine of the given acquire requests, or every machine still held.
type ReturnTarget struct {
	MachineIds []string
	RequestIds []string
	All        bool
}

// RequestReturnMachines creates a return request for the target machines and
// releases them, one release call per owning acquire request. Unknown or
// already returned machines are skipped.
func (r *Reconciler) RequestReturnMachines(ctx context.Context, target ReturnTarget) (*model.Request, error) {
	machines, err := r.returnTargets(ctx, target)
	if err != nil {
		return nil, err
	}

	ret := model.NewReturnRequest(machineIdsOf(machines), r.now().Now())
	log := r.log.WithField("requestId", ret.RequestId)
	if err := r.Repo.InsertRequest(ctx, ret); err != nil {
		return nil, errors.Wrapf(err, "unable to persist request [%s]", ret.RequestId)
	}
	if len(machines) == 0 {
		ret.Status = model.RequestComplete
		ret.Message = "no machines to return"
		return ret, r.persist(ctx, ret, model.RequestRunning)
	}

	var failures []string
	for _, group := range groupByOwner(machines) {
		if err := r.releaseGroup(ctx, ret, group); err != nil {
			if !model.IsCloudBackend(err) && !model.IsNotFound(err) && !model.IsUnsupportedHandler(err) {
				return nil, err
			}
			log.WithError(err).Warnf("release of machines of [%s] failed", group[0].RequestId)
			failures = append(failures, err.Error())
		}
	}

	returned, err := r.Repo.MachinesForReturn(ctx, ret.RequestId)
	if err != nil {
		return nil, err
	}
	Counters(ret, returned)
	if len(failures) > 0 {
		ret.Status = model.RequestCompleteWithErrors
		ret.Message = strings.Join(failures, "; ")
		ret.Error = ret.Message
	} else {
		ret.Status = model.RequestComplete
		ret.Message = fmt.Sprintf("returned %d machines", len(returned))
	}
	log.Infof("return finished with %s: %s", ret.Status, ret.Message)
	return ret, r.persist(ctx, ret, model.RequestRunning)
}

// releaseGroup releases machines that all belong to one acquire request.
func (r *Reconciler) releaseGroup(ctx context.Context, ret *model.Request, group []*model.Machine) error {
	ownerId := group[0].RequestId
	unlock := r.lock(ownerId)
	defer unlock()

	owner, err := r.Repo.GetRequest(ctx, ownerId)
	if err != nil {
		return err
	}
	backend, err := r.Dispatcher.Resolve(owner.AwsHandler)
	if err != nil {
		return err
	}
	held, err := r.Repo.MachinesForRequest(ctx, ownerId)
	if err != nil {
		return err
	}
	releasing := make(map[string]bool, len(group))
	for _, m := range group {
		releasing[m.MachineId] = true
	}
	// machines the cloud already took away no longer hold the resource open
	others := 0
	for _, m := range held {
		if !releasing[m.MachineId] && !m.IsReturned() && !isGone(m.Status) {
			others++
		}
	}

	set := provider.ReleaseSet{Owner: owner, Machines: group, All: others == 0}
	scratch := *ret
	result := r.Dispatcher.Release(ctx, backend, &scratch, set)
	if result.Status == model.RequestFailed {
		return model.NewCloudBackendError("ReleaseHosts", "", errors.New(result.Message))
	}

	now := r.now().Now()
	for _, m := range group {
		m.ReturnId = ret.RequestId
		m.SetStatus(model.MachineReturned, now, "")
		if err := r.Repo.UpdateMachine(ctx, m); err != nil {
			return err
		}
	}
	if set.All {
		if owner.Extensions == nil {
			owner.Extensions = make(model.Extensions)
		}
		owner.Extensions[provider.ExtReleasedAll] = true
	}
	held, err = r.Repo.MachinesForRequest(ctx, ownerId)
	if err != nil {
		return err
	}
	Counters(owner, held)
	return r.Repo.UpdateRequest(ctx, owner)
}

func (r *Reconciler) returnTargets(ctx context.Context, target ReturnTarget) ([]*model.Machine, error) {
	var candidates []*model.Machine
	switch {
	case target.All:
		acquires, err := r.Repo.ListRequests(ctx, store.Conditions{"requestType": string(model.RequestTypeAcquire)})
		if err != nil {
			return nil, err
		}
		for _, req := range acquires {
			held, err := r.Repo.MachinesForRequest(ctx, req.RequestId)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, held...)
		}
	case len(target.RequestIds) > 0:
		for _, id := range target.RequestIds {
			held, err := r.Repo.MachinesForRequest(ctx, id)
			if err != nil {
				return nil, err
			}
			if len(held) == 0 {
				r.log.Debugf("request [%s] holds no machines, skipping", id)
			}
			candidates = append(candidates, held...)
		}
	default:
		for _, id := range target.MachineIds {
			m, err := r.Repo.GetMachine(ctx, id)
			if model.IsNotFound(err) {
				r.log.Debugf("machine [%s] is not tracked, skipping", id)
				continue
			}
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, m)
		}
	}

	seen := map[string]bool{}
	var out []*model.Machine
	for _, m := range candidates {
		if seen[m.MachineId] || m.IsReturned() {
			continue
		}
		seen[m.MachineId] = true
		out = append(out, m)
	}
	return out, nil
}

// groupByOwner groups machines by requestId, keeping first-seen order.
func groupByOwner(machines []*model.Machine) [][]*model.Machine {
	index := map[string]int{}
	var groups [][]*model.Machine
	for _, m := range machines {
		i, ok := index[m.RequestId]
		if !ok {
			i = len(groups)
			index[m.RequestId] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], m)
	}
	return groups
}

func isGone(status model.MachineStatus) bool {
	return status == model.MachineTerminated || status == model.MachineShuttingDown
}

func machineIdsOf(machines []*model.Machine) []string {
	ids := make([]string, 0, len(machines))
	for _, m := range machines {
		ids = append(ids, m.MachineId)
	}
	return ids
}
