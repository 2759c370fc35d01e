package engine

import (
	"context"
	"time"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/chunga-ict/hfprovider/kernel/store"
	"github.com/pkg/errors"
)

// RequestResult is the outcome of one status query. Err is set for ids that
// could not be reported, such as unknown requests; it never aborts the batch.
type RequestResult struct {
	RequestId string
	Request   *model.Request
	Machines  []*model.Machine
	Err       error
}

// GetRequestStatus polls each request and reports it with its machines.
// With all set, every stored request is reported and requestIds is ignored.
func (r *Reconciler) GetRequestStatus(ctx context.Context, requestIds []string, all bool) ([]RequestResult, error) {
	if all {
		reqs, err := r.Repo.ListRequests(ctx, nil)
		if err != nil {
			return nil, err
		}
		requestIds = nil
		for _, req := range reqs {
			requestIds = append(requestIds, req.RequestId)
		}
	}

	results := make([]RequestResult, 0, len(requestIds))
	for _, id := range requestIds {
		res := r.checkOne(ctx, id)
		if res.Err != nil && !model.IsNotFound(res.Err) && !model.IsUnsupportedHandler(res.Err) {
			r.log.WithError(res.Err).WithField("requestId", id).Error("status check failed")
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Reconciler) checkOne(ctx context.Context, requestId string) RequestResult {
	unlock := r.lock(requestId)
	defer unlock()

	res := RequestResult{RequestId: requestId}
	req, err := r.Repo.GetRequest(ctx, requestId)
	if err != nil {
		res.Err = err
		return res
	}
	res.Request = req

	switch {
	case req.IsReturn():
		res.Machines, res.Err = r.returnStatus(ctx, req)
	case req.Status.IsTerminal():
		res.Machines, res.Err = r.settledStatus(ctx, req)
	default:
		res.Machines, res.Err = r.poll(ctx, req)
	}
	return res
}

// poll reconciles a running acquire request against the cloud. Machines are
// upserted before counters are recomputed from the stored set.
func (r *Reconciler) poll(ctx context.Context, req *model.Request) ([]*model.Machine, error) {
	now := r.now().Now()
	log := r.log.WithField("requestId", req.RequestId)
	from := req.Status

	backend, err := r.Dispatcher.Resolve(req.AwsHandler)
	if err != nil {
		return nil, err
	}
	report := backend.CheckRequestStatus(ctx, req)
	if report.Err != nil {
		log.WithError(report.Err).Warn("status check against the cloud failed")
		req.Fail(report.Err)
		req.Status = model.RequestCompleteWithErrors
		req.MarkChecked(now)
		machines, err := r.Repo.MachinesForRequest(ctx, req.RequestId)
		if err != nil {
			return nil, err
		}
		Counters(req, machines)
		return machines, r.persist(ctx, req, from)
	}

	for _, observed := range report.Machines {
		if err := r.upsert(ctx, observed, now); err != nil {
			return nil, err
		}
	}

	machines, err := r.Repo.MachinesForRequest(ctx, req.RequestId)
	if err != nil {
		return nil, err
	}
	Aggregate(req, machines, report.Status)
	if report.Message != "" {
		req.Message = report.Message
	}
	req.MarkChecked(now)
	if from != req.Status {
		log.Infof("request %s -> %s (running %d, failed %d, returned %d)",
			from, req.Status, req.NumRunning, req.NumFailed, req.NumReturned)
	}
	return machines, r.persist(ctx, req, from)
}

// upsert merges a freshly observed machine into its stored record, keyed by
// machineId, so repeated polls never duplicate a machine.
func (r *Reconciler) upsert(ctx context.Context, observed *model.Machine, now time.Time) error {
	stored, err := r.Repo.GetMachine(ctx, observed.MachineId)
	if model.IsNotFound(err) {
		return errors.Wrapf(r.Repo.InsertMachine(ctx, observed), "unable to insert machine [%s]", observed.MachineId)
	}
	if err != nil {
		return err
	}
	stored.MergeObserved(observed, now)
	return errors.Wrapf(r.Repo.UpdateMachine(ctx, stored), "unable to update machine [%s]", observed.MachineId)
}

// settledStatus refreshes the counters of a terminal acquire request from the
// store without calling the cloud.
func (r *Reconciler) settledStatus(ctx context.Context, req *model.Request) ([]*model.Machine, error) {
	machines, err := r.Repo.MachinesForRequest(ctx, req.RequestId)
	if err != nil {
		return nil, err
	}
	running, failed, returned := req.NumRunning, req.NumFailed, req.NumReturned
	Counters(req, machines)
	if running != req.NumRunning || failed != req.NumFailed || returned != req.NumReturned {
		if err := r.Repo.UpdateRequest(ctx, req); err != nil {
			return nil, err
		}
	}
	return machines, nil
}

// returnStatus reports the machines released under a return request. Return
// requests are terminal once their release calls finish.
func (r *Reconciler) returnStatus(ctx context.Context, req *model.Request) ([]*model.Machine, error) {
	machines, err := r.Repo.MachinesForReturn(ctx, req.RequestId)
	if err != nil {
		return nil, err
	}
	Counters(req, machines)
	req.MarkChecked(r.now().Now())
	if err := r.Repo.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	return machines, nil
}

// GetRequest loads one request without polling it.
func (r *Reconciler) GetRequest(ctx context.Context, requestId string) (*model.Request, error) {
	return r.Repo.GetRequest(ctx, requestId)
}

// ListReturnRequests lists stored return requests, oldest first.
func (r *Reconciler) ListReturnRequests(ctx context.Context) ([]*model.Request, error) {
	return r.Repo.ListRequests(ctx, store.Conditions{"requestType": string(model.RequestTypeReturn)})
}
