package engine

import (
	"github.com/chunga-ict/hfprovider/kernel/model"
)

// Counters recomputes the aggregate counters of req from machines.
// numFailed counts every status other than RUNNING and RETURNED, so pending
// machines count as failed until they come up.
func Counters(req *model.Request, machines []*model.Machine) {
	req.NumRunning, req.NumFailed, req.NumReturned = 0, 0, 0
	for _, m := range machines {
		switch m.Status {
		case model.MachineRunning:
			req.NumRunning++
		case model.MachineReturned:
			req.NumReturned++
		default:
			req.NumFailed++
		}
	}
}

// Aggregate recomputes counters and derives the request status from machines
// and the backend hint. A terminal status never changes. The result depends
// only on its inputs, so repeating it over the same machine set is a no-op.
func Aggregate(req *model.Request, machines []*model.Machine, hint model.RequestStatus) model.RequestStatus {
	Counters(req, machines)
	if req.Status.IsTerminal() {
		return req.Status
	}

	switch {
	case hint == model.RequestCompleteWithErrors || hint == model.RequestFailed:
		req.Status = model.RequestCompleteWithErrors
	case inFlight(machines):
		req.Status = model.RequestRunning
	case len(machines) < req.NumRequested && hint != model.RequestComplete:
		// weighted fleets may fulfil capacity with fewer instances; only the
		// backend can say the target was reached
		req.Status = model.RequestRunning
	case len(machines) == 0:
		req.Status = model.RequestRunning
	case req.NumFailed > 0:
		req.Status = model.RequestCompleteWithErrors
	default:
		req.Status = model.RequestComplete
	}
	return req.Status
}

func inFlight(machines []*model.Machine) bool {
	for _, m := range machines {
		if m.Result == model.ResultExecuting && !m.IsReturned() {
			return true
		}
	}
	return false
}
