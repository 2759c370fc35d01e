package engine

import (
	"context"
	"time"

	"github.com/chunga-ict/hfprovider/kernel/model"
)

const (
	DefaultRequestRetention  = 14 * 24 * time.Hour
	DefaultReturnGracePeriod = time.Hour
)

type CleanupReport struct {
	Requests int `json:"requests"`
	Machines int `json:"machines"`
}

func (r *Reconciler) retention() (acquire, ret time.Duration) {
	acquire, ret = DefaultRequestRetention, DefaultReturnGracePeriod
	if r.Config != nil {
		if r.Config.RequestRetention > 0 {
			acquire = r.Config.RequestRetention
		}
		if r.Config.ReturnGracePeriod > 0 {
			ret = r.Config.ReturnGracePeriod
		}
	}
	return acquire, ret
}

// Cleanup deletes terminal requests that aged out as of now. Acquire requests
// go with their machines once older than the request retention; return
// requests once older than the grace period. Running requests are kept.
func (r *Reconciler) Cleanup(ctx context.Context, now time.Time) (CleanupReport, error) {
	var report CleanupReport
	acquireRetention, returnRetention := r.retention()

	reqs, err := r.Repo.ListRequests(ctx, nil)
	if err != nil {
		return report, err
	}
	for _, req := range reqs {
		if !req.Status.IsTerminal() {
			continue
		}
		age := now.Sub(lastActivity(req))
		if req.IsReturn() {
			if age <= returnRetention {
				continue
			}
		} else {
			if age <= acquireRetention {
				continue
			}
			machines, err := r.Repo.MachinesForRequest(ctx, req.RequestId)
			if err != nil {
				return report, err
			}
			for _, m := range machines {
				if err := r.Repo.DeleteMachine(ctx, m.MachineId); err != nil {
					return report, err
				}
				report.Machines++
			}
		}
		if err := r.Repo.DeleteRequest(ctx, req.RequestId); err != nil {
			return report, err
		}
		r.forget(req.RequestId)
		report.Requests++
		r.log.WithField("requestId", req.RequestId).Debugf("swept %s request aged %s", req.RequestType, age)
	}
	if report.Requests > 0 {
		r.log.Infof("cleanup removed %d requests and %d machines", report.Requests, report.Machines)
	}
	return report, nil
}

func lastActivity(req *model.Request) time.Time {
	if req.LastStatusCheckTime != nil && req.LastStatusCheckTime.After(req.RequestedTime) {
		return *req.LastStatusCheckTime
	}
	return req.RequestedTime
}
