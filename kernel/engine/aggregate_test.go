package engine

import (
	"testing"
	"time"

	"github.com/chunga-ict/hfprovider/kernel/model"
)

func machinesWith(statuses ...model.MachineStatus) []*model.Machine {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var out []*model.Machine
	for _, s := range statuses {
		m := &model.Machine{MachineId: "i-" + string(s)}
		m.SetStatus(s, now, "")
		out = append(out, m)
	}
	return out
}

func TestAggregate(t *testing.T) {
	cases := []struct {
		name     string
		start    model.RequestStatus
		machines []*model.Machine
		hint     model.RequestStatus
		want     model.RequestStatus
		counts   [3]int
	}{
		{"all running", model.RequestRunning, machinesWith(model.MachineRunning, model.MachineRunning), "", model.RequestComplete, [3]int{2, 0, 0}},
		{"one terminated", model.RequestRunning, machinesWith(model.MachineRunning, model.MachineTerminated), "", model.RequestCompleteWithErrors, [3]int{1, 1, 0}},
		{"still pending", model.RequestRunning, machinesWith(model.MachineRunning, model.MachinePending), model.RequestComplete, model.RequestRunning, [3]int{1, 1, 0}},
		{"nothing observed", model.RequestRunning, nil, "", model.RequestRunning, [3]int{0, 0, 0}},
		{"fewer than requested", model.RequestRunning, machinesWith(model.MachineRunning), "", model.RequestRunning, [3]int{1, 0, 0}},
		{"weighted fleet fulfilled", model.RequestRunning, machinesWith(model.MachineRunning), model.RequestComplete, model.RequestComplete, [3]int{1, 0, 0}},
		{"unexpected cloud state", model.RequestRunning, machinesWith(model.MachinePending), model.RequestCompleteWithErrors, model.RequestCompleteWithErrors, [3]int{0, 1, 0}},
		{"returned do not block", model.RequestRunning, machinesWith(model.MachineRunning, model.MachineReturned), "", model.RequestComplete, [3]int{1, 0, 1}},
		{"terminal is kept", model.RequestComplete, machinesWith(model.MachineTerminated, model.MachineTerminated), model.RequestCompleteWithErrors, model.RequestComplete, [3]int{0, 2, 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := &model.Request{RequestId: "req-1", NumRequested: 2, Status: c.start}
			for i := 0; i < 2; i++ {
				got := Aggregate(req, c.machines, c.hint)
				if got != c.want {
					t.Fatalf("pass %d: expected status %s, got %s", i, c.want, got)
				}
				counts := [3]int{req.NumRunning, req.NumFailed, req.NumReturned}
				if counts != c.counts {
					t.Fatalf("pass %d: expected counters %v, got %v", i, c.counts, counts)
				}
			}
		})
	}
}
