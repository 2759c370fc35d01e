package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/chunga-ict/hfprovider/kernel/cloud"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// ExtReleasedAll marks an acquire request whose whole machine set was released.
const ExtReleasedAll = "releasedAll"

// Deps carries what every backend needs.
type Deps struct {
	Clients *cloud.Clients
	Config  *model.ProviderConfig
	Clock   clockwork.Clock
}

func (d Deps) clock() clockwork.Clock {
	if d.Clock == nil {
		return clockwork.NewRealClock()
	}
	return d.Clock
}

// StatusReport is what a backend observed for one acquire request. Machines
// are fresh, unpersisted records. Status is a hint: COMPLETE when the cloud
// resource reached its target size, COMPLETE_WITH_ERRORS on an unexpected
// cloud-side state, empty otherwise. Err is set when the cloud could not be
// queried at all.
type StatusReport struct {
	Machines []*model.Machine
	Status   model.RequestStatus
	Message  string
	Err      error
}

// ReleaseSet is the group of machines of one acquire request being returned.
// All is true when the set covers every machine the owner still holds.
type ReleaseSet struct {
	Owner    *model.Request
	Machines []*model.Machine
	All      bool
}

func (s ReleaseSet) MachineIds() []string {
	ids := make([]string, 0, len(s.Machines))
	for _, m := range s.Machines {
		ids = append(ids, m.MachineId)
	}
	return ids
}

// Backend provisions and releases machines for one kind of cloud resource.
type Backend interface {
	Handler() model.HandlerType
	// CheckTemplate rejects templates this backend cannot serve.
	CheckTemplate(tmpl *model.ProviderTemplate) error
	// Validate checks request preconditions before any cloud call.
	Validate(req *model.Request) error
	// BuildConfig produces the create-call input. It has no side effects.
	BuildConfig(req *model.Request, tmpl *model.ProviderTemplate) (interface{}, error)
	// AcquireHosts issues the create call. Cloud failures are returned as a
	// FAILED request, never as an error.
	AcquireHosts(ctx context.Context, req *model.Request, tmpl *model.ProviderTemplate) *model.Request
	// CheckRequestStatus observes the cloud resource behind req. It may append
	// newly seen instance ids to req.InstanceIds.
	CheckRequestStatus(ctx context.Context, req *model.Request) StatusReport
	// ReleaseHosts terminates the machines in set, marking ret COMPLETE or FAILED.
	ReleaseHosts(ctx context.Context, ret *model.Request, set ReleaseSet) *model.Request
}

// validateLaunchTemplate is shared by the fleet and ASG backends.
func validateLaunchTemplate(req *model.Request, needVersion bool) error {
	if req.NumRequested <= 0 {
		return model.NewValidationError("request [%s] numRequested must be greater than 0", req.RequestId)
	}
	if req.LaunchTemplateId == "" {
		return model.NewValidationError("request [%s] is missing a launch template id", req.RequestId)
	}
	if needVersion && (req.LaunchTemplateVersion == "" || req.LaunchTemplateVersion == "0") {
		return model.NewValidationError("request [%s] is missing a launch template version", req.RequestId)
	}
	return nil
}

func releasedAll(req *model.Request) bool {
	v, ok := req.Extensions.Get(ExtReleasedAll)
	b, _ := v.(bool)
	return ok && b
}

// unexpectedState reports a cloud-side state that ends the request with errors,
// unless the resource went away because every machine was returned.
func unexpectedState(report *StatusReport, req *model.Request, msg string) {
	if releasedAll(req) {
		return
	}
	report.Status = model.RequestCompleteWithErrors
	report.Message = msg
}

func setExtension(req *model.Request, key string, value interface{}) {
	if req.Extensions == nil {
		req.Extensions = make(model.Extensions)
	}
	req.Extensions[key] = value
}

// addInstanceIds appends ids not yet recorded on req.
func addInstanceIds(req *model.Request, ids []string) {
	known := make(map[string]bool, len(req.InstanceIds))
	for _, id := range req.InstanceIds {
		known[id] = true
	}
	for _, id := range ids {
		if id != "" && !known[id] {
			known[id] = true
			req.InstanceIds = append(req.InstanceIds, id)
		}
	}
}

// observeInstances describes every instance recorded on req. Ids EC2 no longer
// reports and that are not in active are reported TERMINATED.
func observeInstances(ctx context.Context, deps Deps, req *model.Request, active map[string]bool) ([]*model.Machine, error) {
	if len(req.InstanceIds) == 0 {
		return nil, nil
	}
	instances, err := cloud.DescribeInstances(ctx, deps.Clients.EC2, req.InstanceIds)
	if err != nil {
		return nil, err
	}
	now := deps.clock().Now()
	seen := map[string]bool{}
	var out []*model.Machine
	for _, inst := range instances {
		m := cloud.MachineFromInstance(inst, req.RequestId, req.ResourceId, now)
		seen[m.MachineId] = true
		out = append(out, m)
	}
	for _, id := range req.InstanceIds {
		if seen[id] || active[id] {
			continue
		}
		m := &model.Machine{MachineId: id, Name: id, RequestId: req.RequestId, ResourceId: req.ResourceId}
		m.SetStatus(model.MachineTerminated, now, "instance no longer reported by EC2")
		m.Message = m.TerminatedReason
		out = append(out, m)
	}
	return out, nil
}

func allRunning(machines []*model.Machine, want int) bool {
	running := 0
	for _, m := range machines {
		if m.Status == model.MachineRunning {
			running++
		}
	}
	return want > 0 && running >= want
}

// terminate terminates instance ids, treating already-gone instances as done.
func terminate(ctx context.Context, deps Deps, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := deps.Clients.EC2.TerminateInstancesWithContext(ctx, &ec2.TerminateInstancesInput{InstanceIds: aws.StringSlice(ids)})
	if err != nil && !cloud.IsMissing(err) {
		return cloud.ConvertError("TerminateInstances", err)
	}
	return nil
}

func complete(ret *model.Request, format string, args ...interface{}) *model.Request {
	ret.Status = model.RequestComplete
	ret.Message = fmt.Sprintf(format, args...)
	return ret
}

func backendLog(handler model.HandlerType, req *model.Request) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"component": "provider." + strings.ToLower(handler.String()),
		"requestId": req.RequestId,
	})
}
