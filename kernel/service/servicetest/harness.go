// Package servicetest wires a Service against the in-memory store and the
// fake cloud for surface tests.
package servicetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/chunga-ict/hfprovider/kernel/cloud/cloudtest"
	"github.com/chunga-ict/hfprovider/kernel/engine"
	"github.com/chunga-ict/hfprovider/kernel/events"
	"github.com/chunga-ict/hfprovider/kernel/hostfactory"
	"github.com/chunga-ict/hfprovider/kernel/loader"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/chunga-ict/hfprovider/kernel/provider"
	"github.com/chunga-ict/hfprovider/kernel/service"
	"github.com/chunga-ict/hfprovider/kernel/store"
	"github.com/jonboulle/clockwork"
)

var Start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type Harness struct {
	Service *service.Service
	Cloud   *cloudtest.Cloud
	Clock   clockwork.FakeClock
	Events  *events.Recorder
}

// Template returns a valid template for handler.
func Template(id string, handler model.HandlerType) *model.ProviderTemplate {
	tmpl := &model.ProviderTemplate{
		TemplateId:       id,
		MaxNumber:        5,
		AwsHandler:       handler,
		ImageId:          "ami-12345",
		InstanceType:     "m5.large",
		SubnetId:         "subnet-a",
		SecurityGroupIds: []string{"sg-1"},
		Attributes:       map[string][]string{"type": {"String", "X86_64"}, "ncpus": {"Numeric", "2"}},
	}
	if handler == model.HandlerSpotFleet {
		tmpl.FleetRole = "arn:aws:iam::123456789012:role/fleet"
	}
	return tmpl
}

// New builds a harness whose catalog holds a "fleet" EC2Fleet template and a
// "run" RunInstances template, formatting for scheduler.
func New(t *testing.T, scheduler string) *Harness {
	t.Helper()
	fake := cloudtest.New()
	clock := clockwork.NewFakeClockAt(Start)
	cfg := &model.ProviderConfig{Scheduler: scheduler}

	catalog := loader.NewCatalog(filepath.Join(t.TempDir(), "awsprov_templates.json"))
	for _, tmpl := range []*model.ProviderTemplate{
		Template("fleet", model.HandlerEC2Fleet),
		Template("run", model.HandlerRunInstances),
	} {
		if err := catalog.Add(tmpl); err != nil {
			t.Fatalf("failed to add template: %v", err)
		}
	}

	deps := provider.Deps{Clients: fake.Clients(), Config: cfg, Clock: clock}
	repo := store.NewRepository(store.NewMemoryStore())
	r := engine.NewReconciler(repo, catalog, provider.NewDispatcher(deps), cfg)
	r.Clock = clock
	rec := &events.Recorder{}
	r.Events = rec

	return &Harness{
		Service: service.New(r, catalog, hostfactory.NewFormatter(scheduler)),
		Cloud:   fake,
		Clock:   clock,
		Events:  rec,
	}
}

// Running acquires count machines from templateId and brings them to
// running. It returns the request id and the machine ids.
func (h *Harness) Running(t *testing.T, templateId string, count int) (string, []string) {
	t.Helper()
	ctx := context.Background()
	r := h.Service.Reconciler
	req, err := r.RequestMachines(ctx, templateId, count)
	if err != nil {
		t.Fatalf("RequestMachines failed: %v", err)
	}
	results, err := r.GetRequestStatus(ctx, []string{req.RequestId}, false)
	if err != nil {
		t.Fatalf("GetRequestStatus failed: %v", err)
	}
	var ids []string
	for _, m := range results[0].Machines {
		ids = append(ids, m.MachineId)
	}
	h.Cloud.SetState(ec2.InstanceStateNameRunning, ids...)
	if _, err := r.GetRequestStatus(ctx, []string{req.RequestId}, false); err != nil {
		t.Fatalf("GetRequestStatus failed: %v", err)
	}
	return req.RequestId, ids
}
