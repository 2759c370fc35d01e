package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/chunga-ict/hfprovider/kernel/hostfactory"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/chunga-ict/hfprovider/kernel/service"
	"github.com/chunga-ict/hfprovider/kernel/service/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func templateIds(out *hostfactory.TemplatesResponse) []string {
	var ids []string
	for _, doc := range out.Templates {
		ids = append(ids, doc["templateId"].(string))
	}
	return ids
}

func TestGetAvailableTemplates_Filters(t *testing.T) {
	h := servicetest.New(t, model.SchedulerHostFactory)
	s := h.Service

	all, err := s.GetAvailableTemplates(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"fleet", "run"}, templateIds(all))

	byHandler, err := s.GetAvailableTemplates(map[string]string{"awsHandler": "RunInstances"})
	require.NoError(t, err)
	assert.Equal(t, []string{"run"}, templateIds(byHandler))

	byPath, err := s.GetAvailableTemplates(map[string]string{"$.attributes.ncpus": "2", "maxNumber": "5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fleet", "run"}, templateIds(byPath))

	none, err := s.GetAvailableTemplates(map[string]string{"vmType": "c5.large"})
	require.NoError(t, err)
	assert.Empty(t, none.Templates)

	missing, err := s.GetAvailableTemplates(map[string]string{"noSuchField": "x"})
	require.NoError(t, err)
	assert.Empty(t, missing.Templates)
}

func TestParseFilters(t *testing.T) {
	filters, err := service.ParseFilters([]string{"awsHandler=EC2Fleet", "$.vmType=m5.large"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"awsHandler": "EC2Fleet", "$.vmType": "m5.large"}, filters)

	_, err = service.ParseFilters([]string{"awsHandler"})
	assert.True(t, model.IsValidation(err))
}

func TestRequestMachines_HostFactoryFlow(t *testing.T) {
	ctx := context.Background()
	h := servicetest.New(t, model.SchedulerHostFactory)
	s := h.Service

	created, err := s.RequestMachines(ctx, hostfactory.RequestMachinesInput{
		Template: hostfactory.TemplateRef{TemplateId: "fleet", NumMachines: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "running", created.Status)
	assert.Equal(t, "Request VM success.", created.Message)

	in := hostfactory.RequestStatusInput{Requests: []hostfactory.RequestRef{{RequestId: created.RequestId}}}
	status, err := s.GetRequestStatus(ctx, in, false, false)
	require.NoError(t, err)
	require.Len(t, status.Requests, 1)
	assert.Equal(t, "running", status.Requests[0].Status)
	require.Len(t, status.Requests[0].Machines, 2)

	var ids []string
	for _, m := range status.Requests[0].Machines {
		ids = append(ids, m.(map[string]interface{})["machineId"].(string))
	}
	h.Cloud.SetState(ec2.InstanceStateNameRunning, ids...)

	status, err = s.GetRequestStatus(ctx, in, false, false)
	require.NoError(t, err)
	assert.Equal(t, "complete", status.Requests[0].Status)
	for _, m := range status.Requests[0].Machines {
		doc := m.(map[string]interface{})
		assert.Equal(t, "succeed", doc["result"])
		assert.Equal(t, servicetest.Start.Unix(), doc["launchtime"])
	}
}

func TestRequestMachines_ValidationFailsFast(t *testing.T) {
	ctx := context.Background()
	s := servicetest.New(t, model.SchedulerHostFactory).Service

	_, err := s.RequestMachines(ctx, hostfactory.RequestMachinesInput{})
	assert.True(t, model.IsValidation(err))

	_, err = s.RequestMachines(ctx, hostfactory.RequestMachinesInput{
		Template: hostfactory.TemplateRef{TemplateId: "run", NumMachines: 6},
	})
	assert.True(t, model.IsValidation(err))

	_, err = s.GetRequestStatus(ctx, hostfactory.RequestStatusInput{}, false, false)
	assert.True(t, model.IsValidation(err))
}

func TestGetRequestStatus_UnknownAndAll(t *testing.T) {
	ctx := context.Background()
	h := servicetest.New(t, model.SchedulerDefault)
	reqId, _ := h.Running(t, "run", 1)

	in := hostfactory.RequestStatusInput{Requests: []hostfactory.RequestRef{{RequestId: reqId}, {RequestId: "req-missing"}}}
	status, err := h.Service.GetRequestStatus(ctx, in, false, true)
	require.NoError(t, err)
	require.Len(t, status.Requests, 2)
	assert.Equal(t, "COMPLETE", status.Requests[0].Status)
	assert.Equal(t, "COMPLETE_WITH_ERRORS", status.Requests[1].Status)
	assert.Contains(t, status.Requests[1].Message, "req-missing")

	long := status.Requests[0].Machines[0].(map[string]interface{})
	assert.Equal(t, reqId, long["requestId"])

	everything, err := h.Service.GetRequestStatus(ctx, hostfactory.RequestStatusInput{}, true, false)
	require.NoError(t, err)
	assert.Len(t, everything.Requests, 1)
}

func TestRequestReturnMachines_ByName(t *testing.T) {
	ctx := context.Background()
	h := servicetest.New(t, model.SchedulerHostFactory)
	_, ids := h.Running(t, "run", 2)

	m, err := h.Service.Reconciler.Repo.GetMachine(ctx, ids[0])
	require.NoError(t, err)

	created, err := h.Service.RequestReturnMachines(ctx, hostfactory.ReturnMachinesInput{
		Machines: []hostfactory.MachineRef{{Name: m.Name}},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "complete", created.Status)

	returned, err := h.Service.Reconciler.Repo.GetMachine(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.MachineReturned, returned.Status)
	assert.Equal(t, created.RequestId, returned.ReturnId)

	list, err := h.Service.ListReturnRequests(ctx, false)
	require.NoError(t, err)
	require.Len(t, list.Requests, 1)
	assert.Equal(t, created.RequestId, list.Requests[0].RequestId)
	assert.Len(t, list.Requests[0].Machines, 1)

	_, err = h.Service.RequestReturnMachines(ctx, hostfactory.ReturnMachinesInput{}, false)
	assert.True(t, model.IsValidation(err))
}

func TestGetReturnRequests_Reclaimed(t *testing.T) {
	ctx := context.Background()
	h := servicetest.New(t, model.SchedulerHostFactory)
	_, ids := h.Running(t, "run", 2)
	h.Cloud.SetState(ec2.InstanceStateNameTerminated, ids[1])

	out, err := h.Service.GetReturnRequests(ctx, hostfactory.ReturnRequestsInput{})
	require.NoError(t, err)
	assert.Equal(t, "complete", out.Status)
	require.Len(t, out.Requests, 1)
	assert.Equal(t, ids[1], out.Requests[0].MachineId)
	assert.Equal(t, 0, out.Requests[0].GracePeriod)
}

func TestCleanup_UsesReconcilerClock(t *testing.T) {
	ctx := context.Background()
	h := servicetest.New(t, model.SchedulerHostFactory)
	h.Running(t, "run", 1)

	report, err := h.Service.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Requests)

	h.Clock.Advance(15 * 24 * time.Hour)
	report, err = h.Service.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Requests)
	assert.Equal(t, 1, report.Machines)

	reqs, err := h.Service.Requests(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, reqs)
}
