package hostfactory

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var launched = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func runningMachine() *model.Machine {
	m := &model.Machine{
		MachineId:        "i-0001",
		Name:             "ip-10-0-0-1.ec2.internal",
		RequestId:        "req-1",
		InstanceType:     "m5.large",
		PriceType:        model.PriceTypeOnDemand,
		PrivateIpAddress: "10.0.0.1",
		LaunchTime:       &launched,
		Extensions:       model.Extensions{"rack": "r12"},
	}
	m.SetStatus(model.MachineRunning, launched, "")
	return m
}

func TestFormatter_Status(t *testing.T) {
	hf := NewFormatter("")
	assert.Equal(t, "running", hf.Status(model.RequestRunning))
	assert.Equal(t, "complete", hf.Status(model.RequestComplete))
	assert.Equal(t, "complete_with_error", hf.Status(model.RequestCompleteWithErrors))
	assert.Equal(t, "complete_with_error", hf.Status(model.RequestFailed))

	def := NewFormatter(model.SchedulerDefault)
	assert.Equal(t, "COMPLETE_WITH_ERRORS", def.Status(model.RequestCompleteWithErrors))
}

func TestFormatter_ShortMachine(t *testing.T) {
	req := &model.Request{RequestId: "req-1", Status: model.RequestComplete}

	entry, err := NewFormatter(model.SchedulerHostFactory).Entry(req, []*model.Machine{runningMachine()}, false)
	require.NoError(t, err)
	require.Len(t, entry.Machines, 1)
	doc := entry.Machines[0].(map[string]interface{})
	assert.Equal(t, "complete", entry.Status)
	assert.Equal(t, "running", doc["status"])
	assert.Equal(t, "succeed", doc["result"])
	assert.Equal(t, launched.Unix(), doc["launchtime"])
	assert.NotContains(t, doc, "launchTime")
	assert.NotContains(t, doc, "rack")
	assert.NotContains(t, doc, "requestId")

	entry, err = NewFormatter(model.SchedulerDefault).Entry(req, []*model.Machine{runningMachine()}, false)
	require.NoError(t, err)
	doc = entry.Machines[0].(map[string]interface{})
	assert.Equal(t, "RUNNING", doc["status"])
	assert.Equal(t, "2026-03-01T12:00:00Z", doc["launchTime"])
}

func TestFormatter_LongMachineKeepsExtensions(t *testing.T) {
	req := &model.Request{RequestId: "req-1", Status: model.RequestRunning}
	entry, err := NewFormatter(model.SchedulerDefault).Entry(req, []*model.Machine{runningMachine()}, true)
	require.NoError(t, err)
	doc := entry.Machines[0].(map[string]interface{})
	assert.Equal(t, "r12", doc["rack"])
	assert.Equal(t, "req-1", doc["requestId"])
	assert.Equal(t, "m5.large", doc["instanceType"])
}

func TestFormatter_Templates(t *testing.T) {
	tmpl := &model.ProviderTemplate{
		TemplateId:   "run",
		MaxNumber:    3,
		AwsHandler:   model.HandlerRunInstances,
		ImageId:      "ami-1",
		InstanceType: "t3.small",
		SubnetId:     "subnet-a",
		Extensions:   model.Extensions{"pgrpName": "grp"},
	}

	out, err := NewFormatter(model.SchedulerHostFactory).Templates([]*model.ProviderTemplate{tmpl})
	require.NoError(t, err)
	require.Len(t, out.Templates, 1)
	assert.Equal(t, "grp", out.Templates[0]["pgrpName"])
	assert.Contains(t, out.Templates[0], "attributes")

	empty, err := NewFormatter(model.SchedulerDefault).Templates(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Templates)
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"templates":[]`)
}

func TestFormatter_ErrorEntryAndCreated(t *testing.T) {
	f := NewFormatter(model.SchedulerHostFactory)
	entry := f.ErrorEntry("req-x", errors.New("request [req-x] not found"))
	assert.Equal(t, "complete_with_error", entry.Status)
	assert.Equal(t, "request [req-x] not found", entry.Message)
	assert.NotNil(t, entry.Machines)

	created := f.RequestCreated(&model.Request{RequestId: "ret-1", RequestType: model.RequestTypeReturn, Status: model.RequestComplete})
	assert.Equal(t, "ret-1", created.RequestId)
	assert.Equal(t, "Delete VM success.", created.Message)
}

func TestFormatter_RequestCreatedMessages(t *testing.T) {
	acquire := &model.Request{
		RequestId:   "req-1",
		RequestType: model.RequestTypeAcquire,
		Status:      model.RequestRunning,
		Message:     "fleet [fleet-ec2-0002] created",
	}

	created := NewFormatter(model.SchedulerHostFactory).RequestCreated(acquire)
	assert.Equal(t, "running", created.Status)
	assert.Equal(t, "Request VM success.", created.Message)

	created = NewFormatter(model.SchedulerDefault).RequestCreated(acquire)
	assert.Equal(t, "RUNNING", created.Status)
	assert.Equal(t, "fleet [fleet-ec2-0002] created", created.Message)

	failed := &model.Request{
		RequestId:   "req-2",
		RequestType: model.RequestTypeAcquire,
		Status:      model.RequestCompleteWithErrors,
		Error:       "InsufficientInstanceCapacity",
	}
	created = NewFormatter(model.SchedulerHostFactory).RequestCreated(failed)
	assert.Equal(t, "complete_with_error", created.Status)
	assert.Equal(t, "InsufficientInstanceCapacity", created.Message)
}

func TestInputs(t *testing.T) {
	var in RequestMachinesInput
	require.NoError(t, json.Unmarshal([]byte(`{"template":{"templateId":"t","machineCount":3}}`), &in))
	assert.Equal(t, 3, in.Template.Count())

	var ret ReturnMachinesInput
	require.NoError(t, json.Unmarshal([]byte(`{"machines":[{"name":"host-1"},{"machineId":"i-2","name":"host-2"}]}`), &ret))
	assert.Equal(t, []string{"host-1", "i-2"}, ret.MachineIds())

	var rr ReturnRequestsInput
	require.NoError(t, json.Unmarshal([]byte(`{"machines":[{"name":"host-1"},{"machineId":"i-2"}]}`), &rr))
	assert.Equal(t, []string{"host-1", "i-2"}, rr.Names())

	reclaimed := NewFormatter("").ReturnRequests([]*model.Machine{{MachineId: "i-2"}})
	assert.Equal(t, []ReturnRequestEntry{{Machine: "i-2", MachineId: "i-2"}}, reclaimed.Requests)
}
