package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultFor(t *testing.T) {
	expected := map[MachineStatus]MachineResult{
		MachinePending:      ResultExecuting,
		MachineRunning:      ResultSucceed,
		MachineStopping:     ResultExecuting,
		MachineStopped:      ResultFail,
		MachineShuttingDown: ResultExecuting,
		MachineTerminated:   ResultFail,
		MachineReturned:     ResultExecuting,
		MachineUnknown:      ResultExecuting,
	}
	for status, result := range expected {
		assert.Equal(t, result, ResultFor(status), "status %s", status)
	}
}

func TestMachine_SetStatusStampsTransitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := &Machine{MachineId: "i-1", Status: MachineRunning}

	m.SetStatus(MachineTerminated, now, "Client.UserInitiatedShutdown")

	assert.Equal(t, ResultFail, m.Result)
	require.NotNil(t, m.TerminatedTime)
	assert.Equal(t, now, *m.TerminatedTime)
	assert.Equal(t, "Client.UserInitiatedShutdown", m.TerminatedReason)
}

func TestMachine_MergeObservedKeepsReturned(t *testing.T) {
	now := time.Now()
	stored := &Machine{MachineId: "i-1", RequestId: "req-1", ReturnId: "ret-1"}
	stored.SetStatus(MachineReturned, now, "")

	observed := &Machine{MachineId: "i-1", Status: MachineTerminated, PrivateIpAddress: "10.0.0.4"}
	stored.MergeObserved(observed, now.Add(time.Minute))

	assert.Equal(t, MachineReturned, stored.Status)
	assert.Equal(t, "ret-1", stored.ReturnId)
	assert.Equal(t, "10.0.0.4", stored.PrivateIpAddress)
	assert.NotNil(t, stored.TerminatedTime)
}

func TestMachine_JSONKeepsExtensions(t *testing.T) {
	in := []byte(`{"machineId":"i-1","requestId":"req-1","status":"RUNNING","result":"fail","spotInstanceRequestId":"sir-9","tags":{"a":"b"}}`)

	var m Machine
	require.NoError(t, json.Unmarshal(in, &m))
	assert.Equal(t, ResultSucceed, m.Result)
	assert.Equal(t, "sir-9", m.Extensions.String("spotInstanceRequestId"))

	out, err := json.Marshal(m)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, "sir-9", fields["spotInstanceRequestId"])
	assert.Equal(t, map[string]interface{}{"a": "b"}, fields["tags"])
	assert.Equal(t, "succeed", fields["result"])
}
