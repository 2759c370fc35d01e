package store

import (
	"context"
	"testing"
	"time"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_RequestsAndMachines(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tmpl := &model.ProviderTemplate{TemplateId: "t1", AwsHandler: model.HandlerEC2Fleet}
	older := model.NewAcquireRequest(tmpl, 1, now.Add(-time.Hour))
	newer := model.NewAcquireRequest(tmpl, 2, now)
	require.NoError(t, repo.InsertRequest(ctx, newer))
	require.NoError(t, repo.InsertRequest(ctx, older))

	reqs, err := repo.ListRequests(ctx, Conditions{"templateId": "t1"})
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, older.RequestId, reqs[0].RequestId)
	assert.Equal(t, 2, reqs[1].NumRequested)

	newer.ResourceId = "fleet-123"
	require.NoError(t, repo.UpdateRequest(ctx, newer))
	got, err := repo.GetRequest(ctx, newer.RequestId)
	require.NoError(t, err)
	assert.Equal(t, "fleet-123", got.ResourceId)
	assert.True(t, got.RequestedTime.Equal(now))

	m := &model.Machine{MachineId: "i-1", RequestId: newer.RequestId}
	m.SetStatus(model.MachinePending, now, "")
	require.NoError(t, repo.UpsertMachine(ctx, m))
	m.SetStatus(model.MachineRunning, now.Add(time.Minute), "")
	require.NoError(t, repo.UpsertMachine(ctx, m))

	machines, err := repo.MachinesForRequest(ctx, newer.RequestId)
	require.NoError(t, err)
	require.Len(t, machines, 1)
	assert.Equal(t, model.MachineRunning, machines[0].Status)
	assert.Equal(t, model.ResultSucceed, machines[0].Result)

	none, err := repo.MachinesForReturn(ctx, "ret-unknown")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = repo.GetRequest(ctx, "req-missing")
	assert.True(t, model.IsNotFound(err))
}
