package provider

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/chunga-ict/hfprovider/kernel/cloud"
	"github.com/chunga-ict/hfprovider/kernel/cloud/cloudtest"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDeps(fake *cloudtest.Cloud) Deps {
	return Deps{
		Clients: fake.Clients(),
		Config:  &model.ProviderConfig{DefaultTags: map[string]string{"team": "hpc"}},
		Clock:   clockwork.NewFakeClockAt(testNow),
	}
}

func testTemplate(handler model.HandlerType) *model.ProviderTemplate {
	return &model.ProviderTemplate{
		TemplateId:       "tmpl-" + handler.String(),
		MaxNumber:        10,
		AwsHandler:       handler,
		ImageId:          "ami-12345",
		InstanceType:     "m5.large",
		SubnetId:         "subnet-a,subnet-b",
		SecurityGroupIds: []string{"sg-1"},
		FleetRole:        "arn:aws:iam::123456789012:role/fleet",
		InstanceTags:     map[string]string{"cluster": "symphony"},
	}
}

// prepared returns a RUNNING acquire request with its launch template materialized.
func prepared(t *testing.T, d *Dispatcher, tmpl *model.ProviderTemplate, count int) *model.Request {
	req := model.NewAcquireRequest(tmpl, count, testNow)
	require.NoError(t, d.Prepare(context.Background(), req, tmpl))
	return req
}

func machineIds(machines []*model.Machine) []string {
	var ids []string
	for _, m := range machines {
		ids = append(ids, m.MachineId)
	}
	return ids
}

func TestDispatcher_PrepareOnce(t *testing.T) {
	fake := cloudtest.New()
	d := NewDispatcher(newTestDeps(fake))
	tmpl := testTemplate(model.HandlerEC2Fleet)
	tmpl.UserData = "#!/bin/bash\necho hello"

	req := prepared(t, d, tmpl, 2)
	assert.NotEmpty(t, req.LaunchTemplateId)
	assert.Equal(t, "1", req.LaunchTemplateVersion)
	assert.Equal(t, req.RequestId, req.Tags[cloud.TagRequestId])
	assert.Equal(t, "EC2Fleet", req.Tags[cloud.TagHandler])
	assert.Equal(t, cloud.ManagedByValue, req.Tags[cloud.TagManagedBy])
	assert.Equal(t, "symphony", req.Tags["cluster"])
	assert.Equal(t, "hpc", req.Tags["team"])

	input := fake.Inputs("CreateLaunchTemplate")[0].(*ec2.CreateLaunchTemplateInput)
	assert.Equal(t, "hf-"+req.RequestId, aws.StringValue(input.LaunchTemplateName))
	assert.Equal(t, "ami-12345", aws.StringValue(input.LaunchTemplateData.ImageId))
	assert.NotContains(t, aws.StringValue(input.LaunchTemplateData.UserData), "#!/bin/bash")

	require.NoError(t, d.Prepare(context.Background(), req, tmpl))
	assert.Len(t, fake.Inputs("CreateLaunchTemplate"), 1, "pre-flight must run once per acquire")
}

func TestDispatcher_ResolvesSSMImage(t *testing.T) {
	fake := cloudtest.New()
	fake.Params["/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-6.1-x86_64"] = "ami-from-ssm"
	d := NewDispatcher(newTestDeps(fake))
	tmpl := testTemplate(model.HandlerRunInstances)
	tmpl.ImageId = SSMImagePrefix + "/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-6.1-x86_64"

	req := prepared(t, d, tmpl, 1)
	assert.Equal(t, "ami-from-ssm", req.Extensions.String("imageId"))

	missing := testTemplate(model.HandlerRunInstances)
	missing.ImageId = SSMImagePrefix + "/not/there"
	err := d.Prepare(context.Background(), model.NewAcquireRequest(missing, 1, testNow), missing)
	require.Error(t, err)
	assert.True(t, model.IsCloudBackend(err))
}

func TestBackends_ValidateRequiresLaunchTemplate(t *testing.T) {
	for _, h := range Handlers() {
		b, err := NewBackend(h, Deps{})
		require.NoError(t, err)
		req := model.NewAcquireRequest(testTemplate(h), 1, testNow)
		assert.True(t, model.IsValidation(b.Validate(req)), "%s should reject a request without launch template", h)

		req.LaunchTemplateId = "lt-1"
		req.LaunchTemplateVersion = "1"
		assert.NoError(t, b.Validate(req), "%s", h)

		req.NumRequested = 0
		assert.True(t, model.IsValidation(b.Validate(req)), "%s should reject zero machines", h)
	}

	run := &RunInstances{}
	req := &model.Request{RequestId: "req-1", NumRequested: 1, LaunchTemplateId: "lt-1"}
	assert.NoError(t, run.Validate(req), "RunInstances needs only a launch template id")
	fleet := &EC2Fleet{}
	assert.True(t, model.IsValidation(fleet.Validate(req)))
}

func TestEC2Fleet_BuildConfigHeterogeneous(t *testing.T) {
	d := NewDispatcher(newTestDeps(cloudtest.New()))
	tmpl := testTemplate(model.HandlerEC2Fleet)
	tmpl.PriceType = model.PriceTypeHeterogeneous
	tmpl.PercentOnDemand = 25
	tmpl.InstanceTypes = map[string]int{"c5.xlarge": 2}
	tmpl.AllocationStrategy = "capacityOptimized"
	req := prepared(t, d, tmpl, 8)

	cfg, err := (&EC2Fleet{}).BuildConfig(req, tmpl)
	require.NoError(t, err)
	input := cfg.(*ec2.CreateFleetInput)

	spec := input.TargetCapacitySpecification
	assert.Equal(t, int64(8), aws.Int64Value(spec.TotalTargetCapacity))
	assert.Equal(t, int64(2), aws.Int64Value(spec.OnDemandTargetCapacity))
	assert.Equal(t, int64(6), aws.Int64Value(spec.SpotTargetCapacity))
	assert.Equal(t, "capacity-optimized", aws.StringValue(input.SpotOptions.AllocationStrategy))
	// two subnets times two instance types
	assert.Len(t, input.LaunchTemplateConfigs[0].Overrides, 4)
	assert.Equal(t, req.RequestId, aws.StringValue(input.ClientToken))
}

func TestEC2Fleet_Lifecycle(t *testing.T) {
	ctx := context.Background()
	fake := cloudtest.New()
	deps := newTestDeps(fake)
	d := NewDispatcher(deps)
	tmpl := testTemplate(model.HandlerEC2Fleet)
	tmpl.FleetType = model.FleetTypeMaintain
	req := prepared(t, d, tmpl, 3)

	backend, err := d.Resolve(model.HandlerEC2Fleet)
	require.NoError(t, err)
	req = backend.AcquireHosts(ctx, req, tmpl)
	require.Equal(t, model.RequestRunning, req.Status)
	require.NotEmpty(t, req.ResourceId)

	report := backend.CheckRequestStatus(ctx, req)
	require.NoError(t, report.Err)
	require.Len(t, report.Machines, 3)
	assert.Equal(t, model.MachinePending, report.Machines[0].Status)
	assert.Len(t, req.InstanceIds, 3)

	fake.SetState(ec2.InstanceStateNameRunning, req.InstanceIds...)
	report = backend.CheckRequestStatus(ctx, req)
	require.NoError(t, report.Err)
	assert.Equal(t, model.RequestComplete, report.Status)
	for _, m := range report.Machines {
		assert.Equal(t, model.MachineRunning, m.Status)
		assert.Equal(t, req.RequestId, m.RequestId)
		assert.Equal(t, req.ResourceId, m.ResourceId)
	}

	ret := model.NewReturnRequest([]string{report.Machines[0].MachineId}, testNow)
	ret = d.Release(ctx, backend, ret, ReleaseSet{Owner: req, Machines: report.Machines[:1]})
	require.Equal(t, model.RequestComplete, ret.Status)
	modify := fake.Inputs("ModifyFleet")[0].(*ec2.ModifyFleetInput)
	assert.Equal(t, int64(2), aws.Int64Value(modify.TargetCapacitySpecification.TotalTargetCapacity))
	assert.Equal(t, ec2.InstanceStateNameTerminated, aws.StringValue(fake.Instances[report.Machines[0].MachineId].State.Name))

	ret = model.NewReturnRequest(machineIds(report.Machines[1:]), testNow)
	ret = d.Release(ctx, backend, ret, ReleaseSet{Owner: req, Machines: report.Machines[1:], All: true})
	require.Equal(t, model.RequestComplete, ret.Status)
	del := fake.Inputs("DeleteFleets")[0].(*ec2.DeleteFleetsInput)
	assert.True(t, aws.BoolValue(del.TerminateInstances))
	assert.Len(t, fake.Inputs("DeleteLaunchTemplate"), 1)
}

func TestEC2Fleet_InstantFleet(t *testing.T) {
	ctx := context.Background()
	fake := cloudtest.New()
	fake.LaunchState = ec2.InstanceStateNameRunning
	d := NewDispatcher(newTestDeps(fake))
	tmpl := testTemplate(model.HandlerEC2Fleet)
	tmpl.FleetType = model.FleetTypeInstant
	req := prepared(t, d, tmpl, 2)

	backend, _ := d.Resolve(model.HandlerEC2Fleet)
	req = backend.AcquireHosts(ctx, req, tmpl)
	require.Equal(t, model.RequestRunning, req.Status)
	assert.Len(t, req.InstanceIds, 2)

	report := backend.CheckRequestStatus(ctx, req)
	require.NoError(t, report.Err)
	assert.Equal(t, model.RequestComplete, report.Status)
	assert.Empty(t, fake.Inputs("DescribeFleetInstances"))

	ret := backend.ReleaseHosts(ctx, model.NewReturnRequest(req.InstanceIds, testNow), ReleaseSet{Owner: req, Machines: report.Machines, All: true})
	assert.Equal(t, model.RequestComplete, ret.Status)
	assert.Len(t, fake.Inputs("TerminateInstances"), 1)
	assert.Empty(t, fake.Inputs("DeleteFleets"))
}

func TestEC2Fleet_CloudFailureBecomesState(t *testing.T) {
	fake := cloudtest.New()
	fake.Fail("CreateFleet", "InsufficientInstanceCapacity")
	d := NewDispatcher(newTestDeps(fake))
	tmpl := testTemplate(model.HandlerEC2Fleet)
	req := prepared(t, d, tmpl, 2)

	backend, _ := d.Resolve(model.HandlerEC2Fleet)
	req = backend.AcquireHosts(context.Background(), req, tmpl)
	assert.Equal(t, model.RequestFailed, req.Status)
	assert.Contains(t, req.Message, "InsufficientInstanceCapacity")
	assert.Empty(t, req.ResourceId)
}

func TestEC2Fleet_DeletedFleetIsUnexpected(t *testing.T) {
	ctx := context.Background()
	fake := cloudtest.New()
	d := NewDispatcher(newTestDeps(fake))
	tmpl := testTemplate(model.HandlerEC2Fleet)
	req := prepared(t, d, tmpl, 1)
	backend, _ := d.Resolve(model.HandlerEC2Fleet)
	req = backend.AcquireHosts(ctx, req, tmpl)

	fake.Fleets[req.ResourceId].FleetState = aws.String(ec2.FleetStateCodeFailed)
	report := backend.CheckRequestStatus(ctx, req)
	require.NoError(t, report.Err)
	assert.Equal(t, model.RequestCompleteWithErrors, report.Status)
	assert.Contains(t, report.Message, "unexpected state")

	setExtension(req, ExtReleasedAll, true)
	report = backend.CheckRequestStatus(ctx, req)
	assert.Empty(t, report.Status, "a released fleet going away is expected")
}

func TestSpotFleet_Lifecycle(t *testing.T) {
	ctx := context.Background()
	fake := cloudtest.New()
	d := NewDispatcher(newTestDeps(fake))
	tmpl := testTemplate(model.HandlerSpotFleet)
	tmpl.PriceType = model.PriceTypeSpot

	backend, _ := d.Resolve(model.HandlerSpotFleet)
	noRole := testTemplate(model.HandlerSpotFleet)
	noRole.FleetRole = ""
	assert.True(t, model.IsValidation(backend.CheckTemplate(noRole)))

	req := backend.AcquireHosts(ctx, prepared(t, d, tmpl, 2), tmpl)
	require.Equal(t, model.RequestRunning, req.Status)
	input := fake.Inputs("RequestSpotFleet")[0].(*ec2.RequestSpotFleetInput)
	assert.Equal(t, "lowestPrice", aws.StringValue(input.SpotFleetRequestConfig.AllocationStrategy))

	fake.SetState(ec2.InstanceStateNameRunning, fake.SpotFleetInstances[req.ResourceId]...)
	report := backend.CheckRequestStatus(ctx, req)
	require.NoError(t, report.Err)
	assert.Equal(t, model.RequestComplete, report.Status)
	require.Len(t, report.Machines, 2)
	assert.Equal(t, model.PriceTypeSpot, report.Machines[0].PriceType)

	ret := backend.ReleaseHosts(ctx, model.NewReturnRequest(machineIds(report.Machines), testNow),
		ReleaseSet{Owner: req, Machines: report.Machines, All: true})
	assert.Equal(t, model.RequestComplete, ret.Status)
	cancel := fake.Inputs("CancelSpotFleetRequests")[0].(*ec2.CancelSpotFleetRequestsInput)
	assert.True(t, aws.BoolValue(cancel.TerminateInstances))
}

func TestASG_Lifecycle(t *testing.T) {
	ctx := context.Background()
	fake := cloudtest.New()
	d := NewDispatcher(newTestDeps(fake))
	tmpl := testTemplate(model.HandlerASG)

	backend, _ := d.Resolve(model.HandlerASG)
	req := backend.AcquireHosts(ctx, prepared(t, d, tmpl, 3), tmpl)
	require.Equal(t, model.RequestRunning, req.Status)
	assert.Equal(t, "hf-"+req.RequestId, req.ResourceId)
	create := fake.Inputs("CreateAutoScalingGroup")[0].(*autoscaling.CreateAutoScalingGroupInput)
	assert.Equal(t, "subnet-a,subnet-b", aws.StringValue(create.VPCZoneIdentifier))
	assert.NotNil(t, create.LaunchTemplate)

	report := backend.CheckRequestStatus(ctx, req)
	require.NoError(t, report.Err)
	assert.Empty(t, report.Status)
	require.Len(t, report.Machines, 3)

	fake.SetState(ec2.InstanceStateNameRunning, req.InstanceIds...)
	report = backend.CheckRequestStatus(ctx, req)
	assert.Equal(t, model.RequestComplete, report.Status)

	ret := backend.ReleaseHosts(ctx, model.NewReturnRequest(machineIds(report.Machines[:1]), testNow),
		ReleaseSet{Owner: req, Machines: report.Machines[:1]})
	require.Equal(t, model.RequestComplete, ret.Status)
	assert.Equal(t, int64(2), aws.Int64Value(fake.Groups[req.ResourceId].DesiredCapacity))

	ret = backend.ReleaseHosts(ctx, model.NewReturnRequest(machineIds(report.Machines[1:]), testNow),
		ReleaseSet{Owner: req, Machines: report.Machines[1:], All: true})
	require.Equal(t, model.RequestComplete, ret.Status)
	del := fake.Inputs("DeleteAutoScalingGroup")[0].(*autoscaling.DeleteAutoScalingGroupInput)
	assert.True(t, aws.BoolValue(del.ForceDelete))
	assert.NotContains(t, fake.Groups, req.ResourceId)

	// deleting again finds nothing and still succeeds
	ret = backend.ReleaseHosts(ctx, model.NewReturnRequest(nil, testNow), ReleaseSet{Owner: req, All: true})
	assert.Equal(t, model.RequestComplete, ret.Status)
}

func TestASG_SpotUsesMixedInstancesPolicy(t *testing.T) {
	tmpl := testTemplate(model.HandlerASG)
	tmpl.PriceType = model.PriceTypeSpot
	tmpl.InstanceTypes = map[string]int{"c5.large": 1}
	req := &model.Request{RequestId: "req-1", NumRequested: 2, LaunchTemplateId: "lt-1", LaunchTemplateVersion: "1"}

	cfg, err := (&ASG{}).BuildConfig(req, tmpl)
	require.NoError(t, err)
	input := cfg.(*autoscaling.CreateAutoScalingGroupInput)
	require.NotNil(t, input.MixedInstancesPolicy)
	assert.Nil(t, input.LaunchTemplate)
	assert.Equal(t, int64(0), aws.Int64Value(input.MixedInstancesPolicy.InstancesDistribution.OnDemandPercentageAboveBaseCapacity))
	assert.Len(t, input.MixedInstancesPolicy.LaunchTemplate.Overrides, 2)
}

func TestRunInstances_Lifecycle(t *testing.T) {
	ctx := context.Background()
	fake := cloudtest.New()
	d := NewDispatcher(newTestDeps(fake))
	tmpl := testTemplate(model.HandlerRunInstances)

	backend, _ := d.Resolve(model.HandlerRunInstances)
	req := backend.AcquireHosts(ctx, prepared(t, d, tmpl, 2), tmpl)
	require.Equal(t, model.RequestRunning, req.Status)
	require.Len(t, req.InstanceIds, 2)
	run := fake.Inputs("RunInstances")[0].(*ec2.RunInstancesInput)
	assert.Equal(t, int64(2), aws.Int64Value(run.MinCount))
	assert.Equal(t, "subnet-a", aws.StringValue(run.SubnetId))

	fake.SetState(ec2.InstanceStateNameRunning, req.InstanceIds[0])
	report := backend.CheckRequestStatus(ctx, req)
	require.NoError(t, report.Err)
	assert.Empty(t, report.Status)

	// an instance EC2 no longer reports counts as terminated
	delete(fake.Instances, req.InstanceIds[1])
	report = backend.CheckRequestStatus(ctx, req)
	require.Len(t, report.Machines, 2)
	assert.Equal(t, model.MachineTerminated, report.Machines[1].Status)

	ret := backend.ReleaseHosts(ctx, model.NewReturnRequest(req.InstanceIds[:1], testNow),
		ReleaseSet{Owner: req, Machines: report.Machines[:1]})
	assert.Equal(t, model.RequestComplete, ret.Status)

	fake.Fail("TerminateInstances", "UnauthorizedOperation")
	ret = backend.ReleaseHosts(ctx, model.NewReturnRequest(req.InstanceIds[:1], testNow),
		ReleaseSet{Owner: req, Machines: report.Machines[:1]})
	assert.Equal(t, model.RequestFailed, ret.Status)
	assert.Contains(t, ret.Message, "UnauthorizedOperation")
}
