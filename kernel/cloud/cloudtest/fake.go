// Package cloudtest provides in-memory fakes of the narrow AWS client interfaces.
package cloudtest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/chunga-ict/hfprovider/kernel/cloud"
)

// Cloud is a shared fake account backing the EC2, AutoScaling and SSM fakes.
type Cloud struct {
	mu sync.Mutex

	// LaunchState is the state newly launched instances start in.
	LaunchState string
	LaunchTime  time.Time

	Instances          map[string]*ec2.Instance
	Fleets             map[string]*ec2.FleetData
	FleetInstances     map[string][]string
	SpotFleets         map[string]*ec2.SpotFleetRequestConfig
	SpotFleetInstances map[string][]string
	Groups             map[string]*autoscaling.Group
	LaunchTemplates    map[string]*ec2.LaunchTemplate
	Params             map[string]string

	calls  []string
	inputs map[string][]interface{}
	errs   map[string]error
	seq    int
}

func New() *Cloud {
	return &Cloud{
		LaunchState:        ec2.InstanceStateNamePending,
		LaunchTime:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Instances:          map[string]*ec2.Instance{},
		Fleets:             map[string]*ec2.FleetData{},
		FleetInstances:     map[string][]string{},
		SpotFleets:         map[string]*ec2.SpotFleetRequestConfig{},
		SpotFleetInstances: map[string][]string{},
		Groups:             map[string]*autoscaling.Group{},
		LaunchTemplates:    map[string]*ec2.LaunchTemplate{},
		Params:             map[string]string{},
		inputs:             map[string][]interface{}{},
		errs:               map[string]error{},
	}
}

// Clients returns client bundles wired to this fake.
func (c *Cloud) Clients() *cloud.Clients {
	return &cloud.Clients{
		EC2:         &EC2{c},
		AutoScaling: &AutoScaling{c},
		SSM:         &SSM{c},
	}
}

// Fail makes every later call to op return an AWS error with code.
func (c *Cloud) Fail(op, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[op] = awserr.New(code, "injected failure", nil)
}

func (c *Cloud) Clear(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.errs, op)
}

// Calls lists the operations invoked so far, in order.
func (c *Cloud) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Inputs returns every input passed to op.
func (c *Cloud) Inputs(op string) []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interface{}(nil), c.inputs[op]...)
}

// SetState moves instances to an EC2 state name.
func (c *Cloud) SetState(state string, ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if inst, ok := c.Instances[id]; ok {
			inst.State = &ec2.InstanceState{Name: aws.String(state)}
		}
	}
}

func (c *Cloud) record(op string, input interface{}) error {
	c.calls = append(c.calls, op)
	c.inputs[op] = append(c.inputs[op], input)
	return c.errs[op]
}

func (c *Cloud) nextId(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s-%04d", prefix, c.seq)
}

func (c *Cloud) launch(count int, instanceType string, lifecycle string, tags []*ec2.Tag) []string {
	var ids []string
	for i := 0; i < count; i++ {
		id := c.nextId("i")
		ip := fmt.Sprintf("10.0.%d.%d", c.seq/250, c.seq%250)
		inst := &ec2.Instance{
			InstanceId:       aws.String(id),
			InstanceType:     aws.String(instanceType),
			PrivateDnsName:   aws.String(fmt.Sprintf("ip-%d.ec2.internal", c.seq)),
			PrivateIpAddress: aws.String(ip),
			State:            &ec2.InstanceState{Name: aws.String(c.LaunchState)},
			LaunchTime:       aws.Time(c.LaunchTime),
			Placement:        &ec2.Placement{AvailabilityZone: aws.String("us-east-1a")},
			Tags:             tags,
		}
		if lifecycle != "" {
			inst.InstanceLifecycle = aws.String(lifecycle)
		}
		c.Instances[id] = inst
		ids = append(ids, id)
	}
	return ids
}

func (c *Cloud) terminate(ids ...string) {
	for _, id := range ids {
		if inst, ok := c.Instances[id]; ok {
			inst.State = &ec2.InstanceState{Name: aws.String(ec2.InstanceStateNameTerminated)}
		}
	}
}

func (c *Cloud) active(ids []string) []*ec2.ActiveInstance {
	var out []*ec2.ActiveInstance
	for _, id := range ids {
		inst := c.Instances[id]
		if inst == nil || aws.StringValue(inst.State.Name) == ec2.InstanceStateNameTerminated {
			continue
		}
		out = append(out, &ec2.ActiveInstance{InstanceId: inst.InstanceId, InstanceType: inst.InstanceType})
	}
	return out
}

func instanceTags(specs []*ec2.TagSpecification) []*ec2.Tag {
	for _, s := range specs {
		if aws.StringValue(s.ResourceType) == ec2.ResourceTypeInstance {
			return s.Tags
		}
	}
	return nil
}

// EC2 fakes cloud.EC2.
type EC2 struct{ c *Cloud }

func (f *EC2) CreateFleetWithContext(_ aws.Context, in *ec2.CreateFleetInput, _ ...request.Option) (*ec2.CreateFleetOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("CreateFleet", in); err != nil {
		return nil, err
	}
	id := "fleet-" + c.nextId("ec2")
	capacity := int(aws.Int64Value(in.TargetCapacitySpecification.TotalTargetCapacity))
	instanceType := "t3.medium"
	if len(in.LaunchTemplateConfigs) > 0 && len(in.LaunchTemplateConfigs[0].Overrides) > 0 {
		instanceType = aws.StringValue(in.LaunchTemplateConfigs[0].Overrides[0].InstanceType)
	}
	c.Fleets[id] = &ec2.FleetData{
		FleetId:                     aws.String(id),
		FleetState:                  aws.String(ec2.FleetStateCodeActive),
		Type:                        in.Type,
		TargetCapacitySpecification: capacitySpec(in.TargetCapacitySpecification),
		FulfilledCapacity:           aws.Float64(float64(capacity)),
	}
	ids := c.launch(capacity, instanceType, "", instanceTags(in.TagSpecifications))
	c.FleetInstances[id] = ids

	out := &ec2.CreateFleetOutput{FleetId: aws.String(id)}
	if aws.StringValue(in.Type) == ec2.FleetTypeInstant {
		out.Instances = []*ec2.CreateFleetInstance{{
			InstanceIds:  aws.StringSlice(ids),
			InstanceType: aws.String(instanceType),
		}}
	}
	return out, nil
}

func capacitySpec(in *ec2.TargetCapacitySpecificationRequest) *ec2.TargetCapacitySpecification {
	return &ec2.TargetCapacitySpecification{
		TotalTargetCapacity:       in.TotalTargetCapacity,
		OnDemandTargetCapacity:    in.OnDemandTargetCapacity,
		SpotTargetCapacity:        in.SpotTargetCapacity,
		DefaultTargetCapacityType: in.DefaultTargetCapacityType,
	}
}

func (f *EC2) DescribeFleetsWithContext(_ aws.Context, in *ec2.DescribeFleetsInput, _ ...request.Option) (*ec2.DescribeFleetsOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DescribeFleets", in); err != nil {
		return nil, err
	}
	out := &ec2.DescribeFleetsOutput{}
	for _, id := range aws.StringValueSlice(in.FleetIds) {
		if fleet, ok := c.Fleets[id]; ok {
			out.Fleets = append(out.Fleets, fleet)
		}
	}
	return out, nil
}

func (f *EC2) DescribeFleetInstancesWithContext(_ aws.Context, in *ec2.DescribeFleetInstancesInput, _ ...request.Option) (*ec2.DescribeFleetInstancesOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DescribeFleetInstances", in); err != nil {
		return nil, err
	}
	id := aws.StringValue(in.FleetId)
	if _, ok := c.Fleets[id]; !ok {
		return nil, awserr.New("InvalidFleetId.NotFound", "fleet not found", nil)
	}
	return &ec2.DescribeFleetInstancesOutput{FleetId: in.FleetId, ActiveInstances: c.active(c.FleetInstances[id])}, nil
}

func (f *EC2) ModifyFleetWithContext(_ aws.Context, in *ec2.ModifyFleetInput, _ ...request.Option) (*ec2.ModifyFleetOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("ModifyFleet", in); err != nil {
		return nil, err
	}
	fleet, ok := c.Fleets[aws.StringValue(in.FleetId)]
	if !ok {
		return nil, awserr.New("InvalidFleetId.NotFound", "fleet not found", nil)
	}
	spec := capacitySpec(in.TargetCapacitySpecification)
	spec.DefaultTargetCapacityType = fleet.TargetCapacitySpecification.DefaultTargetCapacityType
	fleet.TargetCapacitySpecification = spec
	return &ec2.ModifyFleetOutput{Return: aws.Bool(true)}, nil
}

func (f *EC2) DeleteFleetsWithContext(_ aws.Context, in *ec2.DeleteFleetsInput, _ ...request.Option) (*ec2.DeleteFleetsOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DeleteFleets", in); err != nil {
		return nil, err
	}
	out := &ec2.DeleteFleetsOutput{}
	for _, id := range aws.StringValueSlice(in.FleetIds) {
		fleet, ok := c.Fleets[id]
		if !ok {
			continue
		}
		fleet.FleetState = aws.String(ec2.FleetStateCodeDeleted)
		if aws.BoolValue(in.TerminateInstances) {
			c.terminate(c.FleetInstances[id]...)
		}
		out.SuccessfulFleetDeletions = append(out.SuccessfulFleetDeletions, &ec2.DeleteFleetSuccessItem{FleetId: aws.String(id)})
	}
	return out, nil
}

func (f *EC2) RequestSpotFleetWithContext(_ aws.Context, in *ec2.RequestSpotFleetInput, _ ...request.Option) (*ec2.RequestSpotFleetOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("RequestSpotFleet", in); err != nil {
		return nil, err
	}
	id := "sfr-" + c.nextId("spot")
	data := in.SpotFleetRequestConfig
	instanceType := "t3.medium"
	if len(data.LaunchTemplateConfigs) > 0 && len(data.LaunchTemplateConfigs[0].Overrides) > 0 {
		instanceType = aws.StringValue(data.LaunchTemplateConfigs[0].Overrides[0].InstanceType)
	}
	c.SpotFleets[id] = &ec2.SpotFleetRequestConfig{
		SpotFleetRequestId:     aws.String(id),
		SpotFleetRequestState:  aws.String(ec2.BatchStateActive),
		ActivityStatus:         aws.String(ec2.ActivityStatusFulfilled),
		SpotFleetRequestConfig: data,
	}
	c.SpotFleetInstances[id] = c.launch(int(aws.Int64Value(data.TargetCapacity)), instanceType, ec2.InstanceLifecycleTypeSpot, nil)
	return &ec2.RequestSpotFleetOutput{SpotFleetRequestId: aws.String(id)}, nil
}

func (f *EC2) DescribeSpotFleetRequestsWithContext(_ aws.Context, in *ec2.DescribeSpotFleetRequestsInput, _ ...request.Option) (*ec2.DescribeSpotFleetRequestsOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DescribeSpotFleetRequests", in); err != nil {
		return nil, err
	}
	out := &ec2.DescribeSpotFleetRequestsOutput{}
	for _, id := range aws.StringValueSlice(in.SpotFleetRequestIds) {
		if sfr, ok := c.SpotFleets[id]; ok {
			out.SpotFleetRequestConfigs = append(out.SpotFleetRequestConfigs, sfr)
		}
	}
	return out, nil
}

func (f *EC2) DescribeSpotFleetInstancesWithContext(_ aws.Context, in *ec2.DescribeSpotFleetInstancesInput, _ ...request.Option) (*ec2.DescribeSpotFleetInstancesOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DescribeSpotFleetInstances", in); err != nil {
		return nil, err
	}
	id := aws.StringValue(in.SpotFleetRequestId)
	if _, ok := c.SpotFleets[id]; !ok {
		return nil, awserr.New("InvalidSpotFleetRequestId.NotFound", "spot fleet not found", nil)
	}
	return &ec2.DescribeSpotFleetInstancesOutput{SpotFleetRequestId: in.SpotFleetRequestId, ActiveInstances: c.active(c.SpotFleetInstances[id])}, nil
}

func (f *EC2) ModifySpotFleetRequestWithContext(_ aws.Context, in *ec2.ModifySpotFleetRequestInput, _ ...request.Option) (*ec2.ModifySpotFleetRequestOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("ModifySpotFleetRequest", in); err != nil {
		return nil, err
	}
	sfr, ok := c.SpotFleets[aws.StringValue(in.SpotFleetRequestId)]
	if !ok {
		return nil, awserr.New("InvalidSpotFleetRequestId.NotFound", "spot fleet not found", nil)
	}
	sfr.SpotFleetRequestConfig.TargetCapacity = in.TargetCapacity
	return &ec2.ModifySpotFleetRequestOutput{Return: aws.Bool(true)}, nil
}

func (f *EC2) CancelSpotFleetRequestsWithContext(_ aws.Context, in *ec2.CancelSpotFleetRequestsInput, _ ...request.Option) (*ec2.CancelSpotFleetRequestsOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("CancelSpotFleetRequests", in); err != nil {
		return nil, err
	}
	out := &ec2.CancelSpotFleetRequestsOutput{}
	for _, id := range aws.StringValueSlice(in.SpotFleetRequestIds) {
		sfr, ok := c.SpotFleets[id]
		if !ok {
			continue
		}
		sfr.SpotFleetRequestState = aws.String(ec2.BatchStateCancelledTerminating)
		if aws.BoolValue(in.TerminateInstances) {
			c.terminate(c.SpotFleetInstances[id]...)
		}
		out.SuccessfulFleetRequests = append(out.SuccessfulFleetRequests, &ec2.CancelSpotFleetRequestsSuccessItem{
			SpotFleetRequestId:           aws.String(id),
			CurrentSpotFleetRequestState: aws.String(ec2.BatchStateCancelledTerminating),
		})
	}
	return out, nil
}

func (f *EC2) RunInstancesWithContext(_ aws.Context, in *ec2.RunInstancesInput, _ ...request.Option) (*ec2.Reservation, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("RunInstances", in); err != nil {
		return nil, err
	}
	instanceType := aws.StringValue(in.InstanceType)
	if instanceType == "" {
		instanceType = "t3.medium"
	}
	lifecycle := ""
	if in.InstanceMarketOptions != nil {
		lifecycle = ec2.InstanceLifecycleTypeSpot
	}
	ids := c.launch(int(aws.Int64Value(in.MaxCount)), instanceType, lifecycle, instanceTags(in.TagSpecifications))
	res := &ec2.Reservation{ReservationId: aws.String(c.nextId("r"))}
	for _, id := range ids {
		res.Instances = append(res.Instances, c.Instances[id])
	}
	return res, nil
}

func (f *EC2) TerminateInstancesWithContext(_ aws.Context, in *ec2.TerminateInstancesInput, _ ...request.Option) (*ec2.TerminateInstancesOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("TerminateInstances", in); err != nil {
		return nil, err
	}
	out := &ec2.TerminateInstancesOutput{}
	for _, id := range aws.StringValueSlice(in.InstanceIds) {
		if _, ok := c.Instances[id]; !ok {
			return nil, awserr.New("InvalidInstanceID.NotFound", "instance not found", nil)
		}
		c.terminate(id)
		out.TerminatingInstances = append(out.TerminatingInstances, &ec2.InstanceStateChange{
			InstanceId:   aws.String(id),
			CurrentState: &ec2.InstanceState{Name: aws.String(ec2.InstanceStateNameShuttingDown)},
		})
	}
	return out, nil
}

func (f *EC2) DescribeInstancesPagesWithContext(_ aws.Context, in *ec2.DescribeInstancesInput, fn func(*ec2.DescribeInstancesOutput, bool) bool, _ ...request.Option) error {
	c := f.c
	c.mu.Lock()
	if err := c.record("DescribeInstances", in); err != nil {
		c.mu.Unlock()
		return err
	}
	var ids []string
	if len(in.InstanceIds) > 0 {
		ids = aws.StringValueSlice(in.InstanceIds)
	} else {
		for id := range c.Instances {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}
	var found []*ec2.Instance
	for _, id := range ids {
		inst, ok := c.Instances[id]
		if !ok || !matchesFilters(inst, in.Filters) {
			continue
		}
		found = append(found, inst)
	}
	c.mu.Unlock()

	// one instance per page to exercise pagination
	for i, inst := range found {
		page := &ec2.DescribeInstancesOutput{Reservations: []*ec2.Reservation{{Instances: []*ec2.Instance{inst}}}}
		if !fn(page, i == len(found)-1) {
			break
		}
	}
	return nil
}

func matchesFilters(inst *ec2.Instance, filters []*ec2.Filter) bool {
	for _, f := range filters {
		name := aws.StringValue(f.Name)
		want := aws.StringValueSlice(f.Values)
		var got string
		switch {
		case name == "instance-state-name":
			got = aws.StringValue(inst.State.Name)
		case name == "instance-id":
			got = aws.StringValue(inst.InstanceId)
		case len(name) > 4 && name[:4] == "tag:":
			for _, t := range inst.Tags {
				if aws.StringValue(t.Key) == name[4:] {
					got = aws.StringValue(t.Value)
				}
			}
		default:
			continue
		}
		matched := false
		for _, w := range want {
			if w == got {
				matched = true
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func (f *EC2) CreateLaunchTemplateWithContext(_ aws.Context, in *ec2.CreateLaunchTemplateInput, _ ...request.Option) (*ec2.CreateLaunchTemplateOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("CreateLaunchTemplate", in); err != nil {
		return nil, err
	}
	lt := &ec2.LaunchTemplate{
		LaunchTemplateId:     aws.String("lt-" + c.nextId("tmpl")),
		LaunchTemplateName:   in.LaunchTemplateName,
		LatestVersionNumber:  aws.Int64(1),
		DefaultVersionNumber: aws.Int64(1),
	}
	c.LaunchTemplates[aws.StringValue(lt.LaunchTemplateId)] = lt
	return &ec2.CreateLaunchTemplateOutput{LaunchTemplate: lt}, nil
}

func (f *EC2) DeleteLaunchTemplateWithContext(_ aws.Context, in *ec2.DeleteLaunchTemplateInput, _ ...request.Option) (*ec2.DeleteLaunchTemplateOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DeleteLaunchTemplate", in); err != nil {
		return nil, err
	}
	lt, ok := c.LaunchTemplates[aws.StringValue(in.LaunchTemplateId)]
	if !ok {
		return nil, awserr.New("InvalidLaunchTemplateId.NotFound", "launch template not found", nil)
	}
	delete(c.LaunchTemplates, aws.StringValue(in.LaunchTemplateId))
	return &ec2.DeleteLaunchTemplateOutput{LaunchTemplate: lt}, nil
}

// AutoScaling fakes cloud.AutoScaling.
type AutoScaling struct{ c *Cloud }

func (f *AutoScaling) CreateAutoScalingGroupWithContext(_ aws.Context, in *autoscaling.CreateAutoScalingGroupInput, _ ...request.Option) (*autoscaling.CreateAutoScalingGroupOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("CreateAutoScalingGroup", in); err != nil {
		return nil, err
	}
	name := aws.StringValue(in.AutoScalingGroupName)
	if _, exists := c.Groups[name]; exists {
		return nil, awserr.New(autoscaling.ErrCodeAlreadyExistsFault, "group exists", nil)
	}
	group := &autoscaling.Group{
		AutoScalingGroupName: in.AutoScalingGroupName,
		DesiredCapacity:      in.DesiredCapacity,
		MinSize:              in.MinSize,
		MaxSize:              in.MaxSize,
	}
	group.Instances = c.groupInstances(c.launch(int(aws.Int64Value(in.DesiredCapacity)), "t3.medium", "", nil))
	c.Groups[name] = group
	return &autoscaling.CreateAutoScalingGroupOutput{}, nil
}

func (c *Cloud) groupInstances(ids []string) []*autoscaling.Instance {
	var out []*autoscaling.Instance
	for _, id := range ids {
		out = append(out, &autoscaling.Instance{
			InstanceId:     aws.String(id),
			InstanceType:   aws.String("t3.medium"),
			LifecycleState: aws.String(autoscaling.LifecycleStatePending),
			HealthStatus:   aws.String("Healthy"),
		})
	}
	return out
}

func (f *AutoScaling) DescribeAutoScalingGroupsWithContext(_ aws.Context, in *autoscaling.DescribeAutoScalingGroupsInput, _ ...request.Option) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DescribeAutoScalingGroups", in); err != nil {
		return nil, err
	}
	out := &autoscaling.DescribeAutoScalingGroupsOutput{}
	for _, name := range aws.StringValueSlice(in.AutoScalingGroupNames) {
		group, ok := c.Groups[name]
		if !ok {
			continue
		}
		for _, gi := range group.Instances {
			if inst := c.Instances[aws.StringValue(gi.InstanceId)]; inst != nil &&
				aws.StringValue(inst.State.Name) == ec2.InstanceStateNameRunning {
				gi.LifecycleState = aws.String(autoscaling.LifecycleStateInService)
			}
		}
		out.AutoScalingGroups = append(out.AutoScalingGroups, group)
	}
	return out, nil
}

func (f *AutoScaling) UpdateAutoScalingGroupWithContext(_ aws.Context, in *autoscaling.UpdateAutoScalingGroupInput, _ ...request.Option) (*autoscaling.UpdateAutoScalingGroupOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("UpdateAutoScalingGroup", in); err != nil {
		return nil, err
	}
	group, ok := c.Groups[aws.StringValue(in.AutoScalingGroupName)]
	if !ok {
		return nil, awserr.New("ValidationError", "AutoScalingGroup name not found", nil)
	}
	if in.DesiredCapacity != nil {
		group.DesiredCapacity = in.DesiredCapacity
	}
	if in.MinSize != nil {
		group.MinSize = in.MinSize
	}
	if in.MaxSize != nil {
		group.MaxSize = in.MaxSize
	}
	return &autoscaling.UpdateAutoScalingGroupOutput{}, nil
}

func (f *AutoScaling) TerminateInstanceInAutoScalingGroupWithContext(_ aws.Context, in *autoscaling.TerminateInstanceInAutoScalingGroupInput, _ ...request.Option) (*autoscaling.TerminateInstanceInAutoScalingGroupOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("TerminateInstanceInAutoScalingGroup", in); err != nil {
		return nil, err
	}
	id := aws.StringValue(in.InstanceId)
	for _, group := range c.Groups {
		for i, gi := range group.Instances {
			if aws.StringValue(gi.InstanceId) != id {
				continue
			}
			group.Instances = append(group.Instances[:i], group.Instances[i+1:]...)
			if aws.BoolValue(in.ShouldDecrementDesiredCapacity) {
				group.DesiredCapacity = aws.Int64(aws.Int64Value(group.DesiredCapacity) - 1)
			}
			c.terminate(id)
			return &autoscaling.TerminateInstanceInAutoScalingGroupOutput{
				Activity: &autoscaling.Activity{ActivityId: aws.String(c.nextId("act"))},
			}, nil
		}
	}
	return nil, awserr.New("ValidationError", "Instance Id not found", nil)
}

func (f *AutoScaling) DeleteAutoScalingGroupWithContext(_ aws.Context, in *autoscaling.DeleteAutoScalingGroupInput, _ ...request.Option) (*autoscaling.DeleteAutoScalingGroupOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DeleteAutoScalingGroup", in); err != nil {
		return nil, err
	}
	name := aws.StringValue(in.AutoScalingGroupName)
	group, ok := c.Groups[name]
	if !ok {
		return nil, awserr.New("ValidationError", "AutoScalingGroup name not found", nil)
	}
	if aws.BoolValue(in.ForceDelete) {
		for _, gi := range group.Instances {
			c.terminate(aws.StringValue(gi.InstanceId))
		}
	}
	delete(c.Groups, name)
	return &autoscaling.DeleteAutoScalingGroupOutput{}, nil
}

// SSM fakes cloud.SSM.
type SSM struct{ c *Cloud }

func (f *SSM) GetParameterWithContext(_ aws.Context, in *ssm.GetParameterInput, _ ...request.Option) (*ssm.GetParameterOutput, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetParameter", in); err != nil {
		return nil, err
	}
	name := aws.StringValue(in.Name)
	value, ok := c.Params[name]
	if !ok {
		return nil, awserr.New(ssm.ErrCodeParameterNotFound, "parameter not found", nil)
	}
	return &ssm.GetParameterOutput{Parameter: &ssm.Parameter{Name: in.Name, Value: aws.String(value)}}, nil
}
