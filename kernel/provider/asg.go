package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/chunga-ict/hfprovider/kernel/cloud"
	"github.com/chunga-ict/hfprovider/kernel/model"
)

func init() {
	RegisterBackendType(model.HandlerASG, func(d Deps) Backend { return &ASG{deps: d} })
}

// ASG provisions one Auto Scaling Group per request, named hf-<requestId>.
type ASG struct {
	deps Deps
}

func (b *ASG) Handler() model.HandlerType {
	return model.HandlerASG
}

func (b *ASG) CheckTemplate(tmpl *model.ProviderTemplate) error {
	if tmpl.EffectiveFleetType() == model.FleetTypeInstant {
		return model.NewValidationError("template [%s] fleetType instant is not supported by ASG", tmpl.TemplateId)
	}
	return nil
}

func (b *ASG) Validate(req *model.Request) error {
	return validateLaunchTemplate(req, true)
}

func (b *ASG) BuildConfig(req *model.Request, tmpl *model.ProviderTemplate) (interface{}, error) {
	if err := b.Validate(req); err != nil {
		return nil, err
	}
	name := resourceName(req)
	size := aws.Int64(int64(req.NumRequested))
	spec := &autoscaling.LaunchTemplateSpecification{
		LaunchTemplateId: aws.String(req.LaunchTemplateId),
		Version:          aws.String(req.LaunchTemplateVersion),
	}

	input := &autoscaling.CreateAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(name),
		MinSize:              aws.Int64(0),
		MaxSize:              size,
		DesiredCapacity:      size,
		VPCZoneIdentifier:    aws.String(strings.Join(tmpl.Subnets(), ",")),
		Tags:                 cloud.ASGTags(name, req.Tags),
	}

	types, weights := tmpl.InstanceTypeWeights()
	if len(types) <= 1 && tmpl.EffectivePriceType() == model.PriceTypeOnDemand {
		input.LaunchTemplate = spec
		return input, nil
	}

	var overrides []*autoscaling.LaunchTemplateOverrides
	for _, t := range types {
		overrides = append(overrides, &autoscaling.LaunchTemplateOverrides{
			InstanceType:     aws.String(t),
			WeightedCapacity: aws.String(strconv.Itoa(weights[t])),
		})
	}
	onDemandPercent := int64(100)
	switch tmpl.EffectivePriceType() {
	case model.PriceTypeSpot:
		onDemandPercent = 0
	case model.PriceTypeHeterogeneous:
		onDemandPercent = int64(tmpl.PercentOnDemand)
	}
	distribution := &autoscaling.InstancesDistribution{
		OnDemandBaseCapacity:                aws.Int64(0),
		OnDemandPercentageAboveBaseCapacity: aws.Int64(onDemandPercent),
	}
	if onDemandPercent < 100 {
		distribution.SpotAllocationStrategy = aws.String(fleetAllocationStrategy(tmpl.AllocationStrategy))
		if tmpl.MaxSpotPrice != "" {
			distribution.SpotMaxPrice = aws.String(tmpl.MaxSpotPrice)
		}
	}
	input.MixedInstancesPolicy = &autoscaling.MixedInstancesPolicy{
		LaunchTemplate: &autoscaling.LaunchTemplate{
			LaunchTemplateSpecification: spec,
			Overrides:                   overrides,
		},
		InstancesDistribution: distribution,
	}
	return input, nil
}

func (b *ASG) AcquireHosts(ctx context.Context, req *model.Request, tmpl *model.ProviderTemplate) *model.Request {
	log := backendLog(b.Handler(), req)
	cfg, err := b.BuildConfig(req, tmpl)
	if err != nil {
		return req.Fail(err)
	}
	input := cfg.(*autoscaling.CreateAutoScalingGroupInput)

	if _, err := b.deps.Clients.AutoScaling.CreateAutoScalingGroupWithContext(ctx, input); err != nil {
		log.WithError(err).Error("CreateAutoScalingGroup failed")
		return req.Fail(cloud.ConvertError("CreateAutoScalingGroup", err))
	}
	req.ResourceId = aws.StringValue(input.AutoScalingGroupName)
	req.Status = model.RequestRunning
	req.Message = fmt.Sprintf("auto scaling group [%s] created", req.ResourceId)
	log.Infof("created auto scaling group [%s] for [%d] machines", req.ResourceId, req.NumRequested)
	return req
}

func (b *ASG) describe(ctx context.Context, name string) (*autoscaling.Group, error) {
	out, err := b.deps.Clients.AutoScaling.DescribeAutoScalingGroupsWithContext(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: aws.StringSlice([]string{name}),
	})
	if err != nil {
		return nil, cloud.ConvertError("DescribeAutoScalingGroups", err)
	}
	if len(out.AutoScalingGroups) == 0 {
		return nil, nil
	}
	return out.AutoScalingGroups[0], nil
}

func (b *ASG) CheckRequestStatus(ctx context.Context, req *model.Request) StatusReport {
	var report StatusReport
	if req.ResourceId == "" {
		report.Err = model.NewValidationError("request [%s] has no auto scaling group", req.RequestId)
		return report
	}

	group, err := b.describe(ctx, req.ResourceId)
	if err != nil {
		report.Err = err
		return report
	}

	active := map[string]bool{}
	if group == nil {
		unexpectedState(&report, req, fmt.Sprintf("auto scaling group [%s] not found", req.ResourceId))
	} else {
		var ids []string
		inService := 0
		for _, inst := range group.Instances {
			id := aws.StringValue(inst.InstanceId)
			ids = append(ids, id)
			active[id] = true
			if aws.StringValue(inst.LifecycleState) == autoscaling.LifecycleStateInService {
				inService++
			}
		}
		addInstanceIds(req, ids)
		desired := int(aws.Int64Value(group.DesiredCapacity))
		if desired > 0 && inService >= desired {
			report.Status = model.RequestComplete
		}
		if aws.StringValue(group.Status) != "" {
			report.Message = fmt.Sprintf("auto scaling group [%s] is %s", req.ResourceId, aws.StringValue(group.Status))
		}
	}

	machines, err := observeInstances(ctx, b.deps, req, active)
	if err != nil {
		report.Err = err
		return report
	}
	report.Machines = machines
	return report
}

func (b *ASG) ReleaseHosts(ctx context.Context, ret *model.Request, set ReleaseSet) *model.Request {
	owner := set.Owner
	ids := set.MachineIds()
	log := backendLog(b.Handler(), ret).WithField("group", owner.ResourceId)

	if set.All {
		_, err := b.deps.Clients.AutoScaling.DeleteAutoScalingGroupWithContext(ctx, &autoscaling.DeleteAutoScalingGroupInput{
			AutoScalingGroupName: aws.String(owner.ResourceId),
			ForceDelete:          aws.Bool(true),
		})
		if err != nil && !cloud.IsMissing(err) {
			return ret.Fail(cloud.ConvertError("DeleteAutoScalingGroup", err))
		}
		log.Infof("deleted auto scaling group with %d instances", len(ids))
		return complete(ret, "auto scaling group [%s] deleted", owner.ResourceId)
	}

	for _, id := range ids {
		_, err := b.deps.Clients.AutoScaling.TerminateInstanceInAutoScalingGroupWithContext(ctx, &autoscaling.TerminateInstanceInAutoScalingGroupInput{
			InstanceId:                     aws.String(id),
			ShouldDecrementDesiredCapacity: aws.Bool(true),
		})
		if err != nil && !cloud.IsMissing(err) {
			return ret.Fail(cloud.ConvertError("TerminateInstanceInAutoScalingGroup", err))
		}
	}
	log.Infof("terminated %d instances in group", len(ids))
	return complete(ret, "terminated %d instances in auto scaling group [%s]", len(ids), owner.ResourceId)
}
