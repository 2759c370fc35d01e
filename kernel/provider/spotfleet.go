package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/chunga-ict/hfprovider/kernel/cloud"
	"github.com/chunga-ict/hfprovider/kernel/model"
)

func init() {
	RegisterBackendType(model.HandlerSpotFleet, func(d Deps) Backend { return &SpotFleet{deps: d} })
}

// SpotFleet provisions through RequestSpotFleet.
type SpotFleet struct {
	deps Deps
}

func (b *SpotFleet) Handler() model.HandlerType {
	return model.HandlerSpotFleet
}

func (b *SpotFleet) CheckTemplate(tmpl *model.ProviderTemplate) error {
	if tmpl.FleetRole == "" {
		return model.NewValidationError("template [%s] needs fleetRole for SpotFleet", tmpl.TemplateId)
	}
	if tmpl.EffectiveFleetType() == model.FleetTypeInstant {
		return model.NewValidationError("template [%s] fleetType instant is not supported by SpotFleet", tmpl.TemplateId)
	}
	return nil
}

func (b *SpotFleet) Validate(req *model.Request) error {
	return validateLaunchTemplate(req, true)
}

func (b *SpotFleet) BuildConfig(req *model.Request, tmpl *model.ProviderTemplate) (interface{}, error) {
	if err := b.Validate(req); err != nil {
		return nil, err
	}
	if err := b.CheckTemplate(tmpl); err != nil {
		return nil, err
	}
	types, weights := tmpl.InstanceTypeWeights()

	var overrides []*ec2.LaunchTemplateOverrides
	for _, subnet := range tmpl.Subnets() {
		for _, t := range types {
			overrides = append(overrides, &ec2.LaunchTemplateOverrides{
				InstanceType:     aws.String(t),
				SubnetId:         aws.String(subnet),
				WeightedCapacity: aws.Float64(float64(weights[t])),
			})
		}
	}

	onDemand, _ := capacitySplit(tmpl, req.NumRequested)
	data := &ec2.SpotFleetRequestConfigData{
		ClientToken:                  aws.String(req.RequestId),
		IamFleetRole:                 aws.String(tmpl.FleetRole),
		Type:                         aws.String(tmpl.EffectiveFleetType()),
		TargetCapacity:               aws.Int64(int64(req.NumRequested)),
		OnDemandTargetCapacity:       aws.Int64(int64(onDemand)),
		AllocationStrategy:           aws.String(spotFleetAllocationStrategy(tmpl.AllocationStrategy)),
		InstanceInterruptionBehavior: aws.String(ec2.InstanceInterruptionBehaviorTerminate),
		LaunchTemplateConfigs: []*ec2.LaunchTemplateConfig{{
			LaunchTemplateSpecification: &ec2.FleetLaunchTemplateSpecification{
				LaunchTemplateId: aws.String(req.LaunchTemplateId),
				Version:          aws.String(req.LaunchTemplateVersion),
			},
			Overrides: overrides,
		}},
		TagSpecifications: cloud.TagSpecifications(req.Tags, ec2.ResourceTypeSpotFleetRequest),
	}
	if tmpl.MaxSpotPrice != "" {
		data.SpotPrice = aws.String(tmpl.MaxSpotPrice)
	}
	return &ec2.RequestSpotFleetInput{SpotFleetRequestConfig: data}, nil
}

func (b *SpotFleet) AcquireHosts(ctx context.Context, req *model.Request, tmpl *model.ProviderTemplate) *model.Request {
	log := backendLog(b.Handler(), req)
	cfg, err := b.BuildConfig(req, tmpl)
	if err != nil {
		return req.Fail(err)
	}
	input := cfg.(*ec2.RequestSpotFleetInput)

	out, err := b.deps.Clients.EC2.RequestSpotFleetWithContext(ctx, input)
	if err != nil {
		log.WithError(err).Error("RequestSpotFleet failed")
		return req.Fail(cloud.ConvertError("RequestSpotFleet", err))
	}
	req.ResourceId = aws.StringValue(out.SpotFleetRequestId)
	setExtension(req, extFleetType, aws.StringValue(input.SpotFleetRequestConfig.Type))
	req.Status = model.RequestRunning
	req.Message = fmt.Sprintf("spot fleet request [%s] submitted", req.ResourceId)
	log.Infof("requested spot fleet [%s] for [%d] machines", req.ResourceId, req.NumRequested)
	return req
}

func (b *SpotFleet) describe(ctx context.Context, id string) (*ec2.SpotFleetRequestConfig, error) {
	out, err := b.deps.Clients.EC2.DescribeSpotFleetRequestsWithContext(ctx, &ec2.DescribeSpotFleetRequestsInput{
		SpotFleetRequestIds: aws.StringSlice([]string{id}),
	})
	if err != nil {
		return nil, cloud.ConvertError("DescribeSpotFleetRequests", err)
	}
	if len(out.SpotFleetRequestConfigs) == 0 {
		return nil, nil
	}
	return out.SpotFleetRequestConfigs[0], nil
}

func (b *SpotFleet) CheckRequestStatus(ctx context.Context, req *model.Request) StatusReport {
	var report StatusReport
	if req.ResourceId == "" {
		report.Err = model.NewValidationError("request [%s] has no spot fleet request id", req.RequestId)
		return report
	}

	sfr, err := b.describe(ctx, req.ResourceId)
	if err != nil && !cloud.IsMissing(err) {
		report.Err = err
		return report
	}
	if sfr == nil {
		unexpectedState(&report, req, fmt.Sprintf("spot fleet request [%s] not found", req.ResourceId))
	} else {
		b.requestState(&report, req, sfr)
	}

	active := map[string]bool{}
	ids, err := b.activeInstances(ctx, req.ResourceId)
	if err != nil && !cloud.IsMissing(err) {
		report.Err = err
		return report
	}
	for _, id := range ids {
		active[id] = true
	}
	addInstanceIds(req, ids)

	machines, err := observeInstances(ctx, b.deps, req, active)
	if err != nil {
		report.Err = err
		return report
	}
	report.Machines = machines
	return report
}

func (b *SpotFleet) requestState(report *StatusReport, req *model.Request, sfr *ec2.SpotFleetRequestConfig) {
	state := aws.StringValue(sfr.SpotFleetRequestState)
	switch state {
	case ec2.BatchStateSubmitted, ec2.BatchStateActive, ec2.BatchStateModifying:
		switch aws.StringValue(sfr.ActivityStatus) {
		case ec2.ActivityStatusFulfilled:
			report.Status = model.RequestComplete
		case ec2.ActivityStatusError:
			unexpectedState(report, req, fmt.Sprintf("spot fleet request [%s] reported an error", req.ResourceId))
		}
	case ec2.BatchStateCancelled, ec2.BatchStateCancelledRunning, ec2.BatchStateCancelledTerminating:
		unexpectedState(report, req, fmt.Sprintf("spot fleet request [%s] is %s", req.ResourceId, state))
	default:
		unexpectedState(report, req, fmt.Sprintf("spot fleet request [%s] is in unexpected state [%s]", req.ResourceId, state))
	}
}

func (b *SpotFleet) activeInstances(ctx context.Context, id string) ([]string, error) {
	var ids []string
	input := &ec2.DescribeSpotFleetInstancesInput{SpotFleetRequestId: aws.String(id)}
	for {
		out, err := b.deps.Clients.EC2.DescribeSpotFleetInstancesWithContext(ctx, input)
		if err != nil {
			return nil, cloud.ConvertError("DescribeSpotFleetInstances", err)
		}
		for _, inst := range out.ActiveInstances {
			ids = append(ids, aws.StringValue(inst.InstanceId))
		}
		if aws.StringValue(out.NextToken) == "" {
			return ids, nil
		}
		input.NextToken = out.NextToken
	}
}

func (b *SpotFleet) ReleaseHosts(ctx context.Context, ret *model.Request, set ReleaseSet) *model.Request {
	owner := set.Owner
	ids := set.MachineIds()
	log := backendLog(b.Handler(), ret).WithField("spotFleetRequestId", owner.ResourceId)

	if set.All {
		_, err := b.deps.Clients.EC2.CancelSpotFleetRequestsWithContext(ctx, &ec2.CancelSpotFleetRequestsInput{
			SpotFleetRequestIds: aws.StringSlice([]string{owner.ResourceId}),
			TerminateInstances:  aws.Bool(true),
		})
		if err != nil && !cloud.IsMissing(err) {
			return ret.Fail(cloud.ConvertError("CancelSpotFleetRequests", err))
		}
		if err := terminate(ctx, b.deps, ids); err != nil {
			return ret.Fail(err)
		}
		log.Infof("cancelled spot fleet with %d instances", len(ids))
		return complete(ret, "spot fleet request [%s] cancelled", owner.ResourceId)
	}

	if owner.Extensions.String(extFleetType) == model.FleetTypeMaintain {
		sfr, err := b.describe(ctx, owner.ResourceId)
		if err != nil {
			return ret.Fail(err)
		}
		if sfr != nil && sfr.SpotFleetRequestConfig != nil {
			current := aws.Int64Value(sfr.SpotFleetRequestConfig.TargetCapacity)
			_, err = b.deps.Clients.EC2.ModifySpotFleetRequestWithContext(ctx, &ec2.ModifySpotFleetRequestInput{
				SpotFleetRequestId:              aws.String(owner.ResourceId),
				TargetCapacity:                  aws.Int64(reduceCapacity(current, len(ids))),
				ExcessCapacityTerminationPolicy: aws.String(ec2.ExcessCapacityTerminationPolicyNoTermination),
			})
			if err != nil {
				return ret.Fail(cloud.ConvertError("ModifySpotFleetRequest", err))
			}
		}
	}
	if err := terminate(ctx, b.deps, ids); err != nil {
		return ret.Fail(err)
	}
	log.Infof("terminated %d of the spot fleet's instances", len(ids))
	return complete(ret, "terminated %d instances of spot fleet request [%s]", len(ids), owner.ResourceId)
}
