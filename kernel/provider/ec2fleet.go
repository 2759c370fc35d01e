package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/chunga-ict/hfprovider/kernel/cloud"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/pkg/errors"
)

func init() {
	RegisterBackendType(model.HandlerEC2Fleet, func(d Deps) Backend { return &EC2Fleet{deps: d} })
}

// EC2Fleet provisions through CreateFleet. Instant fleets return their
// instances synchronously; request and maintain fleets are polled.
type EC2Fleet struct {
	deps Deps
}

func (b *EC2Fleet) Handler() model.HandlerType {
	return model.HandlerEC2Fleet
}

func (b *EC2Fleet) CheckTemplate(_ *model.ProviderTemplate) error {
	return nil
}

func (b *EC2Fleet) Validate(req *model.Request) error {
	return validateLaunchTemplate(req, true)
}

func (b *EC2Fleet) BuildConfig(req *model.Request, tmpl *model.ProviderTemplate) (interface{}, error) {
	if err := b.Validate(req); err != nil {
		return nil, err
	}
	types, weights := tmpl.InstanceTypeWeights()
	spotPrice := ""
	if tmpl.EffectivePriceType() != model.PriceTypeOnDemand {
		spotPrice = tmpl.MaxSpotPrice
	}

	var overrides []*ec2.FleetLaunchTemplateOverridesRequest
	for _, subnet := range tmpl.Subnets() {
		for _, t := range types {
			o := &ec2.FleetLaunchTemplateOverridesRequest{
				InstanceType:     aws.String(t),
				SubnetId:         aws.String(subnet),
				WeightedCapacity: aws.Float64(float64(weights[t])),
			}
			if spotPrice != "" {
				o.MaxPrice = aws.String(spotPrice)
			}
			overrides = append(overrides, o)
		}
	}

	onDemand, spot := capacitySplit(tmpl, req.NumRequested)
	defaultType := ec2.DefaultTargetCapacityTypeOnDemand
	if spot > 0 {
		defaultType = ec2.DefaultTargetCapacityTypeSpot
	}
	fleetType := tmpl.EffectiveFleetType()

	input := &ec2.CreateFleetInput{
		ClientToken: aws.String(req.RequestId),
		Type:        aws.String(fleetType),
		LaunchTemplateConfigs: []*ec2.FleetLaunchTemplateConfigRequest{{
			LaunchTemplateSpecification: &ec2.FleetLaunchTemplateSpecificationRequest{
				LaunchTemplateId: aws.String(req.LaunchTemplateId),
				Version:          aws.String(req.LaunchTemplateVersion),
			},
			Overrides: overrides,
		}},
		TargetCapacitySpecification: &ec2.TargetCapacitySpecificationRequest{
			TotalTargetCapacity:       aws.Int64(int64(req.NumRequested)),
			OnDemandTargetCapacity:    aws.Int64(int64(onDemand)),
			SpotTargetCapacity:        aws.Int64(int64(spot)),
			DefaultTargetCapacityType: aws.String(defaultType),
		},
	}
	if spot > 0 {
		input.SpotOptions = &ec2.SpotOptionsRequest{
			AllocationStrategy: aws.String(fleetAllocationStrategy(tmpl.AllocationStrategy)),
		}
	}
	if onDemand > 0 {
		input.OnDemandOptions = &ec2.OnDemandOptionsRequest{AllocationStrategy: aws.String("lowest-price")}
	}
	if fleetType == model.FleetTypeInstant {
		input.TagSpecifications = cloud.TagSpecifications(req.Tags, ec2.ResourceTypeFleet, ec2.ResourceTypeInstance)
	} else {
		input.TagSpecifications = cloud.TagSpecifications(req.Tags, ec2.ResourceTypeFleet)
	}
	return input, nil
}

func (b *EC2Fleet) AcquireHosts(ctx context.Context, req *model.Request, tmpl *model.ProviderTemplate) *model.Request {
	log := backendLog(b.Handler(), req)
	cfg, err := b.BuildConfig(req, tmpl)
	if err != nil {
		return req.Fail(err)
	}
	input := cfg.(*ec2.CreateFleetInput)

	out, err := b.deps.Clients.EC2.CreateFleetWithContext(ctx, input)
	if err != nil {
		log.WithError(err).Error("CreateFleet failed")
		return req.Fail(cloud.ConvertError("CreateFleet", err))
	}
	req.ResourceId = aws.StringValue(out.FleetId)
	setExtension(req, extFleetType, aws.StringValue(input.Type))

	if aws.StringValue(input.Type) == model.FleetTypeInstant {
		var ids []string
		for _, inst := range out.Instances {
			ids = append(ids, aws.StringValueSlice(inst.InstanceIds)...)
		}
		addInstanceIds(req, ids)
		if len(ids) == 0 && len(out.Errors) > 0 {
			first := out.Errors[0]
			return req.Fail(model.NewCloudBackendError("CreateFleet", aws.StringValue(first.ErrorCode),
				errors.New(aws.StringValue(first.ErrorMessage))))
		}
	}

	req.Status = model.RequestRunning
	req.Message = fmt.Sprintf("fleet [%s] created", req.ResourceId)
	log.Infof("created %s fleet [%s] for [%d] machines", aws.StringValue(input.Type), req.ResourceId, req.NumRequested)
	return req
}

func (b *EC2Fleet) isInstant(req *model.Request) bool {
	return req.Extensions.String(extFleetType) == model.FleetTypeInstant
}

func (b *EC2Fleet) CheckRequestStatus(ctx context.Context, req *model.Request) StatusReport {
	var report StatusReport
	if req.ResourceId == "" {
		report.Err = model.NewValidationError("request [%s] has no fleet id", req.RequestId)
		return report
	}

	active := map[string]bool{}
	if !b.isInstant(req) {
		fleets, err := b.deps.Clients.EC2.DescribeFleetsWithContext(ctx, &ec2.DescribeFleetsInput{
			FleetIds: aws.StringSlice([]string{req.ResourceId}),
		})
		if err != nil {
			report.Err = cloud.ConvertError("DescribeFleets", err)
			return report
		}
		if len(fleets.Fleets) == 0 {
			unexpectedState(&report, req, fmt.Sprintf("fleet [%s] not found", req.ResourceId))
		} else {
			b.fleetState(&report, req, fleets.Fleets[0])
		}

		ids, err := b.activeInstances(ctx, req.ResourceId)
		if err != nil && !cloud.IsMissing(err) {
			report.Err = err
			return report
		}
		for _, id := range ids {
			active[id] = true
		}
		addInstanceIds(req, ids)
	}

	machines, err := observeInstances(ctx, b.deps, req, active)
	if err != nil {
		report.Err = err
		return report
	}
	report.Machines = machines
	if report.Status == "" && b.isInstant(req) && allRunning(machines, len(req.InstanceIds)) {
		report.Status = model.RequestComplete
	}
	return report
}

func (b *EC2Fleet) fleetState(report *StatusReport, req *model.Request, fleet *ec2.FleetData) {
	state := aws.StringValue(fleet.FleetState)
	switch state {
	case ec2.FleetStateCodeSubmitted, ec2.FleetStateCodeActive, ec2.FleetStateCodeModifying:
		target := float64(0)
		if spec := fleet.TargetCapacitySpecification; spec != nil {
			target = float64(aws.Int64Value(spec.TotalTargetCapacity))
		}
		if target > 0 && aws.Float64Value(fleet.FulfilledCapacity) >= target {
			report.Status = model.RequestComplete
		}
		if aws.StringValue(fleet.ActivityStatus) == ec2.FleetActivityStatusError {
			report.Message = fmt.Sprintf("fleet [%s] reported an error activity status", req.ResourceId)
		}
	case ec2.FleetStateCodeDeleted, ec2.FleetStateCodeDeletedRunning, ec2.FleetStateCodeDeletedTerminating:
		unexpectedState(report, req, fmt.Sprintf("fleet [%s] is %s", req.ResourceId, state))
	default:
		unexpectedState(report, req, fmt.Sprintf("fleet [%s] is in unexpected state [%s]", req.ResourceId, state))
	}
}

func (b *EC2Fleet) activeInstances(ctx context.Context, fleetId string) ([]string, error) {
	var ids []string
	input := &ec2.DescribeFleetInstancesInput{FleetId: aws.String(fleetId)}
	for {
		out, err := b.deps.Clients.EC2.DescribeFleetInstancesWithContext(ctx, input)
		if err != nil {
			return nil, cloud.ConvertError("DescribeFleetInstances", err)
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

func (b *EC2Fleet) ReleaseHosts(ctx context.Context, ret *model.Request, set ReleaseSet) *model.Request {
	owner := set.Owner
	ids := set.MachineIds()
	log := backendLog(b.Handler(), ret).WithField("fleetId", owner.ResourceId)

	if b.isInstant(owner) || owner.ResourceId == "" {
		if err := terminate(ctx, b.deps, ids); err != nil {
			return ret.Fail(err)
		}
		return complete(ret, "terminated %d instances", len(ids))
	}

	if set.All {
		_, err := b.deps.Clients.EC2.DeleteFleetsWithContext(ctx, &ec2.DeleteFleetsInput{
			FleetIds:           aws.StringSlice([]string{owner.ResourceId}),
			TerminateInstances: aws.Bool(true),
		})
		if err != nil && !cloud.IsMissing(err) {
			return ret.Fail(cloud.ConvertError("DeleteFleets", err))
		}
		if err := terminate(ctx, b.deps, ids); err != nil {
			return ret.Fail(err)
		}
		log.Infof("deleted fleet with %d instances", len(ids))
		return complete(ret, "fleet [%s] deleted", owner.ResourceId)
	}

	if owner.Extensions.String(extFleetType) == model.FleetTypeMaintain {
		fleets, err := b.deps.Clients.EC2.DescribeFleetsWithContext(ctx, &ec2.DescribeFleetsInput{
			FleetIds: aws.StringSlice([]string{owner.ResourceId}),
		})
		if err != nil {
			return ret.Fail(cloud.ConvertError("DescribeFleets", err))
		}
		if len(fleets.Fleets) > 0 && fleets.Fleets[0].TargetCapacitySpecification != nil {
			current := aws.Int64Value(fleets.Fleets[0].TargetCapacitySpecification.TotalTargetCapacity)
			_, err = b.deps.Clients.EC2.ModifyFleetWithContext(ctx, &ec2.ModifyFleetInput{
				FleetId: aws.String(owner.ResourceId),
				TargetCapacitySpecification: &ec2.TargetCapacitySpecificationRequest{
					TotalTargetCapacity: aws.Int64(reduceCapacity(current, len(ids))),
				},
				ExcessCapacityTerminationPolicy: aws.String(ec2.FleetExcessCapacityTerminationPolicyNoTermination),
			})
			if err != nil {
				return ret.Fail(cloud.ConvertError("ModifyFleet", err))
			}
		}
	}
	if err := terminate(ctx, b.deps, ids); err != nil {
		return ret.Fail(err)
	}
	log.Infof("terminated %d of the fleet's instances", len(ids))
	return complete(ret, "terminated %d instances of fleet [%s]", len(ids), owner.ResourceId)
}

// extFleetType records the fleet type on the request so later polls and
// releases do not need the template.
const extFleetType = "fleetType"
