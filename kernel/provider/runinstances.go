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
	RegisterBackendType(model.HandlerRunInstances, func(d Deps) Backend { return &RunInstances{deps: d} })
}

// RunInstances launches instances directly. There is no aggregate cloud
// resource; the reservation id is kept as the resource id.
type RunInstances struct {
	deps Deps
}

func (b *RunInstances) Handler() model.HandlerType {
	return model.HandlerRunInstances
}

func (b *RunInstances) CheckTemplate(tmpl *model.ProviderTemplate) error {
	if tmpl.EffectivePriceType() == model.PriceTypeHeterogeneous {
		return model.NewValidationError("template [%s] priceType heterogeneous is not supported by RunInstances", tmpl.TemplateId)
	}
	return nil
}

func (b *RunInstances) Validate(req *model.Request) error {
	return validateLaunchTemplate(req, false)
}

func (b *RunInstances) BuildConfig(req *model.Request, tmpl *model.ProviderTemplate) (interface{}, error) {
	if err := b.Validate(req); err != nil {
		return nil, err
	}
	if err := b.CheckTemplate(tmpl); err != nil {
		return nil, err
	}
	count := aws.Int64(int64(req.NumRequested))
	spec := &ec2.LaunchTemplateSpecification{LaunchTemplateId: aws.String(req.LaunchTemplateId)}
	if req.LaunchTemplateVersion != "" {
		spec.Version = aws.String(req.LaunchTemplateVersion)
	}

	input := &ec2.RunInstancesInput{
		ClientToken:       aws.String(req.RequestId),
		LaunchTemplate:    spec,
		MinCount:          count,
		MaxCount:          count,
		TagSpecifications: cloud.TagSpecifications(req.Tags, ec2.ResourceTypeInstance, ec2.ResourceTypeVolume),
	}
	if tmpl.InstanceType != "" {
		input.InstanceType = aws.String(tmpl.InstanceType)
	} else if types, _ := tmpl.InstanceTypeWeights(); len(types) > 0 {
		input.InstanceType = aws.String(types[0])
	}
	if subnets := tmpl.Subnets(); len(subnets) > 0 {
		input.SubnetId = aws.String(subnets[0])
	}
	if tmpl.EffectivePriceType() == model.PriceTypeSpot {
		spot := &ec2.SpotMarketOptions{
			SpotInstanceType:             aws.String(ec2.SpotInstanceTypeOneTime),
			InstanceInterruptionBehavior: aws.String(ec2.InstanceInterruptionBehaviorTerminate),
		}
		if tmpl.MaxSpotPrice != "" {
			spot.MaxPrice = aws.String(tmpl.MaxSpotPrice)
		}
		input.InstanceMarketOptions = &ec2.InstanceMarketOptionsRequest{
			MarketType:  aws.String(ec2.MarketTypeSpot),
			SpotOptions: spot,
		}
	}
	return input, nil
}

func (b *RunInstances) AcquireHosts(ctx context.Context, req *model.Request, tmpl *model.ProviderTemplate) *model.Request {
	log := backendLog(b.Handler(), req)
	cfg, err := b.BuildConfig(req, tmpl)
	if err != nil {
		return req.Fail(err)
	}

	res, err := b.deps.Clients.EC2.RunInstancesWithContext(ctx, cfg.(*ec2.RunInstancesInput))
	if err != nil {
		log.WithError(err).Error("RunInstances failed")
		return req.Fail(cloud.ConvertError("RunInstances", err))
	}
	var ids []string
	for _, inst := range res.Instances {
		ids = append(ids, aws.StringValue(inst.InstanceId))
	}
	addInstanceIds(req, ids)
	req.ResourceId = aws.StringValue(res.ReservationId)
	req.Status = model.RequestRunning
	req.Message = fmt.Sprintf("launched %d instances in reservation [%s]", len(ids), req.ResourceId)
	log.Infof("launched %d instances in reservation [%s]", len(ids), req.ResourceId)
	return req
}

func (b *RunInstances) CheckRequestStatus(ctx context.Context, req *model.Request) StatusReport {
	var report StatusReport
	if len(req.InstanceIds) == 0 {
		report.Err = model.NewValidationError("request [%s] has no instances", req.RequestId)
		return report
	}
	machines, err := observeInstances(ctx, b.deps, req, nil)
	if err != nil {
		report.Err = err
		return report
	}
	report.Machines = machines
	if allRunning(machines, len(req.InstanceIds)) {
		report.Status = model.RequestComplete
	}
	return report
}

func (b *RunInstances) ReleaseHosts(ctx context.Context, ret *model.Request, set ReleaseSet) *model.Request {
	ids := set.MachineIds()
	if err := terminate(ctx, b.deps, ids); err != nil {
		return ret.Fail(err)
	}
	backendLog(b.Handler(), ret).Infof("terminated %d instances", len(ids))
	return complete(ret, "terminated %d instances", len(ids))
}
