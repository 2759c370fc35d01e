package cloud

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/chunga-ict/hfprovider/kernel/model"
)

// describeBatch bounds the instance ids sent in one DescribeInstances call.
const describeBatch = 200

// MachineStatusFor maps an EC2 instance state name to the machine status vocabulary.
func MachineStatusFor(state string) model.MachineStatus {
	switch state {
	case ec2.InstanceStateNamePending:
		return model.MachinePending
	case ec2.InstanceStateNameRunning:
		return model.MachineRunning
	case ec2.InstanceStateNameStopping:
		return model.MachineStopping
	case ec2.InstanceStateNameStopped:
		return model.MachineStopped
	case ec2.InstanceStateNameShuttingDown:
		return model.MachineShuttingDown
	case ec2.InstanceStateNameTerminated:
		return model.MachineTerminated
	default:
		return model.MachineUnknown
	}
}

// DescribeInstances looks up instances by id, following pagination. The ids
// go in an instance-id filter rather than InstanceIds so that ids unknown to
// EC2 are simply absent from the result instead of failing the call.
func DescribeInstances(ctx context.Context, client EC2, ids []string) ([]*ec2.Instance, error) {
	var out []*ec2.Instance
	for start := 0; start < len(ids); start += describeBatch {
		end := start + describeBatch
		if end > len(ids) {
			end = len(ids)
		}
		input := &ec2.DescribeInstancesInput{
			Filters: []*ec2.Filter{{Name: aws.String("instance-id"), Values: aws.StringSlice(ids[start:end])}},
		}
		err := client.DescribeInstancesPagesWithContext(ctx, input, func(page *ec2.DescribeInstancesOutput, _ bool) bool {
			for _, reservation := range page.Reservations {
				out = append(out, reservation.Instances...)
			}
			return true
		})
		if err != nil {
			return nil, ConvertError("DescribeInstances", err)
		}
	}
	return out, nil
}

// DescribeTagged finds instances carrying tag key=value that are not terminated.
func DescribeTagged(ctx context.Context, client EC2, key, value string) ([]*ec2.Instance, error) {
	var out []*ec2.Instance
	input := &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{Name: aws.String("tag:" + key), Values: aws.StringSlice([]string{value})},
		},
	}
	err := client.DescribeInstancesPagesWithContext(ctx, input, func(page *ec2.DescribeInstancesOutput, _ bool) bool {
		for _, reservation := range page.Reservations {
			out = append(out, reservation.Instances...)
		}
		return true
	})
	if err != nil {
		return nil, ConvertError("DescribeInstances", err)
	}
	return out, nil
}

// MachineFromInstance builds a fresh, unpersisted machine record from an EC2 instance.
func MachineFromInstance(inst *ec2.Instance, requestId, resourceId string, now time.Time) *model.Machine {
	m := &model.Machine{
		MachineId:        aws.StringValue(inst.InstanceId),
		Name:             aws.StringValue(inst.PrivateDnsName),
		RequestId:        requestId,
		ResourceId:       resourceId,
		InstanceType:     aws.StringValue(inst.InstanceType),
		PriceType:        model.PriceTypeOnDemand,
		PrivateIpAddress: aws.StringValue(inst.PrivateIpAddress),
		PublicIpAddress:  aws.StringValue(inst.PublicIpAddress),
		SubnetId:         aws.StringValue(inst.SubnetId),
	}
	if m.Name == "" {
		m.Name = m.MachineId
	}
	if aws.StringValue(inst.InstanceLifecycle) == ec2.InstanceLifecycleTypeSpot {
		m.PriceType = model.PriceTypeSpot
	}
	if inst.Placement != nil {
		m.AvailabilityZone = aws.StringValue(inst.Placement.AvailabilityZone)
	}
	if inst.LaunchTime != nil {
		t := inst.LaunchTime.UTC()
		m.LaunchTime = &t
	}

	state := ""
	if inst.State != nil {
		state = aws.StringValue(inst.State.Name)
	}
	reason := ""
	if inst.StateReason != nil {
		reason = aws.StringValue(inst.StateReason.Message)
	}
	status := MachineStatusFor(state)
	if status != model.MachineRunning {
		m.Message = reason
	}
	m.SetStatus(status, now, reason)
	return m
}
