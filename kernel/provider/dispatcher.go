package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/chunga-ict/hfprovider/kernel/cloud"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/sirupsen/logrus"
)

// SSMImagePrefix marks an imageId that names a parameter store entry.
const SSMImagePrefix = "resolve:ssm:"

const (
	extLaunchTemplateName = "launchTemplateName"
	extImageId            = "imageId"
)

// Dispatcher resolves backends by handler type and runs the pre-flight
// shared by all of them.
type Dispatcher struct {
	deps Deps
	log  *logrus.Entry
}

func NewDispatcher(deps Deps) *Dispatcher {
	return &Dispatcher{
		deps: deps,
		log:  logrus.WithField("component", "dispatcher"),
	}
}

func (d *Dispatcher) Resolve(handler model.HandlerType) (Backend, error) {
	return NewBackend(handler, d.deps)
}

// Tags builds the full tag set for resources created on behalf of req.
func (d *Dispatcher) Tags(req *model.Request, tmpl *model.ProviderTemplate) map[string]string {
	var defaults map[string]string
	if d.deps.Config != nil {
		defaults = d.deps.Config.DefaultTags
	}
	return cloud.MergeTags(defaults, tmpl.InstanceTags, req.Tags, map[string]string{
		cloud.TagRequestId:  req.RequestId,
		cloud.TagTemplateId: tmpl.TemplateId,
		cloud.TagHandler:    req.AwsHandler.String(),
		cloud.TagManagedBy:  cloud.ManagedByValue,
	})
}

// Prepare materializes the per-request launch template and tags. A request
// that already carries a launch template id is left untouched, so the step
// runs once per acquire.
func (d *Dispatcher) Prepare(ctx context.Context, req *model.Request, tmpl *model.ProviderTemplate) error {
	req.Tags = d.Tags(req, tmpl)
	if req.LaunchTemplateId != "" {
		return nil
	}

	imageId, err := d.resolveImage(ctx, tmpl.ImageId)
	if err != nil {
		return err
	}

	name := "hf-" + req.RequestId
	out, err := d.deps.Clients.EC2.CreateLaunchTemplateWithContext(ctx, &ec2.CreateLaunchTemplateInput{
		ClientToken:        aws.String(req.RequestId),
		LaunchTemplateName: aws.String(name),
		VersionDescription: aws.String(fmt.Sprintf("template %s", tmpl.TemplateId)),
		LaunchTemplateData: d.launchTemplateData(req, tmpl, imageId),
		TagSpecifications: []*ec2.TagSpecification{{
			ResourceType: aws.String(ec2.ResourceTypeLaunchTemplate),
			Tags:         cloud.EC2Tags(req.Tags),
		}},
	})
	if err != nil {
		return cloud.ConvertError("CreateLaunchTemplate", err)
	}

	lt := out.LaunchTemplate
	req.LaunchTemplateId = aws.StringValue(lt.LaunchTemplateId)
	req.LaunchTemplateVersion = fmt.Sprintf("%d", aws.Int64Value(lt.LatestVersionNumber))
	setExtension(req, extLaunchTemplateName, name)
	setExtension(req, extImageId, imageId)
	d.log.WithField("requestId", req.RequestId).Infof("created launch template [%s] version [%s]",
		req.LaunchTemplateId, req.LaunchTemplateVersion)
	return nil
}

func (d *Dispatcher) resolveImage(ctx context.Context, imageId string) (string, error) {
	if !strings.HasPrefix(imageId, SSMImagePrefix) {
		return imageId, nil
	}
	param := strings.TrimPrefix(imageId, SSMImagePrefix)
	out, err := d.deps.Clients.SSM.GetParameterWithContext(ctx, &ssm.GetParameterInput{Name: aws.String(param)})
	if err != nil {
		return "", cloud.ConvertError("GetParameter", err)
	}
	resolved := aws.StringValue(out.Parameter.Value)
	if resolved == "" {
		return "", model.NewValidationError("parameter [%s] holds no image id", param)
	}
	d.log.Debugf("resolved image [%s] to [%s]", param, resolved)
	return resolved, nil
}

func (d *Dispatcher) launchTemplateData(req *model.Request, tmpl *model.ProviderTemplate, imageId string) *ec2.RequestLaunchTemplateData {
	data := &ec2.RequestLaunchTemplateData{
		ImageId:           aws.String(imageId),
		TagSpecifications: cloud.LaunchTemplateTagSpecifications(req.Tags, ec2.ResourceTypeInstance, ec2.ResourceTypeVolume),
	}
	if tmpl.InstanceType != "" {
		data.InstanceType = aws.String(tmpl.InstanceType)
	}
	if tmpl.KeyName != "" {
		data.KeyName = aws.String(tmpl.KeyName)
	}
	if len(tmpl.SecurityGroupIds) > 0 {
		data.SecurityGroupIds = aws.StringSlice(tmpl.SecurityGroupIds)
	}
	if tmpl.UserData != "" {
		data.UserData = aws.String(encodeUserData(tmpl.UserData))
	}
	if tmpl.InstanceProfile != "" {
		profile := &ec2.LaunchTemplateIamInstanceProfileSpecificationRequest{}
		if strings.HasPrefix(tmpl.InstanceProfile, "arn:") {
			profile.Arn = aws.String(tmpl.InstanceProfile)
		} else {
			profile.Name = aws.String(tmpl.InstanceProfile)
		}
		data.IamInstanceProfile = profile
	}
	return data
}

// encodeUserData base64 encodes user data unless it already is.
func encodeUserData(s string) string {
	if _, err := base64.StdEncoding.DecodeString(s); err == nil {
		return s
	}
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// Observe describes the instances behind stored machines directly, without
// going through their backend. Instances EC2 no longer reports come back
// TERMINATED.
func (d *Dispatcher) Observe(ctx context.Context, machines []*model.Machine) ([]*model.Machine, error) {
	ids := make([]string, 0, len(machines))
	for _, m := range machines {
		ids = append(ids, m.MachineId)
	}
	instances, err := cloud.DescribeInstances(ctx, d.deps.Clients.EC2, ids)
	if err != nil {
		return nil, err
	}
	now := d.deps.clock().Now()
	found := make(map[string]*ec2.Instance, len(instances))
	for _, inst := range instances {
		found[aws.StringValue(inst.InstanceId)] = inst
	}
	out := make([]*model.Machine, 0, len(machines))
	for _, m := range machines {
		if inst, ok := found[m.MachineId]; ok {
			out = append(out, cloud.MachineFromInstance(inst, m.RequestId, m.ResourceId, now))
			continue
		}
		gone := &model.Machine{MachineId: m.MachineId, RequestId: m.RequestId, ResourceId: m.ResourceId}
		gone.SetStatus(model.MachineTerminated, now, "instance no longer reported by EC2")
		out = append(out, gone)
	}
	return out, nil
}

// Release runs the backend release and, once every machine of the owner is
// gone, deletes the launch template Prepare created for it.
func (d *Dispatcher) Release(ctx context.Context, backend Backend, ret *model.Request, set ReleaseSet) *model.Request {
	result := backend.ReleaseHosts(ctx, ret, set)
	if result.Status == model.RequestFailed || !set.All {
		return result
	}
	d.Discard(ctx, set.Owner)
	return result
}

// Discard deletes the launch template Prepare created for req. Launch
// templates that came with the template are left alone. Failures are only
// logged.
func (d *Dispatcher) Discard(ctx context.Context, req *model.Request) {
	if req.Extensions.String(extLaunchTemplateName) == "" || req.LaunchTemplateId == "" {
		return
	}
	_, err := d.deps.Clients.EC2.DeleteLaunchTemplateWithContext(ctx, &ec2.DeleteLaunchTemplateInput{
		LaunchTemplateId: aws.String(req.LaunchTemplateId),
	})
	if err != nil && !cloud.IsMissing(err) {
		d.log.WithError(err).Warnf("failed to delete launch template [%s]", req.LaunchTemplateId)
		return
	}
	d.log.WithField("requestId", req.RequestId).Debugf("deleted launch template [%s]", req.LaunchTemplateId)
}
