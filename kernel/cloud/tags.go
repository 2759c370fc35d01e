package cloud

import (
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/ec2"
)

const (
	TagRequestId  = "RequestId"
	TagTemplateId = "TemplateId"
	TagHandler    = "AwsHandler"
	TagManagedBy  = "ManagedBy"

	ManagedByValue = "hfprovider"
)

func sortedKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EC2Tags converts a tag map into EC2 tags ordered by key.
func EC2Tags(tags map[string]string) []*ec2.Tag {
	out := make([]*ec2.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		out = append(out, &ec2.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

// TagSpecifications tags each of the given resource types with tags.
func TagSpecifications(tags map[string]string, resourceTypes ...string) []*ec2.TagSpecification {
	if len(tags) == 0 {
		return nil
	}
	var out []*ec2.TagSpecification
	for _, rt := range resourceTypes {
		out = append(out, &ec2.TagSpecification{
			ResourceType: aws.String(rt),
			Tags:         EC2Tags(tags),
		})
	}
	return out
}

// LaunchTemplateTagSpecifications is TagSpecifications for launch template data.
func LaunchTemplateTagSpecifications(tags map[string]string, resourceTypes ...string) []*ec2.LaunchTemplateTagSpecificationRequest {
	if len(tags) == 0 {
		return nil
	}
	var out []*ec2.LaunchTemplateTagSpecificationRequest
	for _, rt := range resourceTypes {
		out = append(out, &ec2.LaunchTemplateTagSpecificationRequest{
			ResourceType: aws.String(rt),
			Tags:         EC2Tags(tags),
		})
	}
	return out
}

// ASGTags converts a tag map into group tags propagated to launched instances.
func ASGTags(groupName string, tags map[string]string) []*autoscaling.Tag {
	out := make([]*autoscaling.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		out = append(out, &autoscaling.Tag{
			Key:               aws.String(k),
			Value:             aws.String(tags[k]),
			PropagateAtLaunch: aws.Bool(true),
			ResourceId:        aws.String(groupName),
			ResourceType:      aws.String("auto-scaling-group"),
		})
	}
	return out
}

// MergeTags layers tag maps, later maps winning.
func MergeTags(layers ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}
