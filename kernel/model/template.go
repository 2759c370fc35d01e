package model

import (
	"reflect"
	"sort"
	"strings"
)

const (
	PriceTypeOnDemand      = "ondemand"
	PriceTypeSpot          = "spot"
	PriceTypeHeterogeneous = "heterogeneous"
)

const (
	FleetTypeRequest  = "request"
	FleetTypeMaintain = "maintain"
	FleetTypeInstant  = "instant"
)

// ProviderTemplate describes how machines of one kind are provisioned.
type ProviderTemplate struct {
	TemplateId         string              `json:"templateId"`
	MaxNumber          int                 `json:"maxNumber"`
	AwsHandler         HandlerType         `json:"awsHandler"`
	ImageId            string              `json:"imageId"`
	InstanceType       string              `json:"vmType,omitempty"`
	InstanceTypes      map[string]int      `json:"vmTypes,omitempty"`
	SubnetId           string              `json:"subnetId,omitempty"`
	SubnetIds          []string            `json:"subnetIds,omitempty"`
	SecurityGroupIds   []string            `json:"securityGroupIds,omitempty"`
	KeyName            string              `json:"keyName,omitempty"`
	UserData           string              `json:"userData,omitempty"`
	InstanceProfile    string              `json:"instanceProfile,omitempty"`
	PriceType          string              `json:"priceType,omitempty"`
	MaxSpotPrice       string              `json:"maxSpotPrice,omitempty"`
	AllocationStrategy string              `json:"allocationStrategy,omitempty"`
	FleetType          string              `json:"fleetType,omitempty"`
	FleetRole          string              `json:"fleetRole,omitempty"`
	PercentOnDemand    int                 `json:"percentOnDemand,omitempty"`
	InstanceTags       map[string]string   `json:"instanceTags,omitempty"`
	Attributes         map[string][]string `json:"attributes,omitempty"`

	Extensions Extensions `json:"-"`
}

type templateCore ProviderTemplate

var templateKeys = jsonKeys(reflect.TypeOf(templateCore{}))

func (t ProviderTemplate) MarshalJSON() ([]byte, error) {
	return marshalWithExtensions(templateCore(t), templateKeys, t.Extensions)
}

func (t *ProviderTemplate) UnmarshalJSON(data []byte) error {
	var core templateCore
	ext, err := unmarshalWithExtensions(data, &core, templateKeys)
	if err != nil {
		return err
	}
	*t = ProviderTemplate(core)
	t.Extensions = ext
	return nil
}

// Subnets returns the configured subnets; subnetId may hold a comma separated list.
func (t *ProviderTemplate) Subnets() []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range strings.Split(t.SubnetId, ",") {
		add(s)
	}
	for _, s := range t.SubnetIds {
		add(s)
	}
	return out
}

// InstanceTypeWeights returns instance type -> weighted capacity, sorted by type.
func (t *ProviderTemplate) InstanceTypeWeights() ([]string, map[string]int) {
	weights := map[string]int{}
	for k, w := range t.InstanceTypes {
		if w <= 0 {
			w = 1
		}
		weights[k] = w
	}
	if t.InstanceType != "" {
		if _, found := weights[t.InstanceType]; !found {
			weights[t.InstanceType] = 1
		}
	}
	types := make([]string, 0, len(weights))
	for k := range weights {
		types = append(types, k)
	}
	sort.Strings(types)
	return types, weights
}

func (t *ProviderTemplate) EffectivePriceType() string {
	if t.PriceType == "" {
		return PriceTypeOnDemand
	}
	return t.PriceType
}

func (t *ProviderTemplate) EffectiveFleetType() string {
	if t.FleetType == "" {
		return FleetTypeRequest
	}
	return t.FleetType
}

// Validate checks the fields every backend needs.
func (t *ProviderTemplate) Validate() error {
	if t.TemplateId == "" {
		return NewValidationError("template is missing templateId")
	}
	if t.MaxNumber <= 0 {
		return NewValidationError("template [%s] maxNumber must be greater than 0", t.TemplateId)
	}
	if t.AwsHandler == "" {
		return NewValidationError("template [%s] is missing awsHandler", t.TemplateId)
	}
	if t.ImageId == "" {
		return NewValidationError("template [%s] is missing imageId", t.TemplateId)
	}
	if types, _ := t.InstanceTypeWeights(); len(types) == 0 {
		return NewValidationError("template [%s] has no vmType or vmTypes", t.TemplateId)
	}
	if len(t.Subnets()) == 0 {
		return NewValidationError("template [%s] is missing subnetId", t.TemplateId)
	}
	switch t.EffectivePriceType() {
	case PriceTypeOnDemand, PriceTypeSpot, PriceTypeHeterogeneous:
	default:
		return NewValidationError("template [%s] has unknown priceType [%s]", t.TemplateId, t.PriceType)
	}
	switch t.EffectiveFleetType() {
	case FleetTypeRequest, FleetTypeMaintain, FleetTypeInstant:
	default:
		return NewValidationError("template [%s] has unknown fleetType [%s]", t.TemplateId, t.FleetType)
	}
	if t.PercentOnDemand < 0 || t.PercentOnDemand > 100 {
		return NewValidationError("template [%s] percentOnDemand must be within 0..100", t.TemplateId)
	}
	return nil
}

// ValidateCount enforces 0 < count <= maxNumber.
func (t *ProviderTemplate) ValidateCount(count int) error {
	if count <= 0 {
		return NewValidationError("numMachines must be greater than 0, got %d", count)
	}
	if count > t.MaxNumber {
		return NewValidationError("numMachines %d exceeds template [%s] maxNumber %d", count, t.TemplateId, t.MaxNumber)
	}
	return nil
}
