package model

// HandlerType selects the provisioning backend for a template or request.
type HandlerType string

const (
	HandlerEC2Fleet     HandlerType = "EC2Fleet"
	HandlerSpotFleet    HandlerType = "SpotFleet"
	HandlerASG          HandlerType = "ASG"
	HandlerRunInstances HandlerType = "RunInstances"
)

func (h HandlerType) String() string {
	return string(h)
}
