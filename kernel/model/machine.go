package model

import (
	"reflect"
	"time"
)

type MachineStatus string

const (
	MachinePending      MachineStatus = "PENDING"
	MachineRunning      MachineStatus = "RUNNING"
	MachineStopping     MachineStatus = "STOPPING"
	MachineStopped      MachineStatus = "STOPPED"
	MachineShuttingDown MachineStatus = "SHUTTING_DOWN"
	MachineTerminated   MachineStatus = "TERMINATED"
	MachineReturned     MachineStatus = "RETURNED"
	MachineUnknown      MachineStatus = "UNKNOWN"
)

type MachineResult string

const (
	ResultExecuting MachineResult = "executing"
	ResultSucceed   MachineResult = "succeed"
	ResultFail      MachineResult = "fail"
)

// ResultFor derives a machine result from its status.
func ResultFor(status MachineStatus) MachineResult {
	switch status {
	case MachineRunning:
		return ResultSucceed
	case MachineTerminated, MachineStopped:
		return ResultFail
	default:
		return ResultExecuting
	}
}

// Machine is one compute instance tracked against a request.
type Machine struct {
	MachineId        string        `json:"machineId"`
	Name             string        `json:"name,omitempty"`
	RequestId        string        `json:"requestId"`
	ReturnId         string        `json:"returnId,omitempty"`
	ResourceId       string        `json:"resourceId,omitempty"`
	Status           MachineStatus `json:"status"`
	Result           MachineResult `json:"result"`
	InstanceType     string        `json:"instanceType,omitempty"`
	PriceType        string        `json:"priceType,omitempty"`
	PrivateIpAddress string        `json:"privateIpAddress,omitempty"`
	PublicIpAddress  string        `json:"publicIpAddress,omitempty"`
	SubnetId         string        `json:"subnetId,omitempty"`
	AvailabilityZone string        `json:"availabilityZone,omitempty"`
	LaunchTime       *time.Time    `json:"launchTime,omitempty"`
	StoppedTime      *time.Time    `json:"stoppedTime,omitempty"`
	StoppedReason    string        `json:"stoppedReason,omitempty"`
	TerminatedTime   *time.Time    `json:"terminatedTime,omitempty"`
	TerminatedReason string        `json:"terminatedReason,omitempty"`
	FailedTime       *time.Time    `json:"failedTime,omitempty"`
	FailedReason     string        `json:"failedReason,omitempty"`
	ReturnedTime     *time.Time    `json:"returnedTime,omitempty"`
	Message          string        `json:"message,omitempty"`
	LastUpdated      *time.Time    `json:"lastUpdated,omitempty"`

	Extensions Extensions `json:"-"`
}

type machineCore Machine

var machineKeys = jsonKeys(reflect.TypeOf(machineCore{}))

func (m Machine) MarshalJSON() ([]byte, error) {
	m.Result = ResultFor(m.Status)
	return marshalWithExtensions(machineCore(m), machineKeys, m.Extensions)
}

func (m *Machine) UnmarshalJSON(data []byte) error {
	var core machineCore
	ext, err := unmarshalWithExtensions(data, &core, machineKeys)
	if err != nil {
		return err
	}
	*m = Machine(core)
	m.Result = ResultFor(m.Status)
	m.Extensions = ext
	return nil
}

// SetStatus moves the machine into status, keeping result and the
// transition timestamps consistent.
func (m *Machine) SetStatus(status MachineStatus, at time.Time, reason string) {
	t := at.UTC()
	if m.Status != status {
		switch status {
		case MachineStopped:
			m.StoppedTime = &t
			m.StoppedReason = reason
		case MachineTerminated:
			m.TerminatedTime = &t
			m.TerminatedReason = reason
		case MachineReturned:
			m.ReturnedTime = &t
		case MachineUnknown:
			m.FailedTime = &t
			m.FailedReason = reason
		}
	}
	m.Status = status
	m.Result = ResultFor(status)
	m.LastUpdated = &t
}

func (m *Machine) IsReturned() bool {
	return m.Status == MachineReturned
}

// MergeObserved folds a freshly observed copy of the machine into the stored
// record. Return bookkeeping survives: a returned machine stays RETURNED no
// matter what the cloud reports afterwards.
func (m *Machine) MergeObserved(observed *Machine, at time.Time) {
	if observed.Name != "" {
		m.Name = observed.Name
	}
	if observed.InstanceType != "" {
		m.InstanceType = observed.InstanceType
	}
	if observed.PriceType != "" {
		m.PriceType = observed.PriceType
	}
	if observed.PrivateIpAddress != "" {
		m.PrivateIpAddress = observed.PrivateIpAddress
	}
	if observed.PublicIpAddress != "" {
		m.PublicIpAddress = observed.PublicIpAddress
	}
	if observed.SubnetId != "" {
		m.SubnetId = observed.SubnetId
	}
	if observed.AvailabilityZone != "" {
		m.AvailabilityZone = observed.AvailabilityZone
	}
	if observed.ResourceId != "" {
		m.ResourceId = observed.ResourceId
	}
	if observed.LaunchTime != nil {
		m.LaunchTime = observed.LaunchTime
	}
	for k, v := range observed.Extensions {
		if m.Extensions == nil {
			m.Extensions = make(Extensions)
		}
		m.Extensions[k] = v
	}
	m.Message = observed.Message

	if m.IsReturned() {
		if observed.Status == MachineTerminated && m.TerminatedTime == nil {
			t := at.UTC()
			m.TerminatedTime = &t
			m.TerminatedReason = observed.TerminatedReason
		}
		t := at.UTC()
		m.LastUpdated = &t
		return
	}
	reason := observed.TerminatedReason
	if observed.Status == MachineStopped {
		reason = observed.StoppedReason
	}
	m.SetStatus(observed.Status, at, reason)
}
