package model

import (
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RequestType string

const (
	RequestTypeAcquire RequestType = "ACQUIRE"
	RequestTypeReturn  RequestType = "RETURN"
)

const (
	AcquirePrefix = "req-"
	ReturnPrefix  = "ret-"
)

type RequestStatus string

const (
	RequestRunning            RequestStatus = "RUNNING"
	RequestComplete           RequestStatus = "COMPLETE"
	RequestCompleteWithErrors RequestStatus = "COMPLETE_WITH_ERRORS"
	// RequestFailed is reported by backends when a cloud call fails. The
	// reconciler never persists it; it becomes COMPLETE_WITH_ERRORS.
	RequestFailed RequestStatus = "FAILED"
)

func (s RequestStatus) IsTerminal() bool {
	return s == RequestComplete || s == RequestCompleteWithErrors
}

// NewRequestId generates an id with the prefix matching the request type.
func NewRequestId(t RequestType) string {
	if t == RequestTypeReturn {
		return ReturnPrefix + uuid.NewString()
	}
	return AcquirePrefix + uuid.NewString()
}

// RequestTypeOf infers the request type from an id prefix.
func RequestTypeOf(requestId string) RequestType {
	if strings.HasPrefix(requestId, ReturnPrefix) {
		return RequestTypeReturn
	}
	return RequestTypeAcquire
}

// Request is one acquire or return operation.
type Request struct {
	RequestId             string            `json:"requestId"`
	RequestType           RequestType       `json:"requestType"`
	TemplateId            string            `json:"templateId,omitempty"`
	NumRequested          int               `json:"numRequested"`
	AwsHandler            HandlerType       `json:"awsHandler,omitempty"`
	ResourceId            string            `json:"resourceId,omitempty"`
	LaunchTemplateId      string            `json:"launchTemplateId,omitempty"`
	LaunchTemplateVersion string            `json:"launchTemplateVersion,omitempty"`
	InstanceIds           []string          `json:"instanceIds,omitempty"`
	MachineIds            []string          `json:"machineIds,omitempty"`
	Status                RequestStatus     `json:"status"`
	NumRunning            int               `json:"numRunning"`
	NumFailed             int               `json:"numFailed"`
	NumReturned           int               `json:"numReturned"`
	RequestedTime         time.Time         `json:"requestedTime"`
	FirstStatusCheckTime  *time.Time        `json:"firstStatusCheckTime,omitempty"`
	LastStatusCheckTime   *time.Time        `json:"lastStatusCheckTime,omitempty"`
	Message               string            `json:"message,omitempty"`
	Error                 string            `json:"error,omitempty"`
	Tags                  map[string]string `json:"tags,omitempty"`

	Extensions Extensions `json:"-"`
}

type requestCore Request

var requestKeys = jsonKeys(reflect.TypeOf(requestCore{}))

func (r Request) MarshalJSON() ([]byte, error) {
	return marshalWithExtensions(requestCore(r), requestKeys, r.Extensions)
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var core requestCore
	ext, err := unmarshalWithExtensions(data, &core, requestKeys)
	if err != nil {
		return err
	}
	*r = Request(core)
	r.Extensions = ext
	return nil
}

// NewAcquireRequest creates a RUNNING acquire request for a template.
func NewAcquireRequest(tmpl *ProviderTemplate, count int, now time.Time) *Request {
	return &Request{
		RequestId:     NewRequestId(RequestTypeAcquire),
		RequestType:   RequestTypeAcquire,
		TemplateId:    tmpl.TemplateId,
		NumRequested:  count,
		AwsHandler:    tmpl.AwsHandler,
		Status:        RequestRunning,
		RequestedTime: now.UTC(),
	}
}

// NewReturnRequest creates a RUNNING return request covering machineIds.
func NewReturnRequest(machineIds []string, now time.Time) *Request {
	return &Request{
		RequestId:     NewRequestId(RequestTypeReturn),
		RequestType:   RequestTypeReturn,
		NumRequested:  len(machineIds),
		MachineIds:    machineIds,
		Status:        RequestRunning,
		RequestedTime: now.UTC(),
	}
}

// Fail records a cloud-side failure on the request without raising it.
func (r *Request) Fail(err error) *Request {
	r.Status = RequestFailed
	if err != nil {
		r.Error = err.Error()
		r.Message = err.Error()
	}
	return r
}

// MarkChecked stamps the first and last status check times.
func (r *Request) MarkChecked(now time.Time) {
	t := now.UTC()
	if r.FirstStatusCheckTime == nil {
		r.FirstStatusCheckTime = &t
	}
	r.LastStatusCheckTime = &t
}

func (r *Request) IsReturn() bool {
	return r.RequestType == RequestTypeReturn
}
