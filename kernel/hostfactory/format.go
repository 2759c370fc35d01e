package hostfactory

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/chunga-ict/hfprovider/kernel/model"
)

// Formatter renders provider records for one scheduler. The hostfactory
// scheduler wants lowercase statuses and unix launch times; the default
// scheduler gets the records as they are stored.
type Formatter struct {
	Scheduler string
}

func NewFormatter(scheduler string) *Formatter {
	if scheduler == "" {
		scheduler = model.SchedulerHostFactory
	}
	return &Formatter{Scheduler: strings.ToLower(scheduler)}
}

func (f *Formatter) hostFactory() bool {
	return f.Scheduler == model.SchedulerHostFactory
}

// Status maps a request status into the scheduler vocabulary.
func (f *Formatter) Status(s model.RequestStatus) string {
	if !f.hostFactory() {
		return string(s)
	}
	switch s {
	case model.RequestComplete:
		return "complete"
	case model.RequestCompleteWithErrors, model.RequestFailed:
		return "complete_with_error"
	default:
		return "running"
	}
}

func (f *Formatter) machineStatus(s model.MachineStatus) string {
	if f.hostFactory() {
		return strings.ToLower(string(s))
	}
	return string(s)
}

// Templates renders the catalog. Extension properties are kept.
func (f *Formatter) Templates(tmpls []*model.ProviderTemplate) (*TemplatesResponse, error) {
	out := &TemplatesResponse{Templates: make([]map[string]interface{}, 0, len(tmpls))}
	for _, tmpl := range tmpls {
		doc, err := Document(tmpl)
		if err != nil {
			return nil, err
		}
		if f.hostFactory() {
			if _, found := doc["attributes"]; !found {
				doc["attributes"] = defaultAttributes()
			}
		}
		out.Templates = append(out.Templates, doc)
	}
	if len(out.Templates) == 0 {
		out.Message = "no templates available"
	} else {
		out.Message = "Get available templates success."
	}
	return out, nil
}

func defaultAttributes() map[string][]string {
	return map[string][]string{
		"type":  {"String", "X86_64"},
		"ncpus": {"Numeric", "1"},
		"nram":  {"Numeric", "1024"},
	}
}

// RequestCreated renders the answer to requestMachines or
// requestReturnMachines. The hostfactory scheduler always gets its fixed
// success text unless the request already ended with errors; the backend's
// own message stays on the request and shows up in status responses.
func (f *Formatter) RequestCreated(req *model.Request) *RequestCreated {
	msg := req.Message
	switch {
	case req.Status == model.RequestCompleteWithErrors || req.Status == model.RequestFailed:
		if msg == "" {
			msg = req.Error
		}
	case msg == "" || f.hostFactory():
		if req.IsReturn() {
			msg = "Delete VM success."
		} else {
			msg = "Request VM success."
		}
	}
	return &RequestCreated{
		RequestId: req.RequestId,
		Status:    f.Status(req.Status),
		Message:   msg,
	}
}

// Entry renders one request with its machines.
func (f *Formatter) Entry(req *model.Request, machines []*model.Machine, long bool) (RequestStatusEntry, error) {
	entry := RequestStatusEntry{
		RequestId: req.RequestId,
		Status:    f.Status(req.Status),
		Message:   req.Message,
		Machines:  make([]interface{}, 0, len(machines)),
	}
	for _, m := range machines {
		if long {
			doc, err := f.longMachine(m)
			if err != nil {
				return entry, err
			}
			entry.Machines = append(entry.Machines, doc)
		} else {
			entry.Machines = append(entry.Machines, f.shortMachine(m))
		}
	}
	return entry, nil
}

// ErrorEntry renders a request id that could not be read.
func (f *Formatter) ErrorEntry(requestId string, err error) RequestStatusEntry {
	return RequestStatusEntry{
		RequestId: requestId,
		Status:    f.Status(model.RequestCompleteWithErrors),
		Message:   err.Error(),
		Machines:  []interface{}{},
	}
}

func (f *Formatter) shortMachine(m *model.Machine) map[string]interface{} {
	doc := map[string]interface{}{
		"machineId":        m.MachineId,
		"name":             m.Name,
		"priceType":        m.PriceType,
		"instanceType":     m.InstanceType,
		"status":           f.machineStatus(m.Status),
		"result":           string(model.ResultFor(m.Status)),
		"privateIpAddress": m.PrivateIpAddress,
		"publicIpAddress":  m.PublicIpAddress,
		"message":          m.Message,
	}
	f.setLaunchTime(doc, m.LaunchTime)
	return doc
}

func (f *Formatter) longMachine(m *model.Machine) (map[string]interface{}, error) {
	doc, err := Document(m)
	if err != nil {
		return nil, err
	}
	doc["status"] = f.machineStatus(m.Status)
	f.setLaunchTime(doc, m.LaunchTime)
	return doc, nil
}

func (f *Formatter) setLaunchTime(doc map[string]interface{}, at *time.Time) {
	if f.hostFactory() {
		delete(doc, "launchTime")
		if at != nil {
			doc["launchtime"] = at.Unix()
		} else {
			doc["launchtime"] = 0
		}
		return
	}
	if at != nil {
		doc["launchTime"] = at.UTC().Format(time.RFC3339)
	}
}

// ReturnRequests renders the machines the cloud has reclaimed.
func (f *Formatter) ReturnRequests(machines []*model.Machine) *ReturnRequestsResponse {
	out := &ReturnRequestsResponse{
		Status:   f.Status(model.RequestComplete),
		Requests: make([]ReturnRequestEntry, 0, len(machines)),
	}
	for _, m := range machines {
		name := m.Name
		if name == "" {
			name = m.MachineId
		}
		out.Requests = append(out.Requests, ReturnRequestEntry{Machine: name, MachineId: m.MachineId})
	}
	if len(machines) == 0 {
		out.Message = "no machines reclaimed"
	}
	return out
}

// Document turns any record into a generic JSON object, extension
// properties included.
func Document(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
