// Package hostfactory defines the request and response documents exchanged
// with the scheduler, and renders them in the scheduler's field vocabulary.
package hostfactory

type TemplateRef struct {
	TemplateId   string `json:"templateId"`
	NumMachines  int    `json:"numMachines,omitempty"`
	MachineCount int    `json:"machineCount,omitempty"`
}

// Count returns the requested machine count; machineCount is the name older
// HostFactory versions send.
func (t TemplateRef) Count() int {
	if t.NumMachines != 0 {
		return t.NumMachines
	}
	return t.MachineCount
}

type RequestMachinesInput struct {
	Template TemplateRef `json:"template"`
}

type RequestRef struct {
	RequestId string `json:"requestId"`
}

type MachineRef struct {
	MachineId string `json:"machineId,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Id returns the machine id, falling back to the name.
func (m MachineRef) Id() string {
	if m.MachineId != "" {
		return m.MachineId
	}
	return m.Name
}

type RequestStatusInput struct {
	Requests []RequestRef `json:"requests"`
}

func (in RequestStatusInput) RequestIds() []string {
	ids := make([]string, 0, len(in.Requests))
	for _, r := range in.Requests {
		if r.RequestId != "" {
			ids = append(ids, r.RequestId)
		}
	}
	return ids
}

type ReturnMachinesInput struct {
	Machines []MachineRef `json:"machines,omitempty"`
	Requests []RequestRef `json:"requests,omitempty"`
}

func (in ReturnMachinesInput) MachineIds() []string {
	ids := make([]string, 0, len(in.Machines))
	for _, m := range in.Machines {
		if id := m.Id(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (in ReturnMachinesInput) RequestIds() []string {
	return RequestStatusInput{Requests: in.Requests}.RequestIds()
}

type ReturnRequestsInput struct {
	Machines []MachineRef `json:"machines,omitempty"`
}

func (in ReturnRequestsInput) Names() []string {
	var names []string
	for _, m := range in.Machines {
		if m.Name != "" {
			names = append(names, m.Name)
		} else if m.MachineId != "" {
			names = append(names, m.MachineId)
		}
	}
	return names
}

// ErrorResponse is the shape every failure takes on the wire.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: err.Error(), Message: err.Error()}
}

type RequestCreated struct {
	RequestId string `json:"requestId"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message"`
}

type TemplatesResponse struct {
	Templates []map[string]interface{} `json:"templates"`
	Message   string                   `json:"message,omitempty"`
}

type RequestStatusResponse struct {
	Requests []RequestStatusEntry `json:"requests"`
}

type RequestStatusEntry struct {
	RequestId string        `json:"requestId"`
	Status    string        `json:"status"`
	Message   string        `json:"message"`
	Machines  []interface{} `json:"machines"`
}

type ReturnRequestEntry struct {
	Machine     string `json:"machine"`
	MachineId   string `json:"machineId,omitempty"`
	GracePeriod int    `json:"gracePeriod"`
}

type ReturnRequestsResponse struct {
	Status   string               `json:"status"`
	Message  string               `json:"message"`
	Requests []ReturnRequestEntry `json:"requests"`
}
