// Package service implements the HostFactory calls on top of the
// reconciler and the template catalog. Every surface (CLI, REST, MCP) goes
// through it so responses are shaped the same way everywhere.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chunga-ict/hfprovider/kernel/engine"
	"github.com/chunga-ict/hfprovider/kernel/hostfactory"
	"github.com/chunga-ict/hfprovider/kernel/loader"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/chunga-ict/hfprovider/kernel/store"
	"github.com/oliveagle/jsonpath"
	"github.com/sirupsen/logrus"
)

type Service struct {
	Reconciler *engine.Reconciler
	Catalog    *loader.Catalog
	Format     *hostfactory.Formatter

	log *logrus.Entry
}

func New(reconciler *engine.Reconciler, catalog *loader.Catalog, format *hostfactory.Formatter) *Service {
	if format == nil {
		format = hostfactory.NewFormatter("")
	}
	return &Service{
		Reconciler: reconciler,
		Catalog:    catalog,
		Format:     format,
		log:        logrus.WithField("component", "service"),
	}
}

func (s *Service) repo() *store.Repository {
	return s.Reconciler.Repo
}

// GetAvailableTemplates lists the templates matching every filter. A filter
// key is a template field name or a jsonpath expression ("$.vmType"); values
// match exactly against the field value, or any element of a list field.
func (s *Service) GetAvailableTemplates(filters map[string]string) (*hostfactory.TemplatesResponse, error) {
	var matched []*model.ProviderTemplate
	for _, tmpl := range s.Catalog.List() {
		ok, err := MatchTemplate(tmpl, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, tmpl)
		}
	}
	return s.Format.Templates(matched)
}

// MatchTemplate reports whether tmpl satisfies every filter.
func MatchTemplate(tmpl *model.ProviderTemplate, filters map[string]string) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	doc, err := hostfactory.Document(tmpl)
	if err != nil {
		return false, err
	}
	for key, want := range filters {
		path := key
		if !strings.HasPrefix(path, "$") {
			path = "$." + path
		}
		got, err := jsonpath.JsonPathLookup(doc, path)
		if err != nil || !matchesValue(got, want) {
			return false, nil
		}
	}
	return true, nil
}

func matchesValue(got interface{}, want string) bool {
	if list, ok := got.([]interface{}); ok {
		for _, v := range list {
			if matchesValue(v, want) {
				return true
			}
		}
		return false
	}
	return got != nil && fmt.Sprint(got) == want
}

// ParseFilters turns key=value arguments into a filter set.
func ParseFilters(args []string) (map[string]string, error) {
	filters := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, model.NewValidationError("invalid filter [%s], expected field=value", arg)
		}
		filters[k] = v
	}
	return filters, nil
}

func (s *Service) RequestMachines(ctx context.Context, in hostfactory.RequestMachinesInput) (*hostfactory.RequestCreated, error) {
	if in.Template.TemplateId == "" {
		return nil, model.NewValidationError("templateId is required")
	}
	req, err := s.Reconciler.RequestMachines(ctx, in.Template.TemplateId, in.Template.Count())
	if err != nil {
		return nil, err
	}
	return s.Format.RequestCreated(req), nil
}

// GetRequestStatus polls the requests named in the input, or every stored
// request when all is set. long includes every machine field.
func (s *Service) GetRequestStatus(ctx context.Context, in hostfactory.RequestStatusInput, all, long bool) (*hostfactory.RequestStatusResponse, error) {
	ids := in.RequestIds()
	if !all && len(ids) == 0 {
		return nil, model.NewValidationError("at least one requestId is required")
	}
	results, err := s.Reconciler.GetRequestStatus(ctx, ids, all)
	if err != nil {
		return nil, err
	}
	return s.statusResponse(results, long)
}

func (s *Service) statusResponse(results []engine.RequestResult, long bool) (*hostfactory.RequestStatusResponse, error) {
	out := &hostfactory.RequestStatusResponse{Requests: make([]hostfactory.RequestStatusEntry, 0, len(results))}
	for _, res := range results {
		if res.Request == nil {
			out.Requests = append(out.Requests, s.Format.ErrorEntry(res.RequestId, res.Err))
			continue
		}
		entry, err := s.Format.Entry(res.Request, res.Machines, long)
		if err != nil {
			return nil, err
		}
		if res.Err != nil && entry.Message == "" {
			entry.Message = res.Err.Error()
		}
		out.Requests = append(out.Requests, entry)
	}
	return out, nil
}

// RequestReturnMachines returns the machines named in the input, the
// machines of the named requests, or everything held when all is set.
// Machines given only by name are looked up by name.
func (s *Service) RequestReturnMachines(ctx context.Context, in hostfactory.ReturnMachinesInput, all bool) (*hostfactory.RequestCreated, error) {
	target := engine.ReturnTarget{RequestIds: in.RequestIds(), All: all}
	for _, ref := range in.Machines {
		id, err := s.machineId(ctx, ref)
		if err != nil {
			return nil, err
		}
		if id != "" {
			target.MachineIds = append(target.MachineIds, id)
		}
	}
	if !all && len(target.MachineIds) == 0 && len(target.RequestIds) == 0 && len(in.Machines) == 0 {
		return nil, model.NewValidationError("machines or requests are required")
	}
	ret, err := s.Reconciler.RequestReturnMachines(ctx, target)
	if err != nil {
		return nil, err
	}
	return s.Format.RequestCreated(ret), nil
}

func (s *Service) machineId(ctx context.Context, ref hostfactory.MachineRef) (string, error) {
	if ref.MachineId != "" || ref.Name == "" {
		return ref.MachineId, nil
	}
	found, err := s.repo().ListMachines(ctx, store.Conditions{"name": ref.Name})
	if err != nil {
		return "", err
	}
	for _, m := range found {
		if !m.IsReturned() {
			return m.MachineId, nil
		}
	}
	s.log.Warnf("no tracked machine named [%s]", ref.Name)
	return ref.Name, nil
}

// GetReturnRequests reports the machines the cloud reclaimed.
func (s *Service) GetReturnRequests(ctx context.Context, in hostfactory.ReturnRequestsInput) (*hostfactory.ReturnRequestsResponse, error) {
	reclaimed, err := s.Reconciler.GetReturnRequests(ctx, in.Names())
	if err != nil {
		return nil, err
	}
	return s.Format.ReturnRequests(reclaimed), nil
}

// ListReturnRequests reports every persisted return request, newest last.
func (s *Service) ListReturnRequests(ctx context.Context, long bool) (*hostfactory.RequestStatusResponse, error) {
	reqs, err := s.Reconciler.ListReturnRequests(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]engine.RequestResult, 0, len(reqs))
	for _, req := range reqs {
		machines, err := s.repo().MachinesForReturn(ctx, req.RequestId)
		if err != nil {
			return nil, err
		}
		results = append(results, engine.RequestResult{RequestId: req.RequestId, Request: req, Machines: machines})
	}
	return s.statusResponse(results, long)
}

// Cleanup sweeps aged terminal requests as of the reconciler clock.
func (s *Service) Cleanup(ctx context.Context) (engine.CleanupReport, error) {
	return s.Reconciler.Cleanup(ctx, s.Reconciler.Clock.Now())
}

// Requests lists stored requests without polling them.
func (s *Service) Requests(ctx context.Context, requestType model.RequestType) ([]*model.Request, error) {
	var conds store.Conditions
	if requestType != "" {
		conds = store.Conditions{"requestType": string(requestType)}
	}
	reqs, err := s.repo().ListRequests(ctx, conds)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		return reqs[i].RequestedTime.Before(reqs[j].RequestedTime)
	})
	return reqs, nil
}
