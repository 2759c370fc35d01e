package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chunga-ict/hfprovider/kernel/hostfactory"
	"github.com/chunga-ict/hfprovider/kernel/service"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	TemplatesURI = "hfprovider://templates"
	RequestsURI  = "hfprovider://requests"
)

type ProviderMCPServer struct {
	server *server.MCPServer
	svc    *service.Service
	log    *logrus.Entry
}

func NewProviderMCPServer(svc *service.Service, version string) *ProviderMCPServer {
	srv := server.NewMCPServer(
		"HostFactory AWS Provider",
		version,
		server.WithResourceCapabilities(true, true),
		server.WithToolCapabilities(true),
	)

	ps := &ProviderMCPServer{
		server: srv,
		svc:    svc,
		log:    logrus.WithField("component", "mcp"),
	}

	ps.registerTools()
	ps.registerResources()

	return ps
}

func (ps *ProviderMCPServer) ServeStdio() error {
	return server.ServeStdio(ps.server)
}

func (ps *ProviderMCPServer) registerTools() {
	ps.server.AddTool(mcp.NewTool("getAvailableTemplates",
		mcp.WithDescription("List provider templates, optionally filtered by exact field values"),
		mcp.WithArray("filters",
			mcp.Description("field=value filters; a field may be a jsonpath such as $.vmType"),
			mcp.WithStringItems(),
		),
	), ps.getAvailableTemplatesHandler)

	ps.server.AddTool(mcp.NewTool("requestMachines",
		mcp.WithDescription("Request machines from a template"),
		mcp.WithString("templateId",
			mcp.Description("Template to provision from"),
			mcp.Required(),
		),
		mcp.WithNumber("numMachines",
			mcp.Description("Number of machines, at most the template maxNumber"),
			mcp.Required(),
		),
	), ps.requestMachinesHandler)

	ps.server.AddTool(mcp.NewTool("getRequestStatus",
		mcp.WithDescription("Poll acquire or return requests and report their machines"),
		mcp.WithArray("requestIds",
			mcp.Description("Request ids to poll"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("all", mcp.Description("Poll every stored request")),
		mcp.WithBoolean("long", mcp.Description("Report every machine field")),
	), ps.getRequestStatusHandler)

	ps.server.AddTool(mcp.NewTool("requestReturnMachines",
		mcp.WithDescription("Return machines to the cloud"),
		mcp.WithArray("machineIds",
			mcp.Description("Machine ids or names to return"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("requestIds",
			mcp.Description("Return every machine of these acquire requests"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("all", mcp.Description("Return every machine still held")),
	), ps.requestReturnMachinesHandler)

	ps.server.AddTool(mcp.NewTool("getReturnRequests",
		mcp.WithDescription("Report machines the cloud reclaimed on its own"),
		mcp.WithArray("machines",
			mcp.Description("Machine names or ids to check; every running machine when empty"),
			mcp.WithStringItems(),
		),
	), ps.getReturnRequestsHandler)
}

func (ps *ProviderMCPServer) registerResources() {
	ps.server.AddResource(mcp.NewResource(TemplatesURI, "Provider templates",
		mcp.WithResourceDescription("Every template in the catalog"),
		mcp.WithMIMEType("application/json"),
	), ps.templatesResourceHandler)

	ps.server.AddResource(mcp.NewResource(RequestsURI, "Provider requests",
		mcp.WithResourceDescription("Stored acquire and return requests, not polled"),
		mcp.WithMIMEType("application/json"),
	), ps.requestsResourceHandler)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (ps *ProviderMCPServer) errorResult(tool string, err error) (*mcp.CallToolResult, error) {
	ps.log.WithError(err).Warnf("%s failed", tool)
	data, _ := json.Marshal(hostfactory.NewErrorResponse(err))
	return mcp.NewToolResultError(string(data)), nil
}

func (ps *ProviderMCPServer) getAvailableTemplatesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filters, err := service.ParseFilters(request.GetStringSlice("filters", nil))
	if err != nil {
		return ps.errorResult("getAvailableTemplates", err)
	}
	out, err := ps.svc.GetAvailableTemplates(filters)
	if err != nil {
		return ps.errorResult("getAvailableTemplates", err)
	}
	return jsonResult(out)
}

func (ps *ProviderMCPServer) requestMachinesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateId, err := request.RequireString("templateId")
	if err != nil {
		return mcp.NewToolResultError("templateId argument is required"), nil
	}
	count, err := request.RequireInt("numMachines")
	if err != nil {
		return mcp.NewToolResultError("numMachines argument is required"), nil
	}
	out, err := ps.svc.RequestMachines(ctx, hostfactory.RequestMachinesInput{
		Template: hostfactory.TemplateRef{TemplateId: templateId, NumMachines: count},
	})
	if err != nil {
		return ps.errorResult("requestMachines", err)
	}
	return jsonResult(out)
}

func (ps *ProviderMCPServer) getRequestStatusHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in hostfactory.RequestStatusInput
	for _, id := range request.GetStringSlice("requestIds", nil) {
		in.Requests = append(in.Requests, hostfactory.RequestRef{RequestId: id})
	}
	out, err := ps.svc.GetRequestStatus(ctx, in, request.GetBool("all", false), request.GetBool("long", false))
	if err != nil {
		return ps.errorResult("getRequestStatus", err)
	}
	return jsonResult(out)
}

func (ps *ProviderMCPServer) requestReturnMachinesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in hostfactory.ReturnMachinesInput
	for _, id := range request.GetStringSlice("machineIds", nil) {
		in.Machines = append(in.Machines, hostfactory.MachineRef{MachineId: id})
	}
	for _, id := range request.GetStringSlice("requestIds", nil) {
		in.Requests = append(in.Requests, hostfactory.RequestRef{RequestId: id})
	}
	out, err := ps.svc.RequestReturnMachines(ctx, in, request.GetBool("all", false))
	if err != nil {
		return ps.errorResult("requestReturnMachines", err)
	}
	return jsonResult(out)
}

func (ps *ProviderMCPServer) getReturnRequestsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in hostfactory.ReturnRequestsInput
	for _, name := range request.GetStringSlice("machines", nil) {
		in.Machines = append(in.Machines, hostfactory.MachineRef{Name: name})
	}
	out, err := ps.svc.GetReturnRequests(ctx, in)
	if err != nil {
		return ps.errorResult("getReturnRequests", err)
	}
	return jsonResult(out)
}

func (ps *ProviderMCPServer) templatesResourceHandler(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	tmpls := ps.svc.Catalog.List()
	data, err := json.Marshal(map[string]interface{}{"count": len(tmpls), "templates": tmpls})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode templates")
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      TemplatesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (ps *ProviderMCPServer) requestsResourceHandler(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	reqs, err := ps.svc.Requests(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list requests")
	}
	data, err := json.Marshal(map[string]interface{}{"count": len(reqs), "requests": reqs})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode requests")
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      RequestsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
