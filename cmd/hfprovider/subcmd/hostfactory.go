/*
	(c) Copyright NetFoundry Inc. Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package subcmd

import (
	"github.com/chunga-ict/hfprovider/kernel/hostfactory"
	"github.com/chunga-ict/hfprovider/kernel/service"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(NewGetAvailableTemplatesCommand())
	RootCmd.AddCommand(NewRequestMachinesCommand())
	RootCmd.AddCommand(NewGetRequestStatusCommand())
	RootCmd.AddCommand(NewRequestReturnMachinesCommand())
	RootCmd.AddCommand(NewGetReturnRequestsCommand())
	RootCmd.AddCommand(NewListReturnRequestsCommand())
}

func NewGetAvailableTemplatesCommand() *cobra.Command {
	c := &GetAvailableTemplatesCommand{}
	cmd := &cobra.Command{
		Use:   "getAvailableTemplates [field=value...]",
		Short: "List the templates HostFactory can request from",
		Long: `List provider templates. Each field=value argument keeps only the
templates whose field equals value; a field may be a jsonpath such as
$.attributes.ncpus.`,
		RunE: c.run,
	}
	c.Input.register(cmd)
	return cmd
}

type GetAvailableTemplatesCommand struct {
	Input InputFlags
}

func (c *GetAvailableTemplatesCommand) run(cmd *cobra.Command, args []string) error {
	// HostFactory passes an input file here; nothing in it selects templates.
	var ignored map[string]interface{}
	if err := c.Input.decode(&ignored, false); err != nil {
		return err
	}
	filters, err := service.ParseFilters(args)
	if err != nil {
		return err
	}
	app, err := openApp(rootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	out, err := app.Service.GetAvailableTemplates(filters)
	if err != nil {
		return err
	}
	return writeJSON(cmd, out)
}

func NewRequestMachinesCommand() *cobra.Command {
	c := &RequestMachinesCommand{}
	cmd := &cobra.Command{
		Use:   "requestMachines",
		Short: "Request machines from a template",
		Long:  `Input: {"template":{"templateId":"...","numMachines":N}}`,
		RunE:  c.run,
	}
	c.Input.register(cmd)
	return cmd
}

type RequestMachinesCommand struct {
	Input InputFlags
}

func (c *RequestMachinesCommand) run(cmd *cobra.Command, args []string) error {
	var in hostfactory.RequestMachinesInput
	if err := c.Input.decode(&in, true); err != nil {
		return err
	}
	app, err := openApp(rootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	out, err := app.Service.RequestMachines(cmd.Context(), in)
	if err != nil {
		return err
	}
	return writeJSON(cmd, out)
}

func NewGetRequestStatusCommand() *cobra.Command {
	c := &GetRequestStatusCommand{}
	cmd := &cobra.Command{
		Use:   "getRequestStatus",
		Short: "Poll requests and report their machines",
		Long:  `Input: {"requests":[{"requestId":"..."}]}, or --all for every stored request.`,
		RunE:  c.run,
	}
	c.Input.register(cmd)
	cmd.Flags().BoolVar(&c.All, "all", false, "poll every stored request")
	cmd.Flags().BoolVar(&c.Long, "long", false, "report every machine field")
	return cmd
}

type GetRequestStatusCommand struct {
	Input InputFlags
	All   bool
	Long  bool
}

func (c *GetRequestStatusCommand) run(cmd *cobra.Command, args []string) error {
	var in hostfactory.RequestStatusInput
	if err := c.Input.decode(&in, !c.All); err != nil {
		return err
	}
	app, err := openApp(rootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	out, err := app.Service.GetRequestStatus(cmd.Context(), in, c.All, c.Long)
	if err != nil {
		return err
	}
	return writeJSON(cmd, out)
}

func NewRequestReturnMachinesCommand() *cobra.Command {
	c := &RequestReturnMachinesCommand{}
	cmd := &cobra.Command{
		Use:   "requestReturnMachines",
		Short: "Return machines to the cloud",
		Long: `Input: {"machines":[{"machineId":"...","name":"..."}]} or
{"requests":[{"requestId":"..."}]}, or --all for every machine still held.`,
		RunE: c.run,
	}
	c.Input.register(cmd)
	cmd.Flags().BoolVar(&c.All, "all", false, "return every machine still held")
	return cmd
}

type RequestReturnMachinesCommand struct {
	Input InputFlags
	All   bool
}

func (c *RequestReturnMachinesCommand) run(cmd *cobra.Command, args []string) error {
	var in hostfactory.ReturnMachinesInput
	if err := c.Input.decode(&in, !c.All); err != nil {
		return err
	}
	app, err := openApp(rootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	out, err := app.Service.RequestReturnMachines(cmd.Context(), in, c.All)
	if err != nil {
		return err
	}
	return writeJSON(cmd, out)
}

func NewGetReturnRequestsCommand() *cobra.Command {
	c := &GetReturnRequestsCommand{}
	cmd := &cobra.Command{
		Use:   "getReturnRequests",
		Short: "Report machines the cloud reclaimed on its own",
		Long:  `Input (optional): {"machines":[{"name":"..."}]}. Without input every running machine is checked.`,
		RunE:  c.run,
	}
	c.Input.register(cmd)
	return cmd
}

type GetReturnRequestsCommand struct {
	Input InputFlags
}

func (c *GetReturnRequestsCommand) run(cmd *cobra.Command, args []string) error {
	var in hostfactory.ReturnRequestsInput
	if err := c.Input.decode(&in, false); err != nil {
		return err
	}
	app, err := openApp(rootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	out, err := app.Service.GetReturnRequests(cmd.Context(), in)
	if err != nil {
		return err
	}
	return writeJSON(cmd, out)
}

func NewListReturnRequestsCommand() *cobra.Command {
	c := &ListReturnRequestsCommand{}
	cmd := &cobra.Command{
		Use:   "listReturnRequests",
		Short: "List the stored return requests",
		RunE:  c.run,
	}
	cmd.Flags().BoolVar(&c.Long, "long", false, "report every machine field")
	return cmd
}

type ListReturnRequestsCommand struct {
	Long bool
}

func (c *ListReturnRequestsCommand) run(cmd *cobra.Command, args []string) error {
	app, err := openApp(rootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	out, err := app.Service.ListReturnRequests(cmd.Context(), c.Long)
	if err != nil {
		return err
	}
	return writeJSON(cmd, out)
}
