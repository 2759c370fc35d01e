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
	"github.com/chunga-ict/hfprovider/kernel/mcp"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(NewMCPServerCommand())
}

func NewMCPServerCommand() *cobra.Command {
	mcpCmd := &MCPServerCommand{}

	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Start an MCP server exposing the HostFactory calls",
		Long: `Start an MCP (Model Context Protocol) server on stdio that exposes the
provider to assistants.

The server provides tools for:
  - getAvailableTemplates: List templates, optionally filtered
  - requestMachines: Request machines from a template
  - getRequestStatus: Poll requests and report their machines
  - requestReturnMachines: Return machines to the cloud
  - getReturnRequests: Report machines the cloud reclaimed

And resources:
  - hfprovider://templates: The template catalog
  - hfprovider://requests: Stored requests`,
		Args: cobra.NoArgs,
		RunE: mcpCmd.run,
	}

	cmd.Flags().BoolVar(&mcpCmd.UseMemoryStore, "memory", false, "use in-memory store (for testing)")

	return cmd
}

type MCPServerCommand struct {
	UseMemoryStore bool
}

func (m *MCPServerCommand) run(cmd *cobra.Command, args []string) error {
	var overrides []func(*model.ProviderConfig)
	if m.UseMemoryStore {
		overrides = append(overrides, func(cfg *model.ProviderConfig) {
			cfg.Database.Type = model.DatabaseMemory
		})
	}
	app, err := openApp(rootOptions, overrides...)
	if err != nil {
		return err
	}
	defer app.Close()

	if m.UseMemoryStore {
		logrus.Info("using in-memory store")
	}
	logrus.Info("starting MCP server on stdio...")
	server := mcp.NewProviderMCPServer(app.Service, Version)
	return server.ServeStdio()
}
