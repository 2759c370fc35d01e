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
	"fmt"
	"strings"
	"time"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(NewRequestsCommand())
	RootCmd.AddCommand(NewCleanupCommand())
}

func NewRequestsCommand() *cobra.Command {
	c := &RequestsListCommand{}
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored requests without polling the cloud",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	list.Flags().StringVar(&c.Type, "type", "", "ACQUIRE or RETURN")
	list.Flags().StringVarP(&c.Output, "output", "o", outputAuto, "auto, json or table")

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Inspect stored requests",
	}
	cmd.AddCommand(list)
	return cmd
}

type RequestsListCommand struct {
	Type   string
	Output string
}

func (c *RequestsListCommand) run(cmd *cobra.Command, args []string) error {
	requestType := model.RequestType(strings.ToUpper(c.Type))
	if requestType != "" && requestType != model.RequestTypeAcquire && requestType != model.RequestTypeReturn {
		return model.NewValidationError("unknown request type [%s]", c.Type)
	}
	asTable, err := useTable(cmd, c.Output)
	if err != nil {
		return err
	}
	app, err := openApp(rootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	reqs, err := app.Service.Requests(cmd.Context(), requestType)
	if err != nil {
		return err
	}
	if !asTable {
		return writeJSON(cmd, map[string]interface{}{"requests": reqs})
	}
	var rows []table.Row
	for _, req := range reqs {
		rows = append(rows, table.Row{
			req.RequestId,
			req.RequestType,
			req.TemplateId,
			req.Status,
			fmt.Sprintf("%d/%d/%d of %d", req.NumRunning, req.NumFailed, req.NumReturned, req.NumRequested),
			req.RequestedTime.Format(time.RFC3339),
			req.Message,
		})
	}
	renderTable(cmd.OutOrStdout(), table.Row{"Request", "Type", "Template", "Status", "Run/Fail/Ret", "Requested", "Message"}, rows)
	return nil
}

func NewCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete terminal requests past their retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(rootOptions)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Service.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			logrus.Infof("cleanup removed %d requests and %d machines", report.Requests, report.Machines)
			return writeJSON(cmd, report)
		},
	}
}
