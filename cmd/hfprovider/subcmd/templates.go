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
	"sort"
	"strings"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(NewTemplatesCommand())
}

func NewTemplatesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Maintain the provider templates file",
	}
	cmd.AddCommand(newTemplateWriteCommand("add", "Add a template", false))
	cmd.AddCommand(newTemplateWriteCommand("update", "Replace an existing template", true))
	cmd.AddCommand(newTemplateDeleteCommand())
	cmd.AddCommand(newTemplateListCommand())
	cmd.AddCommand(newTemplateShowCommand())
	return cmd
}

type TemplateWriteCommand struct {
	Input  InputFlags
	Update bool
}

func newTemplateWriteCommand(use, short string, update bool) *cobra.Command {
	c := &TemplateWriteCommand{Update: update}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  `Input: one template document, as found in the "templates" list of the templates file.`,
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	c.Input.register(cmd)
	return cmd
}

func (c *TemplateWriteCommand) run(cmd *cobra.Command, args []string) error {
	tmpl := &model.ProviderTemplate{}
	if err := c.Input.decode(tmpl, true); err != nil {
		return err
	}
	app, err := openCatalog(rootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	if c.Update {
		err = app.Catalog.Update(tmpl)
	} else {
		err = app.Catalog.Add(tmpl)
	}
	if err != nil {
		return err
	}
	return writeJSON(cmd, tmpl)
}

func newTemplateDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <templateId>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openCatalog(rootOptions)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.Catalog.Delete(args[0]); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"message": "template deleted", "templateId": args[0]})
		},
	}
}

func newTemplateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <templateId>",
		Short: "Print one template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openCatalog(rootOptions)
			if err != nil {
				return err
			}
			defer app.Close()
			tmpl, err := app.Catalog.Get(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, tmpl)
		},
	}
}

type TemplateListCommand struct {
	Output string
}

func newTemplateListCommand() *cobra.Command {
	c := &TemplateListCommand{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	cmd.Flags().StringVarP(&c.Output, "output", "o", outputAuto, "auto, json or table")
	return cmd
}

func (c *TemplateListCommand) run(cmd *cobra.Command, args []string) error {
	asTable, err := useTable(cmd, c.Output)
	if err != nil {
		return err
	}
	app, err := openCatalog(rootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	tmpls := app.Catalog.List()
	if !asTable {
		return writeJSON(cmd, map[string]interface{}{"templates": tmpls})
	}
	var rows []table.Row
	for _, tmpl := range tmpls {
		rows = append(rows, table.Row{
			tmpl.TemplateId,
			tmpl.AwsHandler,
			tmpl.MaxNumber,
			tmpl.EffectivePriceType(),
			instanceTypes(tmpl),
			strings.Join(tmpl.Subnets(), ","),
		})
	}
	renderTable(cmd.OutOrStdout(), table.Row{"Template", "Handler", "Max", "Price", "Instance Types", "Subnets"}, rows)
	return nil
}

func instanceTypes(tmpl *model.ProviderTemplate) string {
	if len(tmpl.InstanceTypes) == 0 {
		return tmpl.InstanceType
	}
	var types []string
	for t := range tmpl.InstanceTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return strings.Join(types, ",")
}
