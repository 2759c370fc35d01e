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
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	outputAuto  = "auto"
	outputJSON  = "json"
	outputTable = "table"
)

// InputFlags reads a JSON document from --data or from the file named by -f.
type InputFlags struct {
	Data string
	File string
}

func (f *InputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Data, "data", "", "JSON input")
	cmd.Flags().StringVarP(&f.File, "file", "f", "", "file holding the JSON input")
}

func (f *InputFlags) present() bool {
	return f.Data != "" || f.File != ""
}

// decode unmarshals the input into v. A missing input is an error only when
// required is set.
func (f *InputFlags) decode(v interface{}, required bool) error {
	var data []byte
	switch {
	case f.Data != "":
		data = []byte(f.Data)
	case f.File != "":
		content, err := os.ReadFile(f.File)
		if err != nil {
			return model.NewValidationError("unable to read input file [%s]: %v", f.File, err)
		}
		data = content
	default:
		if required {
			return model.NewValidationError("input is required, use --data or -f")
		}
		return nil
	}
	if strings.TrimSpace(string(data)) == "" {
		if required {
			return model.NewValidationError("input is empty")
		}
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return model.NewValidationError("invalid JSON input: %v", err)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// useTable resolves the output mode; auto renders tables on terminals only.
func useTable(cmd *cobra.Command, mode string) (bool, error) {
	switch mode {
	case outputTable:
		return true, nil
	case outputJSON:
		return false, nil
	case outputAuto, "":
		return isTerminal(cmd.OutOrStdout()), nil
	default:
		return false, model.NewValidationError("unknown output [%s], expected auto, json or table", mode)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func renderTable(w io.Writer, header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}
