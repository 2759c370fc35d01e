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
	"os"

	"github.com/chunga-ict/hfprovider/kernel/hostfactory"
	"github.com/spf13/cobra"
)

var Version = "dev"

type RootOptions struct {
	ConfDir string
	Verbose bool
}

var rootOptions = &RootOptions{}

var RootCmd = &cobra.Command{
	Use:   "hfprovider",
	Short: "HostFactory provider plugin for AWS",
	Long: `hfprovider implements the HostFactory provider calls on top of AWS
EC2 Fleet, Spot Fleet, Auto Scaling groups and RunInstances.

Every HostFactory call reads its JSON input from --data or -f and writes its
JSON response to stdout. Logs go to <logDir>/hfprovider.log.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&rootOptions.ConfDir, "confdir", "", "provider configuration directory (default $HF_PROVIDER_CONFDIR or ./conf)")
	RootCmd.PersistentFlags().BoolVarP(&rootOptions.Verbose, "verbose", "v", false, "mirror logs to stderr")
}

// Execute runs the command line and returns the process exit code. Failures
// are written to stdout in the error shape HostFactory parses.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(hostfactory.NewErrorResponse(err))
		return 1
	}
	return 0
}
