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
	"context"
	"os/signal"
	"syscall"

	"github.com/chunga-ict/hfprovider/kernel/api"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(NewServeCommand())
}

func NewServeCommand() *cobra.Command {
	serveCmd := &ServeCommand{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HostFactory calls over REST",
		Long: `Serve the HostFactory calls over REST, with Prometheus metrics on a
separate listener.
Set lockRequests in the config to serialize polls of one request.`,
		Args: cobra.NoArgs,
		RunE: serveCmd.run,
	}
	cmd.Flags().StringVar(&serveCmd.Addr, "addr", "", "API listen address (default from config, :8080)")
	cmd.Flags().StringVar(&serveCmd.MetricsAddr, "metrics-addr", "", "metrics listen address (default from config, :9090)")
	return cmd
}

type ServeCommand struct {
	Addr        string
	MetricsAddr string
}

func (s *ServeCommand) run(cmd *cobra.Command, args []string) error {
	app, err := openApp(rootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}
	if s.MetricsAddr != "" {
		cfg.Server.MetricsAddr = s.MetricsAddr
	}

	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler, err := api.NewHandler(app.Service, app.Registry)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logrus.Infof("serving HostFactory api on [%s], metrics on [%s]", cfg.Server.Addr, cfg.Server.MetricsAddr)
	return api.Serve(ctx, cfg.Server, handler, app.Registry)
}
