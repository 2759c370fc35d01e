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
	"io"

	"github.com/chunga-ict/hfprovider/kernel/cloud"
	"github.com/chunga-ict/hfprovider/kernel/engine"
	"github.com/chunga-ict/hfprovider/kernel/events"
	"github.com/chunga-ict/hfprovider/kernel/hostfactory"
	"github.com/chunga-ict/hfprovider/kernel/loader"
	"github.com/chunga-ict/hfprovider/kernel/logging"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/chunga-ict/hfprovider/kernel/provider"
	"github.com/chunga-ict/hfprovider/kernel/service"
	"github.com/chunga-ict/hfprovider/kernel/store"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// newClients opens the AWS clients; tests swap it for the fake cloud.
var newClients = cloud.NewClients

// App is the wired provider for one command invocation.
type App struct {
	Config   *model.ProviderConfig
	Catalog  *loader.Catalog
	Service  *service.Service
	Registry *prometheus.Registry

	repo   *store.Repository
	sinks  *events.Multi
	logOut io.Closer
}

func loadConfig(opts *RootOptions) (*model.ProviderConfig, error) {
	confDir := opts.ConfDir
	if confDir == "" {
		dir, err := model.ConfigDir()
		if err != nil {
			return nil, err
		}
		confDir = dir
	}
	return model.LoadConfig(confDir)
}

// openCatalog loads configuration, logging and the template catalog only.
// overrides adjust the loaded configuration before anything is opened.
func openCatalog(opts *RootOptions, overrides ...func(*model.ProviderConfig)) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	logOut, err := logging.Init(logging.Options{Level: cfg.LogLevel, LogDir: cfg.LogDir, Verbose: opts.Verbose})
	if err != nil {
		return nil, err
	}
	catalog, err := loader.LoadCatalog(cfg.TemplatesFile)
	if err != nil {
		_ = logOut.Close()
		return nil, err
	}
	return &App{Config: cfg, Catalog: catalog, logOut: logOut}, nil
}

// openApp wires every component from the resolved configuration.
func openApp(opts *RootOptions, overrides ...func(*model.ProviderConfig)) (*App, error) {
	app, err := openCatalog(opts, overrides...)
	if err != nil {
		return nil, err
	}
	cfg := app.Config
	clock := clockwork.NewRealClock()

	tables, err := store.New(cfg, clock)
	if err != nil {
		app.Close()
		return nil, errors.Wrapf(err, "unable to open [%s] store", cfg.Database.Type)
	}
	app.repo = store.NewRepository(tables)

	clients, err := newClients(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	dispatcher := provider.NewDispatcher(provider.Deps{Clients: clients, Config: cfg, Clock: clock})

	app.Registry = prometheus.NewRegistry()
	sinks, err := events.New(cfg, app.Registry)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.sinks = sinks

	r := engine.NewReconciler(app.repo, app.Catalog, dispatcher, cfg)
	r.Clock = clock
	r.Events = sinks
	app.Service = service.New(r, app.Catalog, hostfactory.NewFormatter(cfg.Scheduler))

	logrus.WithField("component", "app").Debugf("provider ready (store [%s], scheduler [%s], %d templates)",
		cfg.Database.Type, cfg.Scheduler, len(app.Catalog.List()))
	return app, nil
}

func (a *App) Close() {
	if a.sinks != nil {
		_ = a.sinks.Close()
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			logrus.WithError(err).Warn("unable to close store")
		}
	}
	if a.logOut != nil {
		_ = a.logOut.Close()
	}
}
