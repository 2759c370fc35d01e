package api

import (
	"context"
	"net/http"
	"time"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// MetricsHandler exposes gatherer in the Prometheus text format.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Serve runs the API listener and the metrics listener until ctx is done or
// either of them fails. An empty metrics address disables metrics.
func Serve(ctx context.Context, cfg model.ServerConfig, handler http.Handler, gatherer prometheus.Gatherer) error {
	log := logrus.WithField("component", "api")
	servers := []*http.Server{{Addr: cfg.Addr, Handler: handler}}
	if cfg.MetricsAddr != "" && gatherer != nil {
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: MetricsHandler(gatherer)})
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.Infof("listening on [%s]", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrapf(err, "listener [%s] failed", srv.Addr)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdown); err != nil {
				log.WithError(err).Warnf("shutdown of [%s] failed", srv.Addr)
			}
		}
		return nil
	})
	return g.Wait()
}
