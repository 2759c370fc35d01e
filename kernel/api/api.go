// Package api serves the HostFactory calls over REST.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/chunga-ict/hfprovider/kernel/hostfactory"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/chunga-ict/hfprovider/kernel/service"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	svc    *service.Service
	router *httprouter.Router

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	log      *logrus.Entry
}

// NewHandler routes the REST surface to svc. Request metrics are registered
// on reg when it is set.
func NewHandler(svc *service.Service, reg prometheus.Registerer) (*Handler, error) {
	h := &Handler{
		svc:    svc,
		router: httprouter.New(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hfprovider_http_requests_total",
			Help: "REST calls by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hfprovider_http_request_duration_seconds",
			Help:    "REST call latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		log: logrus.WithField("component", "api"),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{h.requests, h.latency} {
			if err := reg.Register(c); err != nil {
				return nil, errors.Wrap(err, "failed to register api metrics")
			}
		}
	}

	h.handle(http.MethodGet, "/healthz", h.healthz)

	h.handle(http.MethodGet, "/v1/templates", h.getAvailableTemplates)
	h.handle(http.MethodPost, "/v1/templates", h.addTemplate)
	h.handle(http.MethodGet, "/v1/templates/:id", h.getTemplate)
	h.handle(http.MethodPut, "/v1/templates/:id", h.updateTemplate)
	h.handle(http.MethodDelete, "/v1/templates/:id", h.deleteTemplate)

	h.handle(http.MethodPost, "/v1/requests", h.requestMachines)
	h.handle(http.MethodPost, "/v1/requests/status", h.getRequestStatus)
	h.handle(http.MethodGet, "/v1/requests/:id", h.getOneRequestStatus)

	h.handle(http.MethodPost, "/v1/returns", h.requestReturnMachines)
	h.handle(http.MethodGet, "/v1/returns", h.listReturnRequests)
	h.handle(http.MethodPost, "/v1/returns/reclaimed", h.getReturnRequests)

	h.handle(http.MethodPost, "/v1/cleanup", h.cleanup)

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) handle(method, route string, fn httprouter.Handle) {
	h.router.Handle(method, route, func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		fn(rec, r, p)
		h.requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		h.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getAvailableTemplates(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	filters, err := service.ParseFilters(r.URL.Query()["filter"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, err := h.svc.GetAvailableTemplates(filters)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getTemplate(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	tmpl, err := h.svc.Catalog.Get(p.ByName("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (h *Handler) addTemplate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tmpl := &model.ProviderTemplate{}
	if err := decode(r, tmpl); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.svc.Catalog.Add(tmpl); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

func (h *Handler) updateTemplate(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	tmpl := &model.ProviderTemplate{}
	if err := decode(r, tmpl); err != nil {
		h.writeError(w, err)
		return
	}
	if tmpl.TemplateId == "" {
		tmpl.TemplateId = p.ByName("id")
	}
	if tmpl.TemplateId != p.ByName("id") {
		h.writeError(w, model.NewValidationError("templateId [%s] does not match path [%s]", tmpl.TemplateId, p.ByName("id")))
		return
	}
	if err := h.svc.Catalog.Update(tmpl); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (h *Handler) deleteTemplate(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	if err := h.svc.Catalog.Delete(p.ByName("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "template deleted", "templateId": p.ByName("id")})
}

func (h *Handler) requestMachines(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in hostfactory.RequestMachinesInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	out, err := h.svc.RequestMachines(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getRequestStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	all, long := flag(r, "all"), flag(r, "long")
	var in hostfactory.RequestStatusInput
	if !all {
		if err := decode(r, &in); err != nil {
			h.writeError(w, err)
			return
		}
	}
	out, err := h.svc.GetRequestStatus(r.Context(), in, all, long)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOneRequestStatus(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	in := hostfactory.RequestStatusInput{Requests: []hostfactory.RequestRef{{RequestId: p.ByName("id")}}}
	out, err := h.svc.GetRequestStatus(r.Context(), in, false, flag(r, "long"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) requestReturnMachines(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	all := flag(r, "all")
	var in hostfactory.ReturnMachinesInput
	if !all {
		if err := decode(r, &in); err != nil {
			h.writeError(w, err)
			return
		}
	}
	out, err := h.svc.RequestReturnMachines(r.Context(), in, all)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listReturnRequests(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	out, err := h.svc.ListReturnRequests(r.Context(), flag(r, "long"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getReturnRequests(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in hostfactory.ReturnRequestsInput
	if r.ContentLength != 0 {
		if err := decode(r, &in); err != nil {
			h.writeError(w, err)
			return
		}
	}
	out, err := h.svc.GetReturnRequests(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	report, err := h.svc.Cleanup(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func flag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func decode(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return model.NewValidationError("unable to read request body: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return model.NewValidationError("invalid JSON payload: %v", err)
	}
	return nil
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case model.IsValidation(err), model.IsUnsupportedHandler(err):
		return http.StatusBadRequest
	case model.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	} else {
		h.log.WithError(err).Debugf("rejected with %d", status)
	}
	writeJSON(w, status, hostfactory.NewErrorResponse(err))
}
