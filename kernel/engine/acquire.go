package engine

import (
	"context"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/pkg/errors"
)

// RequestMachines creates an acquire request for count machines of a
// template and starts provisioning. Validation failures are returned before
// anything is persisted. Once the request exists, failures are recorded on it
// as COMPLETE_WITH_ERRORS and the request is returned without an error.
func (r *Reconciler) RequestMachines(ctx context.Context, templateId string, count int) (*model.Request, error) {
	tmpl, err := r.Templates.Get(templateId)
	if err != nil {
		if model.IsNotFound(err) {
			return nil, model.NewValidationError("template [%s] not found", templateId)
		}
		return nil, err
	}
	if err := tmpl.ValidateCount(count); err != nil {
		return nil, err
	}
	backend, err := r.Dispatcher.Resolve(tmpl.AwsHandler)
	if err != nil {
		return nil, err
	}
	if err := backend.CheckTemplate(tmpl); err != nil {
		return nil, err
	}

	req := model.NewAcquireRequest(tmpl, count, r.now().Now())
	log := r.log.WithField("requestId", req.RequestId)
	if err := r.Repo.InsertRequest(ctx, req); err != nil {
		return nil, errors.Wrapf(err, "unable to persist request [%s]", req.RequestId)
	}
	log.Infof("requesting [%d] machines from template [%s] via [%s]", count, templateId, tmpl.AwsHandler)

	if err := r.Dispatcher.Prepare(ctx, req, tmpl); err != nil {
		return r.abandon(ctx, req, err)
	}
	if err := backend.Validate(req); err != nil {
		r.Dispatcher.Discard(ctx, req)
		return r.abandon(ctx, req, err)
	}

	req = backend.AcquireHosts(ctx, req, tmpl)
	if req.Status == model.RequestFailed {
		req.Status = model.RequestCompleteWithErrors
		log.Warnf("acquire failed: %s", req.Message)
		if req.ResourceId == "" && len(req.InstanceIds) == 0 {
			r.Dispatcher.Discard(ctx, req)
		}
	}
	if err := r.persist(ctx, req, model.RequestRunning); err != nil {
		return nil, errors.Wrapf(err, "unable to persist request [%s]", req.RequestId)
	}
	return req, nil
}

// abandon ends a persisted request with errors.
func (r *Reconciler) abandon(ctx context.Context, req *model.Request, cause error) (*model.Request, error) {
	req.Fail(cause)
	req.Status = model.RequestCompleteWithErrors
	r.log.WithField("requestId", req.RequestId).WithError(cause).Warn("request abandoned")
	if err := r.persist(ctx, req, model.RequestRunning); err != nil {
		return nil, errors.Wrapf(err, "unable to persist request [%s]", req.RequestId)
	}
	return req, nil
}
