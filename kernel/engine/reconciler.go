package engine

import (
	"context"
	"sync"

	"github.com/chunga-ict/hfprovider/kernel/events"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/chunga-ict/hfprovider/kernel/provider"
	"github.com/chunga-ict/hfprovider/kernel/store"
	"github.com/jonboulle/clockwork"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/sirupsen/logrus"
)

// Templates is the read side of the template catalog.
type Templates interface {
	Get(templateId string) (*model.ProviderTemplate, error)
}

// Dispatcher resolves backends and runs the shared acquire and release steps.
type Dispatcher interface {
	Resolve(handler model.HandlerType) (provider.Backend, error)
	Prepare(ctx context.Context, req *model.Request, tmpl *model.ProviderTemplate) error
	Release(ctx context.Context, backend provider.Backend, ret *model.Request, set provider.ReleaseSet) *model.Request
	Observe(ctx context.Context, machines []*model.Machine) ([]*model.Machine, error)
	Discard(ctx context.Context, req *model.Request)
}

// Reconciler drives requests from creation to a terminal status. It holds no
// state between calls; everything lives in the repository.
type Reconciler struct {
	Repo       *store.Repository
	Templates  Templates
	Dispatcher Dispatcher
	Events     events.Sink
	Clock      clockwork.Clock
	Config     *model.ProviderConfig

	locks cmap.ConcurrentMap[string, *sync.Mutex]
	log   *logrus.Entry
}

func NewReconciler(repo *store.Repository, templates Templates, dispatcher Dispatcher, cfg *model.ProviderConfig) *Reconciler {
	return &Reconciler{
		Repo:       repo,
		Templates:  templates,
		Dispatcher: dispatcher,
		Events:     events.NewMulti(),
		Clock:      clockwork.NewRealClock(),
		Config:     cfg,
		locks:      cmap.New[*sync.Mutex](),
		log:        logrus.WithField("component", "reconciler"),
	}
}

func (r *Reconciler) now() clockwork.Clock {
	if r.Clock == nil {
		return clockwork.NewRealClock()
	}
	return r.Clock
}

// lock serializes work on one request id when lockRequests is enabled.
// Without it concurrent polls of one request are last-writer-wins.
func (r *Reconciler) lock(requestId string) func() {
	if r.Config == nil || !r.Config.LockRequests {
		return func() {}
	}
	mu := r.locks.Upsert(requestId, nil, func(exists bool, current, _ *sync.Mutex) *sync.Mutex {
		if exists {
			return current
		}
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock
}

// forget drops the lock of a request that no longer exists.
func (r *Reconciler) forget(requestId string) {
	r.locks.Remove(requestId)
}

// persist writes req and emits a transition event when its status moved.
func (r *Reconciler) persist(ctx context.Context, req *model.Request, from model.RequestStatus) error {
	if err := r.Repo.UpdateRequest(ctx, req); err != nil {
		return err
	}
	r.emit(ctx, req, from)
	return nil
}

func (r *Reconciler) emit(ctx context.Context, req *model.Request, from model.RequestStatus) {
	if from == req.Status || r.Events == nil {
		return
	}
	if err := r.Events.Publish(ctx, events.Transition(req, from, r.now().Now())); err != nil {
		r.log.WithError(err).WithField("requestId", req.RequestId).Warn("unable to publish transition")
	}
}
