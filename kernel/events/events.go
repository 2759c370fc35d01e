// Package events publishes request status transitions to external sinks.
package events

import (
	"context"
	"time"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/sirupsen/logrus"
)

// Event is one request status transition.
type Event struct {
	RequestId   string              `json:"requestId"`
	RequestType model.RequestType   `json:"requestType"`
	TemplateId  string              `json:"templateId,omitempty"`
	AwsHandler  model.HandlerType   `json:"awsHandler,omitempty"`
	From        model.RequestStatus `json:"from"`
	To          model.RequestStatus `json:"to"`
	NumRunning  int                 `json:"numRunning"`
	NumFailed   int                 `json:"numFailed"`
	NumReturned int                 `json:"numReturned"`
	Message     string              `json:"message,omitempty"`
	Time        time.Time           `json:"time"`
}

// Transition builds the event for req moving out of status from.
func Transition(req *model.Request, from model.RequestStatus, at time.Time) Event {
	return Event{
		RequestId:   req.RequestId,
		RequestType: req.RequestType,
		TemplateId:  req.TemplateId,
		AwsHandler:  req.AwsHandler,
		From:        from,
		To:          req.Status,
		NumRunning:  req.NumRunning,
		NumFailed:   req.NumFailed,
		NumReturned: req.NumReturned,
		Message:     req.Message,
		Time:        at.UTC(),
	}
}

type Sink interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Multi fans an event out to every sink. Sink failures are logged and never
// returned; a request never fails because an observer did.
type Multi struct {
	sinks []Sink
	log   *logrus.Entry
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{
		sinks: sinks,
		log:   logrus.WithField("component", "events"),
	}
}

func (m *Multi) Add(s Sink) {
	m.sinks = append(m.sinks, s)
}

func (m *Multi) Len() int {
	return len(m.sinks)
}

func (m *Multi) Publish(ctx context.Context, e Event) error {
	for _, s := range m.sinks {
		if err := s.Publish(ctx, e); err != nil {
			m.log.WithError(err).WithField("requestId", e.RequestId).Warnf("unable to publish event to %T", s)
		}
	}
	return nil
}

func (m *Multi) Close() error {
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			m.log.WithError(err).Warnf("unable to close %T", s)
		}
	}
	return nil
}

// LogSink writes transitions to the process log.
type LogSink struct {
	log *logrus.Entry
}

func NewLogSink() *LogSink {
	return &LogSink{log: logrus.WithField("component", "events.log")}
}

func (s *LogSink) Publish(_ context.Context, e Event) error {
	s.log.WithFields(logrus.Fields{
		"requestId":   e.RequestId,
		"requestType": e.RequestType,
		"running":     e.NumRunning,
		"failed":      e.NumFailed,
		"returned":    e.NumReturned,
	}).Infof("request %s -> %s", e.From, e.To)
	return nil
}

func (s *LogSink) Close() error {
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

func (r *Recorder) Close() error {
	return nil
}
