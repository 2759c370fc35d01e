package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultSubject = "hfprovider.requests"

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NatsSink struct {
	conn    Publisher
	subject string
}

// DialNats connects to url and returns a sink publishing on subject.
func DialNats(url, subject string) (*NatsSink, error) {
	log := logrus.WithField("component", "events.nats")
	opts := []nats.Option{
		nats.Name("hfprovider"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to connect to nats at [%s]", url)
	}
	return NewNatsSink(nc, subject), nil
}

func NewNatsSink(conn Publisher, subject string) *NatsSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NatsSink{conn: conn, subject: subject}
}

// Publish sends the event as JSON on <subject>.<requestType>.
func (s *NatsSink) Publish(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "unable to encode event")
	}
	return s.conn.Publish(s.subject+"."+string(e.RequestType), payload)
}

func (s *NatsSink) Close() error {
	return s.conn.Drain()
}
