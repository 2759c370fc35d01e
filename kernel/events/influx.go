package events

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
)

const Measurement = "hf_request"

// PointWriter is the blocking write API of the influx client.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type InfluxSink struct {
	writer PointWriter
	client influxdb2.Client
}

// NewInfluxClientSink opens a client against url and writes to org/bucket.
func NewInfluxClientSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{writer: client.WriteAPIBlocking(org, bucket), client: client}
}

func NewInfluxSink(writer PointWriter) *InfluxSink {
	return &InfluxSink{writer: writer}
}

// Point renders an event as an hf_request point.
func Point(e Event) *write.Point {
	tags := map[string]string{
		"requestType": string(e.RequestType),
		"status":      string(e.To),
	}
	if e.AwsHandler != "" {
		tags["awsHandler"] = e.AwsHandler.String()
	}
	if e.TemplateId != "" {
		tags["templateId"] = e.TemplateId
	}
	return influxdb2.NewPoint(Measurement, tags, map[string]interface{}{
		"requestId":   e.RequestId,
		"from":        string(e.From),
		"numRunning":  e.NumRunning,
		"numFailed":   e.NumFailed,
		"numReturned": e.NumReturned,
	}, e.Time)
}

func (s *InfluxSink) Publish(ctx context.Context, e Event) error {
	return errors.Wrap(s.writer.WritePoint(ctx, Point(e)), "unable to write influx point")
}

func (s *InfluxSink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
