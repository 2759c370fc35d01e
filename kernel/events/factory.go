package events

import (
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/prometheus/client_golang/prometheus"
)

// New builds the sinks configured in cfg. The log sink is always present;
// reg may be nil when no metrics endpoint is served.
func New(cfg *model.ProviderConfig, reg prometheus.Registerer) (*Multi, error) {
	m := NewMulti(NewLogSink())
	if reg != nil {
		m.Add(NewMetricsSink(reg))
	}
	ev := cfg.Events
	if ev.NatsURL != "" {
		s, err := DialNats(ev.NatsURL, ev.NatsSubject)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.Add(s)
	}
	if ev.InfluxURL != "" {
		m.Add(NewInfluxClientSink(ev.InfluxURL, ev.InfluxToken, ev.InfluxOrg, ev.InfluxBucket))
	}
	return m, nil
}
